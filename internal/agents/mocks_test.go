package agents

import (
	"context"
	"sync"
)

// MockLLMClient records prompts and answers through CompleteWithSystemFunc.
type MockLLMClient struct {
	CompleteWithSystemFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

	mu      sync.Mutex
	Systems []string
	Users   []string
}

func (m *MockLLMClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *MockLLMClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	m.Systems = append(m.Systems, systemPrompt)
	m.Users = append(m.Users, userPrompt)
	m.mu.Unlock()
	if m.CompleteWithSystemFunc != nil {
		return m.CompleteWithSystemFunc(ctx, systemPrompt, userPrompt)
	}
	return "", nil
}

func (m *MockLLMClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Users)
}

// reply returns a mock that always answers resp.
func reply(resp string) *MockLLMClient {
	return &MockLLMClient{
		CompleteWithSystemFunc: func(context.Context, string, string) (string, error) {
			return resp, nil
		},
	}
}

// failing returns a mock that always errors.
func failing(err error) *MockLLMClient {
	return &MockLLMClient{
		CompleteWithSystemFunc: func(context.Context, string, string) (string, error) {
			return "", err
		},
	}
}
