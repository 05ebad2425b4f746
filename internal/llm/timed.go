package llm

import (
	"context"
	"sync/atomic"
	"time"

	"deepreport/internal/logging"
	"deepreport/internal/types"
)

// TimedClient wraps an LLM client and logs every call with its duration
// under the api category.
type TimedClient struct {
	underlying types.LLMClient
	label      string

	calls    atomic.Int64
	failures atomic.Int64
}

// NewTimedClient wraps client; label names it in logs.
func NewTimedClient(client types.LLMClient, label string) *TimedClient {
	return &TimedClient{underlying: client, label: label}
}

// Complete implements types.LLMClient.
func (tc *TimedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return tc.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem implements types.LLMClient.
func (tc *TimedClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	tc.calls.Add(1)
	start := time.Now()
	logging.APIDebug("LLM call started: client=%s prompt_len=%d", tc.label, len(userPrompt))

	resp, err := tc.underlying.CompleteWithSystem(ctx, systemPrompt, userPrompt)

	duration := time.Since(start)
	if err != nil {
		tc.failures.Add(1)
		logging.APIError("LLM call failed: client=%s duration=%v error=%v", tc.label, duration, err)
		return "", err
	}
	logging.API("LLM call completed: client=%s duration=%v response_len=%d", tc.label, duration, len(resp))
	return resp, nil
}

// Stats returns the number of calls and failures so far.
func (tc *TimedClient) Stats() (calls, failures int64) {
	return tc.calls.Load(), tc.failures.Load()
}

// Underlying returns the wrapped client.
func (tc *TimedClient) Underlying() types.LLMClient {
	return tc.underlying
}
