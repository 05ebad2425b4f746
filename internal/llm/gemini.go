package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig configures a Gemini client.
type GeminiConfig struct {
	APIKey      string
	Model       string
	BaseURL     string // Optional API endpoint override
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// GeminiClient generates text through the genai SDK.
type GeminiClient struct {
	client *genai.Client
	cfg    GeminiConfig
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client, cfg: cfg}, nil
}

// Model returns the configured model name.
func (c *GeminiClient) Model() string { return c.cfg.Model }

// Complete sends a prompt and returns the completion.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system instruction.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	gc := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       genai.Ptr(float32(c.cfg.Temperature)),
	}
	if c.cfg.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(c.cfg.MaxTokens)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, genai.Text(userPrompt), gc)
	if err != nil {
		return "", fmt.Errorf("Gemini request failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("no completion returned")
	}
	return text, nil
}
