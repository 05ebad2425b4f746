package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Tavily searches through the Tavily search API.
type Tavily struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewTavily creates a Tavily provider.
func NewTavily(apiKey string, client *http.Client) (*Tavily, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("tavily API key is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Tavily{APIKey: apiKey, BaseURL: "https://api.tavily.com", Client: client}, nil
}

func (t *Tavily) Name() string { return "tavily" }

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search returns up to k results for query.
func (t *Tavily) Search(ctx context.Context, query string, k int) ([]WebResult, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:      t.APIKey,
		Query:       query,
		MaxResults:  k,
		SearchDepth: "basic",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(t.BaseURL, "/")+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tavily returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([]WebResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		score := r.Score
		results = append(results, WebResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Score:   &score,
		})
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
