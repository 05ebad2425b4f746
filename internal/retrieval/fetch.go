package retrieval

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// PageFetcher downloads a page and returns its readable text.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches pages with a plain HTTP GET.
type HTTPFetcher struct {
	Client   *http.Client
	MaxBytes int64
}

// NewHTTPFetcher creates a fetcher using client.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{Client: client, MaxBytes: 2 << 20}
}

// Fetch implements PageFetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; deepreport/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body := io.LimitReader(resp.Body, f.MaxBytes)
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "text/plain") || strings.Contains(ct, "text/markdown") {
		data, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("failed to read response: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return HTMLToText(body)
}
