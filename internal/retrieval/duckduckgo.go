package retrieval

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// WebResult is one raw search-engine hit.
type WebResult struct {
	Title   string
	URL     string
	Snippet string
	Score   *float64
}

// SearchProvider is a web search backend.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, k int) ([]WebResult, error)
}

// DuckDuckGo searches through the DuckDuckGo HTML endpoint. No API key is
// required.
type DuckDuckGo struct {
	BaseURL string
	Client  *http.Client
}

// NewDuckDuckGo creates a provider using client.
func NewDuckDuckGo(client *http.Client) *DuckDuckGo {
	if client == nil {
		client = http.DefaultClient
	}
	return &DuckDuckGo{BaseURL: "https://html.duckduckgo.com/html/", Client: client}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search returns up to k results for query.
func (d *DuckDuckGo) Search(ctx context.Context, query string, k int) ([]WebResult, error) {
	searchURL := d.BaseURL + "?q=" + url.QueryEscape(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	return parseDuckDuckGoResults(io.LimitReader(resp.Body, 1<<20), k)
}

// parseDuckDuckGoResults extracts results from a DuckDuckGo HTML page.
func parseDuckDuckGoResults(r io.Reader, max int) ([]WebResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var results []WebResult
	var find func(*html.Node)
	find = func(n *html.Node) {
		if len(results) >= max {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") {
			if res := extractDuckDuckGoResult(n); res.URL != "" && res.Title != "" {
				results = append(results, res)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	return results, nil
}

func extractDuckDuckGoResult(n *html.Node) WebResult {
	var res WebResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				res.URL = attrValue(n, "href")
				res.Title = textContent(n)
			case hasClass(n, "result__snippet"):
				res.Snippet = textContent(n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	res.URL = unwrapDuckDuckGoRedirect(res.URL)
	return res
}

// unwrapDuckDuckGoRedirect resolves "//duckduckgo.com/l/?uddg=<target>" links.
func unwrapDuckDuckGoRedirect(link string) string {
	if !strings.Contains(link, "duckduckgo.com/l/") {
		return link
	}
	if strings.HasPrefix(link, "//") {
		link = "https:" + link
	}
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return link
}
