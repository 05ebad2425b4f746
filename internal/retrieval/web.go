package retrieval

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"deepreport/internal/config"
	"deepreport/internal/logging"
	"deepreport/internal/types"

	"golang.org/x/sync/errgroup"
)

// fetchParallelism bounds concurrent page fetches per search.
const fetchParallelism = 3

// WebRetriever searches the web through a SearchProvider, caches responses
// and optionally replaces snippets with fetched page text.
type WebRetriever struct {
	provider   SearchProvider
	cache      *SearchCache
	fetcher    PageFetcher
	fetchChars int
	timeout    time.Duration
}

// WebOption customizes a WebRetriever.
type WebOption func(*WebRetriever)

// WithCache enables response caching.
func WithCache(c *SearchCache) WebOption {
	return func(w *WebRetriever) { w.cache = c }
}

// WithFetcher enables page enrichment, keeping at most maxChars runes per page.
func WithFetcher(f PageFetcher, maxChars int) WebOption {
	return func(w *WebRetriever) {
		w.fetcher = f
		w.fetchChars = maxChars
	}
}

// WithTimeout bounds each search call.
func WithTimeout(d time.Duration) WebOption {
	return func(w *WebRetriever) { w.timeout = d }
}

// NewWebRetriever creates a retriever over provider.
func NewWebRetriever(provider SearchProvider, opts ...WebOption) *WebRetriever {
	w := &WebRetriever{provider: provider}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewWebRetrieverFromConfig wires the provider, cache and fetcher named in cfg.
func NewWebRetrieverFromConfig(cfg *config.Config) (*WebRetriever, error) {
	timeout := cfg.GetWebTimeout()
	client := &http.Client{Timeout: timeout}

	var provider SearchProvider
	switch cfg.Web.Provider {
	case "tavily":
		t, err := NewTavily(cfg.Web.TavilyAPIKey, client)
		if err != nil {
			return nil, err
		}
		provider = t
	case "duckduckgo", "":
		provider = NewDuckDuckGo(client)
	default:
		return nil, fmt.Errorf("unsupported web provider: %s", cfg.Web.Provider)
	}

	opts := []WebOption{
		WithCache(NewSearchCache(cfg.Web.CacheSize, cfg.GetWebCacheTTL())),
		WithTimeout(timeout),
	}
	switch cfg.Web.FetchPages {
	case "http":
		opts = append(opts, WithFetcher(NewHTTPFetcher(client), cfg.Web.FetchChars))
	case "rod":
		opts = append(opts, WithFetcher(NewRodFetcher("", ""), cfg.Web.FetchChars))
	}

	logging.Retrieval("Web retriever: provider=%s fetch_pages=%s", provider.Name(), cfg.Web.FetchPages)
	return NewWebRetriever(provider, opts...), nil
}

// Search implements types.Retriever.
func (w *WebRetriever) Search(ctx context.Context, query string, k int) ([]types.RetrievedItem, error) {
	key := cacheKey(w.provider.Name(), query, k)
	if w.cache != nil {
		if items, ok := w.cache.Get(key); ok {
			logging.RetrievalDebug("Web cache hit for %q", query)
			return items, nil
		}
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	results, err := w.provider.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("%s search failed: %w", w.provider.Name(), err)
	}

	if w.fetcher != nil {
		w.enrich(ctx, results)
	}

	items := make([]types.RetrievedItem, 0, len(results))
	for _, r := range results {
		content := strings.TrimSpace(r.Snippet)
		if content == "" {
			continue
		}
		items = append(items, types.RetrievedItem{
			Content: content,
			Source:  types.SourceWeb,
			Title:   r.Title,
			URL:     r.URL,
			Score:   r.Score,
		})
	}

	if w.cache != nil {
		w.cache.Set(key, items)
	}
	logging.RetrievalDebug("Web search %q via %s: %d results", query, w.provider.Name(), len(items))
	return items, nil
}

// enrich replaces snippets with fetched page text. Fetch failures keep the
// snippet.
func (w *WebRetriever) enrich(ctx context.Context, results []WebResult) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchParallelism)
	for i := range results {
		i := i
		if results[i].URL == "" {
			continue
		}
		g.Go(func() error {
			text, err := w.fetcher.Fetch(gctx, results[i].URL)
			if err != nil {
				logging.RetrievalWarn("Page fetch failed for %s: %v", results[i].URL, err)
				return nil
			}
			if text = strings.TrimSpace(text); text != "" {
				results[i].Snippet = truncateRunes(text, w.fetchChars)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Close releases the page fetcher's resources.
func (w *WebRetriever) Close() error {
	if c, ok := w.fetcher.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
