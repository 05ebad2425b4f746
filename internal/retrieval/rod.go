package retrieval

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"deepreport/internal/logging"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodFetcher renders pages in a headless browser so script-built content
// is captured. The browser is launched lazily on first use and shared.
type RodFetcher struct {
	ControlURL string // Attach to a running browser instead of launching one
	Bin        string // Browser binary; empty lets the launcher find or download one

	mu      sync.Mutex
	browser *rod.Browser
}

// NewRodFetcher creates a fetcher. Call Close to shut the browser down.
func NewRodFetcher(controlURL, bin string) *RodFetcher {
	return &RodFetcher{ControlURL: controlURL, Bin: bin}
}

func (f *RodFetcher) connect(ctx context.Context) (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		return f.browser, nil
	}

	controlURL := f.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(true)
		if f.Bin != "" {
			l = l.Bin(f.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
	}

	// The browser outlives any single fetch, so it is not bound to ctx.
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	logging.Retrieval("Headless browser connected at %s", controlURL)
	f.browser = browser
	return browser, nil
}

// Fetch implements PageFetcher.
func (f *RodFetcher) Fetch(ctx context.Context, url string) (string, error) {
	browser, err := f.connect(ctx)
	if err != nil {
		return "", err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close()

	p := page.Context(ctx)
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("page did not load: %w", err)
	}

	htmlSrc, err := p.HTML()
	if err == nil {
		if text, err := HTMLToText(strings.NewReader(htmlSrc)); err == nil && text != "" {
			return text, nil
		}
	}

	body, err := p.Element("body")
	if err != nil {
		return "", fmt.Errorf("page has no body: %w", err)
	}
	text, err := body.Text()
	if err != nil {
		return "", fmt.Errorf("failed to read page text: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Close shuts down the browser if one was started.
func (f *RodFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	return err
}
