package workflow

import (
	"context"
	"time"

	"deepreport/internal/chart"
	"deepreport/internal/logging"
	"deepreport/internal/types"
)

// chartFuture is one background chart render for a written section.
type chartFuture struct {
	index int
	req   types.ChartRequirement
	done  chan struct{}
	url   string
	err   error
}

// chartSet owns the chart renders of one task. Renders run under ctx and are
// cancelled once the join deadline passes.
type chartSet struct {
	ctx     context.Context
	cancel  context.CancelFunc
	futures []*chartFuture
}

func newChartSet(parent context.Context) *chartSet {
	ctx, cancel := context.WithCancel(parent)
	return &chartSet{ctx: ctx, cancel: cancel}
}

func (c *chartSet) start(renderer types.ChartRenderer, index int, content string, req types.ChartRequirement, section types.Section) {
	f := &chartFuture{index: index, req: req, done: make(chan struct{})}
	c.futures = append(c.futures, f)

	go func() {
		defer close(f.done)
		f.url, f.err = renderer.Render(c.ctx, content, req, section)
	}()
	logging.ChartDebug("Chart render started for %s (%s)", section.ID, req.Type)
}

// join waits for all renders under one shared deadline and merges finished
// charts into their sections. Renders still running at the deadline are
// cancelled and their sections keep no chart.
func (c *chartSet) join(wait time.Duration, written []types.WrittenSection) []types.WrittenSection {
	if len(c.futures) == 0 {
		return written
	}
	defer c.abandon()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	expired := false
	for _, f := range c.futures {
		if expired {
			break
		}
		select {
		case <-f.done:
		case <-timer.C:
			expired = true
		}
	}

	for _, f := range c.futures {
		ws := &written[f.index]
		ws.ChartGenerating = false

		select {
		case <-f.done:
		default:
			logging.ChartWarn("Chart for %s timed out after %s", ws.SectionID, wait)
			continue
		}
		if f.err != nil {
			logging.ChartWarn("Chart for %s failed: %v", ws.SectionID, f.err)
			continue
		}
		if f.url == "" {
			continue
		}

		ws.ChartURL = f.url
		ws.Content = chart.Merge(ws.Content, f.req.Anchor, f.req.Description, f.url)
		logging.Chart("Merged chart into %s", ws.SectionID)
	}
	return written
}

// abandon cancels renders that are still running.
func (c *chartSet) abandon() {
	if c.cancel != nil {
		c.cancel()
	}
}
