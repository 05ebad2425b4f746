package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"deepreport/internal/config"
	"deepreport/internal/progress"
	"deepreport/internal/types"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// CAPABILITY MOCKS
// =============================================================================

type mockPlanner struct {
	GenerateFunc func(ctx context.Context, requirement string) (*types.Outline, error)
	calls        int
}

func (m *mockPlanner) Generate(ctx context.Context, requirement string) (*types.Outline, error) {
	m.calls++
	return m.GenerateFunc(ctx, requirement)
}

type mockSelector struct {
	ChooseRelevantPriorFunc func(ctx context.Context, section types.Section, titles string) ([]types.HistoryRef, error)
}

func (m *mockSelector) ChooseRelevantPrior(ctx context.Context, section types.Section, titles string) ([]types.HistoryRef, error) {
	if m.ChooseRelevantPriorFunc == nil {
		return nil, nil
	}
	return m.ChooseRelevantPriorFunc(ctx, section, titles)
}

type gapCall struct {
	Section types.Section
	Missing []string
	Count   int
}

type mockQueries struct {
	ForSectionFunc func(ctx context.Context, section types.Section, outline *types.Outline, requirement string) ([]string, error)
	ForGapsFunc    func(ctx context.Context, section types.Section, missing []string, count int, requirement string) ([]string, error)

	mu       sync.Mutex
	gapCalls []gapCall
}

func (m *mockQueries) ForSection(ctx context.Context, section types.Section, outline *types.Outline, requirement string) ([]string, error) {
	if m.ForSectionFunc == nil {
		return []string{section.Level1, section.Level1 + " data", section.Level1 + " trends"}, nil
	}
	return m.ForSectionFunc(ctx, section, outline, requirement)
}

func (m *mockQueries) ForGaps(ctx context.Context, section types.Section, missing []string, count int, requirement string) ([]string, error) {
	m.mu.Lock()
	m.gapCalls = append(m.gapCalls, gapCall{Section: section, Missing: missing, Count: count})
	m.mu.Unlock()
	if m.ForGapsFunc == nil {
		out := make([]string, 0, count)
		for i := 0; i < count; i++ {
			out = append(out, fmt.Sprintf("%s gap %d", section.Level1, i+1))
		}
		return out, nil
	}
	return m.ForGapsFunc(ctx, section, missing, count, requirement)
}

type mockRetriever struct {
	source     string
	SearchFunc func(ctx context.Context, query string, k int) ([]types.RetrievedItem, error)

	mu      sync.Mutex
	queries []string
}

func (m *mockRetriever) Search(ctx context.Context, query string, k int) ([]types.RetrievedItem, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, query, k)
	}
	items := make([]types.RetrievedItem, 0, k)
	for i := 0; i < k; i++ {
		items = append(items, types.RetrievedItem{
			Content: fmt.Sprintf("%s result %d for %s", m.source, i, query),
			Source:  m.source,
			Title:   fmt.Sprintf("%s %d", query, i),
		})
	}
	return items, nil
}

func (m *mockRetriever) Queries() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.queries...)
}

type mockFilter struct {
	SelectFunc func(ctx context.Context, req types.FilterRequest) ([]types.RetrievedItem, error)

	mu       sync.Mutex
	requests []types.FilterRequest
}

func (m *mockFilter) Select(ctx context.Context, req types.FilterRequest) ([]types.RetrievedItem, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.SelectFunc != nil {
		return m.SelectFunc(ctx, req)
	}
	return append([]types.RetrievedItem(nil), req.Results[:req.Target]...), nil
}

type mockEvaluator struct {
	EvaluateFunc func(ctx context.Context, req types.EvaluationRequest) (*types.SufficiencyVerdict, error)

	mu       sync.Mutex
	requests []types.EvaluationRequest
}

func (m *mockEvaluator) Evaluate(ctx context.Context, req types.EvaluationRequest) (*types.SufficiencyVerdict, error) {
	m.mu.Lock()
	req.Evidence = append([]types.RetrievedItem(nil), req.Evidence...)
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.EvaluateFunc != nil {
		return m.EvaluateFunc(ctx, req)
	}
	return &types.SufficiencyVerdict{Sufficient: true, Score: 0.9}, nil
}

func (m *mockEvaluator) callsFor(sectionID string) []types.EvaluationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.EvaluationRequest
	for _, r := range m.requests {
		if r.Section.ID == sectionID {
			out = append(out, r)
		}
	}
	return out
}

type mockWriter struct {
	WriteSectionFunc func(ctx context.Context, req types.WriteRequest) (*types.Draft, error)

	mu       sync.Mutex
	requests []types.WriteRequest
}

func (m *mockWriter) WriteSection(ctx context.Context, req types.WriteRequest) (*types.Draft, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.WriteSectionFunc != nil {
		return m.WriteSectionFunc(ctx, req)
	}
	return defaultDraft(req), nil
}

func defaultDraft(req types.WriteRequest) *types.Draft {
	d := &types.Draft{Content: "## " + req.Section.Level1 + "\n\nBody of " + req.Section.Level1 + "."}
	for _, sub := range req.Section.Level2 {
		d.Content += "\n\n### " + sub + "\n\nText about " + sub + "."
	}
	if len(req.Evidence) > 0 {
		d.Cited = req.Evidence[:1]
	}
	return d
}

type mockCharts struct {
	RenderFunc func(ctx context.Context, content string, req types.ChartRequirement, section types.Section) (string, error)
}

func (m *mockCharts) Render(ctx context.Context, content string, req types.ChartRequirement, section types.Section) (string, error) {
	return m.RenderFunc(ctx, content, req, section)
}

// =============================================================================
// EVIDENCE INDEX FAKE
// =============================================================================

type fakeIndex struct {
	mu       sync.Mutex
	items    []types.RetrievedItem
	purges   int
	purged   bool
	PurgeErr error
}

func (f *fakeIndex) Add(ctx context.Context, items []types.RetrievedItem) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.purged {
		return 0
	}
	f.items = append(f.items, items...)
	return len(items)
}

func (f *fakeIndex) Search(ctx context.Context, query string, k int) []types.RetrievedItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.purged {
		return nil
	}
	var out []types.RetrievedItem
	for _, it := range f.items {
		if len(out) == k {
			break
		}
		if strings.Contains(strings.ToLower(it.Content), strings.ToLower(query)) {
			it.Score = types.Float64Ptr(0.8)
			out = append(out, it)
		}
	}
	return out
}

func (f *fakeIndex) Purge() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.purged {
		return nil
	}
	f.purged = true
	f.purges++
	return f.PurgeErr
}

func (f *fakeIndex) state() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items), f.purges
}

type fakeIndexes struct {
	mu        sync.Mutex
	indexes   map[string]*fakeIndex
	CreateErr error
	PurgeErr  error
}

func newFakeIndexes() *fakeIndexes {
	return &fakeIndexes{indexes: make(map[string]*fakeIndex)}
}

func (f *fakeIndexes) Create(taskID string) (EvidenceIndex, error) {
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := &fakeIndex{PurgeErr: f.PurgeErr}
	f.indexes[taskID] = idx
	return idx, nil
}

func (f *fakeIndexes) Open(taskID string) (EvidenceIndex, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx, ok := f.indexes[taskID]
	if !ok {
		return nil, types.ErrIndexPurged
	}
	return idx, nil
}

func (f *fakeIndexes) get(taskID string) *fakeIndex {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.indexes[taskID]
}

// =============================================================================
// HARNESS
// =============================================================================

func validOutline() *types.Outline {
	return &types.Outline{
		Title: "EV Battery Market",
		Sections: []types.OutlineSection{
			{Level1: "Market", Level2: []string{"Share", "Prices"}},
			{Level1: "Outlook"},
		},
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []types.ProgressEvent
}

func (l *eventLog) record(ev types.ProgressEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) all() []types.ProgressEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.ProgressEvent(nil), l.events...)
}

type harness struct {
	planner   *mockPlanner
	selector  *mockSelector
	queries   *mockQueries
	knowledge *mockRetriever
	web       *mockRetriever
	filter    *mockFilter
	evaluator *mockEvaluator
	writer    *mockWriter
	charts    *mockCharts

	indexes *fakeIndexes
	broker  *progress.Broker
	cfg     config.WorkflowConfig
}

func newHarness() *harness {
	cfg := config.DefaultWorkflowConfig()
	cfg.ChartWait = "2s"
	return &harness{
		planner: &mockPlanner{GenerateFunc: func(context.Context, string) (*types.Outline, error) {
			return validOutline(), nil
		}},
		selector:  &mockSelector{},
		queries:   &mockQueries{},
		knowledge: &mockRetriever{source: types.SourceKnowledgeBase},
		web:       &mockRetriever{source: types.SourceWeb},
		filter:    &mockFilter{},
		evaluator: &mockEvaluator{},
		writer:    &mockWriter{},
		indexes:   newFakeIndexes(),
		broker:    progress.NewBroker(),
		cfg:       cfg,
	}
}

func (h *harness) capabilities() Capabilities {
	caps := Capabilities{
		Planner:   h.planner,
		Selector:  h.selector,
		Queries:   h.queries,
		Knowledge: h.knowledge,
		Web:       h.web,
		Filter:    h.filter,
		Evaluator: h.evaluator,
		Writer:    h.writer,
	}
	if h.charts != nil {
		caps.Charts = h.charts
	}
	return caps
}

func (h *harness) runner(t *testing.T) *Runner {
	t.Helper()
	r, err := New(h.capabilities(), h.indexes, h.broker, h.cfg)
	require.NoError(t, err)
	return r
}

// listen records every event for taskID.
func (h *harness) listen(t *testing.T, taskID string) *eventLog {
	t.Helper()
	log := &eventLog{}
	require.NoError(t, h.broker.Register(taskID, log.record))
	t.Cleanup(func() { h.broker.Unregister(taskID) })
	return log
}

func insufficient(missing ...string) func(context.Context, types.EvaluationRequest) (*types.SufficiencyVerdict, error) {
	return func(_ context.Context, req types.EvaluationRequest) (*types.SufficiencyVerdict, error) {
		return &types.SufficiencyVerdict{Sufficient: false, Score: 0.3, MissingPoints: missing, ShouldContinue: req.Round < req.MaxRounds}, nil
	}
}

var errBoom = errors.New("boom")
