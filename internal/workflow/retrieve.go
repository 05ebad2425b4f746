package workflow

import (
	"context"

	"deepreport/internal/logging"
	"deepreport/internal/types"

	"golang.org/x/sync/errgroup"
)

type searchJob struct {
	query     string
	source    string
	retriever types.Retriever
}

// retrieve runs every query against the main knowledge index and web search
// in parallel and keeps, per query and source, the first results this section
// has not seen yet. Failed searches contribute nothing.
func (r *Runner) retrieve(ctx context.Context, work *SectionWork, queries []string) []types.RetrievedItem {
	var jobs []searchJob
	for _, q := range queries {
		if r.caps.Knowledge != nil {
			jobs = append(jobs, searchJob{query: q, source: types.SourceKnowledgeBase, retriever: r.caps.Knowledge})
		}
		if r.caps.Web != nil {
			jobs = append(jobs, searchJob{query: q, source: types.SourceWeb, retriever: r.caps.Web})
		}
	}
	if len(jobs) == 0 {
		return nil
	}

	timer := logging.StartTimer(logging.CategoryRetrieval, "Runner.retrieve")
	defer timer.Stop()

	results := make([][]types.RetrievedItem, len(jobs))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.RetrievalParallelism)
	for i, job := range jobs {
		eg.Go(func() error {
			items, err := job.retriever.Search(egCtx, job.query, r.cfg.FetchK)
			if err != nil {
				logging.RetrievalWarn("%s search failed for %q: %v", job.source, job.query, err)
				return nil
			}
			results[i] = items
			return nil
		})
	}
	_ = eg.Wait()

	var out []types.RetrievedItem
	for i, items := range results {
		kept := 0
		for _, item := range items {
			if kept >= r.cfg.PerSourceK {
				break
			}
			if item.Source == "" {
				item.Source = jobs[i].source
			}
			if !work.markSeen(item) {
				continue
			}
			out = append(out, item)
			kept++
		}
	}
	logging.RetrievalDebug("Retrieved %d new items from %d searches", len(out), len(jobs))
	return out
}

// searchEvidence takes the top hits per query from the task's evidence index.
func (r *Runner) searchEvidence(ctx context.Context, st State, work *SectionWork, queries []string) []types.RetrievedItem {
	if st.Index == nil {
		return nil
	}
	var out []types.RetrievedItem
	for _, q := range queries {
		for _, item := range st.Index.Search(ctx, q, r.cfg.EvidenceK) {
			if work.markSeen(item) {
				out = append(out, item)
			}
		}
	}
	return out
}

// filter narrows pooled to the configured target. Filter failures fall back
// to the first target items.
func (r *Runner) filter(ctx context.Context, st State, work *SectionWork, pooled []types.RetrievedItem, queries, missing []string) []types.RetrievedItem {
	target := r.cfg.FilterTarget(len(pooled))
	if target == 0 {
		return nil
	}

	selected, err := r.caps.Filter.Select(ctx, types.FilterRequest{
		Results:       pooled,
		Section:       work.Section,
		Queries:       queries,
		Outline:       st.Outline,
		Target:        target,
		MissingPoints: missing,
	})
	if err != nil {
		st.log.Warn("Filter failed, keeping first %d of %d results: %v", target, len(pooled), err)
		selected = append([]types.RetrievedItem(nil), pooled[:target]...)
	}
	if len(selected) > target {
		selected = selected[:target]
	}
	return selected
}
