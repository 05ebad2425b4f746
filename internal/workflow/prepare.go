package workflow

import (
	"context"
	"fmt"
	"strings"

	"deepreport/internal/types"
)

const prepareSteps = 6

func (r *Runner) prepareSection(ctx context.Context, st State) (State, Phase, error) {
	if st.Cursor >= len(st.Sections) {
		return st, PhaseComplete, nil
	}

	section := st.Sections[st.Cursor]
	work := newSectionWork(section)
	node := string(PhasePrepareSection)
	st.log.Info("Preparing section %d/%d: %s", st.Cursor+1, len(st.Sections), section.Level1)

	st.rep.Step(node, 1, prepareSteps, "selecting relevant written sections")
	work.Prior, work.History = r.selectPrior(ctx, st, section)

	st.rep.Step(node, 2, prepareSteps, "generating search queries")
	work.Queries = r.sectionQueries(ctx, st, section)

	st.rep.Step(node, 3, prepareSteps, fmt.Sprintf("searching evidence index with %d queries", len(work.Queries)))
	hits := r.searchEvidence(ctx, st, work, work.Queries)

	st.rep.Step(node, 4, prepareSteps, "searching knowledge base and web")
	pooled := r.retrieve(ctx, work, work.Queries)

	st.rep.Step(node, 5, prepareSteps, fmt.Sprintf("filtering %d results", len(pooled)))
	filtered := r.filter(ctx, st, work, pooled, work.Queries, nil)

	st.rep.Step(node, 6, prepareSteps, fmt.Sprintf("ingesting %d results", len(filtered)))
	if len(filtered) > 0 {
		st.Index.Add(ctx, filtered)
	}

	work.Evidence = append(hits, filtered...)
	st.log.Info("Section %s: %d queries, %d evidence hits, %d pooled, %d kept",
		section.ID, len(work.Queries), len(hits), len(pooled), len(filtered))

	st.Work = work
	return st, PhaseCollectInfo, nil
}

// selectPrior asks which written sections the writer should review and loads
// their content. Failures leave the writer without history.
func (r *Runner) selectPrior(ctx context.Context, st State, section types.Section) ([]types.HistoryRef, []string) {
	if st.History == nil || st.History.Len() == 0 {
		return nil, nil
	}

	refs, err := r.caps.Selector.ChooseRelevantPrior(ctx, section, st.History.FormattedTitles())
	if err != nil {
		st.log.Warn("Prior section selection failed: %v", err)
		return nil, nil
	}
	if limit := r.cfg.MaxPriorSections; len(refs) > limit {
		refs = refs[:limit]
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	return refs, st.History.Contents(ids)
}

// sectionQueries returns at least max(MinQueries, len(Level2)) distinct
// queries, padding from the section headings when the generator falls short.
func (r *Runner) sectionQueries(ctx context.Context, st State, section types.Section) []string {
	queries, err := r.caps.Queries.ForSection(ctx, section, st.Outline, st.Requirement)
	if err != nil {
		st.log.Warn("Query generation failed, using headings: %v", err)
	}
	queries = dedupeQueries(queries)

	want := r.cfg.MinQueries
	if n := len(section.Level2); n > want {
		want = n
	}
	if len(queries) < want {
		queries = dedupeQueries(append(queries, headingQueries(section)...))
	}
	return queries
}

func headingQueries(section types.Section) []string {
	out := []string{section.Level1}
	for _, sub := range section.Level2 {
		out = append(out, section.Level1+" "+sub)
	}
	out = append(out, section.Level1+" overview", section.Level1+" analysis", section.Level1+" trends")
	return out
}

// dedupeQueries trims, drops empties and case-insensitive duplicates, and
// keeps first-seen order.
func dedupeQueries(queries []string) []string {
	seen := make(map[string]bool, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, q)
	}
	return out
}
