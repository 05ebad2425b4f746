package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"deepreport/internal/types"
)

func (r *Runner) writing(ctx context.Context, st State) (State, Phase, error) {
	work := st.Work
	if work == nil {
		return st, phaseDone, fmt.Errorf("writing without a prepared section")
	}

	evidence := make([]types.RetrievedItem, len(work.Evidence))
	copy(evidence, work.Evidence)
	for i := range evidence {
		st.RefCounter++
		evidence[i].RefID = fmt.Sprintf("ref_%d", st.RefCounter)
	}

	req := types.WriteRequest{
		Section:      work.Section,
		Evidence:     evidence,
		History:      work.History,
		Outline:      st.Outline,
		Requirement:  st.Requirement,
		PriorSummary: r.priorSummary(st.Written),
	}
	if st.Outline != nil && st.Outline.EstimatedWords > 0 {
		req.Budget = &types.WordBudget{
			TargetTotal:     st.Outline.EstimatedWords,
			WrittenSoFar:    st.WordsWritten,
			SectionPosition: st.Cursor,
			TotalSections:   len(st.Sections),
		}
	}

	draft, err := r.caps.Writer.WriteSection(ctx, req)
	if err != nil {
		return st, phaseDone, &types.CapabilityError{Capability: "writer", Err: err}
	}
	if draft == nil || strings.TrimSpace(draft.Content) == "" {
		return st, phaseDone, &types.CapabilityError{Capability: "writer", Err: errors.New("empty draft")}
	}

	work.Evidence = evidence
	work.Draft = draft
	return st, PhaseSaveSection, nil
}

// priorSummary lists the opening of the most recently written sections.
func (r *Runner) priorSummary(written []types.WrittenSection) string {
	n := r.cfg.SummarySections
	if n <= 0 || len(written) == 0 {
		return ""
	}
	if len(written) > n {
		written = written[len(written)-n:]
	}

	parts := make([]string, 0, len(written))
	for _, ws := range written {
		parts = append(parts, "### "+ws.Level1+"\n"+truncate(ws.Content, r.cfg.SummaryChars))
	}
	return strings.Join(parts, "\n\n")
}

func (r *Runner) saveSection(ctx context.Context, st State) (State, Phase, error) {
	work := st.Work
	if work == nil || work.Draft == nil {
		return st, phaseDone, fmt.Errorf("save_section without a draft")
	}
	section, draft := work.Section, work.Draft

	if _, err := st.History.Add("## "+section.Level1, draft.Content, "", section.ID); err != nil {
		st.log.Warn("Failed to record %s in history: %v", section.ID, err)
	}

	written := types.WrittenSection{
		SectionID: section.ID,
		Level1:    section.Level1,
		Level2:    section.Level2,
		Content:   draft.Content,
		Cited:     draft.Cited,
		Chart:     draft.Chart,
	}
	if draft.Chart != nil && r.caps.Charts != nil {
		written.ChartGenerating = true
		st.charts.start(r.caps.Charts, len(st.Written), draft.Content, *draft.Chart, section)
	}

	st.Written = append(st.Written, written)
	st.WordsWritten += EstimateWordCount(draft.Content)
	st.Cursor++
	st.Work = nil
	st.log.Info("Saved %s (%d/%d), %d words so far", section.ID, st.Cursor, len(st.Sections), st.WordsWritten)
	return st, PhasePrepareSection, nil
}
