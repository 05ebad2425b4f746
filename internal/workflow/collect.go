package workflow

import (
	"context"
	"fmt"

	"deepreport/internal/types"
)

const (
	collectSteps = 4

	// maxEvaluationRounds bounds evaluator calls per section: one initial
	// judgment and one after the supplemental pass.
	maxEvaluationRounds = 2

	defaultMissingPoint = "need more relevant information"
)

// collectInfo runs the sufficiency loop: evaluate, and when the evidence is
// judged insufficient run exactly one supplemental retrieval pass aimed at
// the missing points before evaluating again. Writing proceeds either way.
func (r *Runner) collectInfo(ctx context.Context, st State) (State, Phase, error) {
	work := st.Work
	if work == nil {
		return st, phaseDone, fmt.Errorf("collect_info without a prepared section")
	}
	node := string(PhaseCollectInfo)

	st.rep.Step(node, 1, collectSteps, fmt.Sprintf("evaluating %d evidence items", len(work.Evidence)))
	verdict := r.evaluate(ctx, st, work, 1)
	if verdict.Sufficient {
		st.log.Info("Evidence for %s sufficient (score %.2f)", work.Section.ID, verdict.Score)
		return st, PhaseWriting, nil
	}

	missing := verdict.MissingPoints
	if len(missing) == 0 {
		missing = []string{defaultMissingPoint}
	}
	count := supplementalQueryCount(len(missing))

	st.rep.Step(node, 2, collectSteps, fmt.Sprintf("generating %d gap queries", count))
	queries, err := r.caps.Queries.ForGaps(ctx, work.Section, missing, count, st.Requirement)
	if err != nil || len(queries) == 0 {
		if err != nil {
			st.log.Warn("Gap query generation failed, using missing points: %v", err)
		}
		queries = missing
	}
	queries = dedupeQueries(queries)
	if len(queries) > count {
		queries = queries[:count]
	}

	st.rep.Step(node, 3, collectSteps, fmt.Sprintf("supplemental search with %d queries", len(queries)))
	pooled := r.retrieve(ctx, work, queries)
	filtered := r.filter(ctx, st, work, pooled, queries, missing)
	if len(filtered) > 0 {
		st.Index.Add(ctx, filtered)
		work.Evidence = append(work.Evidence, filtered...)
	}

	if len(filtered) == 0 {
		st.log.Warn("Supplemental pass for %s found nothing new; writing with %d items", work.Section.ID, len(work.Evidence))
		return st, PhaseWriting, nil
	}

	st.rep.Step(node, 4, collectSteps, fmt.Sprintf("re-evaluating %d evidence items", len(work.Evidence)))
	verdict = r.evaluate(ctx, st, work, 2)
	if !verdict.Sufficient {
		st.log.Warn("Evidence for %s still insufficient after supplemental pass (score %.2f, missing %v)",
			work.Section.ID, verdict.Score, verdict.MissingPoints)
	}
	return st, PhaseWriting, nil
}

// evaluate calls the evaluator once. Failures yield a conservative
// insufficient verdict.
func (r *Runner) evaluate(ctx context.Context, st State, work *SectionWork, round int) *types.SufficiencyVerdict {
	work.EvaluatorCalls++
	verdict, err := r.caps.Evaluator.Evaluate(ctx, types.EvaluationRequest{
		Section:   work.Section,
		Evidence:  work.Evidence,
		History:   work.History,
		Outline:   st.Outline,
		Round:     round,
		MaxRounds: maxEvaluationRounds,
	})
	if err != nil || verdict == nil {
		if err == nil {
			err = fmt.Errorf("evaluator returned no verdict")
		}
		st.log.Warn("Evaluation round %d failed: %v", round, err)
		verdict = &types.SufficiencyVerdict{
			Sufficient:     false,
			Reason:         err.Error(),
			MissingPoints:  []string{"evaluation failed, gather more information on the section topics"},
			ShouldContinue: round < maxEvaluationRounds,
		}
	}
	work.Verdict = verdict
	return verdict
}

// supplementalQueryCount scales gap queries with the number of missing points.
func supplementalQueryCount(missing int) int {
	switch {
	case missing <= 2:
		return 1
	case missing <= 4:
		return 2
	default:
		return 3
	}
}
