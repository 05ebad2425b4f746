package workflow

import (
	"context"
	"errors"
	"fmt"

	"deepreport/internal/history"
	"deepreport/internal/logging"
	"deepreport/internal/types"
)

func (r *Runner) initialize(ctx context.Context, st State) (State, Phase, error) {
	idx, err := r.indexes.Create(st.TaskID)
	if err != nil {
		return st, phaseDone, fmt.Errorf("failed to create evidence index: %w", err)
	}
	st.Index = idx
	st.History = history.New()
	st.log.Debug("Initialized evidence index and history")
	return st, PhasePlanning, nil
}

func (r *Runner) planning(ctx context.Context, st State) (State, Phase, error) {
	outline := st.Outline
	switch {
	case outline != nil && types.ValidateOutline(outline) == nil:
		logging.Planning("Reusing supplied outline %q (%d sections)", outline.Title, len(outline.Sections))
	default:
		if outline != nil {
			invalid := types.ValidateOutline(outline)
			if r.caps.Planner == nil {
				return st, phaseDone, invalid
			}
			logging.PlanningWarn("Supplied outline is invalid, planning a new one: %v", invalid)
		}
		if r.caps.Planner == nil {
			return st, phaseDone, &types.CapabilityError{Capability: "planner", Err: errors.New("no planner configured")}
		}
		planned, err := r.caps.Planner.Generate(ctx, st.Requirement)
		if err != nil {
			return st, phaseDone, &types.CapabilityError{Capability: "planner", Err: err}
		}
		if err := types.ValidateOutline(planned); err != nil {
			return st, phaseDone, err
		}
		outline = planned
		logging.Planning("Planned outline %q (%d sections)", outline.Title, len(outline.Sections))
	}

	st.Outline = outline
	st.Sections = outline.WorkItems()
	st.Cursor = 0
	return st, PhasePrepareSection, nil
}

func (r *Runner) complete(ctx context.Context, st State) (State, Phase, error) {
	st.Written = st.charts.join(r.cfg.GetChartWait(), st.Written)

	if st.Index != nil {
		if err := st.Index.Purge(); err != nil {
			st.log.Warn("Evidence index purge failed: %v", err)
		}
	}

	st.Report = &Report{
		TaskID:   st.TaskID,
		Outline:  st.Outline,
		Sections: st.Written,
	}
	return st, phaseDone, nil
}
