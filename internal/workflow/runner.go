// Package workflow drives report generation through a fixed state machine:
//
//	Initialize → Planning → [PrepareSection → CollectInfo → Writing → SaveSection]* → Complete
//
// Each section gathers evidence in one retrieval pass plus at most one
// supplemental pass, is written, and is saved to the task's history before
// the next section starts. Charts render in the background and are joined
// once at Complete under a single deadline.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"deepreport/internal/config"
	"deepreport/internal/logging"
	"deepreport/internal/progress"
	"deepreport/internal/types"

	"github.com/google/uuid"
)

// Capabilities are the collaborators the orchestrator calls. Knowledge, Web
// and Charts are optional; the rest are required.
type Capabilities struct {
	Planner   types.OutlinePlanner
	Selector  types.SectionSelector
	Queries   types.QueryGenerator
	Knowledge types.Retriever
	Web       types.Retriever
	Filter    types.ResultFilter
	Evaluator types.SufficiencyEvaluator
	Writer    types.Writer
	Charts    types.ChartRenderer
}

func (c Capabilities) validate() error {
	var missing []string
	if c.Selector == nil {
		missing = append(missing, "selector")
	}
	if c.Queries == nil {
		missing = append(missing, "queries")
	}
	if c.Filter == nil {
		missing = append(missing, "filter")
	}
	if c.Evaluator == nil {
		missing = append(missing, "evaluator")
	}
	if c.Writer == nil {
		missing = append(missing, "writer")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing capabilities: %s", strings.Join(missing, ", "))
	}
	return nil
}

// EvidenceIndex is a task's ephemeral evidence index. Add and Search never
// fail; Purge is idempotent.
type EvidenceIndex interface {
	Add(ctx context.Context, items []types.RetrievedItem) int
	Search(ctx context.Context, query string, k int) []types.RetrievedItem
	Purge() error
}

// IndexProvider creates task-scoped indexes and reconstructs a handle from a
// task id alone.
type IndexProvider interface {
	Create(taskID string) (EvidenceIndex, error)
	Open(taskID string) (EvidenceIndex, error)
}

// Request starts one report.
type Request struct {
	TaskID      string         // assigned when empty
	Requirement string         // free-text description of the report
	Outline     *types.Outline // reused unchanged when valid
}

// Runner executes report tasks. One Runner may serve many tasks; each task
// owns its own state.
type Runner struct {
	caps    Capabilities
	indexes IndexProvider
	broker  *progress.Broker
	cfg     config.WorkflowConfig

	phases map[Phase]phaseFunc
}

// New creates a runner. A nil broker disables progress reporting for Run;
// Stream requires one.
func New(caps Capabilities, indexes IndexProvider, broker *progress.Broker, cfg config.WorkflowConfig) (*Runner, error) {
	if err := caps.validate(); err != nil {
		return nil, err
	}
	if indexes == nil {
		return nil, fmt.Errorf("index provider is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Runner{caps: caps, indexes: indexes, broker: broker, cfg: cfg}
	r.phases = map[Phase]phaseFunc{
		PhaseInitialize:     r.initialize,
		PhasePlanning:       r.planning,
		PhasePrepareSection: r.prepareSection,
		PhaseCollectInfo:    r.collectInfo,
		PhaseWriting:        r.writing,
		PhaseSaveSection:    r.saveSection,
		PhaseComplete:       r.complete,
	}
	return r, nil
}

// Run executes a task to completion and returns the report.
func (r *Runner) Run(ctx context.Context, req Request) (*Report, error) {
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}
	rep := r.broker.For(req.TaskID)

	report, err := r.execute(ctx, req, rep, nil)
	if err != nil {
		rep.Error(err)
		return nil, err
	}
	rep.Complete("report complete", report)
	return report, nil
}

// execute drives the phase loop. observe, when set, sees the state after
// every phase.
func (r *Runner) execute(ctx context.Context, req Request, rep *progress.Reporter, observe func(State, Phase)) (*Report, error) {
	timer := logging.StartTimer(logging.CategoryWorkflow, "Runner.execute")
	defer timer.Stop()

	st := State{
		TaskID:      req.TaskID,
		Requirement: strings.TrimSpace(req.Requirement),
		Outline:     req.Outline,
		log:         logging.WithRequestID(logging.CategoryWorkflow, req.TaskID),
		rep:         rep,
	}
	st.charts = newChartSet(ctx)
	defer st.charts.abandon()

	st.log.Info("Task started: %q", truncate(st.Requirement, 80))

	phase := PhaseInitialize
	for phase != phaseDone {
		if err := ctx.Err(); err != nil {
			st.log.Warn("Task cancelled before %s: %v", phase, err)
			r.cleanup(st)
			return nil, err
		}

		fn, ok := r.phases[phase]
		if !ok {
			r.cleanup(st)
			return nil, fmt.Errorf("unknown phase %q", phase)
		}

		rep.NodeStart(string(phase), phaseMessage(phase, st))
		next, nextPhase, err := fn(ctx, st)
		if err != nil {
			st.log.Error("Phase %s failed: %v", phase, err)
			r.cleanup(next)
			return nil, err
		}
		st = next
		rep.NodeEnd(string(phase), "")
		rep.State(st.Summary())
		if observe != nil {
			observe(st, nextPhase)
		}
		phase = nextPhase
	}

	st.log.Info("Task complete: %d sections", len(st.Written))
	return st.Report, nil
}

// cleanup releases task resources after a failure. Errors are logged and
// never replace the failure that caused the cleanup.
func (r *Runner) cleanup(st State) {
	if st.charts != nil {
		st.charts.abandon()
	}
	if st.Index == nil {
		return
	}
	if err := st.Index.Purge(); err != nil {
		logging.WorkflowWarn("Cleanup purge failed for task %s: %v", st.TaskID, err)
	}
}

// IsFatal reports whether err ended a task because of a bad outline or a
// failed planning or writing call.
func IsFatal(err error) bool {
	var structural *types.StructuralError
	var capability *types.CapabilityError
	return errors.As(err, &structural) || errors.As(err, &capability)
}

func phaseMessage(phase Phase, st State) string {
	switch phase {
	case PhasePrepareSection, PhaseCollectInfo, PhaseWriting, PhaseSaveSection:
		if st.Cursor < len(st.Sections) {
			return fmt.Sprintf("section %d/%d: %s", st.Cursor+1, len(st.Sections), st.Sections[st.Cursor].Level1)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
