package workflow

import (
	"context"

	"deepreport/internal/history"
	"deepreport/internal/logging"
	"deepreport/internal/progress"
	"deepreport/internal/types"
)

// Phase names a node of the state machine. Phase names double as the node
// field of progress events.
type Phase string

const (
	PhaseInitialize     Phase = "initialize"
	PhasePlanning       Phase = "planning"
	PhasePrepareSection Phase = "prepare_section"
	PhaseCollectInfo    Phase = "collect_info"
	PhaseWriting        Phase = "writing"
	PhaseSaveSection    Phase = "save_section"
	PhaseComplete       Phase = "complete"

	phaseDone Phase = ""
)

// phaseFunc runs one node and names the next. On error the returned state
// still carries whatever resources were acquired so they can be released.
type phaseFunc func(ctx context.Context, st State) (State, Phase, error)

// State is the task state threaded through the phases. It is owned by the
// worker goroutine.
type State struct {
	TaskID      string
	Requirement string
	Outline     *types.Outline
	Sections    []types.Section
	Cursor      int

	Index   EvidenceIndex
	History *history.Store

	Work         *SectionWork
	Written      []types.WrittenSection
	RefCounter   int
	WordsWritten int

	Report *Report

	charts *chartSet
	log    *logging.RequestLogger
	rep    *progress.Reporter
}

// SectionWork is the scratch state of the section under the cursor.
type SectionWork struct {
	Section        types.Section
	Queries        []string
	Prior          []types.HistoryRef
	History        []string
	Evidence       []types.RetrievedItem
	Verdict        *types.SufficiencyVerdict
	EvaluatorCalls int
	Draft          *types.Draft

	seen map[string]struct{}
}

func newSectionWork(section types.Section) *SectionWork {
	return &SectionWork{Section: section, seen: make(map[string]struct{})}
}

// markSeen records item and reports whether it was new to this section.
func (w *SectionWork) markSeen(item types.RetrievedItem) bool {
	key := item.Key()
	if _, ok := w.seen[key]; ok {
		return false
	}
	w.seen[key] = struct{}{}
	return true
}

// Complete reports whether every section has been written.
func (s State) Complete() bool {
	return len(s.Sections) > 0 && s.Cursor == len(s.Sections)
}

// Summary condenses the state for state_update events.
func (s State) Summary() types.StateSummary {
	sum := types.StateSummary{
		Cursor:        s.Cursor,
		TotalSections: len(s.Sections),
		Written:       len(s.Written),
		Complete:      s.Complete(),
	}
	if s.Cursor < len(s.Sections) {
		sum.CurrentTitle = s.Sections[s.Cursor].Level1
	}
	if s.Work != nil {
		sum.EvidenceCount = len(s.Work.Evidence)
	}
	return sum
}

// Snapshot is the part of the state a streaming consumer may read while the
// worker runs.
type Snapshot struct {
	TaskID  string
	Phase   Phase
	Summary types.StateSummary
	Index   EvidenceIndex
}

func snapshotOf(st State, next Phase) *Snapshot {
	return &Snapshot{
		TaskID:  st.TaskID,
		Phase:   next,
		Summary: st.Summary(),
		Index:   st.Index,
	}
}
