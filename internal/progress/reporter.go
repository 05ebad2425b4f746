package progress

import (
	"deepreport/internal/types"
)

// Reporter emits events for one task through a broker. A nil Reporter and a
// Reporter without a broker drop everything.
type Reporter struct {
	broker *Broker
	taskID string
	owner  *Registration
}

// For returns a reporter bound to taskID.
func (b *Broker) For(taskID string) *Reporter {
	return &Reporter{broker: b, taskID: taskID}
}

// TaskID returns the task the reporter is bound to.
func (r *Reporter) TaskID() string {
	if r == nil {
		return ""
	}
	return r.taskID
}

func (r *Reporter) emit(ev types.ProgressEvent) {
	if r == nil || r.broker == nil {
		return
	}
	ev.TaskID = r.taskID
	if r.owner != nil {
		r.owner.report(ev)
		return
	}
	r.broker.Report(ev)
}

// NodeStart reports entry into a workflow node.
func (r *Reporter) NodeStart(node, message string) {
	r.emit(types.ProgressEvent{Type: types.EventNodeStart, Node: node, Message: message})
}

// NodeEnd reports exit from a workflow node.
func (r *Reporter) NodeEnd(node, message string) {
	r.emit(types.ProgressEvent{Type: types.EventNodeEnd, Node: node, Message: message})
}

// Step reports progress within a node.
func (r *Reporter) Step(node string, step, total int, message string) {
	r.emit(types.ProgressEvent{Type: types.EventStepProgress, Node: node, Step: step, Total: total, Message: message})
}

// State reports a state snapshot summary.
func (r *Reporter) State(summary types.StateSummary) {
	r.emit(types.ProgressEvent{Type: types.EventStateUpdate, Payload: summary})
}

// Complete reports successful completion with the final result.
func (r *Reporter) Complete(message string, result interface{}) {
	r.emit(types.ProgressEvent{Type: types.EventComplete, Message: message, Payload: result})
}

// Error reports a fatal task error.
func (r *Reporter) Error(err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	r.emit(types.ProgressEvent{Type: types.EventError, Message: msg, Payload: types.ErrorPayload{Message: msg}})
}
