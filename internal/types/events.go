package types

import "time"

// EventType enumerates progress event kinds.
type EventType string

const (
	EventNodeStart    EventType = "node_start"
	EventNodeEnd      EventType = "node_end"
	EventStateUpdate  EventType = "state_update"
	EventStepProgress EventType = "step_progress"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
)

// Terminal reports whether the event ends a stream.
func (t EventType) Terminal() bool {
	return t == EventComplete || t == EventError
}

// ProgressEvent is one structured progress record for a task.
type ProgressEvent struct {
	Type      EventType   `json:"type"`
	TaskID    string      `json:"task_id"`
	Node      string      `json:"node,omitempty"`
	Step      int         `json:"step,omitempty"`
	Total     int         `json:"total,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// StateSummary is the state_update payload.
type StateSummary struct {
	Cursor        int    `json:"cursor"`
	TotalSections int    `json:"total_sections"`
	CurrentTitle  string `json:"current_title,omitempty"`
	EvidenceCount int    `json:"evidence_count"`
	Written       int    `json:"written"`
	Complete      bool   `json:"complete"`
}

// ErrorPayload is the error event payload.
type ErrorPayload struct {
	Message string `json:"message"`
}
