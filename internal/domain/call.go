package domain

import "time"

// CallStatus is the closed set of call lifecycle states. The first three are
// live states; the rest are terminal.
type CallStatus string

const (
	CallInitiated   CallStatus = "initiated"
	CallInProgress  CallStatus = "in_progress"
	CallTransferred CallStatus = "transferred"
	CallCompleted   CallStatus = "completed"
	CallFailed      CallStatus = "failed"
	CallNoAnswer    CallStatus = "no_answer"
	CallBusy        CallStatus = "busy"
	CallCanceled    CallStatus = "canceled"
)

// Valid reports whether s is a member of the closed status set.
func (s CallStatus) Valid() bool {
	switch s {
	case CallInitiated, CallInProgress, CallTransferred,
		CallCompleted, CallFailed, CallNoAnswer, CallBusy, CallCanceled:
		return true
	}
	return false
}

// Terminal reports whether a call in this status accepts no further
// core-driven mutation.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallCompleted, CallFailed, CallNoAnswer, CallBusy, CallCanceled:
		return true
	}
	return false
}

// Call is one end-to-end telephony interaction. The call SID comes from the
// voice gateway, is set at most once, and never changes afterwards.
type Call struct {
	ID              int64      `json:"id"`
	CallSID         string     `json:"call_sid"`
	CallerNumber    string     `json:"caller_number"`
	AgentID         *int64     `json:"agent_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	Duration        *int64     `json:"duration"` // seconds
	Status          CallStatus `json:"status"`
	RecordingURL    string     `json:"recording_url,omitempty"`
	DialogueSummary string     `json:"dialogue_summary,omitempty"`
}
