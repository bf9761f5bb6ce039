package domain

import "time"

// Step is the position of an interaction session in the dialogue.
type Step string

const (
	StepStart        Step = "start"
	StepAwaitingName Step = "awaiting_name"
	StepAwaitingAge  Step = "awaiting_age"
	StepRouting      Step = "routing"
	StepDone         Step = "done"
)

// Session is the call-scoped dialogue state. It lives only inside the
// routing coordinator for the duration of one call and is keyed strictly by
// the gateway-supplied call SID — never by any client-side cookie or shared
// session, so concurrent calls cannot bleed state into each other.
type Session struct {
	CallSID       string    `json:"callSid"`
	Step          Step      `json:"step"`
	CollectedName string    `json:"collectedName,omitempty"`
	CollectedAge  string    `json:"collectedAge,omitempty"`
	Retries       int       `json:"retries"` // missing-input retries on the current step
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Done reports whether the session has reached its terminal step.
func (s Session) Done() bool {
	return s.Step == StepDone
}
