// Package ivr implements the interaction state machine that drives the
// automated dialogue: collect the caller's name, collect their age, then
// route to an agent. Transitions are pure — the machine never touches the
// ledger or the store itself; it returns effect requests for the routing
// coordinator to apply.
package ivr

import (
	"fmt"

	"github.com/soyeahso/dialdesk/internal/domain"
)

// Callback action paths, shared with the gateway routes.
const (
	ActionVoice      = "/voice"
	ActionGatherName = "/gather_name"
	ActionGatherAge  = "/gather_age"
)

const (
	promptWelcome    = "Welcome to our call center. To help us direct your call, please state your full name."
	promptMissedName = "I didn't catch your name. Please state your full name."
	promptMissedAge  = "I didn't catch your age. Please state your age."
	promptRetryCap   = "We were unable to collect your information. Please try your call again later."
)

// EffectKind discriminates side-effect requests emitted by transitions.
type EffectKind string

const (
	// EffectMarkInProgress moves the call record to in_progress.
	EffectMarkInProgress EffectKind = "mark_in_progress"
	// EffectRecordSummary persists the dialogue summary against the call.
	EffectRecordSummary EffectKind = "record_summary"
	// EffectLinkAgent links a claimed agent and marks the call transferred.
	EffectLinkAgent EffectKind = "link_agent"
	// EffectTerminal records a terminal call status.
	EffectTerminal EffectKind = "terminal"
)

// Effect is a side-effect request for the coordinator to apply against the
// call record store. Effects are applied in order, before instructions are
// rendered back to the gateway.
type Effect struct {
	Kind    EffectKind
	Summary string            // EffectRecordSummary
	AgentID int64             // EffectLinkAgent
	Status  domain.CallStatus // EffectTerminal
}

// Result is the outcome of one transition: the updated session, the
// instructions to render to the gateway, and the effects to apply.
// NeedsAgent signals that the session has entered Routing and the
// coordinator must claim an agent and call ResolveRouting.
type Result struct {
	Session      domain.Session
	Instructions []domain.Instruction
	Effects      []Effect
	NeedsAgent   bool
}

// Machine holds the dialogue policy. Transition logic is pure: the same
// session and event always produce the same result.
type Machine struct {
	maxRetries int
}

// New creates a machine with the given missing-input retry cap per
// collection step.
func New(maxRetries int) *Machine {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Machine{maxRetries: maxRetries}
}

// Advance applies one gateway event to a session. Events for a session
// already at Done produce no state change and no effects, which makes
// duplicate gateway callbacks harmless.
func (m *Machine) Advance(sess domain.Session, ev domain.Event) Result {
	if sess.Done() {
		return Result{Session: sess}
	}

	switch ev.Kind {
	case domain.EventConnected:
		return m.onConnected(sess)
	case domain.EventSpeech:
		return m.onSpeech(sess, ev.Speech)
	case domain.EventStatusChanged:
		return m.onStatusChanged(sess, ev.CallStatus)
	default:
		return Result{Session: sess}
	}
}

func (m *Machine) onConnected(sess domain.Session) Result {
	switch sess.Step {
	case domain.StepStart:
		sess.Step = domain.StepAwaitingName
		sess.Retries = 0
		return Result{
			Session:      sess,
			Instructions: []domain.Instruction{domain.Gather(ActionGatherName, promptWelcome)},
			Effects:      []Effect{{Kind: EffectMarkInProgress}},
		}
	case domain.StepAwaitingName:
		// Redirect back to the entry action (missed-name loop) or a
		// duplicate connected callback: re-issue the name gather.
		return Result{
			Session:      sess,
			Instructions: []domain.Instruction{domain.Gather(ActionGatherName, promptWelcome)},
		}
	case domain.StepAwaitingAge:
		return Result{
			Session:      sess,
			Instructions: []domain.Instruction{domain.Gather(ActionGatherAge, promptMissedAge)},
		}
	default:
		return Result{Session: sess}
	}
}

func (m *Machine) onSpeech(sess domain.Session, speech string) Result {
	switch sess.Step {
	case domain.StepAwaitingName:
		if speech == "" {
			return m.missedInput(sess, promptMissedName, ActionVoice)
		}
		sess.CollectedName = speech
		sess.Step = domain.StepAwaitingAge
		sess.Retries = 0
		prompt := fmt.Sprintf("Thank you, %s. Now, please state your age.", speech)
		return Result{
			Session:      sess,
			Instructions: []domain.Instruction{domain.Gather(ActionGatherAge, prompt)},
		}

	case domain.StepAwaitingAge:
		if speech == "" {
			return m.missedInput(sess, promptMissedAge, ActionGatherAge)
		}
		sess.CollectedAge = speech
		sess.Step = domain.StepRouting
		sess.Retries = 0
		summary := fmt.Sprintf("Name: %s, Age: %s", callerName(sess), speech)
		return Result{
			Session:    sess,
			Effects:    []Effect{{Kind: EffectRecordSummary, Summary: summary}},
			NeedsAgent: true,
		}

	default:
		// Speech outside a collection step (late gateway retry): ignore.
		return Result{Session: sess}
	}
}

// missedInput re-prompts for the current step, or gives up once the retry
// cap is reached so an unresponsive caller cannot loop forever.
func (m *Machine) missedInput(sess domain.Session, prompt, action string) Result {
	sess.Retries++
	if sess.Retries >= m.maxRetries {
		sess.Step = domain.StepDone
		return Result{
			Session: sess,
			Instructions: []domain.Instruction{
				domain.Say(promptRetryCap),
				domain.Hangup(),
			},
			Effects: []Effect{{Kind: EffectTerminal, Status: domain.CallFailed}},
		}
	}

	if action == ActionVoice {
		// The name prompt loops through the entry action, which re-gathers.
		return Result{
			Session: sess,
			Instructions: []domain.Instruction{
				domain.Say(prompt),
				domain.Redirect(ActionVoice),
			},
		}
	}
	return Result{
		Session:      sess,
		Instructions: []domain.Instruction{domain.Gather(action, prompt)},
	}
}

func (m *Machine) onStatusChanged(sess domain.Session, status domain.CallStatus) Result {
	if !status.Terminal() {
		return Result{Session: sess}
	}
	sess.Step = domain.StepDone
	return Result{
		Session: sess,
		Effects: []Effect{{Kind: EffectTerminal, Status: status}},
	}
}

// ResolveRouting completes the Routing step once the coordinator has
// attempted a claim. A nil claim means no agent was available (or the claim
// path failed closed); either way the session ends in Done.
func (m *Machine) ResolveRouting(sess domain.Session, claim *domain.AgentClaim) Result {
	name := callerName(sess)

	if claim == nil {
		sess.Step = domain.StepDone
		apology := fmt.Sprintf(
			"Thank you, %s. You stated your age as %s. Unfortunately, no agents are currently available. Please try again later.",
			name, sess.CollectedAge)
		return Result{
			Session: sess,
			Instructions: []domain.Instruction{
				domain.Say(apology),
				domain.Hangup(),
			},
			Effects: []Effect{{Kind: EffectTerminal, Status: domain.CallFailed}},
		}
	}

	sess.Step = domain.StepDone
	connect := fmt.Sprintf(
		"Thank you, %s. You stated your age as %s. Please wait while I connect you to an available agent.",
		name, sess.CollectedAge)
	return Result{
		Session: sess,
		Instructions: []domain.Instruction{
			domain.Say(connect),
			domain.Dial(claim.PhoneNumber),
		},
		Effects: []Effect{{Kind: EffectLinkAgent, AgentID: claim.AgentID}},
	}
}

func callerName(sess domain.Session) string {
	if sess.CollectedName == "" {
		return "caller"
	}
	return sess.CollectedName
}
