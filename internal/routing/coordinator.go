// Package routing coordinates the dialogue engine with the agent ledger and
// the call store. All events for one call SID are serialized through a keyed
// lock, so the engine's per-session transitions never race even when the
// gateway retries or delivers callbacks concurrently.
package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/dialdesk/internal/domain"
	"github.com/soyeahso/dialdesk/internal/ivr"
	"github.com/soyeahso/dialdesk/internal/logging"
	"github.com/soyeahso/dialdesk/internal/store"
)

// Spoken when persistence fails mid-dialogue: the caller gets a clean
// ending instead of dead air while the failure stays scoped to this call.
const storeFailureApology = "We are unable to process your call right now. Please try again later."

// Notifier receives call and agent updates for fan-out to live dashboard
// subscribers. Implementations must not block.
type Notifier interface {
	CallUpdated(call *domain.Call)
}

// Coordinator owns in-flight interaction sessions and applies engine effects
// to the stores.
type Coordinator struct {
	log     *logging.Logger
	machine *ivr.Machine
	ledger  *store.AgentLedger
	calls   *store.CallStore

	locks *callLocks

	mu       sync.Mutex
	sessions map[string]domain.Session

	notifier Notifier
}

// New creates a coordinator. notifier may be nil.
func New(log *logging.Logger, machine *ivr.Machine, ledger *store.AgentLedger, calls *store.CallStore, notifier Notifier) *Coordinator {
	return &Coordinator{
		log:      log,
		machine:  machine,
		ledger:   ledger,
		calls:    calls,
		locks:    newCallLocks(),
		sessions: make(map[string]domain.Session),
		notifier: notifier,
	}
}

// HandleEvent applies one gateway event to the call's session and returns
// the instructions to render back to the gateway. Events for the same SID
// are handled one at a time; events for an unknown SID after the session
// ended return no instructions.
func (c *Coordinator) HandleEvent(ctx context.Context, ev domain.Event) ([]domain.Instruction, error) {
	if ev.CallSID == "" {
		return nil, errors.New("event has no call SID")
	}

	c.locks.lock(ev.CallSID)
	defer c.locks.unlock(ev.CallSID)

	log := c.log.WithCall(ev.CallSID)

	sess, known := c.getSession(ev.CallSID)
	if !known {
		if ev.Kind != domain.EventConnected {
			// A speech or status callback for a session we no longer hold.
			// Status callbacks still need to settle the persisted record.
			if ev.Kind == domain.EventStatusChanged {
				if err := c.settleStatus(ctx, ev); err != nil {
					return nil, err
				}
			}
			log.Debug().Str("kind", string(ev.Kind)).Msg("event for inactive session ignored")
			return nil, nil
		}
		settled, err := c.ensureCallRecord(ctx, ev)
		if err != nil {
			sess = domain.Session{CallSID: ev.CallSID, Step: domain.StepStart}
			return c.failClosed(ctx, sess, err)
		}
		if settled {
			// The persisted record is already terminal: a replayed connected
			// callback must not restart the dialogue.
			log.Debug().Msg("connected callback for settled call ignored")
			return nil, nil
		}
		sess = domain.Session{CallSID: ev.CallSID, Step: domain.StepStart}
	}

	res := c.machine.Advance(sess, ev)
	if err := c.applyEffects(ctx, ev.CallSID, res.Effects); err != nil {
		return c.failClosed(ctx, res.Session, err)
	}

	if res.NeedsAgent {
		claim, err := c.ledger.ClaimAvailableAgent(ctx)
		if err != nil {
			// Fail closed: the caller gets the no-agent outcome rather than
			// a dropped call with a dangling session.
			log.Error().Err(err).Msg("agent claim failed")
			claim = nil
		} else if claim != nil {
			log.Info().Int64("agentId", claim.AgentID).Msg("routing caller to agent")
		} else {
			log.Info().Msg("no agents available")
		}

		routed := c.machine.ResolveRouting(res.Session, claim)
		if err := c.applyEffects(ctx, ev.CallSID, routed.Effects); err != nil {
			// The agent stays claimed until the sweeper recovers it.
			return c.failClosed(ctx, routed.Session, err)
		}
		res.Instructions = append(res.Instructions, routed.Instructions...)
		res.Session = routed.Session
	}

	c.putSession(res.Session)
	return res.Instructions, nil
}

// RegisterOutbound creates the call record and session for a call this
// service placed itself, before the carrier delivers the first callback.
func (c *Coordinator) RegisterOutbound(ctx context.Context, callSID, toNumber string) error {
	c.locks.lock(callSID)
	defer c.locks.unlock(callSID)

	settled, err := c.ensureCallRecord(ctx, domain.Event{CallSID: callSID, Caller: toNumber})
	if err != nil {
		return err
	}
	if settled {
		return nil
	}
	if _, known := c.getSession(callSID); !known {
		c.putSession(domain.Session{CallSID: callSID, Step: domain.StepStart})
	}
	return nil
}

// ActiveSessions returns the number of sessions currently held in memory.
func (c *Coordinator) ActiveSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// EvictIdle cancels sessions whose last activity predates cutoff: the call
// record is marked canceled, any linked agent is released, and the session
// is dropped. Returns the SIDs evicted.
func (c *Coordinator) EvictIdle(ctx context.Context, cutoff time.Time) []string {
	c.mu.Lock()
	var stale []string
	for sid, sess := range c.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			stale = append(stale, sid)
		}
	}
	c.mu.Unlock()

	var evicted []string
	for _, sid := range stale {
		c.locks.lock(sid)
		sess, known := c.getSession(sid)
		if !known || !sess.UpdatedAt.Before(cutoff) {
			c.locks.unlock(sid)
			continue
		}
		if !sess.Done() {
			if err := c.terminate(ctx, sid, domain.CallCanceled); err != nil {
				c.log.WithCall(sid).Error().Err(err).Msg("evicting idle session")
				c.locks.unlock(sid)
				continue
			}
		}
		c.dropSession(sid)
		c.locks.unlock(sid)
		evicted = append(evicted, sid)
		c.log.WithCall(sid).Info().Msg("idle session evicted")
	}
	return evicted
}

// failClosed ends a session after a persistence failure. The transition
// logic itself never fails; when its side effects do, the caller still gets
// a terminal outcome instead of a call stuck in limbo.
func (c *Coordinator) failClosed(ctx context.Context, sess domain.Session, cause error) ([]domain.Instruction, error) {
	c.log.WithCall(sess.CallSID).Error().Err(cause).Msg("store failure, ending call")

	sess.Step = domain.StepDone
	// Best effort: the store that just failed may refuse this too.
	if _, err := c.calls.SetTerminalStatus(ctx, sess.CallSID, domain.CallFailed, time.Now().UTC()); err == nil {
		c.notifyCall(ctx, sess.CallSID)
	}
	c.putSession(sess)

	return []domain.Instruction{
		domain.Say(storeFailureApology),
		domain.Hangup(),
	}, nil
}

func (c *Coordinator) getSession(callSID string) (domain.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[callSID]
	return sess, ok
}

func (c *Coordinator) putSession(sess domain.Session) {
	sess.UpdatedAt = time.Now().UTC()
	c.mu.Lock()
	if sess.Done() {
		delete(c.sessions, sess.CallSID)
	} else {
		c.sessions[sess.CallSID] = sess
	}
	c.mu.Unlock()
}

func (c *Coordinator) dropSession(callSID string) {
	c.mu.Lock()
	delete(c.sessions, callSID)
	c.mu.Unlock()
}

// ensureCallRecord creates the call record if none exists. Reports
// settled=true when the persisted record is already terminal, in which case
// no new session may be started for the SID.
func (c *Coordinator) ensureCallRecord(ctx context.Context, ev domain.Event) (settled bool, err error) {
	call, err := c.calls.GetBySID(ctx, ev.CallSID)
	if err == nil {
		return call.Status.Terminal(), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if _, err := c.calls.Create(ctx, ev.CallSID, ev.Caller, time.Now().UTC()); err != nil {
		return false, fmt.Errorf("creating call record: %w", err)
	}
	c.notifyCall(ctx, ev.CallSID)
	return false, nil
}

// settleStatus applies a terminal carrier status for a call whose session is
// gone, so late completion callbacks still close out the record and free the
// agent.
func (c *Coordinator) settleStatus(ctx context.Context, ev domain.Event) error {
	if !ev.CallStatus.Terminal() {
		return nil
	}
	return c.terminate(ctx, ev.CallSID, ev.CallStatus)
}

func (c *Coordinator) applyEffects(ctx context.Context, callSID string, effects []ivr.Effect) error {
	for _, eff := range effects {
		var err error
		switch eff.Kind {
		case ivr.EffectMarkInProgress:
			err = c.calls.MarkInProgress(ctx, callSID)
		case ivr.EffectRecordSummary:
			err = c.calls.RecordDialogueSummary(ctx, callSID, eff.Summary)
		case ivr.EffectLinkAgent:
			var linked bool
			linked, err = c.calls.LinkAgentAndTransfer(ctx, callSID, eff.AgentID)
			if err == nil && !linked {
				// The record went terminal first; return the claim instead
				// of stranding the agent on_call.
				c.log.WithCall(callSID).Warn().Int64("agentId", eff.AgentID).Msg("call settled before transfer, releasing agent")
				if _, err = c.ledger.ReleaseAgent(ctx, eff.AgentID); err == nil {
					continue
				}
			}
		case ivr.EffectTerminal:
			err = c.terminate(ctx, callSID, eff.Status)
			// terminate publishes its own update.
			if err == nil {
				continue
			}
		default:
			err = fmt.Errorf("unknown effect kind %q", eff.Kind)
		}
		if err != nil {
			return err
		}
		c.notifyCall(ctx, callSID)
	}
	return nil
}

// terminate records a terminal status and releases the linked agent exactly
// once. The store rejects a second terminal transition, which makes retried
// status callbacks harmless.
func (c *Coordinator) terminate(ctx context.Context, callSID string, status domain.CallStatus) error {
	applied, err := c.calls.SetTerminalStatus(ctx, callSID, status, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if !applied {
		return nil
	}

	call, err := c.calls.GetBySID(ctx, callSID)
	if err != nil {
		return err
	}
	if call.AgentID != nil {
		released, err := c.ledger.ReleaseAgent(ctx, *call.AgentID)
		if err != nil {
			return fmt.Errorf("releasing agent %d: %w", *call.AgentID, err)
		}
		if released {
			c.log.WithCall(callSID).Info().Int64("agentId", *call.AgentID).Msg("agent released")
		}
	}
	c.notifyCall(ctx, callSID)
	return nil
}

func (c *Coordinator) notifyCall(ctx context.Context, callSID string) {
	if c.notifier == nil {
		return
	}
	call, err := c.calls.GetBySID(ctx, callSID)
	if err != nil {
		return
	}
	c.notifier.CallUpdated(call)
}
