package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/dialdesk/internal/domain"
)

// claimAttempts bounds the rescan loop when a candidate agent is taken
// between the scan and the conditional update. Exhaustion is reported as
// "no agent available", never as an error.
const claimAttempts = 3

// AgentLedger is the authoritative record of agents and their availability.
// All status transitions go through its claim/release/set operations.
type AgentLedger struct {
	db *DB
}

// NewAgentLedger creates a ledger over the given database.
func NewAgentLedger(db *DB) *AgentLedger {
	return &AgentLedger{db: db}
}

// ClaimAvailableAgent atomically selects the available agent with the lowest
// id, flips it to on_call, and returns its identity and phone number.
// Returns (nil, nil) when no agent is available.
//
// Mutual exclusion: the flip is a conditional UPDATE keyed on the agent's id
// and current status, so of any number of concurrent claimants only one can
// win a given agent — the rest see zero rows affected and rescan. This holds
// across process instances sharing the database, not just goroutines.
func (l *AgentLedger) ClaimAvailableAgent(ctx context.Context) (*domain.AgentClaim, error) {
	for range claimAttempts {
		var (
			id    int64
			phone string
		)
		err := l.db.sql.QueryRowContext(ctx,
			`SELECT id, phone_number FROM agents
			 WHERE status = ? ORDER BY id LIMIT 1`, domain.AgentAvailable,
		).Scan(&id, &phone)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("scanning for available agent: %w", err)
		}

		res, err := l.db.sql.ExecContext(ctx,
			`UPDATE agents SET status = ?, last_status_update = ?
			 WHERE id = ? AND status = ?`,
			domain.AgentOnCall, now(), id, domain.AgentAvailable,
		)
		if err != nil {
			return nil, fmt.Errorf("claiming agent %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claiming agent %d: %w", id, err)
		}
		if n == 1 {
			l.db.log.Info().Int64("agentId", id).Msg("agent claimed")
			return &domain.AgentClaim{AgentID: id, PhoneNumber: phone}, nil
		}

		// Lost the race for this row; another claimant took it. Rescan.
		l.db.log.Debug().Int64("agentId", id).Msg("claim conflict, rescanning")
	}
	return nil, nil
}

// ReleaseAgent returns a claimed agent to the available pool. The update is
// conditional on the agent being on_call, so a second release is a no-op.
// Reports whether the release actually changed the agent's status.
func (l *AgentLedger) ReleaseAgent(ctx context.Context, agentID int64) (bool, error) {
	res, err := l.db.sql.ExecContext(ctx,
		`UPDATE agents SET status = ?, last_status_update = ?
		 WHERE id = ? AND status = ?`,
		domain.AgentAvailable, now(), agentID, domain.AgentOnCall,
	)
	if err != nil {
		return false, fmt.Errorf("releasing agent %d: %w", agentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("releasing agent %d: %w", agentID, err)
	}
	if n == 1 {
		l.db.log.Info().Int64("agentId", agentID).Msg("agent released")
	}
	return n == 1, nil
}

// SetStatus is the administrative update: status and/or phone number.
// Returns the updated agent. Fails with ErrNotFound for an unknown id and
// ErrInvalidStatus for a status outside the closed set.
func (l *AgentLedger) SetStatus(ctx context.Context, agentID int64, status domain.AgentStatus, phoneNumber string) (*domain.Agent, error) {
	if status == "" && phoneNumber == "" {
		return nil, fmt.Errorf("%w: no status or phone number provided", ErrInvalidStatus)
	}
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var (
		res sql.Result
		err error
	)
	switch {
	case status != "" && phoneNumber != "":
		res, err = l.db.sql.ExecContext(ctx,
			`UPDATE agents SET status = ?, last_status_update = ?, phone_number = ? WHERE id = ?`,
			status, now(), phoneNumber, agentID)
	case status != "":
		res, err = l.db.sql.ExecContext(ctx,
			`UPDATE agents SET status = ?, last_status_update = ? WHERE id = ?`,
			status, now(), agentID)
	default:
		res, err = l.db.sql.ExecContext(ctx,
			`UPDATE agents SET phone_number = ? WHERE id = ?`,
			phoneNumber, agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("updating agent %d: %w", agentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("updating agent %d: %w", agentID, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: agent %d", ErrNotFound, agentID)
	}

	return l.Get(ctx, agentID)
}

// Get returns a single agent by id.
func (l *AgentLedger) Get(ctx context.Context, agentID int64) (*domain.Agent, error) {
	var (
		a       domain.Agent
		updated string
	)
	err := l.db.sql.QueryRowContext(ctx,
		`SELECT id, name, phone_number, status, last_status_update FROM agents WHERE id = ?`,
		agentID,
	).Scan(&a.ID, &a.Name, &a.PhoneNumber, &a.Status, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: agent %d", ErrNotFound, agentID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching agent %d: %w", agentID, err)
	}
	a.LastStatusUpdate = parseTime(updated)
	return &a, nil
}

// List returns all agents ordered by id.
func (l *AgentLedger) List(ctx context.Context) ([]domain.Agent, error) {
	rows, err := l.db.sql.QueryContext(ctx,
		`SELECT id, name, phone_number, status, last_status_update FROM agents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing agents: %w", err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		var (
			a       domain.Agent
			updated string
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.PhoneNumber, &a.Status, &updated); err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		a.LastStatusUpdate = parseTime(updated)
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// ReleaseStuck releases agents that have been on_call longer than the cutoff
// with no transferred call to show for it. Used by the maintenance sweeper to
// recover from missed status callbacks. An agent on a legitimate long
// conversation still has its call in status transferred and is left alone.
// Returns the ids of the agents released.
func (l *AgentLedger) ReleaseStuck(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := l.db.sql.QueryContext(ctx,
		`SELECT a.id FROM agents a
		 WHERE a.status = ? AND a.last_status_update < ?
		   AND NOT EXISTS (
		     SELECT 1 FROM calls c WHERE c.agent_id = a.id AND c.status = ?
		   )`,
		domain.AgentOnCall, cutoff.UTC().Format(time.RFC3339), domain.CallTransferred,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning stuck agents: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning stuck agent: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var released []int64
	for _, id := range ids {
		ok, err := l.ReleaseAgent(ctx, id)
		if err != nil {
			return released, err
		}
		if ok {
			released = append(released, id)
		}
	}
	return released, nil
}

// now returns the canonical stored-time representation.
func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// parseTime reads stored timestamps, tolerating both the Go-written RFC3339
// form and SQLite's datetime('now') default used by seed rows.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.DateTime, s)
	return t
}
