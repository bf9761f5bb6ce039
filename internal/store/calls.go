package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/dialdesk/internal/domain"
)

// CallStore persists one record per call attempt. All operations are keyed
// by the immutable call SID; nothing here changes a SID once set. Concurrent
// calls never share a SID, so these updates need no cross-call locking.
type CallStore struct {
	db *DB
}

// NewCallStore creates a call store over the given database.
func NewCallStore(db *DB) *CallStore {
	return &CallStore{db: db}
}

// Create inserts a new call record with status initiated.
func (s *CallStore) Create(ctx context.Context, callSID, callerNumber string, start time.Time) (int64, error) {
	res, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO calls (call_sid, caller_number, start_time, status) VALUES (?, ?, ?, ?)`,
		callSID, callerNumber, start.UTC().Format(time.RFC3339), domain.CallInitiated,
	)
	if err != nil {
		return 0, fmt.Errorf("creating call %s: %w", callSID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("creating call %s: %w", callSID, err)
	}
	s.db.log.Info().Str("callSid", callSID).Str("caller", callerNumber).Msg("call created")
	return id, nil
}

// MarkInProgress moves a call to in_progress when the carrier connects it.
// Conditional on the current status so a late callback cannot resurrect a
// terminal record.
func (s *CallStore) MarkInProgress(ctx context.Context, callSID string) error {
	_, err := s.db.sql.ExecContext(ctx,
		`UPDATE calls SET status = ? WHERE call_sid = ? AND status = ?`,
		domain.CallInProgress, callSID, domain.CallInitiated,
	)
	if err != nil {
		return fmt.Errorf("marking call %s in progress: %w", callSID, err)
	}
	return nil
}

// RecordDialogueSummary stores the collected-dialogue summary for a call.
// Idempotent upsert keyed by SID; an unknown SID is a no-op, not an error,
// since age collection can complete before the call record is committed.
func (s *CallStore) RecordDialogueSummary(ctx context.Context, callSID, text string) error {
	_, err := s.db.sql.ExecContext(ctx,
		`UPDATE calls SET dialogue_summary = ? WHERE call_sid = ?`,
		text, callSID,
	)
	if err != nil {
		return fmt.Errorf("recording summary for call %s: %w", callSID, err)
	}
	return nil
}

// LinkAgentAndTransfer links a claimed agent to the call and marks it
// transferred. Called only after the claim has committed. Conditional on the
// record not already being terminal, so a replayed dialogue callback cannot
// overwrite a settled call. Reports whether the link was applied.
func (s *CallStore) LinkAgentAndTransfer(ctx context.Context, callSID string, agentID int64) (bool, error) {
	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE calls SET agent_id = ?, status = ?
		 WHERE call_sid = ?
		   AND status NOT IN (?, ?, ?, ?, ?)`,
		agentID, domain.CallTransferred, callSID,
		domain.CallCompleted, domain.CallFailed, domain.CallNoAnswer, domain.CallBusy, domain.CallCanceled,
	)
	if err != nil {
		return false, fmt.Errorf("linking agent %d to call %s: %w", agentID, callSID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("linking agent %d to call %s: %w", agentID, callSID, err)
	}
	if n == 1 {
		s.db.log.Info().Str("callSid", callSID).Int64("agentId", agentID).Msg("call transferred to agent")
	}
	return n == 1, nil
}

// SetTerminalStatus records a terminal status with end time and derived
// duration. A record already in a terminal status is left untouched, which
// makes duplicate gateway callbacks harmless. Reports whether the record
// changed.
func (s *CallStore) SetTerminalStatus(ctx context.Context, callSID string, status domain.CallStatus, end time.Time) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("%w: %q is not terminal", ErrInvalidStatus, status)
	}

	call, err := s.GetBySID(ctx, callSID)
	if err != nil {
		return false, err
	}
	if call.Status.Terminal() {
		return false, nil
	}

	duration := int64(end.Sub(call.StartTime) / time.Second)
	if duration < 0 {
		duration = 0
	}

	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE calls SET status = ?, end_time = ?, duration = ?
		 WHERE call_sid = ?
		   AND status NOT IN (?, ?, ?, ?, ?)`,
		status, end.UTC().Format(time.RFC3339), duration, callSID,
		domain.CallCompleted, domain.CallFailed, domain.CallNoAnswer, domain.CallBusy, domain.CallCanceled,
	)
	if err != nil {
		return false, fmt.Errorf("setting terminal status for call %s: %w", callSID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("setting terminal status for call %s: %w", callSID, err)
	}
	if n == 1 {
		s.db.log.Info().Str("callSid", callSID).Str("status", string(status)).Msg("call reached terminal status")
	}
	return n == 1, nil
}

// GetBySID returns a call by its SID.
func (s *CallStore) GetBySID(ctx context.Context, callSID string) (*domain.Call, error) {
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT id, call_sid, caller_number, agent_id, start_time, end_time, duration, status, recording_url, dialogue_summary
		 FROM calls WHERE call_sid = ?`, callSID)
	call, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: call %s", ErrNotFound, callSID)
	}
	return call, err
}

// List returns all calls, newest first.
func (s *CallStore) List(ctx context.Context) ([]domain.Call, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, call_sid, caller_number, agent_id, start_time, end_time, duration, status, recording_url, dialogue_summary
		 FROM calls ORDER BY start_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing calls: %w", err)
	}
	defer rows.Close()

	var calls []domain.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, *call)
	}
	return calls, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (*domain.Call, error) {
	var (
		c         domain.Call
		sid       sql.NullString
		agentID   sql.NullInt64
		startTime sql.NullString
		endTime   sql.NullString
		duration  sql.NullInt64
		status    sql.NullString
		recording sql.NullString
		summary   sql.NullString
	)
	err := row.Scan(&c.ID, &sid, &c.CallerNumber, &agentID, &startTime, &endTime, &duration, &status, &recording, &summary)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning call: %w", err)
	}

	c.CallSID = sid.String
	if agentID.Valid {
		c.AgentID = &agentID.Int64
	}
	if startTime.Valid {
		c.StartTime = parseTime(startTime.String)
	}
	if endTime.Valid {
		t := parseTime(endTime.String)
		c.EndTime = &t
	}
	if duration.Valid {
		c.Duration = &duration.Int64
	}
	c.Status = domain.CallStatus(status.String)
	c.RecordingURL = recording.String
	c.DialogueSummary = summary.String
	return &c, nil
}
