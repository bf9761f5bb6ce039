package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/soyeahso/dialdesk/internal/domain"
)

// MetricsStore computes the dashboard's read-side aggregations. Pure SQL
// reads; no locking, no core logic.
type MetricsStore struct {
	db *DB
}

// NewMetricsStore creates a metrics store over the given database.
func NewMetricsStore(db *DB) *MetricsStore {
	return &MetricsStore{db: db}
}

// DailyCalls is today's call count with the percent change vs. yesterday.
type DailyCalls struct {
	Total  int     `json:"total"`
	Change float64 `json:"change"`
}

// AvgDuration is the average completed-call duration over the last 24 hours
// with the percent change vs. the previous 24 hours.
type AvgDuration struct {
	Seconds int     `json:"seconds"`
	Change  float64 `json:"change"`
}

// Availability is the current agent count per status.
type Availability struct {
	Available int `json:"available"`
	OnCall    int `json:"on_call"`
	Offline   int `json:"offline"`
	Total     int `json:"total"`
}

// DailyCalls returns call volume for the UTC day containing now, compared to
// the previous day.
func (m *MetricsStore) DailyCalls(ctx context.Context, now time.Time) (DailyCalls, error) {
	today := now.UTC().Format(time.DateOnly)
	yesterday := now.UTC().AddDate(0, 0, -1).Format(time.DateOnly)

	todayCount, err := m.countCallsOn(ctx, today)
	if err != nil {
		return DailyCalls{}, err
	}
	yesterdayCount, err := m.countCallsOn(ctx, yesterday)
	if err != nil {
		return DailyCalls{}, err
	}

	return DailyCalls{
		Total:  todayCount,
		Change: percentChange(float64(todayCount), float64(yesterdayCount)),
	}, nil
}

func (m *MetricsStore) countCallsOn(ctx context.Context, day string) (int, error) {
	var count int
	err := m.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM calls WHERE date(start_time) = ?`, day,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting calls on %s: %w", day, err)
	}
	return count, nil
}

// AvgCallDuration returns the average duration of completed calls that
// started in the last 24 hours, compared to the 24 hours before that.
func (m *MetricsStore) AvgCallDuration(ctx context.Context, now time.Time) (AvgDuration, error) {
	dayAgo := now.UTC().Add(-24 * time.Hour).Format(time.RFC3339)
	twoDaysAgo := now.UTC().Add(-48 * time.Hour).Format(time.RFC3339)

	current, err := m.avgDurationBetween(ctx, dayAgo, "")
	if err != nil {
		return AvgDuration{}, err
	}
	previous, err := m.avgDurationBetween(ctx, twoDaysAgo, dayAgo)
	if err != nil {
		return AvgDuration{}, err
	}

	return AvgDuration{
		Seconds: int(current + 0.5),
		Change:  percentChange(current, previous),
	}, nil
}

func (m *MetricsStore) avgDurationBetween(ctx context.Context, from, to string) (float64, error) {
	query := `SELECT AVG(duration) FROM calls
	          WHERE status = ? AND duration IS NOT NULL AND start_time >= ?`
	args := []any{domain.CallCompleted, from}
	if to != "" {
		query += ` AND start_time < ?`
		args = append(args, to)
	}

	var avg sql.NullFloat64
	if err := m.db.sql.QueryRowContext(ctx, query, args...).Scan(&avg); err != nil {
		return 0, fmt.Errorf("averaging call duration: %w", err)
	}
	return avg.Float64, nil
}

// AgentAvailability returns the current agent counts by status.
func (m *MetricsStore) AgentAvailability(ctx context.Context) (Availability, error) {
	rows, err := m.db.sql.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM agents GROUP BY status`)
	if err != nil {
		return Availability{}, fmt.Errorf("counting agents by status: %w", err)
	}
	defer rows.Close()

	var out Availability
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return Availability{}, fmt.Errorf("scanning agent counts: %w", err)
		}
		out.Total += count
		switch domain.AgentStatus(status) {
		case domain.AgentAvailable:
			out.Available = count
		case domain.AgentOnCall:
			out.OnCall = count
		case domain.AgentOffline:
			out.Offline = count
		}
	}
	return out, rows.Err()
}

// percentChange returns the change from previous to current as a percentage
// rounded to one decimal place. Zero previous yields zero change.
func percentChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	change := (current - previous) / previous * 100
	return float64(int(change*10+sign(change)*0.5)) / 10
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}
