package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/timing"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/repository"
	"github.com/YoshitsuguKoike/deeflow/internal/infrastructure/transaction"
)

const phaseTimingColumns = `t.id, t.agent_run_id, t.phase, t.started_at, t.completed_at, t.duration_ms,
	t.waiting_approval_at, t.approval_wait_ms`

// PhaseTimingRepositoryImpl implements repository.PhaseTimingRepository with SQLite
type PhaseTimingRepositoryImpl struct {
	db *sql.DB
}

// NewPhaseTimingRepository creates a new SQLite-based phase timing repository
func NewPhaseTimingRepository(db *sql.DB) repository.PhaseTimingRepository {
	return &PhaseTimingRepositoryImpl{db: db}
}

// getDB returns the appropriate database executor from context
func (r *PhaseTimingRepositoryImpl) getDB(ctx context.Context) dbExecutor {
	if tx, ok := transaction.GetTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// Save inserts a new timing row
func (r *PhaseTimingRepositoryImpl) Save(ctx context.Context, t *timing.PhaseTiming) error {
	query := `
		INSERT INTO phase_timings (id, agent_run_id, phase, started_at, completed_at, duration_ms,
			waiting_approval_at, approval_wait_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.getDB(ctx).ExecContext(ctx, query,
		t.ID,
		t.AgentRunID,
		t.Phase,
		formatTime(t.StartedAt),
		nullableTime(t.CompletedAt),
		nullableInt64(t.DurationMs),
		nullableTime(t.WaitingApprovalAt),
		nullableInt64(t.ApprovalWaitMs),
	)
	if err != nil {
		return fmt.Errorf("insert phase timing: %w", err)
	}
	return nil
}

// Update closes a timing row
func (r *PhaseTimingRepositoryImpl) Update(ctx context.Context, id string, completedAt time.Time, durationMs int64) error {
	query := `UPDATE phase_timings SET completed_at = ?, duration_ms = ? WHERE id = ?`

	result, err := r.getDB(ctx).ExecContext(ctx, query, formatTime(completedAt), durationMs, id)
	if err != nil {
		return fmt.Errorf("update phase timing: %w", err)
	}
	return requireTimingRow(result, id)
}

// MarkWaitingApproval records when an interrupt began on the row. A row whose
// wait was already recorded is never reopened.
func (r *PhaseTimingRepositoryImpl) MarkWaitingApproval(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE phase_timings SET waiting_approval_at = ? WHERE id = ? AND approval_wait_ms IS NULL`

	result, err := r.getDB(ctx).ExecContext(ctx, query, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("mark waiting approval: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists int
	err = r.getDB(ctx).QueryRowContext(ctx, `SELECT 1 FROM phase_timings WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("phase timing not found: %s", id)
	}
	if err != nil {
		return fmt.Errorf("check phase timing %s: %w", id, err)
	}
	return fmt.Errorf("approval wait already recorded on phase timing %s", id)
}

// UpdateApprovalWait records the wait only if it is pending
func (r *PhaseTimingRepositoryImpl) UpdateApprovalWait(ctx context.Context, id string, waitMs int64) (bool, error) {
	query := `
		UPDATE phase_timings SET approval_wait_ms = ?
		WHERE id = ? AND waiting_approval_at IS NOT NULL AND approval_wait_ms IS NULL
	`
	result, err := r.getDB(ctx).ExecContext(ctx, query, waitMs, id)
	if err != nil {
		return false, fmt.Errorf("update approval wait: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// FindPendingApproval returns the newest row of a run awaiting approval, or nil
func (r *PhaseTimingRepositoryImpl) FindPendingApproval(ctx context.Context, runID string) (*timing.PhaseTiming, error) {
	query := `SELECT ` + phaseTimingColumns + ` FROM phase_timings t
		WHERE t.agent_run_id = ? AND t.waiting_approval_at IS NOT NULL AND t.approval_wait_ms IS NULL
		ORDER BY t.waiting_approval_at DESC
		LIMIT 1`

	t, err := scanPhaseTiming(r.getDB(ctx).QueryRowContext(ctx, query, runID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pending approval: %w", err)
	}
	return t, nil
}

// FindByRunID returns the timings of a run in start order
func (r *PhaseTimingRepositoryImpl) FindByRunID(ctx context.Context, runID string) ([]*timing.PhaseTiming, error) {
	query := `SELECT ` + phaseTimingColumns + ` FROM phase_timings t
		WHERE t.agent_run_id = ?
		ORDER BY t.started_at ASC, t.id ASC`

	return r.query(ctx, query, runID)
}

// FindByFeatureID returns the timings of every run of a feature
func (r *PhaseTimingRepositoryImpl) FindByFeatureID(ctx context.Context, featureID string) ([]*timing.PhaseTiming, error) {
	query := `SELECT ` + phaseTimingColumns + ` FROM phase_timings t
		JOIN agent_runs r ON r.id = t.agent_run_id
		WHERE r.feature_id = ?
		ORDER BY t.started_at ASC, t.id ASC`

	return r.query(ctx, query, featureID)
}

func (r *PhaseTimingRepositoryImpl) query(ctx context.Context, query string, args ...interface{}) ([]*timing.PhaseTiming, error) {
	rows, err := r.getDB(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query phase timings: %w", err)
	}
	defer rows.Close()

	var timings []*timing.PhaseTiming
	for rows.Next() {
		t, err := scanPhaseTiming(rows)
		if err != nil {
			return nil, fmt.Errorf("scan phase timing: %w", err)
		}
		timings = append(timings, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating phase timings: %w", err)
	}
	return timings, nil
}

func requireTimingRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("phase timing not found: %s", id)
	}
	return nil
}

func scanPhaseTiming(row rowScanner) (*timing.PhaseTiming, error) {
	var (
		t                 timing.PhaseTiming
		startedAt         string
		completedAt       sql.NullString
		durationMs        sql.NullInt64
		waitingApprovalAt sql.NullString
		approvalWaitMs    sql.NullInt64
	)

	err := row.Scan(
		&t.ID,
		&t.AgentRunID,
		&t.Phase,
		&startedAt,
		&completedAt,
		&durationMs,
		&waitingApprovalAt,
		&approvalWaitMs,
	)
	if err != nil {
		return nil, err
	}

	if t.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	if t.WaitingApprovalAt, err = parseNullTime(waitingApprovalAt); err != nil {
		return nil, err
	}
	t.DurationMs = ptrInt64(durationMs)
	t.ApprovalWaitMs = ptrInt64(approvalWaitMs)

	return &t, nil
}
