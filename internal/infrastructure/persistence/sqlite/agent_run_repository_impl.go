package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/agentrun"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/repository"
	"github.com/YoshitsuguKoike/deeflow/internal/infrastructure/transaction"
)

const agentRunColumns = `id, agent_type, agent_name, status, prompt, thread_id, feature_id, pid,
	result, error, approval_gates, started_at, completed_at, created_at, updated_at`

// AgentRunRepositoryImpl implements repository.AgentRunRepository with SQLite
type AgentRunRepositoryImpl struct {
	db *sql.DB
}

// NewAgentRunRepository creates a new SQLite-based agent run repository
func NewAgentRunRepository(db *sql.DB) repository.AgentRunRepository {
	return &AgentRunRepositoryImpl{db: db}
}

// getDB returns the appropriate database executor from context
func (r *AgentRunRepositoryImpl) getDB(ctx context.Context) dbExecutor {
	if tx, ok := transaction.GetTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// Create inserts a new run
func (r *AgentRunRepositoryImpl) Create(ctx context.Context, run *agentrun.AgentRun) error {
	gates, err := marshalNullableJSON(run.ApprovalGates, run.ApprovalGates == nil)
	if err != nil {
		return fmt.Errorf("marshal approval gates: %w", err)
	}

	var pid interface{}
	if run.PID != nil {
		pid = *run.PID
	}

	query := `INSERT INTO agent_runs (` + agentRunColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.getDB(ctx).ExecContext(ctx, query,
		run.ID,
		run.AgentType,
		run.AgentName,
		run.Status.String(),
		run.Prompt,
		run.ThreadID,
		run.FeatureID,
		pid,
		run.Result,
		run.Error,
		gates,
		nullableTime(run.StartedAt),
		nullableTime(run.CompletedAt),
		formatTime(run.CreatedAt),
		formatTime(run.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) && strings.Contains(err.Error(), "feature_id") {
			return execution.ErrActiveRunExists.WithDetails(map[string]interface{}{
				"feature_id": run.FeatureID,
			})
		}
		return fmt.Errorf("insert agent run: %w", err)
	}

	return nil
}

// FindByID retrieves a run by ID
func (r *AgentRunRepositoryImpl) FindByID(ctx context.Context, id string) (*agentrun.AgentRun, error) {
	query := `SELECT ` + agentRunColumns + ` FROM agent_runs WHERE id = ?`

	run, err := scanAgentRun(r.getDB(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, execution.ErrRunNotFound.WithDetails(map[string]interface{}{"run_id": id})
	}
	if err != nil {
		return nil, fmt.Errorf("find agent run: %w", err)
	}
	return run, nil
}

// FindActiveByFeature returns the non-terminal run of a feature, or nil
func (r *AgentRunRepositoryImpl) FindActiveByFeature(ctx context.Context, featureID string) (*agentrun.AgentRun, error) {
	query := `SELECT ` + agentRunColumns + ` FROM agent_runs
		WHERE feature_id = ? AND status IN ('pending', 'running', 'waiting_approval')
		ORDER BY created_at DESC LIMIT 1`

	run, err := scanAgentRun(r.getDB(ctx).QueryRowContext(ctx, query, featureID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active agent run: %w", err)
	}
	return run, nil
}

// List returns runs matching filter, newest first
func (r *AgentRunRepositoryImpl) List(ctx context.Context, filter repository.AgentRunFilter) ([]*agentrun.AgentRun, error) {
	query := `SELECT ` + agentRunColumns + ` FROM agent_runs WHERE 1 = 1`
	var args []interface{}

	if filter.FeatureID != "" {
		query += ` AND feature_id = ?`
		args = append(args, filter.FeatureID)
	}
	if len(filter.Statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(filter.Statuses)) + `)`
		for _, s := range filter.Statuses {
			args = append(args, s.String())
		}
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.getDB(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query agent runs: %w", err)
	}
	defer rows.Close()

	var runs []*agentrun.AgentRun
	for rows.Next() {
		run, err := scanAgentRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent runs: %w", err)
	}

	return runs, nil
}

// UpdateStatus sets the status and the columns present in update
func (r *AgentRunRepositoryImpl) UpdateStatus(ctx context.Context, id string, status agentrun.RunStatus, update repository.RunStatusUpdate) error {
	set, args := buildRunStatusUpdate(status, update, time.Now())
	args = append(args, id)

	result, err := r.getDB(ctx).ExecContext(ctx, `UPDATE agent_runs SET `+set+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update agent run status: %w", err)
	}
	return requireRowAffected(result, id)
}

// CompareAndSetStatus updates only when the current status is one of expected
func (r *AgentRunRepositoryImpl) CompareAndSetStatus(
	ctx context.Context,
	id string,
	expected []agentrun.RunStatus,
	status agentrun.RunStatus,
	update repository.RunStatusUpdate,
) (bool, error) {
	if len(expected) == 0 {
		return false, fmt.Errorf("compare and set: no expected status")
	}

	set, args := buildRunStatusUpdate(status, update, time.Now())
	args = append(args, id)
	for _, s := range expected {
		args = append(args, s.String())
	}

	query := `UPDATE agent_runs SET ` + set + ` WHERE id = ? AND status IN (` + placeholders(len(expected)) + `)`
	result, err := r.getDB(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("compare and set agent run status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}

	if _, err := r.FindByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// UpdatePID records or clears the worker pid. A pid is only recorded while
// the run is pending or running, so a worker that already suspended or
// finished the run cannot leave a stale pid behind.
func (r *AgentRunRepositoryImpl) UpdatePID(ctx context.Context, id string, pid *int) error {
	query := `UPDATE agent_runs SET pid = ?, updated_at = ? WHERE id = ?`
	args := []interface{}{nil, formatTime(time.Now()), id}
	if pid != nil {
		args[0] = *pid
		query += ` AND status IN (?, ?)`
		args = append(args, agentrun.StatusPending.String(), agentrun.StatusRunning.String())
	}

	result, err := r.getDB(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update agent run pid: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists int
	err = r.getDB(ctx).QueryRowContext(ctx, `SELECT 1 FROM agent_runs WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return execution.ErrRunNotFound.WithDetails(map[string]interface{}{"run_id": id})
	}
	if err != nil {
		return fmt.Errorf("check agent run: %w", err)
	}
	return nil
}

// Delete removes a run; steps and timings cascade
func (r *AgentRunRepositoryImpl) Delete(ctx context.Context, id string) error {
	result, err := r.getDB(ctx).ExecContext(ctx, `DELETE FROM agent_runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete agent run: %w", err)
	}
	return requireRowAffected(result, id)
}

// buildRunStatusUpdate returns the SET clause and its arguments
func buildRunStatusUpdate(status agentrun.RunStatus, update repository.RunStatusUpdate, now time.Time) (string, []interface{}) {
	cols := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{status.String(), formatTime(now)}

	if update.Result != nil {
		cols = append(cols, "result = ?")
		args = append(args, *update.Result)
	}
	if update.Error != nil {
		cols = append(cols, "error = ?")
		args = append(args, *update.Error)
	}
	if update.ClearPID {
		cols = append(cols, "pid = NULL")
	} else if update.PID != nil {
		cols = append(cols, "pid = ?")
		args = append(args, *update.PID)
	}
	if update.StartedAt != nil {
		cols = append(cols, "started_at = ?")
		args = append(args, formatTime(*update.StartedAt))
	}
	if update.CompletedAt != nil {
		cols = append(cols, "completed_at = ?")
		args = append(args, formatTime(*update.CompletedAt))
	}

	return strings.Join(cols, ", "), args
}

func requireRowAffected(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return execution.ErrRunNotFound.WithDetails(map[string]interface{}{"run_id": id})
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAgentRun(row rowScanner) (*agentrun.AgentRun, error) {
	var (
		run                    agentrun.AgentRun
		status                 string
		pid                    sql.NullInt64
		gates                  sql.NullString
		startedAt, completedAt sql.NullString
		createdAt, updatedAt   string
	)

	err := row.Scan(
		&run.ID,
		&run.AgentType,
		&run.AgentName,
		&status,
		&run.Prompt,
		&run.ThreadID,
		&run.FeatureID,
		&pid,
		&run.Result,
		&run.Error,
		&gates,
		&startedAt,
		&completedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = agentrun.RunStatus(status)
	if pid.Valid {
		p := int(pid.Int64)
		run.PID = &p
	}
	if gates.Valid && gates.String != "" {
		var g execution.ApprovalGates
		if err := json.Unmarshal([]byte(gates.String), &g); err != nil {
			return nil, fmt.Errorf("unmarshal approval gates: %w", err)
		}
		run.ApprovalGates = &g
	}
	if run.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if run.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if run.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &run, nil
}
