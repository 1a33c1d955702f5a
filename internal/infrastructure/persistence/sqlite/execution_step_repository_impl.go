package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/step"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/repository"
	"github.com/YoshitsuguKoike/deeflow/internal/infrastructure/transaction"
)

const executionStepColumns = `s.id, s.agent_run_id, s.parent_id, s.name, s.type, s.status, s.sequence_number,
	s.started_at, s.completed_at, s.duration_ms, s.outcome, s.metadata`

// ExecutionStepRepositoryImpl implements repository.ExecutionStepRepository with SQLite
type ExecutionStepRepositoryImpl struct {
	db  *sql.DB
	txm *transaction.SQLiteTransactionManager
}

// NewExecutionStepRepository creates a new SQLite-based execution step repository
func NewExecutionStepRepository(db *sql.DB) repository.ExecutionStepRepository {
	return &ExecutionStepRepositoryImpl{
		db:  db,
		txm: transaction.NewSQLiteTransactionManager(db),
	}
}

// getDB returns the appropriate database executor from context
func (r *ExecutionStepRepositoryImpl) getDB(ctx context.Context) dbExecutor {
	if tx, ok := transaction.GetTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// Save assigns the next sequence number of the step's scope and inserts it.
// Both happen in one immediate transaction so concurrent writers serialize.
func (r *ExecutionStepRepositoryImpl) Save(ctx context.Context, s *step.ExecutionStep) error {
	metadata, err := json.Marshal(nonNilMetadata(s.Metadata))
	if err != nil {
		return fmt.Errorf("marshal step metadata: %w", err)
	}

	return r.txm.InTransaction(ctx, func(txCtx context.Context) error {
		seq, err := r.GetNextSequenceNumber(txCtx, s.AgentRunID, s.ParentID)
		if err != nil {
			return err
		}

		query := `
			INSERT INTO execution_steps (id, agent_run_id, parent_id, name, type, status, sequence_number,
				started_at, completed_at, duration_ms, outcome, metadata)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err = r.getDB(txCtx).ExecContext(txCtx, query,
			s.ID,
			s.AgentRunID,
			nullableString(s.ParentID),
			s.Name,
			string(s.Type),
			string(s.Status),
			seq,
			formatTime(s.StartedAt),
			nullableTime(s.CompletedAt),
			nullableInt64(s.DurationMs),
			s.Outcome,
			string(metadata),
		)
		if err != nil {
			return fmt.Errorf("insert execution step: %w", err)
		}

		s.SequenceNumber = seq
		return nil
	})
}

// Update writes the columns present in patch and merges metadata keys
func (r *ExecutionStepRepositoryImpl) Update(ctx context.Context, id string, patch step.StepPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	return r.txm.InTransaction(ctx, func(txCtx context.Context) error {
		db := r.getDB(txCtx)

		var cols []string
		var args []interface{}

		if patch.Status != nil {
			cols = append(cols, "status = ?")
			args = append(args, string(*patch.Status))
		}
		if patch.CompletedAt != nil {
			cols = append(cols, "completed_at = ?")
			args = append(args, formatTime(*patch.CompletedAt))
		}
		if patch.DurationMs != nil {
			cols = append(cols, "duration_ms = ?")
			args = append(args, *patch.DurationMs)
		}
		if patch.Outcome != nil {
			cols = append(cols, "outcome = ?")
			args = append(args, *patch.Outcome)
		}
		if len(patch.Metadata) > 0 {
			var stored string
			err := db.QueryRowContext(txCtx, `SELECT metadata FROM execution_steps WHERE id = ?`, id).Scan(&stored)
			if err == sql.ErrNoRows {
				return fmt.Errorf("execution step not found: %s", id)
			}
			if err != nil {
				return fmt.Errorf("read step metadata: %w", err)
			}

			current, err := unmarshalMetadata(stored)
			if err != nil {
				return err
			}
			merged, err := json.Marshal(step.MergeMetadata(current, patch.Metadata))
			if err != nil {
				return fmt.Errorf("marshal step metadata: %w", err)
			}
			cols = append(cols, "metadata = ?")
			args = append(args, string(merged))
		}

		args = append(args, id)
		result, err := db.ExecContext(txCtx, `UPDATE execution_steps SET `+strings.Join(cols, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return fmt.Errorf("update execution step: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("execution step not found: %s", id)
		}
		return nil
	})
}

// FindByID retrieves a single step
func (r *ExecutionStepRepositoryImpl) FindByID(ctx context.Context, id string) (*step.ExecutionStep, error) {
	query := `SELECT ` + executionStepColumns + ` FROM execution_steps s WHERE s.id = ?`

	s, err := scanExecutionStep(r.getDB(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("execution step not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find execution step: %w", err)
	}
	return s, nil
}

// FindByRunID returns the steps of a run
func (r *ExecutionStepRepositoryImpl) FindByRunID(ctx context.Context, runID string) ([]*step.ExecutionStep, error) {
	query := `SELECT ` + executionStepColumns + ` FROM execution_steps s
		WHERE s.agent_run_id = ?
		ORDER BY s.started_at ASC, s.sequence_number ASC`

	return r.query(ctx, query, runID)
}

// FindByFeatureID returns the steps of every run of a feature
func (r *ExecutionStepRepositoryImpl) FindByFeatureID(ctx context.Context, featureID string) ([]*step.ExecutionStep, error) {
	query := `SELECT ` + executionStepColumns + ` FROM execution_steps s
		JOIN agent_runs r ON r.id = s.agent_run_id
		WHERE r.feature_id = ?
		ORDER BY r.created_at ASC, s.started_at ASC, s.sequence_number ASC`

	return r.query(ctx, query, featureID)
}

// GetNextSequenceNumber returns max+1 within (runID, parentID)
func (r *ExecutionStepRepositoryImpl) GetNextSequenceNumber(ctx context.Context, runID string, parentID *string) (int, error) {
	query := `
		SELECT COALESCE(MAX(sequence_number), 0) + 1
		FROM execution_steps
		WHERE agent_run_id = ? AND parent_id IS ?
	`

	var next int
	if err := r.getDB(ctx).QueryRowContext(ctx, query, runID, nullableString(parentID)).Scan(&next); err != nil {
		return 0, fmt.Errorf("get next sequence number: %w", err)
	}
	return next, nil
}

func (r *ExecutionStepRepositoryImpl) query(ctx context.Context, query string, args ...interface{}) ([]*step.ExecutionStep, error) {
	rows, err := r.getDB(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query execution steps: %w", err)
	}
	defer rows.Close()

	var steps []*step.ExecutionStep
	for rows.Next() {
		s, err := scanExecutionStep(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution step: %w", err)
		}
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution steps: %w", err)
	}

	return steps, nil
}

func nonNilMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func unmarshalMetadata(raw string) (map[string]interface{}, error) {
	metadata := map[string]interface{}{}
	if raw == "" {
		return metadata, nil
	}
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil, fmt.Errorf("unmarshal step metadata: %w", err)
	}
	return metadata, nil
}

func scanExecutionStep(row rowScanner) (*step.ExecutionStep, error) {
	var (
		s                step.ExecutionStep
		parentID         sql.NullString
		stepType, status string
		startedAt        string
		completedAt      sql.NullString
		durationMs       sql.NullInt64
		metadata         string
	)

	err := row.Scan(
		&s.ID,
		&s.AgentRunID,
		&parentID,
		&s.Name,
		&stepType,
		&status,
		&s.SequenceNumber,
		&startedAt,
		&completedAt,
		&durationMs,
		&s.Outcome,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		p := parentID.String
		s.ParentID = &p
	}
	s.Type = step.StepType(stepType)
	s.Status = step.StepStatus(status)
	s.DurationMs = ptrInt64(durationMs)

	if s.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if s.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, err
	}
	if s.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return nil, err
	}

	return &s, nil
}
