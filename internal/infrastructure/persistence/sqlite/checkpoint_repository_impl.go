package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/repository"
	"github.com/YoshitsuguKoike/deeflow/internal/infrastructure/transaction"
)

// CheckpointRepositoryImpl implements repository.CheckpointRepository with SQLite.
// State is stored as JSON; each save appends version max+1 for the thread.
type CheckpointRepositoryImpl struct {
	db  *sql.DB
	txm *transaction.SQLiteTransactionManager
}

// NewCheckpointRepository creates a new SQLite-based checkpoint repository
func NewCheckpointRepository(db *sql.DB) repository.CheckpointRepository {
	return &CheckpointRepositoryImpl{
		db:  db,
		txm: transaction.NewSQLiteTransactionManager(db),
	}
}

// getDB returns the appropriate database executor from context
func (r *CheckpointRepositoryImpl) getDB(ctx context.Context) dbExecutor {
	if tx, ok := transaction.GetTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// Save appends a checkpoint for threadID
func (r *CheckpointRepositoryImpl) Save(ctx context.Context, threadID string, state execution.WorkflowState) (*execution.Checkpoint, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread ID cannot be empty")
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("marshal workflow state: %w", err)
	}

	cp := &execution.Checkpoint{
		ID:        model.NewULID(),
		ThreadID:  threadID,
		State:     state,
		CreatedAt: time.Now().UTC(),
	}

	err = r.txm.InTransaction(ctx, func(txCtx context.Context) error {
		db := r.getDB(txCtx)

		if err := db.QueryRowContext(txCtx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM checkpoints WHERE thread_id = ?`, threadID,
		).Scan(&cp.Version); err != nil {
			return fmt.Errorf("get next checkpoint version: %w", err)
		}

		_, err := db.ExecContext(txCtx,
			`INSERT INTO checkpoints (id, thread_id, version, state, created_at) VALUES (?, ?, ?, ?, ?)`,
			cp.ID, cp.ThreadID, cp.Version, string(data), formatTime(cp.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert checkpoint: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cp, nil
}

// LoadLatest returns the highest version of a thread
func (r *CheckpointRepositoryImpl) LoadLatest(ctx context.Context, threadID string) (*execution.Checkpoint, error) {
	query := `
		SELECT id, thread_id, version, state, created_at
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY version DESC
		LIMIT 1
	`

	cp, err := scanCheckpoint(r.getDB(ctx).QueryRowContext(ctx, query, threadID))
	if err == sql.ErrNoRows {
		return nil, execution.ErrCheckpointNotFound.WithDetails(map[string]interface{}{"thread_id": threadID})
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return cp, nil
}

// ListVersions returns all checkpoints of a thread, oldest first
func (r *CheckpointRepositoryImpl) ListVersions(ctx context.Context, threadID string) ([]*execution.Checkpoint, error) {
	query := `
		SELECT id, thread_id, version, state, created_at
		FROM checkpoints
		WHERE thread_id = ?
		ORDER BY version ASC
	`

	rows, err := r.getDB(ctx).QueryContext(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*execution.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoints: %w", err)
	}
	return checkpoints, nil
}

func scanCheckpoint(row rowScanner) (*execution.Checkpoint, error) {
	var (
		cp        execution.Checkpoint
		state     string
		createdAt string
	)

	if err := row.Scan(&cp.ID, &cp.ThreadID, &cp.Version, &state, &createdAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(state), &cp.State); err != nil {
		return nil, fmt.Errorf("unmarshal workflow state: %w", err)
	}

	var err error
	if cp.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &cp, nil
}
