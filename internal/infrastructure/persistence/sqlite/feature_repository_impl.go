package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/feature"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/repository"
	"github.com/YoshitsuguKoike/deeflow/internal/infrastructure/transaction"
)

const featureColumns = `id, slug, name, description, lifecycle, repository_path, branch, worktree_path,
	spec_path, approval_gates, current_agent_run_id, push, open_pr, parent_id, created_at, updated_at, deleted_at`

// FeatureRepositoryImpl implements repository.FeatureRepository with SQLite
type FeatureRepositoryImpl struct {
	db *sql.DB
}

// NewFeatureRepository creates a new SQLite-based feature repository
func NewFeatureRepository(db *sql.DB) repository.FeatureRepository {
	return &FeatureRepositoryImpl{db: db}
}

// getDB returns the appropriate database executor from context
func (r *FeatureRepositoryImpl) getDB(ctx context.Context) dbExecutor {
	if tx, ok := transaction.GetTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// Save inserts a new feature
func (r *FeatureRepositoryImpl) Save(ctx context.Context, f *feature.Feature) error {
	gates, err := marshalNullableJSON(f.ApprovalGates, f.ApprovalGates == nil)
	if err != nil {
		return fmt.Errorf("marshal approval gates: %w", err)
	}

	query := `INSERT INTO features (` + featureColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.getDB(ctx).ExecContext(ctx, query,
		f.ID,
		f.Slug,
		f.Name,
		f.Description,
		f.Lifecycle.String(),
		f.RepositoryPath,
		f.Branch,
		f.WorktreePath,
		f.SpecPath,
		gates,
		emptyToNull(f.CurrentAgentRunID),
		boolToInt(f.Push),
		boolToInt(f.OpenPR),
		emptyToNull(f.ParentID),
		formatTime(f.CreatedAt),
		formatTime(f.UpdatedAt),
		nullableTime(f.DeletedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("feature slug %q already exists: %w", f.Slug, err)
		}
		return fmt.Errorf("insert feature: %w", err)
	}

	return nil
}

// FindByID retrieves a live feature by ID
func (r *FeatureRepositoryImpl) FindByID(ctx context.Context, id string) (*feature.Feature, error) {
	query := `SELECT ` + featureColumns + ` FROM features WHERE id = ? AND deleted_at IS NULL`

	f, err := scanFeature(r.getDB(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, execution.ErrFeatureNotFound.WithDetails(map[string]interface{}{"feature_id": id})
	}
	if err != nil {
		return nil, fmt.Errorf("find feature: %w", err)
	}
	return f, nil
}

// FindBySlug retrieves a live feature by slug
func (r *FeatureRepositoryImpl) FindBySlug(ctx context.Context, slug string) (*feature.Feature, error) {
	query := `SELECT ` + featureColumns + ` FROM features WHERE slug = ? AND deleted_at IS NULL`

	f, err := scanFeature(r.getDB(ctx).QueryRowContext(ctx, query, slug))
	if err == sql.ErrNoRows {
		return nil, execution.ErrFeatureNotFound.WithDetails(map[string]interface{}{"slug": slug})
	}
	if err != nil {
		return nil, fmt.Errorf("find feature by slug: %w", err)
	}
	return f, nil
}

// List returns features matching filter, newest first
func (r *FeatureRepositoryImpl) List(ctx context.Context, filter repository.FeatureFilter) ([]*feature.Feature, error) {
	query := `SELECT ` + featureColumns + ` FROM features WHERE 1 = 1`
	var args []interface{}

	if !filter.IncludeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	if filter.Lifecycle != "" {
		query += ` AND lifecycle = ?`
		args = append(args, filter.Lifecycle.String())
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.getDB(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer rows.Close()

	var features []*feature.Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feature: %w", err)
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating features: %w", err)
	}

	return features, nil
}

// UpdateLifecycle sets the lifecycle column only
func (r *FeatureRepositoryImpl) UpdateLifecycle(ctx context.Context, id string, lifecycle feature.Lifecycle) error {
	return r.updateColumn(ctx, id, "lifecycle", lifecycle.String())
}

// UpdateCurrentAgentRun sets or clears the current run
func (r *FeatureRepositoryImpl) UpdateCurrentAgentRun(ctx context.Context, id string, runID string) error {
	return r.updateColumn(ctx, id, "current_agent_run_id", emptyToNull(runID))
}

// SoftDelete marks the feature deleted
func (r *FeatureRepositoryImpl) SoftDelete(ctx context.Context, id string, at time.Time) error {
	return r.updateColumn(ctx, id, "deleted_at", formatTime(at))
}

// updateColumn writes a single column of a live feature; column is never user input
func (r *FeatureRepositoryImpl) updateColumn(ctx context.Context, id, column string, value interface{}) error {
	query := fmt.Sprintf(`UPDATE features SET %s = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`, column)

	result, err := r.getDB(ctx).ExecContext(ctx, query, value, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update feature %s: %w", column, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return execution.ErrFeatureNotFound.WithDetails(map[string]interface{}{"feature_id": id})
	}
	return nil
}

func emptyToNull(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func scanFeature(row rowScanner) (*feature.Feature, error) {
	var (
		f                    feature.Feature
		lifecycle            string
		gates                sql.NullString
		currentRun, parentID sql.NullString
		push, openPR         int
		createdAt, updatedAt string
		deletedAt            sql.NullString
	)

	err := row.Scan(
		&f.ID,
		&f.Slug,
		&f.Name,
		&f.Description,
		&lifecycle,
		&f.RepositoryPath,
		&f.Branch,
		&f.WorktreePath,
		&f.SpecPath,
		&gates,
		&currentRun,
		&push,
		&openPR,
		&parentID,
		&createdAt,
		&updatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	f.Lifecycle = feature.Lifecycle(lifecycle)
	f.CurrentAgentRunID = currentRun.String
	f.ParentID = parentID.String
	f.Push = push != 0
	f.OpenPR = openPR != 0

	if gates.Valid && gates.String != "" {
		var g execution.ApprovalGates
		if err := json.Unmarshal([]byte(gates.String), &g); err != nil {
			return nil, fmt.Errorf("unmarshal approval gates: %w", err)
		}
		f.ApprovalGates = &g
	}
	if f.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if f.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if f.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return nil, err
	}

	return &f, nil
}
