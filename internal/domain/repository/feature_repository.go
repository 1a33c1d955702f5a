package repository

import (
	"context"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/feature"
)

// FeatureFilter narrows List results
type FeatureFilter struct {
	Lifecycle      feature.Lifecycle
	IncludeDeleted bool
	Limit          int
}

// FeatureRepository persists features. The workflow engine only uses the
// narrow lifecycle and current-run updates.
type FeatureRepository interface {
	// Save inserts a new feature
	Save(ctx context.Context, f *feature.Feature) error

	// FindByID returns execution.ErrFeatureNotFound for missing or deleted features
	FindByID(ctx context.Context, id string) (*feature.Feature, error)

	// FindBySlug looks up a live feature by slug
	FindBySlug(ctx context.Context, slug string) (*feature.Feature, error)

	// List returns features ordered by creation time, newest first
	List(ctx context.Context, filter FeatureFilter) ([]*feature.Feature, error)

	// UpdateLifecycle sets the lifecycle column only
	UpdateLifecycle(ctx context.Context, id string, lifecycle feature.Lifecycle) error

	// UpdateCurrentAgentRun sets the current run; an empty runID clears it
	UpdateCurrentAgentRun(ctx context.Context, id string, runID string) error

	// SoftDelete marks the feature deleted
	SoftDelete(ctx context.Context, id string, at time.Time) error
}
