package repository

import (
	"context"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/timing"
)

// PhaseTimingRepository persists per-phase durations and approval waits
type PhaseTimingRepository interface {
	// Save inserts a new timing row
	Save(ctx context.Context, t *timing.PhaseTiming) error

	// Update closes a timing row
	Update(ctx context.Context, id string, completedAt time.Time, durationMs int64) error

	// MarkWaitingApproval records when an interrupt began on the row
	MarkWaitingApproval(ctx context.Context, id string, at time.Time) error

	// UpdateApprovalWait records the wait once. Returns false when the row had
	// no pending wait or the wait was already recorded.
	UpdateApprovalWait(ctx context.Context, id string, waitMs int64) (bool, error)

	// FindPendingApproval returns the newest row of a run with a wait started
	// and not yet recorded, or nil
	FindPendingApproval(ctx context.Context, runID string) (*timing.PhaseTiming, error)

	// FindByRunID returns the timings of a run in start order
	FindByRunID(ctx context.Context, runID string) ([]*timing.PhaseTiming, error)

	// FindByFeatureID returns the timings of every run of a feature
	FindByFeatureID(ctx context.Context, featureID string) ([]*timing.PhaseTiming, error)
}
