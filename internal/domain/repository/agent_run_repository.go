package repository

import (
	"context"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/agentrun"
)

// RunStatusUpdate lists the optional columns written together with a status change.
// Nil fields are left untouched.
type RunStatusUpdate struct {
	Result      *string
	Error       *string
	PID         *int
	ClearPID    bool
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// AgentRunFilter narrows List results
type AgentRunFilter struct {
	FeatureID string
	Statuses  []agentrun.RunStatus
	Limit     int
}

// AgentRunRepository persists agent runs
type AgentRunRepository interface {
	// Create inserts a new run. Returns execution.ErrActiveRunExists when the
	// feature already has a non-terminal run.
	Create(ctx context.Context, run *agentrun.AgentRun) error

	// FindByID returns execution.ErrRunNotFound when the run does not exist
	FindByID(ctx context.Context, id string) (*agentrun.AgentRun, error)

	// FindActiveByFeature returns the non-terminal run of a feature, or nil
	FindActiveByFeature(ctx context.Context, featureID string) (*agentrun.AgentRun, error)

	// List returns runs ordered by creation time, newest first
	List(ctx context.Context, filter AgentRunFilter) ([]*agentrun.AgentRun, error)

	// UpdateStatus sets the status and the columns present in update
	UpdateStatus(ctx context.Context, id string, status agentrun.RunStatus, update RunStatusUpdate) error

	// CompareAndSetStatus updates only when the current status is one of expected.
	// Returns false when the run was in another status.
	CompareAndSetStatus(ctx context.Context, id string, expected []agentrun.RunStatus, status agentrun.RunStatus, update RunStatusUpdate) (bool, error)

	// UpdatePID records (or clears, with nil) the worker pid. Recording is a
	// no-op once the run has left pending and running.
	UpdatePID(ctx context.Context, id string, pid *int) error

	// Delete removes a run together with its steps and timings
	Delete(ctx context.Context, id string) error
}
