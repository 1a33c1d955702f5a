package repository

import (
	"context"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
)

// CheckpointRepository stores workflow state per thread. Every save appends a
// new version; earlier versions are kept.
type CheckpointRepository interface {
	// Save appends a checkpoint for threadID and returns it with its version
	Save(ctx context.Context, threadID string, state execution.WorkflowState) (*execution.Checkpoint, error)

	// LoadLatest returns execution.ErrCheckpointNotFound when the thread has none
	LoadLatest(ctx context.Context, threadID string) (*execution.Checkpoint, error)

	// ListVersions returns all checkpoints of a thread, oldest first
	ListVersions(ctx context.Context, threadID string) ([]*execution.Checkpoint, error)
}
