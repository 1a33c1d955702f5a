package output

import (
	"context"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
)

// WorkerRequest describes one background worker invocation
type WorkerRequest struct {
	RunID     string
	FeatureID string
	ThreadID  string

	// RepoPath and WorktreePath pick the worker's working directory. The
	// worker reads everything else about the feature from the store.
	RepoPath     string
	WorktreePath string

	ApprovalGates *execution.ApprovalGates

	// Resume continues from the latest checkpoint of ThreadID
	Resume bool
	// ResumeFromInterrupt applies ResumePayload to a suspended checkpoint
	ResumeFromInterrupt bool
	ResumePayload       *execution.ResumeCommand
}

// WorkerSupervisor starts detached workflow workers and tracks their pids
type WorkerSupervisor interface {
	// Spawn starts a detached worker and returns its pid
	Spawn(ctx context.Context, req WorkerRequest) (int, error)

	// IsAlive reports whether pid is a running process
	IsAlive(pid int) bool

	// Terminate sends a graceful termination signal to the worker's process group
	Terminate(pid int) error

	// WaitExit blocks until pid exits or timeout passes, reporting whether it exited
	WaitExit(pid int, timeout time.Duration) bool
}
