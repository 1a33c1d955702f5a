package agentrun

import (
	"context"
	"fmt"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/application/dto"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/agentrun"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/feature"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/repository"
)

// workerExitTimeout bounds how long a delete waits for a signalled worker
// before removing its worktree
const workerExitTimeout = 10 * time.Second

// DeleteFeatureRun stops the feature's current run and soft-deletes the feature.
//
// The run is marked cancelled first, then a live pending or running worker is
// sent a termination signal. Runs that already ended are left as they are and
// their workers are not signalled.
func (uc *AgentRunUseCaseImpl) DeleteFeatureRun(ctx context.Context, in dto.DeleteFeatureRunInput) (*dto.DeleteFeatureRunOutput, error) {
	f, err := uc.features.FindByID(ctx, in.FeatureID)
	if err != nil {
		if execution.IsFeatureNotFound(err) {
			return &dto.DeleteFeatureRunOutput{
				FeatureID: in.FeatureID,
				Reason:    "feature not found",
				Code:      execution.ErrFeatureNotFound.Code,
			}, nil
		}
		return nil, err
	}

	out := &dto.DeleteFeatureRunOutput{FeatureID: f.ID}

	run, err := uc.currentRun(ctx, f)
	if err != nil {
		return nil, err
	}
	if run != nil {
		out.RunID = run.ID

		// cancelled is recorded before the signal so the worker's own
		// interrupted transition loses the race
		if !run.Status.IsTerminal() {
			now := uc.now()
			reason := "feature deleted"
			cancelled, err := uc.runs.CompareAndSetStatus(ctx, run.ID, agentrun.ActiveStatuses(), agentrun.StatusCancelled,
				repository.RunStatusUpdate{Error: &reason, CompletedAt: &now, ClearPID: true})
			if err != nil {
				return nil, fmt.Errorf("cancel run %s: %w", run.ID, err)
			}
			out.Cancelled = cancelled
		}
		if out.Cancelled {
			out.Signalled = uc.terminateWorker(run)
		}
	}

	if f.CurrentAgentRunID != "" {
		if err := uc.features.UpdateCurrentAgentRun(ctx, f.ID, ""); err != nil {
			return nil, fmt.Errorf("clear current run of feature %s: %w", f.ID, err)
		}
	}
	if err := uc.features.SoftDelete(ctx, f.ID, uc.now()); err != nil {
		return nil, fmt.Errorf("delete feature %s: %w", f.ID, err)
	}

	if in.CleanupWorktree && f.WorktreePath != "" {
		// the worker may still be writing into the worktree
		if out.Signalled && !uc.supervisor.WaitExit(*run.PID, workerExitTimeout) {
			uc.logger.Warn("worker %d of run %s still running after %s, removing worktree anyway", *run.PID, run.ID, workerExitTimeout)
		}
		uc.removeWorktree(ctx, f)
	}

	out.Deleted = true
	uc.logger.Info("deleted feature %s (run %s, signalled=%t, cancelled=%t)", f.Slug, out.RunID, out.Signalled, out.Cancelled)
	return out, nil
}

// currentRun returns the run referenced by the feature, falling back to its
// active run
func (uc *AgentRunUseCaseImpl) currentRun(ctx context.Context, f *feature.Feature) (*agentrun.AgentRun, error) {
	if f.CurrentAgentRunID != "" {
		run, err := uc.runs.FindByID(ctx, f.CurrentAgentRunID)
		if err == nil {
			return run, nil
		}
		if !execution.IsRunNotFound(err) {
			return nil, err
		}
	}
	return uc.runs.FindActiveByFeature(ctx, f.ID)
}

// terminateWorker signals the worker of a pending or running run.
// Returns true when a signal was delivered.
func (uc *AgentRunUseCaseImpl) terminateWorker(run *agentrun.AgentRun) bool {
	if !run.Status.HasWorker() || !run.HasPID() {
		return false
	}
	pid := *run.PID
	if !uc.supervisor.IsAlive(pid) {
		return false
	}
	if err := uc.supervisor.Terminate(pid); err != nil {
		uc.logger.Warn("terminate worker %d of run %s: %v", pid, run.ID, err)
		return false
	}
	return true
}

func (uc *AgentRunUseCaseImpl) removeWorktree(ctx context.Context, f *feature.Feature) {
	if uc.git == nil {
		return
	}
	if err := uc.git.RemoveWorktree(ctx, f.RepositoryPath, f.WorktreePath); err != nil {
		uc.logger.Warn("remove worktree %s: %v", f.WorktreePath, err)
	}
}
