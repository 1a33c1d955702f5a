package agentrun

import (
	"context"
	"fmt"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/application/dto"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/agentrun"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/repository"
)

// spawnGracePeriod is how long a running run may go without a recorded pid.
// Approve and reject move a run to running before its worker's pid is known.
const spawnGracePeriod = time.Minute

const crashedReason = "worker process exited without reporting a result"

// CheckAndMarkCrashed marks running runs whose worker is gone as interrupted.
// Workers cannot report a hard crash themselves, so this sweep runs lazily
// before reads and on `deeflow reconcile`.
func (uc *AgentRunUseCaseImpl) CheckAndMarkCrashed(ctx context.Context) (*dto.ReconcileOutput, error) {
	runs, err := uc.runs.List(ctx, repository.AgentRunFilter{
		Statuses: []agentrun.RunStatus{agentrun.StatusRunning},
	})
	if err != nil {
		return nil, fmt.Errorf("list running runs: %w", err)
	}

	out := &dto.ReconcileOutput{Checked: len(runs), Interrupted: []string{}}
	now := uc.now()
	for _, run := range runs {
		if !uc.crashed(run, now) {
			continue
		}

		reason := crashedReason
		ok, err := uc.runs.CompareAndSetStatus(ctx, run.ID,
			[]agentrun.RunStatus{agentrun.StatusRunning}, agentrun.StatusInterrupted,
			repository.RunStatusUpdate{Error: &reason, CompletedAt: &now, ClearPID: true})
		if err != nil {
			return nil, fmt.Errorf("mark run %s interrupted: %w", run.ID, err)
		}
		if ok {
			uc.logger.Warn("run %s lost its worker, marked interrupted", run.ID)
			out.Interrupted = append(out.Interrupted, run.ID)
		}
	}
	return out, nil
}

func (uc *AgentRunUseCaseImpl) crashed(run *agentrun.AgentRun, now time.Time) bool {
	if run.HasPID() {
		return !uc.supervisor.IsAlive(*run.PID)
	}
	return now.Sub(run.UpdatedAt) > spawnGracePeriod
}
