package agentrun

import (
	"context"
	"fmt"

	"github.com/YoshitsuguKoike/deeflow/internal/application/dto"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/agentrun"
)

// ResumeRun continues an interrupted or failed run. A new pending run is
// created on the same thread and its worker picks up the latest checkpoint.
func (uc *AgentRunUseCaseImpl) ResumeRun(ctx context.Context, runID string) (*dto.ResumeRunOutput, error) {
	prev, err := uc.runs.FindByID(ctx, runID)
	if err != nil {
		if execution.IsRunNotFound(err) {
			return &dto.ResumeRunOutput{PreviousRunID: runID, Reason: "run not found", Code: execution.ErrRunNotFound.Code}, nil
		}
		return nil, err
	}
	if prev.Status != agentrun.StatusInterrupted && prev.Status != agentrun.StatusFailed {
		return &dto.ResumeRunOutput{
			PreviousRunID: runID,
			Reason:        fmt.Sprintf("run is %s, only interrupted or failed runs can be resumed", prev.Status),
			Code:          execution.ErrInvalidRunState.Code,
			CurrentStatus: prev.Status.String(),
		}, nil
	}

	f, err := uc.features.FindByID(ctx, prev.FeatureID)
	if err != nil {
		if execution.IsFeatureNotFound(err) {
			return &dto.ResumeRunOutput{PreviousRunID: runID, Reason: "feature not found", Code: execution.ErrFeatureNotFound.Code}, nil
		}
		return nil, err
	}

	active, err := uc.runs.FindActiveByFeature(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return &dto.ResumeRunOutput{
			RunID:         active.ID,
			PreviousRunID: runID,
			Reason:        fmt.Sprintf("feature already has an active run (%s)", active.Status),
			Code:          execution.ErrActiveRunExists.Code,
		}, nil
	}

	run, err := agentrun.NewAgentRun(f.ID, prev.AgentName, prev.Prompt, prev.ApprovalGates)
	if err != nil {
		return nil, err
	}
	run.ThreadID = prev.ThreadID
	if err := uc.runs.Create(ctx, run); err != nil {
		if execution.IsActiveRunExists(err) {
			return &dto.ResumeRunOutput{
				PreviousRunID: runID,
				Reason:        "feature already has an active run",
				Code:          execution.ErrActiveRunExists.Code,
			}, nil
		}
		return nil, fmt.Errorf("create run: %w", err)
	}
	if err := uc.features.UpdateCurrentAgentRun(ctx, f.ID, run.ID); err != nil {
		return nil, fmt.Errorf("set current run of feature %s: %w", f.ID, err)
	}

	req := workerRequest(run, f)
	req.Resume = true
	pid, err := uc.spawn(ctx, run, req)
	if err != nil {
		uc.abandon(ctx, run.ID, agentrun.StatusPending, agentrun.StatusFailed, err)
		return nil, err
	}

	uc.logger.Info("resumed run %s as %s on thread %s (pid %d)", prev.ID, run.ID, run.ThreadID, pid)
	return &dto.ResumeRunOutput{
		Resumed:       true,
		RunID:         run.ID,
		PreviousRunID: prev.ID,
		PID:           pid,
	}, nil
}
