package agentrun

import (
	"context"
	"fmt"
	"strings"

	"github.com/YoshitsuguKoike/deeflow/internal/application/dto"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/agentrun"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/feature"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/repository"
)

// gateDecision is the outcome of the checks shared by approve and reject.
// On refusal reason and code are set and nothing was written.
type gateDecision struct {
	run     *agentrun.AgentRun
	feature *feature.Feature
	reason  string
	code    string
	status  string
}

// loadSuspended loads a run that must be waiting for approval
func (uc *AgentRunUseCaseImpl) loadSuspended(ctx context.Context, runID string) (*gateDecision, error) {
	run, err := uc.runs.FindByID(ctx, runID)
	if err != nil {
		if execution.IsRunNotFound(err) {
			return &gateDecision{reason: "run not found", code: execution.ErrRunNotFound.Code}, nil
		}
		return nil, err
	}
	if run.Status != agentrun.StatusWaitingApproval {
		return &gateDecision{
			run:    run,
			reason: fmt.Sprintf("run is %s, not waiting for approval", run.Status),
			code:   execution.ErrInvalidRunState.Code,
			status: run.Status.String(),
		}, nil
	}

	f, err := uc.features.FindByID(ctx, run.FeatureID)
	if err != nil {
		if execution.IsFeatureNotFound(err) {
			return &gateDecision{run: run, reason: "feature not found", code: execution.ErrFeatureNotFound.Code}, nil
		}
		return nil, err
	}
	return &gateDecision{run: run, feature: f}, nil
}

// ApproveRun resumes a run suspended at an approval gate
func (uc *AgentRunUseCaseImpl) ApproveRun(ctx context.Context, runID string) (*dto.ApproveRunOutput, error) {
	d, err := uc.loadSuspended(ctx, runID)
	if err != nil {
		return nil, err
	}
	if d.code != "" {
		return &dto.ApproveRunOutput{RunID: runID, Reason: d.reason, Code: d.code, CurrentStatus: d.status}, nil
	}

	phase := d.run.LastPhase()
	ok, current, err := uc.markRunning(ctx, d.run)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &dto.ApproveRunOutput{
			RunID:         runID,
			Reason:        fmt.Sprintf("run is %s, not waiting for approval", current),
			Code:          execution.ErrInvalidRunState.Code,
			CurrentStatus: current.String(),
		}, nil
	}

	waitMs := uc.recordApprovalWait(ctx, d.run.ID)

	cmd := execution.ApproveCommand()
	pid, err := uc.spawnResume(ctx, d, cmd)
	if err != nil {
		return nil, err
	}

	uc.logger.Info("approved run %s at %s (pid %d)", d.run.ID, phase, pid)
	return &dto.ApproveRunOutput{
		Approved:       true,
		RunID:          d.run.ID,
		Phase:          phase,
		PID:            pid,
		ApprovalWaitMs: waitMs,
	}, nil
}

// RejectRun records feedback in the spec document and re-runs the suspended phase
func (uc *AgentRunUseCaseImpl) RejectRun(ctx context.Context, in dto.RejectRunInput) (*dto.RejectRunOutput, error) {
	feedback := strings.TrimSpace(in.Feedback)
	if feedback == "" {
		return &dto.RejectRunOutput{
			RunID:  in.RunID,
			Reason: "feedback is required",
			Code:   execution.ErrFeedbackRequired.Code,
		}, nil
	}

	d, err := uc.loadSuspended(ctx, in.RunID)
	if err != nil {
		return nil, err
	}
	if d.code != "" {
		return &dto.RejectRunOutput{RunID: in.RunID, Reason: d.reason, Code: d.code, CurrentStatus: d.status}, nil
	}
	if d.feature.SpecPath == "" {
		return &dto.RejectRunOutput{
			RunID:  in.RunID,
			Reason: "feature has no spec document",
			Code:   execution.ErrSpecPathMissing.Code,
		}, nil
	}

	phase := d.run.LastPhase()
	iteration := 1
	entry, err := uc.specDocs.AppendRejectionFeedback(ctx, d.feature.SpecPath, feedback, phase, uc.now())
	if err != nil {
		uc.logger.Warn("record rejection feedback in %s, using iteration 1: %v", d.feature.SpecPath, err)
	} else {
		iteration = entry.Iteration
	}

	ok, current, err := uc.markRunning(ctx, d.run)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &dto.RejectRunOutput{
			RunID:         in.RunID,
			Reason:        fmt.Sprintf("run is %s, not waiting for approval", current),
			Code:          execution.ErrInvalidRunState.Code,
			CurrentStatus: current.String(),
		}, nil
	}

	waitMs := uc.recordApprovalWait(ctx, d.run.ID)

	cmd := execution.RejectCommand(feedback, iteration)
	pid, err := uc.spawnResume(ctx, d, cmd)
	if err != nil {
		return nil, err
	}

	warning := iteration >= dto.IterationWarningThreshold
	if warning {
		uc.logger.Warn("run %s rejected %d times at %s", d.run.ID, iteration, phase)
	}
	return &dto.RejectRunOutput{
		Rejected:         true,
		RunID:            d.run.ID,
		Phase:            phase,
		Iteration:        iteration,
		IterationWarning: warning,
		PID:              pid,
		ApprovalWaitMs:   waitMs,
	}, nil
}

// markRunning moves a suspended run back to running. ok is false when another
// process changed the run first; current is then its status.
func (uc *AgentRunUseCaseImpl) markRunning(ctx context.Context, run *agentrun.AgentRun) (ok bool, current agentrun.RunStatus, err error) {
	ok, err = uc.runs.CompareAndSetStatus(ctx, run.ID,
		[]agentrun.RunStatus{agentrun.StatusWaitingApproval},
		agentrun.StatusRunning, repository.RunStatusUpdate{})
	if err != nil {
		return false, "", fmt.Errorf("mark run %s running: %w", run.ID, err)
	}
	if ok {
		return true, agentrun.StatusRunning, nil
	}

	latest, err := uc.runs.FindByID(ctx, run.ID)
	if err != nil {
		return false, "", err
	}
	return false, latest.Status, nil
}

// recordApprovalWait stores how long the pending phase waited. Best-effort;
// returns nil when nothing was recorded.
func (uc *AgentRunUseCaseImpl) recordApprovalWait(ctx context.Context, runID string) *int64 {
	pt, err := uc.timings.FindPendingApproval(ctx, runID)
	if err != nil {
		uc.logger.Warn("find pending approval timing of run %s: %v", runID, err)
		return nil
	}
	if pt == nil {
		return nil
	}

	waitMs, ok := pt.ApprovalWait(uc.now())
	if !ok {
		return nil
	}
	recorded, err := uc.timings.UpdateApprovalWait(ctx, pt.ID, waitMs)
	if err != nil {
		uc.logger.Warn("record approval wait of run %s: %v", runID, err)
		return nil
	}
	if !recorded {
		return nil
	}
	return &waitMs
}

// spawnResume starts the worker that applies cmd to the suspended checkpoint
func (uc *AgentRunUseCaseImpl) spawnResume(ctx context.Context, d *gateDecision, cmd execution.ResumeCommand) (int, error) {
	req := workerRequest(d.run, d.feature)
	req.Resume = true
	req.ResumeFromInterrupt = true
	req.ResumePayload = &cmd

	pid, err := uc.spawn(ctx, d.run, req)
	if err != nil {
		// The checkpoint still holds the interrupt, so a resumed run suspends again
		uc.abandon(ctx, d.run.ID, agentrun.StatusRunning, agentrun.StatusInterrupted, err)
		return 0, err
	}
	return pid, nil
}
