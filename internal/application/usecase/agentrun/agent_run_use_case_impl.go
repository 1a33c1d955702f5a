package agentrun

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/app"
	"github.com/YoshitsuguKoike/deeflow/internal/application/dto"
	"github.com/YoshitsuguKoike/deeflow/internal/application/port/input"
	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/agentrun"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/feature"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/repository"
)

// Deps are the collaborators of AgentRunUseCaseImpl. Git is only needed for
// worktree cleanup on delete; Logger and Now default when nil.
type Deps struct {
	Runs       repository.AgentRunRepository
	Features   repository.FeatureRepository
	Steps      repository.ExecutionStepRepository
	Timings    repository.PhaseTimingRepository
	SpecDocs   repository.SpecDocumentRepository
	Supervisor output.WorkerSupervisor
	Git        output.GitGateway
	Logger     app.Logger
	Now        func() time.Time
}

// AgentRunUseCaseImpl implements input.AgentRunUseCase.
// It never runs the workflow itself: every state change that needs the
// executor is handed to a freshly spawned worker process.
type AgentRunUseCaseImpl struct {
	runs       repository.AgentRunRepository
	features   repository.FeatureRepository
	steps      repository.ExecutionStepRepository
	timings    repository.PhaseTimingRepository
	specDocs   repository.SpecDocumentRepository
	supervisor output.WorkerSupervisor
	git        output.GitGateway
	logger     app.Logger
	now        func() time.Time
}

var _ input.AgentRunUseCase = (*AgentRunUseCaseImpl)(nil)

// NewAgentRunUseCase creates the agent run use case
func NewAgentRunUseCase(deps Deps) *AgentRunUseCaseImpl {
	uc := &AgentRunUseCaseImpl{
		runs:       deps.Runs,
		features:   deps.Features,
		steps:      deps.Steps,
		timings:    deps.Timings,
		specDocs:   deps.SpecDocs,
		supervisor: deps.Supervisor,
		git:        deps.Git,
		logger:     deps.Logger,
		now:        deps.Now,
	}
	uc.logger = app.LoggerOr(uc.logger)
	if uc.now == nil {
		uc.now = func() time.Time { return time.Now().UTC() }
	}
	return uc
}

// CreateRun creates a pending run for a feature and spawns its worker
func (uc *AgentRunUseCaseImpl) CreateRun(ctx context.Context, in dto.CreateRunInput) (*dto.CreateRunOutput, error) {
	f, err := uc.features.FindByID(ctx, in.FeatureID)
	if err != nil {
		if execution.IsFeatureNotFound(err) {
			return &dto.CreateRunOutput{Reason: "feature not found", Code: execution.ErrFeatureNotFound.Code}, nil
		}
		return nil, err
	}

	active, err := uc.runs.FindActiveByFeature(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return activeRunOutput(active), nil
	}

	run, err := agentrun.NewAgentRun(f.ID, in.AgentName, in.Prompt, f.ApprovalGates)
	if err != nil {
		return nil, err
	}
	if err := uc.runs.Create(ctx, run); err != nil {
		// Lost a race with another create on the same feature
		if execution.IsActiveRunExists(err) {
			return &dto.CreateRunOutput{
				Reason: "feature already has an active run",
				Code:   execution.ErrActiveRunExists.Code,
			}, nil
		}
		return nil, fmt.Errorf("create run: %w", err)
	}

	if err := uc.features.UpdateCurrentAgentRun(ctx, f.ID, run.ID); err != nil {
		return nil, fmt.Errorf("set current run of feature %s: %w", f.ID, err)
	}

	pid, err := uc.spawn(ctx, run, workerRequest(run, f))
	if err != nil {
		uc.abandon(ctx, run.ID, agentrun.StatusPending, agentrun.StatusFailed, err)
		return nil, err
	}

	uc.logger.Info("created run %s for feature %s (pid %d)", run.ID, f.Slug, pid)
	return &dto.CreateRunOutput{
		Created:  true,
		RunID:    run.ID,
		ThreadID: run.ThreadID,
		PID:      pid,
	}, nil
}

// GetRun returns a single run
func (uc *AgentRunUseCaseImpl) GetRun(ctx context.Context, runID string) (*dto.AgentRunDTO, error) {
	run, err := uc.runs.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	return toRunDTO(run), nil
}

// ListRuns returns runs, newest first
func (uc *AgentRunUseCaseImpl) ListRuns(ctx context.Context, in dto.ListRunsInput) ([]*dto.AgentRunDTO, error) {
	filter := repository.AgentRunFilter{FeatureID: in.FeatureID, Limit: in.Limit}
	for _, s := range in.Statuses {
		status := agentrun.RunStatus(s)
		if !status.IsValid() {
			return nil, fmt.Errorf("unknown run status: %s", s)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	runs, err := uc.runs.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.AgentRunDTO, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunDTO(run))
	}
	return out, nil
}

// FindExecutionSteps returns the steps of a run or of a feature
func (uc *AgentRunUseCaseImpl) FindExecutionSteps(ctx context.Context, q dto.StepQuery) ([]*dto.ExecutionStepDTO, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	find := uc.steps.FindByRunID
	key := q.RunID
	if q.FeatureID != "" {
		find = uc.steps.FindByFeatureID
		key = q.FeatureID
	}
	steps, err := find(ctx, key)
	if err != nil {
		return nil, err
	}

	out := make([]*dto.ExecutionStepDTO, 0, len(steps))
	for _, s := range steps {
		out = append(out, toStepDTO(s))
	}
	return out, nil
}

// FindPhaseTimings returns the phase timings of a run or of a feature
func (uc *AgentRunUseCaseImpl) FindPhaseTimings(ctx context.Context, q dto.StepQuery) ([]*dto.PhaseTimingDTO, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	find := uc.timings.FindByRunID
	key := q.RunID
	if q.FeatureID != "" {
		find = uc.timings.FindByFeatureID
		key = q.FeatureID
	}
	timings, err := find(ctx, key)
	if err != nil {
		return nil, err
	}

	out := make([]*dto.PhaseTimingDTO, 0, len(timings))
	for _, t := range timings {
		out = append(out, toTimingDTO(t))
	}
	return out, nil
}

// spawn starts a worker for run and records its pid
func (uc *AgentRunUseCaseImpl) spawn(ctx context.Context, run *agentrun.AgentRun, req output.WorkerRequest) (int, error) {
	pid, err := uc.supervisor.Spawn(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("spawn worker for run %s: %w", run.ID, err)
	}
	if err := uc.runs.UpdatePID(ctx, run.ID, &pid); err != nil {
		// The worker runs anyway; reconciliation treats the missing pid as unknown
		uc.logger.Warn("record pid %d of run %s: %v", pid, run.ID, err)
	}
	return pid, nil
}

// abandon moves a run whose worker could not be started out of its current status
func (uc *AgentRunUseCaseImpl) abandon(ctx context.Context, runID string, from, to agentrun.RunStatus, cause error) {
	ctx = context.WithoutCancel(ctx)
	msg := cause.Error()
	now := uc.now()
	if _, err := uc.runs.CompareAndSetStatus(ctx, runID, []agentrun.RunStatus{from}, to,
		repository.RunStatusUpdate{Error: &msg, CompletedAt: &now, ClearPID: true}); err != nil {
		uc.logger.Error("mark run %s %s: %v", runID, to, err)
	}
}

// workerRequest describes a fresh worker for run
func workerRequest(run *agentrun.AgentRun, f *feature.Feature) output.WorkerRequest {
	return output.WorkerRequest{
		RunID:         run.ID,
		FeatureID:     f.ID,
		ThreadID:      run.ThreadID,
		RepoPath:      f.RepositoryPath,
		WorktreePath:  f.WorktreePath,
		ApprovalGates: run.ApprovalGates,
	}
}

func activeRunOutput(active *agentrun.AgentRun) *dto.CreateRunOutput {
	return &dto.CreateRunOutput{
		RunID:    active.ID,
		ThreadID: active.ThreadID,
		Reason:   fmt.Sprintf("feature already has an active run (%s)", active.Status),
		Code:     execution.ErrActiveRunExists.Code,
	}
}

func validateQuery(q dto.StepQuery) error {
	if (q.RunID == "") == (q.FeatureID == "") {
		return errors.New("exactly one of run id or feature id is required")
	}
	return nil
}
