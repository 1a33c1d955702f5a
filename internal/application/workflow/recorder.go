package workflow

import (
	"context"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/app"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/step"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/timing"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/repository"
)

// recorder writes execution steps and phase timings. Both are observability
// records: failures are logged and never stop the workflow.
type recorder struct {
	steps   repository.ExecutionStepRepository
	timings repository.PhaseTimingRepository
	logger  app.Logger
	now     func() time.Time
}

// startStep opens a running step. Returns nil when the step could not be saved.
func (r *recorder) startStep(ctx context.Context, runID string, parent *step.ExecutionStep, name string, typ step.StepType, metadata map[string]interface{}) *step.ExecutionStep {
	var parentID *string
	if parent != nil {
		id := parent.ID
		parentID = &id
	}

	s, err := step.NewExecutionStep(runID, parentID, name, typ)
	if err != nil {
		r.logger.Warn("create step %s: %v", name, err)
		return nil
	}
	s.StartedAt = r.now()
	for k, v := range metadata {
		s.Metadata[k] = v
	}

	if err := r.steps.Save(ctx, s); err != nil {
		r.logger.Warn("save step %s: %v", name, err)
		return nil
	}
	return s
}

// finishStep closes s with status and outcome, merging metadata
func (r *recorder) finishStep(ctx context.Context, s *step.ExecutionStep, status step.StepStatus, outcome string, metadata map[string]interface{}) {
	if s == nil {
		return
	}
	patch := s.Finish(status, outcome, r.now())
	patch.Metadata = metadata
	if err := r.steps.Update(ctx, s.ID, patch); err != nil {
		r.logger.Warn("update step %s: %v", s.Name, err)
		return
	}
	s.Status = status
}

// startTiming opens a timing row for phase
func (r *recorder) startTiming(ctx context.Context, runID, phase string) *timing.PhaseTiming {
	t, err := timing.NewPhaseTiming(runID, phase, r.now())
	if err != nil {
		r.logger.Warn("create timing %s: %v", phase, err)
		return nil
	}
	if err := r.timings.Save(ctx, t); err != nil {
		r.logger.Warn("save timing %s: %v", phase, err)
		return nil
	}
	return t
}

// closeTiming records completion once
func (r *recorder) closeTiming(ctx context.Context, t *timing.PhaseTiming) {
	if t == nil || t.CompletedAt != nil {
		return
	}
	now := r.now()
	duration := timing.Elapsed(t.StartedAt, now)
	if err := r.timings.Update(ctx, t.ID, now, duration); err != nil {
		r.logger.Warn("update timing %s: %v", t.Phase, err)
		return
	}
	t.CompletedAt = &now
	t.DurationMs = &duration
}

// markWaiting stamps the start of an approval wait on t
func (r *recorder) markWaiting(ctx context.Context, t *timing.PhaseTiming) {
	if t == nil {
		return
	}
	now := r.now()
	if err := r.timings.MarkWaitingApproval(ctx, t.ID, now); err != nil {
		r.logger.Warn("mark approval wait on %s: %v", t.Phase, err)
		return
	}
	t.WaitingApprovalAt = &now
}
