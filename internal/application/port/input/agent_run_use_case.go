package input

import (
	"context"

	"github.com/YoshitsuguKoike/deeflow/internal/application/dto"
)

// AgentRunUseCase defines the orchestration entry points of the feature workflow.
// Expected business failures are reported in the outputs; only unexpected
// conditions are returned as errors.
type AgentRunUseCase interface {
	// CreateRun creates a pending run for a feature and spawns its worker
	CreateRun(ctx context.Context, in dto.CreateRunInput) (*dto.CreateRunOutput, error)

	// ApproveRun resumes a run suspended at an approval gate
	ApproveRun(ctx context.Context, runID string) (*dto.ApproveRunOutput, error)

	// RejectRun records feedback and re-runs the suspended phase
	RejectRun(ctx context.Context, in dto.RejectRunInput) (*dto.RejectRunOutput, error)

	// DeleteFeatureRun cancels the feature's current run and soft-deletes the feature
	DeleteFeatureRun(ctx context.Context, in dto.DeleteFeatureRunInput) (*dto.DeleteFeatureRunOutput, error)

	// ResumeRun continues an interrupted or failed run from its latest checkpoint
	ResumeRun(ctx context.Context, runID string) (*dto.ResumeRunOutput, error)

	// GetRun returns a single run
	GetRun(ctx context.Context, runID string) (*dto.AgentRunDTO, error)

	// ListRuns returns runs, newest first
	ListRuns(ctx context.Context, in dto.ListRunsInput) ([]*dto.AgentRunDTO, error)

	// FindExecutionSteps returns the step tree of a run or of a feature
	FindExecutionSteps(ctx context.Context, q dto.StepQuery) ([]*dto.ExecutionStepDTO, error)

	// FindPhaseTimings returns the phase timings of a run or of a feature
	FindPhaseTimings(ctx context.Context, q dto.StepQuery) ([]*dto.PhaseTimingDTO, error)

	// CheckAndMarkCrashed marks running runs whose worker died as interrupted
	CheckAndMarkCrashed(ctx context.Context) (*dto.ReconcileOutput, error)
}

// FeatureUseCase defines feature management entry points
type FeatureUseCase interface {
	// CreateFeature registers a feature, prepares its branch and spec document
	CreateFeature(ctx context.Context, in dto.CreateFeatureInput) (*dto.CreateFeatureOutput, error)

	// GetFeature returns a feature by id or slug
	GetFeature(ctx context.Context, idOrSlug string) (*dto.FeatureDTO, error)

	// ListFeatures returns features, newest first
	ListFeatures(ctx context.Context, in dto.ListFeaturesInput) ([]*dto.FeatureDTO, error)
}
