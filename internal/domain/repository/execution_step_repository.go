package repository

import (
	"context"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/step"
)

// ExecutionStepRepository persists the step tree of agent runs
type ExecutionStepRepository interface {
	// Save inserts the step and assigns its SequenceNumber within (AgentRunID, ParentID)
	Save(ctx context.Context, s *step.ExecutionStep) error

	// Update writes the columns present in patch; metadata keys are merged
	Update(ctx context.Context, id string, patch step.StepPatch) error

	// FindByID retrieves a single step
	FindByID(ctx context.Context, id string) (*step.ExecutionStep, error)

	// FindByRunID returns the steps of a run ordered by start time and sequence
	FindByRunID(ctx context.Context, runID string) ([]*step.ExecutionStep, error)

	// FindByFeatureID returns the steps of every run of a feature
	FindByFeatureID(ctx context.Context, featureID string) ([]*step.ExecutionStep, error)

	// GetNextSequenceNumber returns max+1 for the (runID, parentID) scope, starting at 1
	GetNextSequenceNumber(ctx context.Context, runID string, parentID *string) (int, error)
}
