package step

import (
	"errors"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/model"
)

// StepType classifies an execution step
type StepType string

const (
	TypePhase        StepType = "phase"
	TypeAgentCall    StepType = "agent-call"
	TypeValidation   StepType = "validation"
	TypeVerification StepType = "verification"
	TypeSubStep      StepType = "sub-step"
)

// StepStatus represents the status of an execution step
type StepStatus string

const (
	StatusRunning   StepStatus = "running"
	StatusCompleted StepStatus = "completed"
	StatusFailed    StepStatus = "failed"
	StatusSkipped   StepStatus = "skipped"
)

// IsFinished returns true once the step has an outcome
func (s StepStatus) IsFinished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// ExecutionStep is one node of the step tree recorded for an agent run.
// SequenceNumber is assigned by the repository per (AgentRunID, ParentID).
type ExecutionStep struct {
	ID             string
	AgentRunID     string
	ParentID       *string
	Name           string
	Type           StepType
	Status         StepStatus
	SequenceNumber int
	StartedAt      time.Time
	CompletedAt    *time.Time
	DurationMs     *int64
	Outcome        string
	Metadata       map[string]interface{}
}

// NewExecutionStep creates a running step
func NewExecutionStep(agentRunID string, parentID *string, name string, stepType StepType) (*ExecutionStep, error) {
	if agentRunID == "" {
		return nil, errors.New("agent run ID cannot be empty")
	}
	if name == "" {
		return nil, errors.New("step name cannot be empty")
	}

	return &ExecutionStep{
		ID:         model.NewULID(),
		AgentRunID: agentRunID,
		ParentID:   parentID,
		Name:       name,
		Type:       stepType,
		Status:     StatusRunning,
		StartedAt:  time.Now().UTC(),
		Metadata:   make(map[string]interface{}),
	}, nil
}

// StepPatch lists the columns of a step update. Nil fields are left untouched;
// Metadata keys are merged into the stored document.
type StepPatch struct {
	Status      *StepStatus
	CompletedAt *time.Time
	DurationMs  *int64
	Outcome     *string
	Metadata    map[string]interface{}
}

// Finish builds the patch that closes the step at the given time
func (s *ExecutionStep) Finish(status StepStatus, outcome string, at time.Time) StepPatch {
	duration := at.Sub(s.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	return StepPatch{
		Status:      &status,
		CompletedAt: &at,
		DurationMs:  &duration,
		Outcome:     &outcome,
	}
}

// IsEmpty returns true if the patch changes nothing
func (p StepPatch) IsEmpty() bool {
	return p.Status == nil && p.CompletedAt == nil && p.DurationMs == nil &&
		p.Outcome == nil && len(p.Metadata) == 0
}

// MergeMetadata shallow-merges patch into base, overwriting existing keys
func MergeMetadata(base, patch map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return merged
}
