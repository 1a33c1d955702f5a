package agentrun

import (
	"errors"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model"
)

const (
	// AgentTypeFeature is the agent type recorded for feature workflow runs
	AgentTypeFeature = "feature-agent"
)

// AgentRun is one execution attempt of the feature workflow
type AgentRun struct {
	ID            string
	AgentType     string
	AgentName     string
	Status        RunStatus
	Prompt        string
	ThreadID      string
	FeatureID     string
	PID           *int
	Result        string
	Error         string
	ApprovalGates *execution.ApprovalGates
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewAgentRun creates a pending run with a fresh thread id.
// The gates are copied so later feature edits do not leak into the snapshot.
func NewAgentRun(featureID, agentName, prompt string, gates *execution.ApprovalGates) (*AgentRun, error) {
	if featureID == "" {
		return nil, errors.New("feature ID cannot be empty")
	}

	var snapshot *execution.ApprovalGates
	if gates != nil {
		g := *gates
		snapshot = &g
	}

	now := time.Now().UTC()
	return &AgentRun{
		ID:            model.NewUUID(),
		AgentType:     AgentTypeFeature,
		AgentName:     agentName,
		Status:        StatusPending,
		Prompt:        prompt,
		ThreadID:      model.NewUUID(),
		FeatureID:     featureID,
		ApprovalGates: snapshot,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// LastPhase returns the node encoded in Result, or an empty string
func (r *AgentRun) LastPhase() string {
	return execution.PhaseFromResult(r.Result)
}

// HasPID returns true when a worker pid is recorded
func (r *AgentRun) HasPID() bool {
	return r.PID != nil && *r.PID > 0
}

// IsWaitingApproval returns true if the run is suspended at a gate
func (r *AgentRun) IsWaitingApproval() bool {
	return r.Status == StatusWaitingApproval
}
