package dto

import (
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
)

// IterationWarningThreshold is the rejection iteration from which a warning is returned
const IterationWarningThreshold = 5

// CreateRunInput is the input for starting a feature workflow run
type CreateRunInput struct {
	FeatureID string
	Prompt    string
	AgentName string
}

// CreateRunOutput is the result of CreateRun
type CreateRunOutput struct {
	Created  bool   `json:"created"`
	RunID    string `json:"runId,omitempty"`
	ThreadID string `json:"threadId,omitempty"`
	PID      int    `json:"pid,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Code     string `json:"code,omitempty"`
}

// ApproveRunOutput is the result of ApproveRun
type ApproveRunOutput struct {
	Approved       bool   `json:"approved"`
	RunID          string `json:"runId"`
	Phase          string `json:"phase,omitempty"`
	PID            int    `json:"pid,omitempty"`
	ApprovalWaitMs *int64 `json:"approvalWaitMs,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Code           string `json:"code,omitempty"`
	CurrentStatus  string `json:"currentStatus,omitempty"`
}

// RejectRunInput is the input for RejectRun
type RejectRunInput struct {
	RunID    string
	Feedback string
}

// RejectRunOutput is the result of RejectRun
type RejectRunOutput struct {
	Rejected         bool   `json:"rejected"`
	RunID            string `json:"runId"`
	Phase            string `json:"phase,omitempty"`
	Iteration        int    `json:"iteration,omitempty"`
	IterationWarning bool   `json:"iterationWarning"`
	PID              int    `json:"pid,omitempty"`
	ApprovalWaitMs   *int64 `json:"approvalWaitMs,omitempty"`
	Reason           string `json:"reason,omitempty"`
	Code             string `json:"code,omitempty"`
	CurrentStatus    string `json:"currentStatus,omitempty"`
}

// DeleteFeatureRunInput is the input for DeleteFeatureRun
type DeleteFeatureRunInput struct {
	FeatureID       string
	CleanupWorktree bool
}

// DeleteFeatureRunOutput is the result of DeleteFeatureRun
type DeleteFeatureRunOutput struct {
	Deleted   bool   `json:"deleted"`
	FeatureID string `json:"featureId"`
	RunID     string `json:"runId,omitempty"`
	Signalled bool   `json:"signalled"`
	Cancelled bool   `json:"cancelled"`
	Reason    string `json:"reason,omitempty"`
	Code      string `json:"code,omitempty"`
}

// ResumeRunOutput is the result of ResumeRun
type ResumeRunOutput struct {
	Resumed       bool   `json:"resumed"`
	RunID         string `json:"runId,omitempty"`
	PreviousRunID string `json:"previousRunId"`
	PID           int    `json:"pid,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Code          string `json:"code,omitempty"`
	CurrentStatus string `json:"currentStatus,omitempty"`
}

// ReconcileOutput lists the runs CheckAndMarkCrashed transitioned
type ReconcileOutput struct {
	Checked     int      `json:"checked"`
	Interrupted []string `json:"interrupted"`
}

// ListRunsInput filters ListRuns
type ListRunsInput struct {
	FeatureID string
	Statuses  []string
	Limit     int
}

// StepQuery selects steps or timings by run or by feature. Exactly one is set.
type StepQuery struct {
	RunID     string
	FeatureID string
}

// AgentRunDTO is the read model of an agent run
type AgentRunDTO struct {
	ID            string                   `json:"id"`
	FeatureID     string                   `json:"featureId"`
	AgentType     string                   `json:"agentType"`
	AgentName     string                   `json:"agentName,omitempty"`
	Status        string                   `json:"status"`
	ThreadID      string                   `json:"threadId"`
	Phase         string                   `json:"phase,omitempty"`
	PID           *int                     `json:"pid,omitempty"`
	Result        string                   `json:"result,omitempty"`
	Error         string                   `json:"error,omitempty"`
	ApprovalGates *execution.ApprovalGates `json:"approvalGates,omitempty"`
	StartedAt     *time.Time               `json:"startedAt,omitempty"`
	CompletedAt   *time.Time               `json:"completedAt,omitempty"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

// ExecutionStepDTO is the read model of an execution step
type ExecutionStepDTO struct {
	ID             string                 `json:"id"`
	AgentRunID     string                 `json:"agentRunId"`
	ParentID       *string                `json:"parentId,omitempty"`
	Name           string                 `json:"name"`
	Type           string                 `json:"type"`
	Status         string                 `json:"status"`
	SequenceNumber int                    `json:"sequenceNumber"`
	StartedAt      time.Time              `json:"startedAt"`
	CompletedAt    *time.Time             `json:"completedAt,omitempty"`
	DurationMs     *int64                 `json:"durationMs,omitempty"`
	Outcome        string                 `json:"outcome,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// PhaseTimingDTO is the read model of a phase timing
type PhaseTimingDTO struct {
	ID                string     `json:"id"`
	AgentRunID        string     `json:"agentRunId"`
	Phase             string     `json:"phase"`
	StartedAt         time.Time  `json:"startedAt"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	DurationMs        *int64     `json:"durationMs,omitempty"`
	WaitingApprovalAt *time.Time `json:"waitingApprovalAt,omitempty"`
	ApprovalWaitMs    *int64     `json:"approvalWaitMs,omitempty"`
}
