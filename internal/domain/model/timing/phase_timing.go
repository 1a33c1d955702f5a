package timing

import (
	"errors"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/model"
)

// PhaseTiming records how long a workflow node ran and how long it waited for approval
type PhaseTiming struct {
	ID                string
	AgentRunID        string
	Phase             string
	StartedAt         time.Time
	CompletedAt       *time.Time
	DurationMs        *int64
	WaitingApprovalAt *time.Time
	ApprovalWaitMs    *int64
}

// NewPhaseTiming starts timing a phase
func NewPhaseTiming(agentRunID, phase string, startedAt time.Time) (*PhaseTiming, error) {
	if agentRunID == "" {
		return nil, errors.New("agent run ID cannot be empty")
	}
	if phase == "" {
		return nil, errors.New("phase cannot be empty")
	}
	return &PhaseTiming{
		ID:         model.NewULID(),
		AgentRunID: agentRunID,
		Phase:      phase,
		StartedAt:  startedAt.UTC(),
	}, nil
}

// IsAwaitingApproval returns true if a wait started and has not been recorded yet
func (t *PhaseTiming) IsAwaitingApproval() bool {
	return t.WaitingApprovalAt != nil && t.ApprovalWaitMs == nil
}

// ApprovalWait computes the elapsed wait until now. ok is false when no wait is pending.
func (t *PhaseTiming) ApprovalWait(now time.Time) (waitMs int64, ok bool) {
	if !t.IsAwaitingApproval() {
		return 0, false
	}
	waitMs = now.Sub(*t.WaitingApprovalAt).Milliseconds()
	if waitMs < 0 {
		waitMs = 0
	}
	return waitMs, true
}

// Elapsed returns the duration between start and completion
func Elapsed(startedAt, completedAt time.Time) int64 {
	ms := completedAt.Sub(startedAt).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
