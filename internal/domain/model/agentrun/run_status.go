package agentrun

// RunStatus represents the lifecycle status of an agent run
type RunStatus string

const (
	StatusPending         RunStatus = "pending"
	StatusRunning         RunStatus = "running"
	StatusWaitingApproval RunStatus = "waiting_approval"
	StatusCompleted       RunStatus = "completed"
	StatusFailed          RunStatus = "failed"
	StatusCancelled       RunStatus = "cancelled"
	StatusInterrupted     RunStatus = "interrupted"
)

// String returns the string representation of the status
func (s RunStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is known
func (s RunStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusWaitingApproval,
		StatusCompleted, StatusFailed, StatusCancelled, StatusInterrupted:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the run can no longer change status
func (s RunStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusInterrupted:
		return true
	default:
		return false
	}
}

// IsActive returns true for statuses that count against the one-active-run rule
func (s RunStatus) IsActive() bool {
	return s.IsValid() && !s.IsTerminal()
}

// HasWorker returns true if a worker process is expected to exist
func (s RunStatus) HasWorker() bool {
	return s == StatusPending || s == StatusRunning
}

// ActiveStatuses lists every non-terminal status
func ActiveStatuses() []RunStatus {
	return []RunStatus{StatusPending, StatusRunning, StatusWaitingApproval}
}

// CanTransitionTo checks if transition to another status is allowed
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	validTransitions := map[RunStatus][]RunStatus{
		StatusPending:         {StatusRunning, StatusFailed, StatusCancelled, StatusInterrupted},
		StatusRunning:         {StatusWaitingApproval, StatusCompleted, StatusFailed, StatusCancelled, StatusInterrupted},
		StatusWaitingApproval: {StatusRunning, StatusCancelled},
	}

	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}

	for _, validNext := range allowed {
		if validNext == next {
			return true
		}
	}

	return false
}
