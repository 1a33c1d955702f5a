package execution

import "strings"

// ResumeCommand is the human decision delivered to a suspended workflow
type ResumeCommand struct {
	Approved  bool   `json:"approved,omitempty"`
	Rejected  bool   `json:"rejected,omitempty"`
	Feedback  string `json:"feedback,omitempty"`
	Iteration int    `json:"iteration,omitempty"`
}

// ApproveCommand builds the approval payload
func ApproveCommand() ResumeCommand {
	return ResumeCommand{Approved: true}
}

// RejectCommand builds the rejection payload
func RejectCommand(feedback string, iteration int) ResumeCommand {
	return ResumeCommand{
		Rejected:  true,
		Feedback:  feedback,
		Iteration: iteration,
	}
}

// Validate checks that exactly one decision is present
func (c ResumeCommand) Validate() error {
	if c.Approved == c.Rejected {
		return ErrInvalidResumeCommand.WithDetails(map[string]interface{}{
			"approved": c.Approved,
			"rejected": c.Rejected,
		})
	}
	if c.Rejected && strings.TrimSpace(c.Feedback) == "" {
		return ErrFeedbackRequired
	}
	return nil
}
