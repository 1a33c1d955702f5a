package execution

import (
	"errors"
	"fmt"
)

// ExecutionError represents domain-specific errors for feature agent runs
type ExecutionError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (e ExecutionError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Common execution errors
var (
	// ErrRunNotFound indicates the agent run was not found
	ErrRunNotFound = ExecutionError{
		Code:    "RUN_NOT_FOUND",
		Message: "Agent run not found",
	}

	// ErrFeatureNotFound indicates the feature was not found
	ErrFeatureNotFound = ExecutionError{
		Code:    "FEATURE_NOT_FOUND",
		Message: "Feature not found",
	}

	// ErrInvalidRunState indicates the run is not in the status an operation requires
	ErrInvalidRunState = ExecutionError{
		Code:    "RUN_INVALID_STATE",
		Message: "Agent run is not in the required status",
	}

	// ErrActiveRunExists indicates the feature already has a non-terminal run
	ErrActiveRunExists = ExecutionError{
		Code:    "RUN_ALREADY_ACTIVE",
		Message: "An active agent run already exists for this feature",
	}

	// ErrFeedbackRequired indicates a rejection without feedback
	ErrFeedbackRequired = ExecutionError{
		Code:    "FEEDBACK_REQUIRED",
		Message: "Rejection feedback must not be empty",
	}

	// ErrSpecPathMissing indicates the feature has no spec document
	ErrSpecPathMissing = ExecutionError{
		Code:    "SPEC_PATH_MISSING",
		Message: "Feature has no spec document path",
	}

	// ErrCheckpointNotFound indicates a resume without a stored checkpoint
	ErrCheckpointNotFound = ExecutionError{
		Code:    "CHECKPOINT_NOT_FOUND",
		Message: "No checkpoint stored for thread",
	}

	// ErrInvalidResumeCommand indicates a malformed resume payload
	ErrInvalidResumeCommand = ExecutionError{
		Code:    "RESUME_INVALID",
		Message: "Resume command must either approve or reject",
	}

	// ErrNotSuspended indicates a resume-from-interrupt on a thread with no pending interrupt
	ErrNotSuspended = ExecutionError{
		Code:    "RESUME_NOT_SUSPENDED",
		Message: "Workflow is not suspended at an approval gate",
	}

	// ErrValidationRetriesExceeded indicates a node kept producing invalid output
	ErrValidationRetriesExceeded = ExecutionError{
		Code:    "VALIDATION_RETRIES_EXCEEDED",
		Message: "Node output failed validation too many times",
	}

	// ErrMergeVerificationFailed indicates the feature branch did not land on the base branch
	ErrMergeVerificationFailed = ExecutionError{
		Code:    "MERGE_NOT_VERIFIED",
		Message: "Merge could not be verified in git history",
	}
)

// NewExecutionError creates a new execution error with details
func NewExecutionError(code, message string, details map[string]interface{}) ExecutionError {
	return ExecutionError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WithDetails adds details to an existing error
func (e ExecutionError) WithDetails(details map[string]interface{}) ExecutionError {
	e.Details = details
	return e
}

// WithMessage replaces the message while keeping the code
func (e ExecutionError) WithMessage(format string, args ...interface{}) ExecutionError {
	e.Message = fmt.Sprintf(format, args...)
	return e
}

// hasCode unwraps err looking for an ExecutionError with code
func hasCode(err error, code string) bool {
	var execErr ExecutionError
	return errors.As(err, &execErr) && execErr.Code == code
}

// CodeOf returns the code of the first ExecutionError in err's chain
func CodeOf(err error) string {
	var execErr ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Code
	}
	return ""
}

// IsRunNotFound checks if the error is a run not found error
func IsRunNotFound(err error) bool {
	return hasCode(err, ErrRunNotFound.Code)
}

// IsFeatureNotFound checks if the error is a feature not found error
func IsFeatureNotFound(err error) bool {
	return hasCode(err, ErrFeatureNotFound.Code)
}

// IsNotFound checks for either not found error
func IsNotFound(err error) bool {
	return IsRunNotFound(err) || IsFeatureNotFound(err) || hasCode(err, ErrCheckpointNotFound.Code)
}

// IsInvalidRunState checks if the error is an invalid state error
func IsInvalidRunState(err error) bool {
	return hasCode(err, ErrInvalidRunState.Code)
}

// IsActiveRunExists checks if the error is an active run conflict
func IsActiveRunExists(err error) bool {
	return hasCode(err, ErrActiveRunExists.Code)
}

// IsValidationRetriesExceeded checks if the error is a validation ceiling error
func IsValidationRetriesExceeded(err error) bool {
	return hasCode(err, ErrValidationRetriesExceeded.Code)
}

// IsMergeVerificationFailed checks if the error is a merge verification error
func IsMergeVerificationFailed(err error) bool {
	return hasCode(err, ErrMergeVerificationFailed.Code)
}
