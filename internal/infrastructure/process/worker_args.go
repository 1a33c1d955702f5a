package process

import (
	"encoding/json"
	"fmt"

	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
)

// Worker command-line flags shared by the supervisor and the worker command
const (
	FlagRunID               = "run-id"
	FlagFeatureID           = "feature-id"
	FlagThreadID            = "thread-id"
	FlagApprovalGates       = "approval-gates"
	FlagResume              = "resume"
	FlagResumeFromInterrupt = "resume-from-interrupt"
	FlagResumePayload       = "resume-payload"
)

// BuildWorkerArgs renders req as worker flags. The feature and thread ids are
// passed so the worker can refuse a run that does not match them.
func BuildWorkerArgs(req output.WorkerRequest) ([]string, error) {
	if req.RunID == "" || req.FeatureID == "" || req.ThreadID == "" {
		return nil, fmt.Errorf("worker request requires run, feature and thread ids")
	}

	args := []string{
		"--" + FlagRunID, req.RunID,
		"--" + FlagFeatureID, req.FeatureID,
		"--" + FlagThreadID, req.ThreadID,
	}
	if req.ApprovalGates != nil {
		data, err := json.Marshal(req.ApprovalGates)
		if err != nil {
			return nil, fmt.Errorf("marshal approval gates: %w", err)
		}
		args = append(args, "--"+FlagApprovalGates, string(data))
	}
	if req.Resume {
		args = append(args, "--"+FlagResume)
	}
	if req.ResumeFromInterrupt {
		if req.ResumePayload == nil {
			return nil, fmt.Errorf("resume from interrupt requires a payload")
		}
		data, err := json.Marshal(req.ResumePayload)
		if err != nil {
			return nil, fmt.Errorf("marshal resume payload: %w", err)
		}
		args = append(args, "--"+FlagResumeFromInterrupt, "--"+FlagResumePayload, string(data))
	}

	return args, nil
}
