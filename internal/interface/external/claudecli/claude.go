package claudecli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes `claude -p --output-format json` and parses the result envelope
type Runner struct {
	Bin     string
	Timeout time.Duration
	// SkipPermissions passes --dangerously-skip-permissions so the agent can
	// edit files without interactive prompts
	SkipPermissions bool
}

// ClaudeResponse represents the JSON response from claude
type ClaudeResponse struct {
	Type             string          `json:"type"`
	Subtype          string          `json:"subtype"`
	IsError          bool            `json:"is_error"`
	DurationMs       int             `json:"duration_ms"`
	NumTurns         int             `json:"num_turns"`
	Result           string          `json:"result"`
	SessionID        string          `json:"session_id"`
	TotalCost        float64         `json:"total_cost_usd"`
	UUID             string          `json:"uuid"`
	StructuredOutput json.RawMessage `json:"structured_output,omitempty"`
}

// Request is one non-interactive invocation
type Request struct {
	Prompt          string
	Cwd             string
	ResumeSession   string   // --resume <session>
	JSONSchema      string   // --json-schema <schema>
	AllowedTools    []string // Tools to allow (e.g., "Read", "Edit", "Bash")
	DisallowedTools []string // Tools to disallow
}

// Args builds the command line for req
func (r Runner) Args(req Request) []string {
	args := []string{"-p", "--output-format", "json"}
	if r.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	if req.ResumeSession != "" {
		args = append(args, "--resume", req.ResumeSession)
	}
	if req.JSONSchema != "" {
		args = append(args, "--json-schema", req.JSONSchema)
	}
	if len(req.AllowedTools) > 0 {
		args = append(args, "--allowed-tools", strings.Join(req.AllowedTools, ","))
	}
	if len(req.DisallowedTools) > 0 {
		args = append(args, "--disallowed-tools", strings.Join(req.DisallowedTools, ","))
	}
	return append(args, req.Prompt)
}

// Run executes claude and returns the parsed envelope. When structured output
// was requested its JSON replaces Result.
func (r Runner) Run(ctx context.Context, req Request) (*ClaudeResponse, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Bin, r.Args(req)...)
	cmd.Dir = req.Cwd
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("claude timed out after %s", r.Timeout)
	}

	response, parseErr := ParseResponse(stdout.Bytes())
	if runErr != nil {
		// A non-zero exit with an error envelope is reported by the envelope
		if parseErr == nil && response.IsError {
			return nil, fmt.Errorf("claude returned error: %s", response.Result)
		}
		return nil, fmt.Errorf("claude execution failed: %w (stderr: %s)", runErr, strings.TrimSpace(stderr.String()))
	}
	if parseErr != nil {
		return nil, parseErr
	}
	if response.IsError {
		return nil, fmt.Errorf("claude returned error: %s", response.Result)
	}
	return response, nil
}

// ParseResponse decodes the json output envelope. Output that is not an
// envelope is returned as a plain result.
func ParseResponse(out []byte) (*ClaudeResponse, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("claude produced no output")
	}

	var response ClaudeResponse
	if err := json.Unmarshal(trimmed, &response); err != nil || response.Type == "" {
		return &ClaudeResponse{Type: "result", Result: string(trimmed)}, nil
	}

	if len(response.StructuredOutput) > 0 && string(response.StructuredOutput) != "null" {
		response.Result = string(response.StructuredOutput)
	}
	return &response, nil
}
