package agent

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/deeflow/internal/interface/external/claudecli"
)

// AgentTypeClaudeCodeCLI is the agent_type of the claude CLI gateway
const AgentTypeClaudeCodeCLI = "claude-code-cli"

// ClaudeCodeCLIGateway implements AgentGateway using Claude Code CLI.
// It runs `claude -p --output-format json --dangerously-skip-permissions` in the
// request's working directory.
type ClaudeCodeCLIGateway struct {
	runner *claudecli.Runner
}

// NewClaudeCodeCLIGateway creates a new Claude Code CLI gateway.
// An empty bin defaults to "claude" on PATH.
func NewClaudeCodeCLIGateway(bin string, timeout time.Duration) *ClaudeCodeCLIGateway {
	if bin == "" {
		bin = "claude"
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	return &ClaudeCodeCLIGateway{
		runner: &claudecli.Runner{
			Bin:             bin,
			Timeout:         timeout,
			SkipPermissions: true,
		},
	}
}

// Execute runs Claude Code CLI with the given request
func (g *ClaudeCodeCLIGateway) Execute(ctx context.Context, req output.AgentRequest) (*output.AgentResponse, error) {
	start := time.Now()

	runner := *g.runner
	if req.Timeout > 0 {
		runner.Timeout = req.Timeout
	}

	result, err := runner.Run(ctx, claudecli.Request{
		Prompt:        req.Prompt,
		Cwd:           req.Cwd,
		ResumeSession: req.ResumeSession,
		JSONSchema:    req.OutputSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("claude CLI execution failed: %w", err)
	}

	return &output.AgentResponse{
		Output:    result.Result,
		SessionID: result.SessionID,
		ExitCode:  0,
		Duration:  time.Since(start),
		CostUSD:   result.TotalCost,
		AgentType: AgentTypeClaudeCodeCLI,
		Metadata: map[string]string{
			"working_dir": req.Cwd,
			"num_turns":   strconv.Itoa(result.NumTurns),
		},
	}, nil
}

// GetCapability returns Claude Code CLI's capabilities
func (g *ClaudeCodeCLIGateway) GetCapability() output.AgentCapability {
	return output.AgentCapability{
		SupportsSessionResume:    true,
		SupportsStructuredOutput: true,
		MaxPromptSize:            200000,
		AgentType:                AgentTypeClaudeCodeCLI,
	}
}

// HealthCheck verifies the claude binary is on PATH
func (g *ClaudeCodeCLIGateway) HealthCheck(ctx context.Context) error {
	if _, err := exec.LookPath(g.runner.Bin); err != nil {
		return fmt.Errorf("claude CLI not found: %w", err)
	}
	return nil
}
