package agent

import (
	"fmt"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
)

// Options configures the gateway built by NewAgentGateway
type Options struct {
	Bin     string
	Timeout time.Duration
}

// NewAgentGateway creates an agent gateway based on agent type
// Supported types: claude-code-cli, mock
func NewAgentGateway(agentType string, opts Options) (output.AgentGateway, error) {
	switch agentType {
	case "", AgentTypeClaudeCodeCLI:
		return NewClaudeCodeCLIGateway(opts.Bin, opts.Timeout), nil

	case AgentTypeMock:
		return NewMockGateway(), nil

	default:
		return nil, fmt.Errorf("unknown agent type: %s (supported: %s, %s)", agentType, AgentTypeClaudeCodeCLI, AgentTypeMock)
	}
}

// GetAvailableAgents returns the agent types NewAgentGateway accepts
func GetAvailableAgents() []string {
	return []string{AgentTypeClaudeCodeCLI, AgentTypeMock}
}

// GetDefaultAgent returns the default agent type to use
func GetDefaultAgent() string {
	return AgentTypeClaudeCodeCLI
}
