package output

import (
	"context"
	"time"
)

// AgentGateway executes one prompt against an AI coding agent.
// Implementations differ in whether they can resume a session or enforce an
// output schema; callers check GetCapability before relying on either.
type AgentGateway interface {
	// Execute runs the agent with given request
	Execute(ctx context.Context, req AgentRequest) (*AgentResponse, error)

	// GetCapability returns the agent's capabilities
	GetCapability() AgentCapability

	// HealthCheck verifies if the agent is available
	HealthCheck(ctx context.Context) error
}

// AgentRequest represents a request to an AI agent
type AgentRequest struct {
	Prompt        string            // The prompt to send to the agent
	Cwd           string            // Directory the agent works in
	ResumeSession string            // Session to continue, if supported
	OutputSchema  string            // JSON schema the result must follow, if supported
	Timeout       time.Duration     // Execution timeout
	Context       map[string]string // Additional context information
}

// AgentResponse represents the response from an AI agent
type AgentResponse struct {
	Output    string            // Final result text
	SessionID string            // Session the agent ran in
	ExitCode  int               // Exit code (for CLI-based agents)
	Duration  time.Duration     // Execution duration
	CostUSD   float64           // Reported cost, when available
	AgentType string            // Type of agent that executed
	Metadata  map[string]string // Additional metadata
}

// AgentCapability describes what an agent can do
type AgentCapability struct {
	SupportsSessionResume    bool   // Can continue a previous session
	SupportsStructuredOutput bool   // Can be constrained to a JSON schema
	MaxPromptSize            int    // Maximum prompt size in bytes
	AgentType                string // Agent type identifier
}

// Keys of AgentRequest.Context set by the workflow
const (
	ContextKeyNode      = "node"
	ContextKeyRunID     = "run_id"
	ContextKeyFeatureID = "feature_id"
	ContextKeyStage     = "stage"
)
