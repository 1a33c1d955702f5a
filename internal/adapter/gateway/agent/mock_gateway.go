package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/YoshitsuguKoike/deeflow/internal/application/port/output"
)

// AgentTypeMock is the agent_type of the scripted gateway
const AgentTypeMock = "mock"

// MockHandler produces the response for one call
type MockHandler func(ctx context.Context, call int, req output.AgentRequest) (*output.AgentResponse, error)

// MockGateway is a scripted AgentGateway. Without a handler it answers every
// node with output that passes validation, which makes it usable for dry runs.
type MockGateway struct {
	Handler    MockHandler
	Capability output.AgentCapability

	mu       sync.Mutex
	requests []output.AgentRequest
}

// NewMockGateway creates a mock gateway answering with canned output
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Capability: output.AgentCapability{
			SupportsSessionResume:    true,
			SupportsStructuredOutput: true,
			MaxPromptSize:            100000,
			AgentType:                AgentTypeMock,
		},
	}
}

// Execute records the request and returns the scripted response
func (g *MockGateway) Execute(ctx context.Context, req output.AgentRequest) (*output.AgentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.requests = append(g.requests, req)
	call := len(g.requests)
	handler := g.Handler
	g.mu.Unlock()

	if handler == nil {
		handler = CannedResponse
	}
	resp, err := handler(ctx, call, req)
	if err != nil {
		return nil, err
	}
	if resp.AgentType == "" {
		resp.AgentType = AgentTypeMock
	}
	return resp, nil
}

// GetCapability returns the configured capabilities
func (g *MockGateway) GetCapability() output.AgentCapability {
	return g.Capability
}

// HealthCheck always returns success for mock
func (g *MockGateway) HealthCheck(ctx context.Context) error {
	return nil
}

// Requests returns a copy of every request seen so far
func (g *MockGateway) Requests() []output.AgentRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]output.AgentRequest, len(g.requests))
	copy(out, g.requests)
	return out
}

// CannedResponse answers with minimal valid output for the node in req.Context
func CannedResponse(_ context.Context, call int, req output.AgentRequest) (*output.AgentResponse, error) {
	node := req.Context[output.ContextKeyNode]

	var out string
	switch node {
	case "requirements":
		out = `{"summary":"mock requirements","requirements":["the feature works"]}`
	case "research":
		out = `{"summary":"mock research","decisions":["use the existing stack"]}`
	case "plan":
		out = `{"summary":"mock plan","tasks":[{"title":"implement","description":"write the code"}]}`
	default:
		out = fmt.Sprintf("[mock] %s done", node)
	}

	session := req.ResumeSession
	if session == "" {
		session = fmt.Sprintf("mock-session-%d", call)
	}

	return &output.AgentResponse{
		Output:    out,
		SessionID: session,
		Duration:  time.Millisecond,
		AgentType: AgentTypeMock,
		Metadata:  map[string]string{"mock": "true"},
	}, nil
}
