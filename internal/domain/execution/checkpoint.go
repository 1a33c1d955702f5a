package execution

import "time"

// Message is one entry of the accumulated workflow conversation
type Message struct {
	Node    Node      `json:"node"`
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Message roles
const (
	RolePrompt   = "prompt"
	RoleResult   = "result"
	RoleFeedback = "feedback"
)

// PendingInterrupt records where the workflow suspended
type PendingInterrupt struct {
	Node     Node      `json:"node"`
	RaisedAt time.Time `json:"raisedAt"`
}

// Feedback is rejection feedback waiting to be injected into the next run of a node
type Feedback struct {
	Message   string `json:"message"`
	Iteration int    `json:"iteration"`
}

// WorkflowState is the serialized execution state stored in a checkpoint
type WorkflowState struct {
	CurrentNode          Node              `json:"currentNode"`
	CompletedNodes       []Node            `json:"completedNodes,omitempty"`
	ValidationRetries    int               `json:"validationRetries"`
	LastValidationErrors []string          `json:"lastValidationErrors,omitempty"`
	SessionID            string            `json:"sessionId,omitempty"`
	SessionsByNode       map[Node]string   `json:"sessionsByNode,omitempty"`
	Messages             []Message         `json:"messages,omitempty"`
	Push                 bool              `json:"push"`
	OpenPR               bool              `json:"openPr"`
	PRURL                string            `json:"prUrl,omitempty"`
	PRNumber             int               `json:"prNumber,omitempty"`
	CommitHash           string            `json:"commitHash,omitempty"`
	MergeCommitted       bool              `json:"mergeCommitted,omitempty"`
	Merged               bool              `json:"merged,omitempty"`
	PendingInterrupt     *PendingInterrupt `json:"pendingInterrupt,omitempty"`
	Feedback             *Feedback         `json:"feedback,omitempty"`
}

// NewWorkflowState creates the state for a fresh run
func NewWorkflowState(push, openPR bool) *WorkflowState {
	return &WorkflowState{
		CurrentNode:    FirstNode(),
		SessionsByNode: make(map[Node]string),
		Push:           push,
		OpenPR:         openPR,
	}
}

// AppendMessage adds an entry to the message log
func (s *WorkflowState) AppendMessage(node Node, role, content string, at time.Time) {
	s.Messages = append(s.Messages, Message{
		Node:    node,
		Role:    role,
		Content: content,
		At:      at,
	})
}

// RecordSession remembers the agent session used by node
func (s *WorkflowState) RecordSession(node Node, sessionID string) {
	if sessionID == "" {
		return
	}
	if s.SessionsByNode == nil {
		s.SessionsByNode = make(map[Node]string)
	}
	s.SessionID = sessionID
	s.SessionsByNode[node] = sessionID
}

// RecordValidationFailure accumulates a failed validation attempt
func (s *WorkflowState) RecordValidationFailure(errs []string) {
	s.ValidationRetries++
	s.LastValidationErrors = append([]string(nil), errs...)
}

// ResetValidation clears the retry counter after a node passes validation
func (s *WorkflowState) ResetValidation() {
	s.ValidationRetries = 0
	s.LastValidationErrors = nil
}

// MarkCompleted records node as finished
func (s *WorkflowState) MarkCompleted(node Node) {
	for _, done := range s.CompletedNodes {
		if done == node {
			return
		}
	}
	s.CompletedNodes = append(s.CompletedNodes, node)
}

// IsCompleted returns true if node already finished in this thread
func (s *WorkflowState) IsCompleted(node Node) bool {
	for _, done := range s.CompletedNodes {
		if done == node {
			return true
		}
	}
	return false
}

// Checkpoint is a durable snapshot of WorkflowState keyed by thread id.
// Versions increase per thread; older versions are kept.
type Checkpoint struct {
	ID        string
	ThreadID  string
	Version   int
	State     WorkflowState
	CreatedAt time.Time
}
