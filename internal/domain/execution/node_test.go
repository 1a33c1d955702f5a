package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_Order(t *testing.T) {
	assert.Equal(t, []Node{
		NodeAnalyze, NodeRequirements, NodeResearch, NodePlan, NodeImplement, NodeMerge,
	}, Nodes())
	assert.Equal(t, NodeAnalyze, FirstNode())
}

func TestNode_Next(t *testing.T) {
	next, ok := NodePlan.Next()
	require.True(t, ok)
	assert.Equal(t, NodeImplement, next)

	_, ok = NodeMerge.Next()
	assert.False(t, ok)

	_, ok = Node("bogus").Next()
	assert.False(t, ok)
}

func TestParseNode(t *testing.T) {
	n, err := ParseNode(" Plan ")
	require.NoError(t, err)
	assert.Equal(t, NodePlan, n)

	_, err = ParseNode("deploy")
	assert.Error(t, err)
}

func TestPhaseFromResult(t *testing.T) {
	tests := []struct {
		result   string
		expected string
	}{
		{"node:plan", "plan"},
		{"  node:merge ", "merge"},
		{NodeRequirements.ResultMarker(), "requirements"},
		{"completed", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.result, func(t *testing.T) {
			assert.Equal(t, tt.expected, PhaseFromResult(tt.result))
		})
	}
}

func TestWorkflowState_Validation(t *testing.T) {
	s := NewWorkflowState(false, true)
	assert.Equal(t, NodeAnalyze, s.CurrentNode)
	assert.True(t, s.OpenPR)

	s.RecordValidationFailure([]string{"missing summary"})
	s.RecordValidationFailure([]string{"missing tasks"})
	assert.Equal(t, 2, s.ValidationRetries)
	assert.Equal(t, []string{"missing tasks"}, s.LastValidationErrors)

	s.ResetValidation()
	assert.Zero(t, s.ValidationRetries)
	assert.Nil(t, s.LastValidationErrors)
}

func TestWorkflowState_CompletedAndSessions(t *testing.T) {
	s := NewWorkflowState(false, false)
	s.MarkCompleted(NodeAnalyze)
	s.MarkCompleted(NodeAnalyze)
	assert.Equal(t, []Node{NodeAnalyze}, s.CompletedNodes)
	assert.True(t, s.IsCompleted(NodeAnalyze))
	assert.False(t, s.IsCompleted(NodePlan))

	s.RecordSession(NodeAnalyze, "")
	assert.Empty(t, s.SessionID)
	s.RecordSession(NodeAnalyze, "sess-1")
	assert.Equal(t, "sess-1", s.SessionID)
	assert.Equal(t, "sess-1", s.SessionsByNode[NodeAnalyze])
}
