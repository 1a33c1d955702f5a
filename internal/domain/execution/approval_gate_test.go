package execution

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldInterrupt(t *testing.T) {
	tests := []struct {
		name     string
		node     Node
		gates    *ApprovalGates
		expected bool
	}{
		{"nil gates never interrupt requirements", NodeRequirements, nil, false},
		{"nil gates never interrupt implement", NodeImplement, nil, false},
		{"nil gates never interrupt merge", NodeMerge, nil, false},
		{"requirements closed", NodeRequirements, &ApprovalGates{}, true},
		{"requirements open", NodeRequirements, &ApprovalGates{AllowPRD: true}, false},
		{"plan closed", NodePlan, &ApprovalGates{AllowPRD: true}, true},
		{"plan open", NodePlan, &ApprovalGates{AllowPlan: true}, false},
		{"merge closed", NodeMerge, &ApprovalGates{AllowPRD: true, AllowPlan: true}, true},
		{"merge open", NodeMerge, &ApprovalGates{AllowMerge: true}, false},
		{"implement with merge closed", NodeImplement, &ApprovalGates{AllowPRD: true, AllowPlan: true}, true},
		{"implement with prd closed", NodeImplement, &ApprovalGates{AllowPlan: true, AllowMerge: true}, true},
		{"implement fully autonomous", NodeImplement, &ApprovalGates{AllowPRD: true, AllowPlan: true, AllowMerge: true}, false},
		{"analyze never gated", NodeAnalyze, &ApprovalGates{}, false},
		{"research never gated", NodeResearch, &ApprovalGates{}, false},
		{"unknown node never gated", Node("deploy"), &ApprovalGates{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShouldInterrupt(tt.node, tt.gates))
		})
	}
}

func TestApprovalGates_FullyAutonomous(t *testing.T) {
	var nilGates *ApprovalGates
	assert.True(t, nilGates.FullyAutonomous())
	assert.False(t, (&ApprovalGates{AllowPRD: true, AllowPlan: true}).FullyAutonomous())
	assert.True(t, (&ApprovalGates{AllowPRD: true, AllowPlan: true, AllowMerge: true}).FullyAutonomous())
}
