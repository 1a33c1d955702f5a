package execution

import (
	"testing"

	"pgregory.net/rapid"
)

func genGates() *rapid.Generator[*ApprovalGates] {
	return rapid.Custom(func(t *rapid.T) *ApprovalGates {
		return &ApprovalGates{
			AllowPRD:   rapid.Bool().Draw(t, "allowPrd"),
			AllowPlan:  rapid.Bool().Draw(t, "allowPlan"),
			AllowMerge: rapid.Bool().Draw(t, "allowMerge"),
		}
	})
}

// TestShouldInterrupt_MergeProperty verifies merge follows allowMerge only
func TestShouldInterrupt_MergeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		gates := genGates().Draw(t, "gates")
		if ShouldInterrupt(NodeMerge, gates) != !gates.AllowMerge {
			t.Fatalf("merge interrupt mismatch for %+v", *gates)
		}
	})
}

// TestShouldInterrupt_ImplementProperty verifies implement needs all three gates open
func TestShouldInterrupt_ImplementProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		gates := genGates().Draw(t, "gates")
		want := !(gates.AllowPRD && gates.AllowPlan && gates.AllowMerge)
		if ShouldInterrupt(NodeImplement, gates) != want {
			t.Fatalf("implement interrupt mismatch for %+v", *gates)
		}
	})
}

// TestShouldInterrupt_NilGatesProperty verifies missing configuration never suspends
func TestShouldInterrupt_NilGatesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		node := rapid.SampledFrom(Nodes()).Draw(t, "node")
		if ShouldInterrupt(node, nil) {
			t.Fatalf("node %s interrupted without gates", node)
		}
	})
}

// TestShouldInterrupt_UngatedNodesProperty verifies analyze and research never suspend
func TestShouldInterrupt_UngatedNodesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		gates := genGates().Draw(t, "gates")
		node := rapid.SampledFrom([]Node{NodeAnalyze, NodeResearch}).Draw(t, "node")
		if ShouldInterrupt(node, gates) {
			t.Fatalf("node %s interrupted with %+v", node, *gates)
		}
	})
}
