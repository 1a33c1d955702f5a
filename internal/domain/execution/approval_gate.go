package execution

// ApprovalGates holds the per-feature flags that let phases proceed without
// human approval
type ApprovalGates struct {
	AllowPRD   bool `json:"allowPrd" yaml:"allowPrd"`
	AllowPlan  bool `json:"allowPlan" yaml:"allowPlan"`
	AllowMerge bool `json:"allowMerge" yaml:"allowMerge"`
}

// FullyAutonomous reports whether every gate is open
func (g *ApprovalGates) FullyAutonomous() bool {
	if g == nil {
		return true
	}
	return g.AllowPRD && g.AllowPlan && g.AllowMerge
}

// ShouldInterrupt decides whether the workflow must suspend at node.
//
// nil gates mean no configuration and never interrupt. implement has no flag of
// its own and suspends unless all three gates are open.
func ShouldInterrupt(node Node, gates *ApprovalGates) bool {
	if gates == nil {
		return false
	}

	switch node {
	case NodeRequirements:
		return !gates.AllowPRD
	case NodePlan:
		return !gates.AllowPlan
	case NodeMerge:
		return !gates.AllowMerge
	case NodeImplement:
		return !(gates.AllowPRD && gates.AllowPlan && gates.AllowMerge)
	default:
		return false
	}
}
