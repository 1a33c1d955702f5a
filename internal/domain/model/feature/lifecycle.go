package feature

import "github.com/YoshitsuguKoike/deeflow/internal/domain/execution"

// Lifecycle is the SDLC stage of a feature
type Lifecycle string

const (
	LifecycleStarted        Lifecycle = "Started"
	LifecycleAnalyze        Lifecycle = "Analyze"
	LifecycleRequirements   Lifecycle = "Requirements"
	LifecycleResearch       Lifecycle = "Research"
	LifecyclePlan           Lifecycle = "Plan"
	LifecycleImplementation Lifecycle = "Implementation"
	LifecycleReview         Lifecycle = "Review"
	LifecycleMaintain       Lifecycle = "Maintain"
	LifecycleBlocked        Lifecycle = "Blocked"
)

// String returns the string representation
func (l Lifecycle) String() string {
	return string(l)
}

// IsValid validates the lifecycle
func (l Lifecycle) IsValid() bool {
	switch l {
	case LifecycleStarted, LifecycleAnalyze, LifecycleRequirements, LifecycleResearch,
		LifecyclePlan, LifecycleImplementation, LifecycleReview, LifecycleMaintain, LifecycleBlocked:
		return true
	default:
		return false
	}
}

// LifecycleForNode maps a workflow node to the lifecycle a feature enters with it
func LifecycleForNode(node execution.Node) Lifecycle {
	switch node {
	case execution.NodeAnalyze:
		return LifecycleAnalyze
	case execution.NodeRequirements:
		return LifecycleRequirements
	case execution.NodeResearch:
		return LifecycleResearch
	case execution.NodePlan:
		return LifecyclePlan
	case execution.NodeImplement:
		return LifecycleImplementation
	case execution.NodeMerge:
		return LifecycleReview
	default:
		return LifecycleStarted
	}
}
