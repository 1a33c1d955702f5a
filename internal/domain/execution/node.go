package execution

import (
	"fmt"
	"strings"
)

// Node identifies one phase of the feature workflow
type Node string

const (
	NodeAnalyze      Node = "analyze"
	NodeRequirements Node = "requirements"
	NodeResearch     Node = "research"
	NodePlan         Node = "plan"
	NodeImplement    Node = "implement"
	NodeMerge        Node = "merge"
)

// resultNodePrefix marks the last active node inside AgentRun.Result
const resultNodePrefix = "node:"

// nodeOrder is the fixed nominal order of the workflow
var nodeOrder = []Node{
	NodeAnalyze,
	NodeRequirements,
	NodeResearch,
	NodePlan,
	NodeImplement,
	NodeMerge,
}

// Nodes returns the workflow nodes in execution order
func Nodes() []Node {
	out := make([]Node, len(nodeOrder))
	copy(out, nodeOrder)
	return out
}

// FirstNode returns the entry node of the workflow
func FirstNode() Node {
	return nodeOrder[0]
}

// ParseNode converts a string to a Node
func ParseNode(s string) (Node, error) {
	n := Node(strings.ToLower(strings.TrimSpace(s)))
	if !n.IsValid() {
		return "", fmt.Errorf("unknown workflow node: %q", s)
	}
	return n, nil
}

// String returns the string representation of the node
func (n Node) String() string {
	return string(n)
}

// IsValid returns true if the node is part of the workflow
func (n Node) IsValid() bool {
	return n.Index() >= 0
}

// Index returns the position of the node in the workflow, or -1
func (n Node) Index() int {
	for i, candidate := range nodeOrder {
		if candidate == n {
			return i
		}
	}
	return -1
}

// Next returns the node that follows n. ok is false for the last node.
func (n Node) Next() (next Node, ok bool) {
	i := n.Index()
	if i < 0 || i+1 >= len(nodeOrder) {
		return "", false
	}
	return nodeOrder[i+1], true
}

// ResultMarker encodes the node for AgentRun.Result
func (n Node) ResultMarker() string {
	return resultNodePrefix + string(n)
}

// PhaseFromResult strips the "node:" prefix from an AgentRun result.
// Returns an empty string when the result carries no node marker.
func PhaseFromResult(result string) string {
	result = strings.TrimSpace(result)
	if !strings.HasPrefix(result, resultNodePrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(result, resultNodePrefix))
}
