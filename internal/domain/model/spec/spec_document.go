package spec

import (
	"strings"
	"time"
)

// DocumentFileName is the name of the spec document inside a feature's spec directory
const DocumentFileName = "spec.yaml"

// RejectionFeedbackEntry is one round of human feedback on a suspended phase
type RejectionFeedbackEntry struct {
	Iteration int       `yaml:"iteration"`
	Message   string    `yaml:"message"`
	Phase     string    `yaml:"phase"`
	Timestamp time.Time `yaml:"timestamp"`
}

// MergeMetadata records the outcome of the merge node
type MergeMetadata struct {
	PRURL      string     `yaml:"prUrl,omitempty"`
	PRNumber   int        `yaml:"prNumber,omitempty"`
	CommitHash string     `yaml:"commitHash,omitempty"`
	MergedAt   *time.Time `yaml:"mergedAt,omitempty"`
}

// SpecDocument is the feature's spec.yaml. Keys written by the agent that
// are not modelled here are kept in Extra and written back unchanged.
type SpecDocument struct {
	Name              string                   `yaml:"name,omitempty"`
	Summary           string                   `yaml:"summary,omitempty"`
	RejectionFeedback []RejectionFeedbackEntry `yaml:"rejectionFeedback,omitempty"`
	Merge             *MergeMetadata           `yaml:"merge,omitempty"`
	Extra             map[string]interface{}   `yaml:",inline"`
}

// NewSpecDocument creates a document for a new feature
func NewSpecDocument(name, summary string) *SpecDocument {
	return &SpecDocument{
		Name:    name,
		Summary: summary,
	}
}

// NextIteration returns the iteration number the next rejection will get
func (d *SpecDocument) NextIteration() int {
	return len(d.RejectionFeedback) + 1
}

// AddRejectionFeedback appends a feedback entry and returns it
func (d *SpecDocument) AddRejectionFeedback(message, phase string, at time.Time) RejectionFeedbackEntry {
	entry := RejectionFeedbackEntry{
		Iteration: d.NextIteration(),
		Message:   strings.TrimSpace(message),
		Phase:     phase,
		Timestamp: at.UTC(),
	}
	d.RejectionFeedback = append(d.RejectionFeedback, entry)
	return entry
}

// ApplyMergeMetadata sets the non-empty fields of m
func (d *SpecDocument) ApplyMergeMetadata(m MergeMetadata) {
	if d.Merge == nil {
		d.Merge = &MergeMetadata{}
	}
	if m.PRURL != "" {
		d.Merge.PRURL = m.PRURL
	}
	if m.PRNumber != 0 {
		d.Merge.PRNumber = m.PRNumber
	}
	if m.CommitHash != "" {
		d.Merge.CommitHash = m.CommitHash
	}
	if m.MergedAt != nil {
		d.Merge.MergedAt = m.MergedAt
	}
}
