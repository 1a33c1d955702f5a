package spec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpecDocument_AddRejectionFeedback(t *testing.T) {
	doc := NewSpecDocument("login", "users log in")
	now := time.Now()

	first := doc.AddRejectionFeedback("  add MFA ", "requirements", now)
	second := doc.AddRejectionFeedback("smaller scope", "requirements", now)

	assert.Equal(t, 1, first.Iteration)
	assert.Equal(t, "add MFA", first.Message)
	assert.Equal(t, 2, second.Iteration)
	assert.Equal(t, 3, doc.NextIteration())
}

func TestSpecDocument_ApplyMergeMetadata(t *testing.T) {
	doc := NewSpecDocument("login", "")
	doc.ApplyMergeMetadata(MergeMetadata{PRURL: "https://github.com/o/r/pull/7", PRNumber: 7})
	doc.ApplyMergeMetadata(MergeMetadata{CommitHash: "abc1234"})

	assert.Equal(t, "https://github.com/o/r/pull/7", doc.Merge.PRURL)
	assert.Equal(t, 7, doc.Merge.PRNumber)
	assert.Equal(t, "abc1234", doc.Merge.CommitHash)
}
