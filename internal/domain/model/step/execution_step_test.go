package step

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewExecutionStep(t *testing.T) {
	s, err := NewExecutionStep("run-1", nil, "plan", TypePhase)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, s.Status)
	assert.NotEmpty(t, s.ID)
	assert.Nil(t, s.ParentID)

	_, err = NewExecutionStep("", nil, "plan", TypePhase)
	assert.Error(t, err)
	_, err = NewExecutionStep("run-1", nil, "", TypePhase)
	assert.Error(t, err)
}

func TestExecutionStep_Finish(t *testing.T) {
	s, err := NewExecutionStep("run-1", nil, "plan", TypePhase)
	require.NoError(t, err)

	at := s.StartedAt.Add(1500 * time.Millisecond)
	patch := s.Finish(StatusCompleted, "ok", at)
	require.NotNil(t, patch.DurationMs)
	assert.Equal(t, int64(1500), *patch.DurationMs)
	assert.Equal(t, StatusCompleted, *patch.Status)
	assert.Equal(t, "ok", *patch.Outcome)
	assert.False(t, patch.IsEmpty())
	assert.True(t, StepPatch{}.IsEmpty())

	early := s.Finish(StatusFailed, "clock skew", s.StartedAt.Add(-time.Second))
	assert.Equal(t, int64(0), *early.DurationMs)
}

func TestMergeMetadata(t *testing.T) {
	base := map[string]interface{}{"a": 1, "nested": map[string]interface{}{"x": 1}}
	patch := map[string]interface{}{"b": 2, "nested": map[string]interface{}{"y": 2}}

	merged := MergeMetadata(base, patch)
	assert.Equal(t, 1, merged["a"])
	assert.Equal(t, 2, merged["b"])
	assert.Equal(t, map[string]interface{}{"y": 2}, merged["nested"], "merge is shallow")
	assert.NotContains(t, base, "b")
}
