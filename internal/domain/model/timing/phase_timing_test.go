package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseTiming_ApprovalWait(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	pt, err := NewPhaseTiming("run-1", "plan", start)
	require.NoError(t, err)

	_, ok := pt.ApprovalWait(start)
	assert.False(t, ok, "no wait before an interrupt")

	waiting := start.Add(time.Minute)
	pt.WaitingApprovalAt = &waiting
	ms, ok := pt.ApprovalWait(waiting.Add(90 * time.Second))
	require.True(t, ok)
	assert.Equal(t, int64(90000), ms)

	pt.ApprovalWaitMs = &ms
	_, ok = pt.ApprovalWait(waiting.Add(time.Hour))
	assert.False(t, ok, "wait is recorded once")
}

func TestNewPhaseTiming_Validation(t *testing.T) {
	_, err := NewPhaseTiming("", "plan", time.Now())
	assert.Error(t, err)
	_, err = NewPhaseTiming("run", "", time.Now())
	assert.Error(t, err)
}

func TestElapsed(t *testing.T) {
	now := time.Now()
	assert.Equal(t, int64(2000), Elapsed(now, now.Add(2*time.Second)))
	assert.Equal(t, int64(0), Elapsed(now, now.Add(-time.Second)))
}
