package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/agentrun"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/repository"
)

func TestAgentRunRepository_CreateAndFind(t *testing.T) {
	db := setupTestDB(t)
	f := seedFeature(t, db, "Add login")
	repo := NewAgentRunRepository(db)
	ctx := context.Background()

	gates := &execution.ApprovalGates{AllowPRD: true, AllowPlan: true}
	run, err := agentrun.NewAgentRun(f.ID, "claude-code", "add login", gates)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, run))

	found, err := repo.FindByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, found.ID)
	assert.Equal(t, agentrun.StatusPending, found.Status)
	assert.Equal(t, run.ThreadID, found.ThreadID)
	assert.Equal(t, agentrun.AgentTypeFeature, found.AgentType)
	require.NotNil(t, found.ApprovalGates)
	assert.Equal(t, *gates, *found.ApprovalGates)
	assert.Nil(t, found.PID)
	assert.Nil(t, found.StartedAt)
	assert.WithinDuration(t, run.CreatedAt, found.CreatedAt, time.Millisecond)
}

func TestAgentRunRepository_FindByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAgentRunRepository(db)

	_, err := repo.FindByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, execution.IsRunNotFound(err))
}

func TestAgentRunRepository_OneActiveRunPerFeature(t *testing.T) {
	db := setupTestDB(t)
	f := seedFeature(t, db, "Single active")
	repo := NewAgentRunRepository(db)
	ctx := context.Background()

	first := seedRun(t, db, f.ID)

	second, err := agentrun.NewAgentRun(f.ID, "claude-code", "again", nil)
	require.NoError(t, err)
	err = repo.Create(ctx, second)
	require.Error(t, err)
	assert.True(t, execution.IsActiveRunExists(err))

	// Once the first run is terminal a new one may start
	require.NoError(t, repo.UpdateStatus(ctx, first.ID, agentrun.StatusCompleted, repository.RunStatusUpdate{}))
	require.NoError(t, repo.Create(ctx, second))

	active, err := repo.FindActiveByFeature(ctx, f.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)
}

func TestAgentRunRepository_FindActiveByFeature_None(t *testing.T) {
	db := setupTestDB(t)
	f := seedFeature(t, db, "Idle")

	active, err := NewAgentRunRepository(db).FindActiveByFeature(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestAgentRunRepository_UpdateStatus(t *testing.T) {
	db := setupTestDB(t)
	f := seedFeature(t, db, "Status updates")
	run := seedRun(t, db, f.ID)
	repo := NewAgentRunRepository(db)
	ctx := context.Background()

	pid := 4242
	started := time.Now().UTC()
	require.NoError(t, repo.UpdateStatus(ctx, run.ID, agentrun.StatusRunning, repository.RunStatusUpdate{
		PID:       &pid,
		StartedAt: &started,
	}))

	found, err := repo.FindByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, agentrun.StatusRunning, found.Status)
	require.NotNil(t, found.PID)
	assert.Equal(t, 4242, *found.PID)
	require.NotNil(t, found.StartedAt)

	result := "node:plan"
	completed := time.Now().UTC()
	require.NoError(t, repo.UpdateStatus(ctx, run.ID, agentrun.StatusWaitingApproval, repository.RunStatusUpdate{
		Result:      &result,
		ClearPID:    true,
		CompletedAt: &completed,
	}))

	found, err = repo.FindByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, agentrun.StatusWaitingApproval, found.Status)
	assert.Equal(t, "plan", found.LastPhase())
	assert.Nil(t, found.PID)
	require.NotNil(t, found.StartedAt, "untouched columns keep their value")
	require.NotNil(t, found.CompletedAt)

	err = repo.UpdateStatus(ctx, "missing", agentrun.StatusFailed, repository.RunStatusUpdate{})
	require.Error(t, err)
	assert.True(t, execution.IsRunNotFound(err))
}

func TestAgentRunRepository_CompareAndSetStatus(t *testing.T) {
	db := setupTestDB(t)
	f := seedFeature(t, db, "CAS")
	run := seedRun(t, db, f.ID)
	repo := NewAgentRunRepository(db)
	ctx := context.Background()

	ok, err := repo.CompareAndSetStatus(ctx, run.ID,
		[]agentrun.RunStatus{agentrun.StatusWaitingApproval}, agentrun.StatusRunning, repository.RunStatusUpdate{})
	require.NoError(t, err)
	assert.False(t, ok, "pending run does not match waiting_approval")

	ok, err = repo.CompareAndSetStatus(ctx, run.ID,
		[]agentrun.RunStatus{agentrun.StatusPending, agentrun.StatusRunning}, agentrun.StatusRunning, repository.RunStatusUpdate{})
	require.NoError(t, err)
	assert.True(t, ok)

	found, err := repo.FindByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, agentrun.StatusRunning, found.Status)

	_, err = repo.CompareAndSetStatus(ctx, "missing",
		[]agentrun.RunStatus{agentrun.StatusRunning}, agentrun.StatusFailed, repository.RunStatusUpdate{})
	require.Error(t, err)
	assert.True(t, execution.IsRunNotFound(err))
}

func TestAgentRunRepository_List(t *testing.T) {
	db := setupTestDB(t)
	f1 := seedFeature(t, db, "First")
	f2 := seedFeature(t, db, "Second")
	repo := NewAgentRunRepository(db)
	ctx := context.Background()

	r1 := seedRun(t, db, f1.ID)
	require.NoError(t, repo.UpdateStatus(ctx, r1.ID, agentrun.StatusFailed, repository.RunStatusUpdate{}))
	seedRun(t, db, f1.ID)
	seedRun(t, db, f2.ID)

	all, err := repo.List(ctx, repository.AgentRunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byFeature, err := repo.List(ctx, repository.AgentRunFilter{FeatureID: f1.ID})
	require.NoError(t, err)
	assert.Len(t, byFeature, 2)

	failed, err := repo.List(ctx, repository.AgentRunFilter{Statuses: []agentrun.RunStatus{agentrun.StatusFailed}})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, r1.ID, failed[0].ID)

	limited, err := repo.List(ctx, repository.AgentRunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAgentRunRepository_UpdatePIDAndDelete(t *testing.T) {
	db := setupTestDB(t)
	f := seedFeature(t, db, "PID")
	run := seedRun(t, db, f.ID)
	repo := NewAgentRunRepository(db)
	ctx := context.Background()

	pid := 99
	require.NoError(t, repo.UpdatePID(ctx, run.ID, &pid))
	found, err := repo.FindByID(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, found.HasPID())

	require.NoError(t, repo.UpdatePID(ctx, run.ID, nil))
	found, err = repo.FindByID(ctx, run.ID)
	require.NoError(t, err)
	assert.False(t, found.HasPID())

	t.Run("not recorded once the worker has suspended the run", func(t *testing.T) {
		ok, err := repo.CompareAndSetStatus(ctx, run.ID,
			[]agentrun.RunStatus{agentrun.StatusPending}, agentrun.StatusWaitingApproval,
			repository.RunStatusUpdate{ClearPID: true})
		require.NoError(t, err)
		require.True(t, ok)

		late := 100
		require.NoError(t, repo.UpdatePID(ctx, run.ID, &late))
		found, err := repo.FindByID(ctx, run.ID)
		require.NoError(t, err)
		assert.False(t, found.HasPID())
	})

	missing := 1
	assert.True(t, execution.IsRunNotFound(repo.UpdatePID(ctx, "missing", &missing)))

	require.NoError(t, repo.Delete(ctx, run.ID))
	_, err = repo.FindByID(ctx, run.ID)
	assert.True(t, execution.IsRunNotFound(err))
}
