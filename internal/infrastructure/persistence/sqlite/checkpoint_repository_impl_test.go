package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
)

func TestCheckpointRepository_AppendsVersions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCheckpointRepository(db)
	ctx := context.Background()

	state := execution.NewWorkflowState(true, false)
	first, err := repo.Save(ctx, "thread-1", *state)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)

	state.MarkCompleted(execution.NodeAnalyze)
	state.CurrentNode = execution.NodeRequirements
	state.RecordSession(execution.NodeAnalyze, "session-1")
	state.PendingInterrupt = &execution.PendingInterrupt{Node: execution.NodeRequirements}
	second, err := repo.Save(ctx, "thread-1", *state)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)

	// Other threads have their own version sequence
	other, err := repo.Save(ctx, "thread-2", *execution.NewWorkflowState(false, false))
	require.NoError(t, err)
	assert.Equal(t, 1, other.Version)

	latest, err := repo.LoadLatest(ctx, "thread-1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, execution.NodeRequirements, latest.State.CurrentNode)
	assert.True(t, latest.State.IsCompleted(execution.NodeAnalyze))
	assert.Equal(t, "session-1", latest.State.SessionsByNode[execution.NodeAnalyze])
	assert.True(t, latest.State.Push)
	require.NotNil(t, latest.State.PendingInterrupt)
	assert.Equal(t, execution.NodeRequirements, latest.State.PendingInterrupt.Node)

	versions, err := repo.ListVersions(ctx, "thread-1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].Version)
	assert.Nil(t, versions[0].State.PendingInterrupt)
}

func TestCheckpointRepository_LoadLatestNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCheckpointRepository(db)

	_, err := repo.LoadLatest(context.Background(), "nothing")
	require.Error(t, err)
	assert.Equal(t, execution.ErrCheckpointNotFound.Code, execution.CodeOf(err))
	assert.True(t, execution.IsNotFound(err))

	_, err = repo.Save(context.Background(), "", execution.WorkflowState{})
	require.Error(t, err)
}
