package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/deeflow/internal/domain/execution"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/agentrun"
	"github.com/YoshitsuguKoike/deeflow/internal/domain/model/feature"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// setupFileDB is used where several connections must see the same database
func setupFileDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "deeflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedFeature(t *testing.T, db *sql.DB, name string) *feature.Feature {
	t.Helper()
	f, err := feature.NewFeature(name, "test feature", "/tmp/repo")
	require.NoError(t, err)
	f.ApprovalGates = &execution.ApprovalGates{AllowPRD: true}
	require.NoError(t, NewFeatureRepository(db).Save(context.Background(), f))
	return f
}

func seedRun(t *testing.T, db *sql.DB, featureID string) *agentrun.AgentRun {
	t.Helper()
	run, err := agentrun.NewAgentRun(featureID, "claude-code", "build it", nil)
	require.NoError(t, err)
	require.NoError(t, NewAgentRunRepository(db).Create(context.Background(), run))
	return run
}
