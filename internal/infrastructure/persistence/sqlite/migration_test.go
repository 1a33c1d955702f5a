package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrator_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	migrator := NewMigrator(db)
	require.NoError(t, migrator.Migrate())
	require.NoError(t, migrator.Migrate())

	version, err := migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	for _, table := range []string{"features", "agent_runs", "execution_steps", "phase_timings", "checkpoints"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestSplitSQLStatements(t *testing.T) {
	stmts := splitSQLStatements(`
-- comment line
CREATE TABLE a (id TEXT);

CREATE TABLE b (id TEXT);
`)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], "CREATE TABLE a")
	assert.Contains(t, stmts[1], "CREATE TABLE b")
}
