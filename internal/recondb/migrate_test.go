package recondb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestMigrations creates a temporary directory with test migration files.
func setupTestMigrations(t *testing.T) string {
	t.Helper()
	tmpDir := filepath.Join(t.TempDir(), "migrations")
	require.NoError(t, os.MkdirAll(tmpDir, 0755))

	migrations := map[string]string{
		"000001_create_test_table.up.sql": `
			CREATE TABLE IF NOT EXISTS test_table (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL
			);
		`,
		"000001_create_test_table.down.sql": `
			DROP TABLE IF EXISTS test_table;
		`,
		"000002_add_test_index.up.sql": `
			CREATE INDEX IF NOT EXISTS test_table_by_name ON test_table (name);
		`,
		"000002_add_test_index.down.sql": `
			DROP INDEX IF EXISTS test_table_by_name;
		`,
	}
	for name, sql := range migrations {
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, name), []byte(sql), 0644))
	}
	return tmpDir
}

func TestMigrateUpAndVersion(t *testing.T) {
	db := newTestDB(t)
	dir := setupTestMigrations(t)

	version, dirty, err := db.MigrateVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp(dir))

	version, dirty, err = db.MigrateVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	exists, err := db.Contains("test_table")
	require.NoError(t, err)
	assert.True(t, exists)

	// a second up is a no-op
	require.NoError(t, db.MigrateUp(dir))
}

func TestMigrateDown(t *testing.T) {
	db := newTestDB(t)
	dir := setupTestMigrations(t)

	require.NoError(t, db.MigrateUp(dir))
	require.NoError(t, db.MigrateDown(dir))

	version, dirty, err := db.MigrateVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// table from migration 1 survives rolling back migration 2
	exists, err := db.Contains("test_table")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMigrateForce(t *testing.T) {
	db := newTestDB(t)
	dir := setupTestMigrations(t)

	require.NoError(t, db.MigrateUp(dir))
	require.NoError(t, db.MigrateForce(dir, 1))

	version, _, err := db.MigrateVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}
