package migrations

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateUp_FreshDatabase(t *testing.T) {
	// Given: an empty database
	db := openTestDB(t)

	// When: migrating up
	require.NoError(t, MigrateUp(db, "sqlite"))

	// Then: the tables exist
	for _, table := range []string{"content", "documents", "embeddings", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, MigrateUp(db, "sqlite"))
	require.NoError(t, MigrateUp(db, "sqlite"))

	latest, err := LatestVersion()
	require.NoError(t, err)
	v, dirty, err := Version(db, "sqlite")
	require.NoError(t, err)
	assert.Equal(t, latest, v)
	assert.False(t, dirty)
}

func TestCheckStatus(t *testing.T) {
	db := openTestDB(t)

	err := CheckStatus(db, "sqlite")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs migration")

	require.NoError(t, MigrateUp(db, "sqlite"))
	assert.NoError(t, CheckStatus(db, "sqlite"))
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
}

func TestUnsupportedDriver(t *testing.T) {
	db := openTestDB(t)
	assert.Error(t, MigrateUp(db, "postgres"))
}
