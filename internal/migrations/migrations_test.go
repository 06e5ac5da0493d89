package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "migrations.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestGetInitialSchema(t *testing.T) {
	schema, err := GetInitialSchema()
	require.NoError(t, err)
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS failed_events")
}

func TestList_Sorted(t *testing.T) {
	names, err := List()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_failed_events.sql", names[0])
}

func TestRead_Missing(t *testing.T) {
	_, err := Read("999_missing.sql")
	assert.Error(t, err)
}

func TestApply_CreatesTablesOnce(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	applied, err := Apply(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_failed_events"}, applied)

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='failed_events'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "failed_events", name)

	applied, err = Apply(ctx, db)
	require.NoError(t, err)
	assert.Empty(t, applied)
}
