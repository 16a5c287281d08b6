package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestLoadMigrations_OrdersByVersion(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"010_outputs_index.sql":  "CREATE INDEX b;",
		"002_generations.sql":    "CREATE TABLE g;",
		"001_initial_schema.sql": "CREATE TABLE v;",
		"README.md":              "notes",
		"draft.sql":              "ignored: no version",
		"000_placeholder.sql":    "ignored: zero",
	})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "003_dir.sql"), 0o755))

	migrations, err := LoadMigrations(dir)
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{migrations[0].Version, migrations[1].Version, migrations[2].Version})
	assert.Equal(t, "001_initial_schema.sql", migrations[0].Name)
	assert.Equal(t, "CREATE TABLE v;", migrations[0].SQL)
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"001_a.sql": "SELECT 1;",
		"01_b.sql":  "SELECT 2;",
	})
	_, err := LoadMigrations(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share version 1")
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	_, err := LoadMigrations(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestLoadMigrations_RepositorySchema(t *testing.T) {
	migrations, err := LoadMigrations(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Contains(t, migrations[0].SQL, "cache_key")
}

func TestPending(t *testing.T) {
	all := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}
	pending := Pending(all, map[int]bool{1: true, 3: true})
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Version)
	assert.Len(t, Pending(all, nil), 3)
}

func TestNewRedisClients_BadURL(t *testing.T) {
	_, err := NewRedisClients(context.Background(), "not-a-redis-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse Redis URL")
}

func TestNewPostgresPool_BadURL(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), "postgres://%zz", PoolOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse database URL")
}
