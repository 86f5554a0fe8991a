package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestMigrateCreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "nested", "pixelboard.db")

	cmd := newRootCommand(envFrom(map[string]string{"DB_PATH": dbPath, "LOG_LEVEL": "debug"}))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"migrate"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "migrations applied")

	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestConfigFileFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pixelboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_driver: mysql\n"), 0o600))

	cmd := newRootCommand(envFrom(nil))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate", "--config", path})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}

func TestUnknownCommand(t *testing.T) {
	cmd := newRootCommand(envFrom(nil))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"paint"})

	assert.Error(t, cmd.Execute())
}
