package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"hatchet/internal/core/coreerr"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
working_directory: /tmp/run
budgets:
  max_iterations: 20
hats:
  - id: coordinator
    is_coordinator: true
    triggers: ["*"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "LOOP_COMPLETE", cfg.CompletionMarker)
}

func TestLoadMissingWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
budgets:
  max_iterations: 5
`)
	_, err := Load(path)
	require.Equal(t, coreerr.ConfigInvalid, coreerr.KindOf(err))
}

func TestLoadNoCoordinatorRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
working_directory: /tmp/run
budgets:
  max_iterations: 5
hats:
  - id: planner
    triggers: ["task.start"]
`)
	_, err := Load(path)
	require.Equal(t, coreerr.ConfigInvalid, coreerr.KindOf(err))
}

func TestLoadDuplicateHatIDRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
working_directory: /tmp/run
budgets:
  max_iterations: 5
hats:
  - id: a
    is_coordinator: true
    triggers: ["*"]
  - id: a
    triggers: ["task.start"]
`)
	_, err := Load(path)
	require.Equal(t, coreerr.ConfigInvalid, coreerr.KindOf(err))
}
