package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 3, cfg.Notability.MinReferences)
	assert.InDelta(t, 0.7, cfg.Notability.ConfidenceFloor, 0.001)
	assert.Equal(t, 4, cfg.Fingerprint.MaxParallel)
	assert.True(t, cfg.Wikibase.EnableLookup)

	// Default matrix covers both providers.
	require.Len(t, cfg.Fingerprint.Models, 2)
	assert.Equal(t, "anthropic", cfg.Fingerprint.Models[0].Provider)
	assert.Equal(t, "perplexity", cfg.Fingerprint.Models[1].Provider)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/visibility
fingerprint:
  max_parallel: 8
  models:
    - provider: anthropic
      model: claude-sonnet-4-5-20250929
notability:
  min_references: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 8, cfg.Fingerprint.MaxParallel)
	assert.Equal(t, 5, cfg.Notability.MinReferences)
	require.Len(t, cfg.Fingerprint.Models, 1)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Fingerprint.Models[0].Model)
}

func TestLoad_EnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("VISIQ_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestInitLogger_BadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

func TestInitLogger_Console(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
}

// chdirTemp moves the test into an empty directory so a repo-level
// config.yaml cannot leak into Load.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}
