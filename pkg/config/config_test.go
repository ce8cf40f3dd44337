package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/cinegraph/pkg/update"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cinegraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.False(t, cfg.Index.PruneOnDelete)
	assert.Equal(t, "./data/snapshot", cfg.Snapshot.Dir)
	assert.Equal(t, "text", cfg.Report.Format)
	if diff := cmp.Diff(update.DefaultPlan(), cfg.Update); diff != "" {
		t.Errorf("update plan mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
data:
  dir: /srv/imdb
log:
  level: debug
  format: json
index:
  prune_on_delete: true
report:
  format: yaml
update:
  delete_below: 3.5
  year_bumps:
    - year: 1950
      factor: 0.5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/imdb", cfg.Data.Dir)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.StoreOptions().PruneNameIndex)
	assert.Equal(t, "yaml", cfg.Report.Format)
	assert.Equal(t, 3.5, cfg.Update.DeleteBelow)
	assert.Equal(t, []update.YearBump{{Year: 1950, Factor: 0.5}}, cfg.Update.YearBumps)

	// Untouched keys keep their defaults.
	assert.Equal(t, "./data/snapshot", cfg.Snapshot.Dir)
	assert.Equal(t, 0.1, cfg.Update.MovieBumpFactor)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "log:\n  level: warn\n")
	t.Setenv("CINEGRAPH_LOG_LEVEL", "trace")
	t.Setenv("CINEGRAPH_INDEX_PRUNE_ON_DELETE", "true")
	t.Setenv("CINEGRAPH_METRICS_FILE", "/tmp/cinegraph.prom")
	t.Setenv("CINEGRAPH_UPDATE_MOVIE_BUMP_SEED", "42")
	t.Setenv("CINEGRAPH_NOT_A_KEY", "ignored")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "trace", cfg.Log.Level)
	assert.True(t, cfg.Index.PruneOnDelete)
	assert.Equal(t, "/tmp/cinegraph.prom", cfg.Metrics.File)
	assert.Equal(t, int64(42), cfg.Update.MovieBumpSeed)
}

func TestLoadPathFromEnv(t *testing.T) {
	path := writeConfig(t, "report:\n  format: json\n")
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Report.Format)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "Log.Level must be one of"},
		{"bad report format", func(c *Config) { c.Report.Format = "xml" }, "Report.Format must be one of"},
		{"snapshot dir required", func(c *Config) { c.Snapshot.Dir = "" }, "Snapshot.Dir is required"},
		{"bump factor above one", func(c *Config) { c.Update.MovieBumpFactor = 1.5 }, "Update.MovieBumpFactor must be lte 1"},
		{"year bump factor negative", func(c *Config) { c.Update.YearBumps[0].Factor = -0.1 }, "Update.YearBumps[0].Factor must be gte 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := writeConfig(t, "log:\n  format: xml\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Log.Format")
}

func TestEnvTransformFunc(t *testing.T) {
	assert.Equal(t, "snapshot.sync_writes", envTransformFunc("CINEGRAPH_SNAPSHOT_SYNC_WRITES"))
	assert.Equal(t, "data.dir", envTransformFunc("CINEGRAPH_DATA_DIR"))
	assert.Equal(t, "", envTransformFunc("CINEGRAPH_UNKNOWN"))
}
