package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 7, cfg.Spikes.Window)
	assert.Equal(t, 2.5, cfg.Spikes.Sigma)
	assert.Equal(t, 10, cfg.Report.TopN)
	assert.Equal(t, 200, cfg.Report.SampleLimit)
	assert.Equal(t, "self_harm", cfg.Categories[0].Name)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Categories = nil
	cfg.Spikes.Window = 0
	cfg.Spikes.Sigma = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no categories")
	assert.Contains(t, err.Error(), "spikes.window")
	assert.Contains(t, err.Error(), "spikes.sigma")
}

func TestSaveLoadPreservesCategoryOrder(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvSMTPPass, "")
	t.Setenv(EnvDBPath, "")

	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Categories = []CategoryConfig{
		{Name: "zeta", Pattern: `\bz\b`},
		{Name: "alpha", Pattern: `\ba\b`},
		{Name: "mid", Pattern: `\bm\b`},
	}
	require.NoError(t, cfg.SaveTo(path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	require.Len(t, loaded.Categories, 3)
	assert.Equal(t, "zeta", loaded.Categories[0].Name)
	assert.Equal(t, "alpha", loaded.Categories[1].Name)
	assert.Equal(t, "mid", loaded.Categories[2].Name)
	assert.Equal(t, `\bz\b`, loaded.Categories[0].Pattern)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvSMTPPass, "")
	t.Setenv(EnvDBPath, "")

	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[spikes]
window = 14

[[categories]]
name = "work_burnout"
pattern = '\bburn(?:t|ed)? ?out\b'
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, 14, cfg.Spikes.Window)
	assert.Equal(t, 2.5, cfg.Spikes.Sigma)
	require.Len(t, cfg.Categories, 1)
	assert.Equal(t, "work_burnout", cfg.Categories[0].Name)
}

func TestLoadWithoutCategoriesUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"debug\"\n"), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultCategories()), len(cfg.Categories))
}

func TestEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, Default().SaveTo(path))

	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvSMTPPass, "secret")
	t.Setenv(EnvDBPath, "/tmp/x.db")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "secret", cfg.Email.SMTPPass)

	db, err := cfg.DBPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", db)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvSMTPPass, "")
	t.Setenv(EnvDBPath, "/tmp/elsewhere.db")

	cfg, existed, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.False(t, existed)
	assert.Equal(t, "/tmp/elsewhere.db", cfg.Store.Path, "env applies to defaults too")

	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("version = ["), 0600))
	_, _, err = LoadOrDefault(path)
	require.Error(t, err)
}
