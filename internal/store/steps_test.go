package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStepOutputRoundTrip(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	_, _, err := LoadLatestStepOutput[snapshot](StepReport)
	require.ErrorIs(t, err, ErrNoStepOutput)

	first, err := SaveStepOutput(StepReport, snapshot{Name: "first", Count: 1})
	require.NoError(t, err)
	second, err := SaveStepOutput(StepReport, snapshot{Name: "second", Count: 2})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	got, path, err := LoadLatestStepOutput[snapshot](StepReport)
	require.NoError(t, err)
	assert.Equal(t, snapshot{Name: "second", Count: 2}, got)
	assert.Equal(t, second, path)
	assert.Equal(t, "report", filepath.Base(filepath.Dir(path)))

	old, err := loadStepOutput[snapshot](first)
	require.NoError(t, err)
	assert.Equal(t, "first", old.Name)
}

func TestLatestStepFileSkipsStrayFiles(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	saved, err := SaveStepOutput(StepIngested, snapshot{Name: "only"})
	require.NoError(t, err)

	dir, err := stepDir(StepIngested)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zz-notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "zz-sub"), 0755))

	got, path, err := LoadLatestStepOutput[snapshot](StepIngested)
	require.NoError(t, err)
	assert.Equal(t, saved, path)
	assert.Equal(t, "only", got.Name)
}
