package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const export = `Platform,Post Date,Post Content,Post URL,Username,User URL
Reddit,Posted 10:00 1 Jan 2024,I keep crying at night,https://www.reddit.com/r/sad/comments/1/,u1,
Reddit,Posted 11:00 2 Jan 2024,total burnout at work,https://www.reddit.com/r/antiwork/comments/2/,u2,
Reddit,Posted 12:00 2 Jan 2024,so lonely tonight,https://www.reddit.com/r/lonely/comments/3/,u3,
`

// env isolates config, cache and reports under temp dirs and returns the config path.
func env(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("LISTEN4ME_DB", filepath.Join(t.TempDir(), "posts.db"))
	return filepath.Join(t.TempDir(), "config.toml")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func TestInitWritesConfigOnce(t *testing.T) {
	cfgPath := env(t)

	out, err := execute(t, "--config", cfgPath, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Created config")
	require.FileExists(t, cfgPath)

	out, err = execute(t, "--config", cfgPath, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestClassify(t *testing.T) {
	cfgPath := env(t)

	out, err := execute(t, "--config", cfgPath, "classify", "I", "cried", "all", "day")
	require.NoError(t, err)
	assert.Equal(t, "crying\n", out)

	out, err = execute(t, "--config", cfgPath, "classify", "nice weather")
	require.NoError(t, err)
	assert.Equal(t, "other\n", out)
}

func TestIngestAndReport(t *testing.T) {
	cfgPath := env(t)
	input := filepath.Join(t.TempDir(), "moods.csv")
	require.NoError(t, os.WriteFile(input, []byte(export), 0644))

	out, err := execute(t, "--config", cfgPath, "ingest", input)
	require.NoError(t, err)
	assert.Contains(t, out, "Read 3 posts from 1 file(s)")
	assert.Regexp(t, `crying\s+1`, out)

	out, err = execute(t, "--config", cfgPath, "report", "--json", "--no-save",
		"--category", "crying", "--category", "work_burnout")
	require.NoError(t, err)

	var rep struct {
		Result struct {
			Total  int `json:"total"`
			Counts []struct {
				Category string `json:"category"`
				Count    int    `json:"count"`
			} `json:"counts"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, 2, rep.Result.Total)
	require.Len(t, rep.Result.Counts, 2)
	assert.Equal(t, "crying", rep.Result.Counts[0].Category)

	out, err = execute(t, "--config", cfgPath, "report", "--from", "2024-01-02", "--to", "2024-01-02")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-01-02 to 2024-01-02: 2 posts")
	assert.Contains(t, out, "Report: ")

	var opened string
	orig := openPath
	openPath = func(path string) error {
		opened = path
		return nil
	}
	t.Cleanup(func() { openPath = orig })

	_, err = execute(t, "--config", cfgPath, "open", "report")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(opened, ".html"), opened)
}

func TestHistoryPhrasesAndLast(t *testing.T) {
	cfgPath := env(t)

	out, err := execute(t, "--config", cfgPath, "last")
	require.NoError(t, err)
	assert.Contains(t, out, "No saved reports yet")

	out, err = execute(t, "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No saved reports yet")

	input := filepath.Join(t.TempDir(), "moods.csv")
	require.NoError(t, os.WriteFile(input, []byte(export), 0644))
	_, err = execute(t, "--config", cfgPath, "ingest", input)
	require.NoError(t, err)
	_, err = execute(t, "--config", cfgPath, "ingest", "--phrase", "burnout", input)
	require.NoError(t, err)

	out, err = execute(t, "--config", cfgPath, "phrases")
	require.NoError(t, err)
	assert.Equal(t, "burnout\n", out)

	_, err = execute(t, "--config", cfgPath, "report", "--from", "2024-01-01", "--to", "2024-01-02")
	require.NoError(t, err)

	out, err = execute(t, "--config", cfgPath, "history", "--limit", "5")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "2024-01-01 to 2024-01-02")
	assert.Contains(t, lines[0], ".html")

	out, err = execute(t, "--config", cfgPath, "last")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-01-01 to 2024-01-02: 3 posts")
}

func TestReportRejectsBadFlags(t *testing.T) {
	cfgPath := env(t)

	_, err := execute(t, "--config", cfgPath, "report", "--from", "01/02/2024")
	require.Error(t, err)

	_, err = execute(t, "--config", cfgPath, "report", "--category", "joy")
	require.Error(t, err)

	_, err = execute(t, "--config", cfgPath, "open", "desktop")
	require.Error(t, err)

	_, err = execute(t, "--config", cfgPath, "ingest", "--kind", "xlsx", "x.xlsx")
	require.Error(t, err)
}
