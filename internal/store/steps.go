package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ibeckermayer/listen4me/internal/config"
)

// ErrNoStepOutput is returned when a step has never been cached.
var ErrNoStepOutput = errors.New("no cached output for step")

// StepName identifies a pipeline step for caching purposes.
type StepName string

const (
	StepIngested   StepName = "ingested"
	StepClassified StepName = "classified"
	StepReport     StepName = "report"
)

// stepDir returns the cache directory for a given step.
func stepDir(step StepName) (string, error) {
	cacheDir, err := config.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "steps", string(step)), nil
}

// generateFilename creates a timestamped filename with the given extension.
// Nanoseconds keep two saves within the same second apart.
func generateFilename(ext string) string {
	return time.Now().UTC().Format("2006-01-02T15-04-05.000000000") + ext
}

// SaveStepOutput saves JSON-serializable data to the step's cache directory.
// Returns the path to the saved file.
func SaveStepOutput[T any](step StepName, data T) (string, error) {
	dir, err := stepDir(step)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create step cache dir: %w", err)
	}

	path := filepath.Join(dir, generateFilename(".json"))

	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal step output: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return "", fmt.Errorf("failed to write step output: %w", err)
	}

	return path, nil
}

// LoadLatestStepOutput decodes the newest cached output of step and
// returns it with the file it came from.
func LoadLatestStepOutput[T any](step StepName) (T, string, error) {
	var out T

	path, err := latestStepFile(step)
	if err != nil {
		return out, "", err
	}
	out, err = loadStepOutput[T](path)
	return out, path, err
}

func loadStepOutput[T any](path string) (T, error) {
	var out T
	raw, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read step output: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode step output %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// latestStepFile picks the last .json file by name; names are timestamps.
func latestStepFile(step StepName) (string, error) {
	dir, err := stepDir(step)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoStepOutput, step)
}
