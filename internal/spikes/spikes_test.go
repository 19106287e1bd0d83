package spikes

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func series(counts ...int) []Point {
	out := make([]Point, len(counts))
	for i, c := range counts {
		out[i] = Point{Date: day0.AddDate(0, 0, i), Count: c}
	}
	return out
}

func newDefault(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(DefaultWindow, DefaultSigma)
	require.NoError(t, err)
	return d
}

func TestNewDetectorRejects(t *testing.T) {
	for _, tt := range []struct {
		window int
		sigma  float64
	}{
		{0, 2.5},
		{-1, 2.5},
		{7, 0},
		{7, -1},
	} {
		d, err := NewDetector(tt.window, tt.sigma)
		assert.Nil(t, d)
		assert.True(t, errors.Is(err, ErrInvalidParams))
	}
}

func TestNewDetectorKeepsParams(t *testing.T) {
	d, err := NewDetector(14, 3)
	require.NoError(t, err)
	assert.Equal(t, 14, d.Window())
	assert.Equal(t, 3.0, d.Sigma())
}

func TestDetectEmpty(t *testing.T) {
	assert.Empty(t, newDefault(t).Detect(nil))
	assert.Empty(t, newDefault(t).Detect(series(5)))
}

func TestDetectConstantSeries(t *testing.T) {
	d := newDefault(t)
	for _, v := range []int{0, 1, 42} {
		counts := make([]int, 30)
		for i := range counts {
			counts[i] = v
		}
		assert.Empty(t, d.Detect(series(counts...)), "value %d", v)
	}
}

func TestDetectSingleOutlierFlaggedOnce(t *testing.T) {
	d := newDefault(t)
	// Flat window: mean 3, std 0, so the threshold is 3 and 4 = threshold + 1.
	s := series(3, 3, 3, 3, 3, 3, 3, 4)
	got := d.Detect(s)
	require.Len(t, got, 1)
	assert.Equal(t, s[7], got[0])
}

func TestDetectSteadyState(t *testing.T) {
	d := newDefault(t)
	// Alternating 2/4 gives mean 3 (or close) and std ~1.07 over 7 points.
	s := series(2, 4, 2, 4, 2, 4, 2, 4, 2, 5, 2, 20)
	got := d.Detect(s)

	dates := make([]time.Time, 0, len(got))
	for _, p := range got {
		dates = append(dates, p.Date)
	}
	assert.Contains(t, dates, s[11].Date)
	assert.NotContains(t, dates, s[9].Date, "5 is within 2.5 std of the trailing window")
}

func TestDetectWarmupUsesZeroStd(t *testing.T) {
	d := newDefault(t)
	// Index 1 beats the mean of index 0 with std 0; index 2 beats mean(1, 2).
	got := d.Detect(series(1, 2, 2, 1))
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Count)
	assert.Equal(t, day0.AddDate(0, 0, 1), got[0].Date)
	assert.Equal(t, day0.AddDate(0, 0, 2), got[1].Date)
}

func TestDetectPreservesOrder(t *testing.T) {
	d, err := NewDetector(2, 1)
	require.NoError(t, err)
	got := d.Detect(series(1, 1, 9, 1, 1, 9))
	require.Len(t, got, 2)
	assert.True(t, got[0].Date.Before(got[1].Date))
}

func TestDetectWindowOne(t *testing.T) {
	d, err := NewDetector(1, 2.5)
	require.NoError(t, err)
	// std over a single point is 0, so any increase is flagged.
	got := d.Detect(series(1, 2, 2, 3))
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Count)
	assert.Equal(t, 3, got[1].Count)
}

func TestAlerts(t *testing.T) {
	d := newDefault(t)
	alerts := d.Alerts("crying", series(3, 3, 3, 3, 3, 3, 3, 9))
	require.Len(t, alerts, 1)
	assert.Equal(t, Alert{Date: day0.AddDate(0, 0, 7), Category: "crying", Count: 9}, alerts[0])

	assert.Nil(t, d.Alerts("crying", series(1, 1, 1)))
}
