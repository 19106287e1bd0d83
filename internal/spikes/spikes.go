// Package spikes flags days whose count rises well above the trailing trend.
package spikes

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	DefaultWindow = 7
	DefaultSigma  = 2.5
)

// ErrInvalidParams is returned for a window below 1 or a non-positive sigma.
var ErrInvalidParams = errors.New("invalid spike detector parameters")

// Point is one day of a count series.
type Point struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}

// Alert is a flagged day for a category.
type Alert struct {
	Date     time.Time `json:"date"`
	Category string    `json:"category"`
	Count    int       `json:"count"`
}

// Detector compares each point with the `window` points before it.
type Detector struct {
	window int
	sigma  float64
}

// NewDetector validates the parameters.
func NewDetector(window int, sigma float64) (*Detector, error) {
	if window < 1 {
		return nil, fmt.Errorf("%w: window %d < 1", ErrInvalidParams, window)
	}
	if !(sigma > 0) || math.IsInf(sigma, 0) {
		return nil, fmt.Errorf("%w: sigma %v must be a positive number", ErrInvalidParams, sigma)
	}
	return &Detector{window: window, sigma: sigma}, nil
}

// Window returns the trailing window length.
func (d *Detector) Window() int { return d.window }

// Sigma returns the threshold multiplier.
func (d *Detector) Sigma() float64 { return d.sigma }

// Detect returns the points where count > mean + sigma*std of the trailing
// window, excluding the point itself. Until a full window has accumulated the
// mean covers whatever preceding points exist and std is taken as 0, so an
// early point is flagged whenever it beats that partial mean. The first
// point has no history and is never flagged.
func (d *Detector) Detect(series []Point) []Point {
	var out []Point
	for i := 1; i < len(series); i++ {
		lo := max(0, i-d.window)
		prev := series[lo:i]

		mean := meanOf(prev)
		std := 0.0
		if len(prev) == d.window {
			std = sampleStd(prev, mean)
		}

		if float64(series[i].Count) > mean+d.sigma*std {
			out = append(out, series[i])
		}
	}
	return out
}

// Alerts runs Detect and tags the flagged points with category.
func (d *Detector) Alerts(category string, series []Point) []Alert {
	flagged := d.Detect(series)
	if len(flagged) == 0 {
		return nil
	}
	alerts := make([]Alert, len(flagged))
	for i, p := range flagged {
		alerts[i] = Alert{Date: p.Date, Category: category, Count: p.Count}
	}
	return alerts
}

func meanOf(points []Point) float64 {
	sum := 0.0
	for _, p := range points {
		sum += float64(p.Count)
	}
	return sum / float64(len(points))
}

// sampleStd uses n-1; a single sample has no spread.
func sampleStd(points []Point, mean float64) float64 {
	if len(points) < 2 {
		return 0
	}
	ss := 0.0
	for _, p := range points {
		diff := float64(p.Count) - mean
		ss += diff * diff
	}
	return math.Sqrt(ss / float64(len(points)-1))
}
