package logic

import (
	"errors"

	"github.com/montanaflynn/stats"
)

// ErrEmptyWindow is returned by Summarize for an empty window.
var ErrEmptyWindow = errors.New("logic: empty window")

// Summary describes one column of the history window.
type Summary struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summarize computes mean, population standard deviation and range of values.
func Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, ErrEmptyWindow
	}
	data := stats.Float64Data(values)

	mean, err := stats.Mean(data)
	if err != nil {
		return Summary{}, err
	}
	sd, err := stats.StandardDeviationPopulation(data)
	if err != nil {
		return Summary{}, err
	}
	lo, err := stats.Min(data)
	if err != nil {
		return Summary{}, err
	}
	hi, err := stats.Max(data)
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		Count:  len(values),
		Mean:   mean,
		StdDev: sd,
		Min:    lo,
		Max:    hi,
	}, nil
}

// Settled reports whether the window has stayed within tolerance of target:
// every value lies in [target-tolerance, target+tolerance].
func (s Summary) Settled(target, tolerance float64) bool {
	return s.Count > 0 && s.Min >= target-tolerance && s.Max <= target+tolerance
}
