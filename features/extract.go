package features

import (
	"errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var ErrNoSamples = errors.New("no samples to extract features from")

// Stats are the per-channel window features the action model is trained on.
type Stats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std"`
	Energy float64 `json:"energy"`
}

func (s Stats) Values() []float64 {
	return []float64{s.Mean, s.StdDev, s.Energy}
}

// Extract computes the mean, population standard deviation and mean energy
// (mean of squares) of samples.
func Extract(samples []float64) (Stats, error) {
	if len(samples) == 0 {
		return Stats{}, ErrNoSamples
	}
	mean, std := stat.PopMeanStdDev(samples, nil)
	return Stats{
		Mean:   mean,
		StdDev: std,
		Energy: floats.Dot(samples, samples) / float64(len(samples)),
	}, nil
}
