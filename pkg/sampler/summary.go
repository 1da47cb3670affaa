package sampler

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

const confidenceQuantile = 0.975

// Interval is an ordered (lower, upper) pair.
type Interval [2]float64

func (i Interval) Lower() float64 {
	return i[0]
}

func (i Interval) Upper() float64 {
	return i[1]
}

func (i Interval) Width() float64 {
	return i[1] - i[0]
}

// Summary is the point estimate and normal-approximation 95% confidence
// interval of the mean of a sample set.
type Summary struct {
	Mean   float64  `json:"mean" yaml:"mean"`
	CI     Interval `json:"95% CI" yaml:"95% CI"`
	StdDev float64  `json:"std_dev" yaml:"std_dev"`
	N      int      `json:"n" yaml:"n"`
}

// Map renders the summary with the mean and "95% CI" keys.
func (s *Summary) Map() map[string]any {
	return map[string]any{
		"mean":   s.Mean,
		"95% CI": [2]float64{s.CI.Lower(), s.CI.Upper()},
	}
}

// HalfWidth is z(0.975) * sd / sqrt(n).
func (s *Summary) HalfWidth() float64 {
	return s.CI.Width() / 2
}

// Summarize computes the mean of samples and a two-sided 95% interval using
// the sample standard deviation (n-1 denominator). With fewer than two
// samples the standard deviation is undefined and ErrInsufficientSamples is
// returned.
func Summarize(samples []float64) (*Summary, error) {
	n := len(samples)
	if n < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientSamples, n)
	}

	mean, err := stats.Mean(samples)
	if err != nil {
		return nil, fmt.Errorf("computing mean: %w", err)
	}

	sd, err := stats.StandardDeviationSample(samples)
	if err != nil {
		return nil, fmt.Errorf("computing standard deviation: %w", err)
	}

	half := distuv.UnitNormal.Quantile(confidenceQuantile) * sd / math.Sqrt(float64(n))

	return &Summary{
		Mean:   mean,
		CI:     Interval{mean - half, mean + half},
		StdDev: sd,
		N:      n,
	}, nil
}
