package sdt

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrNegativeCount = errors.New("counts must not be negative")
	ErrNoTrials      = errors.New("signal and noise trials must both be non-empty")
	ErrRateRange     = errors.New("rate must be within (0, 1)")
)

// Detection holds the outcome counts of a yes/no detection experiment.
// Rates and indices are derived from the counts on every call.
type Detection struct {
	Hits              int `json:"hits" yaml:"hits"`
	Misses            int `json:"misses" yaml:"misses"`
	FalseAlarms       int `json:"false_alarms" yaml:"false_alarms"`
	CorrectRejections int `json:"correct_rejections" yaml:"correct_rejections"`
}

// New validates the counts and returns a Detection.
func New(hits, misses, falseAlarms, correctRejections int) (*Detection, error) {
	d := &Detection{
		Hits:              hits,
		Misses:            misses,
		FalseAlarms:       falseAlarms,
		CorrectRejections: correctRejections,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Detection) Validate() error {
	if d == nil {
		return errors.New("detection required")
	}
	if d.Hits < 0 || d.Misses < 0 || d.FalseAlarms < 0 || d.CorrectRejections < 0 {
		return fmt.Errorf("%w: %+v", ErrNegativeCount, *d)
	}
	if d.Hits+d.Misses == 0 || d.FalseAlarms+d.CorrectRejections == 0 {
		return fmt.Errorf("%w: %+v", ErrNoTrials, *d)
	}
	return nil
}

func (d *Detection) HitRate() float64 {
	return float64(d.Hits) / float64(d.Hits+d.Misses)
}

func (d *Detection) FalseAlarmRate() float64 {
	return float64(d.FalseAlarms) / float64(d.FalseAlarms+d.CorrectRejections)
}

// DPrime is the sensitivity index z(HR) - z(FAR).
func (d *Detection) DPrime() float64 {
	return z(d.HitRate()) - z(d.FalseAlarmRate())
}

// Criterion is the response bias -(z(HR) + z(FAR)) / 2.
func (d *Detection) Criterion() float64 {
	return -0.5 * (z(d.HitRate()) + z(d.FalseAlarmRate()))
}

// Add pools the counts of two experiments.
func (d *Detection) Add(o *Detection) (*Detection, error) {
	if o == nil {
		return nil, errors.New("detection to add required")
	}
	return &Detection{
		Hits:              d.Hits + o.Hits,
		Misses:            d.Misses + o.Misses,
		FalseAlarms:       d.FalseAlarms + o.FalseAlarms,
		CorrectRejections: d.CorrectRejections + o.CorrectRejections,
	}, nil
}

// Scale multiplies every count by k, which must not be negative.
func (d *Detection) Scale(k int) (*Detection, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: scale factor %d", ErrNegativeCount, k)
	}
	return &Detection{
		Hits:              d.Hits * k,
		Misses:            d.Misses * k,
		FalseAlarms:       d.FalseAlarms * k,
		CorrectRejections: d.CorrectRejections * k,
	}, nil
}

// NLogLikelihood is the binomial negative log-likelihood of the counts
// under the given hit and false-alarm rates.
func (d *Detection) NLogLikelihood(hitRate, falseAlarmRate float64) (float64, error) {
	if !inUnit(hitRate) {
		return 0, fmt.Errorf("%w: hit rate %v", ErrRateRange, hitRate)
	}
	if !inUnit(falseAlarmRate) {
		return 0, fmt.Errorf("%w: false alarm rate %v", ErrRateRange, falseAlarmRate)
	}

	return -float64(d.Hits)*math.Log(hitRate) -
		float64(d.Misses)*math.Log(1-hitRate) -
		float64(d.FalseAlarms)*math.Log(falseAlarmRate) -
		float64(d.CorrectRejections)*math.Log(1-falseAlarmRate), nil
}

// Rates returns the equal-variance model's hit and false-alarm rates for a
// sensitivity dPrime and criterion c measured from the midpoint between the
// noise and signal distributions.
func Rates(dPrime, criterion float64) (hitRate, falseAlarmRate float64) {
	k := criterion + dPrime/2
	return 1 - distuv.UnitNormal.CDF(k-dPrime), 1 - distuv.UnitNormal.CDF(k)
}

// Simulate draws one experiment per criterion from the equal-variance model.
func Simulate(rng *rand.Rand, dPrime float64, criteria []float64, signalCount, noiseCount int) ([]*Detection, error) {
	if rng == nil {
		return nil, errors.New("random source required")
	}
	if signalCount <= 0 || noiseCount <= 0 {
		return nil, fmt.Errorf("%w: signal %d, noise %d", ErrNoTrials, signalCount, noiseCount)
	}

	list := make([]*Detection, 0, len(criteria))
	for _, c := range criteria {
		hr, far := Rates(dPrime, c)
		hits := binomial(rng, signalCount, hr)
		falseAlarms := binomial(rng, noiseCount, far)
		list = append(list, &Detection{
			Hits:              hits,
			Misses:            signalCount - hits,
			FalseAlarms:       falseAlarms,
			CorrectRejections: noiseCount - falseAlarms,
		})
	}
	return list, nil
}

func binomial(rng *rand.Rand, n int, p float64) int {
	switch {
	case p <= 0:
		return 0
	case p >= 1:
		return n
	}
	return int(distuv.Binomial{N: float64(n), P: p, Src: rng}.Rand())
}

func z(p float64) float64 {
	return distuv.UnitNormal.Quantile(p)
}

func inUnit(p float64) bool {
	return p > 0 && p < 1
}
