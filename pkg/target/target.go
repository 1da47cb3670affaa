package target

import (
	"errors"
	"fmt"
	"math"

	"github.com/mchmarny/metro/pkg/sampler"
	"github.com/mchmarny/metro/pkg/sdt"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	ErrInvalidParam = errors.New("invalid target parameter")
)

// StandardNormal is the log-density of N(0, 1) up to a constant.
func StandardNormal() sampler.LogTarget {
	return func(x float64) float64 {
		return -0.5 * x * x
	}
}

// Normal returns the log-density of N(mu, sigma^2).
func Normal(mu, sigma float64) (sampler.LogTarget, error) {
	if !(sigma > 0) || math.IsInf(sigma, 1) {
		return nil, fmt.Errorf("%w: sigma %v", ErrInvalidParam, sigma)
	}
	d := distuv.Normal{Mu: mu, Sigma: sigma}
	return d.LogProb, nil
}

// Uniform is flat on [lo, hi] and -Inf elsewhere.
func Uniform(lo, hi float64) (sampler.LogTarget, error) {
	if !(hi > lo) {
		return nil, fmt.Errorf("%w: lo %v must be below hi %v", ErrInvalidParam, lo, hi)
	}
	logWidth := math.Log(hi - lo)
	return func(x float64) float64 {
		if x < lo || x > hi {
			return math.Inf(-1)
		}
		return -logWidth
	}, nil
}

// Exponential returns the log-density of Exp(rate), -Inf for x < 0.
func Exponential(rate float64) (sampler.LogTarget, error) {
	if !(rate > 0) || math.IsInf(rate, 1) {
		return nil, fmt.Errorf("%w: rate %v", ErrInvalidParam, rate)
	}
	logRate := math.Log(rate)
	return func(x float64) float64 {
		if x < 0 {
			return math.Inf(-1)
		}
		return logRate - rate*x
	}, nil
}

// Constant is an improper flat target; every proposal is accepted.
func Constant(c float64) sampler.LogTarget {
	return func(float64) float64 {
		return c
	}
}

// DPrimePosterior is the flat-prior log-posterior of the sensitivity d'
// given the counts in d and a fixed criterion.
func DPrimePosterior(d *sdt.Detection, criterion float64) (sampler.LogTarget, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("validating detection: %w", err)
	}
	return func(dPrime float64) float64 {
		hr, far := sdt.Rates(dPrime, criterion)
		return logLikelihood(d, hr, far)
	}, nil
}

// HitRatePosterior is the flat-prior log-posterior of the hit rate given
// the counts in d and a fixed false-alarm rate.
func HitRatePosterior(d *sdt.Detection, falseAlarmRate float64) (sampler.LogTarget, error) {
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("validating detection: %w", err)
	}
	if !(falseAlarmRate > 0 && falseAlarmRate < 1) {
		return nil, fmt.Errorf("%w: false alarm rate %v", ErrInvalidParam, falseAlarmRate)
	}
	return func(hr float64) float64 {
		return logLikelihood(d, hr, falseAlarmRate)
	}, nil
}

// rates outside (0, 1) have zero likelihood
func logLikelihood(d *sdt.Detection, hr, far float64) float64 {
	nll, err := d.NLogLikelihood(hr, far)
	if err != nil {
		return math.Inf(-1)
	}
	return -nll
}
