package target

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mchmarny/metro/pkg/sampler"
	"github.com/mchmarny/metro/pkg/sdt"
)

const (
	KindNormal      = "normal"
	KindUniform     = "uniform"
	KindConstant    = "constant"
	KindExponential = "exponential"
	KindDPrime      = "dprime"
	KindHitRate     = "hitrate"
)

var (
	ErrUnknownKind    = errors.New("unknown target kind")
	ErrMissingParam   = errors.New("missing target parameter")
	ErrNeedsDetection = errors.New("target requires detection counts")
)

// Spec names a target kind and its parameters.
type Spec struct {
	Kind   string             `json:"kind" yaml:"kind"`
	Params map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
}

type builder func(p params, det *sdt.Detection) (sampler.LogTarget, error)

var builders = map[string]builder{
	KindNormal: func(p params, _ *sdt.Detection) (sampler.LogTarget, error) {
		return Normal(p.get("mu", 0), p.get("sigma", 1))
	},
	KindUniform: func(p params, _ *sdt.Detection) (sampler.LogTarget, error) {
		lo, err := p.require("lo")
		if err != nil {
			return nil, err
		}
		hi, err := p.require("hi")
		if err != nil {
			return nil, err
		}
		return Uniform(lo, hi)
	},
	KindConstant: func(p params, _ *sdt.Detection) (sampler.LogTarget, error) {
		return Constant(p.get("value", 0)), nil
	},
	KindExponential: func(p params, _ *sdt.Detection) (sampler.LogTarget, error) {
		return Exponential(p.get("rate", 1))
	},
	KindDPrime: func(p params, det *sdt.Detection) (sampler.LogTarget, error) {
		if det == nil {
			return nil, fmt.Errorf("%w: %s", ErrNeedsDetection, KindDPrime)
		}
		c, ok := p["criterion"]
		if !ok {
			c = det.Criterion()
		}
		return DPrimePosterior(det, c)
	},
	KindHitRate: func(p params, det *sdt.Detection) (sampler.LogTarget, error) {
		if det == nil {
			return nil, fmt.Errorf("%w: %s", ErrNeedsDetection, KindHitRate)
		}
		far, ok := p["false_alarm_rate"]
		if !ok {
			far = det.FalseAlarmRate()
		}
		return HitRatePosterior(det, far)
	},
}

// Kinds lists the registered target kinds in sorted order.
func Kinds() []string {
	list := make([]string, 0, len(builders))
	for k := range builders {
		list = append(list, k)
	}
	sort.Strings(list)
	return list
}

// Build resolves spec into a log target. The detection counts are only
// consulted by the signal-detection kinds and may be nil otherwise.
func Build(spec Spec, det *sdt.Detection) (sampler.LogTarget, error) {
	b, ok := builders[spec.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
	t, err := b(params(spec.Params), det)
	if err != nil {
		return nil, fmt.Errorf("building %s target: %w", spec.Kind, err)
	}
	return t, nil
}

type params map[string]float64

func (p params) get(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

func (p params) require(key string) (float64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingParam, key)
	}
	return v, nil
}
