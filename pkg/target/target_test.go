package target

import (
	"math"
	"testing"

	"github.com/mchmarny/metro/pkg/sampler"
	"github.com/mchmarny/metro/pkg/sdt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardNormal(t *testing.T) {
	f := StandardNormal()
	assert.Equal(t, 0.0, f(0))
	assert.Equal(t, f(1.3), f(-1.3))
	assert.Greater(t, f(0.1), f(2))
}

func TestNormal(t *testing.T) {
	f, err := Normal(2, 0.5)
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(0.5*math.Sqrt(2*math.Pi)), f(2), 1e-12)
	assert.Greater(t, f(2), f(2.4))

	for _, sigma := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := Normal(0, sigma)
		assert.ErrorIs(t, err, ErrInvalidParam, "sigma %v", sigma)
	}
}

func TestUniform(t *testing.T) {
	f, err := Uniform(-1, 3)
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(4), f(0), 1e-12)
	assert.True(t, math.IsInf(f(-1.01), -1))
	assert.True(t, math.IsInf(f(3.5), -1))

	_, err = Uniform(1, 1)
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestExponential(t *testing.T) {
	f, err := Exponential(2)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(2), f(0), 1e-12)
	assert.True(t, math.IsInf(f(-0.1), -1))

	_, err = Exponential(0)
	assert.ErrorIs(t, err, ErrInvalidParam)
}

func TestConstant(t *testing.T) {
	f := Constant(4)
	assert.Equal(t, 4.0, f(-1e9))
	assert.Equal(t, 4.0, f(1e9))
}

func TestDPrimePosterior(t *testing.T) {
	det, err := sdt.New(80, 20, 20, 80)
	require.NoError(t, err)

	f, err := DPrimePosterior(det, det.Criterion())
	require.NoError(t, err)

	// the likelihood peaks at the observed d'
	peak := det.DPrime()
	assert.Greater(t, f(peak), f(peak-0.5))
	assert.Greater(t, f(peak), f(peak+0.5))

	// rates saturate for very large d' and leave the support
	assert.True(t, math.IsInf(f(100), -1))

	_, err = DPrimePosterior(&sdt.Detection{}, 0)
	assert.ErrorIs(t, err, sdt.ErrNoTrials)

	_, err = DPrimePosterior(nil, 0)
	assert.Error(t, err)
}

func TestHitRatePosterior(t *testing.T) {
	det, err := sdt.New(30, 10, 5, 15)
	require.NoError(t, err)

	f, err := HitRatePosterior(det, det.FalseAlarmRate())
	require.NoError(t, err)
	assert.Greater(t, f(0.75), f(0.5))
	assert.True(t, math.IsInf(f(0), -1))
	assert.True(t, math.IsInf(f(1.2), -1))

	_, err = HitRatePosterior(det, 1)
	assert.ErrorIs(t, err, ErrInvalidParam)

	_, err = HitRatePosterior(&sdt.Detection{Hits: -1, Misses: 2, FalseAlarms: 1, CorrectRejections: 1}, 0.5)
	assert.ErrorIs(t, err, sdt.ErrNegativeCount)
}

func TestBuild(t *testing.T) {
	det, err := sdt.New(15, 10, 15, 5)
	require.NoError(t, err)

	tests := []struct {
		name string
		spec Spec
		det  *sdt.Detection
		want error
	}{
		{"normal defaults", Spec{Kind: KindNormal}, nil, nil},
		{"normal params", Spec{Kind: KindNormal, Params: map[string]float64{"mu": 1, "sigma": 2}}, nil, nil},
		{"normal bad sigma", Spec{Kind: KindNormal, Params: map[string]float64{"sigma": -2}}, nil, ErrInvalidParam},
		{"uniform", Spec{Kind: KindUniform, Params: map[string]float64{"lo": 0, "hi": 1}}, nil, nil},
		{"uniform missing hi", Spec{Kind: KindUniform, Params: map[string]float64{"lo": 0}}, nil, ErrMissingParam},
		{"constant", Spec{Kind: KindConstant}, nil, nil},
		{"exponential", Spec{Kind: KindExponential, Params: map[string]float64{"rate": 3}}, nil, nil},
		{"dprime", Spec{Kind: KindDPrime}, det, nil},
		{"dprime without counts", Spec{Kind: KindDPrime}, nil, ErrNeedsDetection},
		{"hitrate", Spec{Kind: KindHitRate, Params: map[string]float64{"false_alarm_rate": 0.3}}, det, nil},
		{"hitrate without counts", Spec{Kind: KindHitRate}, nil, ErrNeedsDetection},
		{"unknown", Spec{Kind: "cauchy"}, nil, ErrUnknownKind},
		{"empty", Spec{}, nil, ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Build(tt.spec, tt.det)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
				assert.Nil(t, f)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, f)
		})
	}
}

func TestKinds(t *testing.T) {
	kinds := Kinds()
	assert.Len(t, kinds, 6)
	assert.Contains(t, kinds, KindNormal)
	assert.Contains(t, kinds, KindDPrime)
	assert.IsIncreasing(t, kinds)
}

func TestDPrimePosterior_Sampled(t *testing.T) {
	det, err := sdt.New(80, 20, 30, 70)
	require.NoError(t, err)

	f, err := DPrimePosterior(det, det.Criterion())
	require.NoError(t, err)

	s, err := sampler.New(f, 0, sampler.WithSeed(7), sampler.WithStdDev(0.5))
	require.NoError(t, err)
	require.NoError(t, s.Adapt([]int{200, 200, 200}))
	require.NoError(t, s.Sample(10000))

	sum, err := s.Summary()
	require.NoError(t, err)
	assert.InDelta(t, det.DPrime(), sum.Mean, 0.1)
}
