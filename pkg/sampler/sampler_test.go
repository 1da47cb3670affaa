package sampler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeed = 42

func standardNormal(x float64) float64 {
	return -0.5 * x * x
}

func constant(float64) float64 {
	return 0
}

// pinned has density only at exactly zero, so random-walk proposals are
// always rejected while explicit proposals of 0 are always accepted.
func pinned(x float64) float64 {
	if x == 0 {
		return 0
	}
	return math.Inf(-1)
}

func newTestSampler(t *testing.T, target LogTarget, initial float64, opts ...Option) *Sampler {
	t.Helper()
	opts = append([]Option{WithSeed(testSeed)}, opts...)
	s, err := New(target, initial, opts...)
	require.NoError(t, err)
	return s
}

func TestNew_Defaults(t *testing.T) {
	s := newTestSampler(t, standardNormal, 0.5)
	assert.Equal(t, 0.5, s.State())
	assert.Equal(t, StdDevDefault, s.StdDev())
	assert.Equal(t, 0, s.Accepted())
	assert.Equal(t, 0, s.Proposed())
	assert.Equal(t, 0.0, s.AcceptanceRate())
	assert.Empty(t, s.Samples())
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name    string
		target  LogTarget
		initial float64
		opts    []Option
		want    error
	}{
		{"nil target", nil, 0, nil, ErrNilTarget},
		{"zero std dev", standardNormal, 0, []Option{WithStdDev(0)}, ErrInvalidStdDev},
		{"negative std dev", standardNormal, 0, []Option{WithStdDev(-1)}, ErrInvalidStdDev},
		{"nan std dev", standardNormal, 0, []Option{WithStdDev(math.NaN())}, ErrInvalidStdDev},
		{"inf std dev", standardNormal, 0, []Option{WithStdDev(math.Inf(1))}, ErrInvalidStdDev},
		{"nan density", func(float64) float64 { return math.NaN() }, 0, nil, ErrInvalidTarget},
		{"inf density", func(float64) float64 { return math.Inf(1) }, 0, nil, ErrInvalidTarget},
		{"outside support", pinned, 1, nil, ErrOutOfSupport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.target, tt.initial, tt.opts...)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, s)
		})
	}
}

func TestAccept_CounterMonotonicity(t *testing.T) {
	s := newTestSampler(t, standardNormal, 0)

	for i := 0; i < 1000; i++ {
		prevAccepted, prevProposed := s.Accepted(), s.Proposed()
		ok, err := s.Accept(s.State() + float64(i%7) - 3)
		require.NoError(t, err)

		assert.Equal(t, prevProposed+1, s.Proposed())
		if ok {
			assert.Equal(t, prevAccepted+1, s.Accepted())
		} else {
			assert.Equal(t, prevAccepted, s.Accepted())
		}
		assert.LessOrEqual(t, s.Accepted(), s.Proposed())
	}
}

func TestAccept_HigherDensityAlwaysAccepted(t *testing.T) {
	s := newTestSampler(t, standardNormal, 5)

	for x := 5.0; x >= 0; x -= 0.25 {
		ok, err := s.Accept(x)
		require.NoError(t, err)
		assert.True(t, ok, "proposal %v", x)
		assert.Equal(t, x, s.State())
	}

	// equal density is accepted too
	for i := 0; i < 100; i++ {
		ok, err := s.Accept(0)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, s.Proposed(), s.Accepted())
}

func TestAccept_LargeDynamicRange(t *testing.T) {
	// densities far below float64 range are still compared correctly in log space
	target := func(x float64) float64 { return -1e6 * x * x }
	s := newTestSampler(t, target, 1)

	ok, err := s.Accept(0.5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.5, s.State())
}

func TestAccept_NegativeInfinityNeverAccepted(t *testing.T) {
	unit := func(x float64) float64 {
		if x < 0 || x > 1 {
			return math.Inf(-1)
		}
		return 0
	}
	s := newTestSampler(t, unit, 0.5)

	for i := 0; i < 500; i++ {
		ok, err := s.Accept(2)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 0.5, s.State())
	assert.Equal(t, 0, s.Accepted())
	assert.Equal(t, 500, s.Proposed())
}

func TestAccept_NaNRejected(t *testing.T) {
	target := func(x float64) float64 {
		if x > 1 {
			return math.NaN()
		}
		return 0
	}
	s := newTestSampler(t, target, 0)

	ok, err := s.Accept(2)
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.False(t, ok)
	assert.Equal(t, 0.0, s.State())
	assert.Equal(t, 1, s.Proposed())
	assert.Equal(t, 0, s.Accepted())
}

func TestAdapt_HalvesBelowBand(t *testing.T) {
	s := newTestSampler(t, pinned, 0)

	require.NoError(t, s.Adapt([]int{10}))
	assert.Equal(t, 0.5, s.StdDev())

	require.NoError(t, s.Adapt([]int{10, 10}))
	assert.Equal(t, 0.125, s.StdDev())
	assert.Equal(t, 0, s.Accepted())
	assert.Equal(t, 30, s.Proposed())
}

func TestAdapt_DoublesAboveBand(t *testing.T) {
	s := newTestSampler(t, constant, 0, WithStdDev(0.5))

	require.NoError(t, s.Adapt([]int{5}))
	assert.Equal(t, 1.0, s.StdDev())

	require.NoError(t, s.Adapt([]int{5, 5, 5}))
	assert.Equal(t, 8.0, s.StdDev())
}

func TestAdapt_UnchangedInsideBand(t *testing.T) {
	s := newTestSampler(t, pinned, 0)

	// two acceptances up front, then a block of eight rejections: 2/10 = 0.20
	for i := 0; i < 2; i++ {
		ok, err := s.Accept(0)
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, s.Adapt([]int{8}))
	assert.Equal(t, 1.0, s.StdDev())
	assert.InDelta(t, 0.2, s.AcceptanceRate(), 1e-12)
}

func TestAdapt_UsesCumulativeRate(t *testing.T) {
	s := newTestSampler(t, pinned, 0)

	// ten acceptances before tuning; the block itself accepts nothing but the
	// lifetime rate is 10/20, so the scale doubles instead of halving
	for i := 0; i < 10; i++ {
		_, err := s.Accept(0)
		require.NoError(t, err)
	}

	require.NoError(t, s.Adapt([]int{10}))
	assert.Equal(t, 2.0, s.StdDev())
	assert.Equal(t, 10, s.Accepted())
	assert.Equal(t, 20, s.Proposed())
}

func TestAdapt_DoesNotRecordSamples(t *testing.T) {
	s := newTestSampler(t, constant, 0)
	require.NoError(t, s.Adapt([]int{100, 100}))
	assert.Empty(t, s.Samples())
	assert.Equal(t, 200, s.Accepted())
}

func TestAdapt_InvalidSchedule(t *testing.T) {
	tests := []struct {
		name     string
		schedule []int
	}{
		{"nil", nil},
		{"empty", []int{}},
		{"zero first block", []int{0, 10}},
		{"zero later block", []int{10, 0}},
		{"negative block", []int{-5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSampler(t, standardNormal, 0)
			err := s.Adapt(tt.schedule)
			assert.ErrorIs(t, err, ErrInvalidSchedule)
			assert.Equal(t, 0, s.Proposed())
			assert.Equal(t, StdDevDefault, s.StdDev())
		})
	}
}

func TestAdapt_InvalidTargetAborts(t *testing.T) {
	target := func(x float64) float64 {
		if math.Abs(x) > 0.5 {
			return math.NaN()
		}
		return 0
	}
	s := newTestSampler(t, target, 0, WithStdDev(100))
	err := s.Adapt([]int{1000})
	assert.ErrorIs(t, err, ErrInvalidTarget)
	assert.False(t, math.IsNaN(s.State()))
	assert.LessOrEqual(t, math.Abs(s.State()), 0.5)
}

// startOnly has density only on its first evaluation, the initial state,
// so every proposal is rejected even when it rounds back onto the state.
func startOnly() LogTarget {
	first := true
	return func(float64) float64 {
		if first {
			first = false
			return 0
		}
		return math.Inf(-1)
	}
}

func TestAdapt_ScaleUnderflowKeepsScale(t *testing.T) {
	s := newTestSampler(t, startOnly(), 0, WithStdDev(math.SmallestNonzeroFloat64))

	err := s.Adapt([]int{1})
	require.ErrorIs(t, err, ErrInvalidStdDev)
	assert.Equal(t, math.SmallestNonzeroFloat64, s.StdDev())

	require.NoError(t, s.Sample(10))
	assert.Greater(t, s.StdDev(), 0.0)
	assert.Empty(t, s.Samples())
}

func TestAdapt_ScaleOverflowKeepsScale(t *testing.T) {
	s := newTestSampler(t, constant, 0, WithStdDev(math.MaxFloat64))

	err := s.Adapt([]int{1})
	require.ErrorIs(t, err, ErrInvalidStdDev)
	assert.Equal(t, math.MaxFloat64, s.StdDev())
	assert.False(t, math.IsInf(s.StdDev(), 1))
}

func TestSample_InvalidCount(t *testing.T) {
	s := newTestSampler(t, standardNormal, 0)
	assert.ErrorIs(t, s.Sample(0), ErrInvalidSampleCount)
	assert.ErrorIs(t, s.Sample(-3), ErrInvalidSampleCount)
	assert.Equal(t, 0, s.Proposed())
}

func TestSample_CountMatchesAcceptances(t *testing.T) {
	s := newTestSampler(t, standardNormal, 0)
	require.NoError(t, s.Adapt([]int{200}))
	sd := s.StdDev()

	for _, n := range []int{1, 50, 1000} {
		prevSamples, prevAccepted, prevProposed := len(s.Samples()), s.Accepted(), s.Proposed()

		require.NoError(t, s.Sample(n))

		added := len(s.Samples()) - prevSamples
		assert.Equal(t, s.Accepted()-prevAccepted, added)
		assert.Equal(t, n, s.Proposed()-prevProposed)
		assert.LessOrEqual(t, added, n)
	}

	// scale is frozen while sampling
	assert.Equal(t, sd, s.StdDev())
}

func TestSample_RecordsAcceptedStates(t *testing.T) {
	unit := func(x float64) float64 {
		if x < 0 || x > 1 {
			return math.Inf(-1)
		}
		return 0
	}
	s := newTestSampler(t, unit, 0.5, WithStdDev(0.2))
	require.NoError(t, s.Sample(2000))

	samples := s.Samples()
	require.NotEmpty(t, samples)
	for _, v := range samples {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Equal(t, samples[len(samples)-1], s.State())
}

func TestSamples_ReturnsCopy(t *testing.T) {
	s := newTestSampler(t, constant, 0)
	require.NoError(t, s.Sample(10))

	got := s.Samples()
	got[0] = 1e9
	assert.NotEqual(t, 1e9, s.Samples()[0])
}

func TestConstantTarget_AcceptsEverything(t *testing.T) {
	s := newTestSampler(t, constant, 3)
	require.NoError(t, s.Adapt([]int{10, 20}))
	require.NoError(t, s.Sample(500))

	_, err := s.Accept(-100)
	require.NoError(t, err)

	assert.Equal(t, s.Proposed(), s.Accepted())
	assert.Len(t, s.Samples(), 500)
}

func TestNewRand_MatchesWithSeed(t *testing.T) {
	a := newTestSampler(t, standardNormal, 0)
	b, err := New(standardNormal, 0, WithRand(NewRand(testSeed)))
	require.NoError(t, err)

	require.NoError(t, a.Sample(200))
	require.NoError(t, b.Sample(200))
	assert.Equal(t, a.Samples(), b.Samples())
}

func TestSeed_Reproducible(t *testing.T) {
	run := func() []float64 {
		s := newTestSampler(t, standardNormal, 0)
		require.NoError(t, s.Adapt([]int{100, 100}))
		require.NoError(t, s.Sample(500))
		return s.Samples()
	}
	assert.Equal(t, run(), run())
}

func TestStats(t *testing.T) {
	s := newTestSampler(t, constant, 0)
	require.NoError(t, s.Sample(25))

	st := s.Stats()
	assert.Equal(t, 25, st.Accepted)
	assert.Equal(t, 25, st.Proposed)
	assert.Equal(t, 25, st.Samples)
	assert.Equal(t, 1.0, st.AcceptanceRate)
	assert.Equal(t, s.State(), st.State)
	assert.Equal(t, s.StdDev(), st.StdDev)
}

func TestStandardNormalScenario(t *testing.T) {
	s := newTestSampler(t, standardNormal, 0, WithStdDev(1))
	require.NoError(t, s.Adapt([]int{1000}))
	require.NoError(t, s.Sample(20000))

	sum, err := s.Summary()
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sum.Mean, 0.05)
	assert.Less(t, sum.CI.Lower(), sum.Mean)
	assert.Greater(t, sum.CI.Upper(), sum.Mean)
}

func TestStandardNormalScenario_IntervalShrinks(t *testing.T) {
	var widths []float64
	for _, n := range []int{1000, 5000, 20000} {
		s := newTestSampler(t, standardNormal, 0, WithStdDev(1))
		require.NoError(t, s.Adapt([]int{1000}))
		require.NoError(t, s.Sample(n))

		sum, err := s.Summary()
		require.NoError(t, err)
		if n == 5000 {
			assert.InDelta(t, 0.0, sum.Mean, 0.05)
		}
		widths = append(widths, sum.CI.Width())
	}

	assert.Greater(t, widths[0], widths[1])
	assert.Greater(t, widths[1], widths[2])
}
