package sampler

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
)

const (
	// StdDevDefault is the proposal scale used when none is configured.
	StdDevDefault = 1.0

	// acceptance-rate dead band of the tuning controller
	lowAcceptanceRate  = 0.10
	highAcceptanceRate = 0.30

	seedStream = 0x9e3779b97f4a7c15
)

// LogTarget evaluates the log of an unnormalized density at x.
// It returns math.Inf(-1) for states outside the support.
// NaN and +Inf are contract violations.
type LogTarget func(x float64) float64

// Option configures a Sampler.
type Option func(*Sampler)

// WithStdDev sets the initial proposal scale.
func WithStdDev(sd float64) Option {
	return func(s *Sampler) {
		s.stdDev = sd
	}
}

// NewRand returns the PCG generator a user-facing seed maps to.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^seedStream))
}

// WithSeed seeds the sampler's own PCG source so runs are reproducible.
func WithSeed(seed uint64) Option {
	return func(s *Sampler) {
		s.rng = NewRand(seed)
	}
}

// WithRand injects the random source. The sampler takes ownership of it.
func WithRand(r *rand.Rand) Option {
	return func(s *Sampler) {
		if r != nil {
			s.rng = r
		}
	}
}

// WithLogger sets the logger used to report tuning progress.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sampler) {
		if l != nil {
			s.logger = l
		}
	}
}

// Sampler is a random-walk Metropolis chain over a scalar state.
//
// The accepted and proposed counters span the whole lifetime of the sampler:
// they are not reset between tuning blocks or between Adapt and Sample, so the
// tuning feedback is the cumulative acceptance rate.
//
// A Sampler is not safe for concurrent use. Run independent chains on
// independent instances.
type Sampler struct {
	logTarget  LogTarget
	state      float64
	logDensity float64
	stdDev     float64
	accepted   int
	proposed   int
	samples    []float64
	rng        *rand.Rand
	logger     *slog.Logger
}

// New creates a sampler positioned at initial.
func New(target LogTarget, initial float64, opts ...Option) (*Sampler, error) {
	if target == nil {
		return nil, ErrNilTarget
	}

	s := &Sampler{
		logTarget: target,
		state:     initial,
		stdDev:    StdDevDefault,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.rng == nil {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	if !validStdDev(s.stdDev) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStdDev, s.stdDev)
	}

	lp := target(initial)
	if invalidDensity(lp) {
		return nil, fmt.Errorf("%w: %v at initial state %v", ErrInvalidTarget, lp, initial)
	}
	if math.IsInf(lp, -1) {
		return nil, fmt.Errorf("%w: %v", ErrOutOfSupport, initial)
	}
	s.logDensity = lp

	return s, nil
}

// Accept runs one Metropolis accept/reject step against proposal.
// The ratio is computed in log space. A NaN or +Inf density at the proposal
// is rejected and reported as ErrInvalidTarget; the step still counts as
// proposed.
func (s *Sampler) Accept(proposal float64) (bool, error) {
	lp := s.logTarget(proposal)
	u := s.rng.Float64()
	s.proposed++

	if invalidDensity(lp) {
		return false, fmt.Errorf("%w: %v at %v", ErrInvalidTarget, lp, proposal)
	}

	alpha := math.Min(1, math.Exp(lp-s.logDensity))
	if alpha <= u {
		return false, nil
	}

	s.state = proposal
	s.logDensity = lp
	s.accepted++
	return true, nil
}

// Adapt tunes the proposal scale. Each entry of schedule is a block of
// proposals; after every block the cumulative acceptance rate halves the
// scale when below 0.10 and doubles it when above 0.30.
// States accepted during tuning are not recorded as samples.
func (s *Sampler) Adapt(schedule []int) error {
	if len(schedule) == 0 {
		return ErrInvalidSchedule
	}
	for i, n := range schedule {
		if n < 1 {
			return fmt.Errorf("%w: block %d has length %d", ErrInvalidSchedule, i, n)
		}
	}

	for i, n := range schedule {
		for range n {
			if _, err := s.Accept(s.propose()); err != nil {
				return fmt.Errorf("adapting block %d: %w", i, err)
			}
		}

		rate := s.AcceptanceRate()
		next := s.stdDev
		switch {
		case rate < lowAcceptanceRate:
			next /= 2
		case rate > highAcceptanceRate:
			next *= 2
		}

		// the scale stays at its last valid value when the step would leave (0, +Inf)
		if !validStdDev(next) {
			return fmt.Errorf("%w: block %d would scale %v to %v", ErrInvalidStdDev, i, s.stdDev, next)
		}

		s.logger.Debug("adapted proposal scale",
			"block", i,
			"length", n,
			"rate", rate,
			"from", s.stdDev,
			"to", next,
		)
		s.stdDev = next
	}

	return nil
}

// Sample runs the chain for n proposals at the current scale and appends
// every newly accepted state to the sample set.
func (s *Sampler) Sample(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSampleCount, n)
	}

	for i := range n {
		ok, err := s.Accept(s.propose())
		if err != nil {
			return fmt.Errorf("sampling step %d: %w", i, err)
		}
		if ok {
			s.samples = append(s.samples, s.state)
		}
	}

	s.logger.Debug("sampled",
		"steps", n,
		"samples", len(s.samples),
		"rate", s.AcceptanceRate(),
	)

	return nil
}

// Summary reduces the collected samples to a mean and a 95% interval.
func (s *Sampler) Summary() (*Summary, error) {
	return Summarize(s.samples)
}

func (s *Sampler) propose() float64 {
	return s.state + s.rng.NormFloat64()*s.stdDev
}

// State returns the current chain position.
func (s *Sampler) State() float64 {
	return s.state
}

// StdDev returns the current proposal scale.
func (s *Sampler) StdDev() float64 {
	return s.stdDev
}

func (s *Sampler) Accepted() int {
	return s.accepted
}

func (s *Sampler) Proposed() int {
	return s.proposed
}

// AcceptanceRate returns accepted/proposed over the sampler's lifetime,
// or 0 before the first proposal.
func (s *Sampler) AcceptanceRate() float64 {
	if s.proposed == 0 {
		return 0
	}
	return float64(s.accepted) / float64(s.proposed)
}

// Samples returns a copy of the recorded samples.
func (s *Sampler) Samples() []float64 {
	out := make([]float64, len(s.samples))
	copy(out, s.samples)
	return out
}

// Stats is a point-in-time snapshot of the chain.
type Stats struct {
	State          float64 `json:"state" yaml:"state"`
	StdDev         float64 `json:"std_dev" yaml:"std_dev"`
	Accepted       int     `json:"accepted" yaml:"accepted"`
	Proposed       int     `json:"proposed" yaml:"proposed"`
	AcceptanceRate float64 `json:"acceptance_rate" yaml:"acceptance_rate"`
	Samples        int     `json:"samples" yaml:"samples"`
}

func (s *Sampler) Stats() Stats {
	return Stats{
		State:          s.state,
		StdDev:         s.stdDev,
		Accepted:       s.accepted,
		Proposed:       s.proposed,
		AcceptanceRate: s.AcceptanceRate(),
		Samples:        len(s.samples),
	}
}

func validStdDev(sd float64) bool {
	return sd > 0 && !math.IsInf(sd, 1) && !math.IsNaN(sd)
}

func invalidDensity(lp float64) bool {
	return math.IsNaN(lp) || math.IsInf(lp, 1)
}
