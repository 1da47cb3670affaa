package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mchmarny/metro/pkg/config"
	"github.com/mchmarny/metro/pkg/sampler"
	"github.com/mchmarny/metro/pkg/target"
	"golang.org/x/sync/errgroup"
)

const (
	// ParallelDefault is the number of independent runs executed at once.
	ParallelDefault = 4
)

// Result is the outcome of one tuned-then-sampled chain.
type Result struct {
	Name       string           `json:"name" yaml:"name"`
	Target     string           `json:"target" yaml:"target"`
	Summary    *sampler.Summary `json:"summary" yaml:"summary"`
	Chain      sampler.Stats    `json:"chain" yaml:"chain"`
	Seed       *uint64          `json:"seed,omitempty" yaml:"seed,omitempty"`
	Steps      int              `json:"steps" yaml:"steps"`
	DurationMS int64            `json:"duration_ms" yaml:"duration_ms"`
}

// Run builds the target named by cfg and drives a sampler through the
// tuning and sampling phases. The context is only checked between phases;
// each phase runs to completion once started.
func Run(ctx context.Context, cfg *config.Run) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	logger := slog.Default().With("run", cfg.Name)

	lt, err := target.Build(cfg.Target, cfg.Detection)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", cfg.Name, err)
	}

	opts := []sampler.Option{
		sampler.WithStdDev(cfg.StdDev),
		sampler.WithLogger(logger),
	}
	if cfg.Seed != nil {
		opts = append(opts, sampler.WithSeed(*cfg.Seed))
	}

	s, err := sampler.New(lt, cfg.Initial, opts...)
	if err != nil {
		return nil, fmt.Errorf("run %s: creating sampler: %w", cfg.Name, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Debug("tuning", "blocks", len(cfg.Schedule), "std_dev", cfg.StdDev)
	if err := s.Adapt(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("run %s: %w", cfg.Name, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger.Debug("sampling", "steps", cfg.Samples, "std_dev", s.StdDev())
	if err := s.Sample(cfg.Samples); err != nil {
		return nil, fmt.Errorf("run %s: %w", cfg.Name, err)
	}

	sum, err := s.Summary()
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", cfg.Name, err)
	}

	res := &Result{
		Name:       cfg.Name,
		Target:     cfg.Target.Kind,
		Summary:    sum,
		Chain:      s.Stats(),
		Seed:       cfg.Seed,
		Steps:      s.Proposed(),
		DurationMS: time.Since(start).Milliseconds(),
	}

	logger.Info("run complete",
		"mean", sum.Mean,
		"lower", sum.CI.Lower(),
		"upper", sum.CI.Upper(),
		"rate", res.Chain.AcceptanceRate,
	)

	return res, nil
}

// RunAll executes independent runs, at most limit at a time, each on its
// own sampler. Results keep the order of cfgs. The first failure cancels
// runs that have not started yet.
func RunAll(ctx context.Context, cfgs []*config.Run, limit int) ([]*Result, error) {
	if len(cfgs) == 0 {
		return nil, errors.New("at least one run config required")
	}
	if limit < 1 {
		limit = ParallelDefault
	}

	results := make([]*Result, len(cfgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, cfg := range cfgs {
		g.Go(func() error {
			res, err := Run(gctx, cfg)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
