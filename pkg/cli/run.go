package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mchmarny/metro/pkg/config"
	"github.com/mchmarny/metro/pkg/data"
	"github.com/mchmarny/metro/pkg/runner"
	"github.com/mchmarny/metro/pkg/sampler"
	"github.com/mchmarny/metro/pkg/sdt"
	"github.com/mchmarny/metro/pkg/target"
	urfave "github.com/urfave/cli/v3"
)

const (
	samplesDefault  = 5000
	scheduleDefault = "1000"
	nameDefault     = "adhoc"
)

const (
	configFileFlag = "config"
	nameFlag       = "name"
	targetFlag     = "target"
	paramFlag      = "param"
	initialFlag    = "initial"
	stdDevFlag     = "std-dev"
	scheduleFlag   = "schedule"
	samplesFlag    = "samples"
	seedFlag       = "seed"
	parallelFlag   = "parallel"
	noSaveFlag     = "no-save"
)

func newRunCmd() *urfave.Command {
	return &urfave.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Tune and run the sampler, then print the mean and 95% confidence interval",
		UsageText: `metro run --target normal --param mu=2 --param sigma=0.5 --seed 42
   metro run --target dprime --hits 80 --misses 20 --false-alarms 30 --correct-rejections 70
   metro run --config a.yaml --config b.yaml --parallel 2`,
		Action: cmdRun,
		Flags: append([]urfave.Flag{
			&urfave.StringSliceFlag{
				Name:    configFileFlag,
				Aliases: []string{"c"},
				Usage:   "Run config file (can be specified multiple times, runs execute concurrently)",
			},
			&urfave.StringFlag{
				Name:  nameFlag,
				Usage: "Run name recorded in history",
				Value: nameDefault,
			},
			&urfave.StringFlag{
				Name:  targetFlag,
				Usage: fmt.Sprintf("Target kind [%s]", strings.Join(target.Kinds(), ", ")),
				Value: target.KindNormal,
			},
			&urfave.StringSliceFlag{
				Name:  paramFlag,
				Usage: "Target parameter as key=value (e.g. mu=0, sigma=1, lo=0, hi=1, rate=2, criterion=0)",
			},
			&urfave.FloatFlag{
				Name:  initialFlag,
				Usage: "Initial chain state",
			},
			&urfave.FloatFlag{
				Name:  stdDevFlag,
				Usage: "Initial proposal standard deviation",
				Value: sampler.StdDevDefault,
			},
			&urfave.StringFlag{
				Name:  scheduleFlag,
				Usage: "Comma separated tuning block lengths",
				Value: scheduleDefault,
			},
			&urfave.IntFlag{
				Name:  samplesFlag,
				Usage: "Number of sampling steps",
				Value: samplesDefault,
			},
			newSeedFlag(),
			&urfave.IntFlag{
				Name:  parallelFlag,
				Usage: "Maximum number of config runs executed at once",
				Value: runner.ParallelDefault,
			},
			&urfave.BoolFlag{
				Name:  noSaveFlag,
				Usage: "Do not record results in run history",
			},
		}, newCountFlags()...),
	}
}

func newSeedFlag() urfave.Flag {
	return &urfave.Uint64Flag{
		Name:  seedFlag,
		Usage: "Random seed (optional, random when not set)",
	}
}

func cmdRun(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(ctx)

	var runs []*config.Run
	if files := cmd.StringSlice(configFileFlag); len(files) > 0 {
		for _, f := range files {
			r, err := config.Load(f)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			runs = append(runs, r)
		}
	} else {
		r, err := runFromFlags(cmd)
		if err != nil {
			return err
		}
		runs = append(runs, r)
	}

	slog.Debug("running", "runs", len(runs), "parallel", cmd.Int(parallelFlag))

	results, err := runner.RunAll(ctx, runs, cmd.Int(parallelFlag))
	if err != nil {
		return fmt.Errorf("failed to run sampler: %w", err)
	}

	if !cmd.Bool(noSaveFlag) {
		for i, res := range results {
			rec := toRecord(res, runs[i])
			if err := data.SaveRun(cfg.DB, rec); err != nil {
				return fmt.Errorf("failed to save run %s: %w", res.Name, err)
			}
			slog.Debug("saved run", "id", rec.ID, "name", rec.Name)
		}
	}

	if err := encode(cfg, results); err != nil {
		return fmt.Errorf("error encoding results: %w", err)
	}

	return nil
}

func runFromFlags(cmd *urfave.Command) (*config.Run, error) {
	params, err := parseParams(cmd.StringSlice(paramFlag))
	if err != nil {
		return nil, err
	}

	schedule, err := parseInts(cmd.String(scheduleFlag))
	if err != nil {
		return nil, fmt.Errorf("invalid schedule: %w", err)
	}

	r := &config.Run{
		Name:     cmd.String(nameFlag),
		Target:   target.Spec{Kind: cmd.String(targetFlag), Params: params},
		Initial:  cmd.Float(initialFlag),
		StdDev:   cmd.Float(stdDevFlag),
		Schedule: schedule,
		Samples:  cmd.Int(samplesFlag),
	}

	if cmd.IsSet(seedFlag) {
		seed := cmd.Uint64(seedFlag)
		r.Seed = &seed
	}

	if det := detectionFromFlags(cmd); det != nil {
		r.Detection = det
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

func toRecord(res *runner.Result, r *config.Run) *data.RunRecord {
	return &data.RunRecord{
		Name:           res.Name,
		Target:         res.Target,
		Params:         r.Target.Params,
		Mean:           res.Summary.Mean,
		Lower:          res.Summary.CI.Lower(),
		Upper:          res.Summary.CI.Upper(),
		SampleStdDev:   res.Summary.StdDev,
		Samples:        res.Summary.N,
		ProposalStdDev: res.Chain.StdDev,
		Accepted:       res.Chain.Accepted,
		Proposed:       res.Chain.Proposed,
		Seed:           res.Seed,
		DurationMS:     res.DurationMS,
	}
}

func parseParams(list []string) (map[string]float64, error) {
	if len(list) == 0 {
		return nil, nil
	}
	params := make(map[string]float64, len(list))
	for _, p := range list {
		k, v, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid param %q, expected key=value", p)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for param %s: %w", k, err)
		}
		params[strings.TrimSpace(k)] = f
	}
	return params, nil
}

func parseInts(s string) ([]int, error) {
	var list []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", part, err)
		}
		list = append(list, v)
	}
	return list, nil
}

func parseFloats(s string) ([]float64, error) {
	var list []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", part, err)
		}
		list = append(list, v)
	}
	return list, nil
}

func detectionFromFlags(cmd *urfave.Command) *sdt.Detection {
	if !cmd.IsSet(hitsFlag) && !cmd.IsSet(missesFlag) &&
		!cmd.IsSet(falseAlarmsFlag) && !cmd.IsSet(correctRejectionsFlag) {
		return nil
	}
	return &sdt.Detection{
		Hits:              cmd.Int(hitsFlag),
		Misses:            cmd.Int(missesFlag),
		FalseAlarms:       cmd.Int(falseAlarmsFlag),
		CorrectRejections: cmd.Int(correctRejectionsFlag),
	}
}
