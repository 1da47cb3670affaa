package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/mchmarny/metro/pkg/sampler"
	"github.com/mchmarny/metro/pkg/sdt"
	urfave "github.com/urfave/cli/v3"
)

const (
	trialsDefault = 100
)

const (
	hitsFlag              = "hits"
	missesFlag            = "misses"
	falseAlarmsFlag       = "false-alarms"
	correctRejectionsFlag = "correct-rejections"
	dPrimeFlag            = "dprime"
	criteriaFlag          = "criteria"
	signalFlag            = "signal"
	noiseFlag             = "noise"
)

func newCountFlags() []urfave.Flag {
	return []urfave.Flag{
		&urfave.IntFlag{
			Name:  hitsFlag,
			Usage: "Signal trials answered yes",
		},
		&urfave.IntFlag{
			Name:  missesFlag,
			Usage: "Signal trials answered no",
		},
		&urfave.IntFlag{
			Name:  falseAlarmsFlag,
			Usage: "Noise trials answered yes",
		},
		&urfave.IntFlag{
			Name:  correctRejectionsFlag,
			Usage: "Noise trials answered no",
		},
	}
}

func newSDTCmd() *urfave.Command {
	return &urfave.Command{
		Name:      "sdt",
		Usage:     "Compute signal detection indices from outcome counts",
		UsageText: "metro sdt --hits 15 --misses 10 --false-alarms 15 --correct-rejections 5",
		Action:    cmdSDT,
		Flags:     newCountFlags(),
	}
}

func newSimulateCmd() *urfave.Command {
	return &urfave.Command{
		Name:      "simulate",
		Aliases:   []string{"sim"},
		Usage:     "Simulate detection experiments from the equal-variance model",
		UsageText: "metro simulate --dprime 1.5 --criteria -0.5,0,0.5 --signal 200 --noise 200 --seed 7",
		Action:    cmdSimulate,
		Flags: []urfave.Flag{
			&urfave.FloatFlag{
				Name:  dPrimeFlag,
				Usage: "Sensitivity of the simulated observer",
				Value: 1,
			},
			&urfave.StringFlag{
				Name:  criteriaFlag,
				Usage: "Comma separated criteria, one experiment per value",
				Value: "0",
			},
			&urfave.IntFlag{
				Name:  signalFlag,
				Usage: "Signal trials per experiment",
				Value: trialsDefault,
			},
			&urfave.IntFlag{
				Name:  noiseFlag,
				Usage: "Noise trials per experiment",
				Value: trialsDefault,
			},
			newSeedFlag(),
		},
	}
}

// Indices is a detection outcome with its derived measures.
type Indices struct {
	Detection      *sdt.Detection `json:"detection" yaml:"detection"`
	HitRate        float64        `json:"hit_rate" yaml:"hit_rate"`
	FalseAlarmRate float64        `json:"false_alarm_rate" yaml:"false_alarm_rate"`
	DPrime         *float64       `json:"dprime,omitempty" yaml:"dprime,omitempty"`
	Criterion      *float64       `json:"criterion,omitempty" yaml:"criterion,omitempty"`
	NLogLikelihood *float64       `json:"nll,omitempty" yaml:"nll,omitempty"`
}

func newIndices(d *sdt.Detection) *Indices {
	ix := &Indices{
		Detection:      d,
		HitRate:        d.HitRate(),
		FalseAlarmRate: d.FalseAlarmRate(),
	}

	// rates of exactly 0 or 1 put the indices at infinity
	nll, err := d.NLogLikelihood(ix.HitRate, ix.FalseAlarmRate)
	if err != nil {
		slog.Debug("indices undefined", "hit_rate", ix.HitRate, "false_alarm_rate", ix.FalseAlarmRate)
		return ix
	}

	dp, c := d.DPrime(), d.Criterion()
	ix.DPrime = &dp
	ix.Criterion = &c
	ix.NLogLikelihood = &nll
	return ix
}

func cmdSDT(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(ctx)

	d, err := sdt.New(
		cmd.Int(hitsFlag),
		cmd.Int(missesFlag),
		cmd.Int(falseAlarmsFlag),
		cmd.Int(correctRejectionsFlag),
	)
	if err != nil {
		return fmt.Errorf("invalid counts: %w", err)
	}

	if err := encode(cfg, newIndices(d)); err != nil {
		return fmt.Errorf("error encoding indices: %w", err)
	}
	return nil
}

func cmdSimulate(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(ctx)

	criteria, err := parseFloats(cmd.String(criteriaFlag))
	if err != nil {
		return fmt.Errorf("invalid criteria: %w", err)
	}
	if len(criteria) == 0 {
		return errors.New("at least one criterion required")
	}

	seed := rand.Uint64()
	if cmd.IsSet(seedFlag) {
		seed = cmd.Uint64(seedFlag)
	}
	slog.Debug("simulating", "seed", seed, "experiments", len(criteria))

	list, err := sdt.Simulate(
		sampler.NewRand(seed),
		cmd.Float(dPrimeFlag),
		criteria,
		cmd.Int(signalFlag),
		cmd.Int(noiseFlag),
	)
	if err != nil {
		return fmt.Errorf("failed to simulate: %w", err)
	}

	out := make([]*Indices, 0, len(list))
	for _, d := range list {
		out = append(out, newIndices(d))
	}

	if err := encode(cfg, out); err != nil {
		return fmt.Errorf("error encoding experiments: %w", err)
	}
	return nil
}
