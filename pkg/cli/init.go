package cli

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/mchmarny/metro/pkg/config"
	urfave "github.com/urfave/cli/v3"
)

const (
	dirFlag = "dir"
)

func newInitCmd() *urfave.Command {
	return &urfave.Command{
		Name:      "init",
		Usage:     "Write a default run config, or print the existing one",
		UsageText: "metro init --dir ./runs",
		Action:    cmdInit,
		Flags: []urfave.Flag{
			&urfave.StringFlag{
				Name:  dirFlag,
				Usage: "Directory for the config file (default: $HOME/.metro)",
			},
		},
	}
}

func cmdInit(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(ctx)

	dir := cmd.String(dirFlag)
	if dir == "" {
		dir = getHomeDir()
	}

	r, err := config.ReadOrCreate(dir)
	if err != nil {
		return fmt.Errorf("failed to init config: %w", err)
	}
	slog.Debug("config ready", "path", filepath.Join(dir, config.FileName))

	if err := encode(cfg, r); err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}
	return nil
}
