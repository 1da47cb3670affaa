package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mchmarny/metro/pkg/data"
	urfave "github.com/urfave/cli/v3"
)

const (
	limitFlag = "limit"
	yesFlag   = "yes"
)

func newHistoryCmd() *urfave.Command {
	return &urfave.Command{
		Name:    "history",
		Aliases: []string{"h"},
		Usage:   "Inspect or clear the recorded run summaries",
		Commands: []*urfave.Command{
			{
				Name:      "list",
				Aliases:   []string{"ls"},
				Usage:     "List recorded runs, most recent first",
				UsageText: "metro history list --name std-normal --limit 10",
				Action:    cmdHistoryList,
				Flags: []urfave.Flag{
					&urfave.StringFlag{
						Name:  nameFlag,
						Usage: "Only runs with this name",
					},
					&urfave.IntFlag{
						Name:  limitFlag,
						Usage: "Maximum number of runs to list",
						Value: data.ListLimitDefault,
					},
				},
			},
			{
				Name:      "show",
				Usage:     "Show one recorded run",
				UsageText: "metro history show <id>",
				Action:    cmdHistoryShow,
			},
			{
				Name:   "state",
				Usage:  "Show run and target counts",
				Action: cmdHistoryState,
			},
			{
				Name:   "reset",
				Usage:  "Delete all recorded runs",
				Action: cmdHistoryReset,
				Flags: []urfave.Flag{
					&urfave.BoolFlag{
						Name:  yesFlag,
						Usage: "Skip the confirmation prompt",
					},
				},
			},
		},
	}
}

func cmdHistoryList(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(ctx)

	var name *string
	if v := cmd.String(nameFlag); v != "" {
		name = &v
	}

	list, err := data.ListRuns(cfg.DB, name, cmd.Int(limitFlag))
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if err := encode(cfg, list); err != nil {
		return fmt.Errorf("error encoding runs: %w", err)
	}
	return nil
}

func cmdHistoryShow(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(ctx)

	id := strings.TrimSpace(cmd.Args().First())
	if id == "" {
		return errors.New("run id required")
	}

	r, err := data.GetRun(cfg.DB, id)
	if err != nil {
		return fmt.Errorf("failed to get run %s: %w", id, err)
	}
	if r == nil {
		return fmt.Errorf("run not found: %s", id)
	}

	if err := encode(cfg, r); err != nil {
		return fmt.Errorf("error encoding run: %w", err)
	}
	return nil
}

func cmdHistoryState(ctx context.Context, _ *urfave.Command) error {
	cfg := getConfig(ctx)

	state, err := data.GetDataState(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to get history state: %w", err)
	}

	if err := encode(cfg, state); err != nil {
		return fmt.Errorf("error encoding state: %w", err)
	}
	return nil
}

func cmdHistoryReset(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(ctx)

	if !cmd.Bool(yesFlag) {
		in := cmd.Root().Reader
		if in == nil {
			in = os.Stdin
		}
		ok, err := confirm(in, cfg.Out, cfg.DBPath)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cfg.Out, "Aborted.")
			return nil
		}
	}

	n, err := data.DeleteRuns(cfg.DB)
	if err != nil {
		return fmt.Errorf("resetting history: %w", err)
	}

	slog.Info("history reset", "deleted", n)
	return nil
}

func confirm(in io.Reader, out io.Writer, path string) (bool, error) {
	fmt.Fprintf(out, "This will permanently delete all runs in %s\n", path)
	fmt.Fprint(out, "Are you sure? [y/N]: ")

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("reading input: %w", err)
	}

	return strings.ToLower(strings.TrimSpace(answer)) == "y", nil
}
