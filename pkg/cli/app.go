package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mchmarny/metro/pkg/data"
	"github.com/mchmarny/metro/pkg/logging"
	urfave "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName = "metro"

	debugFlag  = "debug"
	dbFlag     = "db"
	formatFlag = "format"

	dirMode = 0700

	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""
)

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	app := newApp()
	if err := app.Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

type appConfig struct {
	DBPath string
	Debug  bool
	Format string
	Out    io.Writer
	DB     *sql.DB
}

type appConfigKey struct{}

func getConfig(ctx context.Context) *appConfig {
	cfg, ok := ctx.Value(appConfigKey{}).(*appConfig)
	if !ok {
		return &appConfig{Format: formatJSON, Out: os.Stdout}
	}
	return cfg
}

func newApp() *urfave.Command {
	return &urfave.Command{
		Name:                  appName,
		Version:               fmt.Sprintf("%s (%s - %s)", version, commit, date),
		EnableShellCompletion: true,
		HideHelpCommand:       true,
		Usage:                 "Adaptive random-walk Metropolis sampler for unnormalized log-densities",
		Flags: []urfave.Flag{
			&urfave.BoolFlag{
				Name:  debugFlag,
				Usage: "Prints verbose logs (optional, default: false)",
			},
			&urfave.StringFlag{
				Name:    dbFlag,
				Usage:   "Path to the SQLite run-history file or a postgres:// DSN (default: $HOME/.metro/data.db)",
				Sources: urfave.EnvVars("METRO_DB"),
			},
			&urfave.StringFlag{
				Name:  formatFlag,
				Usage: "Output format [json, yaml]",
				Value: formatJSON,
			},
		},
		Commands: []*urfave.Command{
			newRunCmd(),
			newSDTCmd(),
			newSimulateCmd(),
			newHistoryCmd(),
			newInitCmd(),
		},
		Before: func(ctx context.Context, cmd *urfave.Command) (context.Context, error) {
			debug := cmd.Bool(debugFlag)
			if debug {
				logging.SetDefaultCLILogger("debug")
			}

			format := formatJSON
			switch f := cmd.String(formatFlag); f {
			case formatJSON, "":
			case formatYAML, "yml":
				format = formatYAML
			default:
				return ctx, fmt.Errorf("unsupported output format: %s", f)
			}

			dbPath := cmd.String(dbFlag)
			if dbPath == "" {
				dbPath = filepath.Join(getHomeDir(), data.DataFileName)
			}

			if err := data.Init(dbPath); err != nil {
				return ctx, fmt.Errorf("initializing database: %w", err)
			}

			db, err := data.GetDB(dbPath)
			if err != nil {
				return ctx, fmt.Errorf("opening database: %w", err)
			}

			out := cmd.Root().Writer
			if out == nil {
				out = os.Stdout
			}

			return context.WithValue(ctx, appConfigKey{}, &appConfig{
				DBPath: dbPath,
				Debug:  debug,
				Format: format,
				Out:    out,
				DB:     db,
			}), nil
		},
		After: func(ctx context.Context, _ *urfave.Command) error {
			if cfg := getConfig(ctx); cfg.DB != nil {
				return cfg.DB.Close()
			}
			return nil
		},
	}
}

func getHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Debug("error getting home dir, using current dir instead", "error", err)
		return "."
	}

	dirPath := filepath.Join(home, "."+appName)
	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dirPath)
		if err := os.Mkdir(dirPath, dirMode); err != nil {
			slog.Debug("error creating dir", "path", dirPath, "home", home, "error", err)
			return home
		}
	}
	return dirPath
}

func encode(cfg *appConfig, v any) error {
	if cfg.Format == formatYAML {
		e := yaml.NewEncoder(cfg.Out)
		defer e.Close()
		return e.Encode(v)
	}
	e := json.NewEncoder(cfg.Out)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
