// Package cli provides the command-line interface for bkup.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/klauern/bkup/internal/config"
	"github.com/klauern/bkup/internal/logging"
	"github.com/klauern/bkup/internal/ui"
)

var (
	// Version is the current version of the application.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "unknown"
	// BuildDate is the date and time of the build.
	BuildDate = "unknown"
)

type configKey struct{}

// Run executes the CLI application with the given context and arguments.
func Run(ctx context.Context, args []string) error {
	app := &cli.Command{
		Name:      "bkup",
		Usage:     "Keep a destination directory up to date with a source directory",
		Version:   Version,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable verbose output (info level logging)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug output (debug level logging, implies verbose)",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable colored output",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level: debug, info, warn, error (overrides --verbose)",
				Sources: cli.EnvVars("BKUP_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML or TOML config file",
				Sources: cli.EnvVars("BKUP_CONFIG"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return ctx, err
			}
			if err := configureColors(cmd, cfg); err != nil {
				return ctx, err
			}
			logger, err := configureLogging(cmd, cfg)
			if err != nil {
				return ctx, err
			}
			ctx = logging.NewContext(ctx, logger)
			return context.WithValue(ctx, configKey{}, cfg), nil
		},
		Commands: []*cli.Command{
			updateCommand(),
			planCommand(),
			backupsCommand(),
			configCommand(),
			versionCommand(),
		},
	}
	return app.Run(ctx, args)
}

// loadConfig reads --config when given, the default config file otherwise.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	if path := cmd.String("config"); path != "" {
		cfg, err := config.LoadFromPath(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// configFrom returns the configuration loaded by the root Before hook.
func configFrom(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

// configureColors sets up color output based on CLI flags and config.
func configureColors(cmd *cli.Command, cfg *config.Config) error {
	return ui.Configure(cfg.Output.Color, cmd.Bool("no-color"))
}

// configureLogging sets up the logging level based on CLI flags and config.
func configureLogging(cmd *cli.Command, cfg *config.Config) (*slog.Logger, error) {
	opts := logging.DefaultOptions()
	opts.Output = errWriter(cmd)

	switch cfg.Output.LogFormat {
	case "", "text":
	case "json":
		opts.JSON = true
	default:
		return nil, fmt.Errorf("invalid log format %q: want text or json", cfg.Output.LogFormat)
	}

	if cmd.Bool("debug") {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	} else if isVerbose(cmd, cfg) {
		opts.Level = slog.LevelInfo
	}
	if cmd.IsSet("log-level") {
		opts.Level = logging.ParseLevel(cmd.String("log-level"))
	}

	logger := logging.New(opts)
	logging.SetDefault(logger)

	logging.Debug("logging configured", slog.String("level", opts.Level.String()))

	return logger, nil
}

func isVerbose(cmd *cli.Command, cfg *config.Config) bool {
	return cmd.Bool("verbose") || cmd.Bool("debug") || cfg.Output.Verbose
}

func outWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func errWriter(cmd *cli.Command) io.Writer {
	if w := cmd.Root().ErrWriter; w != nil {
		return w
	}
	return os.Stderr
}
