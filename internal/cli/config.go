package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/klauern/bkup/internal/config"
	"github.com/klauern/bkup/internal/util"
)

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Display the effective configuration",
		Description: `Print the configuration after merging the config file and BKUP_*
   environment variables over the defaults.

   The config file is read from $BKUP_HOME (default ~/.config/bkup), as
   config.yaml or config.toml, or from the --config path.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			data, err := configFrom(ctx).YAML()
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			_, err = outWriter(cmd).Write(data)
			return err
		},
		Commands: []*cli.Command{
			{
				Name:  "path",
				Usage: "Print the config file location",
				Action: func(_ context.Context, cmd *cli.Command) error {
					fmt.Fprintln(outWriter(cmd), configPath(cmd))
					return nil
				},
			},
			{
				Name:  "init",
				Usage: "Write a config file with the default settings",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Value: "yaml",
						Usage: "File format: yaml, toml",
					},
					&cli.StringFlag{
						Name:  "path",
						Usage: "Write here instead of the default location",
					},
					&cli.BoolFlag{
						Name:    "force",
						Aliases: []string{"f"},
						Usage:   "Overwrite an existing config file",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					return runConfigInit(cmd)
				},
			},
		},
	}
}

// configPath is the --config path if given, the default location otherwise.
func configPath(cmd *cli.Command) string {
	if p := cmd.String("config"); p != "" {
		return absPath(p)
	}
	return config.FilePath()
}

func runConfigInit(cmd *cli.Command) error {
	var path string
	switch format := cmd.String("format"); format {
	case "yaml", "toml":
		path = filepath.Join(util.BkupConfigPath(), "config."+format)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
	if cmd.IsSet("path") {
		path = absPath(cmd.String("path"))
	}

	if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}

	if err := config.Default().SaveToPath(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(outWriter(cmd), "Wrote %s\n", path)
	return nil
}
