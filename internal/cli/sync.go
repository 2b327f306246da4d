package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/klauern/bkup/internal/config"
	"github.com/klauern/bkup/internal/engine"
	"github.com/klauern/bkup/internal/executor"
	"github.com/klauern/bkup/internal/logging"
	"github.com/klauern/bkup/internal/progress"
	"github.com/klauern/bkup/internal/ui"
	"github.com/klauern/bkup/internal/ui/tui"
	"github.com/klauern/bkup/internal/util"
)

// ErrFailures is returned when a run completed but reported failures.
var ErrFailures = errors.New("run reported failures")

// reviewPlan shows the interactive plan review. Tests replace it.
var reviewPlan = tui.RunPlanReview

func rootFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "source",
			Aliases:  []string{"s"},
			Usage:    "Source directory (never modified)",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "dest",
			Aliases:  []string{"d"},
			Usage:    "Destination directory to bring up to date",
			Required: true,
		},
		&cli.BoolFlag{
			Name:    "ignore",
			Aliases: []string{"i"},
			Usage:   "Honor per-directory ignore files",
		},
		&cli.StringFlag{
			Name:  "ignore-file",
			Usage: "Ignore file name looked up in every directory (default .bkignore)",
		},
		&cli.StringFlag{
			Name:    "accuracy",
			Aliases: []string{"a"},
			Usage:   "Timestamp tolerance as a duration (2s) or milliseconds (2000)",
		},
	}
}

func updateCommand() *cli.Command {
	flags := append(rootFlags(),
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "Report what would be done without writing anything",
		},
		&cli.StringFlag{
			Name:  "backup-dir",
			Usage: "Save destination files here before they are overwritten",
		},
		&cli.BoolFlag{
			Name:  "interactive",
			Usage: "Review the plan in a full-screen view before applying it",
		},
		&cli.BoolFlag{
			Name:  "no-progress",
			Usage: "Do not show a progress bar",
		},
	)

	return &cli.Command{
		Name:    "update",
		Aliases: []string{"sync"},
		Usage:   "Copy missing and newer files from source to destination",
		UsageText: `bkup update --source <dir> --dest <dir> [options]
   bkup update -s ~/photos -d /mnt/usb/photos
   bkup update -s ~/photos -d /mnt/usb/photos --ignore --accuracy 2s
   bkup update -s src -d dst --dry-run`,
		Description: `Bring the destination up to date with the source.

   Files missing from the destination are copied, and files whose source copy
   is newer (beyond --accuracy) are overwritten. Nothing is ever deleted, and
   the source is never modified.

   With --ignore, each directory's ignore file (.bkignore by default) lists
   glob patterns to skip in that directory and below.`,
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runUpdate(ctx, cmd)
		},
	}
}

func planCommand() *cli.Command {
	return &cli.Command{
		Name:  "plan",
		Usage: "Show the actions an update would take, without writing anything",
		UsageText: `bkup plan --source <dir> --dest <dir> [options]
   bkup plan -s ~/photos -d /mnt/usb/photos
   bkup plan -s src -d dst --format yaml`,
		Flags: append(rootFlags(),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   "text",
				Usage:   "Output format: text, yaml",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runPlan(ctx, cmd)
		},
	}
}

// engineOptions merges command flags over the loaded configuration.
func engineOptions(ctx context.Context, cmd *cli.Command) (engine.Options, error) {
	cfg := configFrom(ctx)

	opts := engine.DefaultOptions()
	opts.Source = absPath(cmd.String("source"))
	opts.Destination = absPath(cmd.String("dest"))
	opts.IgnoreEnabled = cfg.Sync.Ignore
	opts.IgnoreFileName = cfg.Sync.IgnoreFile
	opts.Accuracy = cfg.Sync.Accuracy
	opts.MaxOpenDirs = cfg.Sync.MaxOpenDirs
	opts.BackupDir = cfg.BackupDir()
	opts.BackupKeep = cfg.Backup.MaxBackups

	if cmd.IsSet("ignore") {
		opts.IgnoreEnabled = cmd.Bool("ignore")
	}
	if cmd.IsSet("ignore-file") {
		opts.IgnoreFileName = cmd.String("ignore-file")
	}
	if cmd.IsSet("accuracy") {
		d, err := config.ParseAccuracy(cmd.String("accuracy"))
		if err != nil {
			return opts, err
		}
		opts.Accuracy = d
	}
	if cmd.IsSet("dry-run") {
		opts.DryRun = cmd.Bool("dry-run")
	}
	if cmd.IsSet("backup-dir") {
		opts.BackupDir = absPath(cmd.String("backup-dir"))
	}

	return opts, nil
}

func absPath(p string) string {
	p = util.ExpandPath(p, "")
	if p == "" {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func runUpdate(ctx context.Context, cmd *cli.Command) error {
	cfg := configFrom(ctx)
	opts, err := engineOptions(ctx, cmd)
	if err != nil {
		return err
	}

	log := logging.WithContext(ctx)
	out := outWriter(cmd)
	verbose := isVerbose(cmd, cfg)

	showProgress := cfg.Output.Progress && !cmd.Bool("no-progress")
	eng := engine.New(opts, log).WithProgress(func(total int) executor.Progress {
		return progress.ForSync(total, errWriter(cmd), !showProgress, log)
	})

	plan, err := eng.Plan(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("interactive") {
		if len(plan.Actions) == 0 {
			ui.RenderPlan(out, plan, verbose)
		} else {
			result, err := reviewPlan(plan)
			if err != nil {
				return fmt.Errorf("plan review failed: %w", err)
			}
			if !result.Apply() {
				fmt.Fprintln(out, ui.StatusSkipped("aborted, nothing was changed"))
				return nil
			}
		}
	} else if opts.DryRun || verbose {
		ui.RenderPlan(out, plan, verbose)
	}

	report, err := eng.Apply(ctx, plan)
	if err != nil {
		return err
	}
	ui.RenderReport(out, report, verbose)

	if report.Cancelled {
		return fmt.Errorf("update cancelled: %w", context.Cause(ctx))
	}
	if !report.Success() {
		return fmt.Errorf("%w: %d failed", ErrFailures, len(report.Failures))
	}
	return nil
}

// planDocument is the YAML form of a plan.
type planDocument struct {
	Source      string       `yaml:"source"`
	Destination string       `yaml:"destination"`
	Actions     []planAction `yaml:"actions"`
	Conflicts   []string     `yaml:"conflicts,omitempty"`
	Errors      []string     `yaml:"errors,omitempty"`
	Warnings    []string     `yaml:"warnings,omitempty"`
}

type planAction struct {
	Type   string `yaml:"type"`
	Path   string `yaml:"path"`
	Reason string `yaml:"reason,omitempty"`
	Size   int64  `yaml:"size,omitempty"`
}

func newPlanDocument(p *engine.PlanResult) planDocument {
	doc := planDocument{
		Source:      p.SourceRoot,
		Destination: p.DestRoot,
		Actions:     make([]planAction, 0, len(p.Actions)),
	}
	for _, a := range p.Actions {
		doc.Actions = append(doc.Actions, planAction{
			Type:   string(a.Type),
			Path:   a.Key(),
			Reason: string(a.Reason),
			Size:   a.Size,
		})
	}
	for _, c := range p.Conflicts {
		doc.Conflicts = append(doc.Conflicts, c.Error())
	}
	walkErrs := append(p.SourceErrors.Sorted(), p.DestErrors.Sorted()...)
	for _, e := range walkErrs {
		if e.Kind.IsWarning() {
			doc.Warnings = append(doc.Warnings, e.Error())
		} else {
			doc.Errors = append(doc.Errors, e.Error())
		}
	}
	return doc
}

func runPlan(ctx context.Context, cmd *cli.Command) error {
	cfg := configFrom(ctx)
	opts, err := engineOptions(ctx, cmd)
	if err != nil {
		return err
	}
	opts.DryRun = true

	format := cmd.String("format")
	if format != "text" && format != "yaml" {
		return fmt.Errorf("unsupported format: %s", format)
	}

	plan, err := engine.New(opts, logging.WithContext(ctx)).Plan(ctx)
	if err != nil {
		return err
	}

	out := outWriter(cmd)
	switch format {
	case "yaml":
		data, err := yaml.Marshal(newPlanDocument(plan))
		if err != nil {
			return fmt.Errorf("failed to marshal plan: %w", err)
		}
		if _, err := out.Write(data); err != nil {
			return err
		}
	default:
		ui.RenderPlan(out, plan, isVerbose(cmd, cfg))
	}

	if failures := plan.Errors().Failures(); len(failures) > 0 {
		return fmt.Errorf("%w: %d failed", ErrFailures, len(failures))
	}
	return nil
}
