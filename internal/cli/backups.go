package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/klauern/bkup/internal/archive"
	"github.com/klauern/bkup/internal/backup"
	"github.com/klauern/bkup/internal/fsys"
	"github.com/klauern/bkup/internal/logging"
	"github.com/klauern/bkup/internal/ui"
	"github.com/klauern/bkup/internal/util"
)

func backupsCommand() *cli.Command {
	dirFlag := &cli.StringFlag{
		Name:  "dir",
		Usage: "Backup directory (default: backup.location from config)",
	}

	return &cli.Command{
		Name:  "backups",
		Usage: "Inspect and prune saved copies of overwritten files",
		Description: `Every update run with a backup directory saves the destination files it is
   about to overwrite into a run directory named after the start time:

     <backup-dir>/20240101-120000/<path>

   Each run directory holds a manifest.yaml listing the saved files and their
   SHA256 hashes.`,
		Commands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List backup runs, newest first",
				Flags:   []cli.Flag{dirFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runBackupsList(ctx, cmd)
				},
			},
			{
				Name:      "show",
				Usage:     "Show the files saved by one run",
				ArgsUsage: "<run-id>",
				Flags: []cli.Flag{
					dirFlag,
					&cli.BoolFlag{
						Name:  "verify",
						Usage: "Check every saved file against its recorded hash",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runBackupsShow(ctx, cmd)
				},
			},
			{
				Name:      "archive",
				Usage:     "Pack one run into a tar.gz file",
				ArgsUsage: "<run-id>",
				Flags: []cli.Flag{
					dirFlag,
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Archive file to write (default: <run-id>.tar.gz)",
					},
					&cli.TimestampFlag{
						Name:  "since",
						Usage: "Only include files modified at or after this time (2006-01-02)",
						Config: cli.TimestampConfig{
							Layouts: []string{time.DateOnly, time.RFC3339},
						},
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runBackupsArchive(ctx, cmd)
				},
			},
			{
				Name:      "extract",
				Usage:     "Unpack a backup archive into a directory",
				ArgsUsage: "<archive>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "to",
						Usage:    "Directory to extract into",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Overwrite files that already exist",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "List the archive contents without writing",
					},
				},
				Action: func(_ context.Context, cmd *cli.Command) error {
					return runBackupsExtract(cmd)
				},
			},
			{
				Name:  "prune",
				Usage: "Remove old backup runs",
				Flags: []cli.Flag{
					dirFlag,
					&cli.IntFlag{
						Name:  "keep",
						Usage: "Number of runs to keep (default: backup.max_backups from config)",
					},
					&cli.DurationFlag{
						Name:  "max-age",
						Usage: "Also remove runs older than this (e.g. 720h)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Show what would be removed without removing it",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runBackupsPrune(ctx, cmd)
				},
			},
		},
	}
}

func backupDir(ctx context.Context, cmd *cli.Command) string {
	if cmd.IsSet("dir") {
		return absPath(cmd.String("dir"))
	}
	return util.ExpandPath(configFrom(ctx).Backup.Location, "")
}

func runBackupsList(ctx context.Context, cmd *cli.Command) error {
	dir := backupDir(ctx, cmd)
	fs := fsys.New(dir)

	runs, err := backup.ListRuns(fs)
	if err != nil {
		return err
	}

	out := outWriter(cmd)
	if len(runs) == 0 {
		fmt.Fprintf(out, "No backups found in %s\n", dir)
		return nil
	}

	store := backup.NewStore(fs, "")
	fmt.Fprintf(out, "%-16s %-16s %6s %10s\n", "RUN", "CREATED", "FILES", "SIZE")
	fmt.Fprintf(out, "%-16s %-16s %6s %10s\n", "---", "-------", "-----", "----")
	for _, run := range runs {
		files, size := "-", "-"
		if m, err := store.ReadManifest(run.ID); err == nil {
			var total int64
			for _, f := range m.Files {
				total += f.Size
			}
			files = humanize.Comma(int64(len(m.Files)))
			size = humanize.Bytes(uint64(max(total, 0)))
		}
		fmt.Fprintf(out, "%-16s %-16s %6s %10s\n", run.ID, humanize.Time(run.CreatedAt), files, size)
	}
	fmt.Fprintf(out, "\nTotal: %d run(s)\n", len(runs))
	return nil
}

func runBackupsShow(ctx context.Context, cmd *cli.Command) error {
	runID, err := parseRunID(cmd, "show")
	if err != nil {
		return err
	}

	store := backup.NewStore(fsys.New(backupDir(ctx, cmd)), runID)
	m, err := store.ReadManifest(runID)
	if err != nil {
		return err
	}

	out := outWriter(cmd)
	fmt.Fprintf(out, "%s %s\n", ui.Header("Run:"), m.RunID)
	if m.Source != "" {
		fmt.Fprintf(out, "  source:      %s\n", m.Source)
	}
	if m.Destination != "" {
		fmt.Fprintf(out, "  destination: %s\n", m.Destination)
	}

	verify := cmd.Bool("verify")
	corrupt := 0
	for _, f := range m.Files {
		line := fmt.Sprintf("%s %s", f.Path, ui.Dim(fmt.Sprintf("(%s, modified %s)", humanize.Bytes(uint64(max(f.Size, 0))), f.ModifiedAt.Format(time.DateTime))))
		if !verify {
			fmt.Fprintln(out, "  "+line)
			continue
		}
		if err := store.Verify(f); err != nil {
			corrupt++
			fmt.Fprintln(out, "  "+ui.StatusError(line+": "+err.Error()))
		} else {
			fmt.Fprintln(out, "  "+ui.StatusSuccess(line))
		}
	}

	if corrupt > 0 {
		return fmt.Errorf("%d of %d backup file(s) failed verification", corrupt, len(m.Files))
	}
	return nil
}

// parseRunID checks the single <run-id> argument.
func parseRunID(cmd *cli.Command, verb string) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("%s requires exactly 1 argument: <run-id>", verb)
	}
	runID := cmd.Args().First()
	if _, err := time.Parse(backup.RunIDFormat, runID); err != nil {
		return "", fmt.Errorf("invalid run id %q: want %s", runID, backup.RunIDFormat)
	}
	return runID, nil
}

func runBackupsArchive(ctx context.Context, cmd *cli.Command) (err error) {
	runID, err := parseRunID(cmd, "archive")
	if err != nil {
		return err
	}

	fs := fsys.New(backupDir(ctx, cmd))
	m, err := backup.NewStore(fs, runID).ReadManifest(runID)
	if err != nil {
		return err
	}

	output := runID + ".tar.gz"
	if cmd.IsSet("output") {
		output = cmd.String("output")
	}
	output = absPath(output)

	// #nosec G304 - output path is provided by the user
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close archive: %w", closeErr)
		}
		if err != nil {
			_ = os.Remove(output)
		}
	}()

	written, err := archive.Create(fs, m, f, archive.CreateOptions{Since: cmd.Timestamp("since")})
	if err != nil {
		return err
	}

	logging.WithContext(ctx).Info("archived backup run", logging.Path(output), logging.Count(len(written.Files)))
	fmt.Fprintln(outWriter(cmd), ui.StatusSuccess(fmt.Sprintf("Archived %d file(s) from %s to %s", len(written.Files), runID, output)))
	return nil
}

func runBackupsExtract(cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return errors.New("extract requires exactly 1 argument: <archive>")
	}

	// #nosec G304 - archive path is provided by the user
	f, err := os.Open(absPath(cmd.Args().First()))
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	opts := archive.ExtractOptions{
		DryRun:    cmd.Bool("dry-run"),
		Overwrite: cmd.Bool("force"),
	}
	res, err := archive.Extract(f, fsys.New(absPath(cmd.String("to"))), opts)
	if err != nil {
		return err
	}

	out := outWriter(cmd)
	for _, name := range res.Written {
		fmt.Fprintf(out, "  %s %s\n", ui.Success("+"), name)
	}
	for _, name := range res.Skipped {
		fmt.Fprintln(out, "  "+ui.StatusSkipped(name+" (exists, use --force to overwrite)"))
	}

	verb := "Extracted"
	if opts.DryRun {
		verb = "Would extract"
	}
	fmt.Fprintf(out, "%s %d file(s) from run %s\n", verb, len(res.Written), res.Manifest.RunID)
	return nil
}

func runBackupsPrune(ctx context.Context, cmd *cli.Command) error {
	cfg := configFrom(ctx)
	opts := backup.CleanupOptions{
		MaxRuns: cfg.Backup.MaxBackups,
		MaxAge:  cmd.Duration("max-age"),
		DryRun:  cmd.Bool("dry-run"),
	}
	if cmd.IsSet("keep") {
		opts.MaxRuns = int(cmd.Int("keep"))
	}
	if opts.MaxRuns < 0 {
		return fmt.Errorf("invalid --keep %d: must not be negative", opts.MaxRuns)
	}

	removed, err := backup.Cleanup(fsys.New(backupDir(ctx, cmd)), opts, time.Now())
	out := outWriter(cmd)
	verb := "Removed"
	if opts.DryRun {
		verb = "Would remove"
	}
	for _, id := range removed {
		fmt.Fprintf(out, "  %s %s\n", ui.Dim("-"), id)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %d backup run(s)\n", verb, len(removed))
	return nil
}
