// Package engine runs a one-way sync: validate, walk both roots, plan, execute.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/klauern/bkup/internal/backup"
	"github.com/klauern/bkup/internal/executor"
	"github.com/klauern/bkup/internal/fserr"
	"github.com/klauern/bkup/internal/fsys"
	"github.com/klauern/bkup/internal/ignore"
	"github.com/klauern/bkup/internal/logging"
	"github.com/klauern/bkup/internal/planner"
	"github.com/klauern/bkup/internal/tree"
	"github.com/klauern/bkup/internal/validation"
	"github.com/klauern/bkup/internal/walker"
)

// DestDirPerm is used when the destination root has to be created.
const DestDirPerm os.FileMode = 0o755

// Options configures a sync run.
type Options struct {
	Source      string
	Destination string

	// IgnoreEnabled turns on per-directory ignore files on both sides.
	IgnoreEnabled bool
	// IgnoreFileName is the ignore file looked up in each directory.
	IgnoreFileName string
	// Accuracy is the timestamp tolerance. Zero compares exactly.
	Accuracy time.Duration
	// MaxOpenDirs bounds concurrent directory listings per walk.
	MaxOpenDirs int

	// DryRun plans and reports without writing anything.
	DryRun bool

	// BackupDir, when set, receives destination files before a newer source
	// file overwrites them.
	BackupDir string
	// BackupKeep is the number of backup runs kept after a sync. Zero keeps
	// every run.
	BackupKeep int
}

// DefaultOptions returns options with ignore files off and exact timestamps.
func DefaultOptions() Options {
	return Options{
		IgnoreFileName: ignore.DefaultFileName,
		MaxOpenDirs:    walker.DefaultMaxOpenDirs,
	}
}

// PlanResult is the outcome of the planning phase.
type PlanResult struct {
	SourceRoot string
	DestRoot   string

	Source *tree.Tree
	Dest   *tree.Tree

	Actions   []planner.Action
	Conflicts []planner.Conflict
	Summary   planner.Summary

	// SourceErrors and DestErrors are path errors from the two walks, tagged
	// with their root.
	SourceErrors fserr.List
	DestErrors   fserr.List

	// Warnings are non-fatal validation messages.
	Warnings []string

	// DestMissing is set when the destination root does not exist yet.
	DestMissing bool
}

// UpToDate reports whether nothing needs to be copied and nothing went wrong.
func (p *PlanResult) UpToDate() bool {
	return len(p.Actions) == 0 && len(p.Conflicts) == 0 &&
		len(p.SourceErrors.Failures()) == 0 && len(p.DestErrors.Failures()) == 0
}

// Errors returns walk errors and conflicts as one list. Conflicts are
// reported as PathUnwritable against the destination.
func (p *PlanResult) Errors() fserr.List {
	var all fserr.List
	all.Extend(p.SourceErrors)
	all.Extend(p.DestErrors)
	for _, c := range p.Conflicts {
		pe := fserr.New(fserr.PathUnwritable, c.Key(), "plan", errors.New(c.Error()))
		pe.Root = p.DestRoot
		all.Add(pe)
	}
	return all
}

// Engine runs syncs with fixed options.
type Engine struct {
	opts     Options
	log      *slog.Logger
	now      func() time.Time
	progress func(total int) executor.Progress
}

// New returns an engine. A nil logger uses logging.Default().
func New(opts Options, logger *slog.Logger) *Engine {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = ignore.DefaultFileName
	}
	return &Engine{
		opts: opts,
		log:  logging.OrDefault(logger),
		now:  time.Now,
	}
}

// Options returns the engine options.
func (e *Engine) Options() Options {
	return e.opts
}

// WithProgress sets a factory for the progress display used by Apply. It is
// called with the number of actions.
func (e *Engine) WithProgress(fn func(total int) executor.Progress) *Engine {
	e.progress = fn
	return e
}

// Validate checks options and roots. Any error is fatal for the run.
func (e *Engine) Validate() (*validation.Result, error) {
	if err := validation.ValidateOptions(e.opts.Accuracy, e.opts.IgnoreFileName, e.opts.MaxOpenDirs); err != nil {
		return nil, err
	}
	result, err := validation.ValidateRoots(e.opts.Source, e.opts.Destination, validation.Options{
		RequireWritePermission: !e.opts.DryRun,
	})
	if err != nil {
		return result, err
	}
	if err := validation.ValidateBackupDir(e.opts.Source, e.opts.BackupDir); err != nil {
		return result, err
	}
	return result, nil
}

// Plan validates the configuration, walks source and destination
// concurrently and computes the actions. It never writes. A missing
// destination root is planned as empty.
func (e *Engine) Plan(ctx context.Context) (*PlanResult, error) {
	start := e.now()

	vr, err := e.Validate()
	if err != nil {
		return nil, err
	}
	for _, w := range vr.Warnings {
		e.log.Warn(w)
	}

	w := walker.New(walker.Options{
		IgnoreEnabled:  e.opts.IgnoreEnabled,
		IgnoreFileName: e.opts.IgnoreFileName,
		MaxOpenDirs:    e.opts.MaxOpenDirs,
	}, e.log)

	res := &PlanResult{
		SourceRoot: e.opts.Source,
		DestRoot:   e.opts.Destination,
		Dest:       tree.Empty(),
		Warnings:   vr.Warnings,
	}
	if _, err := os.Stat(e.opts.Destination); os.IsNotExist(err) {
		res.DestMissing = true
	}

	var g errgroup.Group
	g.Go(func() error {
		t, errs := w.Walk(ctx, fsys.New(e.opts.Source))
		res.Source = t
		res.SourceErrors = fserr.List(errs).WithRoot(e.opts.Source)
		return nil
	})
	if !res.DestMissing {
		g.Go(func() error {
			t, errs := w.Walk(ctx, fsys.New(e.opts.Destination))
			res.Dest = t
			res.DestErrors = fserr.List(errs).WithRoot(e.opts.Destination)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("planning interrupted: %w", err)
	}

	res.Actions, res.Conflicts = planner.PlanWithConflicts(res.Source, res.Dest, e.opts.Accuracy)
	res.Summary = planner.Summarize(res.Actions)

	for _, c := range res.Conflicts {
		e.log.Warn("kind mismatch", logging.Path(c.Key()), slog.String("source", c.Source.String()), slog.String("destination", c.Dest.String()))
	}
	e.log.Info("plan ready",
		logging.Count(len(res.Actions)),
		slog.Int("dirs", res.Summary.Dirs),
		slog.Int("missing", res.Summary.Missing),
		slog.Int("newer", res.Summary.Newer),
		slog.Int("conflicts", len(res.Conflicts)),
		logging.Duration(e.now().Sub(start)))

	return res, nil
}

// Apply executes a plan. Walk errors and conflicts from the plan are added to
// the report, so Report.Success reflects the whole run. The returned error is
// set only when the run could not start.
func (e *Engine) Apply(ctx context.Context, plan *PlanResult) (*executor.Report, error) {
	if !e.opts.DryRun && plan.DestMissing {
		if err := os.MkdirAll(e.opts.Destination, DestDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create destination %s: %w", e.opts.Destination, err)
		}
		e.log.Info("created destination", logging.Root(e.opts.Destination))
	}

	var store *backup.Store
	if e.opts.BackupDir != "" && !e.opts.DryRun && plan.Summary.Newer > 0 {
		store = backup.NewStore(fsys.New(e.opts.BackupDir), backup.NewRunID(e.now()))
	}

	ex := &executor.Executor{
		Source: fsys.New(e.opts.Source),
		Dest:   fsys.New(e.opts.Destination),
		Backup: store,
		Logger: e.log,
		DryRun: e.opts.DryRun,
	}
	if e.progress != nil && len(plan.Actions) > 0 {
		ex.Progress = e.progress(len(plan.Actions))
	}

	report := ex.Execute(ctx, plan.Actions)
	report.AddErrors(plan.Errors())

	if store != nil {
		e.finishBackup(store)
	}
	return report, nil
}

// Run plans and applies in one step.
func (e *Engine) Run(ctx context.Context) (*PlanResult, *executor.Report, error) {
	plan, err := e.Plan(ctx)
	if err != nil {
		return plan, nil, err
	}
	report, err := e.Apply(ctx, plan)
	return plan, report, err
}

// finishBackup writes the run manifest and prunes old runs. Failures here are
// logged; the sync itself already succeeded.
func (e *Engine) finishBackup(store *backup.Store) {
	if err := store.WriteManifest(e.opts.Source, e.opts.Destination); err != nil {
		e.log.Warn("cannot write backup manifest", logging.Err(err))
	}
	if e.opts.BackupKeep <= 0 {
		return
	}

	opts := backup.CleanupOptions{MaxRuns: e.opts.BackupKeep, Keep: store.RunID()}
	removed, err := backup.Cleanup(fsys.New(e.opts.BackupDir), opts, e.now())
	if err != nil {
		e.log.Warn("cannot prune backups", logging.Err(err))
	}
	if len(removed) > 0 {
		e.log.Info("pruned backups", logging.Count(len(removed)))
	}
}
