// Package walker enumerates a root directory into a tree.Tree.
//
// Every subdirectory is visited in its own goroutine. A visit owns the
// entries and errors it collects and hands them back to its parent when it
// returns, so no result is shared between goroutines. Concurrent directory
// listings are bounded by a weighted semaphore that is released before a
// visit waits on its children.
package walker

import (
	"context"
	"log/slog"
	"os"
	"slices"
	"sort"
	"time"

	"github.com/go-git/go-billy/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/klauern/bkup/internal/fserr"
	"github.com/klauern/bkup/internal/ignore"
	"github.com/klauern/bkup/internal/logging"
	"github.com/klauern/bkup/internal/tree"
)

// DefaultMaxOpenDirs bounds concurrent directory listings per walk.
const DefaultMaxOpenDirs = 64

// Options configures a walk.
type Options struct {
	// IgnoreEnabled turns on per-directory ignore files.
	IgnoreEnabled bool
	// IgnoreFileName is the ignore file looked up in each directory.
	IgnoreFileName string
	// MaxOpenDirs bounds concurrent ReadDir calls. Zero means DefaultMaxOpenDirs.
	MaxOpenDirs int
}

// DefaultOptions returns options with ignore files disabled.
func DefaultOptions() Options {
	return Options{
		IgnoreFileName: ignore.DefaultFileName,
		MaxOpenDirs:    DefaultMaxOpenDirs,
	}
}

// Walker walks billy filesystems.
type Walker struct {
	opts   Options
	logger *slog.Logger
}

// New returns a walker. A nil logger uses logging.Default().
func New(opts Options, logger *slog.Logger) *Walker {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = ignore.DefaultFileName
	}
	if opts.MaxOpenDirs <= 0 {
		opts.MaxOpenDirs = DefaultMaxOpenDirs
	}
	return &Walker{opts: opts, logger: logging.OrDefault(logger)}
}

// Options returns the effective options.
func (w *Walker) Options() Options {
	return w.opts
}

// Walk enumerates fs from its root. The walk is best effort: unreadable
// directories and unusable entries are reported as path errors and the rest
// of the tree is still returned.
//
// Once ctx is done no further subdirectories are listed. Each skipped
// directory is reported as PathUnreadable wrapping the context error.
func (w *Walker) Walk(ctx context.Context, fs billy.Filesystem) (*tree.Tree, []*fserr.PathError) {
	start := time.Now()
	log := w.logger.With(logging.Root(rootOf(fs)))

	run := &walk{
		fs:   fs,
		opts: w.opts,
		sem:  semaphore.NewWeighted(int64(w.opts.MaxOpenDirs)),
		log:  log,
	}
	res := run.visit(ctx, nil, nil)

	var b tree.Builder
	b.Add(res.entries...)
	t := b.Build()

	files, dirs := t.Counts()
	log.Info("walk finished",
		slog.Int("files", files),
		slog.Int("dirs", dirs),
		slog.Int("errors", len(res.errs)),
		logging.Duration(time.Since(start)))

	return t, res.errs
}

// walk holds the state shared by every visit of one Walk call. All fields are
// read-only or safe for concurrent use.
type walk struct {
	fs   billy.Filesystem
	opts Options
	sem  *semaphore.Weighted
	log  *slog.Logger
}

type result struct {
	entries []tree.Entry
	errs    []*fserr.PathError
}

func (r *result) merge(other result) {
	r.entries = append(r.entries, other.entries...)
	r.errs = append(r.errs, other.errs...)
}

// visit lists dir and recurses into its surviving subdirectories. dir's own
// entry is recorded by the parent.
func (wk *walk) visit(ctx context.Context, dir []string, m *ignore.Matcher) result {
	var res result

	if wk.opts.IgnoreEnabled {
		rs, errs := ignore.Load(wk.fs, dir, wk.opts.IgnoreFileName)
		for _, e := range errs {
			wk.log.Warn("ignore file problem", logging.Path(e.Path), logging.Kind(e.Kind.String()), logging.Err(e.Err))
		}
		res.errs = append(res.errs, errs...)
		m = m.Extend(rs)
	}

	infos, err := wk.readDir(ctx, dir)
	if err != nil {
		pe := fserr.New(fserr.PathUnreadable, tree.Key(dir), "readdir", err)
		wk.log.Warn("cannot list directory", logging.Path(pe.Path), logging.Err(err))
		res.errs = append(res.errs, pe)
		return res
	}

	var subdirs [][]string
	for _, info := range infos {
		rel := append(slices.Clip(dir), info.Name())
		key := tree.Key(rel)
		mode := info.Mode()

		var kind tree.Kind
		switch {
		case mode.IsDir():
			kind = tree.Directory
		case mode.IsRegular():
			kind = tree.File
		default:
			wk.log.Debug("skipping special file", logging.Path(key), slog.String("mode", mode.Type().String()))
			continue
		}

		if m.IsExcluded(rel, kind == tree.Directory) {
			wk.log.Debug("excluded by ignore rules", logging.Path(key))
			continue
		}

		mtime := info.ModTime()
		if mtime.IsZero() {
			pe := fserr.New(fserr.MetadataUnavailable, key, "stat", nil)
			wk.log.Warn("modification time unavailable", logging.Path(key))
			res.errs = append(res.errs, pe)
			continue
		}

		entry := tree.Entry{Path: rel, Kind: kind, ModTime: mtime}
		if kind == tree.File {
			entry.Size = info.Size()
		} else {
			subdirs = append(subdirs, rel)
		}
		res.entries = append(res.entries, entry)
	}

	children := make([]result, len(subdirs))
	var g errgroup.Group
	for i, sub := range subdirs {
		if err := ctx.Err(); err != nil {
			children[i].errs = []*fserr.PathError{fserr.New(fserr.PathUnreadable, tree.Key(sub), "walk", err)}
			continue
		}
		g.Go(func() error {
			children[i] = wk.visit(ctx, sub, m)
			return nil
		})
	}
	_ = g.Wait()

	for _, c := range children {
		res.merge(c)
	}
	return res
}

// readDir lists dir while holding one semaphore slot. Results are sorted by
// name so error order is stable.
func (wk *walk) readDir(ctx context.Context, dir []string) ([]os.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := wk.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer wk.sem.Release(1)

	name := ""
	if len(dir) > 0 {
		name = wk.fs.Join(dir...)
	}
	infos, err := wk.fs.ReadDir(name)
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}

// rootOf returns the root directory of fs for logging, when it has one.
func rootOf(fs billy.Filesystem) string {
	if c, ok := fs.(billy.Chroot); ok {
		return c.Root()
	}
	return ""
}
