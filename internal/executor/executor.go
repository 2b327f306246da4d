// Package executor applies planned actions to the destination filesystem.
//
// Actions run one at a time in plan order. A failed action is recorded and
// the next one is attempted. Copies are written to a temporary file next to
// the target and renamed over it, so a failed or interrupted copy never leaves
// a partial destination file.
package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/klauern/bkup/internal/backup"
	"github.com/klauern/bkup/internal/fserr"
	"github.com/klauern/bkup/internal/logging"
	"github.com/klauern/bkup/internal/planner"
)

const (
	// DefaultDirPerm is used when the source directory mode is unavailable.
	DefaultDirPerm os.FileMode = 0o755
	// DefaultFilePerm is used when the source file mode is unavailable.
	DefaultFilePerm os.FileMode = 0o644

	tempPrefix = ".bkup-"
)

// ErrTimesUnsupported is returned when the destination cannot set file times.
var ErrTimesUnsupported = errors.New("filesystem does not support setting modification times")

// Progress receives one step per processed action. *progress.Bar implements it.
type Progress interface {
	Describe(desc string)
	Add(n int) error
	Finish() error
}

// Executor applies actions from Source to Dest.
type Executor struct {
	Source billy.Filesystem
	Dest   billy.Filesystem
	// Backup, when set, receives the previous destination file before a
	// newer source file replaces it.
	Backup *backup.Store
	Logger *slog.Logger
	// Progress is optional.
	Progress Progress
	// DryRun reports every action as planned without touching the destination.
	DryRun bool

	// deferred holds directories whose source mode would block copying
	// into them; their mode is applied once all actions ran.
	deferred []dirMode
}

type dirMode struct {
	key  string
	perm os.FileMode
}

// Execute applies actions in order and returns the report.
//
// Once ctx is done no further action is started; the remaining actions are
// reported as skipped. The action in flight always completes.
func (e *Executor) Execute(ctx context.Context, actions []planner.Action) *Report {
	start := time.Now()
	log := logging.OrDefault(e.Logger)
	prog := e.Progress
	if prog == nil {
		prog = nopProgress{}
	}

	r := &Report{DryRun: e.DryRun}
	e.deferred = nil
	for i, a := range actions {
		if ctx.Err() != nil {
			r.Cancelled = true
			for _, rest := range actions[i:] {
				r.record(Outcome{Action: rest, Status: StatusSkipped})
			}
			log.Warn("sync cancelled", logging.Count(len(actions)-i), logging.Err(ctx.Err()))
			break
		}

		prog.Describe(a.Key())
		o := e.apply(a)
		r.record(o)
		_ = prog.Add(1)

		if o.Err != nil {
			log.Warn("action failed",
				logging.Path(a.Key()),
				logging.Operation(o.Err.Op),
				logging.Kind(o.Err.Kind.String()),
				logging.Err(o.Err.Err))
		}
	}
	_ = prog.Finish()
	e.applyDeferredModes(r)

	r.Duration = time.Since(start)
	log.Info("sync finished",
		slog.Int("dirs", r.DirsCreated),
		slog.Int("files", r.FilesCopied),
		slog.Int64("bytes", r.BytesCopied),
		slog.Int("failures", len(r.Failures)),
		logging.Duration(r.Duration))
	return r
}

func (e *Executor) apply(a planner.Action) Outcome {
	log := logging.OrDefault(e.Logger)
	key := a.Key()

	if e.DryRun {
		log.Info("would apply", logging.Operation(string(a.Type)), logging.Path(key), logging.Reason(string(a.Reason)))
		return Outcome{Action: a, Status: StatusPlanned}
	}

	switch a.Type {
	case planner.CreateDirectory:
		if err := e.mkdir(key); err != nil {
			return failed(a, err)
		}
		log.Info("created directory", logging.Path(key))
		return Outcome{Action: a, Status: StatusDone}

	case planner.CopyFile:
		o := Outcome{Action: a, Status: StatusDone}
		if a.Reason == planner.ReasonNewer && e.Backup != nil {
			meta, err := e.Backup.Save(e.Dest, key)
			if err != nil {
				return failed(a, fserr.New(fserr.PathUnwritable, key, "backup", err))
			}
			o.BackupPath = meta.BackupPath
			log.Info("saved previous copy", logging.Path(key), slog.String("backup", meta.BackupPath))
		}

		n, err := e.copyFile(key, a.ModTime)
		if err != nil {
			return failed(a, err)
		}
		o.Bytes = n
		log.Info("copied file", logging.Path(key), logging.Reason(string(a.Reason)), slog.Int64("bytes", n))
		return o

	default:
		return failed(a, fserr.New(fserr.PathUnwritable, key, string(a.Type), errors.New("unknown action")))
	}
}

func failed(a planner.Action, err *fserr.PathError) Outcome {
	return Outcome{Action: a, Status: StatusFailed, Err: err}
}

// mkdir creates key in the destination with the source directory's
// permission bits. Existing directories are not an error.
func (e *Executor) mkdir(key string) *fserr.PathError {
	perm := DefaultDirPerm
	if info, err := e.Source.Stat(key); err == nil && info.Mode().Perm() != 0 {
		perm = info.Mode().Perm()
	}
	if err := e.Dest.MkdirAll(key, perm); err != nil {
		return fserr.New(fserr.PathUnwritable, key, "mkdir", err)
	}

	// MkdirAll on an osfs chroot ignores perm. Modes without owner write or
	// search stay open until the files below are copied.
	ch, ok := e.Dest.(billy.Change)
	if !ok {
		return nil
	}
	mode := perm
	if perm&0o300 != 0o300 {
		mode = perm | 0o700
		e.deferred = append(e.deferred, dirMode{key: key, perm: perm})
	}
	if err := ch.Chmod(key, mode); err != nil {
		return fserr.New(fserr.PathUnwritable, key, "chmod", err)
	}
	return nil
}

// applyDeferredModes sets the final mode of directories created with
// temporary owner access, deepest first.
func (e *Executor) applyDeferredModes(r *Report) {
	ch, ok := e.Dest.(billy.Change)
	if !ok {
		return
	}
	for i := len(e.deferred) - 1; i >= 0; i-- {
		d := e.deferred[i]
		if err := ch.Chmod(d.key, d.perm); err != nil {
			r.Failures.Add(fserr.New(fserr.PathUnwritable, d.key, "chmod", err))
		}
	}
	e.deferred = nil
}

// copyFile copies key from source to destination through a temporary file
// in the target's directory. The copy gets the mode and modification time of
// the opened source file; walked is used when the source cannot report them.
func (e *Executor) copyFile(key string, walked time.Time) (int64, *fserr.PathError) {
	in, err := e.Source.Open(key)
	if err != nil {
		return 0, fserr.New(fserr.PathUnreadable, key, "open", err)
	}
	defer func() { _ = in.Close() }()

	perm, mtime := DefaultFilePerm, walked
	if info, err := e.sourceInfo(in, key); err == nil {
		perm, mtime = info.Mode().Perm(), info.ModTime()
	}

	// An empty dir would make go-billy fall back to a ".tmp" directory.
	tmp, err := util.TempFile(e.Dest, path.Dir(key), tempPrefix)
	if err != nil {
		return 0, fserr.New(fserr.PathUnwritable, key, "create", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = e.Dest.Remove(tmpName)
		}
	}()

	src := &readTracker{r: in}
	n, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if src.err != nil {
			return 0, fserr.New(fserr.PathUnreadable, key, "read", src.err)
		}
		return 0, fserr.New(fserr.PathUnwritable, key, "write", err)
	}

	if ch, ok := e.Dest.(billy.Change); ok {
		if err := ch.Chmod(tmpName, perm); err != nil {
			logging.OrDefault(e.Logger).Debug("cannot set file mode", logging.Path(key), logging.Err(err))
		}
	}

	if err := e.Dest.Rename(tmpName, key); err != nil {
		return 0, fserr.New(fserr.PathUnwritable, key, "rename", err)
	}
	committed = true

	if err := setModTime(e.Dest, key, mtime); err != nil {
		return n, fserr.New(fserr.PathUnwritable, key, "chtimes", err)
	}
	return n, nil
}

// sourceInfo stats the open handle when the filesystem exposes it, and the
// path otherwise.
func (e *Executor) sourceInfo(f billy.File, key string) (os.FileInfo, error) {
	if s, ok := f.(interface{ Stat() (os.FileInfo, error) }); ok {
		return s.Stat()
	}
	return e.Source.Stat(key)
}

func setModTime(fs billy.Filesystem, name string, mtime time.Time) error {
	ch, ok := fs.(billy.Change)
	if !ok {
		return ErrTimesUnsupported
	}
	return ch.Chtimes(name, mtime, mtime)
}

// readTracker remembers the first read error so copy failures can be
// attributed to the source or the destination.
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}

type nopProgress struct{}

func (nopProgress) Describe(string) {}
func (nopProgress) Add(int) error   { return nil }
func (nopProgress) Finish() error   { return nil }
