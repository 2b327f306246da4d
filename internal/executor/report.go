package executor

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/klauern/bkup/internal/fserr"
	"github.com/klauern/bkup/internal/planner"
)

// Status is the outcome of one action.
type Status string

const (
	// StatusDone means the action was applied.
	StatusDone Status = "done"
	// StatusPlanned means the action was only reported (dry run).
	StatusPlanned Status = "planned"
	// StatusFailed means the action failed; see Outcome.Err.
	StatusFailed Status = "failed"
	// StatusSkipped means the action was not attempted because the run was cancelled.
	StatusSkipped Status = "skipped"
)

// Outcome records what happened to one action.
type Outcome struct {
	Action planner.Action
	Status Status
	Err    *fserr.PathError
	// Bytes is the number of bytes written for a copy.
	Bytes int64
	// BackupPath is set when the previous destination file was saved.
	BackupPath string
}

// Report aggregates the outcomes of one execution.
type Report struct {
	DirsCreated int
	FilesCopied int
	BytesCopied int64
	BackedUp    int
	Skipped     int

	// Failures are path errors that make the run fail.
	Failures fserr.List
	// Warnings are reported but do not make the run fail.
	Warnings fserr.List

	Outcomes  []Outcome
	Duration  time.Duration
	Cancelled bool
	DryRun    bool
}

func (r *Report) record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)

	switch o.Status {
	case StatusFailed:
		r.Failures.Add(o.Err)
		return
	case StatusSkipped:
		r.Skipped++
		return
	}

	if o.BackupPath != "" {
		r.BackedUp++
	}
	switch o.Action.Type {
	case planner.CreateDirectory:
		r.DirsCreated++
	case planner.CopyFile:
		r.FilesCopied++
		if o.Status == StatusPlanned {
			r.BytesCopied += o.Action.Size
		} else {
			r.BytesCopied += o.Bytes
		}
	}
}

// AddErrors files path errors under failures or warnings by kind.
func (r *Report) AddErrors(errs []*fserr.PathError) {
	for _, e := range errs {
		if e == nil {
			continue
		}
		if e.Kind.IsWarning() {
			r.Warnings.Add(e)
		} else {
			r.Failures.Add(e)
		}
	}
}

// Success reports whether the run finished without failures and was not
// cancelled.
func (r *Report) Success() bool {
	return len(r.Failures) == 0 && !r.Cancelled
}

// Err combines all failures into one error, or nil.
func (r *Report) Err() error {
	return r.Failures.Err()
}

// Summary returns a one-line summary of the run.
func (r *Report) Summary() string {
	var parts []string

	verb := "created"
	copied := "copied"
	if r.DryRun {
		verb = "to create"
		copied = "to copy"
	}
	parts = append(parts,
		fmt.Sprintf("%d %s %s", r.DirsCreated, plural(r.DirsCreated, "directory", "directories"), verb),
		fmt.Sprintf("%d %s %s (%s)", r.FilesCopied, plural(r.FilesCopied, "file", "files"), copied, humanize.Bytes(uint64(max(r.BytesCopied, 0)))),
	)
	if r.BackedUp > 0 {
		parts = append(parts, fmt.Sprintf("%d backed up", r.BackedUp))
	}
	if len(r.Failures) > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", len(r.Failures)))
	}
	if len(r.Warnings) > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", len(r.Warnings), plural(len(r.Warnings), "warning", "warnings")))
	}
	if r.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("%d skipped", r.Skipped))
	}

	s := strings.Join(parts, ", ")
	if r.Cancelled {
		s += " (cancelled)"
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
