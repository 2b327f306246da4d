// Package planner compares a source tree with a destination tree and
// produces the ordered list of actions that brings the destination up to date.
//
// Planning is one way and additive: entries that exist only in the destination
// are never referenced, and nothing is ever deleted.
package planner

import (
	"fmt"
	"slices"
	"time"

	"github.com/klauern/bkup/internal/tree"
)

// Type is the kind of a planned action.
type Type string

const (
	// CreateDirectory creates a missing destination directory.
	CreateDirectory Type = "create_directory"
	// CopyFile copies a source file over the destination path.
	CopyFile Type = "copy_file"
)

// Reason explains why a file copy was planned.
type Reason string

const (
	// ReasonNone is used for directory actions.
	ReasonNone Reason = ""
	// ReasonMissing means the file does not exist in the destination.
	ReasonMissing Reason = "missing"
	// ReasonNewer means the source copy is newer beyond the tolerance.
	ReasonNewer Reason = "newer"
)

// Action is one planned operation.
type Action struct {
	Type   Type
	Path   []string
	Reason Reason
	// ModTime is the source modification time.
	ModTime time.Time
	// Size is the source file size. Zero for directories.
	Size int64
}

// Key returns the slash-joined relative path.
func (a Action) Key() string {
	return tree.Key(a.Path)
}

// String renders the action for logs and plan listings.
func (a Action) String() string {
	switch a.Type {
	case CreateDirectory:
		return "mkdir " + a.Key()
	case CopyFile:
		return fmt.Sprintf("copy %s (%s)", a.Key(), a.Reason)
	default:
		return fmt.Sprintf("%s %s", a.Type, a.Key())
	}
}

// Conflict is a path whose kind differs between source and destination.
// No action is planned for it, or for anything below it.
type Conflict struct {
	Path   []string
	Source tree.Kind
	Dest   tree.Kind
}

// Key returns the slash-joined relative path.
func (c Conflict) Key() string {
	return tree.Key(c.Path)
}

// Error describes the conflict.
func (c Conflict) Error() string {
	return fmt.Sprintf("%s is a %s in source but a %s in destination", c.Key(), c.Source, c.Dest)
}

// Plan returns the actions needed to bring dest up to date with source.
// It is a pure function: equal inputs always give equal, identically ordered
// output.
func Plan(source, dest *tree.Tree, tolerance time.Duration) []Action {
	actions, _ := PlanWithConflicts(source, dest, tolerance)
	return actions
}

// PlanWithConflicts is Plan that also returns kind mismatches.
//
// Actions follow source tree order, so a directory is always created before
// anything inside it is copied. A negative tolerance is treated as zero.
func PlanWithConflicts(source, dest *tree.Tree, tolerance time.Duration) ([]Action, []Conflict) {
	tolerance = max(tolerance, 0)

	var (
		actions   []Action
		conflicts []Conflict
		blocked   []string
	)

	source.Each(func(src tree.Entry) bool {
		if blocked != nil && hasPrefix(src.Path, blocked) {
			return true
		}
		blocked = nil

		dst, exists := dest.Lookup(src.Path)
		switch {
		case !exists:
			actions = append(actions, newAction(src, ReasonMissing))

		case src.Kind != dst.Kind:
			conflicts = append(conflicts, Conflict{Path: src.Path, Source: src.Kind, Dest: dst.Kind})
			if src.IsDir() {
				blocked = src.Path
			}

		case src.Kind == tree.File && NewerThan(src.ModTime, dst.ModTime, tolerance):
			actions = append(actions, newAction(src, ReasonNewer))
		}
		return true
	})

	return actions, conflicts
}

func newAction(e tree.Entry, reason Reason) Action {
	if e.IsDir() {
		return Action{Type: CreateDirectory, Path: e.Path, ModTime: e.ModTime}
	}
	return Action{Type: CopyFile, Path: e.Path, Reason: reason, ModTime: e.ModTime, Size: e.Size}
}

// hasPrefix reports whether p lies strictly below dir.
func hasPrefix(p, dir []string) bool {
	return len(p) > len(dir) && slices.Equal(p[:len(dir)], dir)
}

// NewerThan reports whether src is newer than dst by more than tolerance.
func NewerThan(src, dst time.Time, tolerance time.Duration) bool {
	return src.Sub(dst) > tolerance
}

// Equal reports whether two timestamps are within tolerance of each other.
func Equal(a, b time.Time, tolerance time.Duration) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// Summary counts the actions in a plan.
type Summary struct {
	Dirs    int
	Missing int
	Newer   int
	// Bytes is the total size of all planned copies.
	Bytes int64
}

// Files returns the number of planned copies.
func (s Summary) Files() int {
	return s.Missing + s.Newer
}

// Total returns the number of planned actions.
func (s Summary) Total() int {
	return s.Dirs + s.Files()
}

// Summarize counts actions by type and reason.
func Summarize(actions []Action) Summary {
	var s Summary
	for _, a := range actions {
		switch {
		case a.Type == CreateDirectory:
			s.Dirs++
		case a.Reason == ReasonNewer:
			s.Newer++
			s.Bytes += a.Size
		default:
			s.Missing++
			s.Bytes += a.Size
		}
	}
	return s
}
