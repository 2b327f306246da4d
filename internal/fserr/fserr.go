// Package fserr defines path-scoped errors collected during walks and syncs.
//
// Nothing in bkup aborts on a single bad path. Walkers and executors record a
// PathError and move on; callers inspect the collected List at the end.
package fserr

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

// Kind classifies a path-scoped error.
type Kind string

const (
	// PathUnreadable indicates a directory listing or file read failed.
	PathUnreadable Kind = "path_unreadable"

	// PathUnwritable indicates a destination directory or file could not be
	// created or written.
	PathUnwritable Kind = "path_unwritable"

	// IgnoreFileParse indicates a malformed ignore pattern. The line is skipped.
	IgnoreFileParse Kind = "ignore_file_parse"

	// MetadataUnavailable indicates a modification time could not be obtained.
	// The entry is left out of the tree.
	MetadataUnavailable Kind = "metadata_unavailable"
)

// String returns the kind name.
func (k Kind) String() string {
	return string(k)
}

// IsWarning reports whether the kind is informational only.
// Warnings are reported but do not make a run fail.
func (k Kind) IsWarning() bool {
	return k == IgnoreFileParse || k == MetadataUnavailable
}

// PathError is an error scoped to a single relative path.
type PathError struct {
	// Kind classifies the failure.
	Kind Kind
	// Path is the slash-separated path relative to the root being processed.
	// Root-level failures use ".".
	Path string
	// Op is the operation that failed (readdir, stat, copy, mkdir, ...).
	Op string
	// Err is the underlying cause.
	Err error
	// Root optionally names the root Path is relative to. It is set when
	// errors from several roots end up in one list.
	Root string
}

// New returns a PathError.
func New(kind Kind, path, op string, err error) *PathError {
	if path == "" {
		path = "."
	}
	return &PathError{Kind: kind, Path: path, Op: op, Err: err}
}

// Error implements error.
func (e *PathError) Error() string {
	p := e.Path
	if e.Root != "" {
		p = e.Root + ":" + p
	}
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Op, p, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Op, p, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *PathError) Unwrap() error {
	return e.Err
}

// Is reports whether err is, or wraps, a PathError of the given kind.
func Is(err error, kind Kind) bool {
	var pe *PathError
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// List is an ordered collection of path errors.
type List []*PathError

// Add appends err to the list.
func (l *List) Add(err *PathError) {
	if err != nil {
		*l = append(*l, err)
	}
}

// Extend appends all errors from other.
func (l *List) Extend(other []*PathError) {
	for _, e := range other {
		l.Add(e)
	}
}

// WithRoot sets Root on every error that does not have one yet and returns
// the list.
func (l List) WithRoot(root string) List {
	for _, e := range l {
		if e.Root == "" {
			e.Root = root
		}
	}
	return l
}

// Failures returns the errors that are not warnings.
func (l List) Failures() List {
	return l.filter(func(e *PathError) bool { return !e.Kind.IsWarning() })
}

// Warnings returns the errors that are warnings.
func (l List) Warnings() List {
	return l.filter(func(e *PathError) bool { return e.Kind.IsWarning() })
}

// OfKind returns the errors of the given kind.
func (l List) OfKind(kind Kind) List {
	return l.filter(func(e *PathError) bool { return e.Kind == kind })
}

func (l List) filter(keep func(*PathError) bool) List {
	var out List
	for _, e := range l {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Sorted returns a copy ordered by path, then kind.
func (l List) Sorted() List {
	out := make(List, len(l))
	copy(out, l)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Err combines the list into a single error, or nil if the list is empty.
func (l List) Err() error {
	var err error
	for _, e := range l {
		err = multierr.Append(err, e)
	}
	return err
}

// String renders one error per line.
func (l List) String() string {
	var sb strings.Builder
	for _, e := range l {
		sb.WriteString(e.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}
