// Package validation provides pre-sync checks on roots and options.
//
// Failures here are configuration errors: they abort a run before any walk
// begins.
package validation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Error represents a validation failure with context.
type Error struct {
	// Field is the name of the field or component that failed validation
	Field string
	// Message describes the validation failure
	Message string
	// Err is the underlying error (if any)
	Err error
}

// Error returns a formatted validation error message.
func (ve *Error) Error() string {
	if ve.Err != nil {
		return fmt.Sprintf("validation failed for %q: %s: %v", ve.Field, ve.Message, ve.Err)
	}
	return fmt.Sprintf("validation failed for %q: %s", ve.Field, ve.Message)
}

// Unwrap returns the underlying error for errors.Is/As.
func (ve *Error) Unwrap() error {
	return ve.Err
}

// Errors collects multiple validation errors.
type Errors []error

// Error returns a formatted error message for all validation failures.
func (ve Errors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}
	return fmt.Sprintf("%d validation errors:\n- %s", len(ve), errors.Join(ve...))
}

// Unwrap exposes the collected errors to errors.Is/As.
func (ve Errors) Unwrap() []error {
	return ve
}

// Options configures validation behavior.
type Options struct {
	// RequireWritePermission checks that the destination (or its nearest
	// existing ancestor) is writable.
	RequireWritePermission bool
}

// DefaultOptions returns the default validation options.
func DefaultOptions() Options {
	return Options{
		RequireWritePermission: true,
	}
}

// Result contains the outcome of a validation check.
type Result struct {
	// Valid indicates whether all validations passed
	Valid bool
	// Warnings contains non-fatal validation issues
	Warnings []string
	// Errors contains validation failures that prevent the operation
	Errors []error
}

// AddError adds an error to the validation result.
func (r *Result) AddError(err error) {
	r.Valid = false
	r.Errors = append(r.Errors, err)
}

// AddWarning adds a warning to the validation result.
func (r *Result) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// HasErrors returns true if there are any validation errors.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns the combined validation error message.
func (r *Result) Error() error {
	if !r.HasErrors() {
		return nil
	}
	if len(r.Errors) == 1 {
		return r.Errors[0]
	}
	return Errors(r.Errors)
}

// Summary returns a human-readable summary of the validation result.
func (r *Result) Summary() string {
	if r.Valid && len(r.Warnings) == 0 {
		return "All validations passed"
	}
	var msg string
	if r.Valid {
		msg = "Validation passed with warnings"
	} else {
		msg = "Validation failed"
	}
	if len(r.Warnings) > 0 {
		msg += fmt.Sprintf(" (%d warning(s))", len(r.Warnings))
	}
	return msg
}

// ValidateRoots checks the source and destination roots of a sync.
//
// The source must be an existing directory. The destination may be missing
// (it will be created) but must not be an existing non-directory. The two
// roots must be distinct and must not contain one another.
func ValidateRoots(source, dest string, opts Options) (*Result, error) {
	result := &Result{Valid: true}

	if err := ValidatePath(source, "source"); err != nil {
		result.AddError(err)
	}

	destExists, err := validateDestination(dest)
	if err != nil {
		result.AddError(err)
	} else if !destExists {
		result.AddWarning(fmt.Sprintf("destination %s does not exist and will be created", dest))
	}

	if result.HasErrors() {
		return result, result.Error()
	}

	if err := checkNesting(source, dest); err != nil {
		result.AddError(err)
	}

	if opts.RequireWritePermission {
		if err := validateWritePermission(dest); err != nil {
			result.AddError(err)
		}
	}

	return result, result.Error()
}

// ValidatePath checks that path names an existing directory.
func ValidatePath(path, field string) error {
	if path == "" {
		return &Error{
			Field:   field,
			Message: "path cannot be empty",
		}
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return &Error{
			Field:   field,
			Message: "cannot convert to absolute path",
			Err:     err,
		}
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Error{
				Field:   field,
				Message: fmt.Sprintf("path does not exist: %s", absPath),
				Err:     err,
			}
		}
		return &Error{
			Field:   field,
			Message: fmt.Sprintf("cannot access path: %s", absPath),
			Err:     err,
		}
	}

	if !info.IsDir() {
		return &Error{
			Field:   field,
			Message: fmt.Sprintf("path is not a directory: %s", absPath),
		}
	}

	return nil
}

// validateDestination reports whether dest exists. A missing destination is
// not an error.
func validateDestination(dest string) (bool, error) {
	if dest == "" {
		return false, &Error{
			Field:   "destination",
			Message: "path cannot be empty",
		}
	}

	info, err := os.Stat(dest)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &Error{
			Field:   "destination",
			Message: fmt.Sprintf("cannot access path: %s", dest),
			Err:     err,
		}
	}
	if !info.IsDir() {
		return true, &Error{
			Field:   "destination",
			Message: fmt.Sprintf("path is not a directory: %s", dest),
		}
	}
	return true, nil
}

// checkNesting rejects identical or nested roots. Walking a source that
// contains the destination would pick up files written by earlier runs.
func checkNesting(source, dest string) error {
	src, err := resolve(source)
	if err != nil {
		return &Error{Field: "source", Message: "cannot resolve path", Err: err}
	}
	dst, err := resolve(dest)
	if err != nil {
		return &Error{Field: "destination", Message: "cannot resolve path", Err: err}
	}

	switch {
	case src == dst:
		return &Error{
			Field:   "destination",
			Message: "source and destination are the same directory",
		}
	case isWithin(src, dst):
		return &Error{
			Field:   "destination",
			Message: fmt.Sprintf("destination %s is inside source %s", dst, src),
		}
	case isWithin(dst, src):
		return &Error{
			Field:   "source",
			Message: fmt.Sprintf("source %s is inside destination %s", src, dst),
		}
	}
	return nil
}

// resolve returns the absolute, symlink-free form of p. For paths that do
// not exist yet the nearest existing ancestor is resolved and the rest is
// appended.
func resolve(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	var rest []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		rest = append([]string{filepath.Base(cur)}, rest...)
		cur = parent
	}
}

func isWithin(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// validateWritePermission checks that dest, or its nearest existing ancestor
// when dest does not exist yet, is writable.
func validateWritePermission(dest string) error {
	path, err := filepath.Abs(dest)
	if err != nil {
		return &Error{Field: "destination", Message: "cannot convert to absolute path", Err: err}
	}
	for {
		if _, err := os.Stat(path); err == nil {
			break
		}
		parent := filepath.Dir(path)
		if parent == path {
			break
		}
		path = parent
	}

	f, err := os.CreateTemp(path, ".bkup-write-test-*")
	if err != nil {
		return &Error{
			Field:   "write permission",
			Message: fmt.Sprintf("destination directory is not writable: %s", path),
			Err:     err,
		}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	return nil
}

// ValidateOptions checks the sync options that do not depend on the
// filesystem.
func ValidateOptions(accuracy time.Duration, ignoreFileName string, maxOpenDirs int) error {
	result := &Result{Valid: true}

	if accuracy < 0 {
		result.AddError(&Error{
			Field:   "accuracy",
			Message: fmt.Sprintf("must not be negative, got %s", accuracy),
		})
	}

	switch {
	case ignoreFileName == "":
		result.AddError(&Error{
			Field:   "ignore file",
			Message: "name cannot be empty",
		})
	case ignoreFileName == "." || ignoreFileName == "..",
		strings.ContainsAny(ignoreFileName, `/\`):
		result.AddError(&Error{
			Field:   "ignore file",
			Message: fmt.Sprintf("must be a plain file name, got %q", ignoreFileName),
		})
	}

	if maxOpenDirs < 0 {
		result.AddError(&Error{
			Field:   "max open dirs",
			Message: fmt.Sprintf("must not be negative, got %d", maxOpenDirs),
		})
	}

	return result.Error()
}

// ValidateBackupDir checks that backups are not written below the source,
// where the next walk would pick them up.
func ValidateBackupDir(source, backupDir string) error {
	if backupDir == "" {
		return nil
	}
	src, err := resolve(source)
	if err != nil {
		return &Error{Field: "source", Message: "cannot resolve path", Err: err}
	}
	dir, err := resolve(backupDir)
	if err != nil {
		return &Error{Field: "backup dir", Message: "cannot resolve path", Err: err}
	}
	if dir == src || isWithin(src, dir) {
		return &Error{
			Field:   "backup dir",
			Message: fmt.Sprintf("backup directory %s is inside source %s", dir, src),
		}
	}
	return nil
}
