package backup

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// CleanupOptions configures backup cleanup behavior
type CleanupOptions struct {
	// MaxRuns limits the number of run directories to keep (0 = unlimited)
	MaxRuns int

	// MaxAge is the maximum age of runs to keep (0 = unlimited)
	MaxAge time.Duration

	// Keep is a run that is never removed, usually the current one.
	Keep string

	// DryRun previews what would be deleted without actually deleting
	DryRun bool
}

// DefaultCleanupOptions returns sensible defaults for cleanup
func DefaultCleanupOptions() CleanupOptions {
	return CleanupOptions{
		MaxRuns: 10,
		MaxAge:  30 * 24 * time.Hour,
	}
}

// Run is one run directory in a backup filesystem.
type Run struct {
	ID        string
	CreatedAt time.Time
}

// ListRuns returns the run directories of fs, newest first. Directories
// whose names are not run IDs are left out.
func ListRuns(fs billy.Filesystem) ([]Run, error) {
	infos, err := fs.ReadDir("")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list backup directory: %w", err)
	}

	var runs []Run
	for _, info := range infos {
		if !info.IsDir() {
			continue
		}
		created, err := time.ParseInLocation(RunIDFormat, info.Name(), time.Local)
		if err != nil {
			continue
		}
		runs = append(runs, Run{ID: info.Name(), CreatedAt: created})
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

// Cleanup removes old run directories and returns the removed run IDs.
func Cleanup(fs billy.Filesystem, opts CleanupOptions, now time.Time) ([]string, error) {
	runs, err := ListRuns(fs)
	if err != nil {
		return nil, err
	}

	var deleted []string
	kept := 0
	for _, run := range runs {
		if run.ID == opts.Keep {
			kept++
			continue
		}

		expired := opts.MaxAge > 0 && now.Sub(run.CreatedAt) > opts.MaxAge
		overflow := opts.MaxRuns > 0 && kept >= opts.MaxRuns
		if !expired && !overflow {
			kept++
			continue
		}

		if !opts.DryRun {
			if err := util.RemoveAll(fs, run.ID); err != nil {
				return deleted, fmt.Errorf("failed to delete backup run %q: %w", run.ID, err)
			}
		}
		deleted = append(deleted, run.ID)
	}
	return deleted, nil
}
