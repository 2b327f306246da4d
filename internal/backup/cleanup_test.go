package backup

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/klauern/bkup/internal/fsys"
	"github.com/klauern/bkup/internal/util"
)

func makeRuns(t *testing.T, dir string, times ...time.Time) {
	t.Helper()
	for _, ts := range times {
		util.WriteFile(t, filepath.Join(dir, NewRunID(ts), "f.txt"), "x")
	}
}

func TestListRuns(t *testing.T) {
	dir := util.CreateTempDir(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	makeRuns(t, dir, base, base.Add(2*time.Hour), base.Add(time.Hour))
	util.WriteFile(t, filepath.Join(dir, "not-a-run", "x"), "x")
	util.WriteFile(t, filepath.Join(dir, "loose.txt"), "x")

	runs, err := ListRuns(fsys.New(dir))
	util.AssertNoError(t, err)

	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	want := []string{"20240101-020000", "20240101-010000", "20240101-000000"}
	if !slices.Equal(ids, want) {
		t.Errorf("ListRuns() = %v, want %v", ids, want)
	}
}

func TestListRuns_MissingDirectory(t *testing.T) {
	runs, err := ListRuns(fsys.New(filepath.Join(util.CreateTempDir(t), "none")))
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(runs), 0)
}

func TestCleanup(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.Local)
	day := 24 * time.Hour

	tests := []struct {
		name    string
		opts    CleanupOptions
		wantDel []string
	}{
		{
			name:    "max runs",
			opts:    CleanupOptions{MaxRuns: 2},
			wantDel: []string{NewRunID(now.Add(-3 * day)), NewRunID(now.Add(-40 * day))},
		},
		{
			name:    "max age",
			opts:    CleanupOptions{MaxAge: 30 * day},
			wantDel: []string{NewRunID(now.Add(-40 * day))},
		},
		{
			name:    "keep protects the current run",
			opts:    CleanupOptions{MaxRuns: 1, Keep: NewRunID(now.Add(-40 * day))},
			wantDel: []string{NewRunID(now.Add(-2 * day)), NewRunID(now.Add(-3 * day))},
		},
		{
			name:    "unlimited",
			opts:    CleanupOptions{},
			wantDel: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := util.CreateTempDir(t)
			makeRuns(t, dir, now.Add(-day), now.Add(-2*day), now.Add(-3*day), now.Add(-40*day))

			deleted, err := Cleanup(fsys.New(dir), tt.opts, now)
			util.AssertNoError(t, err)
			if !slices.Equal(deleted, tt.wantDel) {
				t.Errorf("Cleanup() deleted %v, want %v", deleted, tt.wantDel)
			}
			for _, id := range deleted {
				if _, err := os.Stat(filepath.Join(dir, id)); !os.IsNotExist(err) {
					t.Errorf("run %s still exists", id)
				}
			}
		})
	}
}

func TestCleanup_DryRun(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.Local)
	dir := util.CreateTempDir(t)
	makeRuns(t, dir, now.Add(-time.Hour), now.Add(-2*time.Hour))

	deleted, err := Cleanup(fsys.New(dir), CleanupOptions{MaxRuns: 1, DryRun: true}, now)
	util.AssertNoError(t, err)
	util.AssertEqual(t, len(deleted), 1)
	if _, err := os.Stat(filepath.Join(dir, deleted[0])); err != nil {
		t.Errorf("dry run must not delete: %v", err)
	}
}

func TestDefaultCleanupOptions(t *testing.T) {
	opts := DefaultCleanupOptions()
	util.AssertEqual(t, opts.MaxRuns, 10)
	util.AssertEqual(t, opts.MaxAge, 30*24*time.Hour)
}
