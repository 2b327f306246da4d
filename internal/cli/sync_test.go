package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauern/bkup/internal/backup"
	"github.com/klauern/bkup/internal/engine"
	"github.com/klauern/bkup/internal/fsys"
	"github.com/klauern/bkup/internal/ui/tui"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func readTestFile(t *testing.T, path string) string {
	t.Helper()
	// #nosec G304 - test path
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

func setAge(t *testing.T, path string, age time.Duration) {
	t.Helper()
	ts := time.Now().Add(-age)
	if err := os.Chtimes(path, ts, ts); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}
}

// sourceTree creates a.txt and sub/b.txt in a new source directory.
func sourceTree(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	writeTestFile(t, filepath.Join(src, "a.txt"), "hello")
	writeTestFile(t, filepath.Join(src, "sub", "b.txt"), "world")
	return src
}

func TestUpdateCommand(t *testing.T) {
	src := sourceTree(t)
	dst := t.TempDir()

	res := runCLI(t, "update", "--source", src, "--dest", dst)
	if res.err != nil {
		t.Fatalf("update failed: %v\nstderr: %s", res.err, res.stderr)
	}

	if !strings.Contains(res.stdout, "1 directory created, 2 files copied (10 B)") {
		t.Errorf("unexpected summary: %q", res.stdout)
	}
	if got := readTestFile(t, filepath.Join(dst, "sub", "b.txt")); got != "world" {
		t.Errorf("sub/b.txt = %q", got)
	}

	// A second run has nothing to do
	res = runCLI(t, "sync", "-s", src, "-d", dst)
	if res.err != nil {
		t.Fatalf("second update failed: %v", res.err)
	}
	if !strings.Contains(res.stdout, "0 directories created, 0 files copied") {
		t.Errorf("expected no work on second run, got %q", res.stdout)
	}
}

func TestUpdateCommand_FlagErrors(t *testing.T) {
	src := sourceTree(t)
	dst := t.TempDir()

	tests := map[string]struct {
		args    []string
		wantErr string
	}{
		"missing dest": {
			args:    []string{"update", "-s", src},
			wantErr: "dest",
		},
		"invalid accuracy": {
			args:    []string{"update", "-s", src, "-d", dst, "--accuracy", "soon"},
			wantErr: "invalid accuracy",
		},
		"negative accuracy": {
			args:    []string{"update", "-s", src, "-d", dst, "--accuracy=-5"},
			wantErr: "must not be negative",
		},
		"missing source": {
			args:    []string{"update", "-s", filepath.Join(src, "nope"), "-d", dst},
			wantErr: "does not exist",
		},
		"same directory": {
			args:    []string{"update", "-s", src, "-d", src},
			wantErr: "same directory",
		},
		"bad ignore file name": {
			args:    []string{"update", "-s", src, "-d", dst, "--ignore-file", "a/b"},
			wantErr: "plain file name",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			res := runCLI(t, tt.args...)
			if res.err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(res.err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", res.err, tt.wantErr)
			}
		})
	}
}

func TestUpdateCommand_DryRun(t *testing.T) {
	src := sourceTree(t)
	dst := filepath.Join(t.TempDir(), "new")

	res := runCLI(t, "update", "-s", src, "-d", dst, "--dry-run")
	if res.err != nil {
		t.Fatalf("dry run failed: %v", res.err)
	}

	for _, want := range []string{
		"destination will be created",
		"+ a.txt (missing, 5 B)",
		"1 directory to create, 2 files to copy",
	} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("output missing %q:\n%s", want, res.stdout)
		}
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Errorf("dry run created the destination: %v", err)
	}
}

func TestUpdateCommand_Ignore(t *testing.T) {
	src := sourceTree(t)
	writeTestFile(t, filepath.Join(src, "scratch.tmp"), "junk")
	writeTestFile(t, filepath.Join(src, ".bkignore"), "*.tmp\n")
	dst := t.TempDir()

	res := runCLI(t, "update", "-s", src, "-d", dst, "--ignore")
	if res.err != nil {
		t.Fatalf("update failed: %v", res.err)
	}
	if _, err := os.Stat(filepath.Join(dst, "scratch.tmp")); !os.IsNotExist(err) {
		t.Error("ignored file was copied")
	}
	if _, err := os.Stat(filepath.Join(dst, "a.txt")); err != nil {
		t.Errorf("a.txt not copied: %v", err)
	}

	// Without --ignore the file is copied
	res = runCLI(t, "update", "-s", src, "-d", dst)
	if res.err != nil {
		t.Fatalf("update failed: %v", res.err)
	}
	if _, err := os.Stat(filepath.Join(dst, "scratch.tmp")); err != nil {
		t.Errorf("scratch.tmp not copied without --ignore: %v", err)
	}
}

func TestUpdateCommand_AccuracyFromEnvironment(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTestFile(t, filepath.Join(src, "a.txt"), "new")
	writeTestFile(t, filepath.Join(dst, "a.txt"), "old")
	setAge(t, filepath.Join(src, "a.txt"), time.Hour)
	setAge(t, filepath.Join(dst, "a.txt"), 2*time.Hour)

	t.Setenv("BKUP_SYNC_ACCURACY", "2h")
	res := runCLI(t, "update", "-s", src, "-d", dst)
	if res.err != nil {
		t.Fatalf("update failed: %v", res.err)
	}
	if got := readTestFile(t, filepath.Join(dst, "a.txt")); got != "old" {
		t.Errorf("file within tolerance was overwritten: %q", got)
	}

	// The flag wins over the environment
	res = runCLI(t, "update", "-s", src, "-d", dst, "--accuracy", "1000")
	if res.err != nil {
		t.Fatalf("update failed: %v", res.err)
	}
	if got := readTestFile(t, filepath.Join(dst, "a.txt")); got != "new" {
		t.Errorf("newer file not copied: %q", got)
	}
}

func TestUpdateCommand_FailuresExitNonZero(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTestFile(t, filepath.Join(src, "x"), "file")
	writeTestFile(t, filepath.Join(src, "ok.txt"), "fine")
	if err := os.MkdirAll(filepath.Join(dst, "x"), 0o750); err != nil {
		t.Fatal(err)
	}

	res := runCLI(t, "update", "-s", src, "-d", dst)
	if !errors.Is(res.err, ErrFailures) {
		t.Fatalf("expected ErrFailures, got %v", res.err)
	}
	if !strings.Contains(res.stdout, "x is a file in source but a directory in destination") {
		t.Errorf("conflict not reported:\n%s", res.stdout)
	}
	if got := readTestFile(t, filepath.Join(dst, "ok.txt")); got != "fine" {
		t.Errorf("other files should still be copied, got %q", got)
	}
}

func TestUpdateCommand_Interactive(t *testing.T) {
	tests := map[string]struct {
		action     tui.ReviewAction
		wantCopied bool
		wantOutput string
	}{
		"apply": {
			action:     tui.ReviewActionApply,
			wantCopied: true,
			wantOutput: "2 files copied",
		},
		"abort": {
			action:     tui.ReviewActionAbort,
			wantCopied: false,
			wantOutput: "aborted, nothing was changed",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			old := reviewPlan
			t.Cleanup(func() { reviewPlan = old })

			var reviewed *engine.PlanResult
			reviewPlan = func(p *engine.PlanResult) (tui.PlanReviewResult, error) {
				reviewed = p
				return tui.PlanReviewResult{Action: tt.action}, nil
			}

			src := sourceTree(t)
			dst := t.TempDir()

			res := runCLI(t, "update", "-s", src, "-d", dst, "--interactive")
			if res.err != nil {
				t.Fatalf("update failed: %v", res.err)
			}
			if reviewed == nil || len(reviewed.Actions) != 3 {
				t.Fatalf("review saw wrong plan: %+v", reviewed)
			}

			_, err := os.Stat(filepath.Join(dst, "a.txt"))
			if copied := err == nil; copied != tt.wantCopied {
				t.Errorf("copied = %v, want %v", copied, tt.wantCopied)
			}
			if !strings.Contains(res.stdout, tt.wantOutput) {
				t.Errorf("output missing %q:\n%s", tt.wantOutput, res.stdout)
			}
		})
	}
}

func TestUpdateCommand_BackupDir(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	backups := filepath.Join(t.TempDir(), "backups")
	writeTestFile(t, filepath.Join(src, "a.txt"), "new content")
	writeTestFile(t, filepath.Join(dst, "a.txt"), "old content")
	setAge(t, filepath.Join(dst, "a.txt"), time.Hour)

	res := runCLI(t, "update", "-s", src, "-d", dst, "--backup-dir", backups)
	if res.err != nil {
		t.Fatalf("update failed: %v\nstderr: %s", res.err, res.stderr)
	}
	if !strings.Contains(res.stdout, "1 backed up") {
		t.Errorf("expected backup in summary: %q", res.stdout)
	}

	runs, err := backup.ListRuns(fsys.New(backups))
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns() = %v, %v", runs, err)
	}
	if got := readTestFile(t, filepath.Join(backups, runs[0].ID, "a.txt")); got != "old content" {
		t.Errorf("backup content = %q", got)
	}
}

func TestPlanCommand(t *testing.T) {
	src := sourceTree(t)
	dst := t.TempDir()

	res := runCLI(t, "plan", "-s", src, "-d", dst)
	if res.err != nil {
		t.Fatalf("plan failed: %v", res.err)
	}
	for _, want := range []string{
		"Plan: " + src + " -> " + dst,
		"+ sub/",
		"+ sub/b.txt (missing, 5 B)",
		"Summary: 1 directory to create, 2 files to copy (10 B)",
	} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("output missing %q:\n%s", want, res.stdout)
		}
	}

	entries, err := os.ReadDir(dst)
	if err != nil || len(entries) != 0 {
		t.Errorf("plan wrote to the destination: %v %v", entries, err)
	}
}

func TestPlanCommand_YAML(t *testing.T) {
	src := sourceTree(t)
	dst := t.TempDir()

	res := runCLI(t, "plan", "-s", src, "-d", dst, "--format", "yaml")
	if res.err != nil {
		t.Fatalf("plan failed: %v", res.err)
	}
	for _, want := range []string{
		"source: " + src,
		"- type: create_directory\n      path: sub",
		"- type: copy_file\n      path: a.txt\n      reason: missing\n      size: 5",
	} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("output missing %q:\n%s", want, res.stdout)
		}
	}
}

func TestPlanCommand_Errors(t *testing.T) {
	src := sourceTree(t)
	dst := t.TempDir()

	res := runCLI(t, "plan", "-s", src, "-d", dst, "--format", "json")
	if res.err == nil || !strings.Contains(res.err.Error(), "unsupported format") {
		t.Errorf("expected unsupported format error, got %v", res.err)
	}

	if err := os.MkdirAll(filepath.Join(dst, "a.txt"), 0o750); err != nil {
		t.Fatal(err)
	}
	res = runCLI(t, "plan", "-s", src, "-d", dst)
	if !errors.Is(res.err, ErrFailures) {
		t.Errorf("expected ErrFailures for a conflict, got %v", res.err)
	}
}
