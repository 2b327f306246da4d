package e2e

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// transcript formats a result for failure messages.
func transcript(r *Result) string {
	return fmt.Sprintf("error: %v\n--- stdout ---\n%s--- stderr ---\n%s", r.Err, r.Stdout, r.Stderr)
}

// AssertSuccess stops the test if the command failed.
func AssertSuccess(t *testing.T, r *Result) {
	t.Helper()
	if !r.Success() {
		t.Fatalf("expected success\n%s", transcript(r))
	}
}

// AssertError stops the test if the command succeeded.
func AssertError(t *testing.T, r *Result) {
	t.Helper()
	if r.Success() {
		t.Fatalf("expected an error, command succeeded\n%s", transcript(r))
	}
}

// AssertErrorContains stops the test unless the command failed with an
// error mentioning substr.
func AssertErrorContains(t *testing.T, r *Result, substr string) {
	t.Helper()
	AssertError(t, r)
	if !strings.Contains(r.Err.Error(), substr) {
		t.Errorf("expected error to contain %q\n%s", substr, transcript(r))
	}
}

// AssertExitCode checks the exit status main would use.
func AssertExitCode(t *testing.T, r *Result, expected int) {
	t.Helper()
	if r.ExitCode != expected {
		t.Errorf("exit code = %d, want %d\n%s", r.ExitCode, expected, transcript(r))
	}
}

// AssertOutputContains checks stdout for substr.
func AssertOutputContains(t *testing.T, r *Result, substr string) {
	t.Helper()
	if !strings.Contains(r.Stdout, substr) {
		t.Errorf("expected stdout to contain %q\n%s", substr, transcript(r))
	}
}

// AssertOutputNotContains checks that stdout lacks substr.
func AssertOutputNotContains(t *testing.T, r *Result, substr string) {
	t.Helper()
	if strings.Contains(r.Stdout, substr) {
		t.Errorf("expected stdout not to contain %q\n%s", substr, transcript(r))
	}
}

// AssertOutputEquals compares stdout exactly.
func AssertOutputEquals(t *testing.T, r *Result, expected string) {
	t.Helper()
	if diff := cmp.Diff(expected, r.Stdout); diff != "" {
		t.Errorf("stdout mismatch (-want +got):\n%s", diff)
	}
}

// AssertStderrContains checks stderr (logs, progress) for substr.
func AssertStderrContains(t *testing.T, r *Result, substr string) {
	t.Helper()
	if !strings.Contains(r.Stderr, substr) {
		t.Errorf("expected stderr to contain %q\n%s", substr, transcript(r))
	}
}

// AssertTree fails the test if the fixture does not hold exactly the given
// paths. Directories end in "/".
func AssertTree(t *testing.T, f *Fixture, want ...string) {
	t.Helper()
	sort.Strings(want)
	if diff := cmp.Diff(want, f.List(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("tree of %s mismatch (-want +got):\n%s", f.Root(), diff)
	}
}

// AssertModTime checks the modification time of a fixture path.
func AssertModTime(t *testing.T, f *Fixture, relPath string, want time.Time) {
	t.Helper()
	if got := f.ModTime(relPath); !got.Equal(want) {
		t.Errorf("mtime of %s = %v, want %v", relPath, got, want)
	}
}

// AssertFileEquals compares a file's content exactly.
func AssertFileEquals(t *testing.T, path, expected string) {
	t.Helper()
	// #nosec G304 - path is provided by test code
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file %s: %v", path, err)
	}
	if string(data) != expected {
		t.Errorf("content of %s = %q, want %q", path, string(data), expected)
	}
}
