package e2e

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAssertHelpers(t *testing.T) {
	r := &Result{Stdout: "ok\n", Stderr: "level=INFO msg=done\n"}

	AssertSuccess(t, r)
	AssertExitCode(t, r, 0)
	AssertOutputEquals(t, r, "ok\n")
	AssertOutputNotContains(t, r, "done")
	AssertStderrContains(t, r, "msg=done")
}

func TestAssertErrorContains(t *testing.T) {
	r := &Result{Err: errors.New("run reported failures: 2 failed"), ExitCode: 1}

	AssertErrorContains(t, r, "2 failed")
	AssertExitCode(t, r, 1)
}

func TestAssertFileEquals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(path, []byte("content"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	AssertFileEquals(t, path, "content")
}

func TestAssertTree(t *testing.T) {
	f := NewFixture(t, t.TempDir())
	f.WriteFile("b/c.txt", "x")
	f.WriteFile("a.txt", "y")
	f.MkdirAll("empty")

	AssertTree(t, f, "b/c.txt", "a.txt", "b/", "empty/")
}

func TestAssertModTime(t *testing.T) {
	f := NewFixture(t, t.TempDir())
	mtime := time.Date(2022, 2, 2, 2, 2, 2, 0, time.UTC)
	f.WriteFileAt("a.txt", "a", mtime)

	AssertModTime(t, f, "a.txt", mtime)
}
