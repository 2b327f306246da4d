// Package e2e provides testing infrastructure for end-to-end CLI tests.
// It includes a harness for running bkup commands, fixture management and
// utilities for setting up isolated source and destination trees.
package e2e

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/klauern/bkup/internal/cli"
)

// Result contains the outcome of running a CLI command.
type Result struct {
	// Stdout contains the captured standard output.
	Stdout string
	// Stderr contains the captured standard error (logs, progress).
	Stderr string
	// Err is the error returned by the CLI command, if any.
	Err error
	// ExitCode is the inferred exit code (0 for success, 1 for error).
	ExitCode int
}

// Success returns true if the command completed without error.
func (r *Result) Success() bool {
	return r.Err == nil
}

// Harness provides a test harness for running E2E CLI tests.
// It manages environment isolation, temp directories and output capture.
type Harness struct {
	t       *testing.T
	homeDir string
	env     map[string]string
}

// NewHarness creates a new E2E test harness with an isolated BKUP_HOME, so
// no user configuration leaks into the test.
func NewHarness(t *testing.T) *Harness {
	t.Helper()

	homeDir := t.TempDir()

	h := &Harness{
		t:       t,
		homeDir: homeDir,
		env:     make(map[string]string),
	}

	h.SetEnv("HOME", homeDir)
	h.SetEnv("BKUP_HOME", filepath.Join(homeDir, ".config", "bkup"))
	h.SetEnv("NO_COLOR", "1")

	return h
}

// SetEnv sets an environment variable for CLI commands run through this harness.
// The environment will be restored after the test completes.
func (h *Harness) SetEnv(key, value string) {
	h.t.Helper()
	h.env[key] = value
	h.t.Setenv(key, value)
}

// HomeDir returns the isolated home directory for this test harness.
func (h *Harness) HomeDir() string {
	return h.homeDir
}

// ConfigDir returns the BKUP_HOME directory used by this harness.
func (h *Harness) ConfigDir() string {
	return h.env["BKUP_HOME"]
}

// Run executes a CLI command with the given arguments and captures the output.
func (h *Harness) Run(args ...string) *Result {
	h.t.Helper()

	// Prepend "bkup" as the program name if not provided
	if len(args) == 0 || args[0] != "bkup" {
		args = append([]string{"bkup"}, args...)
	}

	oldStdout, oldStderr := os.Stdout, os.Stderr
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		h.t.Fatalf("failed to create stdout pipe: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		h.t.Fatalf("failed to create stderr pipe: %v", err)
	}
	os.Stdout, os.Stderr = stdoutW, stderrW

	// Read both pipes concurrently to avoid pipe buffer deadlock.
	// If the command outputs more than the pipe buffer size (~64KB),
	// it will block waiting for the buffer to drain.
	var stdoutBuf, stderrBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&stdoutBuf, stdoutR)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&stderrBuf, stderrR)
	}()

	cmdErr := cli.Run(context.Background(), args)

	// Restore and close writers to signal EOF to the reader goroutines
	if err := stdoutW.Close(); err != nil {
		h.t.Fatalf("failed to close stdout pipe writer: %v", err)
	}
	if err := stderrW.Close(); err != nil {
		h.t.Fatalf("failed to close stderr pipe writer: %v", err)
	}
	os.Stdout, os.Stderr = oldStdout, oldStderr

	wg.Wait()
	_ = stdoutR.Close()
	_ = stderrR.Close()

	exitCode := 0
	if cmdErr != nil {
		exitCode = 1
	}

	return &Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Err:      cmdErr,
		ExitCode: exitCode,
	}
}

// Update runs "bkup update" between two fixtures with extra arguments.
func (h *Harness) Update(src, dst *Fixture, extra ...string) *Result {
	h.t.Helper()
	args := append([]string{"update", "--source", src.Root(), "--dest", dst.Root()}, extra...)
	return h.Run(args...)
}

// Plan runs "bkup plan" between two fixtures with extra arguments.
func (h *Harness) Plan(src, dst *Fixture, extra ...string) *Result {
	h.t.Helper()
	args := append([]string{"plan", "--source", src.Root(), "--dest", dst.Root()}, extra...)
	return h.Run(args...)
}
