package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

type cliResult struct {
	stdout string
	stderr string
	err    error
}

// runCLI runs the application with stdout and stderr captured.
func runCLI(t *testing.T, args ...string) cliResult {
	t.Helper()

	oldStdout, oldStderr := os.Stdout, os.Stderr
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create stdout pipe: %v", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create stderr pipe: %v", err)
	}
	os.Stdout, os.Stderr = outW, errW

	// Drain both pipes while the command runs so large output cannot block.
	var outBuf, errBuf bytes.Buffer
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&outBuf, outR)
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(&errBuf, errR)
	}()

	runErr := Run(context.Background(), append([]string{"bkup"}, args...))

	_ = outW.Close()
	_ = errW.Close()
	os.Stdout, os.Stderr = oldStdout, oldStderr
	wg.Wait()
	_ = outR.Close()
	_ = errR.Close()

	return cliResult{stdout: outBuf.String(), stderr: errBuf.String(), err: runErr}
}

func TestVersionVariables(t *testing.T) {
	// Version should be set (even if to "dev")
	if Version == "" {
		t.Error("Version should not be empty")
	}

	// Commit and BuildDate should have defaults
	if Commit == "" {
		t.Error("Commit should not be empty")
	}
	if BuildDate == "" {
		t.Error("BuildDate should not be empty")
	}
}

func TestConfigureLogging(t *testing.T) {
	tests := map[string]struct {
		args      []string
		env       map[string]string
		wantDebug bool
		wantInfo  bool
	}{
		"no flags logs warnings only": {
			args: []string{"version"},
		},
		"verbose flag enables info level": {
			args:     []string{"--verbose", "version"},
			wantInfo: true,
		},
		"debug flag enables debug level": {
			args:      []string{"--debug", "version"},
			wantDebug: true,
			wantInfo:  true,
		},
		"log level overrides verbose": {
			args: []string{"--verbose", "--log-level", "error", "version"},
		},
		"log level from environment": {
			args:      []string{"version"},
			env:       map[string]string{"BKUP_LOG_LEVEL": "debug"},
			wantDebug: true,
			wantInfo:  true,
		},
		"verbose from environment": {
			args:     []string{"version"},
			env:      map[string]string{"BKUP_OUTPUT_VERBOSE": "true"},
			wantInfo: true,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			res := runCLI(t, tt.args...)
			if res.err != nil {
				t.Fatalf("Run() error = %v", res.err)
			}

			logger := slog.Default()
			if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := logger.Enabled(context.Background(), slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("info enabled = %v, want %v", got, tt.wantInfo)
			}
		})
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	tests := map[string]struct {
		args    []string
		env     map[string]string
		wantErr string
	}{
		"invalid color mode": {
			args:    []string{"version"},
			env:     map[string]string{"BKUP_OUTPUT_COLOR": "sometimes"},
			wantErr: "invalid color mode",
		},
		"invalid log format": {
			args:    []string{"version"},
			env:     map[string]string{"BKUP_OUTPUT_LOG_FORMAT": "xml"},
			wantErr: "invalid log format",
		},
		"missing config file": {
			args:    []string{"--config", filepath.Join(os.TempDir(), "bkup-does-not-exist.yaml"), "version"},
			wantErr: "failed to load config",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
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

func TestRun_JSONLogs(t *testing.T) {
	t.Setenv("BKUP_OUTPUT_LOG_FORMAT", "json")

	src, dst := t.TempDir(), filepath.Join(t.TempDir(), "dst")
	writeTestFile(t, filepath.Join(src, "a.txt"), "hello")

	res := runCLI(t, "--verbose", "update", "-s", src, "-d", dst)
	if res.err != nil {
		t.Fatalf("Run() error = %v\nstderr: %s", res.err, res.stderr)
	}
	if !strings.Contains(res.stderr, `"msg":"plan ready"`) {
		t.Errorf("expected JSON logs on stderr, got %q", res.stderr)
	}
}

func TestRun_Help(t *testing.T) {
	res := runCLI(t, "--help")
	if res.err != nil {
		t.Fatalf("Run() error = %v", res.err)
	}
	for _, want := range []string{"bkup", "update", "plan", "backups", "config", "version"} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("help output missing %q:\n%s", want, res.stdout)
		}
	}
}
