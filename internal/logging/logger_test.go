package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/klauern/bkup/internal/logging"
)

func TestNew_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Options{
		Level:  logging.LevelInfo,
		Output: &buf,
	})

	logger.Info("walk finished", "root", "/src")

	output := buf.String()
	if !strings.Contains(output, "walk finished") {
		t.Errorf("expected output to contain message, got: %s", output)
	}
	if !strings.Contains(output, "root=/src") {
		t.Errorf("expected output to contain 'root=/src', got: %s", output)
	}
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Options{
		Level:  logging.LevelInfo,
		Output: &buf,
		JSON:   true,
	})

	logger.Info("copied file", logging.Path("docs/readme.txt"), logging.Reason("missing"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}
	if entry["msg"] != "copied file" {
		t.Errorf("expected msg='copied file', got: %v", entry["msg"])
	}
	if entry["path"] != "docs/readme.txt" {
		t.Errorf("expected path attribute, got: %v", entry["path"])
	}
	if entry["reason"] != "missing" {
		t.Errorf("expected reason attribute, got: %v", entry["reason"])
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Options{
		Level:  logging.LevelWarn,
		Output: &buf,
	})

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("expected debug and info to be filtered at warn level, got: %s", output)
	}
	if !strings.Contains(output, "warn message") {
		t.Error("warn message should appear at warn level")
	}
}

func TestNew_AddSource(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Options{
		Level:     logging.LevelInfo,
		Output:    &buf,
		AddSource: true,
	})

	logger.Info("test with source")

	if !strings.Contains(buf.String(), "source=") {
		t.Errorf("expected output to contain source info, got: %s", buf.String())
	}
}

func TestNew_NilOutput(t *testing.T) {
	logger := logging.New(logging.Options{Level: logging.LevelInfo})
	if logger == nil {
		t.Error("expected non-nil logger when Output is nil")
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := logging.DefaultOptions()

	if opts.Level != logging.LevelWarn {
		t.Errorf("expected default level to be Warn, got: %v", opts.Level)
	}
	if opts.JSON {
		t.Error("expected default JSON to be false")
	}
	if opts.AddSource {
		t.Error("expected default AddSource to be false")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", logging.LevelDebug},
		{"INFO", logging.LevelInfo},
		{" warn ", logging.LevelWarn},
		{"warning", logging.LevelWarn},
		{"error", logging.LevelError},
		{"bogus", logging.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := logging.ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDiscard(t *testing.T) {
	logger := logging.Discard()
	if logger.Enabled(context.Background(), logging.LevelInfo) {
		t.Error("expected discard logger to drop info messages")
	}
	logger.Warn("nobody hears this")
}

func TestOrDefault(t *testing.T) {
	custom := logging.Discard()
	if logging.OrDefault(custom) != custom {
		t.Error("expected OrDefault to keep a non-nil logger")
	}
	if logging.OrDefault(nil) != logging.Default() {
		t.Error("expected OrDefault(nil) to return the default logger")
	}
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.Options{Level: logging.LevelInfo, Output: &buf})

	ctx := logging.NewContext(context.Background(), logger)
	if logging.FromContext(ctx) != logger {
		t.Fatal("expected logger from context")
	}

	logging.WithContext(ctx).Info("context message")
	if !strings.Contains(buf.String(), "context message") {
		t.Error("expected WithContext to use logger from context")
	}
}

func TestFromContext_Nil(t *testing.T) {
	if logging.FromContext(context.Background()) != nil {
		t.Error("expected nil logger from empty context")
	}
}

func TestWithContext_FallsBackToDefault(t *testing.T) {
	var buf bytes.Buffer
	logging.SetDefault(logging.New(logging.Options{Level: logging.LevelInfo, Output: &buf}))

	logging.WithContext(context.Background()).Info("default fallback message")

	if !strings.Contains(buf.String(), "default fallback message") {
		t.Error("expected WithContext to fall back to default logger")
	}
}

func TestPackageLevelDebug(t *testing.T) {
	var buf bytes.Buffer
	original := logging.Default()
	t.Cleanup(func() { logging.SetDefault(original) })

	logging.SetDefault(logging.New(logging.Options{Level: logging.LevelDebug, Output: &buf}))
	logging.Debug("logging configured", "level", "DEBUG")

	if !strings.Contains(buf.String(), "logging configured") {
		t.Errorf("expected debug message in output, got %q", buf.String())
	}
}

func TestDefault(t *testing.T) {
	logger := logging.Default()
	if logger == nil {
		t.Fatal("expected Default() to return non-nil logger")
	}
	if logger != logging.Default() {
		t.Error("expected Default() to return same logger on multiple calls")
	}
}

func TestAttributeHelpers(t *testing.T) {
	tests := []struct {
		name    string
		attr    slog.Attr
		wantKey string
		wantVal string
	}{
		{"Root", logging.Root("/backup"), "root", "/backup"},
		{"Path", logging.Path("a/b.txt"), "path", "a/b.txt"},
		{"Operation", logging.Operation("copy"), "operation", "copy"},
		{"Reason", logging.Reason("newer"), "reason", "newer"},
		{"Kind", logging.Kind("path_unreadable"), "kind", "path_unreadable"},
		{"Duration", logging.Duration(1500 * time.Millisecond), "duration", "1.5s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.wantKey {
				t.Errorf("got key %q, want %q", tt.attr.Key, tt.wantKey)
			}
			if tt.attr.Value.String() != tt.wantVal {
				t.Errorf("got value %q, want %q", tt.attr.Value.String(), tt.wantVal)
			}
		})
	}
}

func TestCount(t *testing.T) {
	attr := logging.Count(42)
	if attr.Key != "count" || attr.Value.Int64() != 42 {
		t.Errorf("unexpected count attribute: %v", attr)
	}
}

func TestErr(t *testing.T) {
	if attr := logging.Err(nil); attr.Key != "" {
		t.Errorf("expected empty key for nil error, got: %q", attr.Key)
	}

	var buf bytes.Buffer
	logger := logging.New(logging.Options{Level: logging.LevelInfo, Output: &buf, JSON: true})
	logger.Info("error occurred", logging.Err(errors.New("disk full")))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if entry["error"] != "disk full" {
		t.Errorf("expected error field in output, got: %v", entry["error"])
	}
}
