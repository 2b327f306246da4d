package e2e

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

// Fixture provides helpers for creating directory trees in E2E tests.
type Fixture struct {
	t       *testing.T
	baseDir string
}

// NewFixture creates a new fixture helper rooted at the given directory.
func NewFixture(t *testing.T, baseDir string) *Fixture {
	t.Helper()
	return &Fixture{
		t:       t,
		baseDir: baseDir,
	}
}

// Root returns the fixture base directory.
func (f *Fixture) Root() string {
	return f.baseDir
}

// WriteFile writes content to a file relative to the fixture base directory.
// It creates parent directories as needed.
func (f *Fixture) WriteFile(relPath, content string) string {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		f.t.Fatalf("failed to create directory %s: %v", dir, err)
	}

	if err := os.WriteFile(fullPath, []byte(content), 0o600); err != nil {
		f.t.Fatalf("failed to write file %s: %v", fullPath, err)
	}

	return fullPath
}

// WriteFileAt writes a file and sets its modification time.
func (f *Fixture) WriteFileAt(relPath, content string, modTime time.Time) string {
	f.t.Helper()
	fullPath := f.WriteFile(relPath, content)
	f.SetModTime(relPath, modTime)
	return fullPath
}

// SetModTime sets the access and modification time of a path.
func (f *Fixture) SetModTime(relPath string, modTime time.Time) {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)
	if err := os.Chtimes(fullPath, modTime, modTime); err != nil {
		f.t.Fatalf("failed to set mtime of %s: %v", fullPath, err)
	}
}

// ModTime returns the modification time of a path.
func (f *Fixture) ModTime(relPath string) time.Time {
	f.t.Helper()
	info, err := os.Stat(filepath.Join(f.baseDir, relPath))
	if err != nil {
		f.t.Fatalf("failed to stat %s: %v", relPath, err)
	}
	return info.ModTime()
}

// MkdirAll creates a directory and all parent directories relative to the base.
func (f *Fixture) MkdirAll(relPath string) string {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)

	if err := os.MkdirAll(fullPath, 0o750); err != nil {
		f.t.Fatalf("failed to create directory %s: %v", fullPath, err)
	}

	return fullPath
}

// Path returns the full path for a relative path.
func (f *Fixture) Path(relPath string) string {
	return filepath.Join(f.baseDir, relPath)
}

// Exists returns true if the file or directory exists.
func (f *Fixture) Exists(relPath string) bool {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)
	_, err := os.Stat(fullPath)
	return err == nil
}

// ReadFile reads and returns the content of a file.
func (f *Fixture) ReadFile(relPath string) string {
	f.t.Helper()
	fullPath := filepath.Join(f.baseDir, relPath)

	// #nosec G304 - fullPath is constructed from trusted test fixture base and test-provided path
	data, err := os.ReadFile(fullPath)
	if err != nil {
		f.t.Fatalf("failed to read file %s: %v", fullPath, err)
	}

	return string(data)
}

// List returns every path below the fixture root, slash separated and
// sorted. Directories end in "/".
func (f *Fixture) List() []string {
	f.t.Helper()
	var paths []string
	err := filepath.WalkDir(f.baseDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == f.baseDir {
			return nil
		}
		rel, err := filepath.Rel(f.baseDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			rel += "/"
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		f.t.Fatalf("failed to list %s: %v", f.baseDir, err)
	}
	sort.Strings(paths)
	return paths
}

// TempFixture creates a fixture helper for a new temporary directory.
func (h *Harness) TempFixture() *Fixture {
	h.t.Helper()

	tempDir := h.t.TempDir()
	return NewFixture(h.t, tempDir)
}

// MissingFixture returns a fixture for a directory that does not exist yet.
func (h *Harness) MissingFixture() *Fixture {
	h.t.Helper()
	return NewFixture(h.t, filepath.Join(h.t.TempDir(), "missing"))
}
