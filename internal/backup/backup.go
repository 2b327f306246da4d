// Package backup saves destination files before a sync overwrites them.
//
// Each invocation writes into its own run directory named by the start time,
// mirroring the destination layout below it:
//
//	<backup-dir>/20240101-120000/docs/readme.txt
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
)

const (
	// BackupDirPerm is the permission for backup directories (rwxr-x---)
	BackupDirPerm = 0o750
	// BackupFilePerm is the permission for backup files (rw-r-----)
	BackupFilePerm = 0o640

	// RunIDFormat is the time layout of run directory names.
	RunIDFormat = "20060102-150405"
)

// ErrNotRegular is returned when the path to back up is not a regular file.
var ErrNotRegular = errors.New("not a regular file")

// NewRunID returns the run directory name for a run started at t.
func NewRunID(t time.Time) string {
	return t.Format(RunIDFormat)
}

// Store copies files into one run directory of a backup filesystem.
// A Store is safe for concurrent use.
type Store struct {
	fs    billy.Filesystem
	runID string
	now   func() time.Time

	mu      sync.Mutex
	records []Metadata
}

// NewStore returns a store writing below runID in fs.
func NewStore(fs billy.Filesystem, runID string) *Store {
	return &Store{fs: fs, runID: runID, now: time.Now}
}

// RunID returns the run directory name.
func (s *Store) RunID() string {
	return s.runID
}

// Save copies relPath from src into the run directory and returns its
// metadata. relPath is slash separated. The copy keeps the original
// modification time when the backup filesystem supports it.
func (s *Store) Save(src billy.Filesystem, relPath string) (*Metadata, error) {
	info, err := src.Stat(relPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %q: %w", relPath, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("backup %q: %w", relPath, ErrNotRegular)
	}

	in, err := src.Open(relPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", relPath, err)
	}
	defer func() { _ = in.Close() }()

	backupPath := path.Join(s.runID, relPath)
	if err := s.fs.MkdirAll(path.Dir(backupPath), BackupDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	out, err := s.fs.OpenFile(backupPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, BackupFilePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup file: %w", err)
	}

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(out, hash), in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(backupPath)
		return nil, fmt.Errorf("failed to write backup file: %w", err)
	}

	if ch, ok := s.fs.(billy.Change); ok {
		_ = ch.Chtimes(backupPath, info.ModTime(), info.ModTime())
	}

	meta := Metadata{
		Path:       relPath,
		BackupPath: backupPath,
		CreatedAt:  s.now(),
		ModifiedAt: info.ModTime(),
		Hash:       hex.EncodeToString(hash.Sum(nil)),
		Size:       size,
	}

	s.mu.Lock()
	s.records = append(s.records, meta)
	s.mu.Unlock()

	return &meta, nil
}

// Records returns the files saved so far, in save order.
func (s *Store) Records() []Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Metadata(nil), s.records...)
}

// Verify checks that a saved file is intact and matches its hash.
func (s *Store) Verify(meta Metadata) (err error) {
	file, err := s.fs.Open(meta.BackupPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("backup file missing: %s", meta.BackupPath)
		}
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close backup file: %w", closeErr)
		}
	}()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return fmt.Errorf("failed to read backup file: %w", err)
	}

	hashStr := hex.EncodeToString(hash.Sum(nil))
	if hashStr != meta.Hash {
		return fmt.Errorf("backup file corrupted: hash mismatch (expected %s, got %s)", meta.Hash, hashStr)
	}
	return nil
}
