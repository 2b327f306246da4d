// Package archive packs a backup run into a gzip-compressed tar stream and
// unpacks it again.
//
// An archive holds the saved files under their destination paths followed by
// the run manifest:
//
//	docs/readme.txt
//	notes.txt
//	manifest.yaml
package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"gopkg.in/yaml.v3"

	"github.com/klauern/bkup/internal/backup"
)

const (
	// FilePerm is the mode of files written into an archive.
	FilePerm = 0o640
	// DirPerm is used for directories created during extraction.
	DirPerm = 0o750
)

var (
	// ErrNoFiles is returned when no file of the run matches the filters.
	ErrNoFiles = errors.New("no backup files match the specified filters")
	// ErrNoManifest is returned for archives without a manifest entry.
	ErrNoManifest = errors.New("archive missing " + backup.ManifestFilename)
	// ErrUnsafePath is returned for entries that would land outside the target.
	ErrUnsafePath = errors.New("unsafe path in archive")
)

// CreateOptions configures archive creation.
type CreateOptions struct {
	Since  time.Time // Include files modified at or after this time
	Before time.Time // Include files modified strictly before this time
}

// ExtractOptions configures archive extraction.
type ExtractOptions struct {
	DryRun    bool // List entries without writing
	Overwrite bool // Replace files that already exist in the target
}

// ExtractResult lists what an extraction did.
type ExtractResult struct {
	Manifest *backup.Manifest
	Written  []string
	Skipped  []string
}

// Create writes the files listed in m, read from the backup filesystem fs,
// to w as a tar.gz stream. The manifest in the archive lists only the files
// that passed the filters; it is returned.
func Create(fs billy.Filesystem, m *backup.Manifest, w io.Writer, opts CreateOptions) (*backup.Manifest, error) {
	filtered := filterFiles(m.Files, opts)
	if len(filtered) == 0 {
		return nil, ErrNoFiles
	}

	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)

	out := &backup.Manifest{
		RunID:       m.RunID,
		Source:      m.Source,
		Destination: m.Destination,
		Files:       filtered,
	}
	for _, f := range filtered {
		if err := addFile(tarWriter, fs, f); err != nil {
			return nil, err
		}
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize manifest: %w", err)
	}
	header := &tar.Header{
		Name:    backup.ManifestFilename,
		Mode:    FilePerm,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return nil, fmt.Errorf("failed to write manifest header: %w", err)
	}
	if _, err := tarWriter.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write manifest data: %w", err)
	}

	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := gzWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return out, nil
}

func addFile(tw *tar.Writer, fs billy.Filesystem, f backup.Metadata) (err error) {
	file, err := fs.Open(f.BackupPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.BackupPath, err)
	}
	defer func() { _ = file.Close() }()

	info, err := fs.Stat(f.BackupPath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", f.BackupPath, err)
	}

	header := &tar.Header{
		Name:    f.Path,
		Mode:    FilePerm,
		Size:    info.Size(),
		ModTime: f.ModifiedAt,
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", f.Path, err)
	}
	if _, err := io.Copy(tw, file); err != nil {
		return fmt.Errorf("failed to write data for %s: %w", f.Path, err)
	}
	return nil
}

// Extract reads a tar.gz stream produced by Create and writes its files into
// target. Existing files are skipped unless opts.Overwrite is set. Every
// written file is checked against the hash recorded in the manifest.
func Extract(r io.Reader, target billy.Filesystem, opts ExtractOptions) (*ExtractResult, error) {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer func() { _ = gzReader.Close() }()

	tarReader := tar.NewReader(gzReader)
	res := &ExtractResult{}
	hashes := make(map[string]string)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, tar.ErrInsecurePath) {
			return nil, fmt.Errorf("%w: %s", ErrUnsafePath, header.Name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar header: %w", err)
		}

		if header.Name == backup.ManifestFilename {
			var m backup.Manifest
			if err := yaml.NewDecoder(tarReader).Decode(&m); err != nil {
				return nil, fmt.Errorf("failed to parse manifest: %w", err)
			}
			res.Manifest = &m
			continue
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		name, err := cleanName(header.Name)
		if err != nil {
			return nil, err
		}
		if opts.DryRun {
			res.Written = append(res.Written, name)
			continue
		}
		if _, err := target.Stat(name); err == nil && !opts.Overwrite {
			res.Skipped = append(res.Skipped, name)
			continue
		}

		sum, err := writeEntry(target, name, tarReader, header.ModTime)
		if err != nil {
			return nil, err
		}
		hashes[name] = sum
		res.Written = append(res.Written, name)
	}

	if res.Manifest == nil {
		return nil, ErrNoManifest
	}
	for _, f := range res.Manifest.Files {
		if sum, ok := hashes[f.Path]; ok && sum != f.Hash {
			return res, fmt.Errorf("%s: hash mismatch (expected %s, got %s)", f.Path, f.Hash, sum)
		}
	}
	return res, nil
}

// cleanName rejects absolute names and names that climb out of the target.
func cleanName(name string) (string, error) {
	clean := path.Clean(name)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return clean, nil
}

func writeEntry(fs billy.Filesystem, name string, r io.Reader, modTime time.Time) (string, error) {
	if dir := path.Dir(name); dir != "." {
		if err := fs.MkdirAll(dir, DirPerm); err != nil {
			return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	file, err := fs.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, FilePerm)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	hash := sha256.New()
	_, err = io.Copy(io.MultiWriter(file, hash), r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}

	if ch, ok := fs.(billy.Change); ok && !modTime.IsZero() {
		_ = ch.Chtimes(name, modTime, modTime)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// filterFiles applies the date filters of opts.
func filterFiles(files []backup.Metadata, opts CreateOptions) []backup.Metadata {
	filtered := make([]backup.Metadata, 0, len(files))
	for _, f := range files {
		if !opts.Since.IsZero() && f.ModifiedAt.Before(opts.Since) {
			continue
		}
		if !opts.Before.IsZero() && !f.ModifiedAt.Before(opts.Before) {
			continue
		}
		filtered = append(filtered, f)
	}
	return filtered
}
