// Package fsys opens sync roots as go-billy filesystems.
//
// The osfs chroot shipped with go-billy does not implement billy.Change, so
// times and modes could not be carried onto copied files. OS adds those
// operations on top of the chroot, resolving names inside the root.
package fsys

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// OS is a billy.Filesystem rooted at a directory of the local filesystem.
type OS struct {
	billy.Filesystem
	root string
}

var (
	_ billy.Filesystem = (*OS)(nil)
	_ billy.Change     = (*OS)(nil)
)

// New returns a filesystem rooted at root. The directory does not need to
// exist yet.
func New(root string) *OS {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = filepath.Clean(root)
	}
	return &OS{Filesystem: osfs.New(abs), root: abs}
}

// Root returns the absolute root directory.
func (o *OS) Root() string {
	return o.root
}

// Chroot returns a filesystem rooted at a subdirectory.
//
//nolint:ireturn // signature is dictated by billy.Chroot.
func (o *OS) Chroot(p string) (billy.Filesystem, error) {
	return New(o.abs(p)), nil
}

// abs resolves a slash or OS separated name inside the root. Names that try
// to climb out of the root are clamped to it.
func (o *OS) abs(name string) string {
	clean := path.Clean("/" + filepath.ToSlash(name))
	return filepath.Join(o.root, filepath.FromSlash(clean))
}

// Open opens name for reading. Unlike the chroot's files, the returned file
// has a Stat method reporting on the open handle.
//
//nolint:ireturn // signature is dictated by billy.Basic.
func (o *OS) Open(name string) (billy.File, error) {
	f, err := osfs.Default.Open(o.abs(name))
	if err != nil {
		return nil, err
	}
	return &file{File: f, name: name}, nil
}

// file keeps the name relative to the root and exposes the Stat of the
// underlying *os.File.
type file struct {
	billy.File
	name string
}

func (f *file) Name() string {
	return f.name
}

// Stat describes the open file.
func (f *file) Stat() (os.FileInfo, error) {
	s, ok := f.File.(interface{ Stat() (os.FileInfo, error) })
	if !ok {
		return nil, fmt.Errorf("fsys: stat %q: %w", f.name, errors.ErrUnsupported)
	}
	return s.Stat()
}

// Chmod implements billy.Change.
func (o *OS) Chmod(name string, mode os.FileMode) error {
	if err := os.Chmod(o.abs(name), mode); err != nil {
		return fmt.Errorf("fsys: chmod %q: %w", name, err)
	}
	return nil
}

// Lchown implements billy.Change.
func (o *OS) Lchown(name string, uid, gid int) error {
	if err := os.Lchown(o.abs(name), uid, gid); err != nil {
		return fmt.Errorf("fsys: lchown %q: %w", name, err)
	}
	return nil
}

// Chown implements billy.Change.
func (o *OS) Chown(name string, uid, gid int) error {
	if err := os.Chown(o.abs(name), uid, gid); err != nil {
		return fmt.Errorf("fsys: chown %q: %w", name, err)
	}
	return nil
}

// Chtimes implements billy.Change.
func (o *OS) Chtimes(name string, atime, mtime time.Time) error {
	if err := os.Chtimes(o.abs(name), atime, mtime); err != nil {
		return fmt.Errorf("fsys: chtimes %q: %w", name, err)
	}
	return nil
}

// Exists reports whether name exists inside the root.
func Exists(fs billy.Basic, name string) (bool, error) {
	_, err := fs.Stat(name)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("fsys: stat %q: %w", name, err)
	}
}
