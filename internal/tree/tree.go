// Package tree holds the in-memory snapshot produced by one walk of one root.
package tree

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/elliotchance/orderedmap/v2"
)

// Separator joins path segments into tree keys.
const Separator = "/"

// Kind is the type of a filesystem object recorded in a tree.
type Kind int

const (
	// File is a regular file.
	File Kind = iota
	// Directory is a directory.
	Directory
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "directory"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Entry is one file or directory discovered during a walk.
type Entry struct {
	// Path is the ordered list of segments from the scan root.
	Path []string
	// Kind is File or Directory.
	Kind Kind
	// ModTime is the modification time as reported by the filesystem.
	ModTime time.Time
	// Size is the byte count of a file. Zero for directories.
	Size int64
}

// Key returns the slash-joined relative path.
func (e Entry) Key() string {
	return Key(e.Path)
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool {
	return e.Kind == Directory
}

// Key joins path segments into a tree key.
func Key(segments []string) string {
	return strings.Join(segments, Separator)
}

// Split turns a tree key back into segments.
func Split(key string) []string {
	if key == "" {
		return nil
	}
	return strings.Split(key, Separator)
}

// Compare orders two paths segment by segment. A parent sorts before its
// children, and every subtree is contiguous.
func Compare(a, b []string) int {
	return slices.Compare(a, b)
}

// Tree is an immutable, key-ordered set of entries.
type Tree struct {
	entries *orderedmap.OrderedMap[string, Entry]
}

// Empty returns a tree with no entries.
func Empty() *Tree {
	return &Tree{entries: orderedmap.NewOrderedMap[string, Entry]()}
}

// Len returns the number of entries.
func (t *Tree) Len() int {
	if t == nil || t.entries == nil {
		return 0
	}
	return t.entries.Len()
}

// Get returns the entry stored under key.
func (t *Tree) Get(key string) (Entry, bool) {
	if t == nil || t.entries == nil {
		return Entry{}, false
	}
	return t.entries.Get(key)
}

// Lookup returns the entry at the given path segments.
func (t *Tree) Lookup(segments []string) (Entry, bool) {
	return t.Get(Key(segments))
}

// Has reports whether key is present.
func (t *Tree) Has(key string) bool {
	_, ok := t.Get(key)
	return ok
}

// Each calls fn for every entry in order until fn returns false.
func (t *Tree) Each(fn func(Entry) bool) {
	if t == nil || t.entries == nil {
		return
	}
	for el := t.entries.Front(); el != nil; el = el.Next() {
		if !fn(el.Value) {
			return
		}
	}
}

// Entries returns all entries in order.
func (t *Tree) Entries() []Entry {
	out := make([]Entry, 0, t.Len())
	t.Each(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}

// Keys returns all keys in order.
func (t *Tree) Keys() []string {
	out := make([]string, 0, t.Len())
	t.Each(func(e Entry) bool {
		out = append(out, e.Key())
		return true
	})
	return out
}

// Counts returns the number of files and directories.
func (t *Tree) Counts() (files, dirs int) {
	t.Each(func(e Entry) bool {
		if e.IsDir() {
			dirs++
		} else {
			files++
		}
		return true
	})
	return files, dirs
}

// Builder collects entries in any order and produces a sorted Tree.
// A Builder is not safe for concurrent use.
type Builder struct {
	entries []Entry
}

// Add appends entries to the builder.
func (b *Builder) Add(entries ...Entry) {
	b.entries = append(b.entries, entries...)
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int {
	return len(b.entries)
}

// Build sorts the collected entries and returns the tree. If the same path was
// added twice, the last entry wins.
func (b *Builder) Build() *Tree {
	sorted := slices.Clone(b.entries)
	slices.SortStableFunc(sorted, func(x, y Entry) int {
		return Compare(x.Path, y.Path)
	})

	t := Empty()
	for _, e := range sorted {
		t.entries.Set(e.Key(), e)
	}
	return t
}
