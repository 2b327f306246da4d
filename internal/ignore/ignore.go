// Package ignore loads per-directory ignore files and answers whether a path
// relative to the scan root is excluded.
//
// Ignore files use gitignore syntax:
//
//	# comment
//	*.tmp        exclude by name at any depth below the file's directory
//	/build/      exclude the build directory next to the ignore file only
//	**/cache     exclude cache at any depth
//	!keep.tmp    re-include a path excluded by an earlier rule
//
// Rule sets cascade: a Matcher holds the rule sets of every ancestor directory
// and evaluates them shallowest first, so rules in deeper files and later lines
// override earlier ones.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/klauern/bkup/internal/fserr"
)

// DefaultFileName is the ignore file looked up in every directory.
const DefaultFileName = ".bkignore"

const (
	commentPrefix  = "#"
	negationPrefix = "!"
	dirSuffix      = "/"
	doubleStar     = "**"
)

// ErrEmptyPattern is returned for lines that contain only a negation or separator.
var ErrEmptyPattern = errors.New("empty pattern")

// SyntaxError describes a malformed line in an ignore file.
type SyntaxError struct {
	Line    int
	Pattern string
	Err     error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: invalid pattern %q: %v", e.Line, e.Pattern, e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// Rule is a single parsed ignore pattern.
type Rule struct {
	// Pattern is the line as written, trimmed of trailing whitespace.
	Pattern string
	// Negate is true for "!" patterns that re-include a path.
	Negate bool
	// DirOnly is true for patterns ending in "/".
	DirOnly bool
	// Line is the 1-based line number in the ignore file.
	Line int

	match gitignore.Pattern
}

// RuleSet is the ordered rules of one ignore file, scoped to the directory
// that holds it. A RuleSet is immutable once returned.
type RuleSet struct {
	domain []string
	rules  []Rule
}

// Domain returns the directory the rule set applies to, as path segments.
func (rs *RuleSet) Domain() []string {
	if rs == nil {
		return nil
	}
	return append([]string(nil), rs.domain...)
}

// Rules returns a copy of the parsed rules in file order.
func (rs *RuleSet) Rules() []Rule {
	if rs == nil {
		return nil
	}
	return append([]Rule(nil), rs.rules...)
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// match returns the result of the last rule matching relPath.
func (rs *RuleSet) match(relPath []string, isDir bool) gitignore.MatchResult {
	for i := len(rs.rules) - 1; i >= 0; i-- {
		if res := rs.rules[i].match.Match(relPath, isDir); res != gitignore.NoMatch {
			return res
		}
	}
	return gitignore.NoMatch
}

// Parse reads ignore rules from r. domain is the directory holding the ignore
// file, relative to the scan root. Malformed lines are skipped and returned as
// *SyntaxError values; the remaining rules are still usable.
func Parse(r io.Reader, domain []string) (*RuleSet, []error) {
	rs := &RuleSet{domain: append([]string(nil), domain...)}
	var errs []error

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}
		if err := validate(line); err != nil {
			errs = append(errs, &SyntaxError{Line: lineNo, Pattern: line, Err: err})
			continue
		}
		rs.rules = append(rs.rules, Rule{
			Pattern: line,
			Negate:  strings.HasPrefix(line, negationPrefix),
			DirOnly: strings.HasSuffix(line, dirSuffix),
			Line:    lineNo,
			match:   gitignore.ParsePattern(line, rs.domain),
		})
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, err)
	}
	return rs, errs
}

// validate checks every glob segment of a pattern.
func validate(line string) error {
	p := strings.TrimPrefix(line, negationPrefix)
	p = strings.TrimSuffix(p, dirSuffix)
	p = strings.TrimPrefix(p, dirSuffix)
	if p == "" {
		return ErrEmptyPattern
	}
	for _, seg := range strings.Split(p, dirSuffix) {
		if seg == doubleStar {
			continue
		}
		if _, err := path.Match(seg, ""); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the ignore file called name inside dir on fsys.
//
// Load never fails. A missing file yields an empty rule set. An unreadable
// file yields an empty rule set and a PathUnreadable error; malformed lines
// yield IgnoreFileParse errors.
func Load(fsys billy.Filesystem, dir []string, name string) (*RuleSet, []*fserr.PathError) {
	empty := &RuleSet{domain: append([]string(nil), dir...)}
	rel := path.Join(append(append([]string(nil), dir...), name)...)

	f, err := fsys.Open(filepath.Join(append(append([]string(nil), dir...), name)...))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return empty, nil
		}
		return empty, []*fserr.PathError{fserr.New(fserr.PathUnreadable, rel, "open", err)}
	}
	defer func() { _ = f.Close() }()

	rs, parseErrs := Parse(f, dir)
	if len(parseErrs) == 0 {
		return rs, nil
	}

	var out []*fserr.PathError
	for _, perr := range parseErrs {
		var syn *SyntaxError
		if errors.As(perr, &syn) {
			out = append(out, fserr.New(fserr.IgnoreFileParse, rel, "parse", perr))
			continue
		}
		// A read error mid-file discards the whole file.
		return empty, []*fserr.PathError{fserr.New(fserr.PathUnreadable, rel, "read", perr)}
	}
	return rs, out
}

// Matcher evaluates a cascade of rule sets. The zero value and a nil
// *Matcher exclude nothing. Matchers are immutable and safe for concurrent use.
type Matcher struct {
	sets []*RuleSet
}

// NewMatcher returns a matcher over the given rule sets, shallowest first.
func NewMatcher(sets ...*RuleSet) *Matcher {
	m := &Matcher{}
	for _, rs := range sets {
		if rs.Len() > 0 {
			m.sets = append(m.sets, rs)
		}
	}
	return m
}

// Extend returns a matcher with rs appended as the deepest rule set.
// The receiver is left untouched, so sibling directories can share it.
func (m *Matcher) Extend(rs *RuleSet) *Matcher {
	if rs.Len() == 0 {
		if m == nil {
			return &Matcher{}
		}
		return m
	}
	var sets []*RuleSet
	if m != nil {
		sets = make([]*RuleSet, 0, len(m.sets)+1)
		sets = append(sets, m.sets...)
	}
	return &Matcher{sets: append(sets, rs)}
}

// Depth returns the number of non-empty rule sets in the cascade.
func (m *Matcher) Depth() int {
	if m == nil {
		return 0
	}
	return len(m.sets)
}

// IsExcluded reports whether relPath, given as segments from the scan root,
// is excluded. The last matching rule wins, deeper rule sets override
// shallower ones.
func (m *Matcher) IsExcluded(relPath []string, isDir bool) bool {
	if m == nil {
		return false
	}
	for i := len(m.sets) - 1; i >= 0; i-- {
		switch m.sets[i].match(relPath, isDir) {
		case gitignore.Exclude:
			return true
		case gitignore.Include:
			return false
		}
	}
	return false
}
