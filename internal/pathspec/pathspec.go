// Package pathspec decides which paths participate in a checkout. A
// matcher combines an ordered prefix filter with an optional glob whose
// literal leading directories are appended to every prefix, so the
// walker can prune whole subtrees without compiling anything per path.
package pathspec

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matcher evaluates the filepaths prefix filter and the optional pattern.
type Matcher struct {
	bases   []string
	tail    string
	pattern bool
}

// New builds a Matcher from the filepath prefixes (nil or empty means the
// whole tree) and an optional glob pattern. The pattern's longest literal
// leading directory run is folded into the bases; the remainder is matched
// with globstar and brace semantics.
func New(filepaths []string, pattern string) (*Matcher, error) {
	if len(filepaths) == 0 {
		filepaths = []string{"."}
	}

	root, tail := splitPattern(pattern)
	if pattern != "" && !doublestar.ValidatePattern(tail) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	bases := make([]string, 0, len(filepaths))
	for _, fp := range filepaths {
		bases = append(bases, path.Join(fp, root))
	}

	return &Matcher{
		bases:   bases,
		tail:    tail,
		pattern: pattern != "",
	}, nil
}

// WorthWalking reports whether the walker should visit fullpath: true when
// the path is an ancestor of, equal to, or a descendant of any base.
// Ancestors must pass or the walk could never descend to a base.
func (m *Matcher) WorthWalking(fullpath string) bool {
	for _, base := range m.bases {
		if base == "." || fullpath == "." {
			return true
		}
		if fullpath == base ||
			strings.HasPrefix(base, fullpath+"/") ||
			strings.HasPrefix(fullpath, base+"/") {
			return true
		}
	}
	return false
}

// Matches is the leaf-level decision: fullpath must sit at or below a base
// and, when a pattern is present, its base-relative remainder must match
// the pattern tail.
func (m *Matcher) Matches(fullpath string) bool {
	for _, base := range m.bases {
		rel, ok := relativeTo(fullpath, base)
		if !ok {
			continue
		}
		if !m.pattern {
			return true
		}
		if ok, err := doublestar.Match(m.tail, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// relativeTo strips base from fullpath, reporting false when fullpath is
// not equal to or below base.
func relativeTo(fullpath, base string) (string, bool) {
	if base == "." {
		return fullpath, true
	}
	if fullpath == base {
		return ".", true
	}
	if rest, ok := strings.CutPrefix(fullpath, base+"/"); ok {
		return rest, true
	}
	return "", false
}

// splitPattern splits a glob into its literal leading directories and the
// remaining tail. The final segment always stays in the tail so that a
// fully literal pattern still matches as a pattern, not a prefix.
func splitPattern(pattern string) (root, tail string) {
	if pattern == "" {
		return "", ""
	}
	segments := strings.Split(pattern, "/")
	i := 0
	for i < len(segments)-1 && !strings.ContainsAny(segments[i], "*?[]{}!") {
		i++
	}
	return path.Join(segments[:i]...), strings.Join(segments[i:], "/")
}
