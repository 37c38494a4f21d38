// Package pattern matches slash-separated relative paths against category
// globs and against ignore files written in gitignore syntax.
//
// Globs use doublestar syntax:
//   - '*' matches any run of characters except '/'
//   - '?' matches one character except '/'
//   - '[...]' is a character class; '[!...]' or '[^...]' negates it
//   - '{a,b}' matches either alternative
//   - '**' as a whole segment matches zero or more directories
//
// A glob without '/' matches the base name at any depth, so "*.txt" finds
// text files in subdirectories too.
package pattern

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Glob is a compiled category pattern.
type Glob struct {
	raw      string
	clean    string
	baseOnly bool
}

// Validate reports whether p is a well-formed glob.
func Validate(p string) error {
	_, err := Compile(p)
	return err
}

// Compile parses a glob.
func Compile(p string) (*Glob, error) {
	clean := strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(p)), "./")
	if clean == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	if strings.HasPrefix(clean, "/") {
		return nil, fmt.Errorf("pattern %q must be relative", p)
	}
	if !doublestar.ValidatePattern(clean) {
		return nil, fmt.Errorf("pattern %q: %w", p, doublestar.ErrBadPattern)
	}
	return &Glob{raw: p, clean: clean, baseOnly: !strings.Contains(clean, "/")}, nil
}

// MustCompile is Compile that panics on error.
func MustCompile(p string) *Glob {
	g, err := Compile(p)
	if err != nil {
		panic(err)
	}
	return g
}

// Match reports whether the relative path rel matches.
func (g *Glob) Match(rel string) bool {
	rel = filepath.ToSlash(rel)
	if g.baseOnly {
		rel = path.Base(rel)
	}
	// The pattern was validated in Compile.
	ok, _ := doublestar.Match(g.clean, rel)
	return ok
}

func (g *Glob) String() string { return g.raw }
