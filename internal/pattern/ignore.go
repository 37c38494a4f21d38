package pattern

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// IgnoreFile is the name of the per-category ignore file.
const IgnoreFile = ".docindexignore"

// Ignore holds rules read from an ignore file. The last matching rule
// wins; a rule starting with '!' re-includes a path. A nil *Ignore
// ignores nothing.
type Ignore struct {
	patterns []gitignore.Pattern
	matcher  gitignore.Matcher
}

// LoadIgnore reads the ignore file in dir. A missing file yields an empty
// set of rules.
func LoadIgnore(dir string) (*Ignore, error) {
	f, err := os.Open(filepath.Join(dir, IgnoreFile))
	if errors.Is(err, fs.ErrNotExist) {
		return &Ignore{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", IgnoreFile, err)
	}
	defer func() { _ = f.Close() }()
	return ParseIgnore(f)
}

// ParseIgnore reads rules, one per line. Blank lines and lines starting
// with '#' are skipped.
func ParseIgnore(r io.Reader) (*Ignore, error) {
	ig := &Ignore{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		ig.Add(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ignore rules: %w", err)
	}
	return ig, nil
}

// Add appends one rule.
func (ig *Ignore) Add(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") || strings.Trim(line, "!/") == "" {
		return
	}
	ig.patterns = append(ig.patterns, gitignore.ParsePattern(line, nil))
	ig.matcher = gitignore.NewMatcher(ig.patterns)
}

// Match reports whether rel should be skipped. Callers walking a tree
// check directories too and skip their contents.
func (ig *Ignore) Match(rel string, isDir bool) bool {
	if ig == nil || ig.matcher == nil {
		return false
	}
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return false
	}
	return ig.matcher.Match(strings.Split(rel, "/"), isDir)
}

// Len returns the number of rules.
func (ig *Ignore) Len() int {
	if ig == nil {
		return 0
	}
	return len(ig.patterns)
}
