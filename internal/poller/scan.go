package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Aman-CERP/docindex/internal/chunk"
	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/pattern"
)

// category is a configured category with its glob compiled.
type category struct {
	name string
	root string
	kind config.CategoryType
	glob *pattern.Glob
}

// scan lists the slash-separated paths under root that match the glob,
// sorted. Hidden directories and paths excluded by the ignore file are
// skipped. A missing root is an error, not an empty category.
func (c *category) scan(ctx context.Context) ([]string, error) {
	info, err := os.Stat(c.root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", c.root)
	}

	ignore, err := pattern.LoadIgnore(c.root)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(c.root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			// Unreadable subtrees are skipped, the root itself is fatal.
			if p == c.root {
				return walkErr
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if p == c.root {
			return nil
		}

		rel, err := filepath.Rel(c.root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || ignore.Match(rel, true) {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !c.glob.Match(rel) || ignore.Match(rel, false) {
			return nil
		}
		if !d.Type().IsRegular() {
			fi, err := os.Stat(p)
			if err != nil || !fi.Mode().IsRegular() {
				return nil
			}
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// readFile returns the body and modification time of a matched file.
func readFile(abs string, maxBytes int64) (string, int64, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return "", 0, err
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return "", 0, fmt.Errorf("file is %d bytes, limit is %d", info.Size(), maxBytes)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", 0, err
	}
	if !utf8.Valid(data) {
		return "", 0, fmt.Errorf("file is not valid UTF-8")
	}
	return string(data), info.ModTime().UnixMilli(), nil
}

// titleFor derives a document title: the first level-one heading of
// Markdown and text, a top-level "title" string of JSON, else the file
// name without extension.
func titleFor(kind config.CategoryType, rel, body string) string {
	switch kind {
	case config.CategoryMarkdown, config.CategoryText:
		if t, ok := chunk.Title(body); ok {
			return t
		}
	case config.CategoryJSON:
		var doc struct {
			Title string `json:"title"`
		}
		if json.Unmarshal([]byte(body), &doc) == nil && strings.TrimSpace(doc.Title) != "" {
			return strings.TrimSpace(doc.Title)
		}
	}
	base := filepath.Base(filepath.FromSlash(rel))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
