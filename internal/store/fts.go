package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
)

// Full-text backends.
const (
	FTSBackendSQLite = "sqlite"
	FTSBackendBleve  = "bleve"
)

// hashScore is a full-text hit on a content blob. Higher scores are better.
type hashScore struct {
	hash  string
	score float64
}

// documentLookup resolves content hashes to the active documents holding
// them, optionally restricted to a category.
type documentLookup func(ctx context.Context, hashes []string, category string) ([]Document, error)

// textIndex indexes content bodies by hash. index is called inside the
// write transaction that inserted the content row; backends that live in
// the database use tx, others ignore it and must tolerate entries whose
// transaction later rolled back.
//
// search returns up to limit active documents matching any of terms,
// ordered by SortScored. The category and active filters apply before the
// limit, so old versions and other categories never crowd out a match.
type textIndex interface {
	name() string
	index(ctx context.Context, tx *sql.Tx, hash, body string) error
	search(ctx context.Context, lookup documentLookup, terms []string, limit int, category string) ([]ScoredDocument, error)
	count(ctx context.Context) (int, error)
	reset(ctx context.Context) error
	close() error
}

func newTextIndex(ctx context.Context, backend string, db *sql.DB, blevePath string, logger *slog.Logger) (textIndex, error) {
	switch strings.ToLower(backend) {
	case FTSBackendSQLite, "":
		return newSQLiteTextIndex(ctx, db)
	case FTSBackendBleve:
		return newBleveTextIndex(blevePath, logger)
	default:
		return nil, fmt.Errorf("unknown full-text backend %q (use sqlite or bleve)", backend)
	}
}

// stopWords are dropped from queries; they match nearly every document.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "how": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "this": {}, "to": {}, "was": {}, "what": {},
	"with": {},
}

// Tokenize lowercases text and splits it on anything that is not a letter
// or digit. Tokens shorter than two runes are dropped.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

// queryTerms tokenizes a user query, drops stop words and duplicates. If
// only stop words remain they are kept, so "the who" still searches.
func queryTerms(query string) []string {
	tokens := Tokenize(query)
	seen := make(map[string]struct{}, len(tokens))
	var terms []string
	for _, t := range tokens {
		if _, stop := stopWords[t]; stop {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	if len(terms) == 0 {
		for _, t := range tokens {
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				terms = append(terms, t)
			}
		}
	}
	return terms
}

// makeSnippet returns up to width runes of body around the first term hit.
func makeSnippet(body string, terms []string, width int) string {
	runes := []rune(body)
	if len(runes) == 0 {
		return ""
	}
	lower := []rune(strings.ToLower(body))

	start := 0
	for _, t := range terms {
		if i := indexRunes(lower, []rune(t)); i >= 0 {
			start = i - width/4
			break
		}
	}
	if start < 0 {
		start = 0
	}
	end := start + width
	if end > len(runes) {
		end = len(runes)
	}

	s := strings.Join(strings.Fields(string(runes[start:end])), " ")
	if start > 0 {
		s = "…" + s
	}
	if end < len(runes) {
		s += "…"
	}
	return s
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j := range needle {
			if haystack[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// Snippet returns a short excerpt of body around the first term of query.
func Snippet(body, query string) string {
	return makeSnippet(body, queryTerms(query), snippetWidth)
}
