// Package store is the durable, content-addressed persistence layer of
// docindex: deduplicated content blobs, versioned document pointers,
// cached embedding vectors, and a full-text index over content bodies.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("store is closed")

// DefaultSearchLimit is used when a search is issued with limit <= 0.
const DefaultSearchLimit = 10

// Document is a named, versioned pointer to a content blob.
type Document struct {
	ID       int64  `json:"id"`
	Category string `json:"category"`
	Path     string `json:"path"`
	Title    string `json:"title"`
	Hash     string `json:"hash"`
	// Mtime is the source file modification time in epoch milliseconds.
	Mtime  int64 `json:"mtime"`
	Active bool  `json:"active"`
}

// ScoredDocument is a search hit. Score is the ranking score; the component
// scores are kept so callers can explain or re-rank results.
type ScoredDocument struct {
	ID            int64    `json:"id"`
	Category      string   `json:"category"`
	Path          string   `json:"path"`
	Title         string   `json:"title"`
	Hash          string   `json:"hash"`
	Mtime         int64    `json:"mtime"`
	Score         float64  `json:"score"`
	LexicalScore  float64  `json:"lexical_score"`
	SemanticScore *float64 `json:"semantic_score,omitempty"`
	Snippet       string   `json:"snippet,omitempty"`
}

// Status summarizes active documents.
type Status struct {
	TotalDocs  int            `json:"total_docs"`
	Categories map[string]int `json:"categories"`
}

// Action describes what UpsertDocument did.
type Action string

const (
	ActionAdded     Action = "added"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// UpsertInput is one document version to insert or update.
type UpsertInput struct {
	Category string
	Path     string
	Title    string
	Body     string
	Mtime    int64
}

// UpsertResult reports the outcome of UpsertDocument.
type UpsertResult struct {
	ID     int64  `json:"id"`
	Hash   string `json:"hash"`
	Action Action `json:"action"`
}

// HashContent returns the lowercase hex SHA-256 of b.
func HashContent(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
