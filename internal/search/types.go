// Package search ranks documents for a query: lexical full-text search,
// hybrid re-ranking with embeddings, and nearest-neighbour semantic search.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Aman-CERP/docindex/internal/store"
)

// Mode selects the ranking strategy.
type Mode string

const (
	ModeLexical  Mode = "lexical"
	ModeHybrid   Mode = "hybrid"
	ModeSemantic Mode = "semantic"
)

// ParseMode parses a mode name. The empty string yields "" so the engine
// can apply its default.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeLexical, ModeHybrid, ModeSemantic:
		return m, nil
	default:
		return "", fmt.Errorf("unknown search mode %q (use lexical, hybrid or semantic)", s)
	}
}

// Request is one search.
type Request struct {
	Query    string
	Category string
	Limit    int
	Mode     Mode
}

// Response carries results and the mode that produced them. Degraded is
// set when embeddings were requested but unavailable and lexical ranking
// was used instead.
type Response struct {
	Results  []store.ScoredDocument
	Mode     Mode
	Degraded bool
}

// Config tunes the engine.
type Config struct {
	// Rerank makes hybrid the default mode.
	Rerank bool

	// TopK is the number of lexical candidates re-ranked in hybrid mode.
	TopK int

	// LexicalWeight is the weight of the normalized lexical score; the
	// cosine similarity gets 1 - LexicalWeight.
	LexicalWeight float64

	// EmbedTimeout bounds the query embedding call.
	EmbedTimeout time.Duration

	DefaultLimit int
	MaxLimit     int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Rerank:        true,
		TopK:          50,
		LexicalWeight: 0.65,
		EmbedTimeout:  2 * time.Second,
		DefaultLimit:  store.DefaultSearchLimit,
		MaxLimit:      100,
	}
}

// Store is the part of the store the engine reads.
type Store interface {
	SearchFTS(ctx context.Context, query string, limit int, category string) ([]store.ScoredDocument, error)
	GetEmbeddingsFor(ctx context.Context, hashes []string, model string) (map[string][][]float32, error)
	EachEmbedding(ctx context.Context, model string, fn func(store.Embedding) error) error
	CountEmbeddings(ctx context.Context, model string) (int, error)
	ActiveDocumentsByHash(ctx context.Context, hashes []string, category string) ([]store.Document, error)
	GetContent(ctx context.Context, hash string) (string, bool, error)
}

var _ Store = (*store.Store)(nil)
