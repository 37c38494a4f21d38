// Package poller keeps the store in step with the category directories on
// disk. Each poll hashes matching files, upserts what changed and
// deactivates documents whose files are gone.
package poller

import (
	"context"
	"time"

	"github.com/Aman-CERP/docindex/internal/embed"
	"github.com/Aman-CERP/docindex/internal/store"
)

// Defaults.
const (
	DefaultInterval      = 60 * time.Second
	DefaultMaxFileBytes  = 10 << 20
	DefaultConcurrency   = 4
	DefaultEmbedTimeout  = 30 * time.Second
	DefaultMaxChunkChars = 2000
)

// PollResult counts what one poll of one category changed.
type PollResult struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Removed   int `json:"removed"`
	Unchanged int `json:"unchanged"`

	// Errors counts files that could not be read; they are treated as
	// absent for this poll.
	Errors int `json:"errors"`

	Duration time.Duration `json:"duration"`
}

// Changed reports whether the poll modified the store.
func (r PollResult) Changed() bool {
	return r.Added+r.Updated+r.Removed > 0
}

// BackfillResult summarizes an embedding backfill.
type BackfillResult struct {
	Embedded int `json:"embedded"`
	Chunks   int `json:"chunks"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// Listener is called after each category of an automatic poll cycle.
type Listener func(category string, r PollResult)

// ProgressFunc reports backfill progress.
type ProgressFunc func(done, total int)

// Store is the part of the store the poller writes through.
type Store interface {
	UpsertDocument(ctx context.Context, in store.UpsertInput) (store.UpsertResult, error)
	GetAllActivePaths(ctx context.Context, category string) ([]string, error)
	DeactivatePaths(ctx context.Context, category string, paths []string) (int, error)
	GetHashesNeedingEmbeddingFor(ctx context.Context, model string) ([]string, error)
	GetContent(ctx context.Context, hash string) (string, bool, error)
	InsertEmbeddings(ctx context.Context, embs []store.Embedding) error
}

var _ Store = (*store.Store)(nil)

// Options configures a Poller.
type Options struct {
	Interval time.Duration

	// Embedder, when set, is used to backfill embeddings in the
	// background after the first automatic cycle and after cycles that
	// changed something.
	Embedder embed.Embedder

	EmbedTimeout  time.Duration
	Concurrency   int
	MaxChunkChars int

	// MaxFileBytes skips larger files.
	MaxFileBytes int64
}
