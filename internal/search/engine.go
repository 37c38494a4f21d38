package search

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/docindex/internal/embed"
	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/store"
)

// semanticOverfetch widens nearest-neighbour search because several chunks
// of one blob, and blobs outside the category, collapse in the join.
const semanticOverfetch = 4

// Engine answers queries against a Store. It holds no document state of
// its own apart from the semantic graph, which is derived data.
type Engine struct {
	store    Store
	embedder embed.Embedder
	config   Config
	logger   *slog.Logger
	breaker  *dierrors.CircuitBreaker
	vectors  vectorIndex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCircuitBreaker replaces the breaker guarding the embedder.
func WithCircuitBreaker(cb *dierrors.CircuitBreaker) Option {
	return func(e *Engine) {
		if cb != nil {
			e.breaker = cb
		}
	}
}

// New returns an engine. embedder may be nil, in which case hybrid and
// semantic searches are served lexically.
func New(st Store, embedder embed.Embedder, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.LexicalWeight < 0 || cfg.LexicalWeight > 1 {
		cfg.LexicalWeight = def.LexicalWeight
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = def.EmbedTimeout
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}

	e := &Engine{
		store:    st,
		embedder: embedder,
		config:   cfg,
		logger:   slog.Default(),
		breaker:  dierrors.NewCircuitBreaker("embedder"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultMode is hybrid when re-ranking is enabled, lexical otherwise.
func (e *Engine) DefaultMode() Mode {
	if e.config.Rerank {
		return ModeHybrid
	}
	return ModeLexical
}

func (e *Engine) limit(n int) int {
	if n <= 0 {
		return e.config.DefaultLimit
	}
	return min(n, e.config.MaxLimit)
}

// Search dispatches req by mode.
func (e *Engine) Search(ctx context.Context, req Request) (Response, error) {
	mode := req.Mode
	if mode == "" {
		mode = e.DefaultMode()
	}
	limit := e.limit(req.Limit)

	var (
		results  []store.ScoredDocument
		degraded bool
		err      error
	)
	switch mode {
	case ModeHybrid:
		results, degraded, err = e.hybrid(ctx, req.Query, limit, req.Category)
	case ModeSemantic:
		results, degraded, err = e.semantic(ctx, req.Query, limit, req.Category)
	default:
		mode = ModeLexical
		results, err = e.SearchFTS(ctx, req.Query, limit, req.Category)
	}
	if err != nil {
		return Response{}, err
	}
	if results == nil {
		results = []store.ScoredDocument{}
	}
	return Response{Results: results, Mode: mode, Degraded: degraded}, nil
}

// SearchFTS is plain lexical search.
func (e *Engine) SearchFTS(ctx context.Context, query string, limit int, category string) ([]store.ScoredDocument, error) {
	return e.store.SearchFTS(ctx, query, e.limit(limit), category)
}

// SearchHybrid re-ranks lexical candidates with embedding similarity. If
// the query cannot be embedded in time the lexical ranking is returned.
func (e *Engine) SearchHybrid(ctx context.Context, query string, limit int, category string) ([]store.ScoredDocument, error) {
	results, _, err := e.hybrid(ctx, query, e.limit(limit), category)
	return results, err
}

// SearchSemantic returns the nearest documents by embedding. If the query
// cannot be embedded it falls back to lexical search.
func (e *Engine) SearchSemantic(ctx context.Context, query string, limit int, category string) ([]store.ScoredDocument, error) {
	results, _, err := e.semantic(ctx, query, e.limit(limit), category)
	return results, err
}

func (e *Engine) hybrid(ctx context.Context, query string, limit int, category string) ([]store.ScoredDocument, bool, error) {
	candidates, err := e.store.SearchFTS(ctx, query, max(e.config.TopK, limit), category)
	if err != nil {
		return nil, false, err
	}
	if len(candidates) == 0 {
		return candidates, false, nil
	}

	qvec, err := e.embedQuery(ctx, query)
	if err != nil {
		return truncate(candidates, limit), true, nil
	}

	hashes := make([]string, 0, len(candidates))
	for _, c := range candidates {
		hashes = append(hashes, c.Hash)
	}
	vectors, err := e.store.GetEmbeddingsFor(ctx, hashes, e.embedder.ModelName())
	if err != nil {
		return nil, false, err
	}
	return truncate(fuse(candidates, qvec, vectors, e.config.LexicalWeight), limit), false, nil
}

func (e *Engine) semantic(ctx context.Context, query string, limit int, category string) ([]store.ScoredDocument, bool, error) {
	qvec, err := e.embedQuery(ctx, query)
	if err != nil {
		results, err := e.store.SearchFTS(ctx, query, limit, category)
		return results, true, err
	}

	if err := e.vectors.ensure(ctx, e.store, e.embedder.ModelName()); err != nil {
		return nil, false, err
	}
	hits := e.vectors.search(qvec, limit*semanticOverfetch)
	if len(hits) == 0 {
		return []store.ScoredDocument{}, false, nil
	}

	scores := make(map[string]float64, len(hits))
	hashes := make([]string, 0, len(hits))
	for _, h := range hits {
		scores[h.hash] = h.score
		hashes = append(hashes, h.hash)
	}
	docs, err := e.store.ActiveDocumentsByHash(ctx, hashes, category)
	if err != nil {
		return nil, false, err
	}

	results := make([]store.ScoredDocument, 0, len(docs))
	for _, d := range docs {
		sim := scores[d.Hash]
		results = append(results, store.ScoredDocument{
			ID:            d.ID,
			Category:      d.Category,
			Path:          d.Path,
			Title:         d.Title,
			Hash:          d.Hash,
			Mtime:         d.Mtime,
			Score:         sim,
			SemanticScore: &sim,
		})
	}
	store.SortScored(results)
	results = truncate(results, limit)

	for i := range results {
		body, found, err := e.store.GetContent(ctx, results[i].Hash)
		if err != nil {
			return nil, false, err
		}
		if found {
			results[i].Snippet = store.Snippet(body, query)
		}
	}
	return results, false, nil
}

// embedQuery embeds query under EmbedTimeout through the circuit breaker.
// Failures are logged and reported as UpstreamUnavailable.
func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if e.embedder == nil {
		return nil, dierrors.UpstreamUnavailable("no embedder configured", nil)
	}

	start := time.Now()
	vec, err := dierrors.CircuitExecute(e.breaker, func() ([]float32, error) {
		ctx, cancel := context.WithTimeout(ctx, e.config.EmbedTimeout)
		defer cancel()
		return e.embedder.Embed(ctx, query)
	})
	if err == nil && len(vec) == 0 {
		err = dierrors.New(dierrors.ErrCodeEmbeddingFailed, "empty query embedding", nil)
	}
	if err != nil {
		e.logger.Warn("query embedding unavailable, using lexical ranking",
			slog.String("model", e.embedder.ModelName()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("circuit", e.breaker.State().String()),
			slog.String("error", err.Error()))
		if _, ok := dierrors.As(err); !ok {
			err = dierrors.UpstreamUnavailable("embed query", err)
		}
		return nil, err
	}
	return vec, nil
}

// VectorCount returns the number of vectors in the semantic graph.
func (e *Engine) VectorCount() int {
	return e.vectors.len()
}

func truncate(docs []store.ScoredDocument, n int) []store.ScoredDocument {
	if len(docs) > n {
		return docs[:n]
	}
	return docs
}
