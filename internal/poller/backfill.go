package poller

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docindex/internal/chunk"
	"github.com/Aman-CERP/docindex/internal/embed"
	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/store"
)

// Backfill embeds every active content hash that has no vectors for the
// embedder's model. Failures are counted and the hash is retried on the
// next backfill. When the embedder keeps failing a circuit breaker trips
// and the remaining hashes are skipped.
func (p *Poller) Backfill(ctx context.Context, e embed.Embedder, progress ProgressFunc) (BackfillResult, error) {
	var res BackfillResult
	if e == nil {
		return res, nil
	}

	hashes, err := p.store.GetHashesNeedingEmbeddingFor(ctx, e.ModelName())
	if err != nil {
		return res, err
	}
	if len(hashes) == 0 {
		return res, nil
	}

	p.logger.Info("embedding backfill started",
		slog.String("model", e.ModelName()),
		slog.Int("pending", len(hashes)))
	start := time.Now()

	breaker := dierrors.NewCircuitBreaker("backfill",
		dierrors.WithMaxFailures(3),
		dierrors.WithResetTimeout(time.Minute))

	var (
		mu       sync.Mutex
		done     atomic.Int64
		firstErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)

	for _, hash := range hashes {
		g.Go(func() error {
			defer func() {
				n := done.Add(1)
				if progress != nil {
					progress(int(n), len(hashes))
				}
			}()

			n, err := p.embedHash(gctx, e, breaker, hash)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && n == 0:
				res.Skipped++
			case err == nil:
				res.Embedded++
				res.Chunks += n
			case dierrors.GetCode(err) == dierrors.ErrCodeStorageIO:
				return err
			default:
				res.Failed++
				if firstErr == nil {
					firstErr = err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	p.logger.Info("embedding backfill finished",
		slog.Int("embedded", res.Embedded),
		slog.Int("chunks", res.Chunks),
		slog.Int("failed", res.Failed),
		slog.Duration("took", time.Since(start)))

	if res.Failed > 0 {
		return res, dierrors.New(dierrors.ErrCodeEmbeddingFailed,
			"some documents could not be embedded", firstErr)
	}
	return res, nil
}

// embedHash embeds one content body chunk by chunk and stores the vectors.
// It returns the number of chunks written, zero for blank bodies.
func (p *Poller) embedHash(ctx context.Context, e embed.Embedder, breaker *dierrors.CircuitBreaker, hash string) (int, error) {
	body, found, err := p.store.GetContent(ctx, hash)
	if err != nil {
		return 0, err
	}
	if !found || strings.TrimSpace(body) == "" {
		return 0, nil
	}

	chunks := chunk.Split(body, p.opts.MaxChunkChars)
	if len(chunks) == 0 {
		return 0, nil
	}

	vecs, err := dierrors.CircuitExecute(breaker, func() ([][]float32, error) {
		ectx, cancel := context.WithTimeout(ctx, p.opts.EmbedTimeout)
		defer cancel()
		return e.EmbedBatch(ectx, chunks)
	})
	if err != nil {
		return 0, dierrors.New(dierrors.ErrCodeEmbeddingFailed, "embed content", err).
			WithDetail("hash", hash)
	}

	embs := make([]store.Embedding, 0, len(vecs))
	for i, v := range vecs {
		embs = append(embs, store.Embedding{Hash: hash, ChunkIndex: i, Model: e.ModelName(), Vector: v})
	}
	if err := p.store.InsertEmbeddings(ctx, embs); err != nil {
		return 0, err
	}
	return len(embs), nil
}
