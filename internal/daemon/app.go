// Package daemon wires the store, search engine, poller, watcher and HTTP
// server together and runs them as one long-lived process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/embed"
	"github.com/Aman-CERP/docindex/internal/poller"
	"github.com/Aman-CERP/docindex/internal/search"
	"github.com/Aman-CERP/docindex/internal/store"
)

// App holds the components shared by the daemon and one-shot commands.
type App struct {
	Config   *config.Config
	Store    *store.Store
	Embedder embed.Embedder
	Engine   *search.Engine
	Poller   *poller.Poller
	Logger   *slog.Logger
}

// Open builds every component from cfg. The caller must Close the App.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	opts := store.Options{
		Path:       cfg.DatabasePath(),
		Driver:     cfg.Store.Driver,
		FTSBackend: cfg.Store.FTSBackend,
		Logger:     logger.With(slog.String("component", "store")),
	}
	if opts.FTSBackend == store.FTSBackendBleve {
		opts.FTSPath = cfg.BlevePath()
	}
	st, err := store.Open(ctx, opts)
	if err != nil {
		return nil, err
	}

	embedder, err := embed.New(cfg.Embedding, logger.With(slog.String("component", "embed")))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	engine := search.New(st, embedder, search.Config{
		Rerank:        cfg.Search.Rerank,
		TopK:          cfg.Search.TopK,
		LexicalWeight: cfg.Search.LexicalWeight,
		EmbedTimeout:  cfg.Search.EmbedTimeout,
		DefaultLimit:  cfg.Search.DefaultLimit,
		MaxLimit:      cfg.Search.MaxLimit,
	}, search.WithLogger(logger.With(slog.String("component", "search"))))

	popts := poller.Options{
		Interval:      cfg.PollEvery(),
		EmbedTimeout:  cfg.Embedding.Timeout,
		Concurrency:   cfg.Embedding.Concurrency,
		MaxChunkChars: cfg.Embedding.MaxChunkChars,
	}
	// Backfill only runs when vectors will be used for ranking.
	if cfg.Search.Rerank && embedder != nil {
		popts.Embedder = embedder
	}
	p, err := poller.New(st, cfg.Categories, popts, logger.With(slog.String("component", "poller")))
	if err != nil {
		if embedder != nil {
			_ = embedder.Close()
		}
		_ = st.Close()
		return nil, err
	}

	return &App{
		Config:   cfg,
		Store:    st,
		Embedder: embedder,
		Engine:   engine,
		Poller:   p,
		Logger:   logger,
	}, nil
}

// Close stops the poller and releases the embedder and store.
func (a *App) Close() error {
	a.Poller.Stop()
	var errs []error
	if a.Embedder != nil {
		errs = append(errs, a.Embedder.Close())
	}
	errs = append(errs, a.Store.Close())
	return errors.Join(errs...)
}
