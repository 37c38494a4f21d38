package embed

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Aman-CERP/docindex/internal/config"
)

// New builds the embedder selected by cfg, wrapped in a cache. Provider
// "none" returns a nil Embedder: search then stays lexical.
func New(cfg config.EmbeddingConfig, logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var inner Embedder
	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama, "":
		inner = NewOllamaEmbedder(OllamaConfig{
			Host:    cfg.OllamaHost,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case ProviderStatic:
		inner = NewStaticEmbedder(cfg.Dimensions)
	case ProviderNone:
		logger.Info("embeddings disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (use ollama, static or none)", cfg.Provider)
	}

	logger.Info("embedder configured",
		slog.String("provider", cfg.Provider),
		slog.String("model", inner.ModelName()))
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
