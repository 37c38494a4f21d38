package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/pattern"
)

var categoryNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Validate checks the configuration and returns the first problem found.
// Categories are checked in name order so errors are deterministic.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return invalid("poll_interval must be positive, got %d", c.PollInterval)
	}
	if c.DataDir == "" {
		return invalid("data_dir must be set")
	}

	names := make([]string, 0, len(c.Categories))
	for name := range c.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := validateCategory(name, c.Categories[name]); err != nil {
			return err
		}
	}

	if c.Search.TopK <= 0 {
		return invalid("search.top_k must be positive, got %d", c.Search.TopK)
	}
	if c.Search.LexicalWeight < 0 || c.Search.LexicalWeight > 1 {
		return invalid("search.lexical_weight must be between 0 and 1, got %g", c.Search.LexicalWeight)
	}
	if c.Search.EmbedTimeout <= 0 {
		return invalid("search.embed_timeout must be positive")
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		return invalid("search.default_limit must be positive and not above max_limit")
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return invalid("server.port must be between 0 and 65535, got %d", c.Server.Port)
	}

	switch strings.ToLower(c.Store.Driver) {
	case "sqlite", "sqlite3":
	default:
		return invalid("store.driver must be 'sqlite' or 'sqlite3', got %q", c.Store.Driver)
	}
	switch strings.ToLower(c.Store.FTSBackend) {
	case "sqlite", "bleve":
	default:
		return invalid("store.fts_backend must be 'sqlite' or 'bleve', got %q", c.Store.FTSBackend)
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case "ollama", "static", "none":
	default:
		return invalid("embedding.provider must be 'ollama', 'static' or 'none', got %q", c.Embedding.Provider)
	}
	if c.Embedding.Concurrency <= 0 {
		return invalid("embedding.concurrency must be positive, got %d", c.Embedding.Concurrency)
	}
	if c.Embedding.MaxChunkChars <= 0 {
		return invalid("embedding.max_chunk_chars must be positive, got %d", c.Embedding.MaxChunkChars)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level)
	}

	return nil
}

func validateCategory(name string, cat CategoryConfig) error {
	if !categoryNameRe.MatchString(name) {
		return invalid("category name %q must match %s", name, categoryNameRe.String())
	}
	if cat.Path == "" {
		return invalid("categories.%s.path must be set", name).
			WithSuggestion(fmt.Sprintf("add 'path: ./%s' under categories.%s", name, name))
	}
	if cat.Pattern == "" {
		return invalid("categories.%s.pattern must be set", name)
	}
	if err := pattern.Validate(cat.Pattern); err != nil {
		return invalid("categories.%s.pattern is not a valid glob: %v", name, err)
	}
	if !cat.Type.Valid() {
		return invalid("categories.%s.type must be markdown, text, transcript or json, got %q", name, cat.Type)
	}
	return nil
}

func invalid(format string, args ...any) *dierrors.Error {
	return dierrors.ConfigError(fmt.Sprintf(format, args...), nil)
}
