// Package config loads and validates docindex configuration.
//
// Precedence, lowest to highest:
//  1. Defaults (NewConfig)
//  2. Config file (--config, ./docindex.yaml, or the user config dir)
//  3. .env next to the config file (never overrides variables already set)
//  4. DOCINDEX_* environment variables
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	dierrors "github.com/Aman-CERP/docindex/internal/errors"
)

// FileName is the config file looked up in the working directory.
const FileName = "docindex.yaml"

// CategoryType enumerates the document kinds a category may hold.
type CategoryType string

const (
	CategoryMarkdown   CategoryType = "markdown"
	CategoryText       CategoryType = "text"
	CategoryTranscript CategoryType = "transcript"
	CategoryJSON       CategoryType = "json"
)

// Valid reports whether t is one of the known category types.
func (t CategoryType) Valid() bool {
	switch t {
	case CategoryMarkdown, CategoryText, CategoryTranscript, CategoryJSON:
		return true
	}
	return false
}

// Config is the complete docindex configuration.
type Config struct {
	Version int `yaml:"version"`

	// DataDir holds the database, lock, pid and log files.
	DataDir string `yaml:"data_dir"`

	// PollInterval is the poll period in seconds.
	PollInterval int `yaml:"poll_interval"`

	Categories map[string]CategoryConfig `yaml:"categories"`
	Search     SearchConfig              `yaml:"search"`
	Server     ServerConfig              `yaml:"server"`
	Store      StoreConfig               `yaml:"store"`
	Embedding  EmbeddingConfig           `yaml:"embedding"`
	Watch      WatchConfig               `yaml:"watch"`
	Logging    LoggingConfig             `yaml:"logging"`

	// path is the file the config was loaded from, if any.
	path string
}

// CategoryConfig describes one synchronized directory.
type CategoryConfig struct {
	Path    string       `yaml:"path"`
	Pattern string       `yaml:"pattern"`
	Type    CategoryType `yaml:"type"`
}

// SearchConfig configures query behaviour.
type SearchConfig struct {
	// Rerank enables hybrid re-ranking with embeddings.
	Rerank bool `yaml:"rerank"`

	// TopK is the number of lexical candidates considered for re-ranking.
	TopK int `yaml:"top_k"`

	// LexicalWeight is the share of the normalized lexical score in the
	// combined hybrid score; the rest goes to cosine similarity.
	LexicalWeight float64 `yaml:"lexical_weight"`

	// EmbedTimeout bounds query embedding before falling back to lexical.
	EmbedTimeout time.Duration `yaml:"embed_timeout"`

	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StoreConfig selects the database driver and full-text backend.
type StoreConfig struct {
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `yaml:"driver"`

	// FTSBackend is "sqlite" (FTS5) or "bleve".
	FTSBackend string `yaml:"fts_backend"`
}

// EmbeddingConfig configures the embedding provider used for re-ranking.
type EmbeddingConfig struct {
	// Provider is "ollama", "static" or "none".
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	OllamaHost string `yaml:"ollama_host"`

	// Dimensions is used by the static provider.
	Dimensions int `yaml:"dimensions"`

	Timeout       time.Duration `yaml:"timeout"`
	CacheSize     int           `yaml:"cache_size"`
	Concurrency   int           `yaml:"concurrency"`
	MaxChunkChars int           `yaml:"max_chunk_chars"`
}

// WatchConfig configures filesystem notifications.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxFiles   int    `yaml:"max_files"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version:      1,
		DataDir:      defaultDataDir(),
		PollInterval: 60,
		Categories:   map[string]CategoryConfig{},
		Search: SearchConfig{
			Rerank:        true,
			TopK:          50,
			LexicalWeight: 0.65,
			EmbedTimeout:  2 * time.Second,
			DefaultLimit:  10,
			MaxLimit:      100,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            7878,
			ShutdownTimeout: 5 * time.Second,
		},
		Store: StoreConfig{
			Driver:     "sqlite",
			FTSBackend: "sqlite",
		},
		Embedding: EmbeddingConfig{
			Provider:      "ollama",
			Model:         "nomic-embed-text",
			OllamaHost:    "http://localhost:11434",
			Dimensions:    256,
			Timeout:       30 * time.Second,
			CacheSize:     1024,
			Concurrency:   4,
			MaxChunkChars: 2000,
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "json",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docindex")
	}
	return filepath.Join(home, ".docindex")
}

// UserConfigPath returns <user config dir>/docindex/config.yaml.
func UserConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "docindex", "config.yaml")
}

// Load resolves the config file, applies .env and environment overrides,
// and validates the result. An explicit path must exist; without one the
// working directory and then the user config dir are tried, and defaults
// are used when neither has a file.
func Load(explicit string) (*Config, error) {
	path, err := resolvePath(explicit)
	if err != nil {
		return nil, err
	}

	cfg := NewConfig()
	baseDir, _ := os.Getwd()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, dierrors.New(dierrors.ErrCodeConfigNotFound,
				fmt.Sprintf("read config file %s", path), err)
		}
		baseDir = filepath.Dir(path)
		if err := cfg.decode(bytes.NewReader(data), path); err != nil {
			return nil, err
		}
		cfg.path = path
	}

	if err := loadDotEnv(baseDir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()
	cfg.resolvePaths(baseDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults, resolves relative category paths
// against baseDir and validates. Environment variables are not consulted.
func Parse(data []byte, baseDir string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.decode(bytes.NewReader(data), "<input>"); err != nil {
		return nil, err
	}
	cfg.resolvePaths(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolvePath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", dierrors.New(dierrors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file not found: %s", explicit), err).
				WithSuggestion("run 'docindex init' to create one")
		}
		return filepath.Abs(explicit)
	}

	if _, err := os.Stat(FileName); err == nil {
		return filepath.Abs(FileName)
	}
	if p := UserConfigPath(); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// decode overlays YAML onto c. Unknown keys are rejected.
func (c *Config) decode(r io.Reader, name string) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return dierrors.ConfigError(fmt.Sprintf("parse config file %s: %v", name, err), err)
	}
	if c.Categories == nil {
		c.Categories = map[string]CategoryConfig{}
	}
	return nil
}

func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return dierrors.ConfigError(fmt.Sprintf("load %s", path), err)
	}
	return nil
}

// resolvePaths expands ~ and makes category and data paths absolute.
func (c *Config) resolvePaths(baseDir string) {
	c.DataDir = absPath(c.DataDir, baseDir)
	if c.Logging.File != "" {
		c.Logging.File = absPath(c.Logging.File, c.DataDir)
	}
	for name, cat := range c.Categories {
		cat.Path = absPath(cat.Path, baseDir)
		c.Categories[name] = cat
	}
}

func absPath(p, baseDir string) string {
	if p == "" {
		return p
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if !filepath.IsAbs(p) && baseDir != "" {
		p = filepath.Join(baseDir, p)
	}
	return filepath.Clean(p)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCINDEX_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("DOCINDEX_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("DOCINDEX_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("DOCINDEX_POLL_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.PollInterval = n
		}
	}
	if v := os.Getenv("DOCINDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DOCINDEX_OLLAMA_HOST"); v != "" {
		c.Embedding.OllamaHost = v
	}
	if v := os.Getenv("DOCINDEX_EMBED_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("DOCINDEX_EMBED_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("DOCINDEX_RERANK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Search.Rerank = b
		}
	}
	if v := os.Getenv("DOCINDEX_FTS_BACKEND"); v != "" {
		c.Store.FTSBackend = v
	}
}

// Path returns the file the config was loaded from, or "".
func (c *Config) Path() string {
	return c.path
}

// PollEvery returns the poll interval as a duration.
func (c *Config) PollEvery() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DatabasePath returns the SQLite file inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "docindex.db")
}

// BlevePath returns the bleve index directory inside DataDir.
func (c *Config) BlevePath() string {
	return filepath.Join(c.DataDir, "fts.bleve")
}

// WriteYAML writes the config to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
