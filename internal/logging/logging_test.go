package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestSetup_StderrOnlyWritesJSON(t *testing.T) {
	// Given: a config without a file
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Stderr = &buf

	// When: logging a record
	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	defer cleanup()
	logger.Info("poll complete", slog.String("category", "skills"), slog.Int("added", 2))

	// Then: one JSON line with our attributes
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "poll complete", rec["msg"])
	assert.Equal(t, "skills", rec["category"])
	assert.EqualValues(t, 2, rec["added"])
}

func TestSetup_LevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Stderr = &buf
	cfg.Format = "text"

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	defer cleanup()

	logger.Debug("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetup_WritesToFile(t *testing.T) {
	path := DefaultLogPath(t.TempDir())
	cfg := DefaultConfig()
	cfg.FilePath = path
	cfg.WriteToStderr = false

	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Info("server started")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "server started")
}

func TestSetup_CreatesLogDirectory(t *testing.T) {
	// Given: a log path whose parent directory does not exist
	path := filepath.Join(t.TempDir(), "nested", "logs", "server.log")
	cfg := DefaultConfig()
	cfg.FilePath = path
	cfg.WriteToStderr = false

	// When: logging a record
	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Warn("disk almost full", slog.Int("percent", 93))
	cleanup()

	// Then: the directory is created and the record lands in the file
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "disk almost full")
	assert.Contains(t, string(data), `"percent":93`)
}

func TestSetup_CleanupIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FilePath = filepath.Join(t.TempDir(), "a.log")
	cfg.WriteToStderr = false

	_, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		cleanup()
		cleanup()
	})
}
