package preflight

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/embed"
)

func TestCheckStatus_String(t *testing.T) {
	tests := []struct {
		status CheckStatus
		want   string
	}{
		{StatusPass, "PASS"},
		{StatusWarn, "WARN"},
		{StatusFail, "FAIL"},
		{CheckStatus(9), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestCheckResult_JSON(t *testing.T) {
	data, err := json.Marshal(CheckResult{Name: "disk_space", Status: StatusWarn})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"warn"`)
}

func TestCheckResult_IsCritical(t *testing.T) {
	tests := []struct {
		name   string
		result CheckResult
		want   bool
	}{
		{"required pass", CheckResult{Status: StatusPass, Required: true}, false},
		{"required fail", CheckResult{Status: StatusFail, Required: true}, true},
		{"optional fail", CheckResult{Status: StatusFail}, false},
		{"required warn", CheckResult{Status: StatusWarn, Required: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.IsCritical())
		})
	}
}

func TestChecker_SummaryStatus(t *testing.T) {
	c := New()

	assert.Equal(t, "ready", c.SummaryStatus([]CheckResult{{Status: StatusPass, Required: true}}))
	assert.Equal(t, "ready_with_warnings", c.SummaryStatus([]CheckResult{
		{Status: StatusPass, Required: true},
		{Status: StatusWarn},
	}))
	assert.Equal(t, "failed", c.SummaryStatus([]CheckResult{
		{Status: StatusWarn},
		{Status: StatusFail, Required: true},
	}))
	assert.False(t, c.HasCriticalFailures([]CheckResult{{Status: StatusFail}}))
	assert.True(t, c.HasCriticalFailures([]CheckResult{{Status: StatusFail, Required: true}}))
}

func TestChecker_CheckWritePermissions(t *testing.T) {
	// Given: a data directory that does not exist yet
	dir := filepath.Join(t.TempDir(), "data")

	// When: checking it
	result := New().CheckWritePermissions(dir)

	// Then: it is created and passes, leaving no scratch file behind
	assert.Equal(t, StatusPass, result.Status)
	assert.DirExists(t, dir)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestChecker_CheckWritePermissions_BlockedByFile(t *testing.T) {
	// Given: a data directory path whose parent is a regular file
	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0o644))

	// When: checking it
	result := New().CheckWritePermissions(filepath.Join(parent, "data"))

	// Then: the required check fails
	assert.Equal(t, StatusFail, result.Status)
	assert.True(t, result.IsCritical())
}

func TestChecker_CheckDiskSpace(t *testing.T) {
	result := New().CheckDiskSpace(t.TempDir())

	assert.Equal(t, "disk_space", result.Name)
	assert.Contains(t, result.Message, "free")

	missing := New().CheckDiskSpace(filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, StatusFail, missing.Status)
}

func TestChecker_CheckCategory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "note.md")
	require.NoError(t, os.WriteFile(file, []byte("# n"), 0o644))

	tests := []struct {
		name string
		path string
		want CheckStatus
	}{
		{"directory", root, StatusPass},
		{"missing", filepath.Join(root, "missing"), StatusFail},
		{"file", file, StatusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := New().CheckCategory("notes", config.CategoryConfig{Path: tt.path, Pattern: "*.md"})
			assert.Equal(t, "category:notes", result.Name)
			assert.Equal(t, tt.want, result.Status)
			assert.True(t, result.Required)
		})
	}
}

func TestChecker_CheckEmbedder(t *testing.T) {
	ctx := context.Background()
	c := New()

	// Given: no embedder
	// Then: a warning, not a failure
	none := c.CheckEmbedder(ctx, nil)
	assert.Equal(t, StatusWarn, none.Status)
	assert.False(t, none.IsCritical())

	// Given: the static embedder, which is always available
	e := embed.NewStaticEmbedder(32)
	got := c.CheckEmbedder(ctx, e)
	assert.Equal(t, StatusPass, got.Status)
	assert.Equal(t, e.ModelName(), got.Message)
}

func TestChecker_RunAll(t *testing.T) {
	// Given: a config with two categories, one missing
	root := t.TempDir()
	cfg := config.NewConfig()
	cfg.DataDir = filepath.Join(root, "data")
	cfg.Categories = map[string]config.CategoryConfig{
		"notes": {Path: root, Pattern: "*.md"},
		"gone":  {Path: filepath.Join(root, "gone"), Pattern: "*.md"},
	}

	// When: running all checks without an embedder
	c := New()
	results := c.RunAll(context.Background(), cfg, nil)

	// Then: system, category and embedder checks are reported in order
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	assert.Equal(t, []string{
		"write_permissions", "disk_space", "file_descriptors",
		"category:gone", "category:notes", "embedder",
	}, names)
	assert.True(t, c.HasCriticalFailures(results))
}

func TestChecker_PrintResults(t *testing.T) {
	var buf bytes.Buffer
	c := New(WithOutput(&buf))

	c.PrintResults([]CheckResult{
		{Name: "disk_space", Status: StatusPass, Message: "1.0 GB free", Required: true},
		{Name: "embedder", Status: StatusWarn, Message: "unavailable", Details: "start it"},
	})

	out := buf.String()
	assert.Contains(t, out, "[PASS] disk_space: 1.0 GB free")
	assert.Contains(t, out, "[WARN] embedder: unavailable")
	assert.Contains(t, out, "start it")
	assert.Contains(t, out, "Status: READY_WITH_WARNINGS")
}
