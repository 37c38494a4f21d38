package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/configs"
	"github.com/Aman-CERP/docindex/pkg/version"
)

// writeConfig creates a config with one Markdown category and returns its
// path and the category directory.
func writeConfig(t *testing.T, provider string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	docs := filepath.Join(dir, "skills")
	require.NoError(t, os.MkdirAll(docs, 0o755))

	cfg := fmt.Sprintf(`version: 1
data_dir: %s
categories:
  skills:
    path: %s
    pattern: "*.md"
    type: markdown
search:
  rerank: false
embedding:
  provider: %s
  dimensions: 32
watch:
  enabled: false
`, filepath.Join(dir, "data"), docs, provider)
	path := filepath.Join(dir, "docindex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path, docs
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(append(args, "--no-color"))
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "docindex "+version.Version)

	out, err = run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))

	out, err = run(t, "version", "--json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestInitCmd(t *testing.T) {
	// Given: an empty directory
	dir := t.TempDir()

	// When: init runs
	out, err := run(t, "init", dir)

	// Then: the template is written
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")
	data, err := os.ReadFile(filepath.Join(dir, "docindex.yaml"))
	require.NoError(t, err)
	assert.Equal(t, configs.DefaultConfigTemplate, string(data))

	// And: a second init refuses to overwrite without --force
	_, err = run(t, "init", dir)
	require.Error(t, err)
	_, err = run(t, "init", dir, "--force")
	require.NoError(t, err)
}

func TestPollSearchStatus(t *testing.T) {
	// Given: a config with two documents on disk
	cfgPath, docs := writeConfig(t, "none")
	require.NoError(t, os.WriteFile(filepath.Join(docs, "hue.md"),
		[]byte("# Hue\n\nControl smart lights via Hue bridge"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "audio.md"),
		[]byte("# Audio\n\nRoute audio to the living room speakers"), 0o644))

	// When: the categories are polled
	out, err := run(t, "poll", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "skills: 2 added, 0 updated, 0 removed, 0 unchanged")

	// Then: search finds the Hue document
	out, err = run(t, "search", "--config", cfgPath, "--json", "hue", "bridge")
	require.NoError(t, err)
	var sr struct {
		Query   string `json:"query"`
		Mode    string `json:"mode"`
		Results []struct {
			Path  string `json:"path"`
			Title string `json:"title"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &sr))
	assert.Equal(t, "hue bridge", sr.Query)
	assert.Equal(t, "lexical", sr.Mode)
	require.NotEmpty(t, sr.Results)
	assert.Equal(t, "hue.md", sr.Results[0].Path)
	assert.Equal(t, "Hue", sr.Results[0].Title)

	// And: status reports the counts
	out, err = run(t, "status", "--config", cfgPath, "--json")
	require.NoError(t, err)
	var st statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 2, st.TotalDocs)
	assert.Equal(t, map[string]int{"skills": 2}, st.Categories)
	assert.False(t, st.DaemonRunning)
}

func TestPollUnknownCategory(t *testing.T) {
	cfgPath, _ := writeConfig(t, "none")
	_, err := run(t, "poll", "--config", cfgPath, "nope")
	assert.Error(t, err)
}

func TestIndexCmd(t *testing.T) {
	cfgPath, _ := writeConfig(t, "none")
	src := filepath.Join(t.TempDir(), "note.md")
	require.NoError(t, os.WriteFile(src, []byte("# Garden\n\nWater the tomatoes"), 0o644))

	out, err := run(t, "index", "--config", cfgPath, "notes", "garden.md", src)
	require.NoError(t, err)
	assert.Contains(t, out, "added notes/garden.md")

	out, err = run(t, "index", "--config", cfgPath, "notes", "garden.md", src)
	require.NoError(t, err)
	assert.Contains(t, out, "unchanged notes/garden.md")

	out, err = run(t, "search", "--config", cfgPath, "tomatoes")
	require.NoError(t, err)
	assert.Contains(t, out, "Garden")
}

func TestEmbedCmd(t *testing.T) {
	// Given: polled documents and the offline embedder
	cfgPath, docs := writeConfig(t, "static")
	require.NoError(t, os.WriteFile(filepath.Join(docs, "a.md"), []byte("alpha words"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "b.md"), []byte("beta words"), 0o644))
	_, err := run(t, "poll", "--config", cfgPath)
	require.NoError(t, err)

	// When: embed runs
	out, err := run(t, "embed", "--config", cfgPath, "--plain")

	// Then: both documents are embedded
	require.NoError(t, err)
	assert.Contains(t, out, "Complete: 2 documents")

	out, err = run(t, "status", "--config", cfgPath, "--json")
	require.NoError(t, err)
	var st statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 2, st.Embeddings)
	assert.Equal(t, "static-32", st.EmbedModel)
}

func TestEmbedCmd_NoProvider(t *testing.T) {
	cfgPath, _ := writeConfig(t, "none")
	_, err := run(t, "embed", "--config", cfgPath)
	assert.Error(t, err)
}

func TestSearchCmd_BadMode(t *testing.T) {
	cfgPath, _ := writeConfig(t, "none")
	_, err := run(t, "search", "--config", cfgPath, "--mode", "fuzzy", "x")
	assert.Error(t, err)
}

func TestDoctorCmd(t *testing.T) {
	// Given: a config whose category root exists
	cfgPath, docs := writeConfig(t, "static")

	// When: running doctor as JSON
	out, _ := run(t, "doctor", "--config", cfgPath, "--json")

	// Then: every check is reported and the category passes
	var rep struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	statuses := map[string]string{}
	for _, c := range rep.Checks {
		statuses[c.Name] = c.Status
	}
	assert.Equal(t, "pass", statuses["category:skills"])
	assert.Equal(t, "pass", statuses["embedder"])
	assert.Equal(t, "pass", statuses["write_permissions"])

	// Given: the category root is removed
	require.NoError(t, os.RemoveAll(docs))

	// When: running doctor again
	out, err := run(t, "doctor", "--config", cfgPath)

	// Then: it fails and names the category
	assert.Error(t, err)
	assert.Contains(t, out, "[FAIL] category:skills")
}
