package poller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/embed"
	"github.com/Aman-CERP/docindex/internal/logging"
	"github.com/Aman-CERP/docindex/internal/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Options{Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newPoller(t *testing.T, s *store.Store, cats map[string]config.CategoryConfig, opts Options) *Poller {
	t.Helper()
	p, err := New(s, cats, opts, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(p.Stop)
	return p
}

func writeFile(t *testing.T, dir, rel, body string) {
	t.Helper()
	abs := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(body), 0o644))
}

func notes(dir string) map[string]config.CategoryConfig {
	return map[string]config.CategoryConfig{
		"notes": {Path: dir, Pattern: "*.md", Type: config.CategoryMarkdown},
	}
}

func TestPollCategory_AddUpdateRemove(t *testing.T) {
	// Given: a category with two Markdown files and one ignored by pattern
	dir := t.TempDir()
	writeFile(t, dir, "hue.md", "# Hue\n\nControl smart lights via Hue bridge")
	writeFile(t, dir, "sub/audio.md", "# Audio\n\nRoute audio to the living room speakers")
	writeFile(t, dir, "readme.txt", "not matched")

	s := newStore(t)
	p := newPoller(t, s, notes(dir), Options{})
	ctx := context.Background()

	// When: the category is polled
	res, ok, err := p.PollCategory(ctx, "notes")

	// Then: both Markdown files are added
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 0, res.Removed)

	doc, found, err := s.FindDocument(ctx, "notes", "sub/audio.md")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Audio", doc.Title)

	// When: one file changes and the other is deleted
	writeFile(t, dir, "hue.md", "# Hue\n\nControl smart lights via the Hue bridge v2")
	require.NoError(t, os.Remove(filepath.Join(dir, "sub", "audio.md")))
	res, _, err = p.PollCategory(ctx, "notes")

	// Then: the change and the removal are reported
	require.NoError(t, err)
	assert.Equal(t, PollResult{Updated: 1, Removed: 1, Duration: res.Duration}, res)

	_, found, err = s.FindDocument(ctx, "notes", "sub/audio.md")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPollCategory_Converges(t *testing.T) {
	// Given: a category that has been polled once
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "alpha")
	writeFile(t, dir, "b.md", "beta")
	p := newPoller(t, newStore(t), notes(dir), Options{})
	ctx := context.Background()
	_, _, err := p.PollCategory(ctx, "notes")
	require.NoError(t, err)

	// When: it is polled again without changes on disk
	res, _, err := p.PollCategory(ctx, "notes")

	// Then: nothing is added, updated or removed
	require.NoError(t, err)
	assert.False(t, res.Changed())
	assert.Equal(t, 2, res.Unchanged)
}

func TestPollCategory_EmptiedDirectoryRemovesAll(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.md", "b.md", "c.md"} {
		writeFile(t, dir, name, "body of "+name)
	}
	s := newStore(t)
	p := newPoller(t, s, notes(dir), Options{})
	ctx := context.Background()
	_, _, err := p.PollCategory(ctx, "notes")
	require.NoError(t, err)

	for _, name := range []string{"a.md", "b.md", "c.md"} {
		require.NoError(t, os.Remove(filepath.Join(dir, name)))
	}
	res, _, err := p.PollCategory(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Removed)

	st, err := s.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, st.TotalDocs)
}

func TestPollCategory_SharedContent(t *testing.T) {
	// Given: two files with identical bodies
	dir := t.TempDir()
	writeFile(t, dir, "one.md", "same words")
	writeFile(t, dir, "two.md", "same words")
	s := newStore(t)
	p := newPoller(t, s, notes(dir), Options{})
	ctx := context.Background()

	// When: polled
	res, _, err := p.PollCategory(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)

	// Then: both documents point at the same hash
	one, _, err := s.FindDocument(ctx, "notes", "one.md")
	require.NoError(t, err)
	two, _, err := s.FindDocument(ctx, "notes", "two.md")
	require.NoError(t, err)
	assert.Equal(t, one.Hash, two.Hash)
}

func TestPollCategory_UnknownCategory(t *testing.T) {
	p := newPoller(t, newStore(t), notes(t.TempDir()), Options{})

	res, ok, err := p.PollCategory(context.Background(), "missing")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, PollResult{}, res)
}

func TestPollCategory_MissingRootKeepsDocuments(t *testing.T) {
	// Given: a polled category whose directory then disappears
	dir := filepath.Join(t.TempDir(), "notes")
	writeFile(t, dir, "a.md", "alpha")
	s := newStore(t)
	p := newPoller(t, s, notes(dir), Options{})
	ctx := context.Background()
	_, _, err := p.PollCategory(ctx, "notes")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	// When: polled again
	_, ok, err := p.PollCategory(ctx, "notes")

	// Then: the poll fails and nothing is deactivated
	require.Error(t, err)
	assert.True(t, ok)
	_, found, err := s.FindDocument(ctx, "notes", "a.md")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestPollCategory_UnreadableFileTreatedAsAbsent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "alpha")
	writeFile(t, dir, "b.md", "beta")
	s := newStore(t)
	p := newPoller(t, s, notes(dir), Options{})
	ctx := context.Background()
	_, _, err := p.PollCategory(ctx, "notes")
	require.NoError(t, err)

	// When: one file stops being valid UTF-8
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte{0xff, 0xfe, 0xfd}, 0o644))
	res, _, err := p.PollCategory(ctx, "notes")

	// Then: it is counted as an error and its document is removed
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, 1, res.Unchanged)
}

func TestPollCategory_MaxFileBytes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "small.md", "tiny")
	writeFile(t, dir, "large.md", "this body is longer than the limit")
	p := newPoller(t, newStore(t), notes(dir), Options{MaxFileBytes: 10})

	res, _, err := p.PollCategory(context.Background(), "notes")

	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Errors)
}

func TestPollCategory_IgnoreFileAndHidden(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".docindexignore", "drafts/\n*.tmp.md\n")
	writeFile(t, dir, "keep.md", "kept")
	writeFile(t, dir, "drafts/wip.md", "draft")
	writeFile(t, dir, "scratch.tmp.md", "scratch")
	writeFile(t, dir, ".hidden/secret.md", "secret")
	writeFile(t, dir, ".dot.md", "dot")
	s := newStore(t)
	p := newPoller(t, s, notes(dir), Options{})
	ctx := context.Background()

	_, _, err := p.PollCategory(ctx, "notes")
	require.NoError(t, err)

	paths, err := s.GetAllActivePaths(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.md"}, paths)
}

func TestTitleFor(t *testing.T) {
	tests := []struct {
		name string
		kind config.CategoryType
		rel  string
		body string
		want string
	}{
		{"markdown heading", config.CategoryMarkdown, "a/hue.md", "intro\n# Hue Lights\nbody", "Hue Lights"},
		{"markdown without heading", config.CategoryMarkdown, "a/hue.md", "no heading", "hue"},
		{"text heading", config.CategoryText, "notes.txt", "# Notes\n", "Notes"},
		{"json title", config.CategoryJSON, "ep.json", `{"title":" Episode 4 ","text":"x"}`, "Episode 4"},
		{"json array", config.CategoryJSON, "ep.json", `[1,2]`, "ep"},
		{"transcript", config.CategoryTranscript, "call-2024.vtt", "# not used", "call-2024"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, titleFor(tt.kind, tt.rel, tt.body))
		})
	}
}

func TestNew_InvalidPattern(t *testing.T) {
	cats := map[string]config.CategoryConfig{
		"bad": {Path: t.TempDir(), Pattern: "[", Type: config.CategoryText},
	}
	_, err := New(newStore(t), cats, Options{}, logging.Discard())
	assert.Error(t, err)
}

func TestPollAll(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	writeFile(t, a, "x.md", "ex")
	writeFile(t, b, "y.txt", "why")
	cats := map[string]config.CategoryConfig{
		"docs":  {Path: a, Pattern: "*.md", Type: config.CategoryMarkdown},
		"plain": {Path: b, Pattern: "*.txt", Type: config.CategoryText},
	}
	p := newPoller(t, newStore(t), cats, Options{})

	out, err := p.PollAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"docs", "plain"}, p.Categories())
	assert.Equal(t, 1, out["docs"].Added)
	assert.Equal(t, 1, out["plain"].Added)
}

func TestStart_NotifiesAndTriggers(t *testing.T) {
	// Given: a running poller with a long interval
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "alpha")
	s := newStore(t)
	p := newPoller(t, s, notes(dir), Options{Interval: time.Hour})

	var mu sync.Mutex
	var got []PollResult
	p.OnPoll(func(category string, r PollResult) {
		mu.Lock()
		defer mu.Unlock()
		if category == "notes" {
			got = append(got, r)
		}
	})
	p.Start(context.Background())

	// Then: the first cycle runs immediately
	require.Eventually(t, func() bool { return p.Cycles() >= 1 }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, p.LastPoll().IsZero())

	// When: a file is added and the category is triggered
	writeFile(t, dir, "b.md", "beta")
	p.Trigger("notes")
	p.Trigger("unknown")

	// Then: the new file is indexed without waiting for the ticker
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 2
	}, 5*time.Second, 10*time.Millisecond)

	p.Stop()
	p.Stop()

	_, found, err := s.FindDocument(context.Background(), "notes", "b.md")
	require.NoError(t, err)
	assert.True(t, found)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, got[0].Added)
	assert.Equal(t, 1, got[1].Added)
}

// slowEmbedder delays every batch, honouring cancellation.
type slowEmbedder struct {
	*embed.StaticEmbedder
	delay time.Duration

	mu    sync.Mutex
	calls int
}

func (e *slowEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	select {
	case <-time.After(e.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	return e.StaticEmbedder.EmbedBatch(ctx, texts)
}

func (e *slowEmbedder) batches() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func TestStart_SlowBackfillDoesNotBlockPolls(t *testing.T) {
	// Given: many unembedded files and an embedder taking 150ms per batch
	dir := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, dir, fmt.Sprintf("doc-%02d.md", i), fmt.Sprintf("document number %d", i))
	}
	s := newStore(t)
	e := &slowEmbedder{StaticEmbedder: embed.NewStaticEmbedder(16), delay: 150 * time.Millisecond}
	p := newPoller(t, s, notes(dir), Options{
		Interval:    50 * time.Millisecond,
		Concurrency: 1,
		Embedder:    e,
	})

	// When: the poller runs
	p.Start(context.Background())

	// Then: scheduled polls keep running while the backfill is in progress
	require.Eventually(t, func() bool { return p.Cycles() >= 5 }, 1500*time.Millisecond, 10*time.Millisecond)
	assert.Less(t, e.batches(), 20)

	// And: a triggered category picks up a new file promptly
	writeFile(t, dir, "new.md", "fresh note")
	p.Trigger("notes")
	require.Eventually(t, func() bool {
		_, found, err := s.FindDocument(context.Background(), "notes", "new.md")
		return err == nil && found
	}, time.Second, 10*time.Millisecond)

	// And: Stop cancels the unfinished backfill instead of waiting for it
	start := time.Now()
	p.Stop()
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 0, p.Backfills())
}

func TestStart_BackfillsInBackground(t *testing.T) {
	// Given: a running poller with an embedder
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "alpha")
	writeFile(t, dir, "b.md", "beta")
	s := newStore(t)
	e := embed.NewStaticEmbedder(16)
	p := newPoller(t, s, notes(dir), Options{Interval: time.Hour, Embedder: e})

	// When: the first cycle completes
	p.Start(context.Background())

	// Then: both documents are embedded without a manual backfill
	require.Eventually(t, func() bool { return p.Backfills() >= 1 }, 5*time.Second, 10*time.Millisecond)
	n, err := s.CountEmbeddings(context.Background(), e.ModelName())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBackfill(t *testing.T) {
	// Given: indexed documents with one blank body
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "Control smart lights via Hue bridge")
	writeFile(t, dir, "b.md", "Route audio to the living room speakers")
	writeFile(t, dir, "blank.md", "   \n")
	s := newStore(t)
	p := newPoller(t, s, notes(dir), Options{Concurrency: 2})
	ctx := context.Background()
	_, _, err := p.PollCategory(ctx, "notes")
	require.NoError(t, err)

	e := embed.NewStaticEmbedder(32)
	var calls int
	var mu sync.Mutex

	// When: embeddings are backfilled
	res, err := p.Backfill(ctx, e, func(done, total int) {
		mu.Lock()
		calls++
		mu.Unlock()
		assert.Equal(t, 3, total)
	})

	// Then: the two non-blank bodies are embedded
	require.NoError(t, err)
	assert.Equal(t, 2, res.Embedded)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 3, calls)

	n, err := s.CountEmbeddings(ctx, e.ModelName())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// And: a second backfill only revisits the blank body
	res, err = p.Backfill(ctx, e, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Embedded)
	assert.Equal(t, 1, res.Skipped)
}

func TestBackfill_NilEmbedder(t *testing.T) {
	p := newPoller(t, newStore(t), notes(t.TempDir()), Options{})
	res, err := p.Backfill(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, BackfillResult{}, res)
}
