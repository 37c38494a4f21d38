package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/logging"
)

type recordingTrigger struct {
	mu    sync.Mutex
	calls map[string]int
}

func (r *recordingTrigger) Trigger(category string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[category]++
}

func (r *recordingTrigger) count(category string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[category]
}

func startWatcher(t *testing.T, roots map[string]string, trig Trigger) *Watcher {
	t.Helper()
	w := New(roots, trig, Options{DebounceWindow: 20 * time.Millisecond}, logging.Discard())
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestWatcher_TriggersChangedCategory(t *testing.T) {
	// Given: two watched categories
	notes, podcasts := t.TempDir(), t.TempDir()
	trig := &recordingTrigger{}
	startWatcher(t, map[string]string{"notes": notes, "podcasts": podcasts}, trig)

	// When: a file is written in one of them
	require.NoError(t, os.WriteFile(filepath.Join(notes, "hue.md"), []byte("lights"), 0o644))

	// Then: only that category is triggered
	require.Eventually(t, func() bool { return trig.count("notes") > 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, trig.count("podcasts"))
}

func TestWatcher_NewSubdirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	trig := &recordingTrigger{}
	startWatcher(t, map[string]string{"notes": dir}, trig)

	sub := filepath.Join(dir, "2024")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.Eventually(t, func() bool { return trig.count("notes") > 0 }, 5*time.Second, 10*time.Millisecond)
	before := trig.count("notes")

	// Give the debounce window time to settle before writing into it.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "jan.md"), []byte("january"), 0o644))

	require.Eventually(t, func() bool { return trig.count("notes") > before }, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_MissingRootIsSkipped(t *testing.T) {
	trig := &recordingTrigger{}
	w := New(map[string]string{"gone": filepath.Join(t.TempDir(), "missing")}, trig, Options{}, logging.Discard())

	require.NoError(t, w.Start(context.Background()))
	require.NoError(t, w.Stop())
	assert.ErrorIs(t, w.Start(context.Background()), ErrStopped)
}

func TestWatcher_Resolve(t *testing.T) {
	base := t.TempDir()
	outer := filepath.Join(base, "docs")
	inner := filepath.Join(outer, "podcasts")
	w := New(map[string]string{"docs": outer, "podcasts": inner}, &recordingTrigger{}, Options{}, logging.Discard())

	r, rel, ok := w.resolve(filepath.Join(inner, "ep1", "notes.md"))
	require.True(t, ok)
	assert.Equal(t, "podcasts", r.category)
	assert.Equal(t, "ep1/notes.md", rel)

	r, rel, ok = w.resolve(filepath.Join(outer, "a.md"))
	require.True(t, ok)
	assert.Equal(t, "docs", r.category)
	assert.Equal(t, "a.md", rel)

	_, _, ok = w.resolve(filepath.Join(base, "elsewhere.md"))
	assert.False(t, ok)
	_, _, ok = w.resolve(outer)
	assert.False(t, ok)
}

func TestHidden(t *testing.T) {
	assert.True(t, hidden(".git/config"))
	assert.True(t, hidden("a/.cache/b.md"))
	assert.False(t, hidden("a/b.md"))
}

func TestOperationString(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "UNKNOWN", Operation(99).String())
}
