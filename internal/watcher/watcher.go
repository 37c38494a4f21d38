package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation is the kind of change a FileEvent reports.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a change to one path inside a category directory.
type FileEvent struct {
	Category  string
	Path      string // slash-separated, relative to the category root
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

func (e FileEvent) key() string {
	return e.Category + "\x00" + e.Path
}

// Trigger receives the categories that changed. *poller.Poller satisfies it.
type Trigger interface {
	Trigger(category string)
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is how long to wait for quiet before triggering.
	// Default: 500ms
	DebounceWindow time.Duration
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{DebounceWindow: 500 * time.Millisecond}
}

// WithDefaults fills zero values from DefaultOptions.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = DefaultOptions().DebounceWindow
	}
	return o
}

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("watcher stopped")

type root struct {
	category string
	path     string
}

// Watcher watches category directories recursively and triggers a poll of
// each category that saw a change.
type Watcher struct {
	roots     []root
	trigger   Trigger
	opts      Options
	logger    *slog.Logger
	debouncer *Debouncer

	mu      sync.Mutex
	fs      *fsnotify.Watcher
	stopped bool
	done    chan struct{}
}

// New returns a watcher for roots, a map of category name to directory.
func New(roots map[string]string, trigger Trigger, opts Options, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.WithDefaults()

	w := &Watcher{
		trigger:   trigger,
		opts:      opts,
		logger:    logger,
		debouncer: NewDebouncer(opts.DebounceWindow, logger),
	}
	for name, dir := range roots {
		abs, err := filepath.Abs(dir)
		if err != nil {
			abs = filepath.Clean(dir)
		}
		w.roots = append(w.roots, root{category: name, path: abs})
	}
	// Longest root first so nested categories resolve to the innermost one.
	sort.Slice(w.roots, func(i, j int) bool {
		if len(w.roots[i].path) != len(w.roots[j].path) {
			return len(w.roots[i].path) > len(w.roots[j].path)
		}
		return w.roots[i].category < w.roots[j].category
	})
	return w
}

// Start registers every directory under the roots and begins delivering
// events. Roots that do not exist are skipped with a warning; the periodic
// poll still reports them. It returns once the watches are in place.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return ErrStopped
	}
	if w.fs != nil {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	w.fs = fsw

	watched := 0
	for _, r := range w.roots {
		n, err := w.addRecursive(r.path)
		if err != nil {
			w.logger.Warn("category directory not watched",
				slog.String("category", r.category),
				slog.String("path", r.path),
				slog.String("error", err.Error()))
			continue
		}
		watched += n
	}
	w.logger.Debug("watching category directories", slog.Int("dirs", watched))

	w.done = make(chan struct{})
	go w.run(ctx, fsw, w.done)
	go w.forward()
	return nil
}

// Stop closes the underlying watcher and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	fsw, done := w.fs, w.done
	w.mu.Unlock()

	w.debouncer.Stop()
	if fsw == nil {
		return nil
	}
	err := fsw.Close()
	<-done
	return err
}

func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

// forward triggers one poll per category in each debounced batch.
func (w *Watcher) forward() {
	for batch := range w.debouncer.Output() {
		seen := make(map[string]struct{})
		for _, ev := range batch {
			if _, ok := seen[ev.Category]; ok {
				continue
			}
			seen[ev.Category] = struct{}{}
			w.logger.Debug("change detected",
				slog.String("category", ev.Category),
				slog.String("path", ev.Path),
				slog.String("op", ev.Operation.String()))
			w.trigger.Trigger(ev.Category)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	r, rel, ok := w.resolve(ev.Name)
	if !ok || (hidden(rel) && filepath.Base(rel) != ignoreFile) {
		return
	}

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
		if isDir {
			if _, err := w.addRecursive(ev.Name); err != nil {
				w.logger.Debug("watch new directory", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
		}
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}

	w.debouncer.Add(FileEvent{
		Category:  r.category,
		Path:      rel,
		Operation: op,
		IsDir:     isDir,
		Timestamp: time.Now(),
	})
}

// ignoreFile changes must reach the poller even though it is a dot file.
const ignoreFile = ".docindexignore"

// resolve maps an absolute path to its category and relative path.
func (w *Watcher) resolve(abs string) (root, string, bool) {
	for _, r := range w.roots {
		rel, err := filepath.Rel(r.path, abs)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return r, filepath.ToSlash(rel), true
	}
	return root{}, "", false
}

func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// addRecursive watches dir and its non-hidden subdirectories.
func (w *Watcher) addRecursive(dir string) (int, error) {
	if _, err := os.Stat(dir); err != nil {
		return 0, err
	}
	n := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fs.Add(p); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}
