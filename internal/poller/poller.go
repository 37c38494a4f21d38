package poller

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Aman-CERP/docindex/internal/config"
	dierrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/pattern"
	"github.com/Aman-CERP/docindex/internal/store"
)

// Poller synchronizes configured categories into the store.
type Poller struct {
	store      Store
	categories map[string]*category
	names      []string
	opts       Options
	logger     *slog.Logger

	// pollMu serializes polls of the same category.
	pollMu sync.Mutex

	mu        sync.Mutex
	listeners []Listener
	pending   map[string]struct{}
	lastPoll  time.Time
	cycles    int
	backfills int
	cancel    context.CancelFunc
	done      chan struct{}
	wake      chan struct{}

	// backfill holds at most one pending backfill request; requests made
	// while one is queued coalesce into it.
	backfill chan struct{}
}

// New returns a poller for categories. Patterns are compiled here so a bad
// glob fails at startup.
func New(st Store, categories map[string]config.CategoryConfig, opts Options, logger *slog.Logger) (*Poller, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = DefaultMaxFileBytes
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = DefaultEmbedTimeout
	}
	if opts.MaxChunkChars <= 0 {
		opts.MaxChunkChars = DefaultMaxChunkChars
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Poller{
		store:      st,
		categories: make(map[string]*category, len(categories)),
		opts:       opts,
		logger:     logger,
		pending:    make(map[string]struct{}),
		wake:       make(chan struct{}, 1),
		backfill:   make(chan struct{}, 1),
	}
	for name, c := range categories {
		g, err := pattern.Compile(c.Pattern)
		if err != nil {
			return nil, dierrors.ConfigError(fmt.Sprintf("category %s", name), err)
		}
		p.categories[name] = &category{name: name, root: c.Path, kind: c.Type, glob: g}
		p.names = append(p.names, name)
	}
	sort.Strings(p.names)
	return p, nil
}

// Categories returns the configured category names, sorted.
func (p *Poller) Categories() []string {
	return append([]string(nil), p.names...)
}

// Root returns the directory of a category.
func (p *Poller) Root(name string) (string, bool) {
	c, ok := p.categories[name]
	if !ok {
		return "", false
	}
	return c.root, true
}

// PollCategory synchronizes one category. ok is false when the category is
// not configured. Unreadable files are logged and treated as absent; a
// store failure aborts the poll.
func (p *Poller) PollCategory(ctx context.Context, name string) (res PollResult, ok bool, err error) {
	c, ok := p.categories[name]
	if !ok {
		return PollResult{}, false, nil
	}

	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	start := time.Now()
	files, err := c.scan(ctx)
	if err != nil {
		return PollResult{}, true, dierrors.New(dierrors.ErrCodeFileRead,
			fmt.Sprintf("scan category %s", name), err).WithDetail("path", c.root)
	}

	seen := make(map[string]struct{}, len(files))
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return res, true, err
		}

		body, mtime, err := readFile(filepath.Join(c.root, filepath.FromSlash(rel)), p.opts.MaxFileBytes)
		if err != nil {
			res.Errors++
			p.logger.Warn("skipping unreadable file",
				slog.String("category", name),
				slog.String("path", rel),
				slog.String("error", err.Error()))
			continue
		}

		up, err := p.store.UpsertDocument(ctx, store.UpsertInput{
			Category: name,
			Path:     rel,
			Title:    titleFor(c.kind, rel, body),
			Body:     body,
			Mtime:    mtime,
		})
		if err != nil {
			return res, true, err
		}
		seen[rel] = struct{}{}

		switch up.Action {
		case store.ActionAdded:
			res.Added++
		case store.ActionUpdated:
			res.Updated++
		default:
			res.Unchanged++
		}
	}

	// Removal runs after every upsert so it sees this poll's writes.
	active, err := p.store.GetAllActivePaths(ctx, name)
	if err != nil {
		return res, true, err
	}
	var gone []string
	for _, path := range active {
		if _, ok := seen[path]; !ok {
			gone = append(gone, path)
		}
	}
	if res.Removed, err = p.store.DeactivatePaths(ctx, name, gone); err != nil {
		return res, true, err
	}

	res.Duration = time.Since(start)
	if res.Changed() || res.Errors > 0 {
		p.logger.Info("category polled",
			slog.String("category", name),
			slog.Int("added", res.Added),
			slog.Int("updated", res.Updated),
			slog.Int("removed", res.Removed),
			slog.Int("errors", res.Errors),
			slog.Duration("took", res.Duration))
	}
	return res, true, nil
}

// PollAll polls every category and returns results by name. It stops at
// the first store failure.
func (p *Poller) PollAll(ctx context.Context) (map[string]PollResult, error) {
	out := make(map[string]PollResult, len(p.names))
	for _, name := range p.names {
		res, _, err := p.PollCategory(ctx, name)
		if err != nil {
			return out, fmt.Errorf("poll %s: %w", name, err)
		}
		out[name] = res
	}
	return out, nil
}

// OnPoll registers fn to run after each category of every automatic cycle.
func (p *Poller) OnPoll(fn Listener) {
	p.mu.Lock()
	p.listeners = append(p.listeners, fn)
	p.mu.Unlock()
}

// Start runs an initial cycle immediately and then one every Interval,
// until Stop or ctx is done. With an Embedder, backfills run on a separate
// goroutine so a slow embedding backend never delays polls. Starting a
// running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.loop(ctx)
	}()
	if p.opts.Embedder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.backfillLoop(ctx)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	p.done = done
}

// Stop halts the loops and waits for the current cycle and backfill to
// finish; a running backfill is cancelled. It is idempotent and safe to
// call without Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Trigger asks the running loop to poll one category soon. Requests are
// coalesced and never block.
func (p *Poller) Trigger(name string) {
	if _, ok := p.categories[name]; !ok {
		return
	}
	p.mu.Lock()
	p.pending[name] = struct{}{}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// LastPoll returns when the last automatic cycle finished.
func (p *Poller) LastPoll() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPoll
}

// Cycles returns the number of completed automatic cycles.
func (p *Poller) Cycles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycles
}

// Backfills returns the number of completed background backfills.
func (p *Poller) Backfills() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backfills
}

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.cycle(ctx, p.names)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.takePending()
			p.cycle(ctx, p.names)
		case <-p.wake:
			if names := p.takePending(); len(names) > 0 {
				p.cycle(ctx, names)
			}
		}
	}
}

func (p *Poller) takePending() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.pending))
	for n := range p.pending {
		names = append(names, n)
	}
	clear(p.pending)
	sort.Strings(names)
	return names
}

// cycle polls names, notifies listeners and queues a backfill.
func (p *Poller) cycle(ctx context.Context, names []string) {
	changed := false
	for _, name := range names {
		res, _, err := p.PollCategory(ctx, name)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.logger.Error("poll failed",
				slog.String("category", name),
				slog.String("error", err.Error()))
			continue
		}
		changed = changed || res.Changed()
		p.notify(name, res)
	}

	p.mu.Lock()
	p.lastPoll = time.Now()
	p.cycles++
	first := p.cycles == 1
	p.mu.Unlock()

	if p.opts.Embedder != nil && (changed || first) {
		p.requestBackfill()
	}
}

// requestBackfill queues a backfill without blocking. If one is already
// queued the request is merged into it.
func (p *Poller) requestBackfill() {
	select {
	case p.backfill <- struct{}{}:
	default:
	}
}

// backfillLoop runs queued backfills one at a time until ctx is done.
func (p *Poller) backfillLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.backfill:
		}

		_, err := p.Backfill(ctx, p.opts.Embedder, nil)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			p.logger.Warn("embedding backfill incomplete", dierrors.LogAttrs(err)...)
		}

		p.mu.Lock()
		p.backfills++
		p.mu.Unlock()
	}
}

func (p *Poller) notify(name string, res PollResult) {
	p.mu.Lock()
	listeners := append([]Listener(nil), p.listeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn(name, res)
	}
}
