package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per update, throttled so large backfills
// do not flood logs.
type PlainRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	title    string
	every    time.Duration
	last     time.Time
	lastDone int
}

// NewPlainRenderer returns a plain renderer writing to cfg.Output.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, title: cfg.Title, every: time.Second}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	if r.title != "" {
		_, _ = fmt.Fprintln(r.out, r.title)
	}
	return nil
}

// Update implements Renderer. The first and final updates are always shown.
func (r *PlainRenderer) Update(ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	final := ev.Total > 0 && ev.Current >= ev.Total
	if !final && r.lastDone > 0 && now.Sub(r.last) < r.every {
		return
	}
	r.last, r.lastDone = now, ev.Current+1

	switch {
	case ev.Total > 0 && ev.Message != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", ev.Stage.Icon(), ev.Current, ev.Total, ev.Message)
	case ev.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d\n", ev.Stage.Icon(), ev.Current, ev.Total)
	case ev.Message != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", ev.Stage.Icon(), ev.Message)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.out, summaryLine(s))
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }

func summaryLine(s Summary) string {
	line := fmt.Sprintf("Complete: %d documents, %d chunks embedded in %s",
		s.Documents, s.Chunks, s.Duration.Round(100*time.Millisecond))
	if s.Failed > 0 || s.Skipped > 0 {
		line += fmt.Sprintf(" (%d failed, %d skipped)", s.Failed, s.Skipped)
	}
	if s.Model != "" {
		line += " using " + s.Model
	}
	return line
}
