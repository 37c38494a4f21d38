// Package ui renders progress for long-running CLI commands: a bubbletea
// progress bar on terminals and plain lines for pipes and CI.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is the phase a command is in.
type Stage int

const (
	StagePolling Stage = iota
	StageEmbedding
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StagePolling:
		return "Polling"
	case StageEmbedding:
		return "Embedding"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon is the short tag used by plain output.
func (s Stage) Icon() string {
	switch s {
	case StagePolling:
		return "POLL"
	case StageEmbedding:
		return "EMBED"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is one progress update.
type ProgressEvent struct {
	Stage   Stage
	Current int
	Total   int
	Message string
}

// Summary is shown when the command finishes.
type Summary struct {
	Documents int
	Chunks    int
	Failed    int
	Skipped   int
	Model     string
	Duration  time.Duration
}

// Renderer displays progress.
type Renderer interface {
	Start(ctx context.Context) error
	Update(event ProgressEvent)
	Complete(s Summary)
	Stop() error
}

// Config selects and configures a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Title      string
}

// NewRenderer returns the TUI renderer for interactive terminals and the
// plain renderer otherwise.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	return NewTUIRenderer(cfg)
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

// DetectCI reports whether a common CI variable is set.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "BUILDKITE"} {
		if _, ok := os.LookupEnv(v); ok {
			return true
		}
	}
	return false
}
