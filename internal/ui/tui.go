package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer shows a spinner and progress bar using bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	model   *progressModel
	program *tea.Program
	done    chan struct{}
}

// NewTUIRenderer returns a TUI renderer. Start must be called before
// updates are shown.
func NewTUIRenderer(cfg Config) *TUIRenderer {
	styles := GetStyles(cfg.NoColor || DetectNoColor())
	return &TUIRenderer{
		cfg:   cfg,
		model: newProgressModel(cfg.Title, styles),
		done:  make(chan struct{}),
	}
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	go func(p *tea.Program) {
		defer close(r.done)
		_, _ = p.Run()
	}(r.program)
	return nil
}

// Update implements Renderer.
func (r *TUIRenderer) Update(ev ProgressEvent) {
	r.send(progressMsg(ev))
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(s Summary) {
	r.send(completeMsg(s))
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Stop implements Renderer. It waits up to two seconds for the program to
// restore the terminal.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p == nil {
		return nil
	}
	p.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

type (
	progressMsg ProgressEvent
	completeMsg Summary
)

type progressModel struct {
	title    string
	styles   Styles
	spinner  spinner.Model
	bar      progress.Model
	event    ProgressEvent
	summary  *Summary
	quitting bool
}

func newProgressModel(title string, styles Styles) *progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Title

	return &progressModel{
		title:   title,
		styles:  styles,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorAccent),
			progress.WithWidth(40),
		),
	}
}

// Init implements tea.Model.
func (m *progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = max(20, min(60, msg.Width-30))
	case progressMsg:
		m.event = ProgressEvent(msg)
	case completeMsg:
		s := Summary(msg)
		m.summary = &s
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *progressModel) View() string {
	if m.summary != nil {
		return m.styles.Success.Render("✓ ") + summaryLine(*m.summary) + "\n"
	}
	if m.quitting {
		return m.styles.Warning.Render("Cancelled.") + "\n"
	}

	var b strings.Builder
	if m.title != "" {
		b.WriteString(m.styles.Title.Render(m.title))
		b.WriteString("\n\n")
	}

	ev := m.event
	pct := 0.0
	if ev.Total > 0 {
		pct = float64(ev.Current) / float64(ev.Total)
	}
	line := lipgloss.JoinHorizontal(lipgloss.Top,
		m.spinner.View(), " ",
		m.styles.Label.Render(fmt.Sprintf("%-10s", ev.Stage.String())), " ",
		m.bar.ViewAs(pct), " ",
		m.styles.Value.Render(fmt.Sprintf("%d/%d", ev.Current, ev.Total)),
	)
	b.WriteString(line)
	if ev.Message != "" {
		b.WriteString("\n")
		b.WriteString(m.styles.Dim.Render(ev.Message))
	}
	b.WriteString("\n")
	return b.String()
}
