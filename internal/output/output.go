// Package output formats human-facing CLI output.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Writer prints styled status lines. Color is used only on terminals and
// when NO_COLOR is unset.
type Writer struct {
	out     io.Writer
	color   bool
	ok      lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	heading lipgloss.Style
	dim     lipgloss.Style
}

// New returns a writer for out. noColor forces plain text.
func New(out io.Writer, noColor bool) *Writer {
	color := !noColor && isTerminal(out)
	if _, set := os.LookupEnv("NO_COLOR"); set {
		color = false
	}
	w := &Writer{out: out, color: color}
	if color {
		w.ok = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
		w.warn = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
		w.err = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
		w.heading = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
		w.dim = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	}
	return w
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// Color reports whether styled output is enabled.
func (w *Writer) Color() bool {
	return w.color
}

func (w *Writer) render(s lipgloss.Style, text string) string {
	if !w.color {
		return text
	}
	return s.Render(text)
}

// Status prints msg prefixed by icon.
func (w *Writer) Status(icon, msg string) {
	if icon == "" {
		_, _ = fmt.Fprintf(w.out, "  %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
}

// Success prints a success line.
func (w *Writer) Success(msg string) { w.Status(w.render(w.ok, "✓"), msg) }

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) { w.Success(fmt.Sprintf(format, args...)) }

// Warning prints a warning line.
func (w *Writer) Warning(msg string) { w.Status(w.render(w.warn, "!"), msg) }

// Warningf is Warning with formatting.
func (w *Writer) Warningf(format string, args ...any) { w.Warning(fmt.Sprintf(format, args...)) }

// Error prints an error line.
func (w *Writer) Error(msg string) { w.Status(w.render(w.err, "✗"), msg) }

// Errorf is Error with formatting.
func (w *Writer) Errorf(format string, args ...any) { w.Error(fmt.Sprintf(format, args...)) }

// Heading prints a bold section title.
func (w *Writer) Heading(title string) {
	_, _ = fmt.Fprintln(w.out, w.render(w.heading, title))
}

// KeyValue prints an aligned "key: value" line.
func (w *Writer) KeyValue(key string, value any) {
	_, _ = fmt.Fprintf(w.out, "  %s %v\n", w.render(w.dim, fmt.Sprintf("%-12s", key+":")), value)
}

// Dim prints secondary text, indented.
func (w *Writer) Dim(text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		_, _ = fmt.Fprintf(w.out, "    %s\n", w.render(w.dim, line))
	}
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
