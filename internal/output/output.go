package output

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/ALT-F4-LLC/revmigrate/internal/render"
)

// Writer handles output for a command, dispatching between JSON and
// human-readable formats based on mode flags.
type Writer struct {
	JSONMode  bool
	QuietMode bool
	Stdout    io.Writer
	Stderr    io.Writer

	// warnings raised in JSON mode, carried by the next envelope.
	warnings []string
}

// New creates a Writer configured by the given mode flags.
// Data output goes to os.Stdout; diagnostics go to os.Stderr.
func New(jsonMode, quietMode bool) *Writer {
	return &Writer{
		JSONMode:  jsonMode,
		QuietMode: quietMode,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}
}

// Success renders a successful result. In JSON mode the data is wrapped in a
// success envelope written to Stdout. In human mode the message is printed to
// Stdout.
func (w *Writer) Success(data any, message string) {
	if w.JSONMode {
		writeJSONSuccess(w.Stdout, successEnvelope{OK: true, Data: data, Message: message, Warnings: w.drain()})
		return
	}
	writeHumanSuccess(w.Stdout, message)
}

// Report renders the result of a run. JSON mode writes data; human mode
// renders the summary.
func (w *Writer) Report(data any, s render.Summary) error {
	if w.JSONMode {
		w.Success(data, "")
		return nil
	}
	message, err := render.RenderSummary(s)
	if err != nil {
		return fmt.Errorf("rendering summary: %w", err)
	}
	w.Success(data, message)
	return nil
}

// Error renders an error. In JSON mode the error is wrapped in an error
// envelope written to Stdout, along with any partial result in data. In
// human mode the error is printed to Stderr with an "Error: " prefix. The
// corresponding exit code is returned so the caller can pass it to os.Exit.
func (w *Writer) Error(err error, code ErrorCode, data any) int {
	if w.JSONMode {
		writeJSONError(w.Stdout, errorEnvelope{Error: err.Error(), Code: code, Data: data, Warnings: w.drain()})
	} else {
		writeHumanError(w.Stderr, err)
	}
	return ExitCodeForError(code)
}

// Info writes an informational message to Stderr. In quiet mode or JSON mode,
// Info is a no-op.
func (w *Writer) Info(format string, args ...any) {
	if w.QuietMode || w.JSONMode {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if render.ColorsEnabled() {
		icon := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("ℹ")
		text := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(msg)
		fmt.Fprintf(w.Stderr, "%s %s\n", icon, text)
	} else {
		fmt.Fprintln(w.Stderr, msg)
	}
}

// Warn writes a warning to Stderr, even in quiet mode. In JSON mode the
// warning is held and written in the "warnings" field of the next envelope.
func (w *Writer) Warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if w.JSONMode {
		w.warnings = append(w.warnings, msg)
		return
	}
	writeHumanWarning(w.Stderr, msg)
}

func (w *Writer) drain() []string {
	out := w.warnings
	w.warnings = nil
	return out
}
