package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ALT-F4-LLC/revmigrate/internal/render"
)

// writeHumanSuccess writes message to w. A single line gets a checkmark;
// rendered reports are printed as-is.
func writeHumanSuccess(w io.Writer, message string) {
	if message == "" {
		return
	}
	if strings.Contains(message, "\n") || !render.ColorsEnabled() {
		fmt.Fprintln(w, message)
		return
	}
	icon := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Render("✔")
	fmt.Fprintf(w, "%s %s\n", icon, message)
}

func writeHumanError(w io.Writer, err error) {
	writeLabelled(w, "✘", "Error:", lipgloss.Color("1"), err.Error())
}

func writeHumanWarning(w io.Writer, msg string) {
	writeLabelled(w, "⚠", "Warning:", lipgloss.Color("3"), msg)
}

func writeLabelled(w io.Writer, icon, label string, color lipgloss.Color, msg string) {
	if !render.ColorsEnabled() {
		fmt.Fprintf(w, "%s %s\n", label, msg)
		return
	}
	style := lipgloss.NewStyle().Foreground(color).Bold(true)
	fmt.Fprintf(w, "%s %s %s\n", style.Render(icon), style.Render(label), msg)
}
