package cmd

import (
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Local style variables for non-interactive CLI output (tasks list/show,
// watch). No internal/ui theme package exists in this repo, so colors are
// declared here, grounded on the teacher's internal/tui/feed/styles.go
// pattern.
var (
	colorPending    = lipgloss.Color("245") // gray
	colorInProgress = lipgloss.Color("33")  // blue
	colorCompleted  = lipgloss.Color("35")  // green
	colorFailed     = lipgloss.Color("196") // red

	statusStyle = map[string]lipgloss.Style{
		"pending":     lipgloss.NewStyle().Foreground(colorPending),
		"in_progress": lipgloss.NewStyle().Foreground(colorInProgress).Bold(true),
		"completed":   lipgloss.NewStyle().Foreground(colorCompleted),
		"failed":      lipgloss.NewStyle().Foreground(colorFailed).Bold(true),
	}

	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

var titleCaser = cases.Title(language.English)

// renderStatus applies the status's color, falling back to plain text for
// an unrecognized status string.
func renderStatus(status string) string {
	if s, ok := statusStyle[status]; ok {
		return s.Render(status)
	}
	return status
}

// titleCase renders a role/status word for human display, e.g.
// "builder-a" -> "Builder-A".
func titleCase(s string) string {
	return titleCaser.String(s)
}
