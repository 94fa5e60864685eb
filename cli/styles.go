// ABOUTME: Terminal styles for CLI output
// ABOUTME: Colors phases and due dates; plain text when output is not a terminal
package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/harperreed/dealboard/models"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	terminalPhaseStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("170"))
)

// dueStyle colors a due date by how close it is.
func dueStyle(days int) lipgloss.Style {
	switch {
	case days < 0:
		return errorStyle
	case days <= 3:
		return warnStyle
	}
	return lipgloss.NewStyle()
}

func phaseStyle(reg *models.Registry, p models.Phase) lipgloss.Style {
	if reg.IsTerminal(p) {
		return terminalPhaseStyle
	}
	return lipgloss.NewStyle()
}
