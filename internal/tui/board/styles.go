package board

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("212")
	mutedColor   = lipgloss.Color("241")
	successColor = lipgloss.Color("42")
	warningColor = lipgloss.Color("214")
	errorColor   = lipgloss.Color("196")

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activePanelStyle = panelStyle.BorderForeground(primaryColor)

	panelTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("255")).
			Padding(0, 1)

	subtleStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	helpStyle     = lipgloss.NewStyle().Foreground(mutedColor)
	selectedStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	doneStyle     = lipgloss.NewStyle().Foreground(successColor)
	pendingStyle  = lipgloss.NewStyle().Foreground(warningColor).Italic(true)
	errorStyle    = lipgloss.NewStyle().Foreground(errorColor)
	senderStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Bold(true)
)
