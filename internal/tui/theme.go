package tui

import "github.com/charmbracelet/lipgloss"

// Theme centralizes all styling for the operator TUI.
type Theme struct {
	// Connection badges
	StatusOK      lipgloss.Style
	StatusUnknown lipgloss.Style
	StatusErrored lipgloss.Style

	// Piles
	Acked    lipgloss.Style
	AckMsg   lipgloss.Style
	Status   lipgloss.Style
	Echo     lipgloss.Style
	Error    lipgloss.Style
	Comment  lipgloss.Style
	Current  lipgloss.Style
	InFlight lipgloss.Style
	Waiting  lipgloss.Style

	// UI elements
	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Prompt    lipgloss.Style
	Highlight [2]lipgloss.Style

	// Indicators
	TickerActive   lipgloss.Style
	TickerInactive lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")
	badge := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#000000")).Padding(0, 1)

	return Theme{
		StatusOK:      badge.Background(lipgloss.Color("#2E8B57")),
		StatusUnknown: badge.Background(lipgloss.Color("#A0522D")),
		StatusErrored: badge.Background(lipgloss.Color("#8B0000")),

		Acked:    lipgloss.NewStyle().Foreground(lipgloss.Color("#2E8B57")),
		AckMsg:   lipgloss.NewStyle().Bold(true),
		Status:   lipgloss.NewStyle().Foreground(lipgloss.Color("#98C379")),
		Echo:     lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555")),
		Comment:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")),
		Current:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#00008B")),
		InFlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#98C379")),
		Waiting:  lipgloss.NewStyle().Foreground(lipgloss.Color("#008B8B")),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Prompt: lipgloss.NewStyle().Foreground(lipgloss.Color("#2E8B57")),
		Highlight: [2]lipgloss.Style{
			lipgloss.NewStyle().Foreground(lipgloss.Color("#98C379")),
			lipgloss.NewStyle().Foreground(lipgloss.Color("#56B6C2")),
		},

		TickerActive:   lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		TickerInactive: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}
