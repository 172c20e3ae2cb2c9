package tui

import "github.com/charmbracelet/lipgloss"

const (
	colorPurple    = "#7C3AED"
	colorGreen     = "#10B981"
	colorRed       = "#EF4444"
	colorAmber     = "#F59E0B"
	colorGray      = "#6B7280"
	colorLightGray = "#9CA3AF"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(colorPurple))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorLightGray)).Width(labelWidth)
	onStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color(colorGreen)).Bold(true)
	offStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(colorGray))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorAmber))
	alertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorRed)).Bold(true)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorPurple)).
			Padding(0, 1)
)
