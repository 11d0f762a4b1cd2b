package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// palette
var (
	teal   = lipgloss.Color("#2EC4B6")
	amber  = lipgloss.Color("#FFB703")
	lime   = lipgloss.Color("#8AC926")
	coral  = lipgloss.Color("#FF595E")
	violet = lipgloss.Color("#9D4EDD")
	ink    = lipgloss.Color("#101418")
	slate  = lipgloss.Color("#1C232B")
	fog    = lipgloss.Color("#C8CDD2")
	muted  = lipgloss.Color("#6B7280")
)

var (
	screenStyle = lipgloss.NewStyle().Background(ink).Foreground(fog)

	bannerStyle = lipgloss.NewStyle().
			Foreground(teal).
			Bold(true).
			Padding(1, 0).
			Align(lipgloss.Center)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(violet).
			Background(slate).
			Padding(0, 2)

	headingStyle = lipgloss.NewStyle().
			Foreground(ink).
			Background(teal).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().Foreground(teal)
	valueStyle = lipgloss.NewStyle().Foreground(amber).Bold(true)
	rateStyle  = lipgloss.NewStyle().Foreground(violet)

	okStyle   = lipgloss.NewStyle().Foreground(lime).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(coral).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(amber)

	// download list rows
	fileStyle       = lipgloss.NewStyle().PaddingLeft(2)
	fileActiveStyle = fileStyle.Foreground(teal).Bold(true)
	fileDoneStyle   = fileStyle.Foreground(muted)

	logTimeStyle = lipgloss.NewStyle().Foreground(muted)
	logTextStyle = lipgloss.NewStyle().Foreground(fog)

	hintStyle = lipgloss.NewStyle().Foreground(muted).Padding(1, 0, 0, 2)
)

// barStyleFor colors a completion counter by percentage done
func barStyleFor(percentage float64) lipgloss.Style {
	switch {
	case percentage >= 90:
		return lipgloss.NewStyle().Foreground(lime)
	case percentage >= 50:
		return lipgloss.NewStyle().Foreground(amber)
	default:
		return lipgloss.NewStyle().Foreground(violet)
	}
}
