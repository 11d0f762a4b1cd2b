package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const logo = `
 ╔═╗╔╦╗╔═╗╔═╗╔╗╔╦╔═╗╔═╗
 ║║║║║║ ╦╚═╗║║║║╠╣ ╠╣
 ╩╩ ╩╩ ╩╚═╝╚═╝╝╚╝╩╚  ╚
  image resource sniffer`

// View renders the entire TUI
func (m *Model) View() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, bannerStyle.Width(m.width).Render(logo))

	colWidth := (m.width - 4) / 2
	left := lipgloss.JoinVertical(lipgloss.Left,
		m.renderSessionPanel(colWidth),
		m.renderDownloadsPanel(colWidth),
	)
	right := lipgloss.JoinVertical(lipgloss.Left,
		m.renderTransferPanel(colWidth),
		m.renderLogsPanel(colWidth),
	)
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	} else if m.finished {
		sections = append(sections, hintStyle.Render("Done. Press q to exit, ? for help"))
	} else {
		sections = append(sections, hintStyle.Render("Press ? for help"))
	}

	return screenStyle.Width(m.width).Height(m.height).Render(
		lipgloss.JoinVertical(lipgloss.Left, sections...),
	)
}

func (m *Model) renderSessionPanel(width int) string {
	title := headingStyle.Render(" SESSION ")

	status := m.spinner.View() + " " + valueStyle.Render(m.phase)
	if m.finished {
		status = okStyle.Render("✓ ") + valueStyle.Render(m.phase)
	}

	bar := m.overall
	bar.Width = clampWidth(width - 8)
	lines := []string{
		fmt.Sprintf("%s %s", labelStyle.Render("Target:"), truncate(m.target, width-14)),
		status,
		bar.ViewAs(m.fraction),
		fmt.Sprintf("%s %s", labelStyle.Render("Candidates:"), valueStyle.Render(fmt.Sprint(m.candidates))),
		fmt.Sprintf("%s %s", labelStyle.Render("Measured:"), valueStyle.Render(fmt.Sprint(m.checked))),
		fmt.Sprintf("%s %s", labelStyle.Render("Kept:"), okStyle.Render(fmt.Sprint(m.kept))),
		fmt.Sprintf("%s %s", labelStyle.Render("Elapsed:"), valueStyle.Render(formatDuration(time.Since(m.sessionStartTime)))),
	}

	return boxStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

func (m *Model) renderDownloadsPanel(width int) string {
	title := headingStyle.Render(" DOWNLOADS ")

	if len(m.downloadOrder) == 0 {
		content := lipgloss.NewStyle().Foreground(muted).Render("No downloads requested")
		return boxStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	var items []string
	for _, d := range m.downloadsIn(DownloadActive) {
		items = append(items, fileActiveStyle.Render("↓ "+truncate(d.Filename, width-10)))
	}

	pending := m.downloadsIn(DownloadPending)
	if len(pending) > 0 {
		items = append(items, warnStyle.Render(fmt.Sprintf("⏳ %d pending", len(pending))))
		for i := 0; i < 3 && i < len(pending); i++ {
			items = append(items, fileStyle.Render("• "+truncate(pending[i].Filename, width-10)))
		}
		if len(pending) > 3 {
			items = append(items, lipgloss.NewStyle().Foreground(muted).Render(fmt.Sprintf("  ... and %d more", len(pending)-3)))
		}
	}

	completed := m.downloadsIn(DownloadCompleted)
	if len(completed) > 0 {
		items = append(items, okStyle.Render(fmt.Sprintf("✓ %d saved", len(completed))))
		start := len(completed) - 3
		if start < 0 {
			start = 0
		}
		for _, d := range completed[start:] {
			items = append(items, fileDoneStyle.Render(
				fmt.Sprintf("✓ %s (%s)", truncate(d.Filename, width-24), FormatBytes(d.Written))))
		}
	}

	for _, d := range m.downloadsIn(DownloadFailed) {
		items = append(items, failStyle.Render("✗ "+truncate(d.Filename, width-10)))
	}

	return boxStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...)),
	)
}

func (m *Model) renderTransferPanel(width int) string {
	title := headingStyle.Render(" TRANSFER ")

	if len(m.downloadOrder) == 0 {
		content := lipgloss.NewStyle().Foreground(muted).Render("Metadata only")
		return boxStyle.Width(width).Render(lipgloss.JoinVertical(lipgloss.Left, title, content))
	}

	avgSpeed, eta := m.stats()
	fraction := m.transferFraction()
	bar := m.transfer
	bar.Width = clampWidth(width - 8)

	lines := []string{
		fmt.Sprintf("%s %s", labelStyle.Render("Files:"),
			barStyleFor(fraction*100).Render(fmt.Sprintf("%d/%d", m.totalSaved+m.totalFailed, len(m.downloadOrder)))),
		bar.ViewAs(fraction),
		fmt.Sprintf("%s %s", labelStyle.Render("Saved:"), valueStyle.Render(FormatBytes(m.totalBytes))),
		fmt.Sprintf("%s %s", labelStyle.Render("Average Speed:"), rateStyle.Render(FormatSpeed(avgSpeed))),
		fmt.Sprintf("%s %s", labelStyle.Render("ETA:"), valueStyle.Render(formatDuration(eta))),
	}
	if m.totalFailed > 0 {
		lines = append(lines, failStyle.Render(fmt.Sprintf("%d failed", m.totalFailed)))
	}

	return boxStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")),
	)
}

func (m *Model) renderLogsPanel(width int) string {
	title := headingStyle.Render(" LOG ")

	start := len(m.logMessages) - 10
	if start < 0 {
		start = 0
	}

	var logs []string
	for _, entry := range m.logMessages[start:] {
		timestamp := logTimeStyle.Render(entry.Time.Format("15:04:05"))
		level := lipgloss.NewStyle().Foreground(entry.Color).Bold(true).Render(fmt.Sprintf("[%-7s]", entry.Level))
		message := logTextStyle.Render(truncate(entry.Message, width-25))
		logs = append(logs, fmt.Sprintf("%s %s %s", timestamp, level, message))
	}

	content := strings.Join(logs, "\n")
	if content == "" {
		content = lipgloss.NewStyle().Foreground(muted).Render("No logs yet...")
	}

	logsHeight := m.height - 30
	if logsHeight < 5 {
		logsHeight = 5
	}

	return boxStyle.Width(width).Height(logsHeight).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, content),
	)
}

func (m *Model) renderHelp() string {
	help := `
  Keys:
    q/esc    - Quit (cancels a running session)
    ctrl+l   - Clear the log
    ?        - Toggle this help

  Downloads:
    ` + fileActiveStyle.Render("↓") + `        - Writing
    ⏳       - Queued
    ` + okStyle.Render("✓") + `        - Saved
    ` + failStyle.Render("✗") + `        - Failed
`
	return boxStyle.Width(m.width).Render(help)
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	if n < 4 {
		n = 4
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func clampWidth(w int) int {
	if w < 10 {
		return 10
	}
	return w
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "00:00"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
