package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// Message types for the TUI

// PhaseMsg reports session progress
type PhaseMsg struct {
	Message  string
	Fraction float64
}

// CountsMsg updates the candidate, measured and kept counters
type CountsMsg struct {
	Candidates int
	Checked    int
	Kept       int
}

// DownloadQueuedMsg is sent when a file is added to the download queue
type DownloadQueuedMsg struct {
	ID       string
	Filename string
	Size     int64
}

// DownloadStartMsg is sent when a download starts
type DownloadStartMsg struct {
	ID string
}

// DownloadCompleteMsg is sent when a download completes
type DownloadCompleteMsg struct {
	ID      string
	Written int64
}

// DownloadErrorMsg is sent when a download fails
type DownloadErrorMsg struct {
	ID    string
	Error error
}

// LogMsg is sent to add a log message
type LogMsg struct {
	Level   string
	Message string
}

// FinishedMsg marks the end of the session
type FinishedMsg struct {
	Summary string
}

// TickMsg is sent periodically to update the UI
type TickMsg time.Time

// Update handles all messages and updates the model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.mu.Lock()
		m.width = msg.Width
		m.height = msg.Height
		m.mu.Unlock()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case TickMsg:
		return m, tickCmd()

	case PhaseMsg:
		m.SetPhase(msg.Message, msg.Fraction)
		return m, nil

	case CountsMsg:
		m.SetCounts(msg.Candidates, msg.Checked, msg.Kept)
		return m, nil

	case DownloadQueuedMsg:
		m.AddDownload(msg.ID, msg.Filename, msg.Size)
		return m, nil

	case DownloadStartMsg:
		m.StartDownload(msg.ID)
		return m, nil

	case DownloadCompleteMsg:
		m.CompleteDownload(msg.ID, msg.Written)
		m.logDownload(msg.ID, "SUCCESS", "Saved: ")
		return m, nil

	case DownloadErrorMsg:
		m.FailDownload(msg.ID, msg.Error)
		suffix := ""
		if msg.Error != nil {
			suffix = " - " + msg.Error.Error()
		}
		m.logDownload(msg.ID, "ERROR", "Failed: ", suffix)
		return m, nil

	case LogMsg:
		m.AddLogMessage(msg.Level, msg.Message)
		return m, nil

	case FinishedMsg:
		m.Finish()
		if msg.Summary != "" {
			m.AddLogMessage("SUCCESS", msg.Summary)
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) logDownload(id, level, prefix string, suffix ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	download, ok := m.downloads[id]
	if !ok {
		return
	}
	message := prefix + download.Filename
	for _, s := range suffix {
		message += s
	}
	m.addLog(level, message)
}

// handleKeyPress handles keyboard input
func (m *Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c", "esc":
		return m, tea.Quit

	case "?":
		m.mu.Lock()
		m.showHelp = !m.showHelp
		m.mu.Unlock()
		return m, nil

	case "ctrl+l":
		m.mu.Lock()
		m.logMessages = []LogMessage{}
		m.mu.Unlock()
		return m, nil
	}

	return m, nil
}

// tickCmd returns a command that sends a tick message
func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
