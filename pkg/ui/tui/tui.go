package tui

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"imgsniff/pkg/ui"
)

var _ ui.TUI = (*TUI)(nil)

// TUI represents the terminal user interface
type TUI struct {
	program *tea.Program
	model   *Model
}

// NewTUI creates a full-screen UI for a session against target. It draws on
// stderr so stdout stays free for results.
func NewTUI(target string) *TUI {
	return newTUI(target, os.Stderr, tea.WithAltScreen())
}

func newTUI(target string, out io.Writer, opts ...tea.ProgramOption) *TUI {
	model := NewModel(target)
	opts = append(opts, tea.WithOutput(out))
	return &TUI{
		program: tea.NewProgram(model, opts...),
		model:   model,
	}
}

// Start runs the UI until the user quits or Stop is called
func (t *TUI) Start() error {
	_, err := t.program.Run()
	return err
}

// Stop stops the TUI gracefully
func (t *TUI) Stop() {
	t.program.Quit()
}

// Send sends a message to the TUI
func (t *TUI) Send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

// UpdatePhase reports session progress
func (t *TUI) UpdatePhase(message string, fraction float64) {
	t.Send(PhaseMsg{Message: message, Fraction: fraction})
}

// SetCounts updates the candidate, measured and kept counters
func (t *TUI) SetCounts(candidates, checked, kept int) {
	t.Send(CountsMsg{Candidates: candidates, Checked: checked, Kept: kept})
}

// QueueDownload adds a file to the download queue
func (t *TUI) QueueDownload(id, filename string, size int64) {
	t.Send(DownloadQueuedMsg{ID: id, Filename: filename, Size: size})
}

// StartDownload notifies the TUI that a download has started
func (t *TUI) StartDownload(id string) {
	t.Send(DownloadStartMsg{ID: id})
}

// CompleteDownload notifies the TUI that a download has completed
func (t *TUI) CompleteDownload(id string, written int64) {
	t.Send(DownloadCompleteMsg{ID: id, Written: written})
}

// FailDownload notifies the TUI that a download has failed
func (t *TUI) FailDownload(id string, err error) {
	t.Send(DownloadErrorMsg{ID: id, Error: err})
}

// Finish marks the session complete; the UI stays up until the user quits
func (t *TUI) Finish(summary string) {
	t.Send(FinishedMsg{Summary: summary})
}

// Log sends a log message to the TUI
func (t *TUI) Log(level, format string, args ...interface{}) {
	t.Send(LogMsg{Level: level, Message: fmt.Sprintf(format, args...)})
}

// LogInfo logs an info message
func (t *TUI) LogInfo(format string, args ...interface{}) {
	t.Log("INFO", format, args...)
}

// LogSuccess logs a success message
func (t *TUI) LogSuccess(format string, args ...interface{}) {
	t.Log("SUCCESS", format, args...)
}

// LogWarning logs a warning message
func (t *TUI) LogWarning(format string, args ...interface{}) {
	t.Log("WARN", format, args...)
}

// LogError logs an error message
func (t *TUI) LogError(format string, args ...interface{}) {
	t.Log("ERROR", format, args...)
}
