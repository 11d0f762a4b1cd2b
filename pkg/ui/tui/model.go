package tui

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DownloadState represents the state of a download
type DownloadState int

const (
	DownloadPending DownloadState = iota
	DownloadActive
	DownloadCompleted
	DownloadFailed
)

// DownloadItem represents a single file being saved
type DownloadItem struct {
	ID        string
	Filename  string
	Size      int64
	Written   int64
	State     DownloadState
	StartTime time.Time
	Duration  time.Duration
	Error     error
}

// Model holds everything the screen shows about one sniff session
type Model struct {
	spinner  spinner.Model
	overall  progress.Model
	transfer progress.Model

	target   string
	phase    string
	fraction float64
	finished bool

	candidates int
	checked    int
	kept       int

	downloads       map[string]*DownloadItem
	downloadOrder   []string
	activeDownloads int
	totalSaved      int
	totalFailed     int
	totalBytes      int64

	sessionStartTime time.Time

	width          int
	height         int
	showHelp       bool
	logMessages    []LogMessage
	maxLogMessages int

	mu sync.RWMutex
}

// LogMessage represents a log entry
type LogMessage struct {
	Time    time.Time
	Level   string
	Message string
	Color   lipgloss.Color
}

// NewModel creates a model for a session against target
func NewModel(target string) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(teal)

	overall := progress.New(progress.WithDefaultGradient())
	overall.Width = 40
	transfer := progress.New(progress.WithSolidFill(string(lime)))
	transfer.Width = 40

	return &Model{
		spinner:          s,
		overall:          overall,
		transfer:         transfer,
		target:           target,
		phase:            "Starting",
		downloads:        make(map[string]*DownloadItem),
		sessionStartTime: time.Now(),
		maxLogMessages:   50,
	}
}

// Init initializes the model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

// SetPhase records the current phase and overall completion. Fractions
// never move backwards.
func (m *Model) SetPhase(message string, fraction float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.phase = message
	if fraction > 1 {
		fraction = 1
	}
	if fraction > m.fraction {
		m.fraction = fraction
	}
}

// SetCounts updates the candidate, measured and kept counters
func (m *Model) SetCounts(candidates, checked, kept int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.candidates = candidates
	m.checked = checked
	m.kept = kept
}

// Finish marks the session as done
func (m *Model) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.finished = true
	m.fraction = 1
}

// AddDownload queues a file
func (m *Model) AddDownload(id, filename string, size int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.downloads[id]; ok {
		return
	}
	m.downloads[id] = &DownloadItem{
		ID:       id,
		Filename: filename,
		Size:     size,
		State:    DownloadPending,
	}
	m.downloadOrder = append(m.downloadOrder, id)
}

// StartDownload marks a download as active
func (m *Model) StartDownload(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if download, ok := m.downloads[id]; ok && download.State == DownloadPending {
		download.State = DownloadActive
		download.StartTime = time.Now()
		m.activeDownloads++
	}
}

// CompleteDownload marks a download as saved with the bytes written
func (m *Model) CompleteDownload(id string, written int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	download, ok := m.downloads[id]
	if !ok || download.State == DownloadCompleted || download.State == DownloadFailed {
		return
	}
	if download.State == DownloadActive {
		m.activeDownloads--
		download.Duration = time.Since(download.StartTime)
	}
	download.State = DownloadCompleted
	download.Written = written
	m.totalSaved++
	m.totalBytes += written
}

// FailDownload marks a download as failed
func (m *Model) FailDownload(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	download, ok := m.downloads[id]
	if !ok || download.State == DownloadCompleted || download.State == DownloadFailed {
		return
	}
	if download.State == DownloadActive {
		m.activeDownloads--
	}
	download.State = DownloadFailed
	download.Error = err
	m.totalFailed++
}

// AddLogMessage adds a log message
func (m *Model) AddLogMessage(level, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addLog(level, message)
}

func (m *Model) addLog(level, message string) {
	color := muted
	switch level {
	case "ERROR":
		color = coral
	case "WARN":
		color = amber
	case "SUCCESS":
		color = lime
	case "INFO":
		color = teal
	}

	m.logMessages = append(m.logMessages, LogMessage{
		Time:    time.Now(),
		Level:   level,
		Message: message,
		Color:   color,
	})

	// Keep only the last N messages
	if len(m.logMessages) > m.maxLogMessages {
		m.logMessages = m.logMessages[len(m.logMessages)-m.maxLogMessages:]
	}
}

// downloadsIn returns items in the given state in queue order. Callers hold the lock.
func (m *Model) downloadsIn(state DownloadState) []*DownloadItem {
	var out []*DownloadItem
	for _, id := range m.downloadOrder {
		if download := m.downloads[id]; download != nil && download.State == state {
			out = append(out, download)
		}
	}
	return out
}

// GetActiveDownloads returns a slice of active downloads
func (m *Model) GetActiveDownloads() []*DownloadItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.downloadsIn(DownloadActive)
}

// GetPendingDownloads returns a slice of pending downloads
func (m *Model) GetPendingDownloads() []*DownloadItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.downloadsIn(DownloadPending)
}

// GetCompletedDownloads returns a slice of completed downloads
func (m *Model) GetCompletedDownloads() []*DownloadItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.downloadsIn(DownloadCompleted)
}

// GetFailedDownloads returns a slice of failed downloads
func (m *Model) GetFailedDownloads() []*DownloadItem {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.downloadsIn(DownloadFailed)
}

// transferFraction is the share of queued files that have finished. Callers hold the lock.
func (m *Model) transferFraction() float64 {
	if len(m.downloadOrder) == 0 {
		return 0
	}
	return float64(m.totalSaved+m.totalFailed) / float64(len(m.downloadOrder))
}

// stats returns the average write speed and a rough ETA for the rest of the
// queue. Callers hold the lock.
func (m *Model) stats() (avgSpeed float64, eta time.Duration) {
	done := m.totalSaved + m.totalFailed
	if done == 0 {
		return 0, 0
	}
	elapsed := time.Since(m.sessionStartTime)
	avgSpeed = float64(m.totalBytes) / elapsed.Seconds()

	remaining := len(m.downloadOrder) - done
	if remaining > 0 {
		eta = elapsed / time.Duration(done) * time.Duration(remaining)
	}
	return avgSpeed, eta
}

// FormatBytes formats bytes to human readable format
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatSpeed formats speed in bytes per second
func FormatSpeed(bytesPerSecond float64) string {
	return fmt.Sprintf("%s/s", FormatBytes(int64(bytesPerSecond)))
}
