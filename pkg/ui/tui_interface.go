package ui

// TUI is an interface for terminal user interfaces. Start blocks until the
// user quits or Stop is called; the other methods are safe to call from any
// goroutine while it runs.
type TUI interface {
	Start() error
	Stop()
	UpdatePhase(message string, fraction float64)
	SetCounts(candidates, checked, kept int)
	QueueDownload(id, filename string, size int64)
	StartDownload(id string)
	CompleteDownload(id string, written int64)
	FailDownload(id string, err error)
	Finish(summary string)
	LogInfo(format string, args ...interface{})
	LogSuccess(format string, args ...interface{})
	LogWarning(format string, args ...interface{})
	LogError(format string, args ...interface{})
}
