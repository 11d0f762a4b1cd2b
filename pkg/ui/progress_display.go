package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressDisplay renders a sniff session as a single self-overwriting line,
// or as one line per update when output is not a terminal.
type ProgressDisplay struct {
	mu        sync.Mutex
	out       io.Writer
	inline    bool
	target    string
	phase     string
	fraction  float64
	startTime time.Time

	totalFiles int
	saved      int
	failed     int
	bytesSaved int64
}

// NewProgressDisplay writes to Output. debug disables line rewriting so the
// display does not fight with log lines.
func NewProgressDisplay(target string, debug bool) *ProgressDisplay {
	inline := !debug
	if f, ok := Output.(*os.File); ok {
		inline = inline && IsTerminal(f)
	}
	return newProgressDisplay(Output, target, inline)
}

func newProgressDisplay(w io.Writer, target string, inline bool) *ProgressDisplay {
	return &ProgressDisplay{
		out:       w,
		inline:    inline,
		target:    target,
		startTime: time.Now(),
	}
}

// Update has the shape of a sniffer progress callback
func (p *ProgressDisplay) Update(message string, fraction float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.phase = message
	if fraction > p.fraction {
		p.fraction = fraction
	}
	if p.inline {
		p.printLine(p.sessionLine())
		return
	}
	fmt.Fprintf(p.out, "%s %3.0f%% %s\n", Cyan("[SNIFF]"), p.fraction*100, message)
}

// StartDownloads switches the line to download counters
func (p *ProgressDisplay) StartDownloads(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalFiles = total
	p.endLine()
	fmt.Fprintf(p.out, "%s %d files\n", Magenta("[DOWNLOAD]"), total)
}

// DownloadDone records one finished download
func (p *ProgressDisplay) DownloadDone(path string, written int64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.failed++
	} else {
		p.saved++
		p.bytesSaved += written
	}

	if p.inline {
		p.printLine(p.downloadLine())
		return
	}
	if err != nil {
		fmt.Fprintf(p.out, "%s %v\n", Red("✗"), err)
	} else {
		fmt.Fprintf(p.out, "%s %s • %s\n", Green("✓"), path, formatBytes(written))
	}
}

// Complete prints the session summary
func (p *ProgressDisplay) Complete(summary string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.endLine()
	fmt.Fprintf(p.out, "%s %s %s\n", Green("✓"), summary, Dim("in "+formatDuration(time.Since(p.startTime))))
}

// CompleteDownloads prints the download tally
func (p *ProgressDisplay) CompleteDownloads(dir string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.endLine()
	mark := Green("✓")
	if p.failed > 0 {
		mark = Yellow("⚠")
	}
	fmt.Fprintf(p.out, "%s Downloaded %d/%d images to %s (%s)\n",
		mark, p.saved, p.totalFiles, dir, formatBytes(p.bytesSaved))
	if p.failed > 0 {
		fmt.Fprintf(p.out, "  %s %d downloads failed\n", Dim("•"), p.failed)
	}
}

func (p *ProgressDisplay) sessionLine() string {
	const barWidth = 20
	filled := int(p.fraction * barWidth)
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)
	return fmt.Sprintf("%s [%s] %3.0f%% • %s",
		Cyan(p.target),
		bar,
		p.fraction*100,
		p.phase,
	)
}

func (p *ProgressDisplay) downloadLine() string {
	line := fmt.Sprintf("%s %d/%d • %s",
		Magenta("[DOWNLOAD]"),
		p.saved+p.failed,
		p.totalFiles,
		formatBytes(p.bytesSaved),
	)
	if p.failed > 0 {
		line += fmt.Sprintf(" • %s", Red(fmt.Sprintf("%d errors", p.failed)))
	}
	return line
}

func (p *ProgressDisplay) printLine(line string) {
	fmt.Fprintf(p.out, "\r%s\r%s", strings.Repeat(" ", 120), line)
}

func (p *ProgressDisplay) endLine() {
	if p.inline {
		fmt.Fprintln(p.out)
	}
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// formatBytes formats bytes in a human-readable way
func formatBytes(bytes int64) string {
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
