package main

import (
	"context"
	"fmt"
	"os"

	"imgsniff/pkg/models"
	"imgsniff/pkg/report"
	"imgsniff/pkg/sniffer"
	"imgsniff/pkg/ui"
	"imgsniff/pkg/ui/tui"
)

// sessionView presents one sniff session
type sessionView interface {
	run(ctx context.Context, fn func(ctx context.Context) error) error
	progress(message string, fraction float64)
	sniffed(result *sniffer.Result, summary string)
	emit(path string, result *sniffer.Result) error
	downloadsQueued(images []models.ResolvedImage)
	downloadStarted(img models.ResolvedImage)
	downloaded(done int, r models.DownloadResult)
	downloadsDone(dir string, ok, total int)
}

// plainView writes a progress line to stderr, or nothing when quiet
type plainView struct {
	display *ui.ProgressDisplay
}

func newPlainView(target string, quiet, debug bool) *plainView {
	if quiet {
		return &plainView{}
	}
	return &plainView{display: ui.NewProgressDisplay(target, debug)}
}

func (v *plainView) run(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (v *plainView) progress(message string, fraction float64) {
	if v.display != nil {
		v.display.Update(message, fraction)
	}
}

func (v *plainView) sniffed(_ *sniffer.Result, summary string) {
	if v.display != nil {
		v.display.Complete(summary)
	}
}

func (v *plainView) emit(path string, result *sniffer.Result) error {
	if err := writeResults(path, result.Records()); err != nil {
		return err
	}
	if v.display != nil && !toStdout(path) {
		ui.PrintImages(ui.Output, result.Images)
		ui.PrintInfo("Results written to", path)
	}
	return nil
}

func (v *plainView) downloadsQueued(images []models.ResolvedImage) {
	if v.display != nil {
		v.display.StartDownloads(len(images))
	}
}

func (v *plainView) downloadStarted(models.ResolvedImage) {}

func (v *plainView) downloaded(_ int, r models.DownloadResult) {
	if v.display != nil {
		v.display.DownloadDone(r.SavedPath, r.Bytes, r.Err)
	}
}

func (v *plainView) downloadsDone(dir string, ok, total int) {
	if v.display != nil {
		v.display.CompleteDownloads(dir)
	}
}

// tuiView drives the full-screen UI. Results bound for stdout are held
// until the UI has released the terminal.
type tuiView struct {
	t       ui.TUI
	pending []models.Record
	hold    bool
}

func newTUIView(target string) *tuiView {
	return &tuiView{t: tui.NewTUI(target)}
}

func (v *tuiView) run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		err := fn(ctx)
		if err != nil {
			v.t.LogError("%v", err)
			v.t.Finish("Failed")
		} else {
			v.t.Finish("Done")
		}
		done <- err
	}()

	uiErr := v.t.Start()
	// quitting the UI cancels a session still in flight
	cancel()
	err := <-done

	if uiErr != nil {
		return fmt.Errorf("terminal UI failed: %w", uiErr)
	}
	if v.hold {
		if werr := report.Write(os.Stdout, v.pending); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func (v *tuiView) progress(message string, fraction float64) {
	v.t.UpdatePhase(message, fraction)
}

func (v *tuiView) sniffed(result *sniffer.Result, summary string) {
	v.t.SetCounts(result.Candidates, result.Checked, len(result.Images))
	v.t.LogSuccess("%s", summary)
}

func (v *tuiView) emit(path string, result *sniffer.Result) error {
	if toStdout(path) {
		v.pending = result.Records()
		v.hold = true
		return nil
	}
	if err := writeResults(path, result.Records()); err != nil {
		return err
	}
	v.t.LogInfo("Results written to %s", path)
	return nil
}

func (v *tuiView) downloadsQueued(images []models.ResolvedImage) {
	for _, img := range images {
		v.t.QueueDownload(img.URL, img.Filename, int64(img.ByteSize))
	}
}

func (v *tuiView) downloadStarted(img models.ResolvedImage) {
	v.t.StartDownload(img.URL)
}

func (v *tuiView) downloaded(_ int, r models.DownloadResult) {
	if r.Success {
		v.t.CompleteDownload(r.SourceURL, r.Bytes)
		return
	}
	v.t.FailDownload(r.SourceURL, r.Err)
}

func (v *tuiView) downloadsDone(dir string, ok, total int) {
	v.t.LogSuccess("Downloaded %d/%d images to %s", ok, total, dir)
}
