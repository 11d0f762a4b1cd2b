package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"imgsniff/internal/workerpool"
	"imgsniff/pkg/classify"
	errs "imgsniff/pkg/errors"
	"imgsniff/pkg/logger"
	"imgsniff/pkg/metadata"
	"imgsniff/pkg/models"
	"imgsniff/pkg/web"
)

const copyBufferSize = 8 << 10

// Manager saves images into one directory. It is safe for concurrent use;
// name reservation relies on O_EXCL rather than in-process locking.
type Manager struct {
	outputDir string
	client    *web.Client
	timeout   time.Duration
	onStart   func(img models.ResolvedImage)
	saved     func(img models.ResolvedImage) (string, bool)
	logger    logger.Logger
}

type Option func(*Manager)

// WithTimeout bounds each download, body included
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithStartHook is called from the worker right before each request
func WithStartHook(fn func(img models.ResolvedImage)) Option {
	return func(m *Manager) {
		m.onStart = fn
	}
}

// WithSkip consults saved before each download; an image it reports as
// already stored is returned as a skipped success without a request
func WithSkip(saved func(img models.ResolvedImage) (path string, ok bool)) Option {
	return func(m *Manager) {
		m.saved = saved
	}
}

// NewManager creates outputDir if needed
func NewManager(outputDir string, client *web.Client, log logger.Logger, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	m := &Manager{
		outputDir: outputDir,
		client:    client,
		timeout:   30 * time.Second,
		logger:    logger.OrGlobal(log),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) Dir() string {
	return m.outputDir
}

// Download fetches img and stores it. ordinal > 0 names the file by its
// zero-padded position instead of the derived filename. Failures are
// reported in the result, never returned.
func (m *Manager) Download(ctx context.Context, img models.ResolvedImage, ordinal int) models.DownloadResult {
	result := models.DownloadResult{SourceURL: img.URL}
	if m.saved != nil {
		if path, ok := m.saved(img); ok {
			m.logger.DebugWithFields("already downloaded", map[string]interface{}{
				"url":  img.URL,
				"path": path,
			})
			result.Success = true
			result.Skipped = true
			result.SavedPath = path
			return result
		}
	}
	if m.onStart != nil {
		m.onStart(img)
	}

	path, written, err := m.download(ctx, img, TargetName(img, ordinal))
	if err != nil {
		result.Err = err
	} else {
		result.Success = true
		result.SavedPath = path
		result.Bytes = written
	}

	logger.LogDownload(m.logger, img.URL, result.SavedPath, result.Bytes, result.Err)
	return result
}

func (m *Manager) download(ctx context.Context, img models.ResolvedImage, name string) (string, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resp, err := m.client.Get(ctx, img.URL)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, errs.FromStatus(resp.StatusCode, img.URL)
	}

	path, err := m.reserve(name)
	if err != nil {
		return "", 0, err
	}

	written, err := writeAtomic(path, resp.Body)
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}
	return path, written, nil
}

// reserve claims name, or name_1, name_2 and so on, by creating an empty
// placeholder exclusively.
func (m *Manager) reserve(name string) (string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	for i := 0; ; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		path := filepath.Join(m.outputDir, candidate)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			f.Close()
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to create %s: %w", path, err)
		}
	}
}

// writeAtomic streams r into path.part and renames it over path
func writeAtomic(path string, r io.Reader) (int64, error) {
	tempFile := path + ".part"
	out, err := os.OpenFile(tempFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	written, err := io.CopyBuffer(out, r, make([]byte, copyBufferSize))
	closeErr := out.Close()

	if err != nil {
		os.Remove(tempFile)
		return 0, errs.Wrap(errs.ErrorTypeNetwork, err, "failed to save image data")
	}
	if closeErr != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to close file: %w", closeErr)
	}

	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return 0, fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return written, nil
}

// DownloadAll downloads images with the given number of workers. The
// results line up with images. With useOrdinals the files are named
// 001, 002, ... by position.
func (m *Manager) DownloadAll(ctx context.Context, images []models.ResolvedImage, useOrdinals bool, workers int,
	onResult func(done int, r models.DownloadResult)) []models.DownloadResult {
	logger.LogComponentStart(m.logger, "downloader", map[string]interface{}{
		"dir":     m.outputDir,
		"images":  len(images),
		"workers": workers,
	})

	var progress func(int, workerpool.Result[models.DownloadResult])
	if onResult != nil {
		progress = func(done int, r workerpool.Result[models.DownloadResult]) {
			onResult(done, r.Value)
		}
	}

	results := workerpool.Map(images, workers, func(i int, img models.ResolvedImage) models.DownloadResult {
		ordinal := 0
		if useOrdinals {
			ordinal = i + 1
		}
		return m.Download(ctx, img, ordinal)
	}, progress, m.logger)

	ok, total := Summary(results)
	logger.LogComponentStop(m.logger, "downloader", fmt.Sprintf("%d/%d saved", ok, total))
	return results
}

// Summary counts successful results
func Summary(results []models.DownloadResult) (succeeded, total int) {
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	return succeeded, len(results)
}

// TargetName picks the file name for img before collision handling
func TargetName(img models.ResolvedImage, ordinal int) string {
	if ordinal > 0 {
		return fmt.Sprintf("%03d%s", ordinal, extensionFor(img))
	}

	name := img.Filename
	if name == "" {
		name = metadata.Filename(img.URL, img.ContentType)
	}
	return sanitize(name)
}

// extensionFor tries the filename, then the URL, then the content type
func extensionFor(img models.ResolvedImage) string {
	if img.Filename != "" {
		if ext := strings.ToLower(filepath.Ext(sanitize(img.Filename))); ext != "" && ext != "." {
			return ext
		}
	}
	if ext := classify.ExtensionFromURL(img.URL); ext != "" {
		return ext
	}
	if ext := classify.ExtensionFromContentType(img.ContentType); ext != "" {
		return ext
	}
	return ".jpg"
}

func sanitize(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, name)
	name = strings.TrimLeft(name, ".")
	if strings.TrimSpace(name) == "" {
		return "image.jpg"
	}
	return name
}
