package sniffer

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"imgsniff/internal/workerpool"
	"imgsniff/pkg/browser"
	"imgsniff/pkg/checkpoint"
	"imgsniff/pkg/config"
	errs "imgsniff/pkg/errors"
	"imgsniff/pkg/extract"
	"imgsniff/pkg/logger"
	"imgsniff/pkg/metadata"
	"imgsniff/pkg/models"
	"imgsniff/pkg/ranking"
	"imgsniff/pkg/resolver"
	"imgsniff/pkg/retry"
	"imgsniff/pkg/storage"
	"imgsniff/pkg/web"
)

// ProgressFunc receives a human-readable phase and the overall completion
// in [0, 1]. Fractions never decrease within a session.
type ProgressFunc func(message string, fraction float64)

// Renderer is a live page-rendering session
type Renderer interface {
	Render(ctx context.Context, target string, fc web.FetchContext) (*browser.Result, error)
	Close()
}

// RendererFactory starts a renderer for one sniff session
type RendererFactory func(ctx context.Context, opts browser.Options, log logger.Logger) (Renderer, error)

func chromeRenderer(ctx context.Context, opts browser.Options, log logger.Logger) (Renderer, error) {
	return browser.NewSession(ctx, opts, log)
}

// Settings are the engine knobs that do not change between sessions
type Settings struct {
	Workers          int
	ResolveOriginals bool
	DecodeDimensions bool
	ProbeTimeout     time.Duration
	MetadataTimeout  time.Duration
	DownloadTimeout  time.Duration
}

// Options describe one sniff session
type Options struct {
	MinKB int
	Order ranking.Order
	// Render switches from a plain page fetch to headless Chrome
	Render  bool
	Browser browser.Options
	// Fetch is the identity to start with, e.g. from a stored profile
	Fetch web.FetchContext
}

// Result of a session. Images are filtered and ordered; Fetch is the
// identity that was in effect at the end and should be used to download.
type Result struct {
	SessionID  string
	Target     string
	PageURL    string
	Candidates int
	Checked    int
	Images     []models.ResolvedImage
	Fetch      web.FetchContext
	Duration   time.Duration
}

// Records converts the result for serialization
func (r *Result) Records() []models.Record {
	return models.Records(r.Images)
}

// Sniffer runs sessions. It is safe for concurrent use.
type Sniffer struct {
	client      *web.Client
	settings    Settings
	newRenderer RendererFactory
	logger      logger.Logger
}

// New creates a Sniffer from configuration
func New(cfg *config.Config, log logger.Logger) *Sniffer {
	log = logger.OrGlobal(log)
	return NewWithClient(NewClient(cfg, log), SettingsFromConfig(cfg), log)
}

// NewWithClient creates a Sniffer around an existing HTTP session
func NewWithClient(client *web.Client, settings Settings, log logger.Logger) *Sniffer {
	if settings.Workers < 1 {
		settings.Workers = 1
	}
	return &Sniffer{
		client:      client,
		settings:    settings,
		newRenderer: chromeRenderer,
		logger:      logger.OrGlobal(log),
	}
}

// SetRenderer replaces the headless Chrome renderer
func (s *Sniffer) SetRenderer(f RendererFactory) {
	s.newRenderer = f
}

// NewClient builds the shared HTTP session with the configured retry policy
func NewClient(cfg *config.Config, log logger.Logger) *web.Client {
	policy := retry.Policy{
		MaxAttempts: cfg.HTTP.MaxAttempts,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    cfg.HTTP.BackoffBase,
			MaxDelay:     cfg.HTTP.BackoffMax,
			Multiplier:   2,
			JitterFactor: 0.1,
		},
		RetryableStatus: cfg.HTTP.RetryStatuses,
	}
	fc := web.NewFetchContext(cfg.HTTP.UserAgent, "", nil, nil)
	return web.NewClient(web.Options{
		PageTimeout:       cfg.HTTP.PageTimeout,
		AcceptLanguage:    cfg.HTTP.AcceptLanguage,
		Policy:            policy,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		RateStrategy:      cfg.HTTP.RateStrategy,
	}, fc, log)
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Workers:          cfg.Sniff.Workers,
		ResolveOriginals: cfg.Sniff.ResolveOriginals,
		DecodeDimensions: cfg.Sniff.DecodeDimensions,
		ProbeTimeout:     cfg.HTTP.ProbeTimeout,
		MetadataTimeout:  cfg.HTTP.MetadataTimeout,
		DownloadTimeout:  cfg.HTTP.DownloadTimeout,
	}
}

// OptionsFromConfig builds session options; the fetch identity starts from
// the configured user agent.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	order, err := ranking.ParseOrder(cfg.Sniff.Order)
	if err != nil {
		return Options{}, err
	}

	bopts := browser.DefaultOptions()
	bopts.Headless = cfg.Browser.Headless
	bopts.ChromePath = cfg.Browser.ChromePath
	bopts.WindowWidth = cfg.Browser.WindowWidth
	bopts.WindowHeight = cfg.Browser.WindowHeight
	bopts.Wait = time.Duration(cfg.Browser.WaitSeconds) * time.Second
	bopts.MaxScrolls = cfg.Browser.MaxScrolls
	bopts.Timeout = cfg.HTTP.PageTimeout + bopts.Timeout

	return Options{
		MinKB:   cfg.Sniff.MinSizeKB,
		Order:   order,
		Render:  cfg.Browser.Enabled,
		Browser: bopts,
		Fetch:   web.NewFetchContext(cfg.HTTP.UserAgent, "", nil, nil),
	}, nil
}

// Sniff discovers the images referenced by target, resolves each to its
// best variant, measures it, and returns those of at least MinKB.
// A page that cannot be loaded fails the session; per-image failures only
// lower what is known about that image.
func (s *Sniffer) Sniff(ctx context.Context, target string, opts Options, progress ProgressFunc) (*Result, error) {
	if err := validateTarget(target); err != nil {
		return nil, err
	}
	if opts.MinKB < 0 {
		return nil, errs.New(errs.ErrorTypeInvalidInput, 0, "minimum size must not be negative, got %d KB", opts.MinKB)
	}
	if opts.Order == "" {
		opts.Order = ranking.OrderBySize
	}

	start := time.Now()
	sessionID := uuid.NewString()
	log := s.logger.WithFields(map[string]interface{}{
		"session_id": sessionID,
		"target":     target,
	})
	report := newTracker(progress, log, target)

	log.InfoWithFields("Sniff session started", map[string]interface{}{
		"render": opts.Render,
		"min_kb": opts.MinKB,
		"order":  opts.Order.String(),
	})

	report.update("Fetching page", 0.1)
	page, err := s.loadPage(ctx, target, opts, log, report)
	if err != nil {
		log.WithError(err).Error("Failed to load page")
		return nil, err
	}

	n := len(page.candidates)
	report.update(fmt.Sprintf("Found %d candidates", n), 0.5)
	log.InfoWithFields("Candidates extracted", map[string]interface{}{
		"page_url":   page.url,
		"candidates": n,
	})

	result := &Result{
		SessionID:  sessionID,
		Target:     target,
		PageURL:    page.url,
		Candidates: n,
		Images:     []models.ResolvedImage{},
		Fetch:      page.fetch,
	}
	if n == 0 {
		result.Duration = time.Since(start)
		report.update("No images found", 1.0)
		return result, nil
	}

	images := s.inspect(ctx, page.candidates, page.fetch, log, report)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Checked = len(images)
	result.Images = ranking.Filter(images, opts.MinKB, opts.Order)
	result.Duration = time.Since(start)

	report.update(ranking.Describe(len(images), len(result.Images), opts.MinKB), 1.0)
	log.InfoWithFields("Sniff session completed", map[string]interface{}{
		"candidates": n,
		"kept":       len(result.Images),
		"duration":   result.Duration,
	})
	return result, nil
}

type loadedPage struct {
	url        string
	candidates []models.ImageCandidate
	fetch      web.FetchContext
}

// loadPage produces the candidate list either from a rendered DOM or from
// the raw markup. The browser, when used, is closed before returning.
func (s *Sniffer) loadPage(ctx context.Context, target string, opts Options, log logger.Logger, report *tracker) (*loadedPage, error) {
	if opts.Render {
		renderer, err := s.newRenderer(ctx, opts.Browser, log)
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypePageFetch, err, "failed to start browser")
		}
		defer renderer.Close()

		rendered, err := renderer.Render(ctx, target, opts.Fetch)
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypePageFetch, err, "failed to render %s", target)
		}
		renderer.Close()

		report.update("Extracting image references", 0.3)
		candidates, err := extract.FromDOM(rendered.Refs, rendered.URL)
		if err != nil {
			return nil, err
		}
		return &loadedPage{url: rendered.URL, candidates: candidates, fetch: rendered.Fetch}, nil
	}

	page, err := s.client.WithFetchContext(opts.Fetch).FetchPage(ctx, target)
	if err != nil {
		return nil, err
	}

	report.update("Extracting image references", 0.3)
	candidates, err := extract.ExtractCandidates(page.Content, page.URL)
	if err != nil {
		return nil, err
	}
	return &loadedPage{url: page.URL, candidates: candidates, fetch: opts.Fetch.WithReferer(page.URL)}, nil
}

// inspect resolves and measures every candidate with a bounded pool.
// Results are stored by candidate index.
func (s *Sniffer) inspect(ctx context.Context, candidates []models.ImageCandidate, fc web.FetchContext,
	log logger.Logger, report *tracker) []models.ResolvedImage {
	client := s.client.WithFetchContext(fc)
	res := resolver.New(client, resolver.Options{
		Enabled:      s.settings.ResolveOriginals,
		ProbeTimeout: s.settings.ProbeTimeout,
	}, log)
	meta := metadata.New(client, metadata.Options{
		Timeout:          s.settings.MetadataTimeout,
		DecodeDimensions: s.settings.DecodeDimensions,
	}, log)

	n := len(candidates)
	return workerpool.Map(candidates, s.settings.Workers, func(_ int, c models.ImageCandidate) models.ResolvedImage {
		if ctx.Err() != nil {
			return models.ResolvedImage{URL: c.RawURL}
		}
		return meta.FetchMetadata(ctx, res.ResolveOriginal(ctx, c.RawURL))
	}, func(done int, r workerpool.Result[models.ResolvedImage]) {
		report.update(fmt.Sprintf("Checked %d/%d: %s", done, n, r.Value.Filename), 0.5+float64(done)/float64(n)*0.4)
	}, log)
}

// DownloadOptions control where and how a result is saved
type DownloadOptions struct {
	Dir     string
	Ordinal bool
	Workers int
	// Resume skips images a previous download into Dir already saved and
	// records new ones in the directory's checkpoint
	Resume bool
	// Fresh discards Dir's checkpoint first, so nothing earlier is skipped
	Fresh bool
	// OnStart and OnResult are optional; OnResult runs on the caller's goroutine
	OnStart  func(img models.ResolvedImage)
	OnResult func(done int, r models.DownloadResult)
}

// Download saves images with the identity captured during the session
func (s *Sniffer) Download(ctx context.Context, result *Result, opts DownloadOptions) ([]models.DownloadResult, error) {
	storageOpts := []storage.Option{storage.WithTimeout(s.settings.DownloadTimeout)}
	if opts.OnStart != nil {
		storageOpts = append(storageOpts, storage.WithStartHook(opts.OnStart))
	}

	var (
		cpm *checkpoint.Manager
		cp  *checkpoint.Checkpoint
	)
	if opts.Resume {
		// consulted only once DownloadAll runs, after cp is loaded below
		storageOpts = append(storageOpts, storage.WithSkip(func(img models.ResolvedImage) (string, bool) {
			return cpm.Saved(cp, img.URL)
		}))
	}

	manager, err := storage.NewManager(opts.Dir, s.client.WithFetchContext(result.Fetch), s.logger, storageOpts...)
	if err != nil {
		return nil, err
	}

	if opts.Resume || opts.Fresh {
		cpm = checkpoint.NewManager(manager.Dir(), s.logger)
	}
	if opts.Fresh && cpm.Exists() {
		if err := cpm.Delete(); err != nil {
			return nil, err
		}
		s.logger.WithField("path", cpm.Path()).Info("Discarded download checkpoint")
	}
	if opts.Resume {
		cp, err = cpm.Load(result.Target)
		if err != nil {
			s.logger.WithError(err).Warn("Ignoring unreadable checkpoint")
			cp = checkpoint.New(result.Target)
		}
	}

	results := manager.DownloadAll(ctx, result.Images, opts.Ordinal, opts.Workers, opts.OnResult)

	if cp != nil {
		for _, r := range results {
			if r.Success && !r.Skipped {
				cp.Record(r.SourceURL, filepath.Base(r.SavedPath))
			}
		}
		if err := cpm.Save(cp); err != nil {
			s.logger.WithError(err).Warn("Failed to save checkpoint")
		}
	}
	return results, nil
}

func validateTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errs.New(errs.ErrorTypeInvalidInput, 0, "invalid target URL %q", target)
	}
	return nil
}
