// Package browser renders pages in headless Chrome so that script-inserted
// and lazily loaded images can be found.
package browser

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	errs "imgsniff/pkg/errors"
	"imgsniff/pkg/extract"
	"imgsniff/pkg/logger"
	"imgsniff/pkg/retry"
	"imgsniff/pkg/web"
)

// Options configures the Chrome instance and the lazy-load behavior
type Options struct {
	Headless     bool
	ChromePath   string
	WindowWidth  int
	WindowHeight int
	// Wait is slept after scrolling so late requests can settle
	Wait        time.Duration
	MaxScrolls  int
	ScrollPause time.Duration
	// Timeout bounds a whole Render call
	Timeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Headless:     true,
		WindowWidth:  1920,
		WindowHeight: 1080,
		Wait:         5 * time.Second,
		MaxScrolls:   10,
		ScrollPause:  500 * time.Millisecond,
		Timeout:      90 * time.Second,
	}
}

// Result is what a render yields: references in page order and the
// identity the browser used, for reuse by plain HTTP requests.
type Result struct {
	URL   string
	Refs  []extract.DOMRef
	Fetch web.FetchContext
}

// Session owns one Chrome process and one tab. Close must be called.
type Session struct {
	opts   Options
	logger logger.Logger

	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	tabCtx      context.Context
	cancelTab   context.CancelFunc

	closeOnce sync.Once
}

// NewSession starts Chrome. It fails when no browser can be launched.
func NewSession(ctx context.Context, opts Options, log logger.Logger) (*Session, error) {
	log = logger.OrGlobal(log)
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &Session{
		opts:        opts,
		logger:      log,
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
	}

	stop := context.AfterFunc(ctx, s.Close)
	defer stop()

	// an empty Run launches the browser
	if err := chromedp.Run(tabCtx); err != nil {
		s.Close()
		return nil, errs.Wrap(errs.ErrorTypePageFetch, err, "failed to start browser")
	}

	logger.LogComponentStart(log, "browser", map[string]interface{}{
		"headless": opts.Headless,
		"scrolls":  opts.MaxScrolls,
		"wait":     opts.Wait,
	})
	return s, nil
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	width, height := opts.WindowWidth, opts.WindowHeight
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-sync", true),
		chromedp.WindowSize(width, height),
	)
	if opts.ChromePath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromePath))
	}
	return allocOpts
}

// Render loads target, scrolls to trigger lazy loading, waits, and collects
// image references. fc supplies the identity to browse with; the returned
// Result.Fetch carries the browser's final cookies, user agent and the page
// URL as referer.
func (s *Session) Render(ctx context.Context, target string, fc web.FetchContext) (*Result, error) {
	runCtx, cancel := context.WithTimeout(s.tabCtx, s.opts.Timeout+s.opts.Wait)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, identityActions(fc, target)...); err != nil {
		return nil, errs.Wrap(errs.ErrorTypePageFetch, err, "failed to configure browser")
	}

	err := retry.Do(runCtx, func(ctx context.Context) error {
		return chromedp.Run(ctx,
			chromedp.Navigate(target),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
	}, &retry.Config{
		MaxAttempts: 2,
		Backoff:     &retry.ConstantBackoff{Delay: time.Second},
		Logger:      s.logger,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypePageFetch, err, "failed to load %s", target)
	}

	scrolls, err := scrollUntilStable(runCtx, s.opts.MaxScrolls, s.opts.ScrollPause, s.pageHeight, s.scrollToBottom)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypePageFetch, err, "failed while scrolling %s", target)
	}
	s.logger.DebugWithFields("page scrolled", map[string]interface{}{
		"url":     target,
		"scrolls": scrolls,
	})

	var (
		finalURL  string
		userAgent string
		rawRefs   string
		cookies   []*network.Cookie
	)
	err = chromedp.Run(runCtx,
		chromedp.Sleep(s.opts.Wait),
		chromedp.Location(&finalURL),
		chromedp.Evaluate(`navigator.userAgent`, &userAgent),
		chromedp.Evaluate(collectScript, &rawRefs),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().WithURLs([]string{finalURL}).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypePageFetch, err, "failed to read rendered page %s", target)
	}

	refs, err := decodeRefs(rawRefs)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "failed to decode page references")
	}
	if finalURL == "" {
		finalURL = target
	}

	httpCookies := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if hc := cookieFromNetwork(c); hc != nil {
			httpCookies = append(httpCookies, hc)
		}
	}
	if fc.UserAgent() != "" {
		userAgent = fc.UserAgent()
	}

	return &Result{
		URL:   finalURL,
		Refs:  refs,
		Fetch: fc.WithUserAgent(userAgent).WithReferer(finalURL).WithCookies(httpCookies),
	}, nil
}

func identityActions(fc web.FetchContext, target string) []chromedp.Action {
	actions := []chromedp.Action{network.Enable()}

	if ua := fc.UserAgent(); ua != "" {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(ua).Do(ctx)
		}))
	}
	if extra := extraHeaders(fc); len(extra) > 0 {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetExtraHTTPHeaders(extra).Do(ctx)
		}))
	}
	if cookies := fc.Cookies(); len(cookies) > 0 {
		params := cookieParams(cookies, target)
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookies(params).Do(ctx)
		}))
	}
	return actions
}

func (s *Session) pageHeight(ctx context.Context) (int64, error) {
	var h int64
	err := chromedp.Run(ctx, chromedp.Evaluate(`document.body ? document.body.scrollHeight : 0`, &h))
	return h, err
}

func (s *Session) scrollToBottom(ctx context.Context) error {
	return chromedp.Run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

// scrollUntilStable scrolls at most max times, stopping early once the page
// height stops growing. It returns the number of scrolls performed.
func scrollUntilStable(ctx context.Context, max int, pause time.Duration,
	height func(context.Context) (int64, error), scroll func(context.Context) error) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	last, err := height(ctx)
	if err != nil {
		return 0, err
	}
	for i := 1; i <= max; i++ {
		if err := scroll(ctx); err != nil {
			return i - 1, err
		}
		if err := retry.Wait(ctx, pause); err != nil {
			return i, err
		}
		h, err := height(ctx)
		if err != nil {
			return i, err
		}
		if h <= last {
			return i, nil
		}
		last = h
	}
	return max, nil
}

// Close tears down the tab and the browser process. Safe to call twice.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancelTab()
		s.cancelAlloc()
		logger.LogComponentStop(s.logger, "browser", "session closed")
	})
}
