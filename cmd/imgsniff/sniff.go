package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"imgsniff/pkg/config"
	"imgsniff/pkg/logger"
	"imgsniff/pkg/models"
	"imgsniff/pkg/profile"
	"imgsniff/pkg/ranking"
	"imgsniff/pkg/report"
	"imgsniff/pkg/sniffer"
	"imgsniff/pkg/storage"
	"imgsniff/pkg/ui"
	"imgsniff/pkg/web"
)

type sniffOptions struct {
	minKB       int
	render      bool
	wait        int
	scrolls     int
	workers     int
	rate        int
	rateStrat   string
	order       string
	noResolve   bool
	dimensions  bool
	download    string
	ordinal     bool
	concurrent  int
	resume      bool
	fresh       bool
	jsonPath    string
	profileName string
	cookie      string
	headers     []string
	userAgent   string
	notify      bool
	useTUI      bool
}

func newSniffCmd(g *globalOptions) *cobra.Command {
	return sniffCommand(g, &sniffOptions{})
}

func sniffCommand(g *globalOptions, o *sniffOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sniff <url>",
		Short: "List the large images a page references",
		Long: `Fetch a page, collect every image it references, resolve thumbnails to
their originals, measure each image and print those of at least --min-kb
kilobytes as a JSON array on stdout.

Requests can carry a stored profile (see 'imgsniff profile') or an ad-hoc
cookie, headers and user agent for pages that need a logged-in session.`,
		Example: `  # Images of at least 10 KB, largest first
  imgsniff sniff https://example.com/gallery

  # Render with Chrome to catch lazy-loaded images, keep page order
  imgsniff sniff https://example.com/feed --render --scrolls 20 --order page

  # Download everything over 100 KB as 001.jpg, 002.png, ...
  imgsniff sniff https://example.com/album --min-kb 100 --download ./album --ordinal

  # Use a stored profile and write results to a file
  imgsniff sniff https://example.com/private --profile work --json results.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := o.flagMap(cmd)
			if o.useTUI && g.logLevel == "" {
				// console logs would draw over the UI
				flags["log-level"] = "error"
			}
			cfg, err := g.setup(flags)
			if err != nil {
				return err
			}
			return runSniff(cmd.Context(), cfg, g, o, strings.TrimSpace(args[0]))
		},
	}

	f := cmd.Flags()
	f.IntVar(&o.minKB, "min-kb", 10, "minimum image size in kilobytes")
	f.BoolVar(&o.render, "render", false, "render the page in headless Chrome")
	f.IntVar(&o.wait, "wait", 5, "seconds to wait after scrolling in render mode")
	f.IntVar(&o.scrolls, "scrolls", 10, "maximum scrolls to trigger lazy loading in render mode")
	f.IntVarP(&o.workers, "workers", "w", 10, "concurrent metadata requests")
	f.IntVar(&o.rate, "rate", 0, "maximum requests per second to any one host (0 for no limit)")
	f.StringVar(&o.rateStrat, "rate-strategy", "window", "how --rate spreads requests: window or bucket (bursts)")
	f.StringVar(&o.order, "order", "size", "result order: size (largest first) or page")
	f.BoolVar(&o.noResolve, "no-resolve", false, "do not probe for full-size variants of thumbnails")
	f.BoolVar(&o.dimensions, "dimensions", false, "decode image headers to report width and height")
	f.StringVarP(&o.download, "download", "d", "", "download the images into this directory")
	f.BoolVar(&o.ordinal, "ordinal", false, "name downloads 001, 002, ... in result order")
	f.IntVar(&o.concurrent, "concurrent", 4, "concurrent downloads")
	f.BoolVar(&o.resume, "resume", false, "skip images a previous --download into the same directory saved")
	f.BoolVar(&o.fresh, "fresh", false, "discard the download directory's checkpoint before downloading")
	f.StringVarP(&o.jsonPath, "json", "o", "", "write results to this file instead of stdout ('-' for stdout)")
	f.StringVarP(&o.profileName, "profile", "p", "", "use a stored request profile")
	f.StringVar(&o.cookie, "cookie", "", "Cookie header to send, e.g. 'sid=abc; theme=dark'")
	f.StringArrayVarP(&o.headers, "header", "H", nil, "extra request header as Key=Value (repeatable)")
	f.StringVar(&o.userAgent, "user-agent", "", "User-Agent to send")
	f.BoolVar(&o.notify, "notify", false, "send a desktop notification when done")
	f.BoolVar(&o.useTUI, "tui", false, "show the interactive terminal UI")

	return cmd
}

// flagMap returns the configuration overrides for flags the user set
func (o *sniffOptions) flagMap(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	changed := cmd.Flags().Changed

	if changed("min-kb") {
		flags["min-kb"] = o.minKB
	}
	if changed("render") {
		flags["render"] = o.render
	}
	if changed("wait") {
		flags["wait"] = o.wait
	}
	if changed("scrolls") {
		flags["scrolls"] = o.scrolls
	}
	if changed("workers") {
		flags["workers"] = o.workers
	}
	if changed("rate") {
		flags["rate"] = o.rate
	}
	if changed("rate-strategy") {
		flags["rate-strategy"] = o.rateStrat
	}
	if changed("order") {
		flags["order"] = o.order
	}
	if changed("no-resolve") {
		flags["resolve"] = !o.noResolve
	}
	if changed("dimensions") {
		flags["dimensions"] = o.dimensions
	}
	if changed("download") {
		flags["download"] = o.download
	}
	if changed("ordinal") {
		flags["ordinal"] = o.ordinal
	}
	if changed("concurrent") {
		flags["concurrent"] = o.concurrent
	}
	if changed("resume") {
		flags["resume"] = o.resume
	}
	if changed("fresh") {
		flags["fresh"] = o.fresh
	}
	if changed("json") {
		flags["json"] = o.jsonPath
	}
	if changed("user-agent") {
		flags["user-agent"] = o.userAgent
	}
	if changed("notify") {
		flags["notifications"] = o.notify
	}
	return flags
}

// buildIdentity layers the request identity: configuration, then the stored
// profile, then ad-hoc cookie and header flags. An explicit --user-agent
// wins over a profile's.
func buildIdentity(base web.FetchContext, p *profile.Profile, o *sniffOptions) web.FetchContext {
	fc := base
	if p != nil {
		pfc := p.FetchContext()
		fc = fc.WithCookies(pfc.Cookies()).WithHeaders(pfc.Headers())
		if pfc.UserAgent() != "" {
			fc = fc.WithUserAgent(pfc.UserAgent())
		}
	}
	if o.cookie != "" {
		fc = fc.WithCookies(web.ParseCookieHeader(o.cookie))
	}
	if len(o.headers) > 0 {
		fc = fc.WithHeaders(web.ParseHeaderPairs(o.headers))
	}
	if o.userAgent != "" {
		fc = fc.WithUserAgent(o.userAgent)
	}
	return fc
}

func runSniff(ctx context.Context, cfg *config.Config, g *globalOptions, o *sniffOptions, target string) error {
	log := logger.GetLogger()

	sopts, err := sniffer.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	p, err := loadProfile(o.profileName, log)
	if err != nil {
		return err
	}
	sopts.Fetch = buildIdentity(sopts.Fetch, p, o)

	notifier := newNotifier(cfg)

	var view sessionView
	if o.useTUI {
		view = newTUIView(target)
	} else {
		view = newPlainView(target, g.quiet, cfg.Logging.Level == "debug")
	}

	err = view.run(ctx, func(ctx context.Context) error {
		return sniffAndSave(ctx, cfg, sopts, target, view)
	})
	if err != nil {
		notifier.SendError("imgsniff failed", err.Error())
		return err
	}
	notifier.SendSuccess("imgsniff finished", target)
	return nil
}

// sniffAndSave runs one session, writes the results and downloads if asked
func sniffAndSave(ctx context.Context, cfg *config.Config, sopts sniffer.Options, target string, view sessionView) error {
	s := sniffer.New(cfg, logger.GetLogger())

	result, err := s.Sniff(ctx, target, sopts, view.progress)
	if err != nil {
		return err
	}
	view.sniffed(result, ranking.Describe(result.Checked, len(result.Images), sopts.MinKB))

	if err := view.emit(cfg.Output.ResultsFile, result); err != nil {
		return err
	}

	if !cfg.Download.Enabled || len(result.Images) == 0 {
		return nil
	}

	return downloadImages(ctx, s, cfg, result, view)
}

// downloadImages saves result.Images into the configured directory
func downloadImages(ctx context.Context, s *sniffer.Sniffer, cfg *config.Config, result *sniffer.Result, view sessionView) error {
	dir := cfg.Output.Directory
	view.downloadsQueued(result.Images)
	results, err := s.Download(ctx, result, sniffer.DownloadOptions{
		Dir:      dir,
		Ordinal:  cfg.Output.OrdinalNames,
		Workers:  cfg.Download.Concurrent,
		Resume:   cfg.Download.Resume,
		Fresh:    cfg.Download.Fresh,
		OnStart:  view.downloadStarted,
		OnResult: view.downloaded,
	})
	if err != nil {
		return err
	}
	ok, total := storage.Summary(results)
	view.downloadsDone(dir, ok, total)
	return nil
}

// loadProfile returns the named stored profile, or nil when name is empty
func loadProfile(name string, log logger.Logger) (*profile.Profile, error) {
	if name == "" {
		return nil, nil
	}
	manager, err := profile.NewManager()
	if err != nil {
		return nil, fmt.Errorf("failed to open profile store: %w", err)
	}
	p, err := manager.Retrieve(name)
	if err != nil {
		return nil, fmt.Errorf("profile %q: %w", name, err)
	}
	log.WithField("profile", p.Name).Info("Using stored profile")
	return p, nil
}

func newNotifier(cfg *config.Config) *ui.Notifier {
	return ui.NewNotifier(ui.NotifyOptions{
		Enabled:    cfg.Notifications.Enabled,
		OnComplete: cfg.Notifications.OnComplete,
		OnError:    cfg.Notifications.OnError,
	})
}

// writeResults prints to stdout unless a file is configured
func writeResults(path string, records []models.Record) error {
	if toStdout(path) {
		return report.Write(os.Stdout, records)
	}
	return report.Save(path, records)
}

func toStdout(path string) bool {
	return path == "" || path == "-"
}
