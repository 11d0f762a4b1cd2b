package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"imgsniff/pkg/config"
	"imgsniff/pkg/logger"
	"imgsniff/pkg/models"
	"imgsniff/pkg/report"
	"imgsniff/pkg/sniffer"
	"imgsniff/pkg/ui"
	"imgsniff/pkg/web"
)

func newDownloadCmd(g *globalOptions) *cobra.Command {
	return downloadCommand(g, &sniffOptions{})
}

// downloadCommand shares sniffOptions with sniff so the identity and
// download flags mean the same thing in both commands.
func downloadCommand(g *globalOptions, o *sniffOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <results.json>",
		Short: "Download the images listed in a saved result file",
		Long: `Read a result list written by 'imgsniff sniff --json <file>' and download
every image in it, in the order listed. No page is fetched; pass the same
profile, cookie or headers the page needed if the images are protected.`,
		Example: `  imgsniff sniff https://example.com/album --json album.json
  imgsniff download album.json --dir ./album --ordinal

  # Pick up where an interrupted run stopped
  imgsniff download album.json --dir ./album --resume`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := o.flagMap(cmd)
			if cmd.Flags().Changed("dir") {
				flags["download"] = o.download
			}
			cfg, err := g.setup(flags)
			if err != nil {
				return err
			}
			return runDownload(cmd.Context(), cfg, g, o, strings.TrimSpace(args[0]))
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.download, "dir", "d", "", "directory to save into (default from output.directory)")
	f.BoolVar(&o.ordinal, "ordinal", false, "name downloads 001, 002, ... in list order")
	f.IntVar(&o.concurrent, "concurrent", 4, "concurrent downloads")
	f.BoolVar(&o.resume, "resume", false, "skip images a previous download into the same directory saved")
	f.BoolVar(&o.fresh, "fresh", false, "discard the directory's checkpoint before downloading")
	f.IntVar(&o.rate, "rate", 0, "maximum requests per second to any one host (0 for no limit)")
	f.StringVar(&o.rateStrat, "rate-strategy", "window", "how --rate spreads requests: window or bucket (bursts)")
	f.StringVarP(&o.profileName, "profile", "p", "", "use a stored request profile")
	f.StringVar(&o.cookie, "cookie", "", "Cookie header to send")
	f.StringArrayVarP(&o.headers, "header", "H", nil, "extra request header as Key=Value (repeatable)")
	f.StringVar(&o.userAgent, "user-agent", "", "User-Agent to send")
	f.BoolVar(&o.notify, "notify", false, "send a desktop notification when done")

	return cmd
}

// loadSavedResult turns a result file back into a session result that can
// be downloaded with fc
func loadSavedResult(path string, fc web.FetchContext) (*sniffer.Result, error) {
	records, err := report.Load(path)
	if err != nil {
		return nil, err
	}
	return &sniffer.Result{
		Target: path,
		Images: models.FromRecords(records),
		Fetch:  fc,
	}, nil
}

func runDownload(ctx context.Context, cfg *config.Config, g *globalOptions, o *sniffOptions, path string) error {
	log := logger.GetLogger()

	sopts, err := sniffer.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	p, err := loadProfile(o.profileName, log)
	if err != nil {
		return err
	}

	result, err := loadSavedResult(path, buildIdentity(sopts.Fetch, p, o))
	if err != nil {
		return err
	}
	if len(result.Images) == 0 {
		if !g.quiet {
			ui.PrintWarning("%s lists no images", path)
		}
		return nil
	}

	notifier := newNotifier(cfg)
	view := newPlainView(path, g.quiet, cfg.Logging.Level == "debug")
	err = view.run(ctx, func(ctx context.Context) error {
		return downloadImages(ctx, sniffer.New(cfg, log), cfg, result, view)
	})
	if err != nil {
		notifier.SendError("imgsniff download failed", err.Error())
		return err
	}
	notifier.SendSuccess("imgsniff download finished", fmt.Sprintf("%d images from %s", len(result.Images), path))
	return nil
}
