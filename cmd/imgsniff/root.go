package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"imgsniff/pkg/config"
	"imgsniff/pkg/logger"
	"imgsniff/pkg/ui"
)

var (
	// Version information, set with -ldflags
	version   = "0.3.0"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, %s %s/%s)",
		version, gitCommit, buildDate, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	configFile string
	logLevel   string
	quiet      bool
	noColor    bool
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "imgsniff",
		Short: "Find the real, full-size images behind a web page",
		Long: `imgsniff discovers the image resources a web page references, swaps
thumbnails for their full-size originals where the site follows common
naming conventions, measures every image over HTTP, and lists (or downloads)
the ones above a size threshold.

Pages can be read as static markup or rendered in headless Chrome so that
lazily loaded and script-inserted images are found too.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ui.ConfigureColor(g.noColor)
		},
	}

	cmd.PersistentFlags().StringVarP(&g.configFile, "config", "c", "", "config file (default is ./.imgsniff.yaml or ~/.config/imgsniff/config.yaml)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVarP(&g.quiet, "quiet", "q", false, "suppress everything except results and errors")
	cmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "disable colored output")

	cmd.AddCommand(newSniffCmd(g))
	cmd.AddCommand(newDownloadCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newProfileCmd(g))

	return cmd
}

// loadConfig merges the global flags into flags and loads the configuration
func (g *globalOptions) loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if g.logLevel != "" {
		flags["log-level"] = g.logLevel
	}
	if g.quiet && g.logLevel == "" {
		flags["log-level"] = "error"
	}
	if g.noColor {
		flags["no-color"] = true
	}
	return config.Load(g.configFile, flags)
}

// setup loads configuration and initializes the global logger
func (g *globalOptions) setup(flags map[string]interface{}) (*config.Config, error) {
	cfg, err := g.loadConfig(flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}
