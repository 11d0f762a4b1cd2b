package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"imgsniff/pkg/config"
	"imgsniff/pkg/ui"
)

func newConfigCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
		Long: `Manage imgsniff configuration files.

Configuration is layered, highest priority first:
  - Command line flags
  - Environment variables (IMGSNIFF_*)
  - .env files
  - Configuration file
  - Default values`,
	}

	cmd.AddCommand(newConfigInitCmd(g))
	cmd.AddCommand(newConfigShowCmd(g))
	cmd.AddCommand(newConfigValidateCmd(g))
	return cmd
}

func newConfigInitCmd(g *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with the default values",
		Long: `Write a configuration file holding every option at its default value.

The file goes to --config when given, otherwise to
~/.config/imgsniff/config.yaml (or $XDG_CONFIG_HOME/imgsniff/config.yaml).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.configFile
			if path == "" {
				path = config.DefaultPath()
			}
			return initConfig(path, force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func initConfig(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Fprintln(ui.Output, "\nNext steps:")
	fmt.Fprintln(ui.Output, "1. Edit the file, e.g. raise sniff.min_size_kb or enable browser rendering")
	fmt.Fprintln(ui.Output, "2. Run 'imgsniff config validate' to check it")
	fmt.Fprintln(ui.Output, "3. Run 'imgsniff sniff <url>'")
	return nil
}

func newConfigShowCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Print the configuration that a sniff would run with, after merging the
configuration file, .env files, environment variables and defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(nil)
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to format configuration: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))

			source := g.configFile
			if source == "" {
				source = config.FindFile()
			}
			if source == "" {
				source = "(none found, using defaults)"
			}
			ui.PrintInfo("Configuration file", source)
			return nil
		},
	}
}

func newConfigValidateCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Load a configuration file, check every value and make sure the output
and log directories can be created.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.configFile
			if path == "" {
				path = config.FindFile()
			}
			if path == "" {
				return fmt.Errorf("no configuration file found, specify one with --config")
			}
			ui.PrintInfo("Validating configuration", path)

			cfg, err := config.Load(path, nil)
			if err != nil {
				return err
			}
			if err := checkPaths(cfg); err != nil {
				return err
			}

			ui.PrintSuccess("Configuration is valid")
			fmt.Fprintln(ui.Output, "\nConfiguration summary:")
			fmt.Fprintf(ui.Output, "  Minimum size: %d KB\n", cfg.Sniff.MinSizeKB)
			fmt.Fprintf(ui.Output, "  Order: %s\n", cfg.Sniff.Order)
			fmt.Fprintf(ui.Output, "  Metadata workers: %d\n", cfg.Sniff.Workers)
			fmt.Fprintf(ui.Output, "  Render with browser: %t\n", cfg.Browser.Enabled)
			fmt.Fprintf(ui.Output, "  Max attempts: %d\n", cfg.HTTP.MaxAttempts)
			fmt.Fprintf(ui.Output, "  Log level: %s\n", cfg.Logging.Level)
			return nil
		},
	}
}

// checkPaths makes sure the directories the configuration points at exist
func checkPaths(cfg *config.Config) error {
	if cfg.Output.Directory != "" {
		if err := os.MkdirAll(cfg.Output.Directory, 0755); err != nil {
			return fmt.Errorf("cannot create output directory: %w", err)
		}
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return fmt.Errorf("cannot create log directory: %w", err)
		}
	}
	return nil
}
