package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultUserAgent is sent with every request unless a profile or flag overrides it
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config holds all configuration options for imgsniff
type Config struct {
	// HTTP session settings shared by every request
	HTTP HTTPConfig `yaml:"http" json:"http"`

	// Sniffing behavior
	Sniff SniffConfig `yaml:"sniff" json:"sniff"`

	// Headless browser settings for rendered-DOM mode
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Notification preferences
	Notifications NotificationConfig `yaml:"notifications" json:"notifications"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// HTTPConfig holds the shared client settings and the retry policy
type HTTPConfig struct {
	UserAgent       string        `yaml:"user_agent" json:"user_agent"`
	AcceptLanguage  string        `yaml:"accept_language" json:"accept_language"`
	PageTimeout     time.Duration `yaml:"page_timeout" json:"page_timeout"`
	ProbeTimeout    time.Duration `yaml:"probe_timeout" json:"probe_timeout"`
	MetadataTimeout time.Duration `yaml:"metadata_timeout" json:"metadata_timeout"`
	DownloadTimeout time.Duration `yaml:"download_timeout" json:"download_timeout"`
	MaxAttempts     int           `yaml:"max_attempts" json:"max_attempts"`
	BackoffBase     time.Duration `yaml:"backoff_base" json:"backoff_base"`
	BackoffMax      time.Duration `yaml:"backoff_max" json:"backoff_max"`
	RetryStatuses   []int         `yaml:"retry_statuses" json:"retry_statuses"`

	// RequestsPerSecond caps requests per host; 0 disables the cap
	RequestsPerSecond int `yaml:"requests_per_second" json:"requests_per_second"`
	// RateStrategy is "window" (spread over any second) or "bucket" (burst
	// at the start of each second)
	RateStrategy string `yaml:"rate_strategy" json:"rate_strategy"`
}

// SniffConfig holds extraction and ranking settings
type SniffConfig struct {
	MinSizeKB        int    `yaml:"min_size_kb" json:"min_size_kb"`
	Workers          int    `yaml:"workers" json:"workers"`
	Order            string `yaml:"order" json:"order"`
	ResolveOriginals bool   `yaml:"resolve_originals" json:"resolve_originals"`
	DecodeDimensions bool   `yaml:"decode_dimensions" json:"decode_dimensions"`
}

// BrowserConfig holds headless Chrome settings
type BrowserConfig struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	WaitSeconds  int    `yaml:"wait_seconds" json:"wait_seconds"`
	MaxScrolls   int    `yaml:"max_scrolls" json:"max_scrolls"`
	Headless     bool   `yaml:"headless" json:"headless"`
	ChromePath   string `yaml:"chrome_path" json:"chrome_path"`
	WindowWidth  int    `yaml:"window_width" json:"window_width"`
	WindowHeight int    `yaml:"window_height" json:"window_height"`
}

// OutputConfig holds output locations
type OutputConfig struct {
	Directory    string `yaml:"directory" json:"directory"`
	OrdinalNames bool   `yaml:"ordinal_names" json:"ordinal_names"`
	ResultsFile  string `yaml:"results_file" json:"results_file"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	Concurrent int  `yaml:"concurrent" json:"concurrent"`
	Resume     bool `yaml:"resume" json:"resume"`
	// Fresh discards the directory checkpoint before downloading
	Fresh bool `yaml:"fresh" json:"fresh"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	OnComplete bool `yaml:"on_complete" json:"on_complete"`
	OnError    bool `yaml:"on_error" json:"on_error"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	File    string `yaml:"file" json:"file"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			UserAgent:       DefaultUserAgent,
			AcceptLanguage:  "en-US,en;q=0.9",
			PageTimeout:     30 * time.Second,
			ProbeTimeout:    5 * time.Second,
			MetadataTimeout: 10 * time.Second,
			DownloadTimeout: 30 * time.Second,
			MaxAttempts:     3,
			BackoffBase:     1 * time.Second,
			BackoffMax:      10 * time.Second,
			RetryStatuses:   []int{429, 500, 502, 503, 504},
			RateStrategy:    "window",
		},
		Sniff: SniffConfig{
			MinSizeKB:        10,
			Workers:          10,
			Order:            "size",
			ResolveOriginals: true,
			DecodeDimensions: false,
		},
		Browser: BrowserConfig{
			Enabled:      false,
			WaitSeconds:  5,
			MaxScrolls:   10,
			Headless:     true,
			WindowWidth:  1920,
			WindowHeight: 1080,
		},
		Output: OutputConfig{
			Directory:    "./images",
			OrdinalNames: false,
		},
		Download: DownloadConfig{
			Enabled:    false,
			Concurrent: 4,
		},
		Notifications: NotificationConfig{
			Enabled:    false,
			OnComplete: true,
			OnError:    true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from IMGSNIFF_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if ua := os.Getenv("IMGSNIFF_USER_AGENT"); ua != "" {
		c.HTTP.UserAgent = ua
	}
	if v := os.Getenv("IMGSNIFF_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("IMGSNIFF_MAX_ATTEMPTS: %w", err))
		} else {
			c.HTTP.MaxAttempts = n
		}
	}
	if v := os.Getenv("IMGSNIFF_REQUESTS_PER_SECOND"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("IMGSNIFF_REQUESTS_PER_SECOND: %w", err))
		} else {
			c.HTTP.RequestsPerSecond = n
		}
	}
	if v := os.Getenv("IMGSNIFF_RATE_STRATEGY"); v != "" {
		c.HTTP.RateStrategy = v
	}
	if v := os.Getenv("IMGSNIFF_MIN_SIZE_KB"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("IMGSNIFF_MIN_SIZE_KB: %w", err))
		} else {
			c.Sniff.MinSizeKB = n
		}
	}
	if v := os.Getenv("IMGSNIFF_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("IMGSNIFF_WORKERS: %w", err))
		} else {
			c.Sniff.Workers = n
		}
	}
	if order := os.Getenv("IMGSNIFF_ORDER"); order != "" {
		c.Sniff.Order = order
	}
	if v := os.Getenv("IMGSNIFF_BROWSER"); v != "" {
		c.Browser.Enabled = parseBool(v)
	}
	if path := os.Getenv("IMGSNIFF_CHROME_PATH"); path != "" {
		c.Browser.ChromePath = path
	}
	if dir := os.Getenv("IMGSNIFF_OUTPUT_DIR"); dir != "" {
		c.Output.Directory = dir
	}
	if v := os.Getenv("IMGSNIFF_NOTIFICATIONS_ENABLED"); v != "" {
		c.Notifications.Enabled = parseBool(v)
	}
	if level := os.Getenv("IMGSNIFF_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if file := os.Getenv("IMGSNIFF_LOG_FILE"); file != "" {
		c.Logging.File = file
	}

	return errors.Join(errs...)
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".imgsniff.yaml",
		".imgsniff.yml",
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		locations = append(locations, filepath.Join(xdg, "imgsniff", "config.yaml"))
	}
	if home != "" {
		locations = append(locations,
			filepath.Join(home, ".config", "imgsniff", "config.yaml"),
			filepath.Join(home, ".config", "imgsniff", "config.yml"),
			filepath.Join(home, ".imgsniff.yaml"),
		)
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// FindFile returns the first config file present in the search path, or ""
func FindFile() string {
	return (&Config{}).findConfigFile()
}

// DefaultPath returns where `config init` writes a new file
func DefaultPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "imgsniff", "config.yaml")
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "imgsniff", "config.yaml")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.MaxAttempts < 1 {
		errs = append(errs, errors.New("max attempts must be at least 1"))
	}
	if c.HTTP.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("requests per second cannot be negative"))
	}
	switch strings.ToLower(c.HTTP.RateStrategy) {
	case "", "window", "bucket":
	default:
		errs = append(errs, fmt.Errorf("invalid rate strategy %q (want window or bucket)", c.HTTP.RateStrategy))
	}
	if c.HTTP.PageTimeout <= 0 || c.HTTP.ProbeTimeout <= 0 || c.HTTP.MetadataTimeout <= 0 || c.HTTP.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("http timeouts must be positive"))
	}
	if c.HTTP.BackoffBase < 0 || c.HTTP.BackoffMax < c.HTTP.BackoffBase {
		errs = append(errs, errors.New("backoff max must be >= backoff base >= 0"))
	}
	for _, code := range c.HTTP.RetryStatuses {
		if code < 100 || code > 599 {
			errs = append(errs, fmt.Errorf("invalid retry status %d", code))
		}
	}

	if c.Sniff.MinSizeKB < 0 {
		errs = append(errs, errors.New("minimum size cannot be negative"))
	}
	if c.Sniff.Workers <= 0 || c.Sniff.Workers > 32 {
		errs = append(errs, errors.New("workers must be between 1 and 32"))
	}
	switch strings.ToLower(c.Sniff.Order) {
	case "size", "page":
	default:
		errs = append(errs, fmt.Errorf("invalid order %q (want size or page)", c.Sniff.Order))
	}

	if c.Browser.WaitSeconds < 0 {
		errs = append(errs, errors.New("browser wait cannot be negative"))
	}
	if c.Browser.MaxScrolls < 0 {
		errs = append(errs, errors.New("max scrolls cannot be negative"))
	}

	if c.Download.Enabled && c.Output.Directory == "" {
		errs = append(errs, errors.New("output directory is required when downloading"))
	}
	if c.Download.Concurrent <= 0 || c.Download.Concurrent > 16 {
		errs = append(errs, errors.New("concurrent downloads must be between 1 and 16"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map are applied.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["user-agent"].(string); ok && v != "" {
		c.HTTP.UserAgent = v
	}
	if v, ok := flags["max-attempts"].(int); ok && v > 0 {
		c.HTTP.MaxAttempts = v
	}
	if v, ok := flags["rate"].(int); ok && v >= 0 {
		c.HTTP.RequestsPerSecond = v
	}
	if v, ok := flags["rate-strategy"].(string); ok && v != "" {
		c.HTTP.RateStrategy = v
	}
	if v, ok := flags["min-kb"].(int); ok {
		c.Sniff.MinSizeKB = v
	}
	if v, ok := flags["workers"].(int); ok && v > 0 {
		c.Sniff.Workers = v
	}
	if v, ok := flags["order"].(string); ok && v != "" {
		c.Sniff.Order = v
	}
	if v, ok := flags["resolve"].(bool); ok {
		c.Sniff.ResolveOriginals = v
	}
	if v, ok := flags["dimensions"].(bool); ok {
		c.Sniff.DecodeDimensions = v
	}
	if v, ok := flags["render"].(bool); ok {
		c.Browser.Enabled = v
	}
	if v, ok := flags["wait"].(int); ok {
		c.Browser.WaitSeconds = v
	}
	if v, ok := flags["scrolls"].(int); ok {
		c.Browser.MaxScrolls = v
	}
	if v, ok := flags["download"].(string); ok && v != "" {
		c.Download.Enabled = true
		c.Output.Directory = v
	}
	if v, ok := flags["ordinal"].(bool); ok {
		c.Output.OrdinalNames = v
	}
	if v, ok := flags["concurrent"].(int); ok && v > 0 {
		c.Download.Concurrent = v
	}
	if v, ok := flags["resume"].(bool); ok {
		c.Download.Resume = v
	}
	if v, ok := flags["fresh"].(bool); ok {
		c.Download.Fresh = v
	}
	if v, ok := flags["json"].(string); ok && v != "" {
		c.Output.ResultsFile = v
	}
	if v, ok := flags["notifications"].(bool); ok {
		c.Notifications.Enabled = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := flags["no-color"].(bool); ok {
		c.Logging.NoColor = v
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".imgsniff.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
