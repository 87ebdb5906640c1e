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

// Config holds all configuration options for igharvest
type Config struct {
	// Attempt loop and extraction settings
	Scrape ScrapeConfig `yaml:"scrape" json:"scrape"`

	// Headless browser settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Human-like pacing
	Pacing PacingConfig `yaml:"pacing" json:"pacing"`

	// Persisted cookie sessions
	Session SessionConfig `yaml:"session" json:"session"`

	// Login flow used when a login wall shows up
	Login LoginConfig `yaml:"login" json:"login"`

	// Optional outbound proxies
	Proxy ProxyConfig `yaml:"proxy" json:"proxy"`

	// Content and execution store
	Store StoreConfig `yaml:"store" json:"store"`

	// Media download settings
	Media MediaConfig `yaml:"media" json:"media"`

	// Prometheus metrics
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ScrapeConfig controls the attempt orchestrator
type ScrapeConfig struct {
	BaseURL          string        `yaml:"base_url" json:"base_url"`
	MaxAttempts      int           `yaml:"max_attempts" json:"max_attempts"`
	BatchTarget      int           `yaml:"batch_target" json:"batch_target"`
	BackoffMin       time.Duration `yaml:"backoff_min" json:"backoff_min"`
	BackoffMax       time.Duration `yaml:"backoff_max" json:"backoff_max"`
	SweepProbability float64       `yaml:"sweep_probability" json:"sweep_probability"`
	ScriptStrategy   bool          `yaml:"script_strategy" json:"script_strategy"`
	PatternStrategy  bool          `yaml:"pattern_strategy" json:"pattern_strategy"`
}

// BrowserConfig holds browser session factory settings
type BrowserConfig struct {
	Headless        bool          `yaml:"headless" json:"headless"`
	ExecPath        string        `yaml:"exec_path" json:"exec_path"`
	PageLoadTimeout time.Duration `yaml:"page_load_timeout" json:"page_load_timeout"`
	ElementWait     time.Duration `yaml:"element_wait" json:"element_wait"`
	UserAgents      []string      `yaml:"user_agents" json:"user_agents"`
	Viewports       []string      `yaml:"viewports" json:"viewports"`
	Locale          string        `yaml:"locale" json:"locale"`
}

// PacingConfig holds human pacing settings
type PacingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Scale multiplies every delay; 1.0 keeps the built-in windows
	Scale float64 `yaml:"scale" json:"scale"`
}

// SessionConfig holds cookie session store settings
type SessionConfig struct {
	Directory string        `yaml:"directory" json:"directory"`
	MaxAge    time.Duration `yaml:"max_age" json:"max_age"`
	Retention time.Duration `yaml:"retention" json:"retention"`
}

// LoginConfig holds login flow settings
type LoginConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Account string `yaml:"account" json:"account"`
}

// ProxyConfig holds proxy rotation settings
type ProxyConfig struct {
	Servers []string `yaml:"servers" json:"servers"`
	Mode    string   `yaml:"mode" json:"mode"`
}

// StoreConfig holds persistence settings
type StoreConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// MediaConfig holds media download configuration
type MediaConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	Workers           int           `yaml:"workers" json:"workers"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	OutputDirectory   string        `yaml:"output_directory" json:"output_directory"`
	MaxBytes          int64         `yaml:"max_bytes" json:"max_bytes"`
}

// MetricsConfig holds metrics exposition settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// DefaultUserAgents is the identity pool used when none is configured
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
}

// DefaultViewports is the viewport pool used when none is configured
var DefaultViewports = []string{
	"1920x1080",
	"1366x768",
	"1440x900",
	"1600x900",
	"1280x720",
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Scrape: ScrapeConfig{
			BaseURL:          "https://www.instagram.com/",
			MaxAttempts:      3,
			BatchTarget:      6,
			BackoffMin:       3 * time.Second,
			BackoffMax:       8 * time.Second,
			SweepProbability: 0.1,
			ScriptStrategy:   true,
			PatternStrategy:  true,
		},
		Browser: BrowserConfig{
			Headless:        true,
			PageLoadTimeout: 30 * time.Second,
			ElementWait:     5 * time.Second,
			UserAgents:      append([]string(nil), DefaultUserAgents...),
			Viewports:       append([]string(nil), DefaultViewports...),
			Locale:          "en-US",
		},
		Pacing: PacingConfig{
			Enabled: true,
			Scale:   1.0,
		},
		Session: SessionConfig{
			Directory: "",
			MaxAge:    24 * time.Hour,
			Retention: 7 * 24 * time.Hour,
		},
		Login: LoginConfig{
			Enabled: true,
		},
		Proxy: ProxyConfig{
			Mode: "round_robin",
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "igharvest.db",
		},
		Media: MediaConfig{
			Enabled:           false,
			Workers:           2,
			RequestsPerMinute: 30,
			Timeout:           30 * time.Second,
			OutputDirectory:   "./media",
			MaxBytes:          10 << 20,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9464",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv("IGHARVEST_BASE_URL"); v != "" {
		c.Scrape.BaseURL = v
	}
	if v := os.Getenv("IGHARVEST_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("IGHARVEST_MAX_ATTEMPTS: %w", err))
		} else {
			c.Scrape.MaxAttempts = n
		}
	}
	if v := os.Getenv("IGHARVEST_HEADLESS"); v != "" {
		c.Browser.Headless = strings.ToLower(v) != "false"
	}
	if v := os.Getenv("IGHARVEST_CHROME_PATH"); v != "" {
		c.Browser.ExecPath = v
	}
	if v := os.Getenv("IGHARVEST_SESSION_DIR"); v != "" {
		c.Session.Directory = v
	}
	if v := os.Getenv("IGHARVEST_LOGIN_ACCOUNT"); v != "" {
		c.Login.Account = v
	}
	if v := os.Getenv("IGHARVEST_LOGIN_ENABLED"); v != "" {
		c.Login.Enabled = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("IGHARVEST_PROXIES"); v != "" {
		c.Proxy.Servers = splitList(v)
	}
	if v := os.Getenv("IGHARVEST_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv("IGHARVEST_MEDIA_ENABLED"); v != "" {
		c.Media.Enabled = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("IGHARVEST_MEDIA_DIR"); v != "" {
		c.Media.OutputDirectory = v
	}
	if v := os.Getenv("IGHARVEST_METRICS_LISTEN"); v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Listen = v
	}
	if v := os.Getenv("IGHARVEST_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("IGHARVEST_LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
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
		".igharvest.yaml",
		".igharvest.yml",
		filepath.Join(home, ".config", "igharvest", "config.yaml"),
		filepath.Join(home, ".config", "igharvest", "config.yml"),
		filepath.Join(home, ".igharvest.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Scrape.BaseURL == "" {
		errs = append(errs, errors.New("base URL is required"))
	}
	if c.Scrape.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max attempts must be positive"))
	}
	if c.Scrape.BatchTarget <= 0 {
		errs = append(errs, errors.New("batch target must be positive"))
	}
	if c.Scrape.BackoffMin < 0 || c.Scrape.BackoffMax < c.Scrape.BackoffMin {
		errs = append(errs, errors.New("backoff window must satisfy 0 <= min <= max"))
	}
	if c.Scrape.SweepProbability < 0 || c.Scrape.SweepProbability > 1 {
		errs = append(errs, errors.New("sweep probability must be within [0, 1]"))
	}

	if len(c.Browser.UserAgents) == 0 {
		errs = append(errs, errors.New("at least one user agent is required"))
	}
	if len(c.Browser.Viewports) == 0 {
		errs = append(errs, errors.New("at least one viewport is required"))
	}
	for _, vp := range c.Browser.Viewports {
		if _, _, err := ParseViewport(vp); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Browser.PageLoadTimeout <= 0 {
		errs = append(errs, errors.New("page load timeout must be positive"))
	}

	if c.Pacing.Scale < 0 {
		errs = append(errs, errors.New("pacing scale cannot be negative"))
	}

	if c.Session.MaxAge <= 0 {
		errs = append(errs, errors.New("session max age must be positive"))
	}
	if c.Session.Retention < c.Session.MaxAge {
		errs = append(errs, errors.New("session retention must not be shorter than max age"))
	}

	switch strings.ToLower(c.Proxy.Mode) {
	case "round_robin", "random":
	default:
		errs = append(errs, fmt.Errorf("invalid proxy mode: %s", c.Proxy.Mode))
	}

	switch strings.ToLower(c.Store.Driver) {
	case "sqlite":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("sqlite store requires a DSN"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("invalid store driver: %s", c.Store.Driver))
	}

	if c.Media.Enabled {
		if c.Media.Workers <= 0 || c.Media.Workers > 10 {
			errs = append(errs, errors.New("media workers must be between 1 and 10"))
		}
		if c.Media.RequestsPerMinute <= 0 {
			errs = append(errs, errors.New("media requests per minute must be positive"))
		}
		if c.Media.Timeout <= 0 {
			errs = append(errs, errors.New("media timeout must be positive"))
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ParseViewport parses a "WIDTHxHEIGHT" string
func ParseViewport(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid viewport %q", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("invalid viewport width in %q", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("invalid viewport height in %q", s)
	}
	return width, height, nil
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

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["max-attempts"].(int); ok && v > 0 {
		c.Scrape.MaxAttempts = v
	}
	if v, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = v
	}
	if v, ok := flags["account"].(string); ok && v != "" {
		c.Login.Account = v
	}
	if v, ok := flags["no-login"].(bool); ok && v {
		c.Login.Enabled = false
	}
	if v, ok := flags["db"].(string); ok && v != "" {
		c.Store.DSN = v
	}
	if v, ok := flags["media"].(bool); ok && v {
		c.Media.Enabled = true
	}
	if v, ok := flags["proxy"].([]string); ok && len(v) > 0 {
		c.Proxy.Servers = v
	}
	if v, ok := flags["metrics-listen"].(string); ok && v != "" {
		c.Metrics.Enabled = true
		c.Metrics.Listen = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igharvest.env"))

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
