// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Helpdesk() HelpdeskConfig
	Tracker() TrackerConfig
	Poll() PollConfig
	Download() DownloadConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserAttachURL(string)

	// Helpdesk Setters
	SetHelpdeskBaseURL(string)

	// Download Setters
	SetDownloadConcurrency(int)
}

// Config holds the entire application configuration.
// It uses private fields to enforce access through the Interface's getter methods.
type Config struct {
	logger   LoggerConfig
	browser  BrowserConfig
	helpdesk HelpdeskConfig
	tracker  TrackerConfig
	poll     PollConfig
	download DownloadConfig
}

// rawConfig is the unmarshaling shadow of Config: viper needs exported
// fields, Config deliberately has none.
type rawConfig struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Helpdesk HelpdeskConfig `mapstructure:"helpdesk" yaml:"helpdesk"`
	Tracker  TrackerConfig  `mapstructure:"tracker" yaml:"tracker"`
	Poll     PollConfig     `mapstructure:"poll" yaml:"poll"`
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
}

func (r rawConfig) config() *Config {
	return &Config{
		logger:   r.Logger,
		browser:  r.Browser,
		helpdesk: r.Helpdesk,
		tracker:  r.Tracker,
		poll:     r.Poll,
		download: r.Download,
	}
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.logger }
func (c *Config) Browser() BrowserConfig   { return c.browser }
func (c *Config) Helpdesk() HelpdeskConfig { return c.helpdesk }
func (c *Config) Tracker() TrackerConfig   { return c.tracker }
func (c *Config) Poll() PollConfig         { return c.poll }
func (c *Config) Download() DownloadConfig { return c.download }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)      { c.browser.Headless = b }
func (c *Config) SetBrowserAttachURL(u string)   { c.browser.AttachURL = u }
func (c *Config) SetHelpdeskBaseURL(u string)    { c.helpdesk.BaseURL = u }
func (c *Config) SetDownloadConcurrency(n int)   { c.download.Concurrency = n }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the browser the tool attaches to or launches.
type BrowserConfig struct {
	// AttachURL is the DevTools websocket/HTTP endpoint of an already running
	// Chrome instance. When empty, a new instance is launched.
	AttachURL       string         `mapstructure:"attach_url" yaml:"attach_url"`
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        map[string]int `mapstructure:"viewport" yaml:"viewport"`
	// EvalTimeout bounds a single script evaluation, not a poll chain.
	EvalTimeout time.Duration `mapstructure:"eval_timeout" yaml:"eval_timeout"`
}

// HelpdeskConfig describes the helpdesk instance whose REST API is queried.
type HelpdeskConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	// AgentTicketURL is the prefix used to build agent-facing ticket links.
	AgentTicketURL string `mapstructure:"agent_ticket_url" yaml:"agent_ticket_url"`
}

// TrackerConfig describes the issue tracker "Create Issue" form automation.
type TrackerConfig struct {
	Project string `mapstructure:"project" yaml:"project"`
	// PatcherURL is the endpoint of the patch baseline service consulted
	// while pre-filling the baseline field.
	PatcherURL string        `mapstructure:"patcher_url" yaml:"patcher_url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// PollConfig tunes the DOM readiness polling.
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	// WidgetInterval is the slower cadence used while waiting for whole
	// widgets (editor, form modal) rather than individual elements.
	WidgetInterval time.Duration `mapstructure:"widget_interval" yaml:"widget_interval"`
}

// DownloadConfig tunes the bulk attachment downloader.
type DownloadConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
	// RatePerSecond caps download starts to stay polite against the file host.
	RatePerSecond float64       `mapstructure:"rate_per_second" yaml:"rate_per_second"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return raw.config()
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "deskmate")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.attach_url", "")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.eval_timeout", "20s")

	// -- Helpdesk --
	v.SetDefault("helpdesk.base_url", "")
	v.SetDefault("helpdesk.timeout", "30s")
	v.SetDefault("helpdesk.agent_ticket_url", "")

	// -- Tracker --
	v.SetDefault("tracker.project", "LPP")
	v.SetDefault("tracker.patcher_url", "https://patcher.liferay.com")
	v.SetDefault("tracker.timeout", "30s")

	// -- Poll --
	v.SetDefault("poll.interval", "100ms")
	v.SetDefault("poll.widget_interval", "1s")

	// -- Download --
	v.SetDefault("download.concurrency", 4)
	v.SetDefault("download.rate_per_second", 8.0)
	v.SetDefault("download.timeout", "5m")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var raw rawConfig

	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg := raw.config()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be a positive duration")
	}
	if c.poll.WidgetInterval <= 0 {
		return fmt.Errorf("poll.widget_interval must be a positive duration")
	}
	if c.download.Concurrency <= 0 {
		return fmt.Errorf("download.concurrency must be a positive integer")
	}
	if c.download.RatePerSecond <= 0 {
		return fmt.Errorf("download.rate_per_second must be positive")
	}
	return nil
}
