// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Locator  LocatorConfig  `mapstructure:"locator" yaml:"locator"`
	Queue    QueueConfig    `mapstructure:"queue" yaml:"queue"`
	Cooldown CooldownConfig `mapstructure:"cooldown" yaml:"cooldown"`
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Control  ControlConfig  `mapstructure:"control" yaml:"control"`
	Progress ProgressConfig `mapstructure:"progress" yaml:"progress"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig holds settings for the headless browser instance.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir       string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	TargetURL         string        `mapstructure:"target_url" yaml:"target_url"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// MatcherConfig is one entry of a ranked element matcher table.
type MatcherConfig struct {
	Name  string `mapstructure:"name" yaml:"name"`
	XPath string `mapstructure:"xpath" yaml:"xpath"`
}

// LocatorConfig overrides the compiled-in matcher tables. An empty list keeps
// the built-in defaults for that table; a populated list replaces it wholesale,
// order preserved.
type LocatorConfig struct {
	Composer []MatcherConfig `mapstructure:"composer" yaml:"composer"`
	Submit   []MatcherConfig `mapstructure:"submit" yaml:"submit"`
	Stop     []MatcherConfig `mapstructure:"stop" yaml:"stop"`
	Busy     []MatcherConfig `mapstructure:"busy" yaml:"busy"`
}

// QueueConfig tunes the queue processor and the completion detector.
type QueueConfig struct {
	IdleTimeout           time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	PollInterval          time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SettleDelay           time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	ItemDelay             time.Duration `mapstructure:"item_delay" yaml:"item_delay"`
	ComposerAttempts      int           `mapstructure:"composer_attempts" yaml:"composer_attempts"`
	ComposerRetryInterval time.Duration `mapstructure:"composer_retry_interval" yaml:"composer_retry_interval"`
	AcceptWindow          time.Duration `mapstructure:"accept_window" yaml:"accept_window"`
	PreviewLength         int           `mapstructure:"preview_length" yaml:"preview_length"`
}

// CooldownConfig tunes the rate-limit retry policy.
type CooldownConfig struct {
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	JitterMin   time.Duration `mapstructure:"jitter_min" yaml:"jitter_min"`
	JitterMax   time.Duration `mapstructure:"jitter_max" yaml:"jitter_max"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// APIConfig configures the direct image-generation API client.
type APIConfig struct {
	Endpoint          string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey            string        `mapstructure:"api_key" yaml:"-"`
	Model             string        `mapstructure:"model" yaml:"model"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerMinute float64       `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
}

// StoreBackend enumerates the supported sequence store backends.
type StoreBackend string

const (
	BackendFile     StoreBackend = "file"
	BackendPostgres StoreBackend = "postgres"
)

// StoreConfig selects and configures sequence persistence.
type StoreConfig struct {
	Backend     StoreBackend `mapstructure:"backend" yaml:"backend"`
	DataDir     string       `mapstructure:"data_dir" yaml:"data_dir"`
	PostgresURL string       `mapstructure:"postgres_url" yaml:"-"`
}

// ControlConfig configures the local control HTTP server.
type ControlConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ProgressConfig configures the progress event transport.
type ProgressConfig struct {
	LogFile string `mapstructure:"log_file" yaml:"log_file"`
	Buffer  int    `mapstructure:"buffer" yaml:"buffer"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "promptq")
	v.SetDefault("logger.log_file", "promptq.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1440)
	v.SetDefault("browser.window_height", 960)
	v.SetDefault("browser.user_data_dir", "~/.promptq/chrome")
	v.SetDefault("browser.navigation_timeout", "90s")
	v.SetDefault("browser.action_timeout", "15s")

	// -- Queue --
	v.SetDefault("queue.idle_timeout", "5m")
	v.SetDefault("queue.poll_interval", "1s")
	v.SetDefault("queue.settle_delay", "2s")
	v.SetDefault("queue.item_delay", "1500ms")
	v.SetDefault("queue.composer_attempts", 20)
	v.SetDefault("queue.composer_retry_interval", "500ms")
	v.SetDefault("queue.accept_window", "10s")
	v.SetDefault("queue.preview_length", 60)

	// -- Cooldown --
	v.SetDefault("cooldown.base_delay", "60s")
	v.SetDefault("cooldown.jitter_min", "5s")
	v.SetDefault("cooldown.jitter_max", "10s")
	v.SetDefault("cooldown.max_attempts", 3)

	// -- API --
	v.SetDefault("api.timeout", "120s")
	v.SetDefault("api.requests_per_minute", 6.0)
	v.SetDefault("api.burst", 1)

	// -- Store --
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.data_dir", "~/.promptq")

	// -- Control --
	v.SetDefault("control.addr", "127.0.0.1:8750")
	v.SetDefault("control.shutdown_timeout", "10s")

	// -- Progress --
	v.SetDefault("progress.log_file", "~/.promptq/progress.log")
	v.SetDefault("progress.buffer", 64)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("api.api_key", "PROMPTQ_API_KEY")
	v.BindEnv("store.postgres_url", "PROMPTQ_POSTGRES_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Unmarshal can miss pure-env keys when no other key of the section is set.
	if cfg.API.APIKey == "" {
		cfg.API.APIKey = os.Getenv("PROMPTQ_API_KEY")
	}
	if cfg.Store.PostgresURL == "" {
		cfg.Store.PostgresURL = os.Getenv("PROMPTQ_POSTGRES_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue configuration invalid: %w", err)
	}
	if c.Cooldown.MaxAttempts < 1 {
		return fmt.Errorf("cooldown.max_attempts must be at least 1")
	}
	if c.Cooldown.BaseDelay < 0 {
		return fmt.Errorf("cooldown.base_delay must not be negative")
	}
	switch c.Store.Backend {
	case BackendFile, BackendPostgres:
	default:
		return fmt.Errorf("store.backend must be one of [%s, %s], got %q", BackendFile, BackendPostgres, c.Store.Backend)
	}
	if c.Store.Backend == BackendPostgres && c.Store.PostgresURL == "" {
		return fmt.Errorf("store.postgres_url is required when store.backend is %q (set PROMPTQ_POSTGRES_URL)", BackendPostgres)
	}
	if c.Control.Addr == "" {
		return fmt.Errorf("control.addr must not be empty")
	}
	return nil
}

// Validate checks the queue processor settings.
func (q *QueueConfig) Validate() error {
	if q.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	if q.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be a positive duration")
	}
	if q.ComposerAttempts <= 0 {
		return fmt.Errorf("composer_attempts must be greater than 0")
	}
	if q.SettleDelay < 0 || q.ItemDelay < 0 {
		return fmt.Errorf("settle_delay and item_delay must not be negative")
	}
	return nil
}
