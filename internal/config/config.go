package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete application configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser" envconfig:"BROWSER"`
	Download DownloadConfig `yaml:"download" envconfig:"DOWNLOAD"`
	Archive  ArchiveConfig  `yaml:"archive" envconfig:"ARCHIVE"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
}

// BrowserConfig controls the chromedp session.
type BrowserConfig struct {
	Headless        bool          `yaml:"headless" envconfig:"HEADLESS"`
	ActionTimeout   time.Duration `yaml:"action_timeout" envconfig:"ACTION_TIMEOUT"`
	NavigateTimeout time.Duration `yaml:"navigate_timeout" envconfig:"NAVIGATE_TIMEOUT"`
}

// DownloadConfig controls completion detection and retry behavior.
type DownloadConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL"`
	WaitTimeout  time.Duration `yaml:"wait_timeout" envconfig:"WAIT_TIMEOUT"`
	MaxAttempts  int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	InitialDelay time.Duration `yaml:"initial_delay" envconfig:"INITIAL_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" envconfig:"MAX_DELAY"`
	Multiplier   float64       `yaml:"multiplier" envconfig:"MULTIPLIER"`
	// ExportsPerMinute paces export triggers against the platform.
	ExportsPerMinute float64 `yaml:"exports_per_minute" envconfig:"EXPORTS_PER_MINUTE"`
}

// ArchiveConfig controls the output layout.
type ArchiveConfig struct {
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR"`
	// MirrorURL, when set, replicates committed files to a gocloud blob
	// bucket (file://, mem://, or a cloud scheme).
	MirrorURL string `yaml:"mirror_url" envconfig:"MIRROR_URL"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Browser: BrowserConfig{
			Headless:        true,
			ActionTimeout:   30 * time.Second,
			NavigateTimeout: 2 * time.Minute,
		},
		Download: DownloadConfig{
			PollInterval:     500 * time.Millisecond,
			WaitTimeout:      3 * time.Minute,
			MaxAttempts:      3,
			InitialDelay:     1 * time.Second,
			MaxDelay:         30 * time.Second,
			Multiplier:       2.0,
			ExportsPerMinute: 30,
		},
		Archive: ArchiveConfig{
			DataDir: "data",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/bybit-history.log",
		},
	}
}

// Load builds the configuration in precedence order: environment variables
// (BYBIT_ prefix) over an optional config.yaml in the working directory,
// over the built-in defaults.
func Load() (*Config, error) {
	cfg := Default()

	const configFile = "config.yaml"
	if data, err := os.ReadFile(configFile); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", configFile, err)
		}
	}

	// Only variables that are actually set override; absent ones leave the
	// file and default values alone.
	if err := envconfig.Process("BYBIT", &cfg); err != nil {
		return nil, fmt.Errorf("load config from environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Download.MaxAttempts < 1 {
		return fmt.Errorf("download.max_attempts must be at least 1, got %d", c.Download.MaxAttempts)
	}
	if c.Download.Multiplier < 1 {
		return fmt.Errorf("download.multiplier must be at least 1, got %g", c.Download.Multiplier)
	}
	if c.Download.PollInterval <= 0 {
		return fmt.Errorf("download.poll_interval must be positive, got %s", c.Download.PollInterval)
	}
	if c.Download.WaitTimeout <= c.Download.PollInterval {
		return fmt.Errorf("download.wait_timeout %s must exceed poll_interval %s",
			c.Download.WaitTimeout, c.Download.PollInterval)
	}
	if c.Download.ExportsPerMinute <= 0 {
		// rate.NewLimiter(0, 1) would block every chunk forever.
		return fmt.Errorf("download.exports_per_minute must be positive, got %g", c.Download.ExportsPerMinute)
	}
	if c.Archive.DataDir == "" {
		return fmt.Errorf("archive.data_dir must not be empty")
	}
	return nil
}
