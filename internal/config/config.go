package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/relayctl/internal/property"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig        `yaml:"log"`
	Remote          RemoteConfig     `yaml:"remote"`
	Sync            SyncConfig       `yaml:"sync"`
	Writer          WriterConfig     `yaml:"writer"`
	Fade            FadeConfig       `yaml:"fade"`
	Properties      PropertiesConfig `yaml:"properties"`
	UI              UIConfig         `yaml:"ui"`
	Journal         JournalConfig    `yaml:"journal"`
	Status          StatusConfig     `yaml:"status"`
	ShutdownTimeout Duration         `yaml:"shutdown_timeout"` // Bound on flushing writes at exit
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Colors bool   `yaml:"colors"`
	JSON   bool   `yaml:"json"`
	File   string `yaml:"file"` // Log destination while the UI owns the terminal; empty = discard
}

// RemoteConfig contains gamma relay connection settings
type RemoteConfig struct {
	Service      string   `yaml:"service"`
	WriteTimeout Duration `yaml:"write_timeout"`

	// Change stream reconnect settings
	MinRetryBackoff Duration `yaml:"min_retry_backoff"` // Minimum backoff between reconnects (default: 500ms)
	MaxRetryBackoff Duration `yaml:"max_retry_backoff"` // Maximum backoff between reconnects (default: 30s)
	RetryMultiplier float64  `yaml:"retry_multiplier"`  // Backoff multiplier (default: 2.0)
	MaxReconnects   int      `yaml:"max_reconnects"`    // Max reconnect attempts, 0 = infinite (default: 0)
}

// SyncConfig tunes write coalescing and gesture handling
type SyncConfig struct {
	Window       Duration `yaml:"window"`        // Coalescing window per property (default: 40ms)
	RetryBackoff Duration `yaml:"retry_backoff"` // Delay before the single retry (default: 250ms)
	Quiescence   Duration `yaml:"quiescence"`    // Scroll inactivity that ends a session (default: 300ms)
	FineRatio    float64  `yaml:"fine_ratio"`    // Share of a step per fine wheel tick (default: 0.1)
	InboxSize    int      `yaml:"inbox_size"`
}

// WriterConfig contains write worker pool settings
type WriterConfig struct {
	Workers      int     `yaml:"workers"`        // Number of worker goroutines (default: 1)
	QueueSize    int     `yaml:"queue_size"`     // Per-worker queue size (default: 16)
	RateLimitRPS float64 `yaml:"rate_limit_rps"` // Writes per second across workers, 0 = unlimited (default: 50)
}

// FadeConfig contains window fade settings
type FadeConfig struct {
	Enabled  *bool    `yaml:"enabled"`
	Timeout  Duration `yaml:"timeout"`  // Idle time before fading starts (default: 3s)
	Duration Duration `yaml:"duration"` // Fade length (default: 1s)
	Tick     Duration `yaml:"tick"`     // Opacity update interval (default: 33ms)
}

// IsEnabled returns whether fading is enabled (default: true)
func (c *FadeConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// PropertyConfig configures one control
type PropertyConfig struct {
	Default *float64 `yaml:"default"`
	Hidden  bool     `yaml:"hidden"`
}

// PropertiesConfig configures every control
type PropertiesConfig struct {
	Temperature PropertyConfig `yaml:"temperature"`
	Brightness  PropertyConfig `yaml:"brightness"`
	Gamma       PropertyConfig `yaml:"gamma"`
	Inverted    PropertyConfig `yaml:"inverted"`
}

// Get returns the configuration of id.
func (c *PropertiesConfig) Get(id property.ID) *PropertyConfig {
	switch id {
	case property.Temperature:
		return &c.Temperature
	case property.Brightness:
		return &c.Brightness
	case property.Gamma:
		return &c.Gamma
	case property.Inverted:
		return &c.Inverted
	}
	return nil
}

// UIConfig contains terminal layout settings
type UIConfig struct {
	HideCaret    bool `yaml:"hide_caret"`
	HideLabels   bool `yaml:"hide_labels"`
	HideValue    bool `yaml:"hide_value"`
	OuterPadding int  `yaml:"outer_padding"`
	Width        int  `yaml:"width"`  // Window width in cells (default: 40)
	Height       int  `yaml:"height"` // Window height in rows, 0 = fit content
}

// JournalConfig contains write journal settings
type JournalConfig struct {
	Enabled         *bool    `yaml:"enabled"`
	Retention       Duration `yaml:"retention"`        // Entries older than this are removed (default: 10m)
	CleanupInterval Duration `yaml:"cleanup_interval"` // How often retention runs (default: 1m)
	Limit           int      `yaml:"limit"`            // Entries returned by the status endpoint (default: 100)
}

// IsEnabled returns whether the journal is enabled (default: true)
func (c *JournalConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// StatusConfig contains status server settings
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Address returns host:port.
func (c *StatusConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML, expanding environment variables and
// filling defaults.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Remote defaults
	if cfg.Remote.Service == "" {
		cfg.Remote.Service = "rs.wl-gammarelay"
	}
	if cfg.Remote.WriteTimeout == 0 {
		cfg.Remote.WriteTimeout = Duration(2 * time.Second)
	}
	if cfg.Remote.MinRetryBackoff == 0 {
		cfg.Remote.MinRetryBackoff = Duration(500 * time.Millisecond)
	}
	if cfg.Remote.MaxRetryBackoff == 0 {
		cfg.Remote.MaxRetryBackoff = Duration(30 * time.Second)
	}
	if cfg.Remote.RetryMultiplier == 0 {
		cfg.Remote.RetryMultiplier = 2.0
	}
	// MaxReconnects defaults to 0 (infinite), no need to set

	// Sync defaults
	if cfg.Sync.Window == 0 {
		cfg.Sync.Window = Duration(40 * time.Millisecond)
	}
	if cfg.Sync.RetryBackoff == 0 {
		cfg.Sync.RetryBackoff = Duration(250 * time.Millisecond)
	}
	if cfg.Sync.Quiescence == 0 {
		cfg.Sync.Quiescence = Duration(300 * time.Millisecond)
	}
	if cfg.Sync.FineRatio == 0 {
		cfg.Sync.FineRatio = 0.1
	}
	if cfg.Sync.InboxSize == 0 {
		cfg.Sync.InboxSize = 256
	}

	// Writer defaults
	if cfg.Writer.Workers == 0 {
		cfg.Writer.Workers = 1
	}
	if cfg.Writer.QueueSize == 0 {
		cfg.Writer.QueueSize = 16
	}
	if cfg.Writer.RateLimitRPS == 0 {
		cfg.Writer.RateLimitRPS = 50
	}

	// Fade defaults
	if cfg.Fade.Timeout == 0 {
		cfg.Fade.Timeout = Duration(3 * time.Second)
	}
	if cfg.Fade.Duration == 0 {
		cfg.Fade.Duration = Duration(time.Second)
	}
	if cfg.Fade.Tick == 0 {
		cfg.Fade.Tick = Duration(33 * time.Millisecond)
	}

	// Property defaults
	std := property.StandardDefaults()
	for _, id := range property.All {
		pc := cfg.Properties.Get(id)
		if pc.Default == nil {
			v := std.Values[id]
			pc.Default = &v
		}
	}

	// UI defaults
	if cfg.UI.Width == 0 {
		cfg.UI.Width = 40
	}
	if cfg.UI.OuterPadding == 0 {
		cfg.UI.OuterPadding = 1
	}

	// Journal defaults
	if cfg.Journal.Retention == 0 {
		cfg.Journal.Retention = Duration(10 * time.Minute)
	}
	if cfg.Journal.CleanupInterval == 0 {
		cfg.Journal.CleanupInterval = Duration(time.Minute)
	}
	if cfg.Journal.Limit == 0 {
		cfg.Journal.Limit = 100
	}

	// Status server defaults
	if cfg.Status.Port == 0 {
		cfg.Status.Port = 9091
	}
	if cfg.Status.Host == "" {
		cfg.Status.Host = "127.0.0.1"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(2 * time.Second)
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Sync.FineRatio <= 0 || c.Sync.FineRatio >= 1 {
		return fmt.Errorf("sync.fine_ratio must be between 0 and 1, got %v", c.Sync.FineRatio)
	}
	if c.Remote.RetryMultiplier < 1 {
		return fmt.Errorf("remote.retry_multiplier must be at least 1, got %v", c.Remote.RetryMultiplier)
	}
	if c.Writer.Workers < 0 || c.Writer.QueueSize < 0 || c.Writer.RateLimitRPS < 0 {
		return fmt.Errorf("writer settings must not be negative")
	}
	if c.UI.Width < 10 {
		return fmt.Errorf("ui.width must be at least 10 cells, got %d", c.UI.Width)
	}
	if c.UI.OuterPadding < 0 || c.UI.Height < 0 {
		return fmt.Errorf("ui.outer_padding and ui.height must not be negative")
	}
	return nil
}

// Defaults returns the reset values and visibility of every control.
func (c *Config) Defaults() property.Defaults {
	var d property.Defaults
	for _, id := range property.All {
		pc := c.Properties.Get(id)
		if pc.Default != nil {
			d.Values[id] = property.DomainOf(id).Clamp(*pc.Default)
		}
		d.Enabled[id] = !pc.Hidden
	}
	return d
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
