package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/rgbwfade/internal/color"
)

// Device drivers
const (
	DriverShelly = "shelly"
	DriverHue    = "hue"
)

// Config represents the application configuration
type Config struct {
	Device          DeviceConfig      `yaml:"device"`
	Fade            FadeConfig        `yaml:"fade"`
	Inputs          InputsConfig      `yaml:"inputs"`
	Database        DatabaseConfig    `yaml:"database"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	Log             LogConfig         `yaml:"log"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	Webhook         WebhookConfig     `yaml:"webhook"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	Dispatcher      DispatcherConfig  `yaml:"dispatcher"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// DeviceConfig selects and configures the light driver
type DeviceConfig struct {
	Driver string       `yaml:"driver"` // shelly or hue
	Shelly ShellyConfig `yaml:"shelly"`
	Hue    HueConfig    `yaml:"hue"`
}

// ShellyConfig contains Shelly Gen2 RPC connection settings
type ShellyConfig struct {
	Host     string   `yaml:"host"`
	URL      string   `yaml:"url"`       // overrides ws://<host>/rpc
	ClientID string   `yaml:"client_id"` // src of RPC frames
	Channel  int      `yaml:"channel"`   // RGBW component id
	Timeout  Duration `yaml:"timeout"`   // per RPC call

	// Reconnect settings
	MinRetryBackoff Duration `yaml:"min_retry_backoff"` // default: 1s
	MaxRetryBackoff Duration `yaml:"max_retry_backoff"` // default: 2m
	RetryMultiplier float64  `yaml:"retry_multiplier"`  // default: 2.0
	MaxReconnects   int      `yaml:"max_reconnects"`    // 0 = infinite
}

// HueConfig contains Hue bridge settings
type HueConfig struct {
	Bridge  string `yaml:"bridge"`
	Token   string `yaml:"token"`
	Light   int    `yaml:"light"`
	Buttons bool   `yaml:"buttons"` // listen to the bridge event stream for switch presses

	// Event stream reconnect settings
	MinRetryBackoff Duration `yaml:"min_retry_backoff"`
	MaxRetryBackoff Duration `yaml:"max_retry_backoff"`
	RetryMultiplier float64  `yaml:"retry_multiplier"`
	MaxReconnects   int      `yaml:"max_reconnects"`
}

// FadeConfig contains the fade cycle settings
type FadeConfig struct {
	Duration Duration     `yaml:"duration"` // one transition and one cycle
	Steps    int          `yaml:"steps"`
	Colors   []color.Spec `yaml:"colors"`
	Script   string       `yaml:"script"` // Lua palette script, replaces colors
}

// InputsConfig binds inputs to fade and power control
type InputsConfig struct {
	Toggle     string `yaml:"toggle"`      // default: input:1
	Power      string `yaml:"power"`       // default: input:0
	PressEvent string `yaml:"press_event"` // default: single_push
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains event ledger settings
type LedgerConfig struct {
	Enabled         *bool    `yaml:"enabled"` // default: true
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// IsEnabled reports whether the ledger is enabled
func (c *LedgerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Retention returns the retention period
func (c *LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"use_json"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns host:port
func (c *HealthcheckConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WebhookConfig contains webhook input server settings
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns host:port
func (c *WebhookConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 1, keeps input order)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 1
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// DispatcherConfig contains device command dispatcher settings
type DispatcherConfig struct {
	QueueSize    int      `yaml:"queue_size"`
	RateLimitRPS float64  `yaml:"rate_limit_rps"`
	CallTimeout  Duration `yaml:"call_timeout"`
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

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// DefaultColors is the red, green, blue cycle used when no colors are configured
func DefaultColors() []color.Spec {
	return []color.Spec{
		{Name: "red", R: 200},
		{Name: "green", G: 200},
		{Name: "blue", B: 200},
	}
}

// Load reads, parses and validates the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse parses configuration data, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./rgbwfade.sqlite"
	}

	// Device defaults
	if cfg.Device.Driver == "" {
		cfg.Device.Driver = DriverShelly
	}
	sh := &cfg.Device.Shelly
	if sh.URL == "" && sh.Host != "" {
		sh.URL = fmt.Sprintf("ws://%s/rpc", sh.Host)
	}
	if sh.ClientID == "" {
		sh.ClientID = "rgbwfade"
	}
	if sh.Timeout == 0 {
		sh.Timeout = Duration(5 * time.Second)
	}
	if sh.MinRetryBackoff == 0 {
		sh.MinRetryBackoff = Duration(1 * time.Second)
	}
	if sh.MaxRetryBackoff == 0 {
		sh.MaxRetryBackoff = Duration(2 * time.Minute)
	}
	if sh.RetryMultiplier == 0 {
		sh.RetryMultiplier = 2.0
	}
	hue := &cfg.Device.Hue
	if hue.MinRetryBackoff == 0 {
		hue.MinRetryBackoff = Duration(1 * time.Second)
	}
	if hue.MaxRetryBackoff == 0 {
		hue.MaxRetryBackoff = Duration(2 * time.Minute)
	}
	if hue.RetryMultiplier == 0 {
		hue.RetryMultiplier = 2.0
	}

	// Fade defaults: 10s cycle in 25 steps
	if cfg.Fade.Duration == 0 {
		cfg.Fade.Duration = Duration(10 * time.Second)
	}
	if cfg.Fade.Steps == 0 {
		cfg.Fade.Steps = 25
	}
	if cfg.Fade.Colors == nil && cfg.Fade.Script == "" {
		cfg.Fade.Colors = DefaultColors()
	}

	// Input bindings
	if cfg.Inputs.Toggle == "" {
		cfg.Inputs.Toggle = "input:1"
	}
	if cfg.Inputs.Power == "" {
		cfg.Inputs.Power = "input:0"
	}
	if cfg.Inputs.PressEvent == "" {
		cfg.Inputs.PressEvent = "single_push"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	// Webhook defaults
	if cfg.Webhook.Port == 0 {
		cfg.Webhook.Port = 8080
	}
	if cfg.Webhook.Host == "" {
		cfg.Webhook.Host = "0.0.0.0"
	}

	// Dispatcher defaults
	if cfg.Dispatcher.QueueSize == 0 {
		cfg.Dispatcher.QueueSize = 64
	}
	if cfg.Dispatcher.RateLimitRPS == 0 {
		cfg.Dispatcher.RateLimitRPS = 20.0
	}
	if cfg.Dispatcher.CallTimeout == 0 {
		cfg.Dispatcher.CallTimeout = Duration(5 * time.Second)
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks the configuration for values the daemon cannot run with
func (cfg *Config) Validate() error {
	var errs []error

	switch cfg.Device.Driver {
	case DriverShelly:
		if cfg.Device.Shelly.URL == "" {
			errs = append(errs, errors.New("device.shelly.host or device.shelly.url is required"))
		}
	case DriverHue:
		if cfg.Device.Hue.Bridge == "" || cfg.Device.Hue.Token == "" {
			errs = append(errs, errors.New("device.hue.bridge and device.hue.token are required"))
		}
		if cfg.Device.Hue.Light <= 0 {
			errs = append(errs, errors.New("device.hue.light must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown device.driver %q", cfg.Device.Driver))
	}

	if cfg.Fade.Steps <= 0 {
		errs = append(errs, fmt.Errorf("fade.steps must be positive, got %d", cfg.Fade.Steps))
	}
	if cfg.Fade.Duration <= 0 {
		errs = append(errs, fmt.Errorf("fade.duration must be positive, got %s", cfg.Fade.Duration.Duration()))
	} else if cfg.Fade.Steps > 0 && cfg.Fade.Duration.Duration() < time.Duration(cfg.Fade.Steps)*time.Millisecond {
		errs = append(errs, fmt.Errorf("fade.duration %s is shorter than one millisecond per step", cfg.Fade.Duration.Duration()))
	}

	// Script palettes are validated once they are evaluated
	if cfg.Fade.Script == "" {
		if _, err := color.FromSpecs(cfg.Fade.Colors); err != nil {
			errs = append(errs, fmt.Errorf("fade.colors: %w", err))
		}
	}

	if cfg.Inputs.Toggle == cfg.Inputs.Power {
		errs = append(errs, fmt.Errorf("inputs.toggle and inputs.power are both %q", cfg.Inputs.Toggle))
	}

	if cfg.Ledger.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("ledger.cleanup_interval must be positive, got %s", cfg.Ledger.CleanupInterval.Duration()))
	}
	if cfg.Ledger.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("ledger.retention_days must not be negative, got %d", cfg.Ledger.RetentionDays))
	}

	if cfg.Dispatcher.RateLimitRPS < 0 {
		errs = append(errs, errors.New("dispatcher.rate_limit_rps must not be negative"))
	}

	return errors.Join(errs...)
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
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

