// ABOUTME: Configuration loading and parsing for coven-bot
// ABOUTME: Supports YAML or TOML files with env expansion, env overrides and validation

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/2389/coven-bot/internal/transport"
)

// EnvPrefix prefixes every environment override, e.g. COVEN_BOT_PROTOCOL.
const EnvPrefix = "COVEN_BOT"

// Defaults applied when a field is left empty.
const (
	DefaultReconnectInterval = transport.DefaultReconnectInterval
	DefaultRequestTimeout    = 30 * time.Second
	DefaultDrainTimeout      = 30 * time.Second
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
)

// ErrUnsupportedFormat is returned for config files that are neither YAML nor TOML.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Config represents the complete coven-bot configuration
type Config struct {
	Bot     BotConfig     `yaml:"bot" toml:"bot"`
	HTTP    HTTPConfig    `yaml:"http" toml:"http"`
	WS      WSConfig      `yaml:"ws" toml:"ws"`
	Runtime RuntimeConfig `yaml:"runtime" toml:"runtime"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// BotConfig selects the gateway protocol
type BotConfig struct {
	Protocol string `yaml:"protocol" toml:"protocol" validate:"required"`
}

// HTTPConfig holds the request/response endpoint
type HTTPConfig struct {
	Host           string        `yaml:"host" toml:"host" validate:"required,hostname_rfc1123"`
	Port           int           `yaml:"port" toml:"port" validate:"required,min=1,max=65535"`
	TLS            bool          `yaml:"tls" toml:"tls"`
	RequestTimeout time.Duration `yaml:"-" toml:"-"`

	RequestTimeoutRaw string `yaml:"request_timeout" toml:"request_timeout"`
}

// WSConfig holds the push channel endpoint. Host and port default to the
// HTTP endpoint's.
type WSConfig struct {
	Host              string        `yaml:"host" toml:"host" validate:"required,hostname_rfc1123"`
	Port              int           `yaml:"port" toml:"port" validate:"required,min=1,max=65535"`
	TLS               bool          `yaml:"tls" toml:"tls"`
	Path              string        `yaml:"path" toml:"path" validate:"omitempty,startswith=/"`
	ReconnectInterval time.Duration `yaml:"-" toml:"-"`

	ReconnectIntervalRaw string `yaml:"reconnect_interval" toml:"reconnect_interval"`
}

// RuntimeConfig holds supervisor timing
type RuntimeConfig struct {
	DrainTimeout time.Duration `yaml:"-" toml:"-"`

	DrainTimeoutRaw string `yaml:"drain_timeout" toml:"drain_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"oneof=text json"`
}

// overrides are read from COVEN_BOT_* variables. Unset variables leave the
// file value alone.
type overrides struct {
	Protocol  *string `envconfig:"PROTOCOL"`
	HTTPHost  *string `envconfig:"HTTP_HOST"`
	HTTPPort  *int    `envconfig:"HTTP_PORT"`
	WSHost    *string `envconfig:"WS_HOST"`
	WSPort    *int    `envconfig:"WS_PORT"`
	LogLevel  *string `envconfig:"LOG_LEVEL"`
	LogFormat *string `envconfig:"LOG_FORMAT"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads a configuration file from the given path and returns a parsed Config.
// The format follows the file extension: .toml for TOML, anything else is YAML.
// Environment variables in the format ${VAR_NAME} are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(expandEnvVars(string(data)), formatOf(path))
}

// Format names a config file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return Format(strings.TrimPrefix(filepath.Ext(path), "."))
	}
}

// Parse decodes already expanded config text.
func Parse(text string, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatYAML, "":
		if err := yaml.Unmarshal([]byte(text), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(text, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment overrides: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func applyEnvOverrides(cfg *Config) error {
	var ov overrides
	if err := envconfig.Process(EnvPrefix, &ov); err != nil {
		return err
	}
	if ov.Protocol != nil {
		cfg.Bot.Protocol = *ov.Protocol
	}
	if ov.HTTPHost != nil {
		cfg.HTTP.Host = *ov.HTTPHost
	}
	if ov.HTTPPort != nil {
		cfg.HTTP.Port = *ov.HTTPPort
	}
	if ov.WSHost != nil {
		cfg.WS.Host = *ov.WSHost
	}
	if ov.WSPort != nil {
		cfg.WS.Port = *ov.WSPort
	}
	if ov.LogLevel != nil {
		cfg.Logging.Level = *ov.LogLevel
	}
	if ov.LogFormat != nil {
		cfg.Logging.Format = *ov.LogFormat
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.WS.Host == "" {
		cfg.WS.Host = cfg.HTTP.Host
	}
	if cfg.WS.Port == 0 {
		cfg.WS.Port = cfg.HTTP.Port
		cfg.WS.TLS = cfg.WS.TLS || cfg.HTTP.TLS
	}
	if cfg.WS.ReconnectInterval == 0 {
		cfg.WS.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Runtime.DrainTimeout == 0 {
		cfg.Runtime.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
}

// Validate checks struct tags and the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.WS.ReconnectInterval < 0 {
		return fmt.Errorf("ws.reconnect_interval must be positive, got %s", c.WS.ReconnectInterval)
	}
	if c.HTTP.RequestTimeout < 0 {
		return fmt.Errorf("http.request_timeout must be positive, got %s", c.HTTP.RequestTimeout)
	}
	if c.Runtime.DrainTimeout < 0 {
		return fmt.Errorf("runtime.drain_timeout must be positive, got %s", c.Runtime.DrainTimeout)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"http.request_timeout", cfg.HTTP.RequestTimeoutRaw, &cfg.HTTP.RequestTimeout},
		{"ws.reconnect_interval", cfg.WS.ReconnectIntervalRaw, &cfg.WS.ReconnectInterval},
		{"runtime.drain_timeout", cfg.Runtime.DrainTimeoutRaw, &cfg.Runtime.DrainTimeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// TransportSettings returns the backend settings for transport.NewWare.
func (c *Config) TransportSettings() transport.Settings {
	return transport.Settings{
		HTTP:              transport.Endpoint{Host: c.HTTP.Host, Port: c.HTTP.Port, TLS: c.HTTP.TLS},
		WS:                transport.Endpoint{Host: c.WS.Host, Port: c.WS.Port, TLS: c.WS.TLS},
		WSPath:            c.WS.Path,
		ReconnectInterval: c.WS.ReconnectInterval,
		RequestTimeout:    c.HTTP.RequestTimeout,
	}
}

// ResolvePath picks the config file: the explicit flag value, then
// $COVEN_BOT_CONFIG, then $XDG_CONFIG_HOME/coven/bot.yaml.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "coven", "bot.yaml")
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "coven", "bot.yaml")
}
