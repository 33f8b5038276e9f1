// Package config loads socketchat settings from a YAML file, a .env file and
// the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultEndpoint   = "ws://localhost:4000"
	DefaultLogLevel   = "info"
	DefaultRelayAddr  = ":4000"
	DefaultRelayBurst = 5
)

// Environment variables read by ApplyEnv.
const (
	EnvEndpoint    = "SOCKETCHAT_ENDPOINT"
	EnvLogLevel    = "SOCKETCHAT_LOG_LEVEL"
	EnvRelayAddr   = "SOCKETCHAT_RELAY_ADDR"
	EnvDialTimeout = "SOCKETCHAT_DIAL_TIMEOUT"
	EnvRelayRate   = "SOCKETCHAT_RELAY_RATE"
	EnvRelayBurst  = "SOCKETCHAT_RELAY_BURST"
	EnvRelayNoEcho = "SOCKETCHAT_RELAY_NO_ECHO"
)

var (
	// ErrEmptyEndpoint is returned by Validate when no endpoint is configured.
	ErrEmptyEndpoint = errors.New("endpoint must not be empty")
	// ErrInvalidEndpoint is returned by Validate for non-WebSocket endpoints.
	ErrInvalidEndpoint = errors.New("endpoint must be a ws:// or wss:// URL")
)

// Config holds client and relay settings.
type Config struct {
	Endpoint    string        `yaml:"endpoint"`
	LogLevel    string        `yaml:"log_level"`
	DialTimeout time.Duration `yaml:"dial_timeout"`

	RelayAddr  string  `yaml:"relay_addr"`
	RelayEcho  bool    `yaml:"relay_echo"`
	RelayRate  float64 `yaml:"relay_rate"`
	RelayBurst int     `yaml:"relay_burst"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Endpoint:   DefaultEndpoint,
		LogLevel:   DefaultLogLevel,
		RelayAddr:  DefaultRelayAddr,
		RelayEcho:  true,
		RelayBurst: DefaultRelayBurst,
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnvFile loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is not an
// error.
func LoadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from SOCKETCHAT_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := lookup(EnvEndpoint); ok {
		c.Endpoint = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvRelayAddr); ok {
		c.RelayAddr = v
	}
	if v, ok := lookup(EnvDialTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDialTimeout, err)
		}
		c.DialTimeout = d
	}
	if v, ok := lookup(EnvRelayRate); ok {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRelayRate, err)
		}
		c.RelayRate = r
	}
	if v, ok := lookup(EnvRelayBurst); ok {
		b, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRelayBurst, err)
		}
		c.RelayBurst = b
	}
	if v, ok := lookup(EnvRelayNoEcho); ok {
		noEcho, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRelayNoEcho, err)
		}
		c.RelayEcho = !noEcho
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if err := ValidateEndpoint(c.Endpoint); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if c.DialTimeout < 0 {
		return fmt.Errorf("dial timeout must not be negative: %s", c.DialTimeout)
	}
	if c.RelayRate < 0 {
		return fmt.Errorf("relay rate must not be negative: %v", c.RelayRate)
	}
	if c.RelayBurst < 1 {
		return fmt.Errorf("relay burst must be at least 1: %d", c.RelayBurst)
	}
	return nil
}

// ValidateEndpoint reports whether endpoint is a WebSocket URL.
func ValidateEndpoint(endpoint string) error {
	if strings.TrimSpace(endpoint) == "" {
		return ErrEmptyEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: %s", ErrInvalidEndpoint, endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host in %s", ErrInvalidEndpoint, endpoint)
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
