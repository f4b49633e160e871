// Package config loads the gateway's typed configuration once at
// startup from environment variables, with an optional TOML file
// overlay for operators who prefer a file to env vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// DefaultBaseURL is the upstream OpenAI-compatible endpoint used
	// when OPENAI_API_BASE_URL is not set.
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultPort is the gateway's listen port, matching the real
	// Ollama daemon's default so existing clients need no reconfiguration.
	DefaultPort = 11434
	// DefaultRequestTimeout is the unary upstream call deadline in seconds.
	DefaultRequestTimeout = 60
	// DefaultStreamTimeout bounds the lifetime of a streaming upstream call.
	DefaultStreamTimeout = 300 * time.Second
	// DefaultLogLevel is used when LOG_LEVEL is unset; an unrecognized
	// level is rejected by Validate.
	DefaultLogLevel = "INFO"
)

// Config is the gateway's fully-resolved, immutable-after-construction
// configuration. It is built once at startup and passed by reference
// into the Upstream Client and Router; nothing reads the environment
// again during request handling.
type Config struct {
	OpenAIAPIKey   string        `toml:"-"`
	OpenAIBaseURL  string        `toml:"base_url"`
	Port           int           `toml:"port"`
	LogLevel       string        `toml:"log_level"`
	RequestTimeout time.Duration `toml:"-"`
	StreamTimeout  time.Duration `toml:"-"`
}

// fileOverlay is the shape of the optional TOML config file. Only
// non-secret fields may be set this way; the API key always comes from
// the environment.
type fileOverlay struct {
	BaseURL        string `toml:"base_url"`
	Port           int    `toml:"port"`
	LogLevel       string `toml:"log_level"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Load builds a Config from the process environment, optionally
// overlaying a TOML file at path if it exists. A missing file is not an
// error, whether path is the default or was given explicitly.
func Load(path string) (*Config, error) {
	cfg := &Config{
		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:  strings.TrimSuffix(getenvOr("OPENAI_API_BASE_URL", DefaultBaseURL), "/"),
		Port:           DefaultPort,
		LogLevel:       getenvOr("LOG_LEVEL", DefaultLogLevel),
		RequestTimeout: DefaultRequestTimeout * time.Second,
		StreamTimeout:  DefaultStreamTimeout,
	}

	if v := os.Getenv("PROXY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PROXY_PORT %q: %w", v, err)
		}
		cfg.Port = port
	}

	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUEST_TIMEOUT %q: %w", v, err)
		}
		cfg.RequestTimeout = time.Duration(secs) * time.Second
	}

	if path != "" {
		if err := applyFileOverlay(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyFileOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}

	var overlay fileOverlay
	if err := toml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if overlay.BaseURL != "" {
		cfg.OpenAIBaseURL = strings.TrimSuffix(overlay.BaseURL, "/")
	}
	if overlay.Port != 0 {
		cfg.Port = overlay.Port
	}
	if overlay.LogLevel != "" {
		cfg.LogLevel = overlay.LogLevel
	}
	if overlay.RequestTimeout != 0 {
		cfg.RequestTimeout = time.Duration(overlay.RequestTimeout) * time.Second
	}

	return nil
}

// Validate checks the resolved configuration for the constraints spec.md
// §6 places on environment inputs.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", c.Port)
	}
	if c.RequestTimeout < time.Second {
		return fmt.Errorf("request timeout must be at least 1 second")
	}
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}

func getenvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
