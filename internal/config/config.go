// ABOUTME: Configuration loading and parsing for the farmhand daemon.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete farmhand configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Agents  AgentsConfig  `yaml:"agents"`
	Store   StoreConfig   `yaml:"store"`
	API     APIConfig     `yaml:"api"`
	Notify  NotifyConfig  `yaml:"notify"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServiceConfig locates the remote service endpoints shared by all bots.
type ServiceConfig struct {
	// Addr is the host:port of the session transport endpoint.
	Addr string `yaml:"addr"`

	// WebBaseURL is the base URL of the web session surface.
	WebBaseURL string `yaml:"web_base_url"`
}

// AgentsConfig holds settings shared by all bot instances.
type AgentsConfig struct {
	// Dir contains one <name>.toml settings file per bot, plus the bot's
	// login-key, sentry, and authenticator files.
	Dir string `yaml:"dir"`

	ConnectInterval  time.Duration `yaml:"-"`
	CallbackInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ConnectIntervalRaw  string `yaml:"connect_interval"`
	CallbackIntervalRaw string `yaml:"callback_interval"`
}

// StoreConfig holds activity database configuration.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// APIConfig holds the local HTTP API configuration.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// NotifyConfig holds push notification configuration.
type NotifyConfig struct {
	// URLs are shoutrrr service URLs; empty disables notifications.
	URLs []string `yaml:"urls"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment
// variable values. Unset variables are replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Service.Addr == "" {
		return fmt.Errorf("service.addr is required")
	}
	if c.Service.WebBaseURL == "" {
		return fmt.Errorf("service.web_base_url is required")
	}
	if c.Agents.Dir == "" {
		return fmt.Errorf("agents.dir is required")
	}

	if c.API.Enabled && c.API.Addr == "" {
		return fmt.Errorf("api.addr is required when api is enabled")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values,
// applying defaults where unset.
func parseDurations(cfg *Config) error {
	var err error

	cfg.Agents.ConnectInterval = 10 * time.Second
	if cfg.Agents.ConnectIntervalRaw != "" {
		cfg.Agents.ConnectInterval, err = time.ParseDuration(cfg.Agents.ConnectIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing connect_interval %q: %w", cfg.Agents.ConnectIntervalRaw, err)
		}
	}

	cfg.Agents.CallbackInterval = 500 * time.Millisecond
	if cfg.Agents.CallbackIntervalRaw != "" {
		cfg.Agents.CallbackInterval, err = time.ParseDuration(cfg.Agents.CallbackIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing callback_interval %q: %w", cfg.Agents.CallbackIntervalRaw, err)
		}
	}

	return nil
}
