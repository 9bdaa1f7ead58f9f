// ABOUTME: Configuration loading and parsing for agentrelay.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete agentrelay configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Agents    AgentsConfig    `yaml:"agents"`
	Providers ProvidersConfig `yaml:"providers"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AgentsConfig holds orchestration timing and failover configuration.
type AgentsConfig struct {
	Default         string `yaml:"default"`          // fallback provider: "claude" or "codex"
	FailoverEnabled bool   `yaml:"failover_enabled"` // switch to the alternate provider on send failure

	ResponseTimeout time.Duration `yaml:"-"` // hard ceiling per send
	IdleTimeout     time.Duration `yaml:"-"` // idle-completion quiet period
	SettleTimeout   time.Duration `yaml:"-"` // spawn settle window
	StopGrace       time.Duration `yaml:"-"` // each bounded wait during stop escalation

	// Raw string values for YAML unmarshaling
	ResponseTimeoutRaw string `yaml:"response_timeout"`
	IdleTimeoutRaw     string `yaml:"idle_timeout"`
	SettleTimeoutRaw   string `yaml:"settle_timeout"`
	StopGraceRaw       string `yaml:"stop_grace"`
}

// ProvidersConfig holds the launch configuration for the closed provider set.
type ProvidersConfig struct {
	Claude ProviderConfig `yaml:"claude"`
	Codex  ProviderConfig `yaml:"codex"`
}

// ProviderConfig holds one provider's host launch configuration.
type ProviderConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Command  string   `yaml:"command"`
	BaseArgs []string `yaml:"base_args"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Timing defaults applied when the config omits a value.
const (
	DefaultResponseTimeout = 5 * time.Minute
	DefaultIdleTimeout     = 2 * time.Second
	DefaultSettleTimeout   = 1500 * time.Millisecond
	DefaultStopGrace       = 3 * time.Second
)

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

// Provider returns the launch configuration for a provider name, and whether
// the name is part of the closed set.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	switch name {
	case "claude":
		return c.Providers.Claude, true
	case "codex":
		return c.Providers.Codex, true
	}
	return ProviderConfig{}, false
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	def, ok := c.Provider(c.Agents.Default)
	if !ok {
		return fmt.Errorf("agents.default must be %q or %q, got %q", "claude", "codex", c.Agents.Default)
	}
	if !def.Enabled {
		return fmt.Errorf("agents.default %q is not enabled", c.Agents.Default)
	}

	for _, name := range []string{"claude", "codex"} {
		p, _ := c.Provider(name)
		if p.Enabled && p.Command == "" {
			return fmt.Errorf("providers.%s.command is required when enabled", name)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Agents.ResponseTimeoutRaw != "" {
		cfg.Agents.ResponseTimeout, err = time.ParseDuration(cfg.Agents.ResponseTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing response_timeout %q: %w", cfg.Agents.ResponseTimeoutRaw, err)
		}
	}

	if cfg.Agents.IdleTimeoutRaw != "" {
		cfg.Agents.IdleTimeout, err = time.ParseDuration(cfg.Agents.IdleTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing idle_timeout %q: %w", cfg.Agents.IdleTimeoutRaw, err)
		}
	}

	if cfg.Agents.SettleTimeoutRaw != "" {
		cfg.Agents.SettleTimeout, err = time.ParseDuration(cfg.Agents.SettleTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing settle_timeout %q: %w", cfg.Agents.SettleTimeoutRaw, err)
		}
	}

	if cfg.Agents.StopGraceRaw != "" {
		cfg.Agents.StopGrace, err = time.ParseDuration(cfg.Agents.StopGraceRaw)
		if err != nil {
			return fmt.Errorf("parsing stop_grace %q: %w", cfg.Agents.StopGraceRaw, err)
		}
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Agents.ResponseTimeout == 0 {
		cfg.Agents.ResponseTimeout = DefaultResponseTimeout
	}
	if cfg.Agents.IdleTimeout == 0 {
		cfg.Agents.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Agents.SettleTimeout == 0 {
		cfg.Agents.SettleTimeout = DefaultSettleTimeout
	}
	if cfg.Agents.StopGrace == 0 {
		cfg.Agents.StopGrace = DefaultStopGrace
	}
	if cfg.Agents.Default == "" {
		cfg.Agents.Default = "claude"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}
