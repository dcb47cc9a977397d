package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Bulbs           []BulbConfig      `yaml:"bulbs"`
	Database        DatabaseConfig    `yaml:"database"`
	Log             LogConfig         `yaml:"log"`
	API             APIConfig         `yaml:"api"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	Poll            PollConfig        `yaml:"poll"`
	Exchange        ExchangeConfig    `yaml:"exchange"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	Script          string            `yaml:"script"`           // Optional Lua script run at startup
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// BulbConfig describes one bulb on the local network
type BulbConfig struct {
	Name    string   `yaml:"name"`
	IP      string   `yaml:"ip"`
	Port    int      `yaml:"port"`    // UDP control port (default: 9999)
	Timeout Duration `yaml:"timeout"` // Status reply wait (default: 3s)
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the log level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// APIConfig contains HTTP control API settings
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// PollConfig controls periodic status queries
type PollConfig struct {
	Interval Duration `yaml:"interval"` // 0 disables polling
}

// ExchangeConfig limits outbound traffic to bulbs
type ExchangeConfig struct {
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// LedgerConfig contains exchange ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// Retention returns the retention period as a duration
func (c *LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
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

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, applying defaults and validation
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./kl130d.sqlite"
	}

	// Bulb defaults
	for i := range cfg.Bulbs {
		if cfg.Bulbs[i].Port == 0 {
			cfg.Bulbs[i].Port = 9999
		}
		if cfg.Bulbs[i].Timeout == 0 {
			cfg.Bulbs[i].Timeout = Duration(3 * time.Second)
		}
	}

	// API defaults
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	// Poll interval defaults to 0 (disabled), no need to set

	if cfg.Exchange.RateLimitRPS == 0 {
		cfg.Exchange.RateLimitRPS = 10.0
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks the bulb list and the periodic task intervals
func (cfg *Config) Validate() error {
	seen := make(map[string]bool, len(cfg.Bulbs))
	for i, b := range cfg.Bulbs {
		if b.Name == "" {
			return fmt.Errorf("bulbs[%d]: name is required", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("bulbs[%d]: duplicate name %q", i, b.Name)
		}
		seen[b.Name] = true
		if ip := net.ParseIP(b.IP); ip == nil || ip.To4() == nil {
			return fmt.Errorf("bulb %q: invalid IPv4 address %q", b.Name, b.IP)
		}
		if b.Timeout <= 0 {
			return fmt.Errorf("bulb %q: timeout must be positive", b.Name)
		}
		if b.Port < 0 || b.Port > 65535 {
			return fmt.Errorf("bulb %q: invalid port %d", b.Name, b.Port)
		}
	}

	// tickers panic on non-positive periods
	if cfg.Poll.Interval < 0 {
		return fmt.Errorf("poll.interval must not be negative")
	}
	if cfg.Ledger.CleanupInterval <= 0 {
		return fmt.Errorf("ledger.cleanup_interval must be positive")
	}
	if cfg.Ledger.RetentionDays <= 0 {
		return fmt.Errorf("ledger.retention_days must be positive")
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	return nil
}

// GetShutdownTimeout returns the shutdown timeout as a duration
func (cfg *Config) GetShutdownTimeout() time.Duration {
	return cfg.ShutdownTimeout.Duration()
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
