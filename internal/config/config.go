// ABOUTME: Configuration loading and parsing for pnm-store
// ABOUTME: Supports YAML and TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/pnm-localstore/internal/engine/sqlite"
	"github.com/2389/pnm-localstore/internal/sessionstore"
)

// Storage engine names.
const (
	EngineSQLite = "sqlite"
	EngineRedis  = "redis"
	EngineMemory = "memory"
)

// DefaultRetention matches the cleanup window other client versions use.
const DefaultRetention = sessionstore.RetentionWindow

// Config represents the complete pnm-store configuration
type Config struct {
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`

	// Retention is how long a session database may sit idle before a later
	// session deletes it.
	Retention    time.Duration `yaml:"-" toml:"-"`
	RetentionRaw string        `yaml:"retention" toml:"retention"`
}

// StorageConfig selects and configures the storage engine
type StorageConfig struct {
	Engine string `yaml:"engine" toml:"engine"`

	// SQLite engine
	Dir    string `yaml:"dir" toml:"dir"`
	Driver string `yaml:"driver" toml:"driver"` // sqlite (pure Go) or sqlite3 (cgo)

	// Redis engine
	RedisURL       string `yaml:"redis_url" toml:"redis_url"`
	RedisNamespace string `yaml:"redis_namespace" toml:"redis_namespace"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no config file exists.
func Default(dataDir string) (*Config, error) {
	cfg := Config{Storage: StorageConfig{Dir: dataDir}}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) finish() error {
	c.applyDefaults()

	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
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

func (c *Config) applyDefaults() {
	if c.Storage.Engine == "" {
		c.Storage.Engine = EngineSQLite
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = sqlite.DriverPure
	}
	if c.RetentionRaw == "" {
		c.Retention = DefaultRetention
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case EngineSQLite:
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the sqlite engine")
		}
		if !sqlite.ValidDriver(c.Storage.Driver) {
			return fmt.Errorf("storage.driver must be %s or %s, got %q",
				sqlite.DriverPure, sqlite.DriverCGO, c.Storage.Driver)
		}
	case EngineRedis:
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("storage.redis_url is required for the redis engine")
		}
	case EngineMemory:
	default:
		return fmt.Errorf("storage.engine must be sqlite, redis or memory, got %q", c.Storage.Engine)
	}

	if c.Retention <= 0 {
		return fmt.Errorf("retention must be positive, got %s", c.Retention)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.RetentionRaw != "" {
		d, err := time.ParseDuration(cfg.RetentionRaw)
		if err != nil {
			return fmt.Errorf("parsing retention %q: %w", cfg.RetentionRaw, err)
		}
		cfg.Retention = d
	}
	return nil
}
