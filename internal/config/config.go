// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Listener struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"listener"`

	API struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"api"`

	Database struct {
		Driver string `yaml:"driver"` // "sqlite" or "postgres"
		Path   string `yaml:"path"`   // sqlite database file
		URL    string `yaml:"url"`    // postgres DSN
	} `yaml:"database"`

	// RetentionDays is the purge window in days; fractional values allowed.
	RetentionDays float64 `yaml:"retention_days"`

	RabbitMQ struct {
		URL string `yaml:"url"` // empty disables the stored-message publisher
	} `yaml:"rabbitmq"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"` // empty leaves the admin endpoints open
	} `yaml:"auth"`

	Log struct {
		Env   string `yaml:"env"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Listener.Host = "0.0.0.0"
	cfg.Listener.Port = 8888
	cfg.API.Host = "0.0.0.0"
	cfg.API.Port = 5000
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = "udpmonitor.db"
	cfg.RetentionDays = 1.0
	cfg.Log.Env = "production"
	cfg.Log.Level = "info"
	return cfg
}

// LoadConfig reads a YAML config file on top of the defaults. Environment
// variable references (${VAR}) in the file are expanded before parsing.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Listener.Port < 0 || c.Listener.Port > 65535 {
		return fmt.Errorf("invalid listener port %d", c.Listener.Port)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api port %d", c.API.Port)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative")
	}
	return nil
}

// Retention converts the configured window into a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays * 24 * float64(time.Hour))
}
