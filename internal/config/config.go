// Package config loads mailcore configuration from a YAML file with
// environment variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the dispatch engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	Inbound   InboundConfig   `yaml:"inbound"`
}

// ServerConfig holds the HTTP trigger surface settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the optional Redis settings. When Addr is empty the
// scheduler falls back to PostgreSQL advisory locks for its cycle lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SchedulerConfig controls the dispatch loop.
type SchedulerConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	SendConcurrency int           `yaml:"send_concurrency"`
	SMTPDialTimeout time.Duration `yaml:"smtp_dial_timeout"`
}

// OAuthConfig holds the application credentials used to refresh sender
// access tokens.
type OAuthConfig struct {
	GoogleClientID        string `yaml:"google_client_id"`
	GoogleClientSecret    string `yaml:"google_client_secret"`
	MicrosoftClientID     string `yaml:"microsoft_client_id"`
	MicrosoftClientSecret string `yaml:"microsoft_client_secret"`
}

// InboundConfig controls the IMAP/POP3 synchronizer.
type InboundConfig struct {
	BatchSize      int           `yaml:"batch_size"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	AuthTimeout    time.Duration `yaml:"auth_timeout"`
	TotalCeiling   time.Duration `yaml:"total_ceiling"`
	GracePeriod    time.Duration `yaml:"grace_period"`

	// Hosts maps an email domain to its mailbox host, for providers whose
	// IMAP/POP3 endpoint does not follow the imap.<domain> convention.
	Hosts map[string]HostPort `yaml:"hosts"`
}

// HostPort is one entry in the per-domain inbound host table.
type HostPort struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads configuration from the given YAML file (optional) and applies
// environment overrides and defaults. A missing file is not an error: all
// settings have defaults or env equivalents.
func Load(path string) (*Config, error) {
	// Best-effort .env for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("SCHEDULER_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Scheduler.PollInterval = d
		}
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		c.OAuth.GoogleClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		c.OAuth.GoogleClientSecret = v
	}
	if v := os.Getenv("MICROSOFT_CLIENT_ID"); v != "" {
		c.OAuth.MicrosoftClientID = v
	}
	if v := os.Getenv("MICROSOFT_CLIENT_SECRET"); v != "" {
		c.OAuth.MicrosoftClientSecret = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Scheduler.PollInterval == 0 {
		c.Scheduler.PollInterval = 60 * time.Second
	}
	if c.Scheduler.SendConcurrency == 0 {
		c.Scheduler.SendConcurrency = 4
	}
	if c.Scheduler.SMTPDialTimeout == 0 {
		c.Scheduler.SMTPDialTimeout = 30 * time.Second
	}
	if c.Inbound.BatchSize == 0 {
		c.Inbound.BatchSize = 10
	}
	if c.Inbound.ConnectTimeout == 0 {
		c.Inbound.ConnectTimeout = 60 * time.Second
	}
	if c.Inbound.AuthTimeout == 0 {
		c.Inbound.AuthTimeout = 30 * time.Second
	}
	if c.Inbound.TotalCeiling == 0 {
		c.Inbound.TotalCeiling = 5 * time.Minute
	}
	if c.Inbound.GracePeriod == 0 {
		c.Inbound.GracePeriod = 2 * time.Second
	}
}
