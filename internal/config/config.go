// Package config provides configuration loading and validation for the
// search coordinator.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service configuration. Values come from an optional YAML
// file, then environment overrides, then defaults.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Automation AutomationConfig `yaml:"automation"`
	Blob       BlobConfig       `yaml:"blob"`
	Replay     ReplayConfig     `yaml:"replay"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	MaxUploadMB     int      `yaml:"max_upload_mb"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig selects the record store.
type DatabaseConfig struct {
	Driver     string `yaml:"driver"` // postgres, sqlite (default: postgres when url is set)
	URL        string `yaml:"url"`
	SQLitePath string `yaml:"sqlite_path"`
}

// WebhookConfig holds the secret shared with the automation system. It signs
// outbound notifications and verifies inbound callbacks.
type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

// AutomationConfig points at the automation system's start endpoint.
type AutomationConfig struct {
	StartURL   string `yaml:"start_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// Blob drivers.
const (
	BlobFile = "file"
	BlobGCS  = "gcs"
)

// BlobConfig selects the attachment store.
type BlobConfig struct {
	Driver          string `yaml:"driver"` // file, gcs
	Dir             string `yaml:"dir"`
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
}

// ReplayConfig enables the Redis replay cache. Empty RedisURL disables it.
type ReplayConfig struct {
	RedisURL string `yaml:"redis_url"`
	TTLSec   int    `yaml:"ttl_sec"`
}

// RateLimitConfig toggles per-client rate limiting.
type RateLimitConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"` // debug, info, warn, error
	Pretty bool   `yaml:"pretty"`
}

// Load reads path (optional), applies environment overrides and defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		data = expandEnvVars(data)
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables. lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*dst = v
				return
			}
		}
	}

	str(&c.Database.URL, "DATABASE_URL")
	str(&c.Database.Driver, "DATABASE_DRIVER")
	str(&c.Database.SQLitePath, "SQLITE_PATH")
	str(&c.Webhook.Secret, "WEBHOOK_SECRET")
	str(&c.Automation.StartURL, "AUTOMATION_START_URL", "N8N_START_URL")
	str(&c.Blob.Driver, "BLOB_DRIVER")
	str(&c.Blob.Dir, "BLOB_DIR")
	str(&c.Blob.Bucket, "BLOB_BUCKET")
	str(&c.Blob.CredentialsFile, "BLOB_CREDENTIALS_FILE")
	str(&c.Replay.RedisURL, "REDIS_URL")
	str(&c.Logging.Level, "LOG_LEVEL")

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %v", err)
		}
		c.HTTP.Port = port
	}
	if v, ok := lookup("RATE_LIMIT_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_ENABLED: %v", err)
		}
		c.RateLimit.Enabled = &enabled
	}
	return nil
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 25
	}
	if c.Database.Driver == "" {
		if c.Database.URL != "" {
			c.Database.Driver = DriverPostgres
		} else {
			c.Database.Driver = DriverSQLite
		}
	}
	if c.Database.Driver == DriverSQLite && c.Database.SQLitePath == "" {
		c.Database.SQLitePath = filepath.Join("data", "searches.db")
	}
	if c.Automation.TimeoutSec <= 0 {
		c.Automation.TimeoutSec = 10
	}
	if c.Blob.Driver == "" {
		c.Blob.Driver = BlobFile
	}
	if c.Blob.Driver == BlobFile && c.Blob.Dir == "" {
		c.Blob.Dir = filepath.Join("data", "attachments")
	}
	if c.Replay.TTLSec <= 0 {
		c.Replay.TTLSec = 24 * 60 * 60
	}
	if c.RateLimit.Enabled == nil {
		enabled := true
		c.RateLimit.Enabled = &enabled
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the configuration for correctness. A missing webhook
// secret is not an error: the service starts and refuses callbacks.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}

	switch c.Blob.Driver {
	case BlobFile:
	case BlobGCS:
		if c.Blob.Bucket == "" {
			return fmt.Errorf("blob.bucket is required for the gcs driver")
		}
	default:
		return fmt.Errorf("blob.driver must be %q or %q, got %q", BlobFile, BlobGCS, c.Blob.Driver)
	}

	if c.Automation.StartURL != "" &&
		!strings.HasPrefix(c.Automation.StartURL, "http://") &&
		!strings.HasPrefix(c.Automation.StartURL, "https://") {
		return fmt.Errorf("automation.start_url must be an http(s) URL")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}

// NotificationsEnabled reports whether outbound notifications can be sent.
func (c *Config) NotificationsEnabled() bool {
	return c.Automation.StartURL != "" && c.Webhook.Secret != ""
}

// RateLimitEnabled reports whether rate limiting is on.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimit.Enabled == nil || *c.RateLimit.Enabled
}

// ShutdownTimeout is the graceful shutdown deadline.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.HTTP.ShutdownSec) * time.Second
}

// AutomationTimeout bounds one outbound notification.
func (c *Config) AutomationTimeout() time.Duration {
	return time.Duration(c.Automation.TimeoutSec) * time.Second
}

// ReplayTTL is how long applied callbacks are remembered.
func (c *Config) ReplayTTL() time.Duration {
	return time.Duration(c.Replay.TTLSec) * time.Second
}

// envVarRegex matches ${VAR} and ${VAR:-default}.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
