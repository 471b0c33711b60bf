package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type NotifyType string

const (
	NotifyEmail   NotifyType = "email"
	NotifyWebhook NotifyType = "webhook"

	Version = "0.4.1"
)

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type CollectionConfig struct {
	// Interval is the collection cadence in seconds.
	Interval int    `yaml:"interval"`
	PingHost string `yaml:"ping_host"`
}

type NotificationsConfig struct {
	Enabled       bool       `yaml:"enabled"`
	Type          NotifyType `yaml:"type"`
	IntervalHours int        `yaml:"interval_hours"`
	SMTPHost      string     `yaml:"smtp_host"`
	SMTPPort      int        `yaml:"smtp_port"`
	SMTPUser      string     `yaml:"smtp_user"`
	SMTPPassword  string     `yaml:"smtp_password"`
	FromEmail     string     `yaml:"from_email"`
	ToEmail       string     `yaml:"to_email"`
	WebhookURL    string     `yaml:"webhook_url"`
}

type MaintenanceConfig struct {
	// RetentionDays is the maximum sample age in days. 0 disables purging.
	RetentionDays int `yaml:"retention_days"`
	IntervalHours int `yaml:"interval_hours"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Token   string `yaml:"token"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Collection    CollectionConfig    `yaml:"collection"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Maintenance   MaintenanceConfig   `yaml:"maintenance"`
	API           APIConfig           `yaml:"api"`
	Log           LogConfig           `yaml:"log"`

	Hostname        string        `yaml:"-"`
	AgentVersion    string        `yaml:"-"`
	ShutdownTimeout time.Duration `yaml:"-"`
	HealthInterval  time.Duration `yaml:"-"`
	ErrorBackoff    time.Duration `yaml:"-"`
}

func Default() Config {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	return Config{
		Database: DatabaseConfig{Path: "syspulse.db"},
		Collection: CollectionConfig{
			Interval: 60,
			PingHost: "8.8.8.8:53",
		},
		Notifications: NotificationsConfig{
			Enabled:       false,
			Type:          NotifyWebhook,
			IntervalHours: 24,
			SMTPPort:      587,
		},
		Maintenance: MaintenanceConfig{
			RetentionDays: 30,
			IntervalHours: 24,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9477",
		},
		Log: LogConfig{Level: "info", JSON: false},

		Hostname:        hostname,
		AgentVersion:    Version,
		ShutdownTimeout: 10 * time.Second,
		HealthInterval:  60 * time.Second,
		ErrorBackoff:    1500 * time.Millisecond,
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (a missing file falls back to defaults), then SYSPULSE_* environment
// overrides, then Validate.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.Path = env("SYSPULSE_DB_PATH", c.Database.Path)
	c.Collection.Interval = envInt("SYSPULSE_COLLECTION_INTERVAL", c.Collection.Interval)
	c.Collection.PingHost = env("SYSPULSE_PING_HOST", c.Collection.PingHost)
	c.Notifications.Enabled = envBool("SYSPULSE_NOTIFICATIONS_ENABLED", c.Notifications.Enabled)
	c.Notifications.Type = NotifyType(strings.ToLower(env("SYSPULSE_NOTIFICATION_TYPE", string(c.Notifications.Type))))
	c.Notifications.IntervalHours = envInt("SYSPULSE_NOTIFICATION_INTERVAL_HOURS", c.Notifications.IntervalHours)
	c.Notifications.SMTPHost = env("SYSPULSE_SMTP_HOST", c.Notifications.SMTPHost)
	c.Notifications.SMTPPort = envInt("SYSPULSE_SMTP_PORT", c.Notifications.SMTPPort)
	c.Notifications.SMTPUser = env("SYSPULSE_SMTP_USER", c.Notifications.SMTPUser)
	c.Notifications.SMTPPassword = env("SYSPULSE_SMTP_PASSWORD", c.Notifications.SMTPPassword)
	c.Notifications.FromEmail = env("SYSPULSE_FROM_EMAIL", c.Notifications.FromEmail)
	c.Notifications.ToEmail = env("SYSPULSE_TO_EMAIL", c.Notifications.ToEmail)
	c.Notifications.WebhookURL = env("SYSPULSE_WEBHOOK_URL", c.Notifications.WebhookURL)
	c.Maintenance.RetentionDays = envInt("SYSPULSE_RETENTION_DAYS", c.Maintenance.RetentionDays)
	c.Maintenance.IntervalHours = envInt("SYSPULSE_MAINTENANCE_INTERVAL_HOURS", c.Maintenance.IntervalHours)
	c.API.Enabled = envBool("SYSPULSE_API_ENABLED", c.API.Enabled)
	c.API.Listen = env("SYSPULSE_API_LISTEN", c.API.Listen)
	c.API.Token = env("SYSPULSE_API_TOKEN", c.API.Token)
	c.Log.Level = strings.ToLower(env("SYSPULSE_LOG_LEVEL", c.Log.Level))
	c.Log.JSON = envBool("SYSPULSE_LOG_JSON", c.Log.JSON)
	c.ShutdownTimeout = envDuration("SYSPULSE_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.HealthInterval = envDuration("SYSPULSE_HEALTH_INTERVAL", c.HealthInterval)
	c.ErrorBackoff = envDuration("SYSPULSE_COLLECTOR_ERROR_BACKOFF", c.ErrorBackoff)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path is required")
	}
	if c.Collection.Interval <= 0 {
		return errors.New("collection.interval must be > 0")
	}
	if c.Maintenance.RetentionDays < 0 {
		return errors.New("maintenance.retention_days must be >= 0")
	}
	if c.Maintenance.IntervalHours <= 0 {
		return errors.New("maintenance.interval_hours must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SYSPULSE_SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.HealthInterval <= 0 {
		return errors.New("SYSPULSE_HEALTH_INTERVAL must be > 0")
	}
	if c.Notifications.Enabled {
		if c.Notifications.IntervalHours <= 0 {
			return errors.New("notifications.interval_hours must be > 0")
		}
		switch c.Notifications.Type {
		case NotifyEmail:
			if c.Notifications.SMTPHost == "" {
				return errors.New("notifications.smtp_host is required for email notifications")
			}
			if c.Notifications.SMTPPort <= 0 {
				return errors.New("notifications.smtp_port must be > 0")
			}
			if c.Notifications.FromEmail == "" || c.Notifications.ToEmail == "" {
				return errors.New("notifications.from_email and to_email are required for email notifications")
			}
		case NotifyWebhook:
			if c.Notifications.WebhookURL == "" {
				return errors.New("notifications.webhook_url is required for webhook notifications")
			}
		default:
			return fmt.Errorf("unsupported notification type %q", c.Notifications.Type)
		}
	}
	if c.API.Enabled && strings.TrimSpace(c.API.Listen) == "" {
		return errors.New("api.listen is required when the api is enabled")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.Log.Level)
	}
	return nil
}

// CollectionInterval returns the collection tick cadence.
func (c Config) CollectionInterval() time.Duration {
	return time.Duration(c.Collection.Interval) * time.Second
}

// MaintenanceInterval returns the retention purge cadence.
func (c Config) MaintenanceInterval() time.Duration {
	return time.Duration(c.Maintenance.IntervalHours) * time.Hour
}

// RetentionWindow returns the maximum sample age, or 0 when purging is
// disabled (retention_days = 0).
func (c Config) RetentionWindow() time.Duration {
	return time.Duration(c.Maintenance.RetentionDays) * 24 * time.Hour
}

// DigestInterval is both the digest cadence and the window each digest
// aggregates over.
func (c Config) DigestInterval() time.Duration {
	return time.Duration(c.Notifications.IntervalHours) * time.Hour
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
