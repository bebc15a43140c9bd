package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the invoice reminder service.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Email      EmailConfig      `mapstructure:"email"`
	Reminders  RemindersConfig  `mapstructure:"reminders"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	PublicURL string `mapstructure:"public_url"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RemindersConfig groups the reminder cadence, the dispatch loop and delivery settings.
type RemindersConfig struct {
	Schedule    map[string]ReminderOffsetConfig `mapstructure:"schedule"`
	Scheduler   SchedulerConfig                 `mapstructure:"scheduler"`
	Delivery    DeliveryConfig                  `mapstructure:"delivery"`
	Maintenance MaintenanceConfig               `mapstructure:"maintenance"`
}

// ReminderOffsetConfig places one reminder type relative to the invoice due date.
type ReminderOffsetConfig struct {
	Days        int    `mapstructure:"days"`
	Label       string `mapstructure:"label"`
	Description string `mapstructure:"description"`
}

// SchedulerConfig controls the periodic dispatch sweep.
type SchedulerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    string        `mapstructure:"interval"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryBatch  int           `mapstructure:"retry_batch"`
	DueBatch    int           `mapstructure:"due_batch"`
	Workers     int           `mapstructure:"workers"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	RunOnStart  bool          `mapstructure:"run_on_start"`
}

// DeliveryConfig selects how reminders leave the service.
type DeliveryConfig struct {
	SendEmails bool   `mapstructure:"send_emails"`
	FromName   string `mapstructure:"from_name"`
}

// MaintenanceConfig controls housekeeping jobs.
type MaintenanceConfig struct {
	OverdueInterval      string `mapstructure:"overdue_interval"`
	PruneInterval        string `mapstructure:"prune_interval"`
	AttemptRetentionDays int    `mapstructure:"attempt_retention_days"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("REMINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Reminders.Scheduler.MaxRetries <= 0 {
		return errors.New("config: reminders.scheduler.max_retries must be positive")
	}
	if strings.TrimSpace(c.Reminders.Scheduler.Interval) == "" {
		return errors.New("config: reminders.scheduler.interval is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.public_url", "http://localhost:8000")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/invoicereminder.sqlite")

	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("reminders.scheduler.enabled", true)
	v.SetDefault("reminders.scheduler.interval", "*/5 * * * *")
	v.SetDefault("reminders.scheduler.max_retries", 3)
	v.SetDefault("reminders.scheduler.retry_batch", 10)
	v.SetDefault("reminders.scheduler.due_batch", 200)
	v.SetDefault("reminders.scheduler.workers", 4)
	v.SetDefault("reminders.scheduler.send_timeout", "30s")
	v.SetDefault("reminders.scheduler.run_on_start", true)

	v.SetDefault("reminders.delivery.send_emails", true)
	v.SetDefault("reminders.delivery.from_name", "Invoice Reminders")

	v.SetDefault("reminders.maintenance.overdue_interval", "@hourly")
	v.SetDefault("reminders.maintenance.prune_interval", "@daily")
	v.SetDefault("reminders.maintenance.attempt_retention_days", 90)

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
