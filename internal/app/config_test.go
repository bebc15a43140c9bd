package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/invoicereminder/internal/models"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, "https://billing.example.com", cfg.Server.PublicURL)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)

	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, "smtp.example.com", cfg.Email.SMTP.Host)
	require.Equal(t, 2525, cfg.Email.SMTP.Port)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)

	scheduler := cfg.Reminders.Scheduler
	require.True(t, scheduler.Enabled)
	require.Equal(t, "*/10 * * * *", scheduler.Interval)
	require.Equal(t, 5, scheduler.MaxRetries)
	require.Equal(t, 10, scheduler.RetryBatch)
	require.Equal(t, 2, scheduler.Workers)
	require.Equal(t, 45*time.Second, scheduler.SendTimeout)
	require.False(t, scheduler.RunOnStart)

	require.False(t, cfg.Reminders.Delivery.SendEmails)
	require.Equal(t, "Acme Billing", cfg.Reminders.Delivery.FromName)
	require.False(t, cfg.DeliversEmail())

	require.Equal(t, 30, cfg.Reminders.Maintenance.AttemptRetentionDays)
	require.Equal(t, "@hourly", cfg.Reminders.Maintenance.OverdueInterval)

	require.True(t, cfg.Monitoring.Prometheus.Enabled)
	require.Equal(t, "/internal/metrics", cfg.Monitoring.Prometheus.Endpoint)

	policy, err := cfg.Reminders.Policy()
	require.NoError(t, err)
	due := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	date, err := policy.ScheduledDate(models.ReminderAfterDue, due)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.March, 17, 0, 0, 0, 0, time.UTC), date)
	require.Equal(t, "Early Notice", policy.Label(models.ReminderBeforeDue))
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.True(t, cfg.Reminders.Scheduler.Enabled)
	require.Equal(t, "*/5 * * * *", cfg.Reminders.Scheduler.Interval)
	require.Equal(t, 3, cfg.Reminders.Scheduler.MaxRetries)
	require.True(t, cfg.Reminders.Delivery.SendEmails)
	require.False(t, cfg.DeliversEmail())

	policy, err := cfg.Reminders.Policy()
	require.NoError(t, err)
	require.Len(t, policy.Types(), 3)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("REMINDER_SERVER_PORT", "7070")
	t.Setenv("REMINDER_REMINDERS_SCHEDULER_MAX_RETRIES", "6")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 6, cfg.Reminders.Scheduler.MaxRetries)
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{
		Server:    ServerConfig{Port: 8000},
		Reminders: RemindersConfig{Scheduler: SchedulerConfig{Interval: "*/5 * * * *", MaxRetries: 3}},
	}
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Server.Port = 0
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Reminders.Scheduler.MaxRetries = 0
	require.Error(t, bad.Validate())
}

func TestRemindersPolicyRejectsUnknownType(t *testing.T) {
	cfg := RemindersConfig{Schedule: map[string]ReminderOffsetConfig{"weekly": {Days: 7}}}
	_, err := cfg.Policy()
	require.Error(t, err)
}

func TestDatabaseConnection(t *testing.T) {
	cfg := DatabaseConfig{
		Driver: "mysql",
		MySQL:  DBAuthConfig{Enabled: true, Host: "mysql.local", Port: 3307, Database: "billing", Username: "app", Password: "pw"},
	}
	conn := cfg.Connection()
	require.Equal(t, "mysql", conn.Driver)
	require.Equal(t, "mysql.local", conn.Host)
	require.Equal(t, 3307, conn.Port)
	require.Equal(t, "billing", conn.Name)
	require.Equal(t, "app", conn.User)

	sqlite := DatabaseConfig{Driver: "sqlite", Path: "./data/test.sqlite"}.Connection()
	require.Equal(t, "./data/test.sqlite", sqlite.Path)
	require.Empty(t, sqlite.Host)
}

func TestEmailConfigAdapter(t *testing.T) {
	cfg := EmailConfig{
		SMTP: SMTPConfig{
			Enabled:  true,
			Host:     "smtp.example.com",
			Port:     2525,
			Username: "user",
			Password: "pass",
			From:     "no-reply@example.com",
			UseTLS:   true,
			Timeout:  10 * time.Second,
		},
	}

	settings := cfg.SMTPSettings()
	require.True(t, settings.Enabled)
	require.Equal(t, "smtp.example.com", settings.Host)
	require.Equal(t, 2525, settings.Port)
	require.Equal(t, "user", settings.Username)
	require.Equal(t, "pass", settings.Password)
	require.Equal(t, "no-reply@example.com", settings.From)
	require.True(t, settings.UseTLS)
	require.Equal(t, 10*time.Second, settings.Timeout)
}
