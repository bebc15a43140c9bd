package app

import (
	"github.com/charlesng35/invoicereminder/internal/database"
	"github.com/charlesng35/invoicereminder/internal/models"
	"github.com/charlesng35/invoicereminder/internal/schedule"
)

// Policy builds the reminder schedule from configuration. An empty schedule yields the default cadence.
func (c RemindersConfig) Policy() (*schedule.Policy, error) {
	if len(c.Schedule) == 0 {
		return schedule.DefaultPolicy(), nil
	}

	offsets := make(map[models.ReminderType]schedule.Offset, len(c.Schedule))
	for key, entry := range c.Schedule {
		offsets[models.ReminderType(key)] = schedule.Offset{
			Days:        entry.Days,
			Label:       entry.Label,
			Description: entry.Description,
		}
	}
	return schedule.NewPolicy(offsets)
}

// Connection converts DatabaseConfig into the database package representation.
func (c DatabaseConfig) Connection() database.Config {
	cfg := database.Config{
		Driver: c.Driver,
		Path:   c.Path,
		DSN:    c.DSN,
	}

	var auth DBAuthConfig
	switch c.Driver {
	case "postgres", "postgresql":
		auth = c.Postgres
	case "mysql", "mariadb":
		auth = c.MySQL
	}
	if auth.Enabled || auth.Host != "" {
		cfg.Host = auth.Host
		cfg.Port = auth.Port
		cfg.Name = auth.Database
		cfg.User = auth.Username
		cfg.Password = auth.Password
	}
	return cfg
}
