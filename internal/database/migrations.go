package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/invoicereminder/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
// Parents are listed before children so foreign keys resolve.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Client{},
		&models.Invoice{},
		&models.Reminder{},
		&models.ReminderAttempt{},
	)
}
