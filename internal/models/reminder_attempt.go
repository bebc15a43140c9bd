package models

import "gorm.io/datatypes"

// Attempt outcomes recorded in the delivery log.
const (
	AttemptOutcomeSent   = "sent"
	AttemptOutcomeFailed = "failed"
)

// ReminderAttempt records one gateway call made for a reminder.
type ReminderAttempt struct {
	BaseModel

	ReminderID string         `gorm:"type:varchar(64);not null;index" json:"reminder_id"`
	Attempt    int            `gorm:"not null" json:"attempt"`
	Outcome    string         `gorm:"type:varchar(16);not null" json:"outcome"`
	MessageID  string         `gorm:"type:varchar(255)" json:"message_id,omitempty"`
	Error      string         `gorm:"type:text" json:"error,omitempty"`
	Details    datatypes.JSON `json:"details"`
}
