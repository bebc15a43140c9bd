package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReminderType identifies where a reminder sits relative to the due date.
type ReminderType string

const (
	ReminderBeforeDue ReminderType = "before_due"
	ReminderOnDue     ReminderType = "on_due"
	ReminderAfterDue  ReminderType = "after_due"
)

// ReminderTypes lists every reminder type in canonical order.
var ReminderTypes = []ReminderType{ReminderBeforeDue, ReminderOnDue, ReminderAfterDue}

// Valid reports whether t is a known reminder type.
func (t ReminderType) Valid() bool {
	switch t {
	case ReminderBeforeDue, ReminderOnDue, ReminderAfterDue:
		return true
	default:
		return false
	}
}

// ReminderStatus captures the delivery state of a reminder.
type ReminderStatus string

const (
	ReminderStatusPending   ReminderStatus = "pending"
	ReminderStatusSent      ReminderStatus = "sent"
	ReminderStatusFailed    ReminderStatus = "failed"
	ReminderStatusCancelled ReminderStatus = "cancelled"
)

// ReminderSnapshot copies invoice and client details at scheduling time.
// It is kept for audit and display only; dispatch always reloads the invoice.
type ReminderSnapshot struct {
	ClientName    string          `gorm:"type:varchar(255)" json:"client_name"`
	ClientEmail   string          `gorm:"type:varchar(255)" json:"client_email"`
	InvoiceNumber string          `gorm:"type:varchar(64)" json:"invoice_number"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2)" json:"amount"`
	DueDate       time.Time       `json:"due_date"`
}

// Reminder is a single scheduled notification for an invoice.
type Reminder struct {
	BaseModel

	InvoiceID     string           `gorm:"type:varchar(64);not null;uniqueIndex:idx_reminders_invoice_type" json:"invoice_id"`
	Type          ReminderType     `gorm:"type:varchar(16);not null;uniqueIndex:idx_reminders_invoice_type" json:"type"`
	Snapshot      ReminderSnapshot `gorm:"embedded;embeddedPrefix:snapshot_" json:"snapshot"`
	ScheduledDate time.Time        `gorm:"not null;index" json:"scheduled_date"`
	Status        ReminderStatus   `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	SentDate      *time.Time       `json:"sent_date"`
	FailureReason string           `gorm:"type:text" json:"failure_reason,omitempty"`
	RetryCount    int              `gorm:"not null;default:0" json:"retry_count"`
	RetryEligible bool             `gorm:"not null;default:false;index" json:"retry_eligible"`
	MessageID     string           `gorm:"type:varchar(255)" json:"message_id,omitempty"`

	Attempts []ReminderAttempt `gorm:"foreignKey:ReminderID;constraint:OnDelete:CASCADE" json:"attempts,omitempty"`
}

// IsTerminal reports whether no further transition can happen.
func (r *Reminder) IsTerminal() bool {
	switch r.Status {
	case ReminderStatusSent, ReminderStatusCancelled:
		return true
	case ReminderStatusFailed:
		return !r.RetryEligible
	default:
		return false
	}
}
