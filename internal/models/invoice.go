package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus tracks the payment state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid  InvoiceStatus = "unpaid"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

// Invoice is a billable document owned by a user and addressed to a client.
type Invoice struct {
	BaseModel

	UserID        string          `gorm:"type:varchar(64);not null;index" json:"user_id"`
	ClientID      string          `gorm:"type:varchar(64);not null;index" json:"client_id"`
	Client        *Client         `gorm:"foreignKey:ClientID" json:"client,omitempty"`
	InvoiceNumber string          `gorm:"type:varchar(64);not null;index" json:"invoice_number"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	DueDate       time.Time       `gorm:"not null;index" json:"due_date"`
	Note          string          `gorm:"type:text" json:"note"`
	Status        InvoiceStatus   `gorm:"type:varchar(16);not null;default:'unpaid';index" json:"status"`
	PaidAt        *time.Time      `json:"paid_at"`
	PaymentToken  string          `gorm:"type:varchar(128);not null;uniqueIndex" json:"-"`

	Reminders []Reminder `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"reminders,omitempty"`
}

// IsPaid reports whether the invoice has been settled.
func (i *Invoice) IsPaid() bool {
	return i != nil && i.Status == InvoiceStatusPaid
}
