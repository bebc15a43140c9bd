// Package notify renders reminder messages and hands them to a delivery channel.
package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/charlesng35/invoicereminder/internal/models"
	"github.com/charlesng35/invoicereminder/pkg/mail"
)

// ErrNoTemplate is returned when no message template exists for a reminder type.
var ErrNoTemplate = errors.New("notify: no template for reminder type")

// Sender identifies who the reminder is sent on behalf of.
type Sender struct {
	Name  string
	Email string
}

// Snapshot carries everything a gateway needs to build one reminder message.
type Snapshot struct {
	ReminderID    string
	InvoiceID     string
	InvoiceNumber string
	Amount        decimal.Decimal
	DueDate       time.Time
	Note          string
	ClientName    string
	ClientEmail   string
	Sender        Sender
	PaymentLink   string
}

// Result describes a successful hand-off to the delivery channel.
type Result struct {
	MessageID string
}

// Gateway delivers a rendered reminder to the invoice's client.
type Gateway interface {
	Name() string
	Send(ctx context.Context, typ models.ReminderType, snap Snapshot) (Result, error)
}

// IsPermanent reports whether retrying the same reminder cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNoTemplate) || errors.Is(err, mail.ErrInvalidAddress)
}

// PaymentLink builds the public payment confirmation URL for a token.
func PaymentLink(publicURL, token string) string {
	base := strings.TrimRight(strings.TrimSpace(publicURL), "/")
	return base + "/pay/" + token
}
