package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/charlesng35/invoicereminder/internal/models"
	"github.com/charlesng35/invoicereminder/pkg/mail"
)

// EmailGateway renders reminders and delivers them through SMTP.
type EmailGateway struct {
	mailer   mail.Mailer
	fromName string
}

// NewEmailGateway constructs an email gateway. fromName is used when the snapshot has no sender name.
func NewEmailGateway(mailer mail.Mailer, fromName string) (*EmailGateway, error) {
	if mailer == nil {
		return nil, errors.New("notify: mailer is required")
	}
	return &EmailGateway{mailer: mailer, fromName: fromName}, nil
}

// Name implements Gateway.
func (g *EmailGateway) Name() string {
	return "email"
}

// Send implements Gateway.
func (g *EmailGateway) Send(ctx context.Context, typ models.ReminderType, snap Snapshot) (Result, error) {
	rendered, err := Render(typ, snap)
	if err != nil {
		return Result{}, err
	}

	fromName := snap.Sender.Name
	if fromName == "" {
		fromName = g.fromName
	}

	messageID, err := g.mailer.Send(ctx, mail.Message{
		FromName: fromName,
		To:       []string{snap.ClientEmail},
		Subject:  rendered.Subject,
		Body:     rendered.HTML,
		HTML:     true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("notify: email %s: %w", typ, err)
	}
	return Result{MessageID: messageID}, nil
}
