package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/invoicereminder/internal/models"
	"github.com/charlesng35/invoicereminder/pkg/logger"
)

// NoopGateway renders reminders but only logs them. It is used when email sending is disabled.
type NoopGateway struct{}

// NewNoopGateway returns a gateway that never contacts a delivery channel.
func NewNoopGateway() *NoopGateway {
	return &NoopGateway{}
}

// Name implements Gateway.
func (NoopGateway) Name() string {
	return "noop"
}

// Send implements Gateway.
func (NoopGateway) Send(_ context.Context, typ models.ReminderType, snap Snapshot) (Result, error) {
	rendered, err := Render(typ, snap)
	if err != nil {
		return Result{}, err
	}

	messageID := "noop-" + uuid.NewString()
	logger.WithModule("notify").Info("reminder delivery skipped",
		zap.String("reminder_id", snap.ReminderID),
		zap.String("type", string(typ)),
		zap.String("to", snap.ClientEmail),
		zap.String("subject", rendered.Subject),
		zap.String("message_id", messageID),
	)
	return Result{MessageID: messageID}, nil
}
