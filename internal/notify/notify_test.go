package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/invoicereminder/internal/models"
	"github.com/charlesng35/invoicereminder/pkg/mail"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		ReminderID:    "rem-1",
		InvoiceID:     "inv-1",
		InvoiceNumber: "INV-042",
		Amount:        decimal.RequireFromString("1250.5"),
		DueDate:       time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC),
		ClientName:    "Acme Corp",
		ClientEmail:   "billing@acme.test",
		Sender:        Sender{Name: "Jane Freelancer", Email: "jane@example.com"},
		PaymentLink:   "https://app.example.com/pay/abc123",
	}
}

func TestRenderSubjects(t *testing.T) {
	cases := map[models.ReminderType]string{
		models.ReminderBeforeDue: "Friendly reminder: Invoice INV-042 due soon",
		models.ReminderOnDue:     "Invoice INV-042 is due today",
		models.ReminderAfterDue:  "Follow-up: Invoice INV-042 is past due",
	}

	for typ, subject := range cases {
		t.Run(string(typ), func(t *testing.T) {
			rendered, err := Render(typ, sampleSnapshot())
			require.NoError(t, err)
			require.Equal(t, subject, rendered.Subject)
			require.Contains(t, rendered.HTML, "Hi Acme Corp,")
			require.Contains(t, rendered.HTML, "$1250.50")
			require.Contains(t, rendered.HTML, `href="https://app.example.com/pay/abc123"`)
			require.Contains(t, rendered.HTML, "Mark as Paid")
			require.Contains(t, rendered.HTML, "Jane Freelancer")
		})
	}
}

func TestRenderDueDateText(t *testing.T) {
	onDue, err := Render(models.ReminderOnDue, sampleSnapshot())
	require.NoError(t, err)
	require.Contains(t, onDue.HTML, "<strong>Due Date:</strong> Today")

	before, err := Render(models.ReminderBeforeDue, sampleSnapshot())
	require.NoError(t, err)
	require.Contains(t, before.HTML, "Mar 10, 2024")
}

func TestRenderEscapesUserContent(t *testing.T) {
	snap := sampleSnapshot()
	snap.ClientName = "<script>alert(1)</script>"
	snap.Note = "Net 30 & thanks"

	rendered, err := Render(models.ReminderAfterDue, snap)
	require.NoError(t, err)
	require.NotContains(t, rendered.HTML, "<script>")
	require.Contains(t, rendered.HTML, "&lt;script&gt;")
	require.Contains(t, rendered.HTML, "Net 30 &amp; thanks")
}

func TestRenderDefaults(t *testing.T) {
	rendered, err := Render(models.ReminderBeforeDue, Snapshot{InvoiceNumber: "INV-1"})
	require.NoError(t, err)
	require.Contains(t, rendered.HTML, "Hi there,")
	require.Contains(t, rendered.HTML, `href="#"`)
	require.NotContains(t, rendered.HTML, "<strong>Note:</strong>")
}

func TestRenderUnknownType(t *testing.T) {
	_, err := Render("weekly", sampleSnapshot())
	require.ErrorIs(t, err, ErrNoTemplate)
	require.True(t, IsPermanent(err))
}

func TestIsPermanent(t *testing.T) {
	require.True(t, IsPermanent(fmt.Errorf("wrap: %w", mail.ErrInvalidAddress)))
	require.False(t, IsPermanent(errors.New("connection reset")))
	require.False(t, IsPermanent(nil))
}

func TestPaymentLink(t *testing.T) {
	require.Equal(t, "https://app.example.com/pay/tok", PaymentLink("https://app.example.com/", "tok"))
	require.Equal(t, "http://localhost:3000/pay/tok", PaymentLink("http://localhost:3000", "tok"))
}

type recordingMailer struct {
	messages []mail.Message
	err      error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.messages = append(m.messages, msg)
	return fmt.Sprintf("<msg-%d@test>", len(m.messages)), nil
}

func TestEmailGatewaySend(t *testing.T) {
	mailer := &recordingMailer{}
	gateway, err := NewEmailGateway(mailer, "Billing Team")
	require.NoError(t, err)
	require.Equal(t, "email", gateway.Name())

	result, err := gateway.Send(context.Background(), models.ReminderOnDue, sampleSnapshot())
	require.NoError(t, err)
	require.Equal(t, "<msg-1@test>", result.MessageID)

	require.Len(t, mailer.messages, 1)
	msg := mailer.messages[0]
	require.Equal(t, []string{"billing@acme.test"}, msg.To)
	require.Equal(t, "Jane Freelancer", msg.FromName)
	require.Equal(t, "Invoice INV-042 is due today", msg.Subject)
	require.True(t, msg.HTML)
	require.True(t, strings.Contains(msg.Body, "Mark as Paid"))
}

func TestEmailGatewayFallsBackToConfiguredSender(t *testing.T) {
	mailer := &recordingMailer{}
	gateway, err := NewEmailGateway(mailer, "Billing Team")
	require.NoError(t, err)

	snap := sampleSnapshot()
	snap.Sender = Sender{}
	_, err = gateway.Send(context.Background(), models.ReminderOnDue, snap)
	require.NoError(t, err)
	require.Equal(t, "Billing Team", mailer.messages[0].FromName)
}

func TestEmailGatewayPropagatesMailerErrors(t *testing.T) {
	gateway, err := NewEmailGateway(&recordingMailer{err: mail.ErrInvalidAddress}, "")
	require.NoError(t, err)

	_, err = gateway.Send(context.Background(), models.ReminderOnDue, sampleSnapshot())
	require.ErrorIs(t, err, mail.ErrInvalidAddress)
	require.True(t, IsPermanent(err))
}

func TestEmailGatewayRequiresMailer(t *testing.T) {
	_, err := NewEmailGateway(nil, "")
	require.Error(t, err)
}

func TestNoopGatewaySend(t *testing.T) {
	gateway := NewNoopGateway()
	require.Equal(t, "noop", gateway.Name())

	result, err := gateway.Send(context.Background(), models.ReminderAfterDue, sampleSnapshot())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(result.MessageID, "noop-"))

	_, err = gateway.Send(context.Background(), "weekly", sampleSnapshot())
	require.ErrorIs(t, err, ErrNoTemplate)
}
