package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/invoicereminder/internal/database/testutil"
	"github.com/charlesng35/invoicereminder/internal/models"
	"github.com/charlesng35/invoicereminder/internal/notifications"
	"github.com/charlesng35/invoicereminder/internal/schedule"
)

const testOwner = "owner-1"

type recordingPublisher struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (p *recordingPublisher) Publish(_ string, event notifications.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Event)
	}
	return out
}

type testEnv struct {
	db        *gorm.DB
	store     *ReminderStore
	lifecycle *ReminderLifecycle
	clients   *ClientService
	invoices  *InvoiceService
	queries   *ReminderQueryService
	events    *recordingPublisher
}

func newTestEnv(t *testing.T, opts ...testutil.TestDBOption) *testEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t, append([]testutil.TestDBOption{testutil.WithAutoMigrate()}, opts...)...)
	events := &recordingPublisher{}

	store, err := NewReminderStore(db)
	require.NoError(t, err)
	lifecycle, err := NewReminderLifecycle(db, store, schedule.DefaultPolicy(), events)
	require.NoError(t, err)
	clients, err := NewClientService(db)
	require.NoError(t, err)
	invoices, err := NewInvoiceService(db, clients, lifecycle, events)
	require.NoError(t, err)
	queries, err := NewReminderQueryService(db, schedule.DefaultPolicy(), "https://app.example.com")
	require.NoError(t, err)

	return &testEnv{
		db:        db,
		store:     store,
		lifecycle: lifecycle,
		clients:   clients,
		invoices:  invoices,
		queries:   queries,
		events:    events,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// seedInvoice inserts an invoice directly, bypassing the lifecycle hooks.
func (e *testEnv) seedInvoice(t *testing.T, number string, due time.Time) *models.Invoice {
	t.Helper()

	client, err := e.clients.FindOrCreate(context.Background(), testOwner, "Acme Corp", "billing@acme.test")
	require.NoError(t, err)

	invoice := &models.Invoice{
		UserID:        testOwner,
		ClientID:      client.ID,
		Client:        client,
		InvoiceNumber: number,
		Amount:        decimal.RequireFromString("250.00"),
		DueDate:       due,
		Status:        models.InvoiceStatusUnpaid,
		PaymentToken:  "token-" + number,
	}
	require.NoError(t, e.db.Omit("Client").Create(invoice).Error)
	return invoice
}

func (e *testEnv) createInvoice(t *testing.T, number string, due time.Time) *models.Invoice {
	t.Helper()

	invoice, err := e.invoices.Create(context.Background(), CreateInvoiceInput{
		UserID:        testOwner,
		ClientName:    "Acme Corp",
		ClientEmail:   "billing@acme.test",
		InvoiceNumber: number,
		Amount:        decimal.RequireFromString("250.00"),
		DueDate:       due,
	})
	require.NoError(t, err)
	return invoice
}

func (e *testEnv) reminder(t *testing.T, invoiceID string, typ models.ReminderType) models.Reminder {
	t.Helper()

	var reminder models.Reminder
	require.NoError(t, e.db.Where("invoice_id = ? AND type = ?", invoiceID, typ).First(&reminder).Error)
	return reminder
}

func (e *testEnv) setStatus(t *testing.T, id string, status models.ReminderStatus) {
	t.Helper()
	require.NoError(t, e.db.Model(&models.Reminder{}).Where("id = ?", id).Update("status", status).Error)
}
