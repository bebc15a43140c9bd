package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/invoicereminder/internal/models"
	"github.com/charlesng35/invoicereminder/internal/monitoring"
	"github.com/charlesng35/invoicereminder/internal/notifications"
	"github.com/charlesng35/invoicereminder/internal/schedule"
	"github.com/charlesng35/invoicereminder/pkg/logger"
)

const (
	sourceHook      = "hook"
	sourceReconcile = "reconcile"

	reconcileBatch = 100
)

// ReminderLifecycle keeps reminder rows in step with invoice state changes.
type ReminderLifecycle struct {
	db     *gorm.DB
	store  *ReminderStore
	policy *schedule.Policy
	events notifications.Publisher
	log    *zap.Logger
}

// NewReminderLifecycle constructs the lifecycle hooks. A nil policy selects the default cadence
// and a nil publisher disables event fan-out.
func NewReminderLifecycle(db *gorm.DB, store *ReminderStore, policy *schedule.Policy, events notifications.Publisher) (*ReminderLifecycle, error) {
	if db == nil {
		return nil, errors.New("reminder lifecycle: db is required")
	}
	if store == nil {
		return nil, errors.New("reminder lifecycle: store is required")
	}
	if policy == nil {
		policy = schedule.DefaultPolicy()
	}
	return &ReminderLifecycle{
		db:     db,
		store:  store,
		policy: policy,
		events: events,
		log:    logger.WithModule("reminders"),
	}, nil
}

// Policy exposes the schedule the hooks create reminders from.
func (l *ReminderLifecycle) Policy() *schedule.Policy {
	return l.policy
}

// OnInvoiceCreated schedules every reminder of an unpaid invoice. Calling it again for the
// same invoice creates nothing new.
func (l *ReminderLifecycle) OnInvoiceCreated(ctx context.Context, invoice *models.Invoice) error {
	ctx = ensureContext(ctx)
	if invoice == nil {
		return errors.New("reminder lifecycle: invoice is required")
	}
	if invoice.IsPaid() {
		return nil
	}
	_, err := l.schedule(ctx, invoice, sourceHook)
	return err
}

// OnInvoicePaid cancels the outstanding reminders of an invoice and returns how many changed.
func (l *ReminderLifecycle) OnInvoicePaid(ctx context.Context, invoiceID string) (int64, error) {
	ctx = ensureContext(ctx)

	cancelled, err := l.store.CancelAllPending(ctx, invoiceID)
	if err != nil {
		return 0, fmt.Errorf("reminder lifecycle: cancel reminders: %w", err)
	}
	if cancelled > 0 {
		monitoring.RecordRemindersCancelled("paid", cancelled)
		l.log.Info("reminders cancelled after payment",
			zap.String("invoice_id", invoiceID),
			zap.Int64("count", cancelled),
		)
	}
	return cancelled, nil
}

// Reconcile creates reminders for unpaid invoices that are missing some, such as invoices
// whose creation hook failed. It returns the number of reminders created.
func (l *ReminderLifecycle) Reconcile(ctx context.Context) (int, error) {
	ctx = ensureContext(ctx)

	expected := len(l.policy.Types())
	if expected == 0 {
		return 0, nil
	}

	var invoices []models.Invoice
	if err := l.db.WithContext(ctx).
		Preload("Client").
		Where("status <> ?", models.InvoiceStatusPaid).
		Where("(SELECT COUNT(*) FROM reminders WHERE reminders.invoice_id = invoices.id) < ?", expected).
		Order("created_at ASC").
		Limit(reconcileBatch).
		Find(&invoices).Error; err != nil {
		return 0, fmt.Errorf("reminder lifecycle: find unscheduled invoices: %w", err)
	}

	var (
		total int
		errs  error
	)
	for i := range invoices {
		created, err := l.schedule(ctx, &invoices[i], sourceReconcile)
		total += created
		errs = multierr.Append(errs, err)
	}
	if total > 0 {
		l.log.Info("reconciled missing reminders", zap.Int("created", total), zap.Int("invoices", len(invoices)))
	}
	return total, errs
}

func (l *ReminderLifecycle) schedule(ctx context.Context, invoice *models.Invoice, source string) (int, error) {
	if invoice.Client == nil && invoice.ClientID != "" {
		var client models.Client
		if err := l.db.WithContext(ctx).First(&client, "id = ?", invoice.ClientID).Error; err == nil {
			invoice.Client = &client
		}
	}

	var (
		created int
		errs    error
	)
	for _, occ := range l.policy.Occurrences(invoice.DueDate) {
		reminder, isNew, err := l.store.CreateIfAbsent(ctx, invoice, occ.Type, occ.ScheduledDate)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reminder lifecycle: schedule %s for invoice %s: %w", occ.Type, invoice.ID, err))
			continue
		}
		if !isNew {
			continue
		}

		created++
		monitoring.RecordReminderScheduled(source, string(occ.Type))
		if l.events != nil {
			l.events.Publish(invoice.UserID, notifications.Event{
				Event:      notifications.EventReminderScheduled,
				InvoiceID:  invoice.ID,
				ReminderID: reminder.ID,
				Data: map[string]any{
					"type":           reminder.Type,
					"scheduled_date": reminder.ScheduledDate,
				},
			})
		}
	}
	return created, errs
}
