package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/invoicereminder/internal/models"
)

// DefaultRetryBatch bounds how many failed reminders a single sweep retries.
const DefaultRetryBatch = 10

// ReminderStore persists reminders. Every state change is a conditional update keyed on
// the current status so concurrent writers converge and terminal rows are never rewritten.
type ReminderStore struct {
	db *gorm.DB
}

// NewReminderStore constructs a ReminderStore.
func NewReminderStore(db *gorm.DB) (*ReminderStore, error) {
	if db == nil {
		return nil, errors.New("reminder store: db is required")
	}
	return &ReminderStore{db: db}, nil
}

// CreateIfAbsent inserts a pending reminder for (invoice, type) unless one already exists.
// The returned bool reports whether a new row was created.
func (s *ReminderStore) CreateIfAbsent(ctx context.Context, invoice *models.Invoice, typ models.ReminderType, scheduledDate time.Time) (*models.Reminder, bool, error) {
	ctx = ensureContext(ctx)
	if invoice == nil || invoice.ID == "" {
		return nil, false, errors.New("reminder store: invoice is required")
	}
	if !typ.Valid() {
		return nil, false, fmt.Errorf("reminder store: invalid reminder type %q", typ)
	}

	reminder := models.Reminder{
		InvoiceID:     invoice.ID,
		Type:          typ,
		Snapshot:      snapshotOf(invoice),
		ScheduledDate: scheduledDate.UTC(),
		Status:        models.ReminderStatusPending,
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "invoice_id"}, {Name: "type"}},
			DoNothing: true,
		}).
		Create(&reminder)
	if result.Error != nil && !isUniqueConstraintError(result.Error) {
		return nil, false, fmt.Errorf("reminder store: create reminder: %w", result.Error)
	}
	created := result.Error == nil && result.RowsAffected > 0

	var stored models.Reminder
	if err := s.db.WithContext(ctx).
		Where("invoice_id = ? AND type = ?", invoice.ID, typ).
		First(&stored).Error; err != nil {
		return nil, false, fmt.Errorf("reminder store: load reminder: %w", err)
	}
	return &stored, created, nil
}

// Get loads a reminder by id.
func (s *ReminderStore) Get(ctx context.Context, id string) (*models.Reminder, error) {
	ctx = ensureContext(ctx)

	var reminder models.Reminder
	if err := s.db.WithContext(ctx).First(&reminder, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReminderNotFound
		}
		return nil, fmt.Errorf("reminder store: get reminder: %w", err)
	}
	return &reminder, nil
}

// ListForInvoice returns every reminder of an invoice ordered by scheduled date.
func (s *ReminderStore) ListForInvoice(ctx context.Context, invoiceID string) ([]models.Reminder, error) {
	ctx = ensureContext(ctx)

	var reminders []models.Reminder
	if err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("scheduled_date ASC").
		Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("reminder store: list reminders: %w", err)
	}
	return reminders, nil
}

// FindDue returns pending reminders scheduled at or before now, oldest first.
func (s *ReminderStore) FindDue(ctx context.Context, now time.Time, limit int) ([]models.Reminder, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_date <= ?", models.ReminderStatusPending, now.UTC()).
		Order("scheduled_date ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var reminders []models.Reminder
	if err := query.Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("reminder store: find due: %w", err)
	}
	return reminders, nil
}

// FindRetriable returns failed reminders that may still be retried, oldest first.
func (s *ReminderStore) FindRetriable(ctx context.Context, now time.Time, maxRetries, limit int) ([]models.Reminder, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = DefaultRetryBatch
	}

	var reminders []models.Reminder
	if err := s.db.WithContext(ctx).
		Where("status = ? AND retry_eligible = ? AND retry_count < ? AND scheduled_date <= ?",
			models.ReminderStatusFailed, true, maxRetries, now.UTC()).
		Order("scheduled_date ASC").
		Limit(limit).
		Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("reminder store: find retriable: %w", err)
	}
	return reminders, nil
}

// MarkSent records a successful delivery. It is a no-op returning false when the
// reminder is already terminal.
func (s *ReminderStore) MarkSent(ctx context.Context, id string, sentAt time.Time, messageID string) (bool, error) {
	ctx = ensureContext(ctx)

	result := s.active(ctx, id).Updates(map[string]any{
		"status":         models.ReminderStatusSent,
		"sent_date":      sentAt.UTC(),
		"message_id":     messageID,
		"failure_reason": "",
		"retry_eligible": false,
	})
	if result.Error != nil {
		return false, fmt.Errorf("reminder store: mark sent: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkFailed records a transient delivery failure and increments the retry counter.
// Once the counter reaches maxRetries the reminder stops being retry eligible.
// A nil reminder is returned when the row was already terminal.
func (s *ReminderStore) MarkFailed(ctx context.Context, id, reason string, maxRetries int) (*models.Reminder, error) {
	ctx = ensureContext(ctx)

	var updated *models.Reminder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Reminder
		if err := tx.First(&current, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if current.IsTerminal() {
			return nil
		}

		count := current.RetryCount + 1
		result := tx.Model(&models.Reminder{}).
			Where("id = ? AND status = ? AND retry_count = ?", id, current.Status, current.RetryCount).
			Updates(map[string]any{
				"status":         models.ReminderStatusFailed,
				"failure_reason": reason,
				"retry_count":    count,
				"retry_eligible": count < maxRetries,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}

		current.Status = models.ReminderStatusFailed
		current.FailureReason = reason
		current.RetryCount = count
		current.RetryEligible = count < maxRetries
		updated = &current
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reminder store: mark failed: %w", err)
	}
	return updated, nil
}

// MarkFailedPermanent records a failure that no retry can fix.
func (s *ReminderStore) MarkFailedPermanent(ctx context.Context, id, reason string) (bool, error) {
	ctx = ensureContext(ctx)

	result := s.active(ctx, id).Updates(map[string]any{
		"status":         models.ReminderStatusFailed,
		"failure_reason": reason,
		"retry_count":    gorm.Expr("retry_count + 1"),
		"retry_eligible": false,
	})
	if result.Error != nil {
		return false, fmt.Errorf("reminder store: mark failed permanently: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkCancelled cancels a single reminder unless it is already terminal.
func (s *ReminderStore) MarkCancelled(ctx context.Context, id string) (bool, error) {
	ctx = ensureContext(ctx)

	result := s.active(ctx, id).Updates(cancelledColumns())
	if result.Error != nil {
		return false, fmt.Errorf("reminder store: mark cancelled: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// CancelAllPending cancels every pending or retriable reminder of an invoice.
// Sent reminders are left untouched.
func (s *ReminderStore) CancelAllPending(ctx context.Context, invoiceID string) (int64, error) {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.Reminder{}).
		Where("invoice_id = ?", invoiceID).
		Where(activeCondition()).
		Updates(cancelledColumns())
	if result.Error != nil {
		return 0, fmt.Errorf("reminder store: cancel pending: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// RecordAttempt appends an entry to the delivery log.
func (s *ReminderStore) RecordAttempt(ctx context.Context, attempt *models.ReminderAttempt) error {
	ctx = ensureContext(ctx)
	if attempt == nil || attempt.ReminderID == "" {
		return errors.New("reminder store: attempt reminder id is required")
	}
	if err := s.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("reminder store: record attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the delivery log of a reminder, oldest first.
func (s *ReminderStore) ListAttempts(ctx context.Context, reminderID string) ([]models.ReminderAttempt, error) {
	ctx = ensureContext(ctx)

	var attempts []models.ReminderAttempt
	if err := s.db.WithContext(ctx).
		Where("reminder_id = ?", reminderID).
		Order("attempt ASC").
		Find(&attempts).Error; err != nil {
		return nil, fmt.Errorf("reminder store: list attempts: %w", err)
	}
	return attempts, nil
}

// active scopes an update to a single non-terminal reminder.
func (s *ReminderStore) active(ctx context.Context, id string) *gorm.DB {
	return s.db.WithContext(ctx).
		Model(&models.Reminder{}).
		Where("id = ?", id).
		Where(activeCondition())
}

func activeCondition() clause.Expr {
	return gorm.Expr("(status = ? OR (status = ? AND retry_eligible = ?))",
		models.ReminderStatusPending, models.ReminderStatusFailed, true)
}

func cancelledColumns() map[string]any {
	return map[string]any{
		"status":         models.ReminderStatusCancelled,
		"retry_eligible": false,
	}
}

func snapshotOf(invoice *models.Invoice) models.ReminderSnapshot {
	snap := models.ReminderSnapshot{
		InvoiceNumber: invoice.InvoiceNumber,
		Amount:        invoice.Amount,
		DueDate:       invoice.DueDate.UTC(),
	}
	if invoice.Client != nil {
		snap.ClientName = invoice.Client.Name
		snap.ClientEmail = invoice.Client.Email
	}
	return snap
}
