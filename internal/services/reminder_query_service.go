package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/charlesng35/invoicereminder/internal/models"
	"github.com/charlesng35/invoicereminder/internal/notify"
	"github.com/charlesng35/invoicereminder/internal/schedule"
	apperrors "github.com/charlesng35/invoicereminder/pkg/errors"
)

const upcomingLimit = 5

// ReminderView is a reminder enriched with its display label.
type ReminderView struct {
	ID            string                `json:"id"`
	Type          models.ReminderType   `json:"type"`
	TypeLabel     string                `json:"type_label"`
	Status        models.ReminderStatus `json:"status"`
	ScheduledDate time.Time             `json:"scheduled_date"`
	SentDate      *time.Time            `json:"sent_date"`
	FailureReason string                `json:"failure_reason,omitempty"`
	RetryCount    int                   `json:"retry_count"`
	RetryEligible bool                  `json:"retry_eligible"`
}

// StatusCounts tallies reminders per status.
type StatusCounts struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Sent      int64 `json:"sent"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

// InvoiceReminders lists the reminders of one invoice with per-status counts.
type InvoiceReminders struct {
	InvoiceID string         `json:"invoice_id"`
	Reminders []ReminderView `json:"reminders"`
	Summary   StatusCounts   `json:"summary"`
}

// ReminderAttempts is a reminder together with its delivery log.
type ReminderAttempts struct {
	Reminder ReminderView             `json:"reminder"`
	Attempts []models.ReminderAttempt `json:"attempts"`
}

// UpcomingReminder is a pending reminder due soon.
type UpcomingReminder struct {
	ReminderID    string              `json:"reminder_id"`
	InvoiceID     string              `json:"invoice_id"`
	InvoiceNumber string              `json:"invoice_number"`
	Amount        decimal.Decimal     `json:"amount"`
	Type          models.ReminderType `json:"type"`
	TypeLabel     string              `json:"type_label"`
	ScheduledDate time.Time           `json:"scheduled_date"`
}

// StatusSummary aggregates an owner's reminders and the next ones due within a day.
type StatusSummary struct {
	StatusCounts
	NextDueReminders []UpcomingReminder `json:"next_due_reminders"`
}

// SentReminder is one delivered reminder with its message rebuilt for display.
type SentReminder struct {
	ID            string              `json:"id"`
	Type          models.ReminderType `json:"type"`
	SentDate      *time.Time          `json:"sent_date"`
	ScheduledDate time.Time           `json:"scheduled_date"`
	InvoiceID     string              `json:"invoice_id"`
	InvoiceNumber string              `json:"invoice_number"`
	ClientName    string              `json:"client_name"`
	To            string              `json:"to"`
	MessageID     string              `json:"message_id,omitempty"`
	Subject       string              `json:"subject"`
	HTML          string              `json:"html"`
}

// SentHistory lists an owner's delivered reminders, most recent first.
type SentHistory struct {
	TotalSent int            `json:"total_sent"`
	Sent      []SentReminder `json:"sent"`
}

// EarliestPending reports the earliest undelivered reminder of unpaid invoices.
// ByInvoice is only populated when the query is not scoped to a single invoice.
type EarliestPending struct {
	Date      *time.Time           `json:"date"`
	ByInvoice map[string]time.Time `json:"by_invoice"`
}

// ReminderQueryService answers read-only questions about reminders.
type ReminderQueryService struct {
	db        *gorm.DB
	store     *ReminderStore
	policy    *schedule.Policy
	publicURL string
}

// NewReminderQueryService constructs a ReminderQueryService. publicURL prefixes payment links
// in rebuilt messages.
func NewReminderQueryService(db *gorm.DB, policy *schedule.Policy, publicURL string) (*ReminderQueryService, error) {
	if db == nil {
		return nil, errors.New("reminder query service: db is required")
	}
	if policy == nil {
		policy = schedule.DefaultPolicy()
	}
	store, err := NewReminderStore(db)
	if err != nil {
		return nil, err
	}
	return &ReminderQueryService{db: db, store: store, policy: policy, publicURL: publicURL}, nil
}

// Config returns the configured reminder types.
func (s *ReminderQueryService) Config() []schedule.TypeInfo {
	return s.policy.Types()
}

// ForInvoice returns the reminders of one of the owner's invoices.
func (s *ReminderQueryService) ForInvoice(ctx context.Context, userID, invoiceID string) (*InvoiceReminders, error) {
	ctx = ensureContext(ctx)

	if err := s.ensureInvoiceOwned(ctx, userID, invoiceID); err != nil {
		return nil, err
	}

	reminders, err := s.store.ListForInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	out := &InvoiceReminders{
		InvoiceID: invoiceID,
		Reminders: make([]ReminderView, 0, len(reminders)),
	}
	for _, r := range reminders {
		out.Reminders = append(out.Reminders, s.view(r))
		out.Summary.add(r.Status, 1)
	}
	return out, nil
}

// Attempts returns the delivery log of one of the owner's reminders.
func (s *ReminderQueryService) Attempts(ctx context.Context, userID, reminderID string) (*ReminderAttempts, error) {
	ctx = ensureContext(ctx)

	reminder, err := s.store.Get(ctx, reminderID)
	if err != nil {
		if errors.Is(err, ErrReminderNotFound) {
			return nil, apperrors.ErrReminderNotFound
		}
		return nil, err
	}
	if err := s.ensureInvoiceOwned(ctx, userID, reminder.InvoiceID); err != nil {
		if errors.Is(err, apperrors.ErrInvoiceNotFound) {
			return nil, apperrors.ErrReminderNotFound
		}
		return nil, err
	}

	attempts, err := s.store.ListAttempts(ctx, reminder.ID)
	if err != nil {
		return nil, err
	}
	return &ReminderAttempts{Reminder: s.view(*reminder), Attempts: attempts}, nil
}

// Status summarises the owner's reminders and lists up to five pending ones due in the next 24 hours.
func (s *ReminderQueryService) Status(ctx context.Context, userID string, now time.Time) (*StatusSummary, error) {
	ctx = ensureContext(ctx)
	now = now.UTC()

	var rows []struct {
		Status models.ReminderStatus
		Count  int64
	}
	if err := s.db.WithContext(ctx).
		Model(&models.Reminder{}).
		Select("status, COUNT(*) AS count").
		Where("invoice_id IN (?)", s.ownedInvoices(ctx, userID)).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("reminder query service: count reminders: %w", err)
	}

	summary := &StatusSummary{NextDueReminders: []UpcomingReminder{}}
	for _, row := range rows {
		summary.add(row.Status, row.Count)
	}

	var upcoming []models.Reminder
	if err := s.db.WithContext(ctx).
		Where("invoice_id IN (?)", s.ownedInvoices(ctx, userID)).
		Where("status = ? AND scheduled_date >= ? AND scheduled_date <= ?",
			models.ReminderStatusPending, now, now.Add(24*time.Hour)).
		Order("scheduled_date ASC").
		Limit(upcomingLimit).
		Find(&upcoming).Error; err != nil {
		return nil, fmt.Errorf("reminder query service: list upcoming reminders: %w", err)
	}

	invoices, err := s.invoicesByID(ctx, reminderInvoiceIDs(upcoming))
	if err != nil {
		return nil, err
	}
	for _, r := range upcoming {
		invoice, ok := invoices[r.InvoiceID]
		if !ok {
			continue
		}
		summary.NextDueReminders = append(summary.NextDueReminders, UpcomingReminder{
			ReminderID:    r.ID,
			InvoiceID:     r.InvoiceID,
			InvoiceNumber: invoice.InvoiceNumber,
			Amount:        invoice.Amount,
			Type:          r.Type,
			TypeLabel:     s.policy.Label(r.Type),
			ScheduledDate: r.ScheduledDate,
		})
	}
	return summary, nil
}

// Sent returns the owner's delivered reminders with subject and body rebuilt from the live invoice.
func (s *ReminderQueryService) Sent(ctx context.Context, userID string) (*SentHistory, error) {
	ctx = ensureContext(ctx)

	var reminders []models.Reminder
	if err := s.db.WithContext(ctx).
		Where("invoice_id IN (?)", s.ownedInvoices(ctx, userID)).
		Where("status = ?", models.ReminderStatusSent).
		Order("sent_date DESC").
		Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("reminder query service: list sent reminders: %w", err)
	}

	invoices, err := s.invoicesByID(ctx, reminderInvoiceIDs(reminders))
	if err != nil {
		return nil, err
	}

	var owner models.User
	if err := s.db.WithContext(ctx).Limit(1).Find(&owner, "id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("reminder query service: load owner: %w", err)
	}

	history := &SentHistory{TotalSent: len(reminders), Sent: make([]SentReminder, 0, len(reminders))}
	for _, r := range reminders {
		invoice := invoices[r.InvoiceID]
		snap := SnapshotFor(&r, invoice, &owner, s.publicURL)

		item := SentReminder{
			ID:            r.ID,
			Type:          r.Type,
			SentDate:      r.SentDate,
			ScheduledDate: r.ScheduledDate,
			InvoiceID:     r.InvoiceID,
			InvoiceNumber: snap.InvoiceNumber,
			ClientName:    snap.ClientName,
			To:            snap.ClientEmail,
			MessageID:     r.MessageID,
			Subject:       "(no subject)",
		}
		if rendered, err := notify.Render(r.Type, snap); err == nil {
			item.Subject = rendered.Subject
			item.HTML = rendered.HTML
		}
		history.Sent = append(history.Sent, item)
	}
	return history, nil
}

// EarliestPending finds the earliest pending, undelivered reminder among the owner's unpaid
// invoices. When invoiceID is set only that invoice is considered and ByInvoice stays empty.
func (s *ReminderQueryService) EarliestPending(ctx context.Context, userID string, invoiceID *string) (*EarliestPending, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).
		Model(&models.Reminder{}).
		Select("reminders.invoice_id, reminders.scheduled_date").
		Joins("JOIN invoices ON invoices.id = reminders.invoice_id").
		Where("reminders.status = ? AND reminders.sent_date IS NULL", models.ReminderStatusPending).
		Where("invoices.status <> ? AND invoices.user_id = ?", models.InvoiceStatusPaid, userID).
		Order("reminders.scheduled_date ASC")
	if invoiceID != nil {
		query = query.Where("reminders.invoice_id = ?", *invoiceID).Limit(1)
	}

	var rows []models.Reminder
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("reminder query service: earliest pending: %w", err)
	}

	result := &EarliestPending{ByInvoice: map[string]time.Time{}}
	for _, row := range rows {
		if result.Date == nil {
			earliest := row.ScheduledDate
			result.Date = &earliest
		}
		if invoiceID != nil {
			break
		}
		if _, seen := result.ByInvoice[row.InvoiceID]; !seen {
			result.ByInvoice[row.InvoiceID] = row.ScheduledDate
		}
	}
	return result, nil
}

// SnapshotFor builds the gateway snapshot of a reminder from the live invoice, falling back to
// the stored snapshot for fields the invoice no longer provides.
func SnapshotFor(reminder *models.Reminder, invoice *models.Invoice, owner *models.User, publicURL string) notify.Snapshot {
	snap := notify.Snapshot{
		ReminderID:    reminder.ID,
		InvoiceID:     reminder.InvoiceID,
		InvoiceNumber: reminder.Snapshot.InvoiceNumber,
		Amount:        reminder.Snapshot.Amount,
		DueDate:       reminder.Snapshot.DueDate,
		ClientName:    reminder.Snapshot.ClientName,
		ClientEmail:   reminder.Snapshot.ClientEmail,
	}
	if invoice != nil {
		snap.InvoiceNumber = invoice.InvoiceNumber
		snap.Amount = invoice.Amount
		snap.DueDate = invoice.DueDate
		snap.Note = invoice.Note
		if invoice.PaymentToken != "" {
			snap.PaymentLink = notify.PaymentLink(publicURL, invoice.PaymentToken)
		}
		if invoice.Client != nil {
			snap.ClientName = invoice.Client.Name
			snap.ClientEmail = invoice.Client.Email
		}
	}
	if owner != nil {
		snap.Sender = notify.Sender{Name: owner.Name, Email: owner.Email}
	}
	return snap
}

func (s *ReminderQueryService) ensureInvoiceOwned(ctx context.Context, userID, invoiceID string) error {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ? AND user_id = ?", invoiceID, userID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("reminder query service: find invoice: %w", err)
	}
	if count == 0 {
		return apperrors.ErrInvoiceNotFound
	}
	return nil
}

func (s *ReminderQueryService) ownedInvoices(ctx context.Context, userID string) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Invoice{}).Select("id").Where("user_id = ?", userID)
}

func (s *ReminderQueryService) invoicesByID(ctx context.Context, ids []string) (map[string]*models.Invoice, error) {
	out := make(map[string]*models.Invoice, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var invoices []models.Invoice
	if err := s.db.WithContext(ctx).
		Preload("Client").
		Where("id IN ?", ids).
		Find(&invoices).Error; err != nil {
		return nil, fmt.Errorf("reminder query service: load invoices: %w", err)
	}
	for i := range invoices {
		out[invoices[i].ID] = &invoices[i]
	}
	return out, nil
}

func (s *ReminderQueryService) view(r models.Reminder) ReminderView {
	return ReminderView{
		ID:            r.ID,
		Type:          r.Type,
		TypeLabel:     s.policy.Label(r.Type),
		Status:        r.Status,
		ScheduledDate: r.ScheduledDate,
		SentDate:      r.SentDate,
		FailureReason: r.FailureReason,
		RetryCount:    r.RetryCount,
		RetryEligible: r.RetryEligible,
	}
}

func (c *StatusCounts) add(status models.ReminderStatus, n int64) {
	c.Total += n
	switch status {
	case models.ReminderStatusPending:
		c.Pending += n
	case models.ReminderStatusSent:
		c.Sent += n
	case models.ReminderStatusFailed:
		c.Failed += n
	case models.ReminderStatusCancelled:
		c.Cancelled += n
	}
}

func reminderInvoiceIDs(reminders []models.Reminder) []string {
	ids := make([]string, 0, len(reminders))
	for _, r := range reminders {
		ids = append(ids, r.InvoiceID)
	}
	return normaliseIDs(ids)
}
