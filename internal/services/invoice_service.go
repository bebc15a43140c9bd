package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/invoicereminder/internal/models"
	"github.com/charlesng35/invoicereminder/internal/notifications"
	"github.com/charlesng35/invoicereminder/pkg/crypto"
	apperrors "github.com/charlesng35/invoicereminder/pkg/errors"
	"github.com/charlesng35/invoicereminder/pkg/logger"
)

const paymentTokenBytes = 32

// CreateInvoiceInput defines attributes required to create an invoice.
type CreateInvoiceInput struct {
	UserID        string
	ClientName    string
	ClientEmail   string
	InvoiceNumber string
	Amount        decimal.Decimal
	DueDate       time.Time
	Note          string
}

// ListInvoicesInput defines filters for listing an owner's invoices.
type ListInvoicesInput struct {
	UserID string
	Status models.InvoiceStatus
	Limit  int
	Offset int
}

// InvoiceService manages invoices and drives the reminder lifecycle hooks.
type InvoiceService struct {
	db        *gorm.DB
	clients   *ClientService
	lifecycle *ReminderLifecycle
	events    notifications.Publisher
	now       func() time.Time
	log       *zap.Logger
}

// NewInvoiceService constructs an InvoiceService.
func NewInvoiceService(db *gorm.DB, clients *ClientService, lifecycle *ReminderLifecycle, events notifications.Publisher) (*InvoiceService, error) {
	if db == nil {
		return nil, errors.New("invoice service: db is required")
	}
	if clients == nil {
		return nil, errors.New("invoice service: client service is required")
	}
	if lifecycle == nil {
		return nil, errors.New("invoice service: reminder lifecycle is required")
	}
	return &InvoiceService{
		db:        db,
		clients:   clients,
		lifecycle: lifecycle,
		events:    events,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logger.WithModule("invoices"),
	}, nil
}

// Create persists an invoice, resolving its client by email, and schedules its reminders.
// A scheduling failure is logged and left to the dispatcher's reconciliation.
func (s *InvoiceService) Create(ctx context.Context, input CreateInvoiceInput) (*models.Invoice, error) {
	ctx = ensureContext(ctx)
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, errors.New("invoice service: user id is required")
	}
	number := strings.TrimSpace(input.InvoiceNumber)
	if number == "" {
		return nil, apperrors.NewBadRequest("invoice number is required")
	}
	if !input.Amount.IsPositive() {
		return nil, apperrors.NewBadRequest("amount must be positive")
	}
	if input.DueDate.IsZero() {
		return nil, apperrors.NewBadRequest("due date is required")
	}

	client, err := s.clients.FindOrCreate(ctx, userID, input.ClientName, input.ClientEmail)
	if err != nil {
		return nil, fmt.Errorf("invoice service: resolve client: %w", err)
	}

	token, err := crypto.GenerateToken(paymentTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("invoice service: generate payment token: %w", err)
	}

	invoice := models.Invoice{
		UserID:        userID,
		ClientID:      client.ID,
		InvoiceNumber: number,
		Amount:        input.Amount,
		DueDate:       input.DueDate.UTC(),
		Note:          strings.TrimSpace(input.Note),
		Status:        models.InvoiceStatusUnpaid,
		PaymentToken:  token,
	}
	if err := s.db.WithContext(ctx).Create(&invoice).Error; err != nil {
		return nil, fmt.Errorf("invoice service: create invoice: %w", err)
	}
	invoice.Client = client

	if err := s.lifecycle.OnInvoiceCreated(ctx, &invoice); err != nil {
		s.log.Warn("failed to schedule invoice reminders",
			zap.String("invoice_id", invoice.ID),
			zap.Error(err),
		)
	}

	return s.load(ctx, userID, invoice.ID)
}

// List returns the owner's invoices, newest first, with the total row count.
func (s *InvoiceService) List(ctx context.Context, input ListInvoicesInput) ([]models.Invoice, int64, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Invoice{}).Where("user_id = ?", input.UserID)
	if input.Status != "" {
		query = query.Where("status = ?", input.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("invoice service: count invoices: %w", err)
	}

	var invoices []models.Invoice
	if err := query.
		Preload("Client").
		Order("created_at DESC").
		Limit(normaliseLimit(input.Limit)).
		Offset(max(0, input.Offset)).
		Find(&invoices).Error; err != nil {
		return nil, 0, fmt.Errorf("invoice service: list invoices: %w", err)
	}
	return invoices, total, nil
}

// Get returns one of the owner's invoices with its client and reminders.
func (s *InvoiceService) Get(ctx context.Context, userID, id string) (*models.Invoice, error) {
	return s.load(ensureContext(ctx), userID, id)
}

// MarkPaid settles an invoice on behalf of its owner and cancels outstanding reminders.
// Paying an invoice twice is rejected.
func (s *InvoiceService) MarkPaid(ctx context.Context, userID, id string) (*models.Invoice, error) {
	ctx = ensureContext(ctx)

	invoice, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if invoice.IsPaid() {
		return nil, apperrors.ErrInvoiceAlreadyPaid
	}

	settled, err := s.settle(ctx, invoice)
	if err != nil {
		return nil, err
	}
	if !settled {
		return nil, apperrors.ErrInvoiceAlreadyPaid
	}
	return s.load(ctx, userID, id)
}

// ConfirmPayment settles the invoice behind a public payment token. The bool reports whether
// the invoice had already been paid, in which case nothing changes.
func (s *InvoiceService) ConfirmPayment(ctx context.Context, token string) (*models.Invoice, bool, error) {
	ctx = ensureContext(ctx)
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, false, apperrors.ErrInvalidPaymentLink
	}

	var invoice models.Invoice
	if err := s.db.WithContext(ctx).
		Preload("Client").
		Where("payment_token = ?", token).
		First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, apperrors.ErrInvalidPaymentLink
		}
		return nil, false, fmt.Errorf("invoice service: find invoice by token: %w", err)
	}
	if invoice.IsPaid() {
		return &invoice, true, nil
	}

	settled, err := s.settle(ctx, &invoice)
	if err != nil {
		return nil, false, err
	}

	updated, err := s.load(ctx, invoice.UserID, invoice.ID)
	if err != nil {
		return nil, false, err
	}
	return updated, !settled, nil
}

// Delete removes an invoice together with its reminders.
func (s *InvoiceService) Delete(ctx context.Context, userID, id string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoice models.Invoice
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&invoice).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrInvoiceNotFound
			}
			return fmt.Errorf("invoice service: find invoice: %w", err)
		}

		if err := tx.Where("reminder_id IN (?)",
			tx.Model(&models.Reminder{}).Select("id").Where("invoice_id = ?", invoice.ID),
		).Delete(&models.ReminderAttempt{}).Error; err != nil {
			return fmt.Errorf("invoice service: delete reminder attempts: %w", err)
		}
		if err := tx.Where("invoice_id = ?", invoice.ID).Delete(&models.Reminder{}).Error; err != nil {
			return fmt.Errorf("invoice service: delete reminders: %w", err)
		}
		if err := tx.Delete(&invoice).Error; err != nil {
			return fmt.Errorf("invoice service: delete invoice: %w", err)
		}
		return nil
	})
}

// settle flips an unpaid invoice to paid and runs the payment hook. It returns false when
// another writer settled the invoice first.
func (s *InvoiceService) settle(ctx context.Context, invoice *models.Invoice) (bool, error) {
	paidAt := s.now()
	result := s.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ? AND status <> ?", invoice.ID, models.InvoiceStatusPaid).
		Updates(map[string]any{
			"status":  models.InvoiceStatusPaid,
			"paid_at": paidAt,
		})
	if result.Error != nil {
		return false, fmt.Errorf("invoice service: mark paid: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	if _, err := s.lifecycle.OnInvoicePaid(ctx, invoice.ID); err != nil {
		// The dispatcher re-checks payment before every send, so pending rows
		// left behind here are cancelled on their next sweep.
		s.log.Warn("failed to cancel reminders after payment",
			zap.String("invoice_id", invoice.ID),
			zap.Error(err),
		)
	}

	if s.events != nil {
		s.events.Publish(invoice.UserID, notifications.Event{
			Event:     notifications.EventInvoicePaid,
			InvoiceID: invoice.ID,
			Data:      map[string]any{"paid_at": paidAt},
		})
	}
	return true, nil
}

func (s *InvoiceService) load(ctx context.Context, userID, id string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := s.db.WithContext(ctx).
		Preload("Client").
		Preload("Reminders", func(db *gorm.DB) *gorm.DB {
			return db.Order("scheduled_date ASC")
		}).
		Where("id = ? AND user_id = ?", id, userID).
		First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("invoice service: load invoice: %w", err)
	}
	return &invoice, nil
}
