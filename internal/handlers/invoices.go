package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/charlesng35/invoicereminder/internal/models"
	"github.com/charlesng35/invoicereminder/internal/services"
	apperrors "github.com/charlesng35/invoicereminder/pkg/errors"
	"github.com/charlesng35/invoicereminder/pkg/response"
)

const dueDateLayout = "2006-01-02"

// InvoiceHandler exposes invoice management endpoints for the request owner.
type InvoiceHandler struct {
	svc *services.InvoiceService
}

// NewInvoiceHandler constructs an InvoiceHandler.
func NewInvoiceHandler(svc *services.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{svc: svc}
}

type createInvoicePayload struct {
	ClientName    string      `json:"client_name" validate:"omitempty,max=255"`
	ClientEmail   string      `json:"client_email" validate:"required,email"`
	InvoiceNumber string      `json:"invoice_number" validate:"required,max=64"`
	Amount        json.Number `json:"amount" validate:"required,positive_amount"`
	DueDate       string      `json:"due_date" validate:"required,datetime=2006-01-02"`
	Note          string      `json:"note" validate:"omitempty,max=2000"`
}

type invoiceDTO struct {
	ID            string               `json:"id"`
	InvoiceNumber string               `json:"invoice_number"`
	ClientID      string               `json:"client_id"`
	ClientName    string               `json:"client_name"`
	ClientEmail   string               `json:"client_email"`
	Amount        decimal.Decimal      `json:"amount"`
	DueDate       string               `json:"due_date"`
	Note          string               `json:"note,omitempty"`
	Status        models.InvoiceStatus `json:"status"`
	PaidAt        *time.Time           `json:"paid_at"`
	CreatedAt     time.Time            `json:"created_at"`
	Reminders     []reminderDTO        `json:"reminders,omitempty"`
}

type reminderDTO struct {
	ID            string                `json:"id"`
	Type          models.ReminderType   `json:"type"`
	Status        models.ReminderStatus `json:"status"`
	ScheduledDate time.Time             `json:"scheduled_date"`
	SentDate      *time.Time            `json:"sent_date"`
	RetryCount    int                   `json:"retry_count"`
}

func mapInvoice(invoice *models.Invoice) invoiceDTO {
	dto := invoiceDTO{
		ID:            invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		ClientID:      invoice.ClientID,
		Amount:        invoice.Amount,
		DueDate:       invoice.DueDate.UTC().Format(dueDateLayout),
		Note:          invoice.Note,
		Status:        invoice.Status,
		PaidAt:        invoice.PaidAt,
		CreatedAt:     invoice.CreatedAt,
	}
	if invoice.Client != nil {
		dto.ClientName = invoice.Client.Name
		dto.ClientEmail = invoice.Client.Email
	}
	for _, reminder := range invoice.Reminders {
		dto.Reminders = append(dto.Reminders, reminderDTO{
			ID:            reminder.ID,
			Type:          reminder.Type,
			Status:        reminder.Status,
			ScheduledDate: reminder.ScheduledDate,
			SentDate:      reminder.SentDate,
			RetryCount:    reminder.RetryCount,
		})
	}
	return dto
}

// Create POST /api/invoices
func (h *InvoiceHandler) Create(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var payload createInvoicePayload
	if !bindAndValidate(c, &payload) {
		return
	}

	amount, err := decimal.NewFromString(payload.Amount.String())
	if err != nil {
		response.Error(c, apperrors.NewBadRequest("amount must be a positive number"))
		return
	}
	dueDate, err := time.Parse(dueDateLayout, strings.TrimSpace(payload.DueDate))
	if err != nil {
		response.Error(c, apperrors.NewBadRequest("due date must match the format 2006-01-02"))
		return
	}

	invoice, err := h.svc.Create(requestContext(c), services.CreateInvoiceInput{
		UserID:        owner,
		ClientName:    payload.ClientName,
		ClientEmail:   payload.ClientEmail,
		InvoiceNumber: payload.InvoiceNumber,
		Amount:        amount,
		DueDate:       dueDate,
		Note:          payload.Note,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, mapInvoice(invoice))
}

// List GET /api/invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	status := models.InvoiceStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))
	switch status {
	case "", models.InvoiceStatusUnpaid, models.InvoiceStatusPaid, models.InvoiceStatusOverdue:
	default:
		response.Error(c, apperrors.NewBadRequest("status must be one of unpaid, paid or overdue"))
		return
	}

	limit := parseIntQuery(c, "limit", 50)
	offset := parseIntQuery(c, "offset", 0)

	invoices, total, err := h.svc.List(requestContext(c), services.ListInvoicesInput{
		UserID: owner,
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	data := make([]invoiceDTO, 0, len(invoices))
	for i := range invoices {
		data = append(data, mapInvoice(&invoices[i]))
	}

	response.SuccessWithMeta(c, http.StatusOK, data, &response.Meta{
		Total:  int(total),
		Limit:  limit,
		Offset: offset,
	})
}

// Get GET /api/invoices/:id
func (h *InvoiceHandler) Get(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	invoice, err := h.svc.Get(requestContext(c), owner, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, mapInvoice(invoice))
}

// MarkPaid PATCH /api/invoices/:id/mark-paid
func (h *InvoiceHandler) MarkPaid(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	invoice, err := h.svc.MarkPaid(requestContext(c), owner, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, mapInvoice(invoice))
}

// Delete DELETE /api/invoices/:id
func (h *InvoiceHandler) Delete(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	if err := h.svc.Delete(requestContext(c), owner, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
