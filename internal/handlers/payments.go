package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/charlesng35/invoicereminder/internal/models"
	"github.com/charlesng35/invoicereminder/internal/services"
	"github.com/charlesng35/invoicereminder/pkg/response"
)

// PaymentHandler confirms payments through the public links embedded in reminder emails.
type PaymentHandler struct {
	svc *services.InvoiceService
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(svc *services.InvoiceService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

type paymentConfirmationDTO struct {
	InvoiceNumber string               `json:"invoice_number"`
	ClientName    string               `json:"client_name"`
	Amount        decimal.Decimal      `json:"amount"`
	Status        models.InvoiceStatus `json:"status"`
	PaidAt        *time.Time           `json:"paid_at"`
	AlreadyPaid   bool                 `json:"already_paid"`
}

// Confirm GET /api/pay/:token
func (h *PaymentHandler) Confirm(c *gin.Context) {
	invoice, alreadyPaid, err := h.svc.ConfirmPayment(requestContext(c), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	dto := paymentConfirmationDTO{
		InvoiceNumber: invoice.InvoiceNumber,
		Amount:        invoice.Amount,
		Status:        invoice.Status,
		PaidAt:        invoice.PaidAt,
		AlreadyPaid:   alreadyPaid,
	}
	if invoice.Client != nil {
		dto.ClientName = invoice.Client.Name
	}

	response.Success(c, http.StatusOK, dto)
}
