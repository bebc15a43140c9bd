package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/invoicereminder/internal/app/dispatch"
	"github.com/charlesng35/invoicereminder/internal/notifications"
	"github.com/charlesng35/invoicereminder/internal/services"
	apperrors "github.com/charlesng35/invoicereminder/pkg/errors"
	"github.com/charlesng35/invoicereminder/pkg/response"
)

var errSweepInProgress = apperrors.New("reminders.sweep_in_progress", "A reminder sweep is already running", http.StatusConflict)

// Sweeper runs a single dispatch pass on demand.
type Sweeper interface {
	Tick(ctx context.Context) (dispatch.TickReport, error)
}

// ReminderHandler exposes read endpoints over reminders plus manual dispatch and the event stream.
type ReminderHandler struct {
	queries *services.ReminderQueryService
	sweeper Sweeper
	hub     *notifications.Hub
	now     func() time.Time
}

// NewReminderHandler constructs a ReminderHandler. sweeper and hub may be nil when the scheduler
// or the event stream are disabled.
func NewReminderHandler(queries *services.ReminderQueryService, sweeper Sweeper, hub *notifications.Hub) *ReminderHandler {
	return &ReminderHandler{
		queries: queries,
		sweeper: sweeper,
		hub:     hub,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Config GET /api/reminders/config
func (h *ReminderHandler) Config(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"types": h.queries.Config()})
}

// Status GET /api/reminders/status
func (h *ReminderHandler) Status(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	summary, err := h.queries.Status(requestContext(c), owner, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, summary)
}

// Sent GET /api/reminders/sent
func (h *ReminderHandler) Sent(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	history, err := h.queries.Sent(requestContext(c), owner)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, history)
}

// ForInvoice GET /api/reminders/invoice/:invoiceId
func (h *ReminderHandler) ForInvoice(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	reminders, err := h.queries.ForInvoice(requestContext(c), owner, c.Param("invoiceId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, reminders)
}

// Attempts GET /api/reminders/attempts/:id
func (h *ReminderHandler) Attempts(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	attempts, err := h.queries.Attempts(requestContext(c), owner, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, attempts)
}

// Earliest GET /api/reminders/earliest
func (h *ReminderHandler) Earliest(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	var scope *string
	if invoiceID := strings.TrimSpace(c.Query("invoice_id")); invoiceID != "" {
		scope = &invoiceID
	}

	earliest, err := h.queries.EarliestPending(requestContext(c), owner, scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, earliest)
}

// Dispatch POST /api/reminders/dispatch
func (h *ReminderHandler) Dispatch(c *gin.Context) {
	if h.sweeper == nil {
		response.Error(c, apperrors.ErrSchedulerDisabled)
		return
	}

	// A sweep outlives the request so that delivered reminders are always recorded.
	report, err := h.sweeper.Tick(context.WithoutCancel(requestContext(c)))
	if errors.Is(err, dispatch.ErrTickInProgress) {
		response.Error(c, errSweepInProgress)
		return
	}
	if errors.Is(err, dispatch.ErrStopped) {
		response.Error(c, apperrors.ErrSchedulerDisabled)
		return
	}

	payload := gin.H{"report": report}
	if err != nil {
		payload["error"] = err.Error()
	}
	response.Success(c, http.StatusOK, payload)
}

// Stream GET /api/reminders/stream
func (h *ReminderHandler) Stream(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}
	if h.hub == nil {
		response.Error(c, apperrors.ErrNotFound)
		return
	}

	h.hub.Serve(owner, c.Writer, c.Request)
}
