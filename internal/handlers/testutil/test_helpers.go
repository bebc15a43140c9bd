package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/invoicereminder/internal/api"
	"github.com/charlesng35/invoicereminder/internal/app"
	"github.com/charlesng35/invoicereminder/internal/app/dispatch"
	sharedtestutil "github.com/charlesng35/invoicereminder/internal/database/testutil"
	"github.com/charlesng35/invoicereminder/internal/middleware"
	"github.com/charlesng35/invoicereminder/internal/models"
	"github.com/charlesng35/invoicereminder/internal/monitoring"
	"github.com/charlesng35/invoicereminder/internal/notifications"
	"github.com/charlesng35/invoicereminder/internal/notify"
	"github.com/charlesng35/invoicereminder/internal/schedule"
	"github.com/charlesng35/invoicereminder/internal/services"
	"github.com/charlesng35/invoicereminder/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T          *testing.T
	DB         *gorm.DB
	Router     *gin.Engine
	Invoices   *services.InvoiceService
	Dispatcher *dispatch.Dispatcher
	Hub        *notifications.Hub
	Monitoring *monitoring.Module
}

// EnvOption customises NewEnv.
type EnvOption func(*envConfig)

type envConfig struct {
	schedulerDisabled bool
}

// WithoutScheduler builds the router without a dispatcher, as when the scheduler is disabled.
func WithoutScheduler() EnvOption {
	return func(cfg *envConfig) {
		cfg.schedulerDisabled = true
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	settings := envConfig{}
	for _, opt := range opts {
		opt(&settings)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Server: app.ServerConfig{PublicURL: "https://billing.example.com"},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}

	mod, err := monitoring.NewModule(monitoring.Options{})
	require.NoError(t, err)

	hub := notifications.NewHub()
	policy := schedule.DefaultPolicy()

	store, err := services.NewReminderStore(db)
	require.NoError(t, err)
	lifecycle, err := services.NewReminderLifecycle(db, store, policy, hub)
	require.NoError(t, err)
	clients, err := services.NewClientService(db)
	require.NoError(t, err)
	invoices, err := services.NewInvoiceService(db, clients, lifecycle, hub)
	require.NoError(t, err)
	queries, err := services.NewReminderQueryService(db, policy, cfg.Server.PublicURL)
	require.NoError(t, err)

	env := &Env{
		T:          t,
		DB:         db,
		Invoices:   invoices,
		Hub:        hub,
		Monitoring: mod,
	}

	deps := api.Dependencies{
		Config:     cfg,
		Invoices:   invoices,
		Clients:    clients,
		Queries:    queries,
		Hub:        hub,
		Monitoring: mod,
	}
	if !settings.schedulerDisabled {
		dispatcher, err := dispatch.New(db, store, lifecycle, notify.NewNoopGateway(),
			dispatch.WithPublicURL(cfg.Server.PublicURL),
			dispatch.WithPublisher(hub),
		)
		require.NoError(t, err)
		env.Dispatcher = dispatcher
		deps.Sweeper = dispatcher
	}

	router, err := api.NewRouter(deps)
	require.NoError(t, err)
	env.Router = router

	return env
}

// NewOwner returns a random owner tag.
func NewOwner() string {
	return uuid.NewString()
}

// PaymentToken reads the payment token of an invoice straight from the database.
func (e *Env) PaymentToken(invoiceID string) string {
	e.T.Helper()

	var invoice models.Invoice
	require.NoError(e.T, e.DB.Select("payment_token").Where("id = ?", invoiceID).First(&invoice).Error)
	require.NotEmpty(e.T, invoice.PaymentToken)
	return invoice.PaymentToken
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and the owner header.
func (e *Env) Request(method, path string, body any, owner string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set(middleware.OwnerHeader, owner)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
