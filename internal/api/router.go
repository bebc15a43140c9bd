package api

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/invoicereminder/internal/app"
	"github.com/charlesng35/invoicereminder/internal/handlers"
	"github.com/charlesng35/invoicereminder/internal/middleware"
	"github.com/charlesng35/invoicereminder/internal/monitoring"
	"github.com/charlesng35/invoicereminder/internal/notifications"
	"github.com/charlesng35/invoicereminder/internal/services"
)

const (
	payLinkRateLimit  = 30
	payLinkRateWindow = time.Minute
)

// Dependencies carries the services the HTTP layer is built on.
type Dependencies struct {
	Config   *app.Config
	Invoices *services.InvoiceService
	Clients  *services.ClientService
	Queries  *services.ReminderQueryService

	// Sweeper triggers manual dispatch; nil when the scheduler is disabled.
	Sweeper handlers.Sweeper
	// Hub streams reminder events; nil disables the stream endpoint.
	Hub        *notifications.Hub
	Monitoring *monitoring.Module
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Config == nil {
		return nil, errors.New("config must be provided")
	}
	if deps.Invoices == nil {
		return nil, errors.New("invoice service must be provided")
	}
	if deps.Clients == nil {
		return nil, errors.New("client service must be provided")
	}
	if deps.Queries == nil {
		return nil, errors.New("reminder query service must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())

	registerHealthRoutes(r, deps.Config, deps.Monitoring)
	registerMetricsRoute(r, deps.Config, deps.Monitoring)

	// Public payment confirmation
	registerPaymentRoutes(r.Group("/api"), handlers.NewPaymentHandler(deps.Invoices))

	// Owner scoped routes
	api := r.Group("/api")
	api.Use(middleware.Owner())

	registerInvoiceRoutes(api, handlers.NewInvoiceHandler(deps.Invoices))
	registerClientRoutes(api, handlers.NewClientHandler(deps.Clients))
	registerReminderRoutes(api, handlers.NewReminderHandler(deps.Queries, deps.Sweeper, deps.Hub))
	registerMonitoringRoutes(api, handlers.NewMonitoringHandler(deps.Monitoring, deps.Config))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}

func registerMetricsRoute(r *gin.Engine, cfg *app.Config, mon *monitoring.Module) {
	if !cfg.Monitoring.Prometheus.Enabled || mon == nil {
		return
	}
	endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		endpoint = "/metrics"
	}
	r.GET(endpoint, gin.WrapH(mon.Handler()))
}
