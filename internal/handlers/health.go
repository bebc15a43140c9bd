package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/invoicereminder/internal/monitoring"
)

// HealthHandler serves liveness and readiness probes backed by the monitoring health manager.
// A nil manager reports the probes as disabled.
type HealthHandler struct {
	manager *monitoring.HealthManager
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(manager *monitoring.HealthManager) *HealthHandler {
	return &HealthHandler{manager: manager}
}

// Overall GET /health
func (h *HealthHandler) Overall(c *gin.Context) {
	if h.manager == nil {
		disabledHealth(c)
		return
	}
	ctx := requestContext(c)
	report := monitoring.MergeReports(h.manager.EvaluateLiveness(ctx), h.manager.EvaluateReadiness(ctx))
	c.JSON(healthStatus(report), gin.H{
		"success":    report.Success,
		"status":     report.Status,
		"checked_at": time.Now().UTC(),
	})
}

// Live GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	if h.manager == nil {
		disabledHealth(c)
		return
	}
	writeHealthReport(c, h.manager.EvaluateLiveness(requestContext(c)))
}

// Ready GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.manager == nil {
		disabledHealth(c)
		return
	}
	writeHealthReport(c, h.manager.EvaluateReadiness(requestContext(c)))
}

func disabledHealth(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}

func healthStatus(report monitoring.HealthReport) int {
	if !report.Success {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeHealthReport(c *gin.Context, report monitoring.HealthReport) {
	c.JSON(healthStatus(report), gin.H{
		"success":    report.Success,
		"status":     report.Status,
		"checks":     report.Checks,
		"checked_at": time.Now().UTC(),
	})
}
