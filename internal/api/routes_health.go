package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/invoicereminder/internal/app"
	"github.com/charlesng35/invoicereminder/internal/handlers"
	"github.com/charlesng35/invoicereminder/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, mon *monitoring.Module) {
	var manager *monitoring.HealthManager
	if cfg.Monitoring.Health.Enabled && mon != nil {
		manager = mon.Health()
	}
	handler := handlers.NewHealthHandler(manager)

	registerHealthEndpoints(r, handler)
	registerHealthEndpoints(r.Group("/api"), handler)
}

func registerHealthEndpoints(router gin.IRouter, handler *handlers.HealthHandler) {
	router.GET("/health", handler.Overall)
	router.GET("/health/live", handler.Live)
	router.GET("/health/ready", handler.Ready)
}
