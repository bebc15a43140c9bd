package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/invoicereminder/internal/handlers"
	"github.com/charlesng35/invoicereminder/internal/middleware"
)

func registerPaymentRoutes(public *gin.RouterGroup, handler *handlers.PaymentHandler) {
	public.GET("/pay/:token", middleware.RateLimit(payLinkRateLimit, payLinkRateWindow), handler.Confirm)
}
