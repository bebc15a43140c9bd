package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/invoicereminder/internal/handlers"
)

func registerInvoiceRoutes(api *gin.RouterGroup, handler *handlers.InvoiceHandler) {
	invoices := api.Group("/invoices")
	{
		invoices.GET("", handler.List)
		invoices.POST("", handler.Create)
		invoices.GET("/:id", handler.Get)
		invoices.PATCH("/:id/mark-paid", handler.MarkPaid)
		invoices.DELETE("/:id", handler.Delete)
	}
}
