package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/invoicereminder/internal/handlers"
)

func registerReminderRoutes(api *gin.RouterGroup, handler *handlers.ReminderHandler) {
	reminders := api.Group("/reminders")
	{
		reminders.GET("/config", handler.Config)
		reminders.GET("/status", handler.Status)
		reminders.GET("/sent", handler.Sent)
		reminders.GET("/earliest", handler.Earliest)
		reminders.GET("/invoice/:invoiceId", handler.ForInvoice)
		reminders.GET("/attempts/:id", handler.Attempts)
		reminders.POST("/dispatch", handler.Dispatch)
		reminders.GET("/stream", handler.Stream)
	}
}
