package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/invoicereminder/internal/handlers"
)

func registerClientRoutes(api *gin.RouterGroup, handler *handlers.ClientHandler) {
	clients := api.Group("/clients")
	{
		clients.GET("", handler.List)
	}
}
