package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/invoicereminder/internal/models"
	"github.com/charlesng35/invoicereminder/internal/services"
	apperrors "github.com/charlesng35/invoicereminder/pkg/errors"
	"github.com/charlesng35/invoicereminder/pkg/response"
)

// ClientHandler lists the clients an owner has invoiced.
type ClientHandler struct {
	clients *services.ClientService
}

// NewClientHandler constructs a ClientHandler.
func NewClientHandler(clients *services.ClientService) *ClientHandler {
	return &ClientHandler{clients: clients}
}

type clientDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// List GET /api/clients
func (h *ClientHandler) List(c *gin.Context) {
	owner, ok := ownerID(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	clients, err := h.clients.List(requestContext(c), owner)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]clientDTO, 0, len(clients))
	for _, client := range clients {
		out = append(out, toClientDTO(client))
	}
	response.SuccessWithMeta(c, http.StatusOK, out, &response.Meta{Total: len(out)})
}

func toClientDTO(client models.Client) clientDTO {
	return clientDTO{ID: client.ID, Name: client.Name, Email: client.Email}
}
