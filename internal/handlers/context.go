package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/invoicereminder/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// ownerID returns the owner tag resolved by middleware.Owner.
func ownerID(c *gin.Context) (string, bool) {
	value, ok := c.Get(middleware.CtxUserIDKey)
	if !ok {
		return "", false
	}
	id, ok := value.(string)
	return id, ok && id != ""
}
