package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/invoicereminder/pkg/errors"
	"github.com/charlesng35/invoicereminder/pkg/response"
)

const (
	// OwnerHeader carries the id of the user the request acts for.
	OwnerHeader = "X-User-ID"
	// ownerQueryParam is accepted for websocket upgrades, which cannot set custom headers in browsers.
	ownerQueryParam = "user_id"

	CtxUserIDKey = "userID"
)

// Owner resolves the owner tag of the request and rejects requests without one.
func Owner() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := strings.TrimSpace(c.GetHeader(OwnerHeader))
		if owner == "" && isWebsocketUpgrade(c) {
			owner = strings.TrimSpace(c.Query(ownerQueryParam))
		}
		if owner == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxUserIDKey, owner)
		c.Next()
	}
}

func isWebsocketUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}
