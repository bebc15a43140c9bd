package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/invoicereminder/internal/monitoring"
)

// Metrics records request latency for each HTTP request, keyed by route template.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		monitoring.ObserveAPILatency(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
