package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/invoicereminder/pkg/errors"
	"github.com/charlesng35/invoicereminder/pkg/response"
)

var errTooManyRequests = errors.New("TOO_MANY_REQUESTS", "Too many requests", http.StatusTooManyRequests)

// rateWindow counts requests per key within fixed windows. It is process local.
type rateWindow struct {
	mu     sync.Mutex
	window time.Duration
	data   map[string]*rateCounter
	clock  func() time.Time
}

type rateCounter struct {
	count     int
	windowEnd time.Time
}

func newRateWindow(window time.Duration) *rateWindow {
	return &rateWindow{
		window: window,
		data:   make(map[string]*rateCounter),
		clock:  time.Now,
	}
}

func (w *rateWindow) increment(key string) (int, time.Duration) {
	now := w.clock()

	w.mu.Lock()
	defer w.mu.Unlock()

	// Expired counters are swept lazily once the map grows.
	if len(w.data) > 1024 {
		for k, v := range w.data {
			if now.After(v.windowEnd) {
				delete(w.data, k)
			}
		}
	}

	counter, ok := w.data[key]
	if !ok || now.After(counter.windowEnd) {
		counter = &rateCounter{windowEnd: now.Add(w.window)}
		w.data[key] = counter
	}
	counter.count++
	return counter.count, counter.windowEnd.Sub(now)
}

// RateLimit limits requests per (client IP, route) within a fixed window. It guards the public
// payment link endpoint against token guessing.
func RateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	if maxRequests <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := newRateWindow(window)

	return func(c *gin.Context) {
		count, resetIn := limiter.increment(c.ClientIP() + "|" + c.FullPath())

		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(max(0, maxRequests-count)))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(resetIn.Seconds())))

		if count > maxRequests {
			response.Error(c, errTooManyRequests)
			c.Abort()
			return
		}
		c.Next()
	}
}
