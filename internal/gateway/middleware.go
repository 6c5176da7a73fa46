package gateway

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const requestIDKey = "request_id"

// RequestLogger tags every request with a short unique id, echoes it in
// X-Request-ID, and logs start and completion with timing. Handlers
// read the id back via c.GetString(requestIDKey).
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := "req_" + uuid.NewString()[:8]
		c.Set(requestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		entry := log.WithFields(log.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
		})
		entry.WithField("event", "started").Info("Request started")

		start := time.Now()
		c.Next()

		entry.WithFields(log.Fields{
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"event":      "completed",
		}).Info("Request completed")
	}
}
