package api

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	RequestIDHeader      = "X-Request-ID"
	ServiceVersionHeader = "X-Service-Version"
	ServiceVersion       = "1.0.0"

	requestIDContextKey = "request_id"
	maxRequestIDLen     = 128
)

// RequestID reuses a caller supplied X-Request-ID or assigns a fresh one, and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		c.Set(requestIDContextKey, id)
		c.Header(RequestIDHeader, id)
		c.Header(ServiceVersionHeader, ServiceVersion)
		c.Next()
	}
}

// RequestIDFromContext retrieves the id stored by RequestID.
func RequestIDFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(requestIDContextKey)
	if !ok {
		return "", false
	}
	id, ok := val.(string)
	return id, ok
}

// AccessLog logs each request with method, path, status and latency.
func AccessLog(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Millisecond),
			"client":  c.ClientIP(),
		}
		if id, ok := RequestIDFromContext(c); ok {
			fields["request_id"] = id
		}
		entry := log.WithFields(fields)
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("request failed")
		case status >= 400:
			entry.Warn("request rejected")
		default:
			entry.Info("request")
		}
	}
}
