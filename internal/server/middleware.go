package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RequestLoggingMiddleware logs one line per request at debug level, or at
// warn level for server errors.
func RequestLoggingMiddleware(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(logrus.Fields{
			"method":  method,
			"path":    path,
			"status":  status,
			"latency": time.Since(start),
		})
		if status >= 500 {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request")
	}
}
