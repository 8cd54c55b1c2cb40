package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stwalsh4118/siteplan/internal/logger"
)

const loggerKey = "logger"

// queryFields are the request parameters worth a log field of their own.
var queryFields = []string{"lot_plan", "zone", "region", "fresh", "frontage_bearing", "cycle_id"}

// Logger logs one structured line per request and stores a request-scoped
// logger in the gin context. Requests slower than slow log at warn level;
// a zero slow disables that.
func Logger(log *logger.Logger, slow time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestLogger := log.WithRequestID(GetRequestID(c))
		c.Set(loggerKey, requestLogger)

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		fields := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      status,
			"duration_ms": duration.Milliseconds(),
			"ip":          c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		query := c.Request.URL.Query()
		for _, name := range queryFields {
			if v := query.Get(name); v != "" {
				fields[name] = v
			}
		}
		if region := c.Param("region"); region != "" {
			fields["region"] = region
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		switch {
		case status >= http.StatusInternalServerError:
			requestLogger.Error("Request completed with server error", nil, fields)
		case status >= http.StatusBadRequest:
			requestLogger.Warn("Request completed with client error", fields)
		case slow > 0 && duration > slow:
			fields["slow_ms"] = slow.Milliseconds()
			requestLogger.Warn("Slow request", fields)
		default:
			requestLogger.Info("Request completed", fields)
		}
	}
}

// GetLogger returns the request-scoped logger, or nil outside the middleware.
func GetLogger(c *gin.Context) *logger.Logger {
	if v, exists := c.Get(loggerKey); exists {
		if l, ok := v.(*logger.Logger); ok {
			return l
		}
	}
	return nil
}
