package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"costledger/pkg/logger"
)

// Logger puts log on the request context for the layers below and writes
// one line per request. Probe and scrape paths under any of quietPrefixes
// are only logged when they fail. Server errors log at error level and
// refusals at warn.
func Logger(log *logger.Logger, quietPrefixes ...string) gin.HandlerFunc {
	access := log.WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Request = c.Request.WithContext(logger.WithLogger(c.Request.Context(), log))

		c.Next()

		status := c.Writer.Status()
		if status < 400 && quiet(path, quietPrefixes) {
			return
		}

		l := access.WithContext(c.Request.Context())
		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"route", c.FullPath(),
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"company_id", c.GetString(CompanyKey),
			"client_ip", c.ClientIP(),
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			fields = append(fields, "error", errs.String())
		}

		switch {
		case status >= 500:
			l.Errorw("http request", fields...)
		case status >= 400:
			l.Warnw("http request", fields...)
		default:
			l.Infow("http request", fields...)
		}
	}
}

func quiet(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
