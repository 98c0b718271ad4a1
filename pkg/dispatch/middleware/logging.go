package middleware

import (
	"time"

	"meridian-hq/vesta/pkg/dispatch"
	"meridian-hq/vesta/pkg/telemetry/logging"
)

// AccessLog logs one line per request at the fine level: method, path,
// matched pattern, status, and duration. Register it at the server level
// so short-circuited and proxied requests are logged too.
func AccessLog(logger *logging.Logger) dispatch.Middleware {
	if logger == nil {
		logger = logging.Default()
	}
	return func(c *dispatch.Context, next dispatch.Next) error {
		start := time.Now()
		err := next()

		pattern := ""
		if c.Route != nil {
			pattern = c.Route.Pattern
		}
		logger.Fine("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", pattern,
			"status", c.Response.StatusCode(),
			"duration", time.Since(start),
			"request_id", GetRequestID(c),
		)
		return err
	}
}
