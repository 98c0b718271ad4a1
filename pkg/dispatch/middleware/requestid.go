package middleware

import (
	"github.com/google/uuid"

	"meridian-hq/vesta/pkg/dispatch"
)

// RequestIDHeader is the HTTP header carrying the request ID.
const RequestIDHeader = "X-Request-ID"

// requestIDKey is the context value key the ID is stored under.
const requestIDKey = "request_id"

// RequestID stamps every request with a unique ID: a client-provided
// X-Request-ID header is honored, otherwise a new UUID is generated. The
// ID is stored on the dispatch context and echoed in the response
// headers for correlation.
func RequestID() dispatch.Middleware {
	return func(c *dispatch.Context, next dispatch.Next) error {
		id := c.Request.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Response.Header().Set(RequestIDHeader, id)
		return next()
	}
}

// GetRequestID returns the request ID stamped by RequestID, or "".
func GetRequestID(c *dispatch.Context) string {
	if id, ok := c.Get(requestIDKey).(string); ok {
		return id
	}
	return ""
}
