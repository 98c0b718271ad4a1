package dispatch

import (
	"context"
	"net/http"
	"time"
)

// Context carries the per-request state for one dispatch flow: the raw
// request, the tri-state response, resolved route parameters and
// subdomain captures, and the request's cancellation token.
//
// A Context is owned exclusively by the dispatch call that created it. It
// is never shared across requests and must not be retained after the
// response is finalized.
type Context struct {
	// Request is the raw inbound request.
	Request *http.Request

	// Response is the staged, tri-state response for this request.
	Response *Response

	// Route is the resolved route descriptor, nil until routing completes.
	Route *Route

	// Params holds the resolved route parameters (e.g. {"id": "42"} for
	// a route pattern /users/:id).
	Params map[string]string

	// Subdomains holds host labels captured left of the configured base
	// domain, outermost first.
	Subdomains []string

	// Timeout is the deadline applied to the route-middleware and handler
	// phase. Zero means no timeout is enforced.
	Timeout time.Duration

	ctx    context.Context
	cancel context.CancelCauseFunc
	values map[string]any
}

// NewContext builds a request context around w and r. The request's own
// context is the parent of the cancellation token, so downstream
// connection closure and timeout firing both route through the same
// signal.
func NewContext(w http.ResponseWriter, r *http.Request) *Context {
	ctx, cancel := context.WithCancelCause(r.Context())
	return &Context{
		Request:  r,
		Response: NewResponse(w),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Context returns the request's cancellation context. Handlers performing
// long-running work must observe its Done channel; it fires when the
// timeout guard trips or the client disconnects, whichever happens first.
func (c *Context) Context() context.Context {
	return c.ctx
}

// Cancel signals the request's cancellation token with the given cause.
// The token is signaled at most once; later causes are dropped.
func (c *Context) Cancel(cause error) {
	c.cancel(cause)
}

// Param returns the named route parameter, or "" if absent.
func (c *Context) Param(name string) string {
	return c.Params[name]
}

// Set stores an arbitrary value on the context for later links in the
// chain. Values are request-scoped and discarded at finalization.
func (c *Context) Set(key string, v any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = v
}

// Get returns a value stored by an earlier link, or nil.
func (c *Context) Get(key string) any {
	return c.values[key]
}
