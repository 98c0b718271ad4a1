package dispatch

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Handler is the terminal unit of a dispatch flow. Its return value, when
// non-nil and the response is still pending, is staged as the response
// body under the set-if-unset rule: []byte and string are staged as-is,
// anything else is JSON-encoded.
type Handler func(c *Context) (any, error)

// Next is the continuation passed to each middleware link. A link that
// returns without invoking Next halts the chain; no later link (including
// the final handler) executes.
type Next func() error

// Middleware is one link in a dispatch chain. Links run strictly in their
// composed order and share the request Context.
type Middleware func(c *Context, next Next) error

// NamedFactory produces a middleware from the parameter suffix of a named
// reference. A route id "throttle:25" resolves the factory registered
// under "throttle" with arg "25"; an unparameterized id resolves with an
// empty arg. Resolution happens at chain-composition time, so the
// registration order and the parameter are preserved as data.
type NamedFactory func(arg string) Middleware

// Route is the immutable descriptor produced by the route resolver. It is
// looked up, never mutated, by the dispatcher.
type Route struct {
	// Method is the HTTP method this route answers.
	Method string

	// Pattern is the path pattern the route was registered under.
	Pattern string

	// Handler is the terminal handler for the route.
	Handler Handler

	// Middleware lists named-middleware ids to run after the global chain,
	// in declaration order. Ids may carry a colon-delimited parameter
	// suffix ("auth:basic").
	Middleware []string

	// ClusterGroup names the worker class that must execute this route.
	// Empty means any worker may serve it.
	ClusterGroup string

	// Timeout overrides the configured default handler timeout when
	// positive.
	Timeout time.Duration
}

// Match is a successful route resolution.
type Match struct {
	Route      *Route
	Params     map[string]string
	Subdomains []string
}

// Resolver resolves an inbound request to a route. Implementations return
// the longest, most-specific match for the path.
type Resolver interface {
	Match(method, path, host string) (*Match, bool)
}

// Transport forwards requests to a sibling worker. Forward relays a plain
// HTTP request and its response; ForwardUpgrade relays a protocol-upgrade
// handshake (e.g. WebSocket) over the hijacked connection. Both are
// attempted at most once per request and never retried here.
type Transport interface {
	Forward(w http.ResponseWriter, r *http.Request, target *url.URL) error
	ForwardUpgrade(r *http.Request, conn net.Conn, head []byte, target *url.URL) error
}

// ExceptionHandler is the bound unit invoked for every failure caught by
// the dispatcher. Report runs first for observability side effects, then
// Handle produces the user-visible response. Failures inside either are
// caught by the funnel and degraded to a raw diagnostic body.
type ExceptionHandler interface {
	Report(err error, c *Context)
	Handle(err error, c *Context)
}

// Config is the read-only configuration snapshot threaded into the
// dispatcher at construction. Request-handling code never reads ambient
// process state; everything it needs is here.
type Config struct {
	// Worker is this process's cluster-group identity.
	Worker string

	// ProxyEnabled toggles cross-worker forwarding globally.
	ProxyEnabled bool

	// BasePort is the port the first worker group listens on; each group's
	// port is BasePort plus its offset.
	BasePort int

	// GroupOffsets maps cluster-group names to port offsets.
	GroupOffsets map[string]int

	// DefaultTimeout is applied to the handler phase of routes without
	// their own timeout. Zero disables the timeout guard.
	DefaultTimeout time.Duration

	// OnMismatch selects the behavior when proxying is disabled but a
	// route requires a different cluster group.
	OnMismatch MismatchPolicy
}

// MismatchPolicy is the disabled-proxy affinity-mismatch behavior.
type MismatchPolicy string

const (
	// MismatchServe serves the route locally and logs a warning.
	MismatchServe MismatchPolicy = "serve"

	// MismatchFail rejects the request with a 503 configuration error.
	MismatchFail MismatchPolicy = "fail"
)

// Target computes the loopback origin for a cluster group, or false if the
// group has no configured port offset.
func (c Config) Target(group string) (*url.URL, bool) {
	offset, ok := c.GroupOffsets[group]
	if !ok {
		return nil, false
	}
	return &url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort("127.0.0.1", strconv.Itoa(c.BasePort+offset)),
	}, true
}
