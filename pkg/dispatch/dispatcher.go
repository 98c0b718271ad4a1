package dispatch

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"meridian-hq/vesta/pkg/telemetry/logging"
	"meridian-hq/vesta/pkg/telemetry/metrics"
)

// Dispatcher orchestrates the per-request lifecycle: route resolution,
// cluster-affinity checks, middleware execution, handler invocation under
// the timeout guard, exception funneling, and response finalization.
//
// A Dispatcher's collaborators and registries are process-wide, read-mostly
// state: the setup calls (Use, RegisterGlobal, RegisterNamed,
// RegisterExceptionHandler, BindExceptionHandler) are safe only before the
// dispatcher starts serving; Handle may then run concurrently for any
// number of requests.
type Dispatcher struct {
	cfg        Config
	resolver   Resolver
	transport  Transport
	logger     *logging.Logger
	collector  *metrics.Collector
	registry   *Registry
	exceptions *handlerRegistry
}

// New creates a dispatcher with its configuration snapshot and
// collaborators. The resolver is required; transport may be nil when
// proxying is disabled; a nil logger falls back to the package default
// and a nil collector disables metrics.
func New(cfg Config, resolver Resolver, transport Transport, logger *logging.Logger, collector *metrics.Collector) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{
		cfg:        cfg,
		resolver:   resolver,
		transport:  transport,
		logger:     logger,
		collector:  collector,
		registry:   NewRegistry(),
		exceptions: newHandlerRegistry(),
	}
	// The conventional default is always present; applications override it
	// by registering and binding their own handler.
	_ = d.exceptions.register(DefaultHandlerName, &DefaultExceptionHandler{})
	return d
}

// Use appends server-level middleware. See Registry.Use.
func (d *Dispatcher) Use(mws ...Middleware) error { return d.registry.Use(mws...) }

// RegisterGlobal appends global middleware. See Registry.RegisterGlobal.
func (d *Dispatcher) RegisterGlobal(mws []Middleware) error {
	return d.registry.RegisterGlobal(mws)
}

// RegisterNamed registers a named middleware factory. See
// Registry.RegisterNamed.
func (d *Dispatcher) RegisterNamed(name string, factory NamedFactory) error {
	return d.registry.RegisterNamed(name, factory)
}

// RegisterExceptionHandler registers a named exception handler.
func (d *Dispatcher) RegisterExceptionHandler(name string, h ExceptionHandler) error {
	return d.exceptions.register(name, h)
}

// BindExceptionHandler selects the named exception handler for the funnel.
// When never called, the conventional default handler is used.
func (d *Dispatcher) BindExceptionHandler(name string) error {
	return d.exceptions.bind(name)
}

// SetReporter wires an observability sink into the default exception
// handler (e.g. the failure journal). Safe to call only during setup.
func (d *Dispatcher) SetReporter(r Reporter) {
	_ = d.exceptions.register(DefaultHandlerName, &DefaultExceptionHandler{Reporter: r})
}

// Handle is the single entry point for one inbound request. It has no
// return value; every outcome is observable only through the response
// stream, which is finalized exactly once on every path.
func (d *Dispatcher) Handle(w http.ResponseWriter, r *http.Request) {
	c := NewContext(w, r)
	c.Timeout = d.cfg.DefaultTimeout
	start := time.Now()
	outcome := outcomeLocal

	defer func() {
		// FINALIZED: pending and soft-set responses are flushed and closed;
		// an already-ended response makes this a no-op.
		c.Response.End()
		d.collector.ObserveRequest(r.Method, c.Response.StatusCode(), string(outcome), time.Since(start))
		d.logger.Fine("request finalized",
			"method", r.Method,
			"path", r.URL.Path,
			"status", c.Response.StatusCode(),
			"outcome", string(outcome),
			"duration", time.Since(start),
		)
	}()

	// ROUTING.
	m, ok := d.resolver.Match(r.Method, r.URL.Path, r.Host)
	if !ok {
		outcome = outcomeError
		d.fail(c, &RouteNotFoundError{Method: r.Method, Path: r.URL.Path, Host: r.Host})
		return
	}
	c.Route = m.Route
	c.Params = m.Params
	c.Subdomains = m.Subdomains
	if m.Route.Timeout > 0 {
		c.Timeout = m.Route.Timeout
	}

	// Cluster affinity, first check: a foreign-group route leaves the rest
	// of the lifecycle to the remote worker.
	if handled, proxied := d.checkAffinity(c); handled {
		if proxied {
			outcome = outcomeProxied
		} else {
			outcome = outcomeError
		}
		return
	}

	// SERVER_MIDDLEWARE: unconditional, runs with the resolved route in
	// context.
	if err := guardPanic(func() error {
		return d.registry.ComposeServer().Run(c, nil)
	}); err != nil {
		outcome = outcomeError
		d.fail(c, err)
		return
	}
	if c.Response.State() == StateEnded {
		// Server middleware short-circuited the whole request.
		return
	}

	// Affinity re-check: server middleware may have rewritten the route.
	if handled, proxied := d.checkAffinity(c); handled {
		if proxied {
			outcome = outcomeProxied
		} else {
			outcome = outcomeError
		}
		return
	}

	// ROUTE_MIDDLEWARE -> HANDLER, under the timeout guard.
	chain, err := d.registry.ComposeGlobalAndNamed(c.Route.Middleware)
	if err != nil {
		outcome = outcomeError
		d.fail(c, err)
		return
	}
	err = runGuarded(c, c.Timeout, func() error {
		return chain.Run(c, c.Route.Handler)
	})
	if err != nil {
		outcome = outcomeError
		var te *TimeoutError
		if errors.As(err, &te) {
			d.collector.RecordTimeout()
		}
		d.fail(c, err)
		return
	}
}

// ServeHTTP adapts the dispatcher to http.Handler.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.Handle(w, r)
}

type requestOutcome string

const (
	outcomeLocal   requestOutcome = "local"
	outcomeProxied requestOutcome = "proxied"
	outcomeError   requestOutcome = "error"
)

// fail routes a failure through the exception funnel and records it.
func (d *Dispatcher) fail(c *Context, err error) {
	d.collector.RecordException(CodeOf(err))
	d.funnel(c, err)
}

// checkAffinity compares the route's required cluster group against this
// worker's identity. It returns handled=true when the local state machine
// must terminate (the request was proxied, or failed closed), and
// proxied=true when the remote worker now owns the lifecycle.
func (d *Dispatcher) checkAffinity(c *Context) (handled, proxied bool) {
	group := c.Route.ClusterGroup
	if group == "" || group == d.cfg.Worker {
		return false, false
	}

	if !d.cfg.ProxyEnabled {
		if d.cfg.OnMismatch == MismatchFail {
			d.fail(c, &ClusterMismatchError{Group: group, Worker: d.cfg.Worker})
			return true, false
		}
		d.logger.Warning("serving foreign cluster-group route locally",
			"group", group, "worker", d.cfg.Worker, "path", c.Request.URL.Path)
		return false, false
	}

	d.forward(c, group)
	return true, true
}

// forward relays the request to the worker owning the route's cluster
// group. PROXIED is terminal for the local state machine: no local
// middleware or handler runs, and the transport owns the stream from here.
func (d *Dispatcher) forward(c *Context, group string) {
	target, ok := d.cfg.Target(group)
	if !ok {
		d.fail(c, &ProxyError{Group: group, Err: errNoGroupPort})
		return
	}
	if d.transport == nil {
		d.fail(c, &ProxyError{Group: group, Target: target.String(), Err: errNoTransport})
		return
	}

	d.logger.Verbose("forwarding to cluster peer",
		"group", group, "target", target.String(), "path", c.Request.URL.Path)

	var err error
	if isUpgrade(c.Request) {
		err = d.forwardUpgrade(c, target)
	} else {
		err = d.transport.Forward(c.Response.Writer(), c.Request, target)
	}
	c.Response.MarkEnded()
	d.collector.RecordProxyForward(group, err)
	if err != nil {
		// The transport already surfaced the failed proxied response;
		// forwarding is attempted at most once and never retried.
		d.logger.Warning("proxy forward failed",
			"group", group, "target", target.String(), "error", err)
	}
}

// forwardUpgrade hijacks the client connection and relays the upgrade
// handshake to the peer.
func (d *Dispatcher) forwardUpgrade(c *Context, target *url.URL) error {
	hj, ok := c.Response.Writer().(http.Hijacker)
	if !ok {
		return errNotHijackable
	}
	conn, rw, err := hj.Hijack()
	if err != nil {
		return err
	}
	var head []byte
	if rw != nil && rw.Reader.Buffered() > 0 {
		head, _ = rw.Reader.Peek(rw.Reader.Buffered())
	}
	return d.transport.ForwardUpgrade(c.Request, conn, head, target)
}

// isUpgrade reports whether the request asks for a protocol upgrade.
func isUpgrade(r *http.Request) bool {
	if r.Header.Get("Upgrade") == "" {
		return false
	}
	for _, v := range r.Header.Values("Connection") {
		for _, part := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(part), "upgrade") {
				return true
			}
		}
	}
	return false
}

var (
	errNoGroupPort   = errorString("cluster group has no configured port offset")
	errNoTransport   = errorString("no proxy transport configured")
	errNotHijackable = errorString("connection does not support protocol upgrade")
)

type errorString string

func (e errorString) Error() string { return string(e) }
