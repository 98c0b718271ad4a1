package dispatch

import (
	"errors"
	"fmt"
	"time"
)

// StatusCoder is implemented by errors that carry their own HTTP status.
// Failures raised inside middleware or handlers may implement it to
// control the status of the funneled response; errors without a status
// default to 500.
type StatusCoder interface {
	StatusCode() int
}

// ErrorCoder is implemented by errors that carry a machine-readable code
// included in structured error responses.
type ErrorCoder interface {
	ErrorCode() string
}

// RouteNotFoundError is raised when no route matches the inbound request.
type RouteNotFoundError struct {
	Method string
	Path   string
	Host   string
}

func (e *RouteNotFoundError) Error() string {
	return fmt.Sprintf("no route matches %s %s (host %q)", e.Method, e.Path, e.Host)
}

// StatusCode returns 404.
func (e *RouteNotFoundError) StatusCode() int { return 404 }

// ErrorCode returns the structured code for route-resolution failures.
func (e *RouteNotFoundError) ErrorCode() string { return "route_not_found" }

// TimeoutError is raised by the timeout guard when a handler invocation
// exceeds its configured deadline. It carries the configured duration so
// the funneled response can report what limit was breached.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("handler exceeded the %s request timeout", e.Timeout)
}

// StatusCode returns 500. Timeouts are reported as server failures with a
// distinguishing code rather than as gateway timeouts, because the
// deadline belongs to the local handler, not a downstream peer.
func (e *TimeoutError) StatusCode() int { return 500 }

// ErrorCode returns the distinguishing code for deadline failures.
func (e *TimeoutError) ErrorCode() string { return "request_timeout" }

// ProxyError is raised when a cross-worker forward cannot be computed or
// the downstream peer fails. Forwards are attempted at most once; the
// error surfaces as a failed proxied response, never as a retry.
type ProxyError struct {
	Group  string
	Target string
	Err    error
}

func (e *ProxyError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("proxy forward for cluster group %q failed: %v", e.Group, e.Err)
	}
	return fmt.Sprintf("proxy forward to %s (group %q) failed: %v", e.Target, e.Group, e.Err)
}

func (e *ProxyError) Unwrap() error { return e.Err }

// StatusCode returns 502.
func (e *ProxyError) StatusCode() int { return 502 }

// ErrorCode returns the structured code for proxy failures.
func (e *ProxyError) ErrorCode() string { return "proxy_failure" }

// ClusterMismatchError is raised when a route requires a different cluster
// group than the current worker, proxying is disabled, and the mismatch
// policy is configured to fail closed.
type ClusterMismatchError struct {
	Group  string
	Worker string
}

func (e *ClusterMismatchError) Error() string {
	return fmt.Sprintf("route requires cluster group %q but worker %q cannot proxy (proxying disabled)", e.Group, e.Worker)
}

// StatusCode returns 503.
func (e *ClusterMismatchError) StatusCode() int { return 503 }

// ErrorCode returns the structured code for affinity failures.
func (e *ClusterMismatchError) ErrorCode() string { return "cluster_mismatch" }

// PanicError wraps a panic recovered from a middleware link or handler so
// it can flow through the exception funnel like any other failure. Stack
// holds the goroutine stack captured at recovery time.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// RegistrationError reports an invalid middleware or exception-handler
// registration. These are configuration-time failures: they are returned
// from the setup calls and are expected to abort startup, never to be
// recovered per-request.
type RegistrationError struct {
	Kind   string // "server", "global", "named", "exception"
	Name   string
	Reason string
}

func (e *RegistrationError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("invalid %s middleware registration %q: %s", e.Kind, e.Name, e.Reason)
	}
	return fmt.Sprintf("invalid %s middleware registration: %s", e.Kind, e.Reason)
}

// UnknownMiddlewareError is raised at chain-composition time when a route
// references a named middleware id that was never registered.
type UnknownMiddlewareError struct {
	ID string
}

func (e *UnknownMiddlewareError) Error() string {
	return fmt.Sprintf("route references unregistered middleware %q", e.ID)
}

// ErrorCode returns the structured code for unresolved middleware ids.
func (e *UnknownMiddlewareError) ErrorCode() string { return "unknown_middleware" }

// StatusOf extracts the HTTP status carried by err, walking wrapped
// errors. Failures without a status default to 500.
func StatusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 500
}

// CodeOf extracts the machine-readable code carried by err, walking
// wrapped errors. Failures without a code default to "internal_error".
func CodeOf(err error) string {
	var ec ErrorCoder
	if errors.As(err, &ec) {
		return ec.ErrorCode()
	}
	return "internal_error"
}
