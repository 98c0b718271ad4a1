// Package dispatch implements the request-dispatch engine at the core of
// Vesta: per-request lifecycle orchestration, the layered middleware
// pipeline, timeout and cancellation control, cluster-affinity routing,
// and exception funneling.
//
// The engine is driven through a single entry point, Dispatcher.Handle,
// which runs an inbound request through a fixed state machine:
//
//	ROUTING -> SERVER_MIDDLEWARE -> PROXIED
//	                             -> ROUTE_MIDDLEWARE -> HANDLER -> FINALIZED
//
// with an EXCEPTION state reachable from every step. Every request reaches
// exactly one finalization regardless of which path it takes.
//
// The dispatcher consumes its collaborators as interfaces: a Resolver for
// route lookup, a Transport for cross-worker proxy forwards, and an
// ExceptionHandler for failure reporting. Route matching, configuration
// loading, and the proxy transport live in their own packages.
package dispatch
