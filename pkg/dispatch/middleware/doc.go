// Package middleware provides Vesta's built-in dispatch middleware:
// request-id stamping, access logging, CORS, and a token-bucket throttle
// available as the named middleware "throttle:<rps>".
//
// All of them use the dispatch.Middleware signature and can be registered
// at the server level, globally, or (for the factories) under a name.
package middleware
