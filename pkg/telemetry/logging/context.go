package logging

import "context"

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// WorkerKey is the context key for the worker's cluster-group identity.
	WorkerKey contextKey = "worker"

	// RouteKey is the context key for the matched route pattern.
	RouteKey contextKey = "route"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithWorker adds the worker identity to the context.
func WithWorker(ctx context.Context, worker string) context.Context {
	return context.WithValue(ctx, WorkerKey, worker)
}

// GetWorker retrieves the worker identity from the context.
func GetWorker(ctx context.Context) string {
	if worker, ok := ctx.Value(WorkerKey).(string); ok {
		return worker
	}
	return ""
}

// WithRoute adds the matched route pattern to the context.
func WithRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}

// GetRoute retrieves the matched route pattern from the context.
func GetRoute(ctx context.Context) string {
	if route, ok := ctx.Value(RouteKey).(string); ok {
		return route
	}
	return ""
}

// extractContextFields extracts common fields from ctx for logging.
func extractContextFields(ctx context.Context) []any {
	var fields []any
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if worker := GetWorker(ctx); worker != "" {
		fields = append(fields, "worker", worker)
	}
	if route := GetRoute(ctx); route != "" {
		fields = append(fields, "route", route)
	}
	return fields
}
