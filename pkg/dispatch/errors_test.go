package dispatch

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestStatusOfAndCodeOf(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "route not found",
			err:        &RouteNotFoundError{Method: "GET", Path: "/x"},
			wantStatus: 404,
			wantCode:   "route_not_found",
		},
		{
			name:       "timeout",
			err:        &TimeoutError{Timeout: time.Second},
			wantStatus: 500,
			wantCode:   "request_timeout",
		},
		{
			name:       "proxy failure",
			err:        &ProxyError{Group: "utility", Err: errors.New("refused")},
			wantStatus: 502,
			wantCode:   "proxy_failure",
		},
		{
			name:       "cluster mismatch",
			err:        &ClusterMismatchError{Group: "utility", Worker: "web"},
			wantStatus: 503,
			wantCode:   "cluster_mismatch",
		},
		{
			name:       "unknown middleware",
			err:        &UnknownMiddlewareError{ID: "nope"},
			wantStatus: 500,
			wantCode:   "unknown_middleware",
		},
		{
			name:       "plain error defaults",
			err:        errors.New("something broke"),
			wantStatus: 500,
			wantCode:   "internal_error",
		},
		{
			name:       "wrapped error keeps its status",
			err:        fmt.Errorf("outer: %w", &RouteNotFoundError{Method: "GET", Path: "/x"}),
			wantStatus: 404,
			wantCode:   "route_not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(tt.err); got != tt.wantStatus {
				t.Errorf("StatusOf() = %d, want %d", got, tt.wantStatus)
			}
			if got := CodeOf(tt.err); got != tt.wantCode {
				t.Errorf("CodeOf() = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestProxyErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &ProxyError{Group: "utility", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("errors.Is() = false, want the wrapped failure reachable")
	}
}

func TestResponseStateString(t *testing.T) {
	tests := []struct {
		state ResponseState
		want  string
	}{
		{state: StatePending, want: "pending"},
		{state: StateSoftSet, want: "soft-set"},
		{state: StateEnded, want: "ended"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
