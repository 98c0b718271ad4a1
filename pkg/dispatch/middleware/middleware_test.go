package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"meridian-hq/vesta/pkg/dispatch"
)

func newTestContext(method, path string) (*dispatch.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	return dispatch.NewContext(w, httptest.NewRequest(method, path, nil)), w
}

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestRequestID(t *testing.T) {
	t.Run("generates an id when absent", func(t *testing.T) {
		c, _ := newTestContext("GET", "/")
		mw := RequestID()

		if err := mw(c, func() error { return nil }); err != nil {
			t.Fatalf("middleware error = %v", err)
		}

		id := GetRequestID(c)
		if !uuidPattern.MatchString(id) {
			t.Errorf("GetRequestID() = %q, want a UUID", id)
		}
		if got := c.Response.Header().Get(RequestIDHeader); got != id {
			t.Errorf("response header = %q, want %q", got, id)
		}
	})

	t.Run("propagates an inbound id", func(t *testing.T) {
		c, _ := newTestContext("GET", "/")
		c.Request.Header.Set(RequestIDHeader, "req-abc")
		mw := RequestID()

		if err := mw(c, func() error { return nil }); err != nil {
			t.Fatalf("middleware error = %v", err)
		}
		if got := GetRequestID(c); got != "req-abc" {
			t.Errorf("GetRequestID() = %q, want req-abc", got)
		}
	})

	t.Run("empty without middleware", func(t *testing.T) {
		c, _ := newTestContext("GET", "/")
		if got := GetRequestID(c); got != "" {
			t.Errorf("GetRequestID() = %q, want empty", got)
		}
	})
}

func TestCORSPreflight(t *testing.T) {
	c, w := newTestContext(http.MethodOptions, "/api/widgets")
	c.Request.Header.Set("Origin", "https://app.example.com")
	mw := CORS(DefaultCORSConfig())

	nextRan := false
	if err := mw(c, func() error { nextRan = true; return nil }); err != nil {
		t.Fatalf("middleware error = %v", err)
	}

	if nextRan {
		t.Error("preflight must not continue the chain")
	}
	if got := c.Response.State(); got != dispatch.StateEnded {
		t.Errorf("State() = %v, want StateEnded", got)
	}
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got == "" {
		t.Error("Allow-Methods header missing on preflight")
	}
}

func TestCORSSimpleRequest(t *testing.T) {
	config := &CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://app.example.com"},
	}

	t.Run("allowed origin", func(t *testing.T) {
		c, _ := newTestContext("GET", "/")
		c.Request.Header.Set("Origin", "https://app.example.com")
		mw := CORS(config)

		nextRan := false
		if err := mw(c, func() error { nextRan = true; return nil }); err != nil {
			t.Fatalf("middleware error = %v", err)
		}
		if !nextRan {
			t.Error("simple request must continue the chain")
		}
		if got := c.Response.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
			t.Errorf("Allow-Origin = %q", got)
		}
	})

	t.Run("disallowed origin gets no headers", func(t *testing.T) {
		c, _ := newTestContext("GET", "/")
		c.Request.Header.Set("Origin", "https://evil.example.com")
		mw := CORS(config)

		if err := mw(c, func() error { return nil }); err != nil {
			t.Fatalf("middleware error = %v", err)
		}
		if got := c.Response.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want unset", got)
		}
	})

	t.Run("disabled passes through untouched", func(t *testing.T) {
		c, _ := newTestContext("GET", "/")
		c.Request.Header.Set("Origin", "https://app.example.com")
		mw := CORS(&CORSConfig{})

		if err := mw(c, func() error { return nil }); err != nil {
			t.Fatalf("middleware error = %v", err)
		}
		if got := c.Response.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want unset", got)
		}
	})
}

func TestThrottle(t *testing.T) {
	factory := Throttle()

	t.Run("rejects once the bucket drains", func(t *testing.T) {
		mw := factory("2")

		pass := func() error {
			c, _ := newTestContext("GET", "/")
			return mw(c, func() error { return nil })
		}

		if err := pass(); err != nil {
			t.Fatalf("first request throttled: %v", err)
		}
		if err := pass(); err != nil {
			t.Fatalf("second request throttled: %v", err)
		}

		err := pass()
		var te *ThrottleError
		if !errors.As(err, &te) {
			t.Fatalf("error = %v, want *ThrottleError", err)
		}
		if te.StatusCode() != http.StatusTooManyRequests {
			t.Errorf("StatusCode() = %d, want 429", te.StatusCode())
		}
		if te.ErrorCode() != "throttled" {
			t.Errorf("ErrorCode() = %q, want throttled", te.ErrorCode())
		}
	})

	t.Run("same parameterization shares one bucket", func(t *testing.T) {
		a := factory("1")
		b := factory("1")

		c, _ := newTestContext("GET", "/")
		if err := a(c, func() error { return nil }); err != nil {
			t.Fatalf("first request throttled: %v", err)
		}

		c2, _ := newTestContext("GET", "/")
		err := b(c2, func() error { return nil })
		var te *ThrottleError
		if !errors.As(err, &te) {
			t.Errorf("error = %v, want shared bucket to reject", err)
		}
	})

	t.Run("malformed rate falls back to default", func(t *testing.T) {
		mw := factory("not-a-number")
		c, _ := newTestContext("GET", "/")
		if err := mw(c, func() error { return nil }); err != nil {
			t.Errorf("middleware error = %v", err)
		}
	})
}

func TestRecover(t *testing.T) {
	t.Run("converts a downstream panic to an error", func(t *testing.T) {
		c, _ := newTestContext("GET", "/")
		mw := Recover()

		err := mw(c, func() error { panic("link exploded") })
		var pe *dispatch.PanicError
		if !errors.As(err, &pe) {
			t.Fatalf("error = %v, want *dispatch.PanicError", err)
		}
		if pe.Value != "link exploded" {
			t.Errorf("Value = %v, want link exploded", pe.Value)
		}
		if len(pe.Stack) == 0 {
			t.Error("Stack is empty, want captured goroutine stack")
		}
	})

	t.Run("passes errors through untouched", func(t *testing.T) {
		c, _ := newTestContext("GET", "/")
		mw := Recover()

		want := errors.New("plain failure")
		if err := mw(c, func() error { return want }); !errors.Is(err, want) {
			t.Errorf("error = %v, want %v", err, want)
		}
	})
}

func TestAccessLogPassesResultThrough(t *testing.T) {
	c, _ := newTestContext("GET", "/")
	mw := AccessLog(nil)

	want := errors.New("downstream failure")
	if err := mw(c, func() error { return want }); !errors.Is(err, want) {
		t.Errorf("error = %v, want %v", err, want)
	}
}
