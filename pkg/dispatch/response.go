package dispatch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// ResponseState is the per-request response lifecycle state.
type ResponseState int

const (
	// StatePending means nothing has been staged or sent.
	StatePending ResponseState = iota

	// StateSoftSet means a body and/or status is staged but the underlying
	// stream has not been written or closed.
	StateSoftSet

	// StateEnded means the stream has been written and closed. Exactly one
	// transition into StateEnded occurs per request.
	StateEnded
)

// String returns the state name for logging.
func (s ResponseState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateSoftSet:
		return "soft-set"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("ResponseState(%d)", int(s))
	}
}

// Response wraps the underlying http.ResponseWriter with explicit
// tri-state staging. Middleware links and handlers stage a status and
// body; nothing reaches the wire until End flushes the staged state.
//
// The ended transition is guarded by compare-and-set semantics: however
// many links attempt to finalize, only the first write closes the stream
// and every later attempt is a no-op.
type Response struct {
	mu     sync.Mutex
	w      http.ResponseWriter
	state  ResponseState
	status int
	body   []byte
}

// NewResponse wraps w in a pending Response.
func NewResponse(w http.ResponseWriter) *Response {
	return &Response{w: w}
}

// State returns the current response state.
func (r *Response) State() ResponseState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// StatusCode returns the staged (or flushed) status, or 200 when none has
// been staged.
func (r *Response) StatusCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// Header returns the header map that will be sent when the response is
// finalized. Mutations after the ended transition have no effect.
func (r *Response) Header() http.Header {
	return r.w.Header()
}

// Status stages a response status without touching the body. A no-op once
// the response has ended.
func (r *Response) Status(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateEnded {
		return
	}
	r.status = code
	r.state = StateSoftSet
}

// Stage stages a status and body, replacing any previously staged pair.
// A no-op once the response has ended.
func (r *Response) Stage(status int, body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateEnded {
		return
	}
	r.status = status
	r.body = body
	r.state = StateSoftSet
}

// StageIfUnset stages body only if the response is still pending. This is
// the set-if-unset rule for handler return values: a later writer never
// overwrites an earlier soft-set response. Returns true if the body was
// staged.
func (r *Response) StageIfUnset(body []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StatePending {
		return false
	}
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body = body
	r.state = StateSoftSet
	return true
}

// JSON stages a JSON-encoded body with the given status and sets the
// content type. Encoding failures are returned without changing state.
func (r *Response) JSON(status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode response body: %w", err)
	}
	r.w.Header().Set("Content-Type", "application/json")
	r.Stage(status, b)
	return nil
}

// End flushes the staged status and body to the underlying stream and
// transitions the response to ended. If the response is still pending the
// stream is closed with status 200 and an empty body. Calling End on an
// already-ended response is a no-op, both times and every time after.
func (r *Response) End() {
	r.mu.Lock()
	if r.state == StateEnded {
		r.mu.Unlock()
		return
	}
	status := r.status
	body := r.body
	r.state = StateEnded
	r.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	r.w.WriteHeader(status)
	if len(body) > 0 {
		// Write errors mean the peer went away; there is nothing left to do
		// with this response.
		_, _ = r.w.Write(body)
	}
}

// MarkEnded transitions the response to ended without writing anything.
// Used on the proxy path, where the transport has already relayed the
// downstream response directly onto the stream.
func (r *Response) MarkEnded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateEnded
}

// Writer exposes the underlying http.ResponseWriter for transports that
// must stream directly (proxy forwards, upgrades). Callers that write
// through it are responsible for calling MarkEnded.
func (r *Response) Writer() http.ResponseWriter {
	return r.w
}
