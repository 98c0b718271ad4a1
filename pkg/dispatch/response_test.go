package dispatch

import (
	"net/http/httptest"
	"testing"
)

// countingWriter records how many times the header was written so tests
// can prove the ended transition happens exactly once.
type countingWriter struct {
	*httptest.ResponseRecorder
	headerWrites int
}

func newCountingWriter() *countingWriter {
	return &countingWriter{ResponseRecorder: httptest.NewRecorder()}
}

func (w *countingWriter) WriteHeader(code int) {
	w.headerWrites++
	w.ResponseRecorder.WriteHeader(code)
}

func TestResponseStateTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *Response)
		want  ResponseState
	}{
		{
			name:  "new response is pending",
			setup: func(r *Response) {},
			want:  StatePending,
		},
		{
			name:  "stage moves to soft-set",
			setup: func(r *Response) { r.Stage(200, []byte("ok")) },
			want:  StateSoftSet,
		},
		{
			name:  "status alone moves to soft-set",
			setup: func(r *Response) { r.Status(404) },
			want:  StateSoftSet,
		},
		{
			name:  "end moves to ended",
			setup: func(r *Response) { r.End() },
			want:  StateEnded,
		},
		{
			name: "stage after end is ignored",
			setup: func(r *Response) {
				r.End()
				r.Stage(500, []byte("late"))
			},
			want: StateEnded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResponse(httptest.NewRecorder())
			tt.setup(r)
			if got := r.State(); got != tt.want {
				t.Errorf("State() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResponseEndIsIdempotent(t *testing.T) {
	w := newCountingWriter()
	r := NewResponse(w)
	r.Stage(201, []byte("created"))

	r.End()
	r.End()
	r.End()

	if w.headerWrites != 1 {
		t.Errorf("headerWrites = %d, want 1", w.headerWrites)
	}
	if w.Code != 201 {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if got := w.Body.String(); got != "created" {
		t.Errorf("body = %q, want %q", got, "created")
	}
}

func TestResponseEndWhilePending(t *testing.T) {
	w := httptest.NewRecorder()
	r := NewResponse(w)

	r.End()

	if w.Code != 200 {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}

func TestResponseStageIfUnset(t *testing.T) {
	t.Run("stages when pending", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := NewResponse(w)
		if !r.StageIfUnset([]byte("first")) {
			t.Fatal("StageIfUnset() = false, want true")
		}
		r.End()
		if got := w.Body.String(); got != "first" {
			t.Errorf("body = %q, want %q", got, "first")
		}
	})

	t.Run("does not overwrite a soft-set body", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := NewResponse(w)
		r.Stage(200, []byte("early"))
		if r.StageIfUnset([]byte("late")) {
			t.Fatal("StageIfUnset() = true, want false")
		}
		r.End()
		if got := w.Body.String(); got != "early" {
			t.Errorf("body = %q, want %q", got, "early")
		}
	})

	t.Run("does not resurrect an ended response", func(t *testing.T) {
		r := NewResponse(httptest.NewRecorder())
		r.End()
		if r.StageIfUnset([]byte("zombie")) {
			t.Fatal("StageIfUnset() = true, want false")
		}
	})
}

func TestResponseStatusCode(t *testing.T) {
	r := NewResponse(httptest.NewRecorder())
	if got := r.StatusCode(); got != 200 {
		t.Errorf("StatusCode() = %d, want 200 for unset", got)
	}
	r.Status(418)
	if got := r.StatusCode(); got != 418 {
		t.Errorf("StatusCode() = %d, want 418", got)
	}
}

func TestResponseJSON(t *testing.T) {
	w := httptest.NewRecorder()
	r := NewResponse(w)
	if err := r.JSON(400, map[string]string{"reason": "bad"}); err != nil {
		t.Fatalf("JSON() error = %v", err)
	}
	r.End()

	if w.Code != 400 {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if got := w.Body.String(); got != `{"reason":"bad"}` {
		t.Errorf("body = %q", got)
	}
}

func TestResponseMarkEnded(t *testing.T) {
	w := newCountingWriter()
	r := NewResponse(w)
	r.MarkEnded()
	r.End()

	if w.headerWrites != 0 {
		t.Errorf("headerWrites = %d, want 0 after MarkEnded", w.headerWrites)
	}
	if got := r.State(); got != StateEnded {
		t.Errorf("State() = %v, want StateEnded", got)
	}
}
