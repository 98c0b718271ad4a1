package dispatch

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
)

// errorBody is the structured error payload written by the default
// exception handler.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Status  int    `json:"status"`
}

// handlerRegistry holds named exception handlers; Bind selects which one
// the funnel resolves. Safe to mutate only during setup.
type handlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]ExceptionHandler
	bound    string
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{handlers: make(map[string]ExceptionHandler)}
}

func (hr *handlerRegistry) register(name string, h ExceptionHandler) error {
	if name == "" {
		return &RegistrationError{Kind: "exception", Reason: "name must not be empty"}
	}
	if h == nil {
		return &RegistrationError{Kind: "exception", Name: name, Reason: "handler must not be nil"}
	}
	hr.mu.Lock()
	defer hr.mu.Unlock()
	hr.handlers[name] = h
	return nil
}

func (hr *handlerRegistry) bind(name string) error {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	if _, ok := hr.handlers[name]; !ok {
		return &RegistrationError{Kind: "exception", Name: name, Reason: "not registered"}
	}
	hr.bound = name
	return nil
}

func (hr *handlerRegistry) resolve() ExceptionHandler {
	hr.mu.RLock()
	defer hr.mu.RUnlock()
	if hr.bound != "" {
		if h, ok := hr.handlers[hr.bound]; ok {
			return h
		}
	}
	return hr.handlers[DefaultHandlerName]
}

// DefaultHandlerName is the conventional exception-handler name used when
// the application binds none of its own.
const DefaultHandlerName = "default"

// funnel normalizes any failure raised during dispatch into a reported,
// user-visible response. Report is invoked before Handle for every caught
// failure; a failure inside either degrades to a raw best-effort
// diagnostic body. The funnel never raises and never finalizes the
// response itself; the dispatcher's finalization step runs after it
// unconditionally.
func (d *Dispatcher) funnel(c *Context, err error) {
	if StatusOf(err) >= 500 {
		d.logger.Severe("request failed", "error", err, "code", CodeOf(err),
			"method", c.Request.Method, "path", c.Request.URL.Path)
	} else {
		d.logger.Warning("request failed", "error", err, "code", CodeOf(err),
			"method", c.Request.Method, "path", c.Request.URL.Path)
	}

	h := d.exceptions.resolve()
	if h == nil {
		writeRawDiagnostic(c, err)
		return
	}
	if !invokeSafely(func() { h.Report(err, c) }) {
		writeRawDiagnostic(c, err)
		return
	}
	if !invokeSafely(func() { h.Handle(err, c) }) {
		writeRawDiagnostic(c, err)
		return
	}
}

// invokeSafely runs fn and reports whether it returned without panicking.
func invokeSafely(fn func()) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	fn()
	return true
}

// writeRawDiagnostic writes a minimal plain-text diagnostic (error type,
// message, stack) directly to the response. This is the funnel's last
// resort and must never itself raise; every step is best-effort.
func writeRawDiagnostic(c *Context, err error) {
	defer func() {
		// A diagnostic write has nowhere left to report failures.
		_ = recover()
	}()

	stack := panicStack(err)
	body := fmt.Sprintf("%T: %v\n\n%s", err, err, stack)
	c.Response.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.Response.Stage(StatusOf(err), []byte(body))
}

// panicStack returns the stack captured with a PanicError, or the current
// stack for errors that carry none.
func panicStack(err error) []byte {
	var pe *PanicError
	if errors.As(err, &pe) && len(pe.Stack) > 0 {
		return pe.Stack
	}
	return debug.Stack()
}

// DefaultExceptionHandler is the conventional fallback handler. Report
// forwards the failure to an optional Reporter (e.g. the failure journal)
// and Handle stages a structured JSON error body carrying the failure's
// status and code.
type DefaultExceptionHandler struct {
	// Reporter receives every funneled failure for observability. May be
	// nil, in which case Report is a logging no-op.
	Reporter Reporter
}

// Reporter is the observability sink consumed by the default exception
// handler.
type Reporter interface {
	ReportFailure(c *Context, status int, code string, err error)
}

// Report forwards the failure to the configured Reporter.
func (h *DefaultExceptionHandler) Report(err error, c *Context) {
	if h.Reporter == nil {
		return
	}
	h.Reporter.ReportFailure(c, StatusOf(err), CodeOf(err), err)
}

// Handle stages the user-visible structured error response. Panic values
// are masked; their details stay in logs and the failure journal.
func (h *DefaultExceptionHandler) Handle(err error, c *Context) {
	status := StatusOf(err)
	msg := err.Error()
	var pe *PanicError
	if errors.As(err, &pe) {
		msg = "an internal error occurred"
	}
	if jerr := c.Response.JSON(status, errorBody{Error: errorDetail{
		Message: msg,
		Code:    CodeOf(err),
		Status:  status,
	}}); jerr != nil {
		c.Response.Stage(http.StatusInternalServerError, []byte(msg))
	}
}
