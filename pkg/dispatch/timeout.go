package dispatch

import (
	"context"
	"errors"
	"runtime/debug"
	"time"
)

// runGuarded races fn against the configured timeout. The outcome is
// decided by an explicit select over two completion signals: the
// handler-done channel and the deadline.
//
//   - fn completes first: its result is returned and the deadline timer is
//     released, so no late abort signal can fire.
//   - the deadline elapses first: the request's cancellation token is
//     signaled with a TimeoutError (the handler observes it and unwinds on
//     its own time) and the same TimeoutError is returned.
//   - the caller's own cancellation fired before the deadline (client
//     disconnect): the completion is not misreported as a timeout; the
//     original cancellation cause is returned instead.
//
// A zero or negative timeout skips the race entirely and runs fn inline.
// Panics inside fn are recovered and converted to a PanicError so a
// crashing handler cannot take the worker down or leak the goroutine.
func runGuarded(c *Context, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		return guardPanic(fn)
	}

	tctx, cancel := context.WithTimeout(c.Context(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- guardPanic(fn)
	}()

	select {
	case err := <-done:
		return err

	case <-tctx.Done():
		// The handler may have finished in the same instant the deadline
		// fired; a completed handler always wins the race.
		select {
		case err := <-done:
			return err
		default:
		}
		if errors.Is(tctx.Err(), context.Canceled) {
			// The parent token aborted before the deadline. Suppress the
			// timeout and surface the caller's cause.
			if cause := context.Cause(tctx); cause != nil {
				return cause
			}
			return tctx.Err()
		}
		terr := &TimeoutError{Timeout: timeout}
		c.Cancel(terr)
		return terr
	}
}

// guardPanic runs fn, converting a panic into a PanicError carrying the
// recovered value and the goroutine stack.
func guardPanic(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
