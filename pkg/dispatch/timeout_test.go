package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunGuardedCompletion(t *testing.T) {
	c := newTestContext()
	err := runGuarded(c, time.Second, func() error { return nil })
	if err != nil {
		t.Fatalf("runGuarded() error = %v", err)
	}
	select {
	case <-c.Context().Done():
		t.Error("cancellation token signaled for a completed handler")
	default:
	}
}

func TestRunGuardedZeroTimeoutRunsInline(t *testing.T) {
	want := errors.New("handler failed")
	err := runGuarded(newTestContext(), 0, func() error { return want })
	if !errors.Is(err, want) {
		t.Errorf("runGuarded() error = %v, want %v", err, want)
	}
}

func TestRunGuardedTimeout(t *testing.T) {
	c := newTestContext()
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	err := runGuarded(c, 20*time.Millisecond, func() error {
		<-release
		return nil
	})
	elapsed := time.Since(start)

	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("runGuarded() error = %v, want *TimeoutError", err)
	}
	if te.Timeout != 20*time.Millisecond {
		t.Errorf("Timeout = %v, want 20ms", te.Timeout)
	}
	if elapsed > 2*time.Second {
		t.Errorf("runGuarded() blocked for %v, must not wait for the handler", elapsed)
	}

	// The handler's cancellation token must carry the timeout as its cause.
	select {
	case <-c.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("cancellation token never signaled")
	}
	var cause *TimeoutError
	if !errors.As(context.Cause(c.Context()), &cause) {
		t.Errorf("cause = %v, want *TimeoutError", context.Cause(c.Context()))
	}
}

func TestRunGuardedHandlerErrorWins(t *testing.T) {
	want := errors.New("handler failed first")
	err := runGuarded(newTestContext(), time.Second, func() error { return want })
	if !errors.Is(err, want) {
		t.Errorf("runGuarded() error = %v, want %v", err, want)
	}
}

func TestRunGuardedCallerAbortIsNotATimeout(t *testing.T) {
	c := newTestContext()
	abort := errors.New("client went away")

	errc := make(chan error, 1)
	go func() {
		errc <- runGuarded(c, time.Second, func() error {
			<-c.Context().Done()
			return context.Cause(c.Context())
		})
	}()

	time.Sleep(10 * time.Millisecond)
	c.Cancel(abort)

	select {
	case err := <-errc:
		var te *TimeoutError
		if errors.As(err, &te) {
			t.Errorf("caller abort misreported as timeout: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runGuarded() never returned after caller abort")
	}
}

func TestRunGuardedPanicRecovery(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
	}{
		{name: "inline", timeout: 0},
		{name: "guarded", timeout: time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runGuarded(newTestContext(), tt.timeout, func() error {
				panic("handler exploded")
			})
			var pe *PanicError
			if !errors.As(err, &pe) {
				t.Fatalf("runGuarded() error = %v, want *PanicError", err)
			}
			if pe.Value != "handler exploded" {
				t.Errorf("Value = %v, want the panic value", pe.Value)
			}
			if len(pe.Stack) == 0 {
				t.Error("Stack is empty, want the goroutine stack")
			}
		})
	}
}
