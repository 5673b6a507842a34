package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 3, Timeout: time.Minute})
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := cb.Execute(context.Background(), func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("Execute() = %v, want %v", err, boom)
		}
	}

	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want %v", got, StateOpen)
	}

	err := cb.Execute(context.Background(), func() error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute() while open = %v, want ErrCircuitOpen", err)
	}
}

func TestRecoversThroughHalfOpen(t *testing.T) {
	cb := New("test", Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		MaxRequests:      2,
		Timeout:          10 * time.Millisecond,
	})

	cb.Execute(context.Background(), func() error { return errors.New("boom") })
	if got := cb.State(); got != StateOpen {
		t.Fatalf("State() = %v, want %v", got, StateOpen)
	}

	time.Sleep(15 * time.Millisecond)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
			t.Fatalf("Execute() in half-open = %v, want nil", err)
		}
	}

	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() = %v, want %v", got, StateClosed)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb := New("test", Config{FailureThreshold: 2})
	boom := errors.New("boom")

	cb.Execute(context.Background(), func() error { return boom })
	cb.Execute(context.Background(), func() error { return nil })
	cb.Execute(context.Background(), func() error { return boom })

	if got := cb.State(); got != StateClosed {
		t.Fatalf("State() = %v, want %v", got, StateClosed)
	}
}
