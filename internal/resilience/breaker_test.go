package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", 3, time.Minute)
	for i := 0; i < 3; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("Allow before threshold: %v", err)
		}
		b.Report(errBoom)
	}
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("Allow after threshold = %v, want ErrBreakerOpen", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", 2, time.Minute)
	b.Report(errBoom)
	b.Report(nil)
	b.Report(errBoom)
	if err := b.Allow(); err != nil {
		t.Fatalf("breaker opened despite interleaved success: %v", err)
	}
}

func TestBreaker_ProbeClosesAfterCooldown(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", 1, 10*time.Millisecond)
	b.Report(errBoom)
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatal("breaker should be open")
	}

	time.Sleep(20 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("probe not admitted after cooldown: %v", err)
	}
	b.Report(nil)
	if err := b.Allow(); err != nil {
		t.Fatalf("breaker not closed after successful probe: %v", err)
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", 1, 10*time.Millisecond)
	b.Report(errBoom)
	time.Sleep(20 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("probe not admitted: %v", err)
	}
	b.Report(errBoom)
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("breaker should have re-opened, Allow = %v", err)
	}
}

func TestBreaker_SingleProbeAtATime(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", 1, 10*time.Millisecond)
	b.Report(errBoom)
	time.Sleep(20 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("first probe not admitted: %v", err)
	}
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("second concurrent probe admitted, Allow = %v", err)
	}
}

func TestBreaker_Do(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", 1, time.Minute)
	if err := b.Do(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("Do = %v, want errBoom", err)
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("Do on open breaker = %v, want ErrBreakerOpen", err)
	}
}
