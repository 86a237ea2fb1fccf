// Package resilience provides the failover primitives for LLM-backed
// correction: a circuit breaker and a provider chain that routes around a
// failing backend.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Allow] while the breaker is open
// and the cooldown has not elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker open")

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// Breaker is a three-state circuit breaker. It opens after a run of
// consecutive failures, rejects calls for a cooldown period, then lets a
// single probe through. The probe's outcome decides between closing and
// re-opening.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration

	mu       sync.Mutex
	state    breakerState
	fails    int
	openedAt time.Time
}

// NewBreaker creates a breaker named for log messages. maxFailures <= 0
// defaults to 3 and cooldown <= 0 defaults to 30s.
func NewBreaker(name string, maxFailures int, cooldown time.Duration) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{name: name, maxFailures: maxFailures, cooldown: cooldown}
}

// Allow reports whether a call may proceed. An open breaker whose cooldown
// has elapsed moves to half-open and admits the call as a probe.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if time.Since(b.openedAt) < b.cooldown {
			return ErrBreakerOpen
		}
		b.state = stateHalfOpen
		slog.Info("breaker half-open, admitting probe", "name", b.name)
		return nil
	case stateHalfOpen:
		// One probe at a time; further calls wait for its verdict.
		return ErrBreakerOpen
	default:
		return nil
	}
}

// Report records the outcome of a call previously admitted by [Allow].
func (b *Breaker) Report(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state == stateHalfOpen {
			slog.Info("breaker closed after successful probe", "name", b.name)
		}
		b.state = stateClosed
		b.fails = 0
		return
	}

	if b.state == stateHalfOpen {
		b.state = stateOpen
		b.openedAt = time.Now()
		slog.Warn("breaker re-opened, probe failed", "name", b.name)
		return
	}

	b.fails++
	if b.fails >= b.maxFailures {
		b.state = stateOpen
		b.openedAt = time.Now()
		slog.Warn("breaker opened", "name", b.name, "consecutive_failures", b.fails)
	}
}

// Do runs fn under the breaker: [Allow], the call, then [Report].
func (b *Breaker) Do(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.Report(err)
	return err
}
