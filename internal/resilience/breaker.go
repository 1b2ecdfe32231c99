// Package resilience guards agent invocations with a circuit breaker and a
// rate limiter per agent type.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejecting calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker tracks consecutive failures and opens the circuit when a threshold
// is reached, rejecting calls until a timeout elapses. After the timeout a
// single probe call is let through; its outcome closes or reopens the circuit.
type Breaker struct {
	mu          sync.Mutex
	state       state
	probing     bool
	failures    int
	maxFailures int
	timeout     time.Duration
	openedAt    time.Time
	ignore      func(error) bool
	now         func() time.Time // for testing
}

// NewBreaker creates a circuit breaker that opens after maxFailures consecutive
// failures and stays open for the given timeout before transitioning to half-open.
// Context cancellation never counts as a failure.
func NewBreaker(maxFailures int, timeout time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		timeout:     timeout,
		ignore:      func(err error) bool { return errors.Is(err, context.Canceled) },
		now:         time.Now,
	}
}

// Ignore replaces the predicate for errors that pass through without
// counting against the breaker. Cancellation stays ignored.
func (b *Breaker) Ignore(fn func(error) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ignore = func(err error) bool { return errors.Is(err, context.Canceled) || fn(err) }
}

// Execute runs fn if the circuit is closed, or as the half-open probe.
// Returns ErrCircuitOpen otherwise.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	switch {
	case err == nil:
		b.onSuccess()
	case b.ignore(err):
		if b.state == stateHalfOpen {
			b.state = stateOpen
			b.openedAt = b.now()
		}
	default:
		b.onFailure()
	}
	return err
}

// State reports "closed", "open" or "half-open".
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == stateOpen && b.now().Sub(b.openedAt) >= b.timeout {
		return stateHalfOpen.String()
	}
	return b.state.String()
}

func (b *Breaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if b.now().Sub(b.openedAt) >= b.timeout {
			b.state = stateHalfOpen
			b.probing = true
			return true
		}
		return false
	case stateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
	return false
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure() {
	b.failures++
	if b.state == stateHalfOpen || b.failures >= b.maxFailures {
		b.state = stateOpen
		b.openedAt = b.now()
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess() {
	b.failures = 0
	b.state = stateClosed
}
