package resilience

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Guard pairs the breaker and rate limiter of one agent type.
type Guard struct {
	Breaker *Breaker
	Limiter *rate.Limiter
}

// Do waits for a rate token, then runs fn through the breaker. A call
// rejected by an open breaker does not consume the wait.
func (g *Guard) Do(ctx context.Context, fn func(context.Context) error) error {
	if g.Breaker.State() == stateOpen.String() {
		return ErrCircuitOpen
	}
	if err := g.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return g.Breaker.Execute(func() error { return fn(ctx) })
}

// Set lazily creates one Guard per key with shared settings.
type Set struct {
	mu          sync.Mutex
	maxFailures int
	timeout     time.Duration
	limit       rate.Limit
	burst       int
	ignore      func(error) bool
	guards      map[string]*Guard
}

// NewSet returns a Set whose guards open after maxFailures consecutive
// failures for timeout and allow rps calls per second with the given burst.
// A non-positive rps disables rate limiting.
func NewSet(maxFailures int, timeout time.Duration, rps float64, burst int) *Set {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &Set{
		maxFailures: maxFailures,
		timeout:     timeout,
		limit:       limit,
		burst:       burst,
		guards:      make(map[string]*Guard),
	}
}

// Ignore sets the predicate applied to every guard created afterwards.
func (s *Set) Ignore(fn func(error) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ignore = fn
}

// Get returns the guard for key, creating it on first use.
func (s *Set) Get(key string) *Guard {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g, ok := s.guards[key]; ok {
		return g
	}
	b := NewBreaker(s.maxFailures, s.timeout)
	if s.ignore != nil {
		b.Ignore(s.ignore)
	}
	g := &Guard{Breaker: b, Limiter: rate.NewLimiter(s.limit, s.burst)}
	s.guards[key] = g
	return g
}

// States reports the breaker state of every key seen so far.
func (s *Set) States() map[string]string {
	s.mu.Lock()
	guards := maps.Clone(s.guards)
	s.mu.Unlock()

	out := make(map[string]string, len(guards))
	for k, g := range guards {
		out[k] = g.Breaker.State()
	}
	return out
}
