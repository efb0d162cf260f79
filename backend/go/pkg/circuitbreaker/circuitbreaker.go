// Package circuitbreaker provides a small consecutive-failure circuit
// breaker used to shield callers from a repeatedly failing dependency.
//
// The breaker starts closed and passes every call through. Once the
// number of consecutive failures reaches the configured threshold it
// opens and rejects calls with ErrOpen until the cooldown elapses, at
// which point a single trial call is let through: success closes the
// breaker again, failure re-opens it for another cooldown.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Do while the breaker is rejecting calls.
var ErrOpen = errors.New("circuit breaker is open")

const (
	DefaultThreshold = 5
	DefaultCooldown  = 30 * time.Second
)

// Breaker tracks consecutive failures of a protected call.
// The zero value is not usable; use New.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration

	failures int
	openedAt time.Time
	open     bool
	trialing bool
}

// New returns a closed breaker. Non-positive threshold or cooldown
// fall back to the package defaults.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{threshold: threshold, cooldown: cooldown}
}

// Do runs fn if the breaker admits the call and feeds the outcome back
// into the failure counter. While open it returns ErrOpen without
// invoking fn.
func (b *Breaker) Do(fn func() error) error {
	if !b.admit() {
		return ErrOpen
	}
	err := fn()
	b.report(err)
	return err
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && time.Since(b.openedAt) < b.cooldown
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if time.Since(b.openedAt) < b.cooldown {
		return false
	}
	// Cooldown elapsed: admit one trial call, keep rejecting the rest
	// until its outcome is known.
	if b.trialing {
		return false
	}
	b.trialing = true
	return true
}

func (b *Breaker) report(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialing = false
	if err == nil {
		b.failures = 0
		b.open = false
		return
	}
	b.failures++
	if b.failures >= b.threshold || b.open {
		b.open = true
		b.openedAt = time.Now()
	}
}
