package ratelimiter

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultRetention is how long request timestamps are kept before the
	// background sweep discards them, regardless of any window.
	DefaultRetention = time.Hour

	// decisionReuse is the horizon within which an identical check may be
	// answered from the decision cache instead of being re-derived.
	decisionReuse = time.Second

	// decisionEvict is the age past which the sweep drops cached decisions.
	decisionEvict = time.Minute
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Limited   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long the client should wait before retrying,
// measured from now. It is zero when the decision is not limited.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if !d.Limited {
		return 0
	}
	wait := d.ResetAt.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait
}

// cachedDecision memoizes the last decision computed for a
// (client, limit, window) tuple.
type cachedDecision struct {
	decision   Decision
	computedAt time.Time
}

// ClientLimiter tracks request timestamps per client and answers
// sliding-window-log rate-limit checks.
//
// Check both decides and consumes: an admitted check appends the current
// time to the client's log. Checking and consuming are deliberately not
// separable operations; callers that only want to observe the current state
// still spend one slot when admitted.
//
// Denied decisions are memoized for one second per (client, limit, window)
// tuple, so bursts of rejected traffic do not re-derive the same answer.
// Admissions are always re-derived, because each one consumes a slot.
type ClientLimiter struct {
	mutex     sync.Mutex
	records   map[string][]time.Time
	decisions map[string]cachedDecision
	retention time.Duration
}

// NewClientLimiter creates a ClientLimiter. A non-positive retention falls
// back to DefaultRetention.
func NewClientLimiter(retention time.Duration) *ClientLimiter {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &ClientLimiter{
		records:   make(map[string][]time.Time),
		decisions: make(map[string]cachedDecision),
		retention: retention,
	}
}

// Check decides whether the client is over the limit for the given window.
// The check-and-increment sequence is atomic: no two concurrent checks can
// observe the same pre-append count and both be admitted.
func (cl *ClientLimiter) Check(clientID string, limit int, window time.Duration) Decision {
	now := time.Now()
	decisionKey := fmt.Sprintf("%s:%d:%d", clientID, limit, int(window/time.Second))

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	// Replay a recent denial without re-deriving it. Admissions are never
	// replayed: the original computation was the one consumption, and a
	// replayed admission would skip the append that makes the count exact.
	// A denial is only replayed while its own reset time has not passed.
	if cached, ok := cl.decisions[decisionKey]; ok {
		if cached.decision.Limited &&
			now.Sub(cached.computedAt) < decisionReuse &&
			now.Before(cached.decision.ResetAt) {
			return cached.decision
		}
	}

	stamps := pruneStamps(cl.records[clientID], now, window)
	recent := len(stamps)

	limited := recent >= limit
	remaining := limit - recent
	if remaining < 0 {
		remaining = 0
	}

	var resetAt time.Time
	if recent > 0 {
		resetAt = stamps[0].Add(window)
	} else {
		resetAt = now.Add(window)
	}

	// The check itself counts as a consumption.
	if !limited {
		stamps = append(stamps, now)
	}
	cl.records[clientID] = stamps

	decision := Decision{
		Limited:   limited,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	cl.decisions[decisionKey] = cachedDecision{decision: decision, computedAt: now}
	return decision
}

// Clients returns how many clients currently have recorded timestamps.
func (cl *ClientLimiter) Clients() int {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	return len(cl.records)
}

// Sweep trims every client's log to timestamps younger than the retention
// bound, drops clients with nothing left, and evicts stale cached decisions.
// It holds the lock only for the duration of the map passes.
func (cl *ClientLimiter) Sweep() {
	now := time.Now()

	cl.mutex.Lock()
	defer cl.mutex.Unlock()

	for clientID, stamps := range cl.records {
		kept := pruneStamps(stamps, now, cl.retention)
		if len(kept) == 0 {
			delete(cl.records, clientID)
		} else {
			cl.records[clientID] = kept
		}
	}

	for key, cached := range cl.decisions {
		if now.Sub(cached.computedAt) > decisionEvict {
			delete(cl.decisions, key)
		}
	}
}

// StartJanitor starts a goroutine that runs Sweep every interval until the
// context is cancelled.
func (cl *ClientLimiter) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cl.Sweep()
			}
		}
	}()
}
