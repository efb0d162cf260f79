package ratelimiter

import (
	"sync"
	"time"
)

// SlidingWindowLog implements the RateLimiter interface using the sliding
// window log algorithm. It keeps the individual request timestamps inside
// the trailing window, so the limit is exact at window boundaries.
type SlidingWindowLog struct {
	limit  int           // Maximum number of requests allowed in the window.
	window time.Duration // The duration of the time window.
	stamps []time.Time   // Request timestamps, oldest first.
	mutex  sync.Mutex
}

// NewSlidingWindowLog creates a new SlidingWindowLog.
// limit: the maximum number of requests allowed in the window.
// window: the duration of the time window.
func NewSlidingWindowLog(limit int, window time.Duration) *SlidingWindowLog {
	return &SlidingWindowLog{
		limit:  limit,
		window: window,
	}
}

// Allow checks if a request is allowed.
// It drops timestamps that fell out of the window and, if the remaining
// count is below the limit, records the request and admits it.
func (swl *SlidingWindowLog) Allow() bool {
	swl.mutex.Lock()
	defer swl.mutex.Unlock()

	now := time.Now()
	swl.stamps = pruneStamps(swl.stamps, now, swl.window)

	if len(swl.stamps) < swl.limit {
		swl.stamps = append(swl.stamps, now)
		return true
	}
	return false
}

// pruneStamps returns the suffix of stamps that still falls inside the
// window ending at now. Timestamps are appended in order, so the slice is
// sorted and a prefix scan suffices.
func pruneStamps(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	cut := 0
	for cut < len(stamps) && now.Sub(stamps[cut]) >= window {
		cut++
	}
	if cut == 0 {
		return stamps
	}
	return append(stamps[:0:0], stamps[cut:]...)
}
