package httpapi

import (
	"sync"
	"time"
)

// SlidingWindowLimiter admits at most limit calls inside any trailing window.
// It guards the operator abort endpoint, where the call rate is tiny and a
// hard cap is more useful than fairness. A zero window or limit disables it.
type SlidingWindowLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu    sync.Mutex
	marks []time.Time
}

// NewSlidingWindowLimiter constructs a limiter; timeSource nil means wall clock.
func NewSlidingWindowLimiter(window time.Duration, limit int, timeSource func() time.Time) *SlidingWindowLimiter {
	limiter := &SlidingWindowLimiter{window: window, limit: limit, now: timeSource}
	if limiter.now == nil {
		limiter.now = time.Now
	}
	return limiter
}

// Allow records the call and reports whether it fits inside the window.
func (l *SlidingWindowLimiter) Allow() bool {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	//1.- Marks are appended in clock order, so expiry only ever trims a prefix.
	now := l.now()
	cutoff := now.Add(-l.window)
	expired := 0
	for expired < len(l.marks) && !l.marks[expired].After(cutoff) {
		expired++
	}
	if expired > 0 {
		l.marks = append(l.marks[:0], l.marks[expired:]...)
	}

	if len(l.marks) >= l.limit {
		return false
	}
	l.marks = append(l.marks, now)
	return true
}
