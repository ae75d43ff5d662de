package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a sliding-window request counter keyed by client identifier.
// Each identifier keeps the timestamps of its recent allowed requests; the
// ones that fall outside the window are pruned lazily on every check.
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	now func() time.Time
}

// NewLimiter creates an empty limiter using the wall clock.
func NewLimiter() *Limiter {
	return NewLimiterWithClock(time.Now)
}

// NewLimiterWithClock creates an empty limiter using the given clock.
func NewLimiterWithClock(now func() time.Time) *Limiter {
	return &Limiter{
		windows: make(map[string][]time.Time),
		now:     now,
	}
}

// Allow reports whether id may make another request given at most limit
// requests per trailing window. An allowed request is recorded; a rejected
// one is not, so hammering a limited bucket does not extend the penalty.
func (l *Limiter) Allow(id string, limit int, window time.Duration) bool {
	if limit <= 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := prune(l.windows[id], now.Add(-window))

	if len(recent) >= limit {
		l.windows[id] = recent
		return false
	}

	l.windows[id] = append(recent, now)

	return true
}

// Remaining returns how many more requests id may make right now and the
// time at which the oldest recorded request leaves the window.
func (l *Limiter) Remaining(id string, limit int,
	window time.Duration) (int, time.Time) {

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := prune(l.windows[id], now.Add(-window))
	l.windows[id] = recent

	left := limit - len(recent)
	if left < 0 {
		left = 0
	}

	if len(recent) == 0 {
		return left, now
	}

	return left, recent[0].Add(window)
}

// Sweep drops identifiers whose newest timestamp is older than
// cleanupWindow and returns how many were removed.
func (l *Limiter) Sweep(cleanupWindow time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-cleanupWindow)

	var removed int
	for id, stamps := range l.windows {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.windows, id)
			removed++
		}
	}

	return removed
}

// Len returns the number of tracked identifiers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.windows)
}

// RunSweeper sweeps stale identifiers every interval until ctx is done.
func (l *Limiter) RunSweeper(ctx context.Context, interval,
	cleanupWindow time.Duration) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			l.Sweep(cleanupWindow)
		}
	}
}

// prune returns the suffix of stamps strictly after cutoff. Timestamps are
// appended in order so the slice is already sorted.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}

	if i == 0 {
		return stamps
	}

	// Copy so the backing array does not grow without bound.
	out := make([]time.Time, len(stamps)-i)
	copy(out, stamps[i:])

	return out
}
