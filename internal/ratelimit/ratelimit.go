package ratelimit

import (
	"sync"
	"time"
)

// window tracks submissions in one fixed window.
type window struct {
	start time.Time
	count int
}

// Decision is the outcome of a submission attempt.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds the remaining wait up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int((d.RetryAfter + time.Second - 1) / time.Second)
}

// Limiter is a fixed-window submission counter keyed by browser session.
// The window starts on the first submission after the previous one expired
// and rolls over lazily on the next attempt; there is no background timer.
// It is advisory only and does not replace server-side enforcement.
type Limiter struct {
	mu           sync.Mutex
	windows      map[string]*window
	limit        int
	duration     time.Duration
	now          func() time.Time
	sweepCounter int
}

// New creates a limiter that allows limit submissions per duration.
// now may be nil, in which case time.Now is used.
func New(limit int, duration time.Duration, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{
		windows:  make(map[string]*window),
		limit:    limit,
		duration: duration,
		now:      now,
	}
}

// CheckAndRecord decides whether a submission for key may proceed and, if
// so, counts it.
func (l *Limiter) CheckAndRecord(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w := l.current(key, now)

	if w.count >= l.limit {
		return Decision{Allowed: false, RetryAfter: l.duration - now.Sub(w.start)}
	}
	if w.count == 0 {
		w.start = now
	}
	w.count++
	return Decision{Allowed: true}
}

// Status reports what CheckAndRecord would decide without recording anything.
func (l *Limiter) Status(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || w.count == 0 || now.Sub(w.start) >= l.duration {
		return Decision{Allowed: true}
	}
	if w.count >= l.limit {
		return Decision{Allowed: false, RetryAfter: l.duration - now.Sub(w.start)}
	}
	return Decision{Allowed: true}
}

// current returns the live window for key, resetting it when it expired.
// Must be called while holding l.mu.
func (l *Limiter) current(key string, now time.Time) *window {
	w, ok := l.windows[key]
	if !ok {
		// Periodic sweep: clean up expired entries every 100 new keys.
		l.sweepCounter++
		if l.sweepCounter >= 100 {
			l.sweep(now)
			l.sweepCounter = 0
		}

		w = &window{start: now}
		l.windows[key] = w
		return w
	}
	if now.Sub(w.start) >= l.duration {
		w.count = 0
		w.start = now
	}
	return w
}

// sweep removes expired windows. Must be called while holding l.mu.
func (l *Limiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if now.Sub(w.start) >= l.duration {
			delete(l.windows, k)
		}
	}
}
