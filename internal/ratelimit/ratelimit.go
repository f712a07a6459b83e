package ratelimit

import (
	"sync"
	"time"
)

// RateLimiter enforces sliding-window request limits for one caller
type RateLimiter struct {
	requestsPerMinute int
	requestsPerHour   int

	minuteWindow []time.Time
	hourWindow   []time.Time
	mu           sync.Mutex
}

// NewRateLimiter creates a limiter; a zero limit disables that window
func NewRateLimiter(requestsPerMinute, requestsPerHour int) *RateLimiter {
	return &RateLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
	}
}

// allowAt checks the limits at now and records the request when allowed
func (rl *RateLimiter) allowAt(now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanup(now)

	if rl.requestsPerMinute > 0 && len(rl.minuteWindow) >= rl.requestsPerMinute {
		return false
	}
	if rl.requestsPerHour > 0 && len(rl.hourWindow) >= rl.requestsPerHour {
		return false
	}

	rl.minuteWindow = append(rl.minuteWindow, now)
	rl.hourWindow = append(rl.hourWindow, now)
	return true
}

// idleAt reports whether the limiter has no requests left in any window
func (rl *RateLimiter) idleAt(now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cleanup(now)
	return len(rl.hourWindow) == 0
}

// cleanup removes expired entries from the time windows
func (rl *RateLimiter) cleanup(now time.Time) {
	rl.minuteWindow = filterTimes(rl.minuteWindow, now.Add(-time.Minute))
	rl.hourWindow = filterTimes(rl.hourWindow, now.Add(-time.Hour))
}

// filterTimes keeps only times after the cutoff
func filterTimes(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

// KeyedLimiter keeps one RateLimiter per owner
type KeyedLimiter struct {
	requestsPerMinute int
	requestsPerHour   int
	enabled           bool
	now               func() time.Time

	mu       sync.Mutex
	limiters map[string]*RateLimiter
	lastGC   time.Time
}

func NewKeyedLimiter(requestsPerMinute, requestsPerHour int, enabled bool) *KeyedLimiter {
	return &KeyedLimiter{
		requestsPerMinute: requestsPerMinute,
		requestsPerHour:   requestsPerHour,
		enabled:           enabled,
		now:               time.Now,
		limiters:          map[string]*RateLimiter{},
	}
}

// WithClock replaces the time source, for tests
func (k *KeyedLimiter) WithClock(now func() time.Time) *KeyedLimiter {
	k.now = now
	return k
}

// Allow records a request for key and reports whether it is within limits
func (k *KeyedLimiter) Allow(key string) bool {
	if !k.enabled {
		return true
	}
	now := k.now()

	k.mu.Lock()
	if now.Sub(k.lastGC) > 10*time.Minute {
		for id, l := range k.limiters {
			if l.idleAt(now) {
				delete(k.limiters, id)
			}
		}
		k.lastGC = now
	}
	l, ok := k.limiters[key]
	if !ok {
		l = NewRateLimiter(k.requestsPerMinute, k.requestsPerHour)
		k.limiters[key] = l
	}
	k.mu.Unlock()

	return l.allowAt(now)
}

// Stats contains limiter statistics
type Stats struct {
	Enabled        bool `json:"enabled"`
	TrackedOwners  int  `json:"tracked_owners"`
	LimitPerMinute int  `json:"limit_per_minute"`
	LimitPerHour   int  `json:"limit_per_hour"`
}

// GetStats returns current limiter statistics
func (k *KeyedLimiter) GetStats() Stats {
	k.mu.Lock()
	defer k.mu.Unlock()
	return Stats{
		Enabled:        k.enabled,
		TrackedOwners:  len(k.limiters),
		LimitPerMinute: k.requestsPerMinute,
		LimitPerHour:   k.requestsPerHour,
	}
}
