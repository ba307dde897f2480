// Package guard implements per-origin brute-force protection for
// authentication attempts: a failure counter with a cooldown window, plus a
// fixed artificial delay applied after every failed attempt.
package guard

import (
	"sync"
	"time"
)

type record struct {
	count int
	last  time.Time
}

// Guard tracks authentication failures per origin (typically a client IP).
// All methods are safe for concurrent use.
type Guard struct {
	mu        sync.Mutex
	records   map[string]*record
	threshold int
	cooldown  time.Duration
	delay     time.Duration
	now       func() time.Time
}

// New creates a guard that blocks an origin after threshold consecutive
// failures until cooldown has elapsed since the last failure. delay is the
// artificial pause callers apply after each recorded failure.
func New(threshold int, cooldown, delay time.Duration) *Guard {
	return &Guard{
		records:   make(map[string]*record),
		threshold: threshold,
		cooldown:  cooldown,
		delay:     delay,
		now:       time.Now,
	}
}

// Check reports whether the origin may attempt authentication. When blocked,
// wait is the remaining cooldown. A fully elapsed cooldown resets the counter.
func (g *Guard) Check(origin string) (allowed bool, wait time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.records[origin]
	if !ok || r.count < g.threshold {
		return true, 0
	}

	elapsed := g.now().Sub(r.last)
	if elapsed < g.cooldown {
		return false, g.cooldown - elapsed
	}

	r.count = 0
	return true, 0
}

// RecordFailure increments the origin's failure count and stamps the time.
// Callers must invoke this before applying the artificial delay so that
// concurrent attempts observe the updated count immediately.
func (g *Guard) RecordFailure(origin string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.records[origin]
	if !ok {
		r = &record{}
		g.records[origin] = r
	}
	r.count++
	r.last = g.now()
}

// RecordSuccess clears the origin's failure record.
func (g *Guard) RecordSuccess(origin string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.records, origin)
}

// FailureDelay returns the fixed pause to apply after a failed attempt.
func (g *Guard) FailureDelay() time.Duration {
	return g.delay
}
