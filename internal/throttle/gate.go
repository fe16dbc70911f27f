// Package throttle rate-limits mutating user actions.
//
// Gate is a leading-edge throttle: the first call in a window passes and
// every call until the window elapses is dropped, never queued.
//
// QuantityControl applies the same window to a cart line quantity editor.
// Each interaction updates the displayed value at once. The first
// interaction of a burst opens the window and owns the single network call
// made for it; later interactions in the window only move the pending value
// that call will carry. The call therefore always reflects the last
// interaction, and a failure reverts the display to the last server value.
//
//	Idle ──Change──> PendingThrottle ──Dispatch──> Dispatched ──ok──> Reconciled
//	                                                     └───err──> RevertedOnError
package throttle

import (
	"sync"
	"time"
)

// DefaultInterval is the minimum spacing between dispatched calls.
const DefaultInterval = 500 * time.Millisecond

// Gate passes at most one call per Interval.
type Gate struct {
	Interval time.Duration
	// Clock defaults to time.Now.
	Clock func() time.Time

	mu     sync.Mutex
	last   time.Time
	opened bool
}

// NewGate returns a gate with interval; zero or negative uses
// DefaultInterval.
func NewGate(interval time.Duration) *Gate {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Gate{Interval: interval}
}

// Allow reports whether a call may proceed now. A true result starts a new
// window.
func (g *Gate) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if g.opened && now.Sub(g.last) < g.Interval {
		return false
	}
	g.opened = true
	g.last = now
	return true
}

// Remaining is the time left in the current window.
func (g *Gate) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.opened {
		return 0
	}
	left := g.Interval - g.now().Sub(g.last)
	if left < 0 {
		return 0
	}
	return left
}

func (g *Gate) now() time.Time {
	if g.Clock != nil {
		return g.Clock()
	}
	return time.Now()
}
