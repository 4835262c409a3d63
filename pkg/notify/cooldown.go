package notify

import (
	"sync"
	"time"
)

// Cooldown suppresses notifications sent within window of the previous one.
// State lives only for the lifetime of the value.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   time.Time
	now    func() time.Time
}

// NewCooldown builds a cooldown. A nil clock uses time.Now.
func NewCooldown(window time.Duration, clock func() time.Time) *Cooldown {
	if clock == nil {
		clock = time.Now
	}
	return &Cooldown{window: window, now: clock}
}

// Allow reports whether a notification may go out now and, if so, reserves the slot.
func (c *Cooldown) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if !c.last.IsZero() && now.Sub(c.last) < c.window {
		return false
	}
	c.last = now
	return true
}

// Remaining returns how long until the next notification is allowed.
func (c *Cooldown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last.IsZero() {
		return 0
	}
	left := c.window - c.now().Sub(c.last)
	if left < 0 {
		return 0
	}
	return left
}

// Reset clears the last-sent timestamp.
func (c *Cooldown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = time.Time{}
}
