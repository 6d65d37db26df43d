// Package countdown announces a decreasing number of seconds on the scheduler
// timeline and bundles the countdowns that precede a session start.
package countdown

import (
	"fmt"
	"sync"
	"time"

	"github.com/arenahall/lobbyd/internal/sched"
)

// Announcer receives one rendered countdown message.
type Announcer func(msg string)

// Countdown is one repeating task that announces from, from-step, ... while
// the value stays above floor, then completes itself.
type Countdown struct {
	s        *sched.Scheduler
	step     int
	floor    int
	message  string
	announce Announcer

	mu        sync.Mutex
	remaining int
	h         *sched.Handle
	stopped   bool
}

// New prepares a countdown. message is a format string receiving the
// remaining seconds, e.g. "Game starting in %d seconds!".
func New(s *sched.Scheduler, from, step, floor int, message string, announce Announcer) *Countdown {
	if step < 1 {
		step = 1
	}
	if announce == nil {
		announce = func(string) {}
	}
	return &Countdown{
		s:         s,
		step:      step,
		floor:     floor,
		message:   message,
		announce:  announce,
		remaining: from,
	}
}

// Start schedules the first announcement delay ticks from now and one more
// every step seconds. Starting twice, or after Override, does nothing.
func (c *Countdown) Start(delay int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.h != nil || c.stopped {
		return
	}
	if c.remaining <= c.floor {
		c.stopped = true
		return
	}
	interval := c.s.Ticks(time.Duration(c.step) * time.Second)
	c.h = c.s.Every(delay, interval, c.fire)
}

// Override cancels every remaining announcement. It is idempotent.
func (c *Countdown) Override() {
	c.mu.Lock()
	c.stopped = true
	h := c.h
	c.mu.Unlock()
	h.Cancel()
}

// Done reports whether the countdown has finished or been overridden.
func (c *Countdown) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Countdown) fire() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	msg := fmt.Sprintf(c.message, c.remaining)
	c.remaining -= c.step
	if c.remaining <= c.floor {
		c.stopped = true
		c.h.Cancel()
	}
	c.mu.Unlock()

	c.announce(msg)
	return nil
}
