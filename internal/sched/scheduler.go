// Package sched runs delayed and repeating work on a single logical timeline
// measured in ticks.
package sched

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arenahall/lobbyd/internal/domain"
)

// DefaultTickInterval is the wall-clock length of one tick (20 ticks/s).
const DefaultTickInterval = 50 * time.Millisecond

// Work is a unit of scheduled work. A returned error is logged and does not
// affect other tasks or later firings of the same task.
type Work func() error

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used to report failed work.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithTickInterval sets the wall-clock tick length used by Run.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithErrorHandler registers a callback invoked after any work fails or
// panics. It runs on the timeline goroutine.
func WithErrorHandler(fn func(taskID string, err error)) Option {
	return func(s *Scheduler) {
		s.onError = fn
	}
}

// Scheduler owns the task queue and the tick counter.
type Scheduler struct {
	mu    sync.Mutex
	now   int64
	seq   uint64
	queue taskQueue

	// runMu serializes timeline steps so two firings never overlap.
	runMu sync.Mutex

	tickInterval time.Duration
	log          *slog.Logger
	onError      func(taskID string, err error)

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates an idle scheduler at tick 0.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		tickInterval: DefaultTickInterval,
		log:          slog.Default(),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TickInterval returns the wall-clock length of one tick.
func (s *Scheduler) TickInterval() time.Duration {
	return s.tickInterval
}

// Ticks converts d to a tick count, rounding up.
func (s *Scheduler) Ticks(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + s.tickInterval - 1) / s.tickInterval)
}

// Now returns the current tick.
func (s *Scheduler) Now() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending returns the number of queued tasks that can still fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.queue {
		if h.State() != StateCancelled {
			n++
		}
	}
	return n
}

// After schedules work to run once, delay ticks from now. Delays below one
// tick fire on the next tick.
func (s *Scheduler) After(delay int64, work Work) *Handle {
	return s.schedule(delay, 0, work)
}

// Every schedules work to run firstDelay ticks from now and then every
// interval ticks until cancelled.
func (s *Scheduler) Every(firstDelay, interval int64, work Work) *Handle {
	if interval < 1 {
		interval = 1
	}
	return s.schedule(firstDelay, interval, work)
}

// Cancel cancels h. It is safe to call with a nil, cancelled, or completed
// handle.
func (s *Scheduler) Cancel(h *Handle) {
	h.Cancel()
}

func (s *Scheduler) schedule(delay, interval int64, work Work) *Handle {
	if delay < 1 {
		delay = 1
	}
	if work == nil {
		work = func() error { return nil }
	}
	h := &Handle{
		id:       uuid.NewString(),
		s:        s,
		work:     work,
		interval: interval,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	h.fireAt = s.now + delay
	s.seq++
	h.seq = s.seq
	heap.Push(&s.queue, h)
	return h
}

// dequeue removes a cancelled handle from the queue if it is still there.
func (s *Scheduler) dequeue(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h.index >= 0 && h.index < len(s.queue) && s.queue[h.index] == h {
		heap.Remove(&s.queue, h.index)
	}
}

// Advance moves the timeline forward n ticks, firing every task that comes
// due, in order. It blocks until all of that work has run.
func (s *Scheduler) Advance(n int64) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	for i := int64(0); i < n; i++ {
		s.step()
	}
}

// Run advances the timeline by one tick per tick interval until ctx is done
// or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return domain.ErrSchedulerStopped
	default:
	}

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Advance(1)
		}
	}
}

// Stop ends Run. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Scheduler) step() {
	s.mu.Lock()
	s.now++
	now := s.now
	var due []*Handle
	for s.queue.Len() > 0 && s.queue[0].fireAt <= now {
		due = append(due, heap.Pop(&s.queue).(*Handle))
	}
	s.mu.Unlock()

	for _, h := range due {
		if !h.markFired() {
			continue
		}
		s.run(h)

		if h.interval == 0 {
			h.state.CompareAndSwap(int32(StateFired), int32(StateCompleted))
			continue
		}

		s.mu.Lock()
		if h.State() != StateCancelled {
			h.fireAt = now + h.interval
			s.seq++
			h.seq = s.seq
			heap.Push(&s.queue, h)
		}
		s.mu.Unlock()
	}
}

func (s *Scheduler) run(h *Handle) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = domain.WrapEngineError(domain.ErrTaskPanicked.Code, "scheduled work panicked", fmt.Errorf("%v", r))
		}
		if err != nil {
			s.log.Error("scheduled work failed", "task", h.id, "err", err)
			if s.onError != nil {
				s.onError(h.id, err)
			}
		}
	}()
	err = h.work()
}
