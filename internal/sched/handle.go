package sched

import "sync/atomic"

// State is the lifecycle state of a scheduled task.
type State int32

const (
	// StatePending means the task has not fired yet.
	StatePending State = iota
	// StateFired means a repeating task has fired at least once and has
	// further firings queued.
	StateFired
	// StateCompleted means a one-shot task has run.
	StateCompleted
	// StateCancelled means the task was cancelled; it will not fire again.
	StateCancelled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFired:
		return "fired"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Handle references one scheduled task. Its only mutating capability is
// Cancel.
type Handle struct {
	id       string
	s        *Scheduler
	work     Work
	interval int64 // 0 for one-shot tasks
	state    atomic.Int32

	// guarded by s.mu
	fireAt int64
	seq    uint64
	index  int
}

// ID returns the unique id of the task.
func (h *Handle) ID() string {
	return h.id
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Repeating reports whether the task was created with Every.
func (h *Handle) Repeating() bool {
	return h.interval > 0
}

// Cancel suppresses every future firing of the task. It is idempotent and
// never blocks on running work; a firing already in progress is not
// interrupted. Cancel reports whether this call performed the cancellation.
func (h *Handle) Cancel() bool {
	if h == nil {
		return false
	}
	for {
		cur := State(h.state.Load())
		if cur == StateCompleted || cur == StateCancelled {
			return false
		}
		if h.state.CompareAndSwap(int32(cur), int32(StateCancelled)) {
			break
		}
	}
	h.s.dequeue(h)
	return true
}

// markFired moves the task into StateFired unless it has already finished.
func (h *Handle) markFired() bool {
	for {
		cur := State(h.state.Load())
		switch cur {
		case StateCancelled, StateCompleted:
			return false
		case StateFired:
			return true
		}
		if h.state.CompareAndSwap(int32(cur), int32(StateFired)) {
			return true
		}
	}
}

// taskQueue is a min-heap of handles ordered by fire tick, then submission.
type taskQueue []*Handle

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].fireAt != q[j].fireAt {
		return q[i].fireAt < q[j].fireAt
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	h := x.(*Handle)
	h.index = len(*q)
	*q = append(*q, h)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	h := old[n-1]
	old[n-1] = nil
	h.index = -1
	*q = old[:n-1]
	return h
}
