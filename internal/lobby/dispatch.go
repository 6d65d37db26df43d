package lobby

import (
	"context"
	"sync"
)

type delivery struct {
	ctx context.Context
	out *outbox
}

// dispatcher delivers outboxes produced on the scheduler timeline from its
// own goroutine, in push order. After close, push delivers inline.
type dispatcher struct {
	deliver func(context.Context, *outbox)

	mu      sync.Mutex
	idle    *sync.Cond
	queue   []delivery
	pending int
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

func newDispatcher(deliver func(context.Context, *outbox)) *dispatcher {
	d := &dispatcher{
		deliver: deliver,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	d.idle = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

func (d *dispatcher) push(ctx context.Context, out *outbox) {
	if out.empty() {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.deliver(ctx, out)
		return
	}
	d.queue = append(d.queue, delivery{ctx: context.WithoutCancel(ctx), out: out})
	d.pending++
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) loop() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, item := range batch {
			d.deliver(item.ctx, item.out)
		}
		if len(batch) > 0 {
			d.mu.Lock()
			d.pending -= len(batch)
			if d.pending == 0 {
				d.idle.Broadcast()
			}
			d.mu.Unlock()
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}

// wait blocks until everything pushed so far has been delivered.
func (d *dispatcher) wait() {
	d.mu.Lock()
	for d.pending > 0 {
		d.idle.Wait()
	}
	d.mu.Unlock()
}

// close delivers what is queued and stops the goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	already := d.closed
	d.closed = true
	d.mu.Unlock()
	if !already {
		select {
		case d.wake <- struct{}{}:
		default:
		}
	}
	<-d.done
}
