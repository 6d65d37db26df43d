package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arenahall/lobbyd/internal/domain"
)

// recorder collects labels in firing order together with the tick.
type recorder struct {
	mu    sync.Mutex
	fires []string
	ticks []int64
}

func (r *recorder) work(s *Scheduler, label string) Work {
	return func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.fires = append(r.fires, label)
		r.ticks = append(r.ticks, s.Now())
		return nil
	}
}

func (r *recorder) snapshot() ([]string, []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fires...), append([]int64(nil), r.ticks...)
}

func TestAfter_FiresOnceAtDelay(t *testing.T) {
	s := New()
	rec := &recorder{}
	h := s.After(5, rec.work(s, "a"))

	s.Advance(4)
	if fires, _ := rec.snapshot(); len(fires) != 0 {
		t.Fatalf("fired early: %v", fires)
	}
	if h.State() != StatePending {
		t.Errorf("State = %s, want pending", h.State())
	}

	s.Advance(1)
	fires, ticks := rec.snapshot()
	if len(fires) != 1 || ticks[0] != 5 {
		t.Fatalf("fires = %v at %v, want one fire at tick 5", fires, ticks)
	}
	if h.State() != StateCompleted {
		t.Errorf("State = %s, want completed", h.State())
	}

	s.Advance(20)
	if fires, _ := rec.snapshot(); len(fires) != 1 {
		t.Errorf("one-shot fired %d times, want 1", len(fires))
	}
}

func TestAfter_ZeroDelayFiresNextTick(t *testing.T) {
	s := New()
	rec := &recorder{}
	s.After(0, rec.work(s, "a"))
	s.Advance(1)
	if _, ticks := rec.snapshot(); len(ticks) != 1 || ticks[0] != 1 {
		t.Errorf("ticks = %v, want [1]", ticks)
	}
}

func TestEvery_RepeatsAtInterval(t *testing.T) {
	s := New()
	rec := &recorder{}
	h := s.Every(2, 3, rec.work(s, "r"))

	s.Advance(11)
	_, ticks := rec.snapshot()
	want := []int64{2, 5, 8, 11}
	if len(ticks) != len(want) {
		t.Fatalf("ticks = %v, want %v", ticks, want)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Errorf("fire %d at tick %d, want %d", i, ticks[i], want[i])
		}
	}
	if h.State() != StateFired {
		t.Errorf("State = %s, want fired", h.State())
	}
}

func TestOrdering_SameTickFiresInSubmissionOrder(t *testing.T) {
	s := New()
	rec := &recorder{}
	s.After(3, rec.work(s, "late"))
	s.After(2, rec.work(s, "first"))
	s.After(2, rec.work(s, "second"))
	s.After(2, rec.work(s, "third"))

	s.Advance(3)
	fires, ticks := rec.snapshot()
	want := []string{"first", "second", "third", "late"}
	for i := range want {
		if fires[i] != want[i] {
			t.Fatalf("fires = %v, want %v", fires, want)
		}
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i] < ticks[i-1] {
			t.Errorf("fire times decreased: %v", ticks)
		}
	}
}

func TestCancel_PendingOneShot(t *testing.T) {
	s := New()
	rec := &recorder{}
	h := s.After(5, rec.work(s, "a"))

	if !h.Cancel() {
		t.Error("first Cancel = false, want true")
	}
	if h.Cancel() {
		t.Error("second Cancel = true, want false")
	}
	s.Cancel(h)
	if h.State() != StateCancelled {
		t.Errorf("State = %s, want cancelled", h.State())
	}
	if s.Pending() != 0 {
		t.Errorf("Pending = %d, want 0 after cancel", s.Pending())
	}

	s.Advance(10)
	if fires, _ := rec.snapshot(); len(fires) != 0 {
		t.Errorf("cancelled task fired: %v", fires)
	}
}

func TestCancel_CompletedHandleIsNoOp(t *testing.T) {
	s := New()
	h := s.After(1, nil)
	s.Advance(1)

	if h.Cancel() {
		t.Error("Cancel on completed = true, want false")
	}
	if h.State() != StateCompleted {
		t.Errorf("State = %s, want completed", h.State())
	}
	s.Cancel(nil)
}

func TestCancel_RepeatingStopsFutureFirings(t *testing.T) {
	s := New()
	rec := &recorder{}
	h := s.Every(1, 1, rec.work(s, "r"))

	s.Advance(3)
	h.Cancel()
	s.Advance(10)

	if fires, _ := rec.snapshot(); len(fires) != 3 {
		t.Errorf("fires = %d, want 3", len(fires))
	}
	if s.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", s.Pending())
	}
}

func TestCancel_FromSiblingOnSameTick(t *testing.T) {
	s := New()
	rec := &recorder{}
	var victim *Handle
	s.After(2, func() error {
		victim.Cancel()
		return nil
	})
	victim = s.After(2, rec.work(s, "victim"))

	s.Advance(2)
	if fires, _ := rec.snapshot(); len(fires) != 0 {
		t.Errorf("task cancelled earlier in the same tick still fired: %v", fires)
	}
}

func TestCancel_SelfFromRepeatingWork(t *testing.T) {
	s := New()
	var count int
	var h *Handle
	h = s.Every(1, 1, func() error {
		count++
		if count == 2 {
			h.Cancel()
		}
		return nil
	})

	s.Advance(10)
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestWork_ErrorDoesNotStopSeries(t *testing.T) {
	var reported atomic.Int32
	s := New(WithErrorHandler(func(string, error) { reported.Add(1) }))

	var fires int
	s.Every(1, 1, func() error {
		fires++
		if fires == 2 {
			return errors.New("flaky")
		}
		return nil
	})
	rec := &recorder{}
	s.After(3, rec.work(s, "sibling"))

	s.Advance(5)
	if fires != 5 {
		t.Errorf("fires = %d, want 5", fires)
	}
	if reported.Load() != 1 {
		t.Errorf("reported errors = %d, want 1", reported.Load())
	}
	if got, _ := rec.snapshot(); len(got) != 1 {
		t.Errorf("sibling fires = %v, want 1", got)
	}
}

func TestWork_PanicIsIsolated(t *testing.T) {
	var gotErr error
	s := New(WithErrorHandler(func(_ string, err error) { gotErr = err }))

	var fires int
	s.Every(1, 1, func() error {
		fires++
		if fires == 1 {
			panic("kaboom")
		}
		return nil
	})

	s.Advance(3)
	if fires != 3 {
		t.Errorf("fires = %d, want 3", fires)
	}
	if !errors.Is(gotErr, domain.ErrTaskPanicked) {
		t.Errorf("error = %v, want ErrTaskPanicked", gotErr)
	}
}

func TestWork_CanScheduleMoreWork(t *testing.T) {
	s := New()
	rec := &recorder{}
	s.After(1, func() error {
		s.After(2, rec.work(s, "child"))
		return nil
	})

	s.Advance(3)
	_, ticks := rec.snapshot()
	if len(ticks) != 1 || ticks[0] != 3 {
		t.Errorf("child ticks = %v, want [3]", ticks)
	}
}

func TestTicks(t *testing.T) {
	s := New(WithTickInterval(50 * time.Millisecond))
	tests := []struct {
		d    time.Duration
		want int64
	}{
		{0, 0},
		{time.Second, 20},
		{20 * time.Second, 400},
		{60 * time.Millisecond, 2},
		{-time.Second, 0},
	}
	for _, tt := range tests {
		if got := s.Ticks(tt.d); got != tt.want {
			t.Errorf("Ticks(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}

func TestConcurrentScheduleAndCancel(t *testing.T) {
	s := New()
	var fired atomic.Int32

	var wg sync.WaitGroup
	handles := make(chan *Handle, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles <- s.After(5, func() error {
				fired.Add(1)
				return nil
			})
		}()
	}
	wg.Wait()
	close(handles)

	i := 0
	for h := range handles {
		if i%2 == 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.Cancel()
			}()
		}
		i++
	}
	wg.Wait()

	s.Advance(5)
	if got := fired.Load(); got != 50 {
		t.Errorf("fired = %d, want 50", got)
	}
}

func TestRun_AdvancesUntilStopped(t *testing.T) {
	s := New(WithTickInterval(time.Millisecond))
	done := make(chan struct{})
	s.After(3, func() error {
		close(done)
		return nil
	})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(context.Background()) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not fire while running")
	}

	s.Stop()
	s.Stop()
	if err := <-errCh; err != nil {
		t.Errorf("Run returned %v, want nil", err)
	}
	if err := s.Run(context.Background()); err != domain.ErrSchedulerStopped {
		t.Errorf("Run after Stop = %v, want ErrSchedulerStopped", err)
	}
}
