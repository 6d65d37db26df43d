package guard

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arenahall/lobbyd/internal/domain"
)

func setupGuard(t *testing.T, limit int) (*Guard, *time.Time) {
	t.Helper()
	now := time.Unix(1_700_000_000, 0)
	g := NewGuard(Config{RateLimitPerMinute: limit})
	g.now = func() time.Time { return now }
	return g, &now
}

func TestCheckRateLimit_WithinLimit(t *testing.T) {
	g, _ := setupGuard(t, 5)
	for i := 0; i < 5; i++ {
		if err := g.CheckRateLimit("p1"); err != nil {
			t.Fatalf("CheckRateLimit iteration %d: %v", i, err)
		}
	}
}

func TestCheckRateLimit_WindowResets(t *testing.T) {
	g, now := setupGuard(t, 5)

	for i := 0; i < 5; i++ {
		if err := g.CheckRateLimit("p1"); err != nil {
			t.Fatalf("CheckRateLimit iteration %d: %v", i, err)
		}
	}

	if err := g.CheckRateLimit("p1"); !errors.Is(err, domain.ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}

	*now = now.Add(59 * time.Second)
	if err := g.CheckRateLimit("p1"); err == nil {
		t.Fatal("window should still be closed at 59s")
	}

	*now = now.Add(time.Second)
	if err := g.CheckRateLimit("p1"); err != nil {
		t.Fatalf("CheckRateLimit after window reset: %v", err)
	}
}

func TestCheckRateLimit_KeysIndependent(t *testing.T) {
	g, _ := setupGuard(t, 1)
	if err := g.CheckRateLimit("p1"); err != nil {
		t.Fatalf("p1: %v", err)
	}
	if err := g.CheckRateLimit("p2"); err != nil {
		t.Fatalf("p2 should have its own bucket: %v", err)
	}
	if err := g.CheckRateLimit("p1"); err == nil {
		t.Fatal("p1 should be limited")
	}
}

func TestCheckRateLimit_Disabled(t *testing.T) {
	g, _ := setupGuard(t, 0)
	for i := 0; i < 100; i++ {
		if err := g.CheckRateLimit("p1"); err != nil {
			t.Fatalf("disabled guard refused request %d: %v", i, err)
		}
	}

	var nilGuard *Guard
	if err := nilGuard.CheckRateLimit("p1"); err != nil {
		t.Fatalf("nil guard: %v", err)
	}
}

func TestCheckRateLimit_Concurrent(t *testing.T) {
	g, _ := setupGuard(t, 10)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.CheckRateLimit("p1") == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 10 {
		t.Fatalf("expected exactly 10 allowed, got %d", allowed)
	}
}

func TestSweep(t *testing.T) {
	g, now := setupGuard(t, 5)
	g.CheckRateLimit("p1")
	*now = now.Add(30 * time.Second)
	g.CheckRateLimit("p2")

	*now = now.Add(30 * time.Second)
	if dropped := g.Sweep(); dropped != 1 {
		t.Fatalf("expected 1 dropped bucket, got %d", dropped)
	}
	if _, ok := g.rateCounts["p2"]; !ok {
		t.Error("p2 bucket should survive")
	}
}
