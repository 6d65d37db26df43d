// Package guard throttles ingress requests per participant.
package guard

import (
	"sync"
	"time"

	"github.com/arenahall/lobbyd/internal/domain"
)

// Config holds the rate limit. A non-positive RateLimitPerMinute disables
// the check.
type Config struct {
	RateLimitPerMinute int
}

// Guard counts requests per key in fixed one-minute windows.
type Guard struct {
	Config Config

	mu         sync.Mutex
	rateCounts map[string]*rateBucket
	now        func() time.Time
}

type rateBucket struct {
	count       int
	windowStart int64
}

// NewGuard creates a Guard.
func NewGuard(cfg Config) *Guard {
	return &Guard{
		Config:     cfg,
		rateCounts: make(map[string]*rateBucket),
		now:        time.Now,
	}
}

// CheckRateLimit counts one request for key. Once the count reaches the
// configured limit inside the 60 second window, ErrRateLimitExceeded is
// returned until the window rolls over.
func (g *Guard) CheckRateLimit(key string) error {
	if g == nil || g.Config.RateLimitPerMinute <= 0 {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().Unix()
	bucket, ok := g.rateCounts[key]
	if !ok {
		g.rateCounts[key] = &rateBucket{count: 1, windowStart: now}
		return nil
	}

	if now-bucket.windowStart >= 60 {
		bucket.count = 1
		bucket.windowStart = now
		return nil
	}

	if bucket.count >= g.Config.RateLimitPerMinute {
		return domain.ErrRateLimitExceeded
	}

	bucket.count++
	return nil
}

// Sweep drops buckets whose window has expired.
func (g *Guard) Sweep() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().Unix()
	dropped := 0
	for key, bucket := range g.rateCounts {
		if now-bucket.windowStart >= 60 {
			delete(g.rateCounts, key)
			dropped++
		}
	}
	return dropped
}
