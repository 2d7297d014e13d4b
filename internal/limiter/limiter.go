package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"

	"github.com/sudankdk/runbox/internal/metrics"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	perIP sync.Map
	rate  rate.Limit
	burst int
}

// New returns a limiter allowing rps requests per second per IP with the
// given burst. It returns nil when rps <= 0, which admits everything.
func New(rps float64, burst int) *RateLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{rate: rate.Limit(rps), burst: burst}
}

func (rl *RateLimiter) get(ip string) *entry {
	if e, ok := rl.perIP.Load(ip); ok {
		return e.(*entry)
	}
	e, _ := rl.perIP.LoadOrStore(ip, &entry{limiter: rate.NewLimiter(rl.rate, rl.burst)})
	return e.(*entry)
}

func (rl *RateLimiter) Allow(ip string) bool {
	if rl == nil {
		return true
	}
	e := rl.get(ip)
	e.lastSeen.Store(time.Now().UnixNano())
	if !e.limiter.Allow() {
		metrics.RateLimitHits.Inc()
		return false
	}
	return true
}

// Middleware rejects over-limit clients with 429.
func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !rl.Allow(c.IP()) {
			return fiber.NewError(fiber.StatusTooManyRequests, "too many requests")
		}
		return c.Next()
	}
}

// Sweep drops limiters idle for longer than idle and returns how many went.
func (rl *RateLimiter) Sweep(idle time.Duration) int {
	if rl == nil {
		return 0
	}
	cutoff := time.Now().Add(-idle).UnixNano()
	removed := 0
	rl.perIP.Range(func(key, value any) bool {
		if value.(*entry).lastSeen.Load() < cutoff {
			rl.perIP.Delete(key)
			removed++
		}
		return true
	})
	return removed
}

// StartCleanup sweeps every interval, dropping limiters idle for a full
// interval, until ctx is done.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	if rl == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Sweep(interval)
			}
		}
	}()
}
