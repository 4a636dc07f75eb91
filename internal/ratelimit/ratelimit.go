package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gate enforces a minimum interval between outbound request dispatches.
// One Gate is created per process and shared by every fetch client; it
// serializes dispatch only, not the lifetime of the request.
type Gate struct {
	limiter  *rate.Limiter
	interval time.Duration

	mu       sync.Mutex
	last     time.Time
	waited   time.Duration
	admitted int64
}

func NewGate(interval time.Duration) *Gate {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Gate{
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
	}
}

// Wait blocks until the interval since the previous dispatch has elapsed,
// then records the new dispatch time.
func (g *Gate) Wait(ctx context.Context) error {
	start := time.Now()
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	now := time.Now()
	g.mu.Lock()
	g.last = now
	g.waited += now.Sub(start)
	g.admitted++
	g.mu.Unlock()
	return nil
}

func (g *Gate) Interval() time.Duration {
	return g.interval
}

// GetStats reports dispatch counters for the monitoring surface.
func (g *Gate) GetStats() map[string]interface{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := map[string]interface{}{
		"interval_ms":   g.interval.Milliseconds(),
		"admitted":      g.admitted,
		"total_wait_ms": g.waited.Milliseconds(),
		"last_dispatch": "",
	}
	if !g.last.IsZero() {
		stats["last_dispatch"] = g.last.Format(time.RFC3339Nano)
	}
	return stats
}
