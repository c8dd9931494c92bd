// Package ratelimit implements the Rate Governor: a per-host token bucket
// plus a global concurrency cap that gates worker admission before a
// fetch. Acquisition does not guarantee FIFO across hosts; within a host,
// waiters are served in arrival order (golang.org/x/time/rate's own
// queuing behavior).
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pricewatch/metrics"
)

// HostLimits configures a single host's token bucket.
type HostLimits struct {
	RequestsPerSecond float64
	Burst             int
}

// Governor owns one rate.Limiter per host plus a global semaphore bounding
// total in-flight fetches.
type Governor struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	global   chan struct{}
	waitCap  time.Duration
	metrics  *metrics.Registry

	defaultRPS   float64
	defaultBurst int
}

func New(defaultRPS float64, defaultBurst, globalConcurrency int, waitCap time.Duration) *Governor {
	return &Governor{
		limiters:     make(map[string]*rate.Limiter),
		global:       make(chan struct{}, globalConcurrency),
		waitCap:      waitCap,
		defaultRPS:   defaultRPS,
		defaultBurst: defaultBurst,
	}
}

// WithMetrics attaches a metrics registry that Acquire records wait times
// against; nil disables recording.
func (g *Governor) WithMetrics(m *metrics.Registry) *Governor {
	g.metrics = m
	return g
}

// ErrRateLimited is returned when a caller could not acquire a per-host
// token within the configured wait bound.
var ErrRateLimited = errors.New("ratelimit: wait bound exceeded")

// Acquire blocks until a per-host token and a global slot are both
// available, or ctx/waitCap expires first. The returned release func must
// be called exactly once, on every exit path, to free the global slot.
func (g *Governor) Acquire(ctx context.Context, host string) (release func(), err error) {
	start := time.Now()
	defer func() {
		if g.metrics != nil {
			g.metrics.GovernorWait.Observe(time.Since(start).Seconds())
		}
	}()

	waitCtx, cancel := context.WithTimeout(ctx, g.waitCap)
	defer cancel()

	limiter := g.limiterFor(host)
	if err := limiter.Wait(waitCtx); err != nil {
		return nil, ErrRateLimited
	}

	select {
	case g.global <- struct{}{}:
		return func() { <-g.global }, nil
	case <-waitCtx.Done():
		return nil, ErrRateLimited
	}
}

// Configure sets or replaces the bucket for a specific host. Hosts not
// configured use the governor's default rate and burst.
func (g *Governor) Configure(host string, limits HostLimits) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limiters[host] = rate.NewLimiter(rate.Limit(limits.RequestsPerSecond), limits.Burst)
}

func (g *Governor) limiterFor(host string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	if l, ok := g.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(g.defaultRPS), g.defaultBurst)
	g.limiters[host] = l
	return l
}
