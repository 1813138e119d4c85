// Package ratelimit provides a sliding-window request limiter backed by a
// shared Redis counter with a silent in-process fallback.
//
// The primary store is consulted with an atomic INCR + PEXPIRE in a single
// round trip. On any store error the limiter fails over to a per-process
// counter map instead of failing open or closed: cross-instance limits
// degrade to per-instance limits during a store outage, a deliberate
// availability-over-strict-enforcement trade-off.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix            = "inkwell:rl"
	defaultSweepInterval = 60 * time.Second
)

// Rule is one throttling policy: at most MaxRequests per Window for each key.
type Rule struct {
	Scope       string
	MaxRequests int
	Window      time.Duration
}

// Result reports the outcome of one Allow call, with the values the boundary
// needs for X-RateLimit-* headers.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type localEntry struct {
	count   int64
	resetAt time.Time
}

// Limiter counts requests per (scope, subject, method, path) window. It holds
// process-wide state (the fallback map and its sweeper); the owning process
// must Start it once and Stop it on shutdown.
type Limiter struct {
	rdb           *redis.Client
	logger        *slog.Logger
	now           func() time.Time
	sweepInterval time.Duration

	mu    sync.Mutex
	local map[string]*localEntry

	healthy atomic.Bool
	stop    chan struct{}
	stopped sync.Once
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithRedis sets the shared counter store. Without it the limiter runs purely
// on the in-process fallback.
func WithRedis(client *redis.Client) LimiterOption {
	return func(l *Limiter) {
		l.rdb = client
	}
}

// WithLogger sets the logger used for failover notices.
func WithLogger(logger *slog.Logger) LimiterOption {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithSweepInterval overrides how often expired fallback entries are evicted.
func WithSweepInterval(d time.Duration) LimiterOption {
	return func(l *Limiter) {
		l.sweepInterval = d
	}
}

// New creates a Limiter. Call Start to begin the fallback sweeper and Stop on
// shutdown.
func New(opts ...LimiterOption) *Limiter {
	l := &Limiter{
		logger:        slog.Default(),
		now:           time.Now,
		sweepInterval: defaultSweepInterval,
		local:         make(map[string]*localEntry),
		stop:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.healthy.Store(l.rdb != nil)
	return l
}

// Start launches the fallback sweeper.
func (l *Limiter) Start() {
	go l.sweepLoop()
}

// Stop halts the sweeper. It does not close the Redis client, which the
// limiter does not own.
func (l *Limiter) Stop() {
	l.stopped.Do(func() { close(l.stop) })
}

// Healthy reports whether the shared store served the most recent call.
// False means limits have degraded to per-instance enforcement.
func (l *Limiter) Healthy() bool {
	return l.healthy.Load()
}

// Allow counts one request against the rule for the given subject and
// reports whether it fits the window. A rule with a non-positive Window
// cannot define a window and is treated as inert: every request passes.
func (l *Limiter) Allow(ctx context.Context, rule Rule, subject, method, path string) Result {
	if rule.Window <= 0 {
		return Result{Allowed: true, Limit: rule.MaxRequests, Remaining: rule.MaxRequests, ResetAt: l.now()}
	}

	windowMs := rule.Window.Milliseconds()
	nowMs := l.now().UnixMilli()
	windowID := nowMs / windowMs
	key := fmt.Sprintf("%s:%s:%s:%s:%s:%d", keyPrefix, rule.Scope, subject, method, path, windowID)
	resetAt := time.UnixMilli((windowID + 1) * windowMs)

	var count int64
	if l.rdb != nil {
		if c, err := l.incrShared(ctx, key, rule.Window); err == nil {
			if !l.healthy.Swap(true) {
				l.logger.Info("rate limiter: shared store recovered", "scope", rule.Scope)
			}
			count = c
			return l.result(rule, count, resetAt)
		} else if l.healthy.Swap(false) {
			l.logger.Warn("rate limiter: shared store unavailable, using in-process fallback", "scope", rule.Scope, "error", err)
		}
	}

	count = l.incrLocal(key, resetAt)
	return l.result(rule, count, resetAt)
}

// incrShared bumps the shared counter and arms its expiry in one round trip.
func (l *Limiter) incrShared(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := l.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.PExpire(ctx, key, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (l *Limiter) incrLocal(key string, resetAt time.Time) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.local[key]
	if !ok {
		e = &localEntry{resetAt: resetAt}
		l.local[key] = e
	}
	e.count++
	return e.count
}

func (l *Limiter) result(rule Rule, count int64, resetAt time.Time) Result {
	remaining := int64(rule.MaxRequests) - count
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= int64(rule.MaxRequests),
		Limit:     rule.MaxRequests,
		Remaining: int(remaining),
		ResetAt:   resetAt,
	}
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stop:
			return
		}
	}
}

// sweep evicts fallback entries whose window has passed.
func (l *Limiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.local {
		if e.resetAt.Before(now) {
			delete(l.local, key)
		}
	}
}
