package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"go-admin-portal/internal/metrics"
	"go-admin-portal/internal/model"
)

type Class string

const (
	// ClassAuth guards unauthenticated endpoints, keyed by client address.
	ClassAuth Class = "auth"
	// ClassAPI guards authenticated endpoints, keyed by user.
	ClassAPI Class = "api"
)

type Store interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type Options struct {
	Window       time.Duration
	Limits       map[Class]int
	StoreTimeout time.Duration
}

type Decision struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	Degraded  bool
}

// Limiter counts requests in fixed windows aligned to Window boundaries.
// Counters live in the primary store when one is configured; any failure of
// the primary falls back to the in-process store so a request is never
// rejected because the counter backend is down.
type Limiter struct {
	primary  Store
	fallback *MemoryStore
	breaker  *gobreaker.CircuitBreaker[int64]
	opts     Options
	warn     rate.Sometimes
	now      func() time.Time
}

func NewLimiter(primary Store, fallback *MemoryStore, opts Options) *Limiter {
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 100 * time.Millisecond
	}
	if fallback == nil {
		fallback = NewMemoryStore()
	}

	l := &Limiter{
		primary:  primary,
		fallback: fallback,
		opts:     opts,
		warn:     rate.Sometimes{First: 1, Interval: 30 * time.Second},
		now:      time.Now,
	}

	l.breaker = gobreaker.NewCircuitBreaker[int64](gobreaker.Settings{
		Name:        "ratelimit-store",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("rate limit store circuit changed state", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	if primary == nil {
		metrics.RateLimitBackend.Set(1)
	}

	return l
}

// Allow records one request for identity in class. It returns a
// *model.RateLimitError once the class limit for the current window is exceeded.
func (l *Limiter) Allow(ctx context.Context, identity string, class Class) (Decision, error) {
	limit, ok := l.opts.Limits[class]
	if !ok || limit <= 0 {
		return Decision{}, nil
	}

	now := l.now()
	windowStart := now.Truncate(l.opts.Window)
	resetAt := windowStart.Add(l.opts.Window)
	key := fmt.Sprintf("%s:%s:%d", class, identity, windowStart.Unix())

	count, degraded := l.increment(ctx, key)

	decision := Decision{
		Limit:     limit,
		Remaining: max(limit-int(count), 0),
		ResetAt:   resetAt,
		Degraded:  degraded,
	}

	if count > int64(limit) {
		metrics.RateLimitDecisions.WithLabelValues(string(class), "denied").Inc()
		return decision, &model.RateLimitError{RetryAfter: resetAt.Sub(now)}
	}

	metrics.RateLimitDecisions.WithLabelValues(string(class), "allowed").Inc()
	return decision, nil
}

func (l *Limiter) increment(ctx context.Context, key string) (int64, bool) {
	if l.primary != nil {
		count, err := l.breaker.Execute(func() (int64, error) {
			storeCtx, cancel := context.WithTimeout(ctx, l.opts.StoreTimeout)
			defer cancel()
			return l.primary.Increment(storeCtx, key, l.opts.Window)
		})
		if err == nil {
			metrics.RateLimitBackend.Set(0)
			return count, false
		}

		metrics.RateLimitBackend.Set(1)
		l.warn.Do(func() {
			slog.Warn("rate limit store unavailable; counting in process", "error", err)
		})
	}

	// MemoryStore never fails.
	count, _ := l.fallback.Increment(ctx, key, l.opts.Window)
	return count, true
}
