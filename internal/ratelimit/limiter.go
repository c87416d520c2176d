// Package ratelimit implements admission control for incident submissions:
// sliding per-minute and per-hour windows per client identity, counted in a
// shared Redis backend with a process-local in-memory fallback.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default window limits, matching the trigger endpoint's abuse thresholds
const (
	DefaultRequestsPerMinute = 60
	DefaultRequestsPerHour   = 1000
)

// Backend is a shared counter store keyed by window:identity. Increment
// returns the post-increment count; Expire sets the key's TTL.
type Backend interface {
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// RedisBackend implements Backend on a Redis client
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend creates a Backend backed by the given Redis client
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// Increment atomically increments the counter for key
func (b *RedisBackend) Increment(ctx context.Context, key string) (int64, error) {
	count, err := b.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr failed: %w", err)
	}
	return count, nil
}

// Expire sets the TTL for key
func (b *RedisBackend) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := b.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire failed: %w", err)
	}
	return nil
}

// localCounter tracks in-memory window counts for a single identity.
// Each counter has its own mutex so different identities never contend.
type localCounter struct {
	mu                sync.Mutex
	minuteCount       int
	hourCount         int
	minuteWindowStart time.Time
	hourWindowStart   time.Time
}

// Limiter decides whether a submission from a client identity may proceed.
// The shared backend is tried first; any backend error silently downgrades
// to local in-memory counting so rate limiting never takes the pipeline down.
type Limiter struct {
	backend           Backend
	requestsPerMinute int
	requestsPerHour   int

	mu    sync.Mutex
	local map[string]*localCounter

	now func() time.Time // overridable in tests
}

// Config holds limiter settings
type Config struct {
	RequestsPerMinute int
	RequestsPerHour   int
}

// NewLimiter creates a Limiter. backend may be nil, in which case only the
// in-memory counters are used.
func NewLimiter(backend Backend, cfg Config) *Limiter {
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = DefaultRequestsPerMinute
	}
	perHour := cfg.RequestsPerHour
	if perHour <= 0 {
		perHour = DefaultRequestsPerHour
	}
	return &Limiter{
		backend:           backend,
		requestsPerMinute: perMinute,
		requestsPerHour:   perHour,
		local:             make(map[string]*localCounter),
		now:               time.Now,
	}
}

// Allow records one request for the identity and reports whether it may
// proceed. It never returns an error: backend failures fall back to local
// counting.
func (l *Limiter) Allow(ctx context.Context, identity string) bool {
	if l.backend != nil {
		allowed, err := l.allowShared(ctx, identity)
		if err == nil {
			return allowed
		}
		log.Printf("Rate limit backend unavailable, falling back to in-memory counting: %v", err)
	}
	return l.allowLocal(identity)
}

// allowShared counts against the shared backend. The expiry is set only on
// the increment that establishes a new key (count 0 -> 1), so the window is
// anchored at the first request.
func (l *Limiter) allowShared(ctx context.Context, identity string) (bool, error) {
	minuteKey := "rate_limit:minute:" + identity
	minuteCount, err := l.backend.Increment(ctx, minuteKey)
	if err != nil {
		return false, err
	}
	if minuteCount == 1 {
		if err := l.backend.Expire(ctx, minuteKey, time.Minute); err != nil {
			return false, err
		}
	}
	if minuteCount > int64(l.requestsPerMinute) {
		return false, nil
	}

	hourKey := "rate_limit:hour:" + identity
	hourCount, err := l.backend.Increment(ctx, hourKey)
	if err != nil {
		return false, err
	}
	if hourCount == 1 {
		if err := l.backend.Expire(ctx, hourKey, time.Hour); err != nil {
			return false, err
		}
	}
	return hourCount <= int64(l.requestsPerHour), nil
}

// allowLocal counts against the process-local map. Windows reset lazily when
// the elapsed time since the window start exceeds the window length.
func (l *Limiter) allowLocal(identity string) bool {
	l.mu.Lock()
	counter, ok := l.local[identity]
	if !ok {
		now := l.now()
		counter = &localCounter{minuteWindowStart: now, hourWindowStart: now}
		l.local[identity] = counter
	}
	l.mu.Unlock()

	counter.mu.Lock()
	defer counter.mu.Unlock()

	now := l.now()
	if now.Sub(counter.minuteWindowStart) > time.Minute {
		counter.minuteCount = 0
		counter.minuteWindowStart = now
	}
	if now.Sub(counter.hourWindowStart) > time.Hour {
		counter.hourCount = 0
		counter.hourWindowStart = now
	}

	if counter.minuteCount >= l.requestsPerMinute || counter.hourCount >= l.requestsPerHour {
		return false
	}

	counter.minuteCount++
	counter.hourCount++
	return true
}
