// internal/pkg/ratelimit/scan_limiter.go
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// ScanLimiter caps how often one user may submit codes to one tool.
type ScanLimiter interface {
	AllowScan(ctx context.Context, toolID int64, userID string) (bool, error)
}

// RedisScanLimiter is a fixed-window counter shared by every API instance.
type RedisScanLimiter struct {
	client redis.UniversalClient
	limit  int64
	window time.Duration
}

func NewRedisScanLimiter(client redis.UniversalClient, limit int, window time.Duration) *RedisScanLimiter {
	if limit < 1 {
		limit = 1
	}
	return &RedisScanLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
	}
}

// AllowScan increments the window counter and arms its expiry in one MULTI.
// EXPIRE NX is sent on every call so a key that somehow lost its TTL gets one
// back on the next scan instead of blocking the user forever.
func (r *RedisScanLimiter) AllowScan(ctx context.Context, toolID int64, userID string) (bool, error) {
	key := scanKey(toolID, userID)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, r.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update scan rate limit: %w", err)
	}

	return incr.Val() <= r.limit, nil
}

// LocalScanLimiter keeps a token bucket per (tool, user) in process memory.
// Used when no Redis is configured. Buckets idle for a full window are
// refilled anyway, so they are dropped by a periodic sweep.
type LocalScanLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	every     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalScanLimiter(limit int, window time.Duration) *LocalScanLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &LocalScanLimiter{
		buckets:   make(map[string]*bucket),
		every:     rate.Every(window / time.Duration(limit)),
		burst:     limit,
		idle:      window,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (l *LocalScanLimiter) AllowScan(ctx context.Context, toolID int64, userID string) (bool, error) {
	key := scanKey(toolID, userID)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	return b.limiter.AllowN(now, 1), nil
}

// Len reports how many buckets are currently tracked.
func (l *LocalScanLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// sweep runs at most once per idle period. Callers hold l.mu.
func (l *LocalScanLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idle {
		return
	}
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) >= l.idle {
			delete(l.buckets, key)
		}
	}
	l.lastSweep = now
}

func scanKey(toolID int64, userID string) string {
	return fmt.Sprintf("ratelimit:qrscan:%d:%s", toolID, userID)
}
