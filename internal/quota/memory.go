// AngelaMos | 2026
// memory.go

package quota

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	count     int
	expiresAt time.Time
}

// MemoryLimiter keeps fixed-window counters in process. Correct only for a
// single instance.
type MemoryLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	nextSweep time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{buckets: make(map[string]*bucket)}
}

func (l *MemoryLimiter) Take(_ context.Context, userID string, limits Limits, now time.Time) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	mk, dk := minuteKey(userID, now), dayKey(userID, now)
	minute := l.count(mk, now)
	day := l.count(dk, now)

	if minute >= limits.PerMinute || day >= limits.Daily {
		return evaluate(limits, now, false, minute, day), nil
	}

	minute = l.incr(mk, now, minuteBucketTTL)
	day = l.incr(dk, now, dayBucketTTL)

	return evaluate(limits, now, true, minute, day), nil
}

func (l *MemoryLimiter) count(key string, now time.Time) int {
	b, ok := l.buckets[key]
	if !ok || now.After(b.expiresAt) {
		return 0
	}
	return b.count
}

func (l *MemoryLimiter) incr(key string, now time.Time, ttl time.Duration) int {
	b, ok := l.buckets[key]
	if !ok || now.After(b.expiresAt) {
		b = &bucket{expiresAt: now.Add(ttl)}
		l.buckets[key] = b
	}
	b.count++
	return b.count
}

func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Before(l.nextSweep) {
		return
	}
	for k, b := range l.buckets {
		if now.After(b.expiresAt) {
			delete(l.buckets, k)
		}
	}
	l.nextSweep = now.Add(time.Minute)
}
