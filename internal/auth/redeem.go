// AngelaMos | 2026
// redeem.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redeemer tracks the one-time state of a token ID. Redeem returns false
// when the ID was already redeemed. Fail counts a wrong step-up code and
// returns the running total; Failures reads it.
type Redeemer interface {
	Redeem(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
	Fail(ctx context.Context, tokenID string, ttl time.Duration) (int, error)
	Failures(ctx context.Context, tokenID string) (int, error)
}

type RedisRedeemer struct {
	client     *redis.Client
	prefix     string
	failPrefix string
}

func NewRedisRedeemer(client *redis.Client) *RedisRedeemer {
	return &RedisRedeemer{
		client:     client,
		prefix:     "pending_used:",
		failPrefix: "pending_fail:",
	}
}

func (r *RedisRedeemer) Redeem(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.prefix+tokenID, 1, minTTL(ttl)).Result()
	if err != nil {
		return false, fmt.Errorf("redeem token: %w", err)
	}
	return ok, nil
}

func (r *RedisRedeemer) Fail(ctx context.Context, tokenID string, ttl time.Duration) (int, error) {
	key := r.failPrefix + tokenID

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, minTTL(ttl))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("record failed attempt: %w", err)
	}
	return int(incr.Val()), nil
}

func (r *RedisRedeemer) Failures(ctx context.Context, tokenID string) (int, error) {
	n, err := r.client.Get(ctx, r.failPrefix+tokenID).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read failed attempts: %w", err)
	}
	return n, nil
}

type strikes struct {
	n   int
	exp time.Time
}

type MemoryRedeemer struct {
	mu       sync.Mutex
	used     map[string]time.Time
	failures map[string]strikes
	now      func() time.Time
}

func NewMemoryRedeemer() *MemoryRedeemer {
	return &MemoryRedeemer{
		used:     make(map[string]time.Time),
		failures: make(map[string]strikes),
		now:      time.Now,
	}
}

func (r *MemoryRedeemer) Redeem(_ context.Context, tokenID string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)

	if _, ok := r.used[tokenID]; ok {
		return false, nil
	}
	r.used[tokenID] = now.Add(minTTL(ttl))
	return true, nil
}

func (r *MemoryRedeemer) Fail(_ context.Context, tokenID string, ttl time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)

	s := r.failures[tokenID]
	s.n++
	s.exp = now.Add(minTTL(ttl))
	r.failures[tokenID] = s
	return s.n, nil
}

func (r *MemoryRedeemer) Failures(_ context.Context, tokenID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweep(r.now())
	return r.failures[tokenID].n, nil
}

func (r *MemoryRedeemer) sweep(now time.Time) {
	for id, exp := range r.used {
		if now.After(exp) {
			delete(r.used, id)
		}
	}
	for id, s := range r.failures {
		if now.After(s.exp) {
			delete(r.failures, id)
		}
	}
}

func minTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return time.Second
	}
	return ttl
}
