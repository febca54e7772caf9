// AngelaMos | 2026
// manager.go

package quota

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/config"
)

const defaultCooldown = 30 * time.Second

// Manager prefers the shared limiter and switches to the local one for a
// cooldown period after the shared one fails.
type Manager struct {
	primary  Limiter
	fallback *MemoryLimiter
	cooldown time.Duration
	logger   *slog.Logger

	mu            sync.Mutex
	degradedUntil time.Time
}

func NewManager(primary Limiter, cooldown time.Duration, logger *slog.Logger) *Manager {
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &Manager{
		primary:  primary,
		fallback: NewMemoryLimiter(),
		cooldown: cooldown,
		logger:   logger,
	}
}

// NewLimiter builds the configured backend. A nil client forces memory.
func NewLimiter(cfg config.QuotaConfig, client *redis.Client, logger *slog.Logger) Limiter {
	if cfg.Backend != "redis" || client == nil {
		return NewMemoryLimiter()
	}
	return NewManager(
		NewRedisLimiter(client, cfg.RedisPrefix),
		cfg.FallbackCooldown,
		logger,
	)
}

func (m *Manager) Take(ctx context.Context, userID string, limits Limits, now time.Time) (*Result, error) {
	if !m.degraded(now) {
		res, err := m.primary.Take(ctx, userID, limits, now)
		if err == nil {
			return res, nil
		}

		m.logger.Warn("quota backend unavailable, using local counters",
			"error", err,
			"cooldown", m.cooldown,
		)
		m.mu.Lock()
		m.degradedUntil = now.Add(m.cooldown)
		m.mu.Unlock()
	}

	return m.fallback.Take(ctx, userID, limits, now)
}

func (m *Manager) degraded(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return now.Before(m.degradedUntil)
}
