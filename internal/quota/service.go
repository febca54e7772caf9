// AngelaMos | 2026
// service.go

package quota

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/config"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/store"
)

type Store interface {
	store.Users
	store.Plans
	store.Usage
}

type Service struct {
	store    Store
	limiter  Limiter
	defaults Limits
	now      func() time.Time
}

func NewService(st Store, limiter Limiter, cfg config.QuotaConfig) *Service {
	return &Service{
		store:   st,
		limiter: limiter,
		defaults: Limits{
			PerMinute: cfg.DefaultPerMinute,
			Daily:     cfg.DefaultDaily,
		},
		now: time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// LimitsFor resolves the user's plan. Fields the plan leaves unset, or a
// plan that no longer exists, fall back to the configured ceilings.
func (s *Service) LimitsFor(ctx context.Context, userID string) (Limits, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return Limits{}, core.ErrAccountNotFound
		}
		return Limits{}, fmt.Errorf("get user: %w", err)
	}

	limits := s.defaults

	plan, err := s.store.GetPlan(ctx, user.PlanID)
	switch {
	case err == nil:
		if plan.RequestsPerMinute > 0 {
			limits.PerMinute = plan.RequestsPerMinute
		}
		if plan.DailyRequestLimit > 0 {
			limits.Daily = plan.DailyRequestLimit
		}
	case !errors.Is(err, core.ErrNotFound):
		return Limits{}, fmt.Errorf("get plan: %w", err)
	}

	return limits, nil
}

// Check admits or rejects one request for userID and counts it if admitted.
func (s *Service) Check(ctx context.Context, userID string) (*Result, error) {
	limits, err := s.LimitsFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	res, err := s.limiter.Take(ctx, userID, limits, s.now())
	if err != nil {
		return nil, fmt.Errorf("take quota: %w", err)
	}
	return res, nil
}

type DailyStatus struct {
	Allowed   bool `json:"allowed"`
	Used      int  `json:"used"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
}

// CheckDaily compares today's recorded usage with the plan allowance. It
// reads the audit log and counts nothing.
func (s *Service) CheckDaily(ctx context.Context, userID string) (*DailyStatus, error) {
	limits, err := s.LimitsFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	used, err := s.store.CountUsageSince(ctx, userID, store.StartOfDay(s.now()))
	if err != nil {
		return nil, fmt.Errorf("count usage: %w", err)
	}

	return &DailyStatus{
		Allowed:   used < limits.Daily,
		Used:      used,
		Limit:     limits.Daily,
		Remaining: max(0, limits.Daily-used),
	}, nil
}

// Err converts a rejection into the caller-visible error. Admitted results
// return nil.
func (r *Result) Err() error {
	switch {
	case r.Allowed:
		return nil
	case r.Reason == ReasonDailyLimit:
		return core.NewAppError(
			core.ErrDailyLimitExceeded,
			fmt.Sprintf("Daily limit exceeded (%d/day)", r.DailyLimit),
			http.StatusTooManyRequests,
			ReasonDailyLimit,
		)
	default:
		return core.NewAppError(
			core.ErrRateLimited,
			fmt.Sprintf("Rate limit exceeded (%d/min)", r.Limit),
			http.StatusTooManyRequests,
			ReasonRateLimited,
		)
	}
}

// RetryAfter is never shorter than one second.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	d := r.Reset.Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d
}

func SetHeaders(w http.ResponseWriter, r *Result, now time.Time) {
	h := w.Header()

	h.Set("X-RateLimit-Limit", strconv.Itoa(r.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(r.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(r.Reset.Unix(), 10))
	h.Set("X-RateLimit-Daily-Remaining", strconv.Itoa(r.DailyRemaining))

	if !r.Allowed {
		h.Set("Retry-After", strconv.Itoa(int(r.RetryAfter(now).Seconds())))
	}
}
