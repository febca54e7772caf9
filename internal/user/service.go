// AngelaMos | 2026
// service.go

package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/store"
)

const (
	recentUsageLimit       = 20
	recentConnectionsLimit = 3
)

type Store interface {
	store.Users
	store.Plans
	store.Usage
	store.Connections
	store.APIKeys
}

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(st Store, logger *slog.Logger) *Service {
	return &Service{store: st, logger: logger, now: time.Now}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// planFor returns the user's plan, or the default plan when the assigned
// one no longer exists.
func (s *Service) planFor(ctx context.Context, u *store.User) (*store.Plan, error) {
	plan, err := s.store.GetPlan(ctx, u.PlanID)
	if err == nil {
		return plan, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("get plan: %w", err)
	}

	for i := range store.DefaultPlans {
		if store.DefaultPlans[i].ID == store.DefaultPlanID {
			p := store.DefaultPlans[i]
			return &p, nil
		}
	}
	return &store.Plan{ID: store.DefaultPlanID, Name: "Free"}, nil
}

func (s *Service) getUser(ctx context.Context, userID string) (*store.User, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NotFoundError("user")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

type snapshot struct {
	user        *store.User
	plan        *store.Plan
	monthly     *store.UsageMonthly
	today       int
	connections []store.Connection
	keys        int
	recent      []store.UsageLog
}

// collect loads everything the usage views need in parallel.
func (s *Service) collect(ctx context.Context, userID string, withRecent bool) (*snapshot, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	snap := &snapshot{user: u}
	now := s.now()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		p, err := s.planFor(gctx, u)
		snap.plan = p
		return err
	})
	g.Go(func() error {
		m, err := s.store.GetMonthlyUsage(gctx, userID, store.YearMonth(now))
		if err != nil {
			return fmt.Errorf("get monthly usage: %w", err)
		}
		snap.monthly = m
		return nil
	})
	g.Go(func() error {
		n, err := s.store.CountUsageSince(gctx, userID, store.StartOfDay(now))
		if err != nil {
			return fmt.Errorf("count usage: %w", err)
		}
		snap.today = n
		return nil
	})
	g.Go(func() error {
		conns, err := s.store.ListConnections(gctx, userID)
		if err != nil {
			return fmt.Errorf("list connections: %w", err)
		}
		snap.connections = conns
		return nil
	})
	g.Go(func() error {
		keys, err := s.store.ListAPIKeys(gctx, userID)
		if err != nil {
			return fmt.Errorf("list api keys: %w", err)
		}
		snap.keys = len(keys)
		return nil
	})
	if withRecent {
		g.Go(func() error {
			logs, err := s.store.ListRecentUsage(gctx, userID, recentUsageLimit)
			if err != nil {
				return fmt.Errorf("list recent usage: %w", err)
			}
			snap.recent = logs
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *Service) Usage(ctx context.Context, userID string) (*UsageResponse, error) {
	snap, err := s.collect(ctx, userID, true)
	if err != nil {
		return nil, err
	}

	resp := &UsageResponse{
		Plan: PlanSummary{
			ID:             snap.plan.ID,
			Name:           snap.plan.Name,
			DailyLimit:     snap.plan.DailyRequestLimit,
			RateLimit:      snap.plan.RequestsPerMinute,
			MaxConnections: snap.plan.MaxConnections,
		},
	}

	resp.Usage.Today = TodayUsage{
		Requests:  snap.today,
		Remaining: max(0, snap.plan.DailyRequestLimit-snap.today),
	}
	resp.Usage.Month = MonthUsage{
		Requests:    snap.monthly.RequestCount,
		Success:     snap.monthly.SuccessCount,
		Errors:      snap.monthly.ErrorCount,
		SuccessRate: successRate(snap.monthly),
	}
	resp.Resources.Connections = Quantity{
		Used: len(snap.connections),
		Max:  snap.plan.MaxConnections,
	}
	resp.Resources.APIKeys = snap.keys

	resp.Recent = make([]UsageLogResponse, len(snap.recent))
	for i, l := range snap.recent {
		resp.Recent[i] = UsageLogResponse{
			ToolName:     l.ToolName,
			Status:       l.Status,
			ErrorMessage: l.ErrorMessage,
			DurationMS:   l.DurationMS,
			CreatedAt:    l.CreatedAt,
		}
	}

	return resp, nil
}

// successRate is 100 for a month with no requests.
func successRate(m *store.UsageMonthly) int {
	if m.RequestCount == 0 {
		return 100
	}
	return (m.SuccessCount*100 + m.RequestCount/2) / m.RequestCount
}

func (s *Service) Dashboard(ctx context.Context, userID string) (*DashboardResponse, error) {
	snap, err := s.collect(ctx, userID, false)
	if err != nil {
		return nil, err
	}

	resp := &DashboardResponse{}
	resp.User.Email = snap.user.Email
	resp.User.Plan = snap.plan.Name
	resp.User.CreatedAt = snap.user.CreatedAt

	resp.Stats.Connections = len(snap.connections)
	resp.Stats.APIKeys = snap.keys
	resp.Stats.RequestsToday = snap.today
	resp.Stats.RequestsMonth = snap.monthly.RequestCount

	resp.Limits.DailyRequests = snap.plan.DailyRequestLimit
	resp.Limits.MaxConnections = snap.plan.MaxConnections

	n := min(len(snap.connections), recentConnectionsLimit)
	resp.RecentConnections = make([]RecentConnection, n)
	for i := range n {
		c := snap.connections[i]
		resp.RecentConnections[i] = RecentConnection{
			ID:           c.ID,
			Name:         c.Name,
			Status:       c.Status,
			LastTestedAt: c.LastTestedAt,
		}
	}

	return resp, nil
}

func (s *Service) Plans(ctx context.Context) ([]PlanResponse, error) {
	plans, err := s.store.ListPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}

	out := make([]PlanResponse, len(plans))
	for i := range plans {
		out[i] = ToPlanResponse(&plans[i])
	}
	return out, nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (*store.User, error) {
	return s.getUser(ctx, userID)
}

// UpdateUserPlan takes effect on the next gated request; quota limits are
// resolved per request.
func (s *Service) UpdateUserPlan(ctx context.Context, userID, planID string) (*store.User, error) {
	if _, err := s.store.GetPlan(ctx, planID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ValidationError(fmt.Sprintf("unknown plan %q", planID))
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}

	if _, err := s.getUser(ctx, userID); err != nil {
		return nil, err
	}

	if err := s.store.UpdateUserPlan(ctx, userID, planID); err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}

	s.logger.Info("user plan changed", "user_id", userID, "plan_id", planID)
	return s.getUser(ctx, userID)
}
