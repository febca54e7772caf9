// AngelaMos | 2026
// sql_usage.go

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
)

const planColumns = `id, name, daily_request_limit, requests_per_minute,
	max_connections, price_cents, features`

func (s *SQLStore) GetPlan(ctx context.Context, id string) (*Plan, error) {
	var p Plan
	err := s.get(ctx, "get plan", &p,
		`SELECT `+planColumns+` FROM plans WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLStore) ListPlans(ctx context.Context) ([]Plan, error) {
	var plans []Plan
	err := s.db.SelectContext(ctx, &plans,
		`SELECT `+planColumns+` FROM plans ORDER BY price_cents ASC`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return plans, nil
}

const usageColumns = `id, user_id, api_key_id, connection_id, tool_name,
	status, error_message, duration_ms, created_at`

func (s *SQLStore) InsertUsageLog(ctx context.Context, l *UsageLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	_, err := s.exec(ctx, "insert usage log", `
		INSERT INTO usage_logs (`+usageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.UserID, l.APIKeyID, l.ConnectionID, l.ToolName,
		l.Status, l.ErrorMessage, l.DurationMS, l.CreatedAt.UTC(),
	)
	return err
}

func (s *SQLStore) IncrementMonthlyUsage(ctx context.Context, userID, yearMonth string, success bool) error {
	successInc, errorInc := 0, 1
	if success {
		successInc, errorInc = 1, 0
	}

	_, err := s.exec(ctx, "increment monthly usage", `
		INSERT INTO usage_monthly (user_id, year_month, request_count, success_count, error_count)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (user_id, year_month) DO UPDATE SET
			request_count = usage_monthly.request_count + 1,
			success_count = usage_monthly.success_count + excluded.success_count,
			error_count   = usage_monthly.error_count + excluded.error_count`,
		userID, yearMonth, successInc, errorInc,
	)
	return err
}

func (s *SQLStore) GetMonthlyUsage(ctx context.Context, userID, yearMonth string) (*UsageMonthly, error) {
	var m UsageMonthly
	err := s.get(ctx, "get monthly usage", &m, `
		SELECT user_id, year_month, request_count, success_count, error_count
		FROM usage_monthly WHERE user_id = ? AND year_month = ?`,
		userID, yearMonth)
	if errors.Is(err, core.ErrNotFound) {
		return &UsageMonthly{UserID: userID, YearMonth: yearMonth}, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *SQLStore) CountUsageSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.get(ctx, "count usage", &n,
		`SELECT COUNT(*) FROM usage_logs WHERE user_id = ? AND created_at >= ?`,
		userID, since.UTC())
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLStore) ListRecentUsage(ctx context.Context, userID string, limit int) ([]UsageLog, error) {
	var logs []UsageLog
	err := s.db.SelectContext(ctx, &logs, s.db.Rebind(
		`SELECT `+usageColumns+` FROM usage_logs
		 WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list usage: %w", err)
	}
	return logs, nil
}
