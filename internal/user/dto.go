// AngelaMos | 2026
// dto.go

package user

import (
	"encoding/json"
	"time"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/store"
)

type UpdateUserPlanRequest struct {
	PlanID string `json:"plan_id" validate:"required,max=64"`
}

type PlanResponse struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	DailyRequestLimit int      `json:"daily_request_limit"`
	RequestsPerMinute int      `json:"requests_per_minute"`
	MaxConnections    int      `json:"max_connections"`
	PriceCents        int      `json:"price_monthly_cents"`
	Features          []string `json:"features"`
}

func ToPlanResponse(p *store.Plan) PlanResponse {
	features := []string{}
	if p.Features != "" {
		_ = json.Unmarshal([]byte(p.Features), &features) //nolint:errcheck // malformed list renders empty
	}
	return PlanResponse{
		ID:                p.ID,
		Name:              p.Name,
		DailyRequestLimit: p.DailyRequestLimit,
		RequestsPerMinute: p.RequestsPerMinute,
		MaxConnections:    p.MaxConnections,
		PriceCents:        p.PriceCents,
		Features:          features,
	}
}

type PlanSummary struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	DailyLimit     int    `json:"daily_limit"`
	RateLimit      int    `json:"rate_limit"`
	MaxConnections int    `json:"max_connections"`
}

type TodayUsage struct {
	Requests  int `json:"requests"`
	Remaining int `json:"remaining"`
}

type MonthUsage struct {
	Requests    int `json:"requests"`
	Success     int `json:"success"`
	Errors      int `json:"errors"`
	SuccessRate int `json:"success_rate"`
}

type Quantity struct {
	Used int `json:"used"`
	Max  int `json:"max"`
}

type UsageResponse struct {
	Plan  PlanSummary `json:"plan"`
	Usage struct {
		Today TodayUsage `json:"today"`
		Month MonthUsage `json:"month"`
	} `json:"usage"`
	Resources struct {
		Connections Quantity `json:"connections"`
		APIKeys     int      `json:"api_keys"`
	} `json:"resources"`
	Recent []UsageLogResponse `json:"recent"`
}

type UsageLogResponse struct {
	ToolName     string    `json:"tool_name"`
	Status       string    `json:"status"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

type DashboardResponse struct {
	User struct {
		Email     string    `json:"email"`
		Plan      string    `json:"plan"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"user"`
	Stats struct {
		Connections   int `json:"connections"`
		APIKeys       int `json:"api_keys"`
		RequestsToday int `json:"requests_today"`
		RequestsMonth int `json:"requests_month"`
	} `json:"stats"`
	Limits struct {
		DailyRequests  int `json:"daily_requests"`
		MaxConnections int `json:"max_connections"`
	} `json:"limits"`
	RecentConnections []RecentConnection `json:"recent_connections"`
}

type RecentConnection struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	LastTestedAt *time.Time `json:"last_tested_at"`
}

type AdminUserResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	PlanID      string    `json:"plan_id"`
	IsAdmin     bool      `json:"is_admin"`
	TOTPEnabled bool      `json:"totp_enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func ToAdminUserResponse(u *store.User) AdminUserResponse {
	return AdminUserResponse{
		ID:          u.ID,
		Email:       u.Email,
		PlanID:      u.PlanID,
		IsAdmin:     u.IsAdmin,
		TOTPEnabled: u.TOTPEnabled,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
