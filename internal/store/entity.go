// AngelaMos | 2026
// entity.go

package store

import (
	"time"
)

const (
	DefaultPlanID = "free"

	ConnectionStatusActive   = "active"
	ConnectionStatusError    = "error"
	ConnectionStatusUntested = "untested"

	APIKeyStatusActive  = "active"
	APIKeyStatusRevoked = "revoked"

	ProviderGitHub = "github"
	ProviderGoogle = "google"
)

type User struct {
	ID            string    `db:"id"`
	Email         string    `db:"email"`
	PasswordHash  *string   `db:"password_hash"`
	OAuthProvider *string   `db:"oauth_provider"`
	OAuthID       *string   `db:"oauth_id"`
	PlanID        string    `db:"plan_id"`
	IsAdmin       bool      `db:"is_admin"`
	TOTPSecret    *string   `db:"totp_secret"`
	TOTPEnabled   bool      `db:"totp_enabled"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

func (u *User) HasOAuth() bool {
	return u.OAuthProvider != nil && u.OAuthID != nil
}

type Connection struct {
	ID                 string     `db:"id"`
	UserID             string     `db:"user_id"`
	Name               string     `db:"name"`
	N8NURL             string     `db:"n8n_url"`
	N8NAPIKeyEncrypted string     `db:"n8n_api_key_encrypted"`
	Status             string     `db:"status"`
	LastTestedAt       *time.Time `db:"last_tested_at"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

type APIKey struct {
	ID           string     `db:"id"`
	UserID       string     `db:"user_id"`
	ConnectionID *string    `db:"connection_id"`
	Name         string     `db:"name"`
	KeyHash      string     `db:"key_hash"`
	KeyPrefix    string     `db:"key_prefix"`
	Scopes       string     `db:"scopes"`
	Status       string     `db:"status"`
	LastUsedAt   *time.Time `db:"last_used_at"`
	ExpiresAt    *time.Time `db:"expires_at"`
	CreatedAt    time.Time  `db:"created_at"`
}

type Plan struct {
	ID                string `db:"id"                  json:"id"`
	Name              string `db:"name"                json:"name"`
	DailyRequestLimit int    `db:"daily_request_limit" json:"daily_request_limit"`
	RequestsPerMinute int    `db:"requests_per_minute" json:"requests_per_minute"`
	MaxConnections    int    `db:"max_connections"     json:"max_connections"`
	PriceCents        int    `db:"price_cents"         json:"price_cents"`
	Features          string `db:"features"            json:"features"`
}

type UsageLog struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	APIKeyID     *string   `db:"api_key_id"`
	ConnectionID *string   `db:"connection_id"`
	ToolName     string    `db:"tool_name"`
	Status       string    `db:"status"`
	ErrorMessage *string   `db:"error_message"`
	DurationMS   int64     `db:"duration_ms"`
	CreatedAt    time.Time `db:"created_at"`
}

type UsageMonthly struct {
	UserID       string `db:"user_id"`
	YearMonth    string `db:"year_month"`
	RequestCount int    `db:"request_count"`
	SuccessCount int    `db:"success_count"`
	ErrorCount   int    `db:"error_count"`
}

// DefaultPlans seeds every backend.
var DefaultPlans = []Plan{
	{
		ID:                "free",
		Name:              "Free",
		DailyRequestLimit: 100,
		RequestsPerMinute: 10,
		MaxConnections:    1,
		PriceCents:        0,
		Features:          `["100 requests/day","1 n8n instance"]`,
	},
	{
		ID:                "pro",
		Name:              "Pro",
		DailyRequestLimit: 5000,
		RequestsPerMinute: 60,
		MaxConnections:    5,
		PriceCents:        1900,
		Features:          `["5000 requests/day","5 n8n instances","priority support"]`,
	},
	{
		ID:                "enterprise",
		Name:              "Enterprise",
		DailyRequestLimit: 50000,
		RequestsPerMinute: 300,
		MaxConnections:    25,
		PriceCents:        9900,
		Features:          `["50000 requests/day","25 n8n instances","dedicated support"]`,
	},
}
