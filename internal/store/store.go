// AngelaMos | 2026
// store.go

package store

import (
	"context"
	"time"
)

// Users returns core.ErrNotFound for missing rows and core.ErrDuplicateKey
// when an email or (provider, oauth id) pair is already taken.
type Users interface {
	CreateUser(ctx context.Context, u *User) error
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByOAuth(ctx context.Context, provider, oauthID string) (*User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	UpdateUserPlan(ctx context.Context, id, planID string) error
	SetUserTOTP(ctx context.Context, id string, secret *string, enabled bool) error
	DeleteUser(ctx context.Context, id string) error
	CountUsers(ctx context.Context) (int, error)
}

type Connections interface {
	CreateConnection(ctx context.Context, c *Connection) error
	// CreateConnectionWithinLimit inserts c only while the owner holds fewer
	// than limit connections, otherwise core.ErrConnectionLimit.
	CreateConnectionWithinLimit(ctx context.Context, c *Connection, limit int) error
	GetConnection(ctx context.Context, id string) (*Connection, error)
	ListConnections(ctx context.Context, userID string) ([]Connection, error)
	UpdateConnection(ctx context.Context, c *Connection) error
	UpdateConnectionStatus(ctx context.Context, id, status string, testedAt time.Time) error
	DeleteConnection(ctx context.Context, id string) error
}

type APIKeys interface {
	CreateAPIKey(ctx context.Context, k *APIKey) error
	GetAPIKey(ctx context.Context, id string) (*APIKey, error)
	// GetAPIKeyByPrefix returns the key regardless of status.
	GetAPIKeyByPrefix(ctx context.Context, prefix string) (*APIKey, error)
	ListAPIKeys(ctx context.Context, userID string) ([]APIKey, error)
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
	RevokeAPIKey(ctx context.Context, id string) error
	DeleteAPIKey(ctx context.Context, id string) error
}

type Plans interface {
	GetPlan(ctx context.Context, id string) (*Plan, error)
	ListPlans(ctx context.Context) ([]Plan, error)
}

type Usage interface {
	InsertUsageLog(ctx context.Context, l *UsageLog) error
	// IncrementMonthlyUsage is a single atomic upsert.
	IncrementMonthlyUsage(ctx context.Context, userID, yearMonth string, success bool) error
	GetMonthlyUsage(ctx context.Context, userID, yearMonth string) (*UsageMonthly, error)
	CountUsageSince(ctx context.Context, userID string, since time.Time) (int, error)
	ListRecentUsage(ctx context.Context, userID string, limit int) ([]UsageLog, error)
}

// Store is the credential repository every service depends on.
type Store interface {
	Users
	Connections
	APIKeys
	Plans
	Usage
	Ping(ctx context.Context) error
}

func YearMonth(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
