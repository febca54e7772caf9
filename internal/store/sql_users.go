// AngelaMos | 2026
// sql_users.go

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
)

const userColumns = `id, email, password_hash, oauth_provider, oauth_id, plan_id,
	is_admin, totp_secret, totp_enabled, created_at, updated_at`

func (s *SQLStore) CreateUser(ctx context.Context, u *User) error {
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if u.PlanID == "" {
		u.PlanID = DefaultPlanID
	}

	_, err := s.exec(ctx, "create user", `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.OAuthProvider, u.OAuthID, u.PlanID,
		u.IsAdmin, u.TOTPSecret, u.TOTPEnabled, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

func (s *SQLStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.get(ctx, "get user", &u,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.get(ctx, "get user by email", &u,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLStore) GetUserByOAuth(ctx context.Context, provider, oauthID string) (*User, error) {
	var u User
	err := s.get(ctx, "get user by oauth", &u,
		`SELECT `+userColumns+` FROM users WHERE oauth_provider = ? AND oauth_id = ?`,
		provider, oauthID)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLStore) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	return s.execOne(ctx, "update password", `
		UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC(), id)
}

func (s *SQLStore) UpdateUserPlan(ctx context.Context, id, planID string) error {
	return s.execOne(ctx, "update plan", `
		UPDATE users SET plan_id = ?, updated_at = ? WHERE id = ?`,
		planID, time.Now().UTC(), id)
}

func (s *SQLStore) SetUserTOTP(ctx context.Context, id string, secret *string, enabled bool) error {
	return s.execOne(ctx, "set totp", `
		UPDATE users SET totp_secret = ?, totp_enabled = ?, updated_at = ? WHERE id = ?`,
		secret, enabled, time.Now().UTC(), id)
}

// DeleteUser removes the user and everything they own in one transaction.
func (s *SQLStore) DeleteUser(ctx context.Context, id string) error {
	return core.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		for _, q := range []string{
			`DELETE FROM usage_logs WHERE user_id = ?`,
			`DELETE FROM usage_monthly WHERE user_id = ?`,
			`DELETE FROM api_keys WHERE user_id = ?`,
			`DELETE FROM connections WHERE user_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, tx.Rebind(q), id); err != nil {
				return fmt.Errorf("delete user data: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM users WHERE id = ?`), id)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("delete user: %w", core.ErrNotFound)
		}
		return nil
	})
}

func (s *SQLStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.get(ctx, "count users", &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, err
	}
	return n, nil
}
