// AngelaMos | 2026
// sql_connections.go

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
)

const connectionColumns = `id, user_id, name, n8n_url, n8n_api_key_encrypted,
	status, last_tested_at, created_at, updated_at`

func (s *SQLStore) CreateConnection(ctx context.Context, c *Connection) error {
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Status == "" {
		c.Status = ConnectionStatusUntested
	}

	_, err := s.exec(ctx, "create connection", `
		INSERT INTO connections (`+connectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Name, c.N8NURL, c.N8NAPIKeyEncrypted,
		c.Status, c.LastTestedAt, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

// CreateConnectionWithinLimit counts and inserts in one transaction. On
// PostgreSQL the owner's row is locked first so concurrent creates for the
// same user serialize; SQLite runs on a single connection.
func (s *SQLStore) CreateConnectionWithinLimit(ctx context.Context, c *Connection, limit int) error {
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Status == "" {
		c.Status = ConnectionStatusUntested
	}

	return core.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		lock := `SELECT id FROM users WHERE id = ?`
		if tx.DriverName() == "pgx" {
			lock += ` FOR UPDATE`
		}
		var owner string
		err := tx.GetContext(ctx, &owner, tx.Rebind(lock), c.UserID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("create connection: %w", core.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}

		var n int
		err = tx.GetContext(ctx, &n, tx.Rebind(`SELECT COUNT(*) FROM connections WHERE user_id = ?`), c.UserID)
		if err != nil {
			return fmt.Errorf("count connections: %w", err)
		}
		if n >= limit {
			return fmt.Errorf("create connection: %w", core.ErrConnectionLimit)
		}

		_, err = tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO connections (`+connectionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			c.ID, c.UserID, c.Name, c.N8NURL, c.N8NAPIKeyEncrypted,
			c.Status, c.LastTestedAt, c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return fmt.Errorf("create connection: %w", core.ErrDuplicateKey)
			}
			return fmt.Errorf("create connection: %w", err)
		}
		return nil
	})
}

func (s *SQLStore) GetConnection(ctx context.Context, id string) (*Connection, error) {
	var c Connection
	err := s.get(ctx, "get connection", &c,
		`SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLStore) ListConnections(ctx context.Context, userID string) ([]Connection, error) {
	var conns []Connection
	err := s.db.SelectContext(ctx, &conns, s.db.Rebind(
		`SELECT `+connectionColumns+` FROM connections
		 WHERE user_id = ? ORDER BY created_at DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return conns, nil
}

func (s *SQLStore) UpdateConnection(ctx context.Context, c *Connection) error {
	c.UpdatedAt = time.Now().UTC()
	return s.execOne(ctx, "update connection", `
		UPDATE connections
		SET name = ?, n8n_url = ?, n8n_api_key_encrypted = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.N8NURL, c.N8NAPIKeyEncrypted, c.Status, c.UpdatedAt, c.ID)
}

func (s *SQLStore) UpdateConnectionStatus(ctx context.Context, id, status string, testedAt time.Time) error {
	return s.execOne(ctx, "update connection status", `
		UPDATE connections SET status = ?, last_tested_at = ?, updated_at = ? WHERE id = ?`,
		status, testedAt.UTC(), time.Now().UTC(), id)
}

func (s *SQLStore) DeleteConnection(ctx context.Context, id string) error {
	return s.execOne(ctx, "delete connection",
		`DELETE FROM connections WHERE id = ?`, id)
}
