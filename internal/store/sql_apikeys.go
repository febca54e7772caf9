// AngelaMos | 2026
// sql_apikeys.go

package store

import (
	"context"
	"fmt"
	"time"
)

const apiKeyColumns = `id, user_id, connection_id, name, key_hash, key_prefix,
	scopes, status, last_used_at, expires_at, created_at`

func (s *SQLStore) CreateAPIKey(ctx context.Context, k *APIKey) error {
	k.CreatedAt = time.Now().UTC()
	if k.Status == "" {
		k.Status = APIKeyStatusActive
	}
	if k.Scopes == "" {
		k.Scopes = "[]"
	}

	_, err := s.exec(ctx, "create api key", `
		INSERT INTO api_keys (`+apiKeyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.UserID, k.ConnectionID, k.Name, k.KeyHash, k.KeyPrefix,
		k.Scopes, k.Status, k.LastUsedAt, k.ExpiresAt, k.CreatedAt,
	)
	return err
}

func (s *SQLStore) GetAPIKey(ctx context.Context, id string) (*APIKey, error) {
	var k APIKey
	err := s.get(ctx, "get api key", &k,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *SQLStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) (*APIKey, error) {
	var k APIKey
	err := s.get(ctx, "get api key by prefix", &k,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = ?`, prefix)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *SQLStore) ListAPIKeys(ctx context.Context, userID string) ([]APIKey, error) {
	var keys []APIKey
	err := s.db.SelectContext(ctx, &keys, s.db.Rebind(
		`SELECT `+apiKeyColumns+` FROM api_keys
		 WHERE user_id = ? ORDER BY created_at DESC`), userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

func (s *SQLStore) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, "touch api key",
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, at.UTC(), id)
}

func (s *SQLStore) RevokeAPIKey(ctx context.Context, id string) error {
	return s.execOne(ctx, "revoke api key",
		`UPDATE api_keys SET status = ? WHERE id = ?`, APIKeyStatusRevoked, id)
}

func (s *SQLStore) DeleteAPIKey(ctx context.Context, id string) error {
	return s.execOne(ctx, "delete api key",
		`DELETE FROM api_keys WHERE id = ?`, id)
}
