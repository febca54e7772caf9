// AngelaMos | 2026
// service.go

package apikey

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/config"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/store"
)

const touchTimeout = 5 * time.Second

type Store interface {
	store.APIKeys
	store.Users
	store.Connections
}

type Service struct {
	store   Store
	logger  *slog.Logger
	now     func() time.Time
	touches sync.WaitGroup
}

func NewService(st Store, logger *slog.Logger) *Service {
	return &Service{
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create returns the stored record and the only copy of the full key that
// will ever exist outside the caller.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*CreatedResponse, error) {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if req.ConnectionID != nil && *req.ConnectionID != "" {
		conn, err := s.store.GetConnection(ctx, *req.ConnectionID)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("get connection: %w", err)
		}
		if err != nil || conn.UserID != userID {
			return nil, core.ErrOwnershipMismatch
		}
	} else {
		req.ConnectionID = nil
	}

	var expiresAt *time.Time
	if req.ExpiresIn != "" {
		ttl, err := config.ParseTTL(req.ExpiresIn)
		if err != nil {
			return nil, core.ValidationError("expires_in must look like 30d, 12h or 90m")
		}
		t := s.now().Add(ttl).UTC()
		expiresAt = &t
	}

	gen, err := Generate()
	if err != nil {
		return nil, err
	}

	key := &store.APIKey{
		ID:           uuid.New().String(),
		UserID:       userID,
		ConnectionID: req.ConnectionID,
		Name:         req.Name,
		KeyHash:      gen.Hash,
		KeyPrefix:    gen.Prefix,
		Status:       store.APIKeyStatusActive,
		ExpiresAt:    expiresAt,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}

	s.logger.Info("api key created", "user_id", userID, "key_prefix", key.KeyPrefix)

	return &CreatedResponse{KeyResponse: ToKeyResponse(key), FullKey: gen.FullKey}, nil
}

// Validate looks a key up by its display prefix and confirms the full hash.
// Malformed, unknown and mismatched keys all fail as ErrKeyNotFound.
func (s *Service) Validate(ctx context.Context, fullKey string) (*Validation, error) {
	if !wellFormed(fullKey) {
		return nil, core.ErrKeyNotFound
	}

	key, err := s.store.GetAPIKeyByPrefix(ctx, fullKey[:PrefixLength])
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrKeyNotFound
		}
		return nil, fmt.Errorf("lookup api key: %w", err)
	}

	if !core.CompareTokenHash(fullKey, key.KeyHash) {
		return nil, core.ErrKeyNotFound
	}

	if key.Status != store.APIKeyStatusActive {
		return nil, core.ErrKeyRevoked
	}

	now := s.now()
	if key.ExpiresAt != nil && now.After(*key.ExpiresAt) {
		return nil, core.ErrKeyExpired
	}

	s.touch(key.ID, now)

	return &Validation{
		KeyID:        key.ID,
		UserID:       key.UserID,
		ConnectionID: key.ConnectionID,
		Prefix:       key.KeyPrefix,
	}, nil
}

// touch records last use off the request path with its own deadline.
func (s *Service) touch(id string, at time.Time) {
	s.touches.Add(1)
	go func() {
		defer s.touches.Done()

		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()

		if err := s.store.TouchAPIKey(ctx, id, at.UTC()); err != nil {
			s.logger.Warn("update api key last_used_at", "key_id", id, "error", err)
		}
	}()
}

// Wait blocks until pending last-used updates finish.
func (s *Service) Wait() {
	s.touches.Wait()
}

func (s *Service) List(ctx context.Context, userID string) ([]KeyResponse, error) {
	keys, err := s.store.ListAPIKeys(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}

	out := make([]KeyResponse, len(keys))
	for i := range keys {
		out[i] = ToKeyResponse(&keys[i])
	}
	return out, nil
}

func (s *Service) owned(ctx context.Context, userID, keyID string) (*store.APIKey, error) {
	key, err := s.store.GetAPIKey(ctx, keyID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NotFoundError("api key")
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	if key.UserID != userID {
		return nil, core.NotFoundError("api key")
	}
	return key, nil
}

// Revoke is irreversible. The row stays for audit until Delete.
func (s *Service) Revoke(ctx context.Context, userID, keyID string) error {
	key, err := s.owned(ctx, userID, keyID)
	if err != nil {
		return err
	}

	if err := s.store.RevokeAPIKey(ctx, key.ID); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	s.logger.Info("api key revoked", "user_id", userID, "key_prefix", key.KeyPrefix)
	return nil
}

func (s *Service) Delete(ctx context.Context, userID, keyID string) error {
	key, err := s.owned(ctx, userID, keyID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteAPIKey(ctx, key.ID); err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}

	s.logger.Info("api key deleted", "user_id", userID, "key_prefix", key.KeyPrefix)
	return nil
}
