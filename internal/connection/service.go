// AngelaMos | 2026
// service.go

package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/n8n"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/store"
)

const defaultMaxConnections = 1

type Store interface {
	store.Connections
	store.Users
	store.Plans
}

// Sealer encrypts n8n keys at rest.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}

type Pinger interface {
	Ping(ctx context.Context, inst *n8n.Instance) (time.Duration, error)
}

type Service struct {
	store  Store
	sealer Sealer
	pinger Pinger
	logger *slog.Logger
	now    func() time.Time
}

func NewService(st Store, sealer Sealer, pinger Pinger, logger *slog.Logger) *Service {
	return &Service{
		store:  st,
		sealer: sealer,
		pinger: pinger,
		logger: logger,
		now:    time.Now,
	}
}

var errInvalidURL = core.NewAppError(
	core.ErrInvalidInput,
	"invalid n8n URL format",
	http.StatusBadRequest,
	"INVALID_URL",
)

func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*store.Connection, error) {
	url, err := n8n.NormalizeURL(req.N8NURL)
	if err != nil {
		return nil, errInvalidURL
	}

	limit, err := s.maxConnections(ctx, userID)
	if err != nil {
		return nil, err
	}

	sealed, err := s.sealer.Encrypt(req.N8NAPIKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt n8n key: %w", err)
	}

	conn := &store.Connection{
		ID:                 uuid.New().String(),
		UserID:             userID,
		Name:               req.Name,
		N8NURL:             url,
		N8NAPIKeyEncrypted: sealed,
		Status:             store.ConnectionStatusUntested,
	}
	err = s.store.CreateConnectionWithinLimit(ctx, conn, limit)
	if errors.Is(err, core.ErrConnectionLimit) {
		return nil, core.NewAppError(
			core.ErrConnectionLimit,
			fmt.Sprintf("you can only have %d connection(s) on your plan", limit),
			http.StatusForbidden,
			"CONNECTION_LIMIT_REACHED",
		)
	}
	if err != nil {
		return nil, fmt.Errorf("create connection: %w", err)
	}

	s.logger.Info("connection created", "user_id", userID, "connection_id", conn.ID)
	return conn, nil
}

// maxConnections falls back to one connection when the plan is unknown.
func (s *Service) maxConnections(ctx context.Context, userID string) (int, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get user: %w", err)
	}

	plan, err := s.store.GetPlan(ctx, user.PlanID)
	if errors.Is(err, core.ErrNotFound) {
		return defaultMaxConnections, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get plan: %w", err)
	}
	if plan.MaxConnections <= 0 {
		return defaultMaxConnections, nil
	}
	return plan.MaxConnections, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]store.Connection, error) {
	conns, err := s.store.ListConnections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return conns, nil
}

// Get treats another user's connection exactly like a missing one.
func (s *Service) Get(ctx context.Context, userID, id string) (*store.Connection, error) {
	conn, err := s.store.GetConnection(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.NotFoundError("connection")
		}
		return nil, fmt.Errorf("get connection: %w", err)
	}
	if conn.UserID != userID {
		return nil, core.NotFoundError("connection")
	}
	return conn, nil
}

func (s *Service) Update(
	ctx context.Context,
	userID, id string,
	req UpdateRequest,
) (*store.Connection, error) {
	conn, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		conn.Name = *req.Name
	}
	if req.N8NURL != nil {
		url, err := n8n.NormalizeURL(*req.N8NURL)
		if err != nil {
			return nil, errInvalidURL
		}
		conn.N8NURL = url
	}
	if req.N8NAPIKey != nil {
		sealed, err := s.sealer.Encrypt(*req.N8NAPIKey)
		if err != nil {
			return nil, fmt.Errorf("encrypt n8n key: %w", err)
		}
		conn.N8NAPIKeyEncrypted = sealed
	}
	if req.N8NURL != nil || req.N8NAPIKey != nil {
		conn.Status = store.ConnectionStatusUntested
	}

	if err := s.store.UpdateConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("update connection: %w", err)
	}
	return conn, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteConnection(ctx, id); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	s.logger.Info("connection deleted", "user_id", userID, "connection_id", id)
	return nil
}

// Test probes the instance and records the outcome. A failed probe is a
// normal result, not an error.
func (s *Service) Test(ctx context.Context, userID, id string) (*TestResult, error) {
	conn, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	inst, err := s.instance(conn)
	if err != nil {
		return nil, err
	}

	latency, pingErr := s.pinger.Ping(ctx, inst)

	result := &TestResult{
		OK:        pingErr == nil,
		Status:    store.ConnectionStatusActive,
		Message:   "connection test successful",
		LatencyMS: latency.Milliseconds(),
	}

	var statusErr *n8n.StatusError
	switch {
	case pingErr == nil:
	case errors.As(pingErr, &statusErr):
		result.Status = store.ConnectionStatusError
		result.Code = "CONNECTION_FAILED"
		result.Message = statusErr.Error()
	default:
		result.Status = store.ConnectionStatusError
		result.Code = "CONNECTION_ERROR"
		result.Message = "could not connect to n8n instance"
	}

	if err := s.store.UpdateConnectionStatus(ctx, conn.ID, result.Status, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("update connection status: %w", err)
	}

	s.logger.Info("connection tested",
		"connection_id", conn.ID,
		"status", result.Status,
		"latency_ms", result.LatencyMS,
	)
	return result, nil
}

// Resolve loads a connection by id and decrypts its key for one request.
func (s *Service) Resolve(ctx context.Context, id string) (*n8n.Instance, error) {
	conn, err := s.store.GetConnection(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return s.instance(conn)
}

func (s *Service) instance(conn *store.Connection) (*n8n.Instance, error) {
	key, err := s.sealer.Decrypt(conn.N8NAPIKeyEncrypted)
	if err != nil {
		s.logger.Error("stored n8n key unreadable", "connection_id", conn.ID, "error", err)
		return nil, fmt.Errorf("decrypt connection %s: %w", conn.ID, err)
	}
	return &n8n.Instance{URL: conn.N8NURL, APIKey: key, InstanceID: conn.ID}, nil
}
