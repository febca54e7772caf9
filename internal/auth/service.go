// AngelaMos | 2026
// service.go

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/store"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/totp"
)

// MaxTOTPAttempts wrong codes exhaust a pending token; the caller must log
// in again.
const MaxTOTPAttempts = 5

type UserStore interface {
	store.Users
	store.Plans
}

type Service struct {
	users    UserStore
	jwt      *JWTManager
	totp     *totp.Authenticator
	redeemer Redeemer
	logger   *slog.Logger
}

func NewService(
	users UserStore,
	jwt *JWTManager,
	authenticator *totp.Authenticator,
	redeemer Redeemer,
	logger *slog.Logger,
) *Service {
	return &Service{
		users:    users,
		jwt:      jwt,
		totp:     authenticator,
		redeemer: redeemer,
		logger:   logger,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*LoginResult, error) {
	if _, err := s.users.GetUserByEmail(ctx, req.Email); err == nil {
		return nil, core.ErrAlreadyRegistered
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := core.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &store.User{
		ID:           uuid.New().String(),
		Email:        req.Email,
		PasswordHash: &hash,
		PlanID:       store.DefaultPlanID,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, core.ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered", "user_id", user.ID)

	return s.issueSession(user)
}

// Login never reveals whether the email exists: unknown accounts and
// OAuth-only accounts pay for a full key derivation and fail the same way.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	user, err := s.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.VerifyPasswordTimingSafe(req.Password, nil)
			return nil, core.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if !core.VerifyPasswordTimingSafe(req.Password, user.PasswordHash) {
		return nil, core.ErrInvalidCredentials
	}

	return s.SignIn(user)
}

// SignIn finishes a primary authentication. Accounts with TOTP enabled get
// a pending token instead of a session.
func (s *Service) SignIn(user *store.User) (*LoginResult, error) {
	if user.TOTPEnabled {
		pending, err := s.jwt.IssuePending(user.ID, user.Email)
		if err != nil {
			return nil, fmt.Errorf("issue pending token: %w", err)
		}
		return &LoginResult{RequiresTOTP: true, PendingToken: pending}, nil
	}
	return s.issueSession(user)
}

func (s *Service) VerifyTOTPLogin(
	ctx context.Context,
	pendingToken, code string,
) (*LoginResult, error) {
	claims, err := s.jwt.VerifyPending(pendingToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, core.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	if !user.TOTPEnabled || user.TOTPSecret == nil {
		return nil, core.ErrTOTPNotEnabled
	}

	ttl := claims.ExpiresAt.Sub(s.jwt.now())
	if ttl <= 0 {
		ttl = PendingTokenTTL
	}

	failures, err := s.redeemer.Failures(ctx, claims.TokenID)
	if err != nil {
		return nil, fmt.Errorf("read pending token failures: %w", err)
	}
	if failures >= MaxTOTPAttempts {
		return nil, core.ErrTokenRevoked
	}

	if !s.totp.Verify(*user.TOTPSecret, code) {
		n, err := s.redeemer.Fail(ctx, claims.TokenID, ttl)
		if err != nil {
			return nil, fmt.Errorf("record pending token failure: %w", err)
		}
		if n >= MaxTOTPAttempts {
			s.logger.Warn("pending token exhausted", "user_id", user.ID)
		}
		return nil, core.ErrInvalidTOTPCode
	}

	redeemed, err := s.redeemer.Redeem(ctx, claims.TokenID, ttl)
	if err != nil {
		return nil, fmt.Errorf("redeem pending token: %w", err)
	}
	if !redeemed {
		s.logger.Warn("pending token replayed", "user_id", user.ID)
		return nil, core.ErrTokenRevoked
	}

	return s.issueSession(user)
}

func (s *Service) issueSession(user *store.User) (*LoginResult, error) {
	token, err := s.jwt.IssueSession(SessionClaims{
		UserID:  user.ID,
		Email:   user.Email,
		PlanID:  user.PlanID,
		IsAdmin: user.IsAdmin,
	})
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	expiresAt := s.jwt.now().Add(s.jwt.SessionTTL())
	resp := ToUserResponse(user)

	return &LoginResult{
		Token:     token,
		ExpiresAt: &expiresAt,
		User:      &resp,
	}, nil
}

func (s *Service) Me(ctx context.Context, userID string) (*MeResponse, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	resp := &MeResponse{User: ToUserResponse(user)}

	plan, err := s.users.GetPlan(ctx, user.PlanID)
	switch {
	case err == nil:
		resp.Plan = plan
	case !errors.Is(err, core.ErrNotFound):
		return nil, fmt.Errorf("get plan: %w", err)
	}

	return resp, nil
}

// ChangePassword requires the current password when one is set. OAuth-only
// accounts may set a first password this way.
func (s *Service) ChangePassword(
	ctx context.Context,
	userID, currentPassword, newPassword string,
) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if user.HasPassword() && !core.VerifyPassword(currentPassword, *user.PasswordHash) {
		return core.ErrInvalidCredentials
	}

	hash, err := core.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdateUserPassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.logger.Info("password changed", "user_id", userID)
	return nil
}

func (s *Service) DeleteAccount(ctx context.Context, userID, password string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if user.HasPassword() && !core.VerifyPassword(password, *user.PasswordHash) {
		return core.ErrInvalidCredentials
	}

	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	s.logger.Info("account deleted", "user_id", userID)
	return nil
}

// SetupTOTP returns a fresh secret. Nothing is persisted until EnableTOTP
// proves the caller's authenticator produces matching codes.
func (s *Service) SetupTOTP(ctx context.Context, userID string) (*TOTPSetupResponse, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	if user.TOTPEnabled {
		return nil, core.ErrTOTPAlreadyEnabled
	}

	key, err := s.totp.GenerateSecret(user.Email)
	if err != nil {
		return nil, err
	}

	return &TOTPSetupResponse{Secret: key.Secret, URI: key.URI}, nil
}

func (s *Service) EnableTOTP(ctx context.Context, userID, secret, code string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if user.TOTPEnabled {
		return core.ErrTOTPAlreadyEnabled
	}

	if !s.totp.Verify(secret, code) {
		return core.ErrInvalidTOTPCode
	}

	if err := s.users.SetUserTOTP(ctx, userID, &secret, true); err != nil {
		return fmt.Errorf("enable totp: %w", err)
	}

	s.logger.Info("totp enabled", "user_id", userID)
	return nil
}

func (s *Service) DisableTOTP(ctx context.Context, userID, password, code string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	if !user.TOTPEnabled || user.TOTPSecret == nil {
		return core.ErrTOTPNotEnabled
	}

	if !user.HasPassword() {
		return core.ErrNoPassword
	}

	if !core.VerifyPassword(password, *user.PasswordHash) {
		return core.ErrInvalidCredentials
	}

	if !s.totp.Verify(*user.TOTPSecret, code) {
		return core.ErrInvalidTOTPCode
	}

	if err := s.users.SetUserTOTP(ctx, userID, nil, false); err != nil {
		return fmt.Errorf("disable totp: %w", err)
	}

	s.logger.Info("totp disabled", "user_id", userID)
	return nil
}
