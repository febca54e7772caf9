// AngelaMos | 2026
// service.go

package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/auth"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/config"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/store"
)

const defaultTimeout = 10 * time.Second

// SignIner finishes a federated login exactly as a password login would.
type SignIner interface {
	SignIn(user *store.User) (*auth.LoginResult, error)
}

type provider struct {
	spec   ProviderSpec
	config *oauth2.Config
}

type Service struct {
	providers map[string]*provider
	users     store.Users
	signer    SignIner
	client    *http.Client
	logger    *slog.Logger
}

// NewService enables each spec whose credentials are configured. With no
// specs, GitHub and Google are used.
func NewService(
	cfg config.OAuthConfig,
	users store.Users,
	signer SignIner,
	logger *slog.Logger,
	specs ...ProviderSpec,
) *Service {
	if len(specs) == 0 {
		specs = []ProviderSpec{GitHubSpec(), GoogleSpec()}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	s := &Service{
		providers: make(map[string]*provider),
		users:     users,
		signer:    signer,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}

	for _, spec := range specs {
		creds := credentialsFor(cfg, spec.Name)
		if !creds.Configured() || spec.decode == nil {
			continue
		}

		callback := creds.CallbackURL
		if callback == "" {
			callback = cfg.FrontendURL + "/oauth/callback"
		}

		s.providers[spec.Name] = &provider{
			spec: spec,
			config: &oauth2.Config{
				ClientID:     creds.ClientID,
				ClientSecret: creds.ClientSecret,
				Endpoint:     spec.Endpoint,
				RedirectURL:  callback,
				Scopes:       spec.Scopes,
			},
		}
	}

	return s
}

func credentialsFor(cfg config.OAuthConfig, name string) config.OAuthProviderConfig {
	switch name {
	case GitHub:
		return cfg.GitHub
	case Google:
		return cfg.Google
	default:
		return config.OAuthProviderConfig{}
	}
}

// Providers lists enabled providers in stable order.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) lookup(name string) (*provider, error) {
	if name != GitHub && name != Google {
		return nil, core.NewAppError(
			core.ErrInvalidInput,
			"supported providers: github, google",
			http.StatusBadRequest,
			"INVALID_PROVIDER",
		)
	}

	p, ok := s.providers[name]
	if !ok {
		return nil, core.ErrProviderDisabled
	}
	return p, nil
}

// AuthorizationURL returns the consent-screen URL carrying state.
func (s *Service) AuthorizationURL(name, state string) (string, error) {
	p, err := s.lookup(name)
	if err != nil {
		return "", err
	}
	return p.config.AuthCodeURL(state), nil
}

// HandleCallback trades an authorization code for a signed-in account.
// Provider failures surface as ErrProviderExchange with no token material.
func (s *Service) HandleCallback(ctx context.Context, name, code string) (*auth.LoginResult, error) {
	p, err := s.lookup(name)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("oauth code exchange failed", "provider", name, "error", exchangeReason(err))
		return nil, fmt.Errorf("exchange code: %w", core.ErrProviderExchange)
	}

	profile, err := p.spec.decode(ctx, p.config.Client(ctx, token), &p.spec)
	if err != nil {
		s.logger.Warn("oauth profile fetch failed", "provider", name, "error", err)
		return nil, fmt.Errorf("fetch profile: %w", core.ErrProviderExchange)
	}

	user, err := s.resolveUser(ctx, name, profile)
	if err != nil {
		return nil, err
	}

	s.logger.Info("oauth login", "provider", name, "user_id", user.ID)
	return s.signer.SignIn(user)
}

// resolveUser never merges accounts: an email taken by another sign-in
// method is refused.
func (s *Service) resolveUser(ctx context.Context, name string, profile *Profile) (*store.User, error) {
	user, err := s.users.GetUserByOAuth(ctx, name, profile.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("get user by oauth: %w", err)
	}

	if _, err := s.users.GetUserByEmail(ctx, profile.Email); err == nil {
		return nil, core.ErrAlreadyRegistered
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	providerName, providerID := name, profile.ID
	user = &store.User{
		ID:            uuid.New().String(),
		Email:         profile.Email,
		OAuthProvider: &providerName,
		OAuthID:       &providerID,
		PlanID:        store.DefaultPlanID,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, core.ErrDuplicateKey) {
			return nil, core.ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("create oauth user: %w", err)
	}

	s.logger.Info("oauth user registered", "provider", name, "user_id", user.ID)
	return user, nil
}

// exchangeReason keeps provider error codes and drops response bodies.
func exchangeReason(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode != "" {
			return re.ErrorCode
		}
		if re.Response != nil {
			return fmt.Sprintf("status %d", re.Response.StatusCode)
		}
	}
	return "request failed"
}
