// AngelaMos | 2026
// oauth_test.go

package oauth_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/auth"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/config"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/oauth"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/store"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/totp"
)

type fakeGitHub struct {
	*httptest.Server
	userJSON   string
	emailsJSON string
	tokenFails bool
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()

	f := &fakeGitHub{
		userJSON:   `{"id": 4242, "login": "octocat", "email": null}`,
		emailsJSON: `[{"email":"old@example.com","primary":false,"verified":true},{"email":"octo@example.com","primary":true,"verified":true}]`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		if f.tokenFails || r.FormValue("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"bad_verification_code"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"gho_secret","token_type":"bearer"}`)
	})
	authed := func(body func() string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer gho_secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, body())
		}
	}
	mux.HandleFunc("GET /user", authed(func() string { return f.userJSON }))
	mux.HandleFunc("GET /user/emails", authed(func() string { return f.emailsJSON }))

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

type fixture struct {
	svc   *oauth.Service
	store *store.MemoryStore
	jwt   *auth.JWTManager
	gh    *fakeGitHub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gh := newFakeGitHub(t)
	st := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	jwt, err := auth.NewJWTManager(config.JWTConfig{
		Secret:    strings.Repeat("s", 40),
		ExpiresIn: "1h",
		Issuer:    "test",
		Audience:  "test",
	})
	require.NoError(t, err)
	signer := auth.NewService(st, jwt, totp.New("test"), auth.NewMemoryRedeemer(), logger)

	cfg := config.OAuthConfig{
		FrontendURL: "http://app.local",
		GitHub: config.OAuthProviderConfig{
			ClientID:     "client",
			ClientSecret: "secret",
			CallbackURL:  "http://api.local/v1/auth/oauth/github/callback",
		},
	}
	spec := oauth.GitHubSpec().WithEndpoints(
		gh.URL+"/authorize", gh.URL+"/token", gh.URL+"/user", gh.URL+"/user/emails",
	)

	return &fixture{
		svc:   oauth.NewService(cfg, st, signer, logger, spec, oauth.GoogleSpec()),
		store: st,
		jwt:   jwt,
		gh:    gh,
	}
}

func TestProviders(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, []string{"github"}, f.svc.Providers())

	u, err := f.svc.AuthorizationURL("github", "xyz")
	require.NoError(t, err)
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "xyz", parsed.Query().Get("state"))
	assert.Equal(t, "client", parsed.Query().Get("client_id"))
	assert.Equal(t, "user:email", parsed.Query().Get("scope"))

	_, err = f.svc.AuthorizationURL("google", "xyz")
	assert.ErrorIs(t, err, core.ErrProviderDisabled)

	_, err = f.svc.AuthorizationURL("gitlab", "xyz")
	require.Error(t, err)
	assert.Equal(t, "INVALID_PROVIDER", core.Classify(err).Code)
}

func TestCallbackCreatesThenReusesAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.HandleCallback(ctx, "github", "good-code")
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)

	claims, err := f.jwt.VerifySession(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, "octo@example.com", claims.Email)

	u, err := f.store.GetUserByOAuth(ctx, "github", "4242")
	require.NoError(t, err)
	assert.Equal(t, claims.UserID, u.ID)
	assert.False(t, u.HasPassword())

	again, err := f.svc.HandleCallback(ctx, "github", "good-code")
	require.NoError(t, err)
	claims2, err := f.jwt.VerifySession(ctx, again.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims2.UserID)

	n, err := f.store.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCallbackRefusesAccountMerge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hash := "x"
	require.NoError(t, f.store.CreateUser(ctx, &store.User{
		ID: "existing", Email: "octo@example.com", PasswordHash: &hash,
	}))

	_, err := f.svc.HandleCallback(ctx, "github", "good-code")
	assert.ErrorIs(t, err, core.ErrAlreadyRegistered)
}

func TestCallbackProviderFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.HandleCallback(ctx, "github", "bad-code")
	assert.ErrorIs(t, err, core.ErrProviderExchange)
	assert.NotContains(t, err.Error(), "bad_verification_code")

	f.gh.emailsJSON = `[]`
	_, err = f.svc.HandleCallback(ctx, "github", "good-code")
	assert.ErrorIs(t, err, core.ErrProviderExchange)

	_, err = f.svc.HandleCallback(ctx, "google", "good-code")
	assert.ErrorIs(t, err, core.ErrProviderDisabled)
}

func TestCallbackRejectsUnverifiedGitHubEmails(t *testing.T) {
	f := newFixture(t)
	f.gh.emailsJSON = `[{"email":"mallory@example.com","primary":true,"verified":false},` +
		`{"email":"spare@example.com","primary":false,"verified":true}]`

	_, err := f.svc.HandleCallback(context.Background(), "github", "good-code")
	assert.ErrorIs(t, err, core.ErrProviderExchange)
}

func TestCallbackUsesProfileEmailWhenPresent(t *testing.T) {
	f := newFixture(t)
	f.gh.userJSON = `{"id": 7, "login": "hubot", "email": "hubot@example.com"}`
	f.gh.emailsJSON = `not json`

	result, err := f.svc.HandleCallback(context.Background(), "github", "good-code")
	require.NoError(t, err)

	claims, err := f.jwt.VerifySession(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, "hubot@example.com", claims.Email)
}

func newRouter(f *fixture) chi.Router {
	r := chi.NewRouter()
	h := oauth.NewHandler(f.svc, oauth.HandlerConfig{FrontendURL: "http://app.local/"})
	h.RegisterRoutes(r, func(next http.Handler) http.Handler { return next })
	return r
}

func TestHandlerFlow(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/oauth/github", nil))
	require.Equal(t, http.StatusFound, w.Code)

	var state *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "oauth_state" {
			state = c
		}
	}
	require.NotNil(t, state)
	assert.True(t, state.HttpOnly)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, state.Value, loc.Query().Get("state"))

	req := httptest.NewRequest(http.MethodGet,
		"/auth/oauth/github/callback?code=good-code&state="+state.Value, nil)
	req.AddCookie(state)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code)

	loc, err = url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/oauth/callback", loc.Path)
	assert.NotEmpty(t, loc.Query().Get("token"))
	assert.Equal(t, "github", loc.Query().Get("provider"))
}

func TestHandlerCallbackErrors(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)

	cases := map[string]struct {
		query  string
		cookie string
		reason string
	}{
		"denied":         {"error=access_denied", "s", "oauth_denied"},
		"no code":        {"state=s", "s", "no_code"},
		"missing cookie": {"code=good-code&state=s", "", "invalid_state"},
		"state mismatch": {"code=good-code&state=s", "t", "invalid_state"},
		"bad code":       {"code=bad-code&state=s", "s", "oauth_failed"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/oauth/github/callback?"+tc.query, nil)
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "oauth_state", Value: tc.cookie})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, http.StatusFound, w.Code)
			loc, err := url.Parse(w.Header().Get("Location"))
			require.NoError(t, err)
			assert.Equal(t, "/login", loc.Path)
			assert.Equal(t, tc.reason, loc.Query().Get("error"))
		})
	}
}

func TestHandlerProvidersAndDisabled(t *testing.T) {
	f := newFixture(t)
	r := newRouter(f)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/oauth/providers", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Providers []string `json:"providers"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, []string{"github"}, body.Data.Providers)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/oauth/google", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
