// AngelaMos | 2026
// handler.go

package oauth

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
)

const (
	stateCookie     = "oauth_state"
	stateBytes      = 16
	defaultStateTTL = 10 * time.Minute
)

type HandlerConfig struct {
	FrontendURL  string
	StateTTL     time.Duration
	SecureCookie bool
}

type Handler struct {
	service *Service
	cfg     HandlerConfig
}

func NewHandler(service *Service, cfg HandlerConfig) *Handler {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = defaultStateTTL
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return &Handler{service: service, cfg: cfg}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	throttle func(http.Handler) http.Handler,
) {
	r.Route("/auth/oauth", func(r chi.Router) {
		r.Get("/providers", h.ListProviders)

		r.Group(func(r chi.Router) {
			r.Use(throttle)
			r.Get("/{provider}", h.Authorize)
			r.Get("/{provider}/callback", h.Callback)
		})
	})
}

func (h *Handler) ListProviders(w http.ResponseWriter, _ *http.Request) {
	core.OK(w, map[string][]string{"providers": h.service.Providers()})
}

func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	state, err := core.GenerateSecureToken(stateBytes)
	if err != nil {
		core.InternalServerError(w, err)
		return
	}

	target, err := h.service.AuthorizationURL(chi.URLParam(r, "provider"), state)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(h.cfg.StateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, target, http.StatusFound)
}

// Callback always answers with a redirect to the frontend, carrying either
// a token or an error code.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	q := r.URL.Query()

	expected := ""
	if c, err := r.Cookie(stateCookie); err == nil {
		expected = c.Value
	}
	h.clearState(w)

	switch {
	case q.Get("error") != "":
		h.fail(w, r, "oauth_denied")
		return
	case q.Get("code") == "":
		h.fail(w, r, "no_code")
		return
	case expected == "" || !core.ConstantTimeEqual(expected, q.Get("state")):
		h.fail(w, r, "invalid_state")
		return
	}

	result, err := h.service.HandleCallback(r.Context(), provider, q.Get("code"))
	if err != nil {
		code := "OAUTH_FAILED"
		if appErr := core.Classify(err); appErr != nil {
			code = appErr.Code
		}
		h.fail(w, r, strings.ToLower(code))
		return
	}

	params := url.Values{"provider": {provider}}
	if result.RequiresTOTP {
		params.Set("pending_token", result.PendingToken)
	} else {
		params.Set("token", result.Token)
	}

	http.Redirect(w, r, h.cfg.FrontendURL+"/oauth/callback?"+params.Encode(), http.StatusFound)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r,
		h.cfg.FrontendURL+"/login?"+url.Values{"error": {reason}}.Encode(),
		http.StatusFound,
	)
}

func (h *Handler) clearState(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
