// AngelaMos | 2026
// handler.go

package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/middleware"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes mounts /auth. throttle guards the credential-accepting
// endpoints against brute force.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator, throttle func(http.Handler) http.Handler,
) {
	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(throttle)
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/totp/verify-login", h.VerifyTOTPLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticator)
			r.Get("/me", h.GetMe)
			r.Post("/change-password", h.ChangePassword)
			r.Delete("/account", h.DeleteAccount)
			r.Post("/totp/setup", h.SetupTOTP)
			r.Post("/totp/enable", h.EnableTOTP)
			r.Delete("/totp", h.DisableTOTP)
		})
	})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !core.Bind(w, r, h.validator, &req) {
		return
	}

	resp, err := h.service.Register(r.Context(), req)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.Created(w, resp)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !core.Bind(w, r, h.validator, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, resp)
}

func (h *Handler) VerifyTOTPLogin(w http.ResponseWriter, r *http.Request) {
	var req VerifyTOTPLoginRequest
	if !core.Bind(w, r, h.validator, &req) {
		return
	}

	resp, err := h.service.VerifyTOTPLogin(r.Context(), req.PendingToken, req.Code)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, resp)
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Me(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, resp)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !core.Bind(w, r, h.validator, &req) {
		return
	}

	err := h.service.ChangePassword(
		r.Context(),
		middleware.GetUserID(r.Context()),
		req.CurrentPassword,
		req.NewPassword,
	)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req DeleteAccountRequest
	if !core.Bind(w, r, h.validator, &req) {
		return
	}

	err := h.service.DeleteAccount(r.Context(), middleware.GetUserID(r.Context()), req.Password)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) SetupTOTP(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.SetupTOTP(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, resp)
}

func (h *Handler) EnableTOTP(w http.ResponseWriter, r *http.Request) {
	var req EnableTOTPRequest
	if !core.Bind(w, r, h.validator, &req) {
		return
	}

	err := h.service.EnableTOTP(
		r.Context(),
		middleware.GetUserID(r.Context()),
		req.Secret,
		req.Code,
	)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, map[string]bool{"totp_enabled": true})
}

func (h *Handler) DisableTOTP(w http.ResponseWriter, r *http.Request) {
	var req DisableTOTPRequest
	if !core.Bind(w, r, h.validator, &req) {
		return
	}

	err := h.service.DisableTOTP(
		r.Context(),
		middleware.GetUserID(r.Context()),
		req.Password,
		req.Code,
	)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, map[string]bool{"totp_enabled": false})
}
