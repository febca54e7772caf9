// AngelaMos | 2026
// handler.go

package user

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

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Get("/plans", h.ListPlans)

	r.Route("/users", func(r chi.Router) {
		r.Use(authenticator)

		r.Get("/me/usage", h.GetUsage)
		r.Get("/me/dashboard", h.GetDashboard)
	})
}

// RegisterAdminRoutes registers admin-only user management endpoints.
func (h *Handler) RegisterAdminRoutes(
	r chi.Router,
	authenticator, adminOnly func(http.Handler) http.Handler,
) {
	r.Route("/admin/users", func(r chi.Router) {
		r.Use(authenticator)
		r.Use(adminOnly)

		r.Get("/{userID}", h.GetUser)
		r.Put("/{userID}/plan", h.UpdateUserPlan)
	})
}

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.Plans(r.Context())
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, plans)
}

func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Usage(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, resp)
}

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Dashboard(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, resp)
}

// GetUser returns a specific user by ID (admin only).
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, ToAdminUserResponse(u))
}

// UpdateUserPlan moves a user to another plan (admin only).
func (h *Handler) UpdateUserPlan(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserPlanRequest
	if !core.Bind(w, r, h.validator, &req) {
		return
	}

	u, err := h.service.UpdateUserPlan(r.Context(), chi.URLParam(r, "userID"), req.PlanID)
	if err != nil {
		core.JSONError(w, err)
		return
	}

	core.OK(w, ToAdminUserResponse(u))
}
