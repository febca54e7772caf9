// AngelaMos | 2026
// dto.go

package auth

import (
	"time"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/store"
)

type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=128"`
}

type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type VerifyTOTPLoginRequest struct {
	PendingToken string `json:"pending_token" validate:"required"`
	Code         string `json:"code"          validate:"required,len=6,numeric"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"max=128"`
	NewPassword     string `json:"new_password"     validate:"required,min=8,max=128"`
}

type DeleteAccountRequest struct {
	Password string `json:"password" validate:"max=128"`
}

type EnableTOTPRequest struct {
	Secret string `json:"secret" validate:"required,max=128"`
	Code   string `json:"code"   validate:"required,len=6,numeric"`
}

type DisableTOTPRequest struct {
	Password string `json:"password" validate:"required,max=128"`
	Code     string `json:"code"     validate:"required,len=6,numeric"`
}

type UserResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PlanID        string    `json:"plan_id"`
	IsAdmin       bool      `json:"is_admin"`
	TOTPEnabled   bool      `json:"totp_enabled"`
	OAuthProvider *string   `json:"oauth_provider,omitempty"`
	HasPassword   bool      `json:"has_password"`
	CreatedAt     time.Time `json:"created_at"`
}

func ToUserResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		PlanID:        u.PlanID,
		IsAdmin:       u.IsAdmin,
		TOTPEnabled:   u.TOTPEnabled,
		OAuthProvider: u.OAuthProvider,
		HasPassword:   u.HasPassword(),
		CreatedAt:     u.CreatedAt,
	}
}

// LoginResult is either a full session or a pending step-up state.
type LoginResult struct {
	Token        string        `json:"token,omitempty"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
	RequiresTOTP bool          `json:"requires_totp"`
	PendingToken string        `json:"pending_token,omitempty"`
	User         *UserResponse `json:"user,omitempty"`
}

type MeResponse struct {
	User UserResponse `json:"user"`
	Plan *store.Plan  `json:"plan,omitempty"`
}

type TOTPSetupResponse struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}
