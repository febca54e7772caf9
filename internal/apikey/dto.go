// AngelaMos | 2026
// dto.go

package apikey

import (
	"time"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/store"
)

type CreateRequest struct {
	Name         string  `json:"name"          validate:"required,min=1,max=100"`
	ConnectionID *string `json:"connection_id" validate:"omitempty,max=64"`
	ExpiresIn    string  `json:"expires_in"    validate:"omitempty,max=16"`
}

// KeyResponse is the listing shape. The hash never leaves the service.
type KeyResponse struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	KeyPrefix    string     `json:"key_prefix"`
	ConnectionID *string    `json:"connection_id"`
	Status       string     `json:"status"`
	LastUsedAt   *time.Time `json:"last_used_at"`
	ExpiresAt    *time.Time `json:"expires_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

func ToKeyResponse(k *store.APIKey) KeyResponse {
	return KeyResponse{
		ID:           k.ID,
		Name:         k.Name,
		KeyPrefix:    k.KeyPrefix,
		ConnectionID: k.ConnectionID,
		Status:       k.Status,
		LastUsedAt:   k.LastUsedAt,
		ExpiresAt:    k.ExpiresAt,
		CreatedAt:    k.CreatedAt,
	}
}

type CreatedResponse struct {
	KeyResponse
	FullKey string `json:"full_key"`
}

// Validation is the identity a machine key resolves to.
type Validation struct {
	KeyID        string
	UserID       string
	ConnectionID *string
	Prefix       string
}
