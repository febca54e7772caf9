// AngelaMos | 2026
// dto.go

package connection

import (
	"time"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/store"
)

type CreateRequest struct {
	Name      string `json:"name"        validate:"required,min=1,max=100"`
	N8NURL    string `json:"n8n_url"     validate:"required,max=2048"`
	N8NAPIKey string `json:"n8n_api_key" validate:"required,max=1024"`
}

type UpdateRequest struct {
	Name      *string `json:"name"        validate:"omitempty,min=1,max=100"`
	N8NURL    *string `json:"n8n_url"     validate:"omitempty,max=2048"`
	N8NAPIKey *string `json:"n8n_api_key" validate:"omitempty,max=1024"`
}

// Response never carries the n8n key or its ciphertext.
type Response struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	N8NURL       string     `json:"n8n_url"`
	Status       string     `json:"status"`
	LastTestedAt *time.Time `json:"last_tested_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func ToResponse(c *store.Connection) Response {
	return Response{
		ID:           c.ID,
		Name:         c.Name,
		N8NURL:       c.N8NURL,
		Status:       c.Status,
		LastTestedAt: c.LastTestedAt,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func ToResponses(conns []store.Connection) []Response {
	out := make([]Response, len(conns))
	for i := range conns {
		out[i] = ToResponse(&conns[i])
	}
	return out
}

type TestResult struct {
	OK        bool   `json:"ok"`
	Status    string `json:"status"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message"`
	LatencyMS int64  `json:"latency_ms"`
}
