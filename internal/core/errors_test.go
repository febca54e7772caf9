// AngelaMos | 2026
// errors_test.go

package core_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		code   string
		status int
	}{
		{core.ErrInvalidCredentials, "INVALID_CREDENTIALS", http.StatusUnauthorized},
		{fmt.Errorf("wrapped: %w", core.ErrConnectionLimit), "CONNECTION_LIMIT_REACHED", http.StatusForbidden},
		{core.ErrAlreadyRegistered, "ALREADY_REGISTERED", http.StatusConflict},
		{core.ErrDailyLimitExceeded, "DAILY_LIMIT", http.StatusTooManyRequests},
		{core.ErrKeyRevoked, "API_KEY_REVOKED", http.StatusUnauthorized},
		{core.ErrIntegrityCheck, "INTERNAL_ERROR", http.StatusInternalServerError},
		{core.NotFoundError("connection"), "NOT_FOUND", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			appErr := core.Classify(tt.err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, tt.status, appErr.StatusCode)
		})
	}

	assert.Nil(t, core.Classify(errors.New("boom")))
}

func TestJSONErrorHidesUnknownErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	core.JSONError(rec, errors.New("pq: connection refused to 10.0.0.3"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
}
