// AngelaMos | 2026
// service_test.go

package user_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/middleware"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/store"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/user"
)

func newService(t *testing.T) (*user.Service, *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()

	st := store.NewMemoryStore()
	require.NoError(t, st.CreateUser(ctx, &store.User{ID: "alice", Email: "alice@example.com"}))
	require.NoError(t, st.CreateUser(ctx, &store.User{ID: "root", Email: "root@example.com", IsAdmin: true}))

	for i, name := range []string{"a", "b", "c", "d"} {
		require.NoError(t, st.CreateConnection(ctx, &store.Connection{
			ID:                 "conn-" + name,
			UserID:             "alice",
			Name:               name,
			N8NURL:             "https://n8n.example.com",
			N8NAPIKeyEncrypted: strings.Repeat("0", i+1),
		}))
	}
	require.NoError(t, st.CreateAPIKey(ctx, &store.APIKey{
		ID: "key-1", UserID: "alice", Name: "laptop", KeyHash: "h", KeyPrefix: "n2f_000000000000",
	}))

	now := time.Now().UTC()
	for _, ok := range []bool{true, true, true, false} {
		status := "success"
		if !ok {
			status = "error"
		}
		require.NoError(t, st.InsertUsageLog(ctx, &store.UsageLog{
			ID: uuid.NewString(), UserID: "alice", ToolName: "tools/list", Status: status,
		}))
		require.NoError(t, st.IncrementMonthlyUsage(ctx, "alice", store.YearMonth(now), ok))
	}

	svc := user.NewService(st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.SetClock(func() time.Time { return now })
	return svc, st
}

func TestUsage(t *testing.T) {
	svc, _ := newService(t)

	resp, err := svc.Usage(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, "free", resp.Plan.ID)
	assert.Equal(t, 100, resp.Plan.DailyLimit)
	assert.Equal(t, 4, resp.Usage.Today.Requests)
	assert.Equal(t, 96, resp.Usage.Today.Remaining)
	assert.Equal(t, 4, resp.Usage.Month.Requests)
	assert.Equal(t, 1, resp.Usage.Month.Errors)
	assert.Equal(t, 75, resp.Usage.Month.SuccessRate)
	assert.Equal(t, user.Quantity{Used: 4, Max: 1}, resp.Resources.Connections)
	assert.Equal(t, 1, resp.Resources.APIKeys)
	assert.Len(t, resp.Recent, 4)
}

func TestUsageEmptyMonthReportsFullSuccess(t *testing.T) {
	svc, _ := newService(t)

	resp, err := svc.Usage(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Usage.Month.Requests)
	assert.Equal(t, 100, resp.Usage.Month.SuccessRate)
	assert.Empty(t, resp.Recent)
}

func TestDashboard(t *testing.T) {
	svc, _ := newService(t)

	resp, err := svc.Dashboard(context.Background(), "alice")
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.Equal(t, "Free", resp.User.Plan)
	assert.Equal(t, 4, resp.Stats.Connections)
	assert.Equal(t, 4, resp.Stats.RequestsToday)
	assert.Len(t, resp.RecentConnections, 3)

	_, err = svc.Dashboard(context.Background(), "ghost")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPlansDecodeFeatures(t *testing.T) {
	svc, _ := newService(t)

	plans, err := svc.Plans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, len(store.DefaultPlans))

	for _, p := range plans {
		assert.NotEmpty(t, p.Features, p.ID)
	}
}

func TestUpdateUserPlan(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	u, err := svc.UpdateUserPlan(ctx, "alice", "pro")
	require.NoError(t, err)
	assert.Equal(t, "pro", u.PlanID)

	_, err = svc.UpdateUserPlan(ctx, "alice", "platinum")
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", core.Classify(err).Code)

	_, err = svc.UpdateUserPlan(ctx, "ghost", "pro")
	assert.ErrorIs(t, err, core.ErrNotFound)

	stored, err := st.GetUserByID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "pro", stored.PlanID)
}

func fakeAuth(st *store.MemoryStore, id string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := st.GetUserByID(r.Context(), id)
			if err != nil {
				core.JSONError(w, core.ErrAccountNotFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(middleware.WithUser(r.Context(), u)))
		})
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	svc, st := newService(t)
	h := user.NewHandler(svc)

	for _, tc := range []struct {
		caller string
		status int
	}{
		{"alice", http.StatusForbidden},
		{"root", http.StatusOK},
	} {
		r := chi.NewRouter()
		h.RegisterAdminRoutes(r, fakeAuth(st, tc.caller), middleware.RequireAdmin)

		req := httptest.NewRequest(http.MethodPut, "/admin/users/alice/plan",
			strings.NewReader(`{"plan_id":"enterprise"}`))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, tc.status, w.Code, tc.caller)
	}

	u, err := st.GetUserByID(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "enterprise", u.PlanID)
}

func TestPlansRouteIsPublic(t *testing.T) {
	svc, st := newService(t)
	r := chi.NewRouter()
	user.NewHandler(svc).RegisterRoutes(r, fakeAuth(st, "nobody"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/plans", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool                `json:"success"`
		Data    []user.PlanResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.Data)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/users/me/usage", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
