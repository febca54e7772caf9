// AngelaMos | 2026
// service_test.go

package connection_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/config"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/connection"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/n8n"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/store"
)

type fixture struct {
	svc   *connection.Service
	store *store.MemoryStore
	enc   *core.Encryptor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	enc, err := core.NewEncryptor(strings.Repeat("7f", 32))
	require.NoError(t, err)

	st := store.NewMemoryStore()
	require.NoError(t, st.CreateUser(context.Background(), &store.User{
		ID:           "alice",
		Email:        "alice@example.com",
		PasswordHash: new(string),
	}))
	require.NoError(t, st.CreateUser(context.Background(), &store.User{
		ID:           "mallory",
		Email:        "mallory@example.com",
		PasswordHash: new(string),
	}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := connection.NewService(st, enc, n8n.NewClient(config.N8NConfig{}), logger)

	return &fixture{svc: svc, store: st, enc: enc}
}

func TestCreateEncryptsKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conn, err := f.svc.Create(ctx, "alice", connection.CreateRequest{
		Name:      "prod",
		N8NURL:    "https://n8n.example.com",
		N8NAPIKey: "secret123",
	})
	require.NoError(t, err)

	stored, err := f.store.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret123", stored.N8NAPIKeyEncrypted)
	assert.NotContains(t, stored.N8NAPIKeyEncrypted, "secret123")
	assert.Equal(t, store.ConnectionStatusUntested, stored.Status)

	plain, err := f.enc.Decrypt(stored.N8NAPIKeyEncrypted)
	require.NoError(t, err)
	assert.Equal(t, "secret123", plain)

	body, err := json.Marshal(connection.ToResponse(stored))
	require.NoError(t, err)
	assert.NotContains(t, string(body), stored.N8NAPIKeyEncrypted)
	assert.NotContains(t, string(body), "secret123")

	inst, err := f.svc.Resolve(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret123", inst.APIKey)
	assert.Equal(t, "https://n8n.example.com", inst.URL)
	assert.Equal(t, conn.ID, inst.InstanceID)
}

func TestCreateEnforcesPlanLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := connection.CreateRequest{Name: "a", N8NURL: "https://a.example.com", N8NAPIKey: "k"}

	_, err := f.svc.Create(ctx, "alice", req)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "alice", req)
	require.ErrorIs(t, err, core.ErrConnectionLimit)
	assert.Equal(t, "CONNECTION_LIMIT_REACHED", core.Classify(err).Code)

	require.NoError(t, f.store.UpdateUserPlan(ctx, "alice", "pro"))
	_, err = f.svc.Create(ctx, "alice", req)
	assert.NoError(t, err)
}

func TestConcurrentCreatesRespectPlanLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := connection.CreateRequest{Name: "a", N8NURL: "https://a.example.com", N8NAPIKey: "k"}

	var created atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			if _, err := f.svc.Create(ctx, "alice", req); err == nil {
				created.Add(1)
			} else {
				assert.Equal(t, "CONNECTION_LIMIT_REACHED", core.Classify(err).Code)
			}
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	conns, err := f.svc.List(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, conns, 1)
}

func TestCreateRejectsBadURL(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), "alice", connection.CreateRequest{
		Name:      "bad",
		N8NURL:    "not a url",
		N8NAPIKey: "k",
	})
	require.Error(t, err)
	assert.Equal(t, "INVALID_URL", core.Classify(err).Code)
}

func TestOwnershipIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conn, err := f.svc.Create(ctx, "alice", connection.CreateRequest{
		Name: "prod", N8NURL: "https://n8n.example.com", N8NAPIKey: "k",
	})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, "mallory", conn.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.ErrorIs(t, f.svc.Delete(ctx, "mallory", conn.ID), core.ErrNotFound)

	_, err = f.svc.Get(ctx, "alice", conn.ID)
	assert.NoError(t, err)
}

func TestUpdateReencrypts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conn, err := f.svc.Create(ctx, "alice", connection.CreateRequest{
		Name: "prod", N8NURL: "https://n8n.example.com", N8NAPIKey: "old-key",
	})
	require.NoError(t, err)
	before := conn.N8NAPIKeyEncrypted

	name, key := "renamed", "new-key"
	updated, err := f.svc.Update(ctx, "alice", conn.ID, connection.UpdateRequest{Name: &name, N8NAPIKey: &key})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.NotEqual(t, before, updated.N8NAPIKeyEncrypted)

	inst, err := f.svc.Resolve(ctx, conn.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-key", inst.APIKey)
}

func TestConnectionTest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/workflows" || r.Header.Get("X-N8N-API-KEY") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	t.Cleanup(srv.Close)
	require.NoError(t, f.store.UpdateUserPlan(ctx, "alice", "pro"))

	good, err := f.svc.Create(ctx, "alice", connection.CreateRequest{Name: "good", N8NURL: srv.URL, N8NAPIKey: "good"})
	require.NoError(t, err)
	bad, err := f.svc.Create(ctx, "alice", connection.CreateRequest{Name: "bad", N8NURL: srv.URL, N8NAPIKey: "bad"})
	require.NoError(t, err)

	res, err := f.svc.Test(ctx, "alice", good.ID)
	require.NoError(t, err)
	assert.True(t, res.OK)

	stored, err := f.store.GetConnection(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusActive, stored.Status)
	assert.NotNil(t, stored.LastTestedAt)

	res, err = f.svc.Test(ctx, "alice", bad.ID)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "CONNECTION_FAILED", res.Code)

	stored, err = f.store.GetConnection(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ConnectionStatusError, stored.Status)
}
