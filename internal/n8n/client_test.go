// AngelaMos | 2026
// client_test.go

package n8n_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/config"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/n8n"
)

func fakeN8N(t *testing.T, apiKey string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/workflows", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-N8N-API-KEY") != apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(n8n.WorkflowPage{Data: []n8n.Workflow{
			{ID: "1", Name: "Daily report", Active: true},
			{ID: "2", Name: "Slack sync"},
		}})
	})
	mux.HandleFunc("GET /api/v1/workflows/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(n8n.Workflow{ID: r.PathValue("id"), Name: "Daily report"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestListWorkflows(t *testing.T) {
	srv := fakeN8N(t, "secret123")
	c := n8n.NewClient(config.N8NConfig{})

	page, err := c.ListWorkflows(context.Background(), &n8n.Instance{URL: srv.URL, APIKey: "secret123"}, 10, false)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "Daily report", page.Data[0].Name)

	wf, err := c.GetWorkflow(context.Background(), &n8n.Instance{URL: srv.URL, APIKey: "secret123"}, "42")
	require.NoError(t, err)
	assert.Equal(t, "42", wf.ID)
}

func TestPingRejectedKey(t *testing.T) {
	srv := fakeN8N(t, "secret123")
	c := n8n.NewClient(config.N8NConfig{})

	_, err := c.Ping(context.Background(), &n8n.Instance{URL: srv.URL, APIKey: "wrong"})

	var statusErr *n8n.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestPingUnreachable(t *testing.T) {
	srv := fakeN8N(t, "k")
	url := srv.URL
	srv.Close()

	_, err := n8n.NewClient(config.N8NConfig{}).Ping(context.Background(), &n8n.Instance{URL: url, APIKey: "k"})
	assert.ErrorIs(t, err, n8n.ErrUnreachable)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"https://n8n.example.com", "https://n8n.example.com", true},
		{"https://n8n.example.com/", "https://n8n.example.com", true},
		{" http://10.0.0.5:5678/base/ ", "http://10.0.0.5:5678/base", true},
		{"ftp://n8n.example.com", "", false},
		{"n8n.example.com", "", false},
		{"https://user:pw@n8n.example.com", "", false},
		{"://", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := n8n.NormalizeURL(tt.in)
			if !tt.ok {
				assert.ErrorIs(t, err, n8n.ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInstanceContext(t *testing.T) {
	_, ok := n8n.InstanceFromContext(context.Background())
	assert.False(t, ok)

	ctx := n8n.WithInstance(context.Background(), &n8n.Instance{URL: "https://x", APIKey: ""})
	_, ok = n8n.InstanceFromContext(ctx)
	assert.False(t, ok, "incomplete instance")

	ctx = n8n.WithInstance(context.Background(), &n8n.Instance{URL: "https://x", APIKey: "k", InstanceID: "c1"})
	inst, ok := n8n.InstanceFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "c1", inst.InstanceID)
}
