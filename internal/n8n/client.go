// AngelaMos | 2026
// client.go

package n8n

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/config"
)

const apiKeyHeader = "X-N8N-API-KEY"

var ErrUnreachable = errors.New("n8n instance unreachable")

// StatusError is returned when n8n answers with a non-2xx status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("n8n returned status %d", e.StatusCode)
}

type Workflow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Tags      []Tag     `json:"tags,omitempty"`
}

type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type WorkflowPage struct {
	Data       []Workflow `json:"data"`
	NextCursor *string    `json:"nextCursor,omitempty"`
}

// Client talks to the n8n public REST API. Calls are never retried; the
// caller sees the first failure.
type Client struct {
	http *http.Client
}

func NewClient(cfg config.N8NConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
	}
}

// NewClientWithHTTP lets tests and callers supply their own transport.
func NewClientWithHTTP(hc *http.Client) *Client {
	return &Client{http: hc}
}

func (c *Client) do(ctx context.Context, inst *Instance, path string, query url.Values, dst any) error {
	endpoint := inst.URL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, inst.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode}
	}

	if dst == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(dst); err != nil {
		return fmt.Errorf("decode n8n response: %w", err)
	}
	return nil
}

// Ping performs the connection test: an authenticated workflow listing
// limited to one row.
func (c *Client) Ping(ctx context.Context, inst *Instance) (time.Duration, error) {
	start := time.Now()
	err := c.do(ctx, inst, "/api/v1/workflows", url.Values{"limit": {"1"}}, nil)
	return time.Since(start), err
}

func (c *Client) ListWorkflows(
	ctx context.Context,
	inst *Instance,
	limit int,
	activeOnly bool,
) (*WorkflowPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if activeOnly {
		q.Set("active", "true")
	}

	var page WorkflowPage
	if err := c.do(ctx, inst, "/api/v1/workflows", q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) GetWorkflow(ctx context.Context, inst *Instance, id string) (*Workflow, error) {
	var wf Workflow
	if err := c.do(ctx, inst, "/api/v1/workflows/"+url.PathEscape(id), nil, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}
