// AngelaMos | 2026
// handler.go

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/apikey"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/config"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/middleware"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/n8n"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/quota"
	"github.com/carterperez-dev/n8n-mcp-gateway/internal/usage"
)

const (
	HeaderN8NKey      = "X-N8N-Key"
	HeaderN8NURL      = "X-N8N-URL"
	HeaderInstanceID  = "X-Instance-ID"
	defaultMaxBody    = 1 << 20
	defaultDispatchTO = 60 * time.Second
	tracerName        = "gateway"
)

type KeyValidator interface {
	Validate(ctx context.Context, fullKey string) (*apikey.Validation, error)
}

type QuotaChecker interface {
	Check(ctx context.Context, userID string) (*quota.Result, error)
}

type InstanceResolver interface {
	Resolve(ctx context.Context, connectionID string) (*n8n.Instance, error)
}

type Dispatcher interface {
	HandleMessage(ctx context.Context, raw json.RawMessage) mcp.JSONRPCMessage
}

type UsageRecorder interface {
	Record(ctx context.Context, e usage.Event)
}

type Deps struct {
	Keys        KeyValidator
	Quota       QuotaChecker
	Connections InstanceResolver
	Dispatcher  Dispatcher
	Usage       UsageRecorder
}

// Identity is who a gateway request acts for. Service-token callers have
// no user.
type Identity struct {
	UserID       string
	KeyID        string
	ConnectionID *string
	Service      bool
}

type Handler struct {
	deps         Deps
	serviceToken string
	maxBody      int64
	timeout      time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

func NewHandler(cfg config.GatewayConfig, deps Deps, logger *slog.Logger) *Handler {
	h := &Handler{
		deps:         deps,
		serviceToken: cfg.ServiceToken,
		maxBody:      cfg.MaxBodyBytes,
		timeout:      cfg.DispatchTimeout,
		logger:       logger,
		now:          time.Now,
	}
	if h.maxBody <= 0 {
		h.maxBody = defaultMaxBody
	}
	if h.timeout <= 0 {
		h.timeout = defaultDispatchTO
	}
	return h
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/mcp", h.ServeMCP)
}

// credential picks the gateway credential. A gateway key in the n8n key
// header wins; otherwise a bearer token is used, which leaves the n8n key
// header free to carry the downstream key.
func credential(r *http.Request) string {
	header := r.Header.Get(HeaderN8NKey)
	if apikey.LooksLikeKey(header) {
		return header
	}
	if bearer := middleware.ExtractToken(r); bearer != "" {
		return bearer
	}
	return header
}

func (h *Handler) ServeMCP(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	ctx, span := core.StartSpan(r.Context(), tracerName, "gateway.mcp")
	var spanErr error
	defer func() { core.EndSpan(span, spanErr) }()

	// an oversized body is only reported once the caller has authenticated
	body, readErr := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))

	var env envelope
	var parseErr error
	if readErr == nil {
		parseErr = json.Unmarshal(body, &env)
	}

	token := credential(r)
	if token == "" {
		writeRPCError(w, http.StatusUnauthorized, env.ID, codeAuth, "Authentication required", nil)
		return
	}

	id, ok := h.authenticate(ctx, w, token, env.ID)
	if !ok {
		return
	}
	if readErr != nil {
		spanErr = readErr
		writeRPCError(w, http.StatusRequestEntityTooLarge, nil, mcp.INVALID_REQUEST, "Request body too large", nil)
		return
	}
	if id.UserID != "" {
		span.SetAttributes(attribute.String("user.id", id.UserID))
	}

	switch {
	case parseErr != nil:
		writeRPCError(w, http.StatusBadRequest, nil, mcp.PARSE_ERROR, "Parse error", nil)
		return
	case env.JSONRPC != mcp.JSONRPC_VERSION || env.Method == "":
		writeRPCError(w, http.StatusBadRequest, env.ID, mcp.INVALID_REQUEST,
			"Invalid Request: jsonrpc must be \"2.0\" and method is required", nil)
		return
	}

	span.SetAttributes(
		attribute.String("rpc.method", env.Method),
		attribute.String("mcp.tool", env.toolName()),
	)

	inst, err := h.instance(ctx, r, id, token)
	if err != nil {
		spanErr = err
		h.record(ctx, id, env.toolName(), false, "instance resolution failed", start)
		if errors.Is(err, n8n.ErrInvalidURL) {
			writeRPCError(w, http.StatusBadRequest, env.ID, mcp.INVALID_PARAMS, "Invalid X-N8N-URL header", nil)
			return
		}
		h.logger.Error("resolve n8n instance", "error", err, "user_id", id.UserID)
		writeRPCError(w, http.StatusInternalServerError, env.ID, mcp.INTERNAL_ERROR, "Internal error", nil)
		return
	}

	dctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if inst != nil {
		dctx = n8n.WithInstance(dctx, inst)
	}

	reply := h.deps.Dispatcher.HandleMessage(dctx, body)
	if reply == nil {
		h.record(ctx, id, env.toolName(), true, "", start)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	out, err := json.Marshal(reply)
	if err != nil {
		spanErr = err
		h.record(ctx, id, env.toolName(), false, "encode reply", start)
		writeRPCError(w, http.StatusInternalServerError, env.ID, mcp.INTERNAL_ERROR, "Internal error", nil)
		return
	}

	success, errMsg := outcome(out)
	h.record(ctx, id, env.toolName(), success, errMsg, start)
	span.SetAttributes(attribute.Bool("mcp.success", success))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out) //nolint:errcheck // client gone
}

// authenticate writes the rejection itself and reports false when the
// request must stop.
func (h *Handler) authenticate(
	ctx context.Context,
	w http.ResponseWriter,
	token string,
	rpcID json.RawMessage,
) (*Identity, bool) {
	if apikey.LooksLikeKey(token) {
		return h.authenticateKey(ctx, w, token, rpcID)
	}

	if h.serviceToken != "" && core.ConstantTimeEqual(token, h.serviceToken) {
		return &Identity{Service: true}, true
	}

	writeRPCError(w, http.StatusUnauthorized, rpcID, codeAuth, "Invalid authentication", nil)
	return nil, false
}

func (h *Handler) authenticateKey(
	ctx context.Context,
	w http.ResponseWriter,
	token string,
	rpcID json.RawMessage,
) (*Identity, bool) {
	v, err := h.deps.Keys.Validate(ctx, token)
	if err != nil {
		if appErr := core.Classify(err); appErr != nil && appErr.StatusCode == http.StatusUnauthorized {
			writeRPCError(w, http.StatusUnauthorized, rpcID, codeAuth, appErr.Message,
				map[string]string{"code": appErr.Code})
			return nil, false
		}
		h.logger.Error("validate api key", "error", err)
		writeRPCError(w, http.StatusInternalServerError, rpcID, mcp.INTERNAL_ERROR, "Internal error", nil)
		return nil, false
	}

	res, err := h.deps.Quota.Check(ctx, v.UserID)
	if err != nil {
		if errors.Is(err, core.ErrAccountNotFound) {
			writeRPCError(w, http.StatusUnauthorized, rpcID, codeAuth, "Invalid authentication", nil)
			return nil, false
		}
		h.logger.Error("check quota", "error", err, "user_id", v.UserID)
		writeRPCError(w, http.StatusInternalServerError, rpcID, mcp.INTERNAL_ERROR, "Internal error", nil)
		return nil, false
	}

	now := h.now()
	quota.SetHeaders(w, res, now)

	if !res.Allowed {
		appErr := core.Classify(res.Err())
		h.logger.Info("gateway request throttled", "user_id", v.UserID, "reason", res.Reason)
		writeRPCError(w, http.StatusTooManyRequests, rpcID, codeAuth, appErr.Message, map[string]any{
			"code":        res.Reason,
			"retry_after": int(res.RetryAfter(now).Seconds()),
		})
		return nil, false
	}

	return &Identity{
		UserID:       v.UserID,
		KeyID:        v.KeyID,
		ConnectionID: v.ConnectionID,
	}, true
}

// instance picks the downstream n8n credentials. A bound connection wins;
// otherwise the caller may supply URL and key headers, provided the key is
// neither a gateway key nor the credential just used. Nil means the tools
// will report that no instance is configured.
func (h *Handler) instance(
	ctx context.Context,
	r *http.Request,
	id *Identity,
	token string,
) (*n8n.Instance, error) {
	if id.ConnectionID != nil {
		inst, err := h.deps.Connections.Resolve(ctx, *id.ConnectionID)
		switch {
		case err == nil:
			return inst, nil
		case !errors.Is(err, core.ErrNotFound):
			return nil, err
		}
	}

	rawURL := r.Header.Get(HeaderN8NURL)
	key := r.Header.Get(HeaderN8NKey)
	if rawURL == "" || key == "" || key == token || apikey.LooksLikeKey(key) {
		return nil, nil
	}

	normalized, err := n8n.NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	return &n8n.Instance{
		URL:        normalized,
		APIKey:     key,
		InstanceID: r.Header.Get(HeaderInstanceID),
	}, nil
}

// record is a no-op for service-token callers, which have no tenant.
func (h *Handler) record(ctx context.Context, id *Identity, tool string, success bool, errMsg string, start time.Time) {
	if id == nil || id.UserID == "" || h.deps.Usage == nil {
		return
	}

	keyID := id.KeyID
	h.deps.Usage.Record(ctx, usage.Event{
		UserID:       id.UserID,
		APIKeyID:     &keyID,
		ConnectionID: id.ConnectionID,
		ToolName:     tool,
		Success:      success,
		ErrorMessage: errMsg,
		Duration:     h.now().Sub(start),
		At:           start,
	})
}
