// AngelaMos | 2026
// rpc.go

package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
)

// codeAuth is the server-defined JSON-RPC code for credential and quota
// rejections.
const codeAuth = -32000

// envelope is the part of a JSON-RPC request the gateway inspects.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  struct {
		Name string `json:"name"`
	} `json:"params"`
}

// toolName labels usage rows: the tool for tools/call, else the method.
func (e *envelope) toolName() string {
	if e.Method == string(mcp.MethodToolsCall) && e.Params.Name != "" {
		return e.Params.Name
	}
	return e.Method
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcErrorResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   rpcErrorBody    `json:"error"`
}

func writeRPCError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string, data any) {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(rpcErrorResponse{ //nolint:errcheck // client gone
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      id,
		Error: rpcErrorBody{
			Code:    code,
			Message: message,
			Data:    data,
		},
	})
}

// outcome reads a dispatcher reply. A JSON-RPC error or a tool result
// flagged isError both count as failures.
func outcome(raw []byte) (bool, string) {
	var reply struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Result *struct {
			IsError bool `json:"isError"`
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return false, "unreadable dispatcher reply"
	}

	switch {
	case reply.Error != nil:
		return false, reply.Error.Message
	case reply.Result != nil && reply.Result.IsError:
		if len(reply.Result.Content) > 0 && reply.Result.Content[0].Text != "" {
			return false, truncate(reply.Result.Content[0].Text, 500)
		}
		return false, "tool returned an error"
	default:
		return true, ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
