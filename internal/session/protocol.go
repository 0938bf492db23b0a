package session

import (
	"encoding/json"
	"strings"

	customErrors "github.com/YongpengFu/mcp-server/internal/common/errors"
)

// ProtocolVersion is the MCP revision this client negotiates
const ProtocolVersion = "2024-11-05"

const jsonrpcVersion = "2.0"

// JSON-RPC methods used by the session
const (
	MethodInitialize            = "initialize"
	MethodPing                  = "ping"
	MethodToolsList             = "tools/list"
	MethodToolsCall             = "tools/call"
	MethodResourcesList         = "resources/list"
	MethodResourceTemplatesList = "resources/templates/list"
	MethodResourcesRead         = "resources/read"
	MethodPromptsList           = "prompts/list"
	MethodPromptsGet            = "prompts/get"

	NotificationInitialized = "notifications/initialized"
	NotificationCancelled   = "notifications/cancelled"
)

// JSON-RPC error codes with a fixed meaning
const (
	codeMethodNotFound   = -32601
	codeInvalidParams    = -32602
	codeResourceNotFound = -32002
)

type outgoing struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  interface{}     `json:"params,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// incoming is any message a host may send: a response, a request or a notification
type incoming struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (m *incoming) hasID() bool {
	return len(m.ID) > 0 && string(m.ID) != "null"
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// decodeRPCError turns a JSON-RPC error into a typed error.
// A tagged message is restored as-is; otherwise the code decides and fallback covers the rest.
func decodeRPCError(e *rpcError, method string, fallback customErrors.Kind) error {
	if typed, ok := customErrors.Parse(e.Message); ok {
		return typed
	}

	kind := fallback
	switch e.Code {
	case codeInvalidParams:
		kind = customErrors.KindInvalidArguments
		switch {
		case method == MethodToolsCall && strings.Contains(e.Message, "not found"):
			kind = customErrors.KindUnknownTool
		case method == MethodResourcesRead && strings.Contains(strings.ToLower(e.Message), "no resource"):
			kind = customErrors.KindUnknownResource
		}
	case codeMethodNotFound:
		if method == MethodToolsCall {
			kind = customErrors.KindUnknownTool
		}
	case codeResourceNotFound:
		kind = customErrors.KindUnknownResource
	}

	return customErrors.NewSessionError(kind, e.Message).
		WithData("code", e.Code).
		WithData("method", method)
}
