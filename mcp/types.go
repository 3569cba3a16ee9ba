// Package mcp implements the Model Context Protocol surface of the server:
// JSON-RPC envelope handling, method routing, wire-boundary case
// translation, SSE frame streaming and the HTTP transport.
package mcp

import "encoding/json"

// ProtocolVersion is the MCP revision this server speaks.
const ProtocolVersion = "2025-06-18"

// Methods lists the JSON-RPC methods the dispatcher routes, in the order
// they are advertised.
var Methods = []string{
	"initialize",
	"tools/list",
	"tools/call",
	"resources/list",
	"resources/read",
	"prompts/list",
	"prompts/get",
	"ping",
	"logging/setLevel",
	"notifications/initialized",
	"notifications/cancel",
}

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeRequestCancelled is the conventional code for a request the
	// client cancelled before a result was produced.
	CodeRequestCancelled = -32800
)

// Request is an incoming JSON-RPC 2.0 envelope. ID is nil for
// notifications.
type Request struct {
	JSONRPC string                 `json:"jsonrpc"`
	ID      interface{}            `json:"id,omitempty"`
	Method  string                 `json:"method"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// IsNotification reports whether no response envelope is owed.
func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response is an outgoing JSON-RPC 2.0 envelope.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error is the JSON-RPC error member.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewResult builds a success envelope for id.
func NewResult(id, result interface{}) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

// NewError builds an error envelope for id.
func NewError(id interface{}, code int, message string, data interface{}) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message, Data: data},
	}
}

// ServerInfo identifies this server in initialize results.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// initializeResult is the initialize response shape.
type initializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ServerInfo      ServerInfo             `json:"serverInfo"`
}

func newInitializeResult(info ServerInfo) initializeResult {
	return initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]interface{}{
			"tools":     map[string]interface{}{"listChanged": false},
			"resources": map[string]interface{}{"subscribe": false, "listChanged": false},
			"prompts":   map[string]interface{}{"listChanged": false},
			"logging":   map[string]interface{}{},
		},
		ServerInfo: info,
	}
}

// decodeRequest parses one envelope, distinguishing malformed JSON from a
// structurally invalid request.
func decodeRequest(body []byte) (*Request, *Error) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &Error{Code: CodeParseError, Message: "parse error: " + err.Error()}
	}
	if req.Method == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "method: required"}
	}
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return nil, &Error{Code: CodeInvalidParams, Message: "jsonrpc: unsupported version " + req.JSONRPC}
	}
	return &req, nil
}
