// ABOUTME: JSON-RPC 2.0 envelope types, error codes and the MCP method enumeration
// ABOUTME: Shared by the router and its HTTP transport

package mcp

import (
	"encoding/json"

	"github.com/google/jsonschema-go/jsonschema"
)

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response. Exactly one of Result
// and Error is set.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700 // not emitted; unparseable bodies surface as internal errors
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// sentinelID is the reply ID used when the request's ID is absent or
// unrecoverable.
var sentinelID = json.RawMessage("0")

// Method is a recognised JSON-RPC method.
type Method int

const (
	MethodUnknown Method = iota
	MethodInitialize
	MethodInitialized
	MethodToolsList
	MethodToolsCall
)

var methodNames = map[string]Method{
	"initialize":                MethodInitialize,
	"notifications/initialized": MethodInitialized,
	"tools/list":                MethodToolsList,
	"tools/call":                MethodToolsCall,
}

// ParseMethod maps a wire method name to its Method. Unrecognised names
// yield MethodUnknown.
func ParseMethod(name string) Method {
	return methodNames[name]
}

func (m Method) String() string {
	for name, v := range methodNames {
		if v == m {
			return name
		}
	}
	return "unknown"
}

// MCP-specific types

// MCPToolInfo represents an MCP tool definition.
type MCPToolInfo struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"inputSchema"`
}

// MCPListToolsResult is the result for tools/list.
type MCPListToolsResult struct {
	Tools []MCPToolInfo `json:"tools"`
}

// MCPCallToolParams are the params for tools/call.
type MCPCallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPCallToolResult is the result for tools/call.
type MCPCallToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// MCPContent represents content in a tool result.
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// MCPInitializeParams are the params for initialize. Only the fields the
// server acts on are decoded.
type MCPInitializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
	ClientInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"clientInfo"`
}
