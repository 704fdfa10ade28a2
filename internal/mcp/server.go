// ABOUTME: JSON-RPC protocol router exposing the tool registry over HTTP POST
// ABOUTME: Always answers with a well-formed envelope, even when a handler panics

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/tidwall/gjson"

	"github.com/2389/editor-bridge/internal/tools"
)

// Supported MCP protocol versions
var supportedProtocolVersions = map[string]bool{
	"2024-11-05": true,
	"2025-03-26": true,
	"2025-06-18": true,
	"2025-11-25": true,
}

// latestProtocolVersion is the version we advertise in initialize responses
const latestProtocolVersion = "2025-11-25"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// Tool call outcomes as recorded in the audit log.
const (
	CallOK       = "ok"
	CallError    = "error"
	CallInvalid  = "invalid"
	CallNotFound = "not_found"
)

// CallRecorder persists tool call outcomes for auditing.
type CallRecorder interface {
	RecordToolCall(ctx context.Context, tool, rpcID, status, errMsg string, duration time.Duration) error
}

// Config holds configuration for the MCP server.
type Config struct {
	Env      *tools.Env // must carry the Registry
	Recorder CallRecorder
	Logger   *slog.Logger
	Name     string
	Version  string
}

// Server routes JSON-RPC requests to the tool registry.
type Server struct {
	env      *tools.Env
	registry *tools.Registry
	recorder CallRecorder
	logger   *slog.Logger
	name     string
	version  string
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Env == nil || cfg.Env.Registry == nil {
		return nil, errors.New("registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := cfg.Name
	if name == "" {
		name = "editor-bridge"
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	return &Server{
		env:      cfg.Env,
		registry: cfg.Env.Registry,
		recorder: cfg.Recorder,
		logger:   logger,
		name:     name,
		version:  version,
	}, nil
}

// RegisterRoutes registers the JSON-RPC endpoints on the given ServeMux,
// wrapped by wrap (typically the security gate).
func (s *Server) RegisterRoutes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	var h http.Handler = s
	if wrap != nil {
		h = wrap(h)
	}
	mux.Handle("/{$}", h)
	mux.Handle("/mcp", h)
}

// ServeHTTP reads a JSON-RPC request from a POST body and writes the reply.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.writeResponse(w, failure(http.StatusBadRequest, JSONRPCInvalidRequest, "failed to read request body").response(sentinelID))
		return
	}
	if len(body) > MaxRequestBodySize {
		s.writeResponse(w, failure(http.StatusRequestEntityTooLarge, JSONRPCInvalidRequest, "request body too large").response(sentinelID))
		return
	}

	s.writeResponse(w, s.handle(r.Context(), body))
}

// reply is a JSON-RPC response paired with its HTTP status.
type reply struct {
	Status   int
	Response JSONRPCResponse
}

// rpcFailure is a protocol-level failure with its HTTP status.
type rpcFailure struct {
	status  int
	code    int
	message string
}

func failure(status, code int, message string) *rpcFailure {
	return &rpcFailure{status: status, code: code, message: message}
}

func (f *rpcFailure) response(id json.RawMessage) reply {
	return reply{
		Status: f.status,
		Response: JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      id,
			Error:   &JSONRPCError{Code: f.code, Message: f.message},
		},
	}
}

func success(id json.RawMessage, result any) reply {
	return reply{
		Status:   http.StatusOK,
		Response: JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result},
	}
}

// Handle turns a raw request body into a response and its HTTP status. It
// never panics: a panic in dispatch becomes an internal error carrying the ID
// recovered from body.
func (s *Server) Handle(ctx context.Context, body []byte) (int, JSONRPCResponse) {
	r := s.handle(ctx, body)
	return r.Status, r.Response
}

func (s *Server) handle(ctx context.Context, body []byte) (out reply) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("panic while handling request",
				"panic", p,
				"stack", string(debug.Stack()),
			)
			out = failure(http.StatusInternalServerError, JSONRPCInternalError,
				fmt.Sprintf("internal error: %v", p)).response(recoverID(body))
		}
	}()

	if len(bytes.TrimSpace(body)) == 0 {
		return failure(http.StatusBadRequest, JSONRPCInvalidRequest, "empty request body").response(sentinelID)
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		// An object with mistyped fields parsed fine; it is a bad envelope.
		if parsed := gjson.ParseBytes(body); gjson.ValidBytes(body) && parsed.IsObject() {
			return failure(http.StatusBadRequest, JSONRPCInvalidRequest,
				envelopeProblem(parsed)).response(recoverID(body))
		}
		return failure(http.StatusInternalServerError, JSONRPCInternalError,
			"internal error: request is not valid JSON").response(recoverID(body))
	}

	id, ok := replyID(req.ID)
	if !ok {
		return failure(http.StatusBadRequest, JSONRPCInvalidRequest, "id must be a string or a number").response(sentinelID)
	}
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return failure(http.StatusBadRequest, JSONRPCInvalidRequest, "invalid JSON-RPC version").response(id)
	}
	if req.Method == "" {
		return failure(http.StatusBadRequest, JSONRPCInvalidRequest, "missing method").response(id)
	}

	method := ParseMethod(req.Method)
	s.logger.Debug("MCP request", "method", req.Method, "id", string(id))

	var (
		result any
		fail   *rpcFailure
	)
	switch method {
	case MethodInitialize:
		result = s.handleInitialize(req)
	case MethodInitialized:
		result = struct{}{}
	case MethodToolsList:
		result = s.handleToolsList()
	case MethodToolsCall:
		result, fail = s.handleToolsCall(ctx, req, id)
	default:
		fail = failure(http.StatusNotFound, JSONRPCMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}

	if fail != nil {
		return fail.response(id)
	}
	return success(id, result)
}

// handleInitialize answers the MCP initialize handshake.
func (s *Server) handleInitialize(req JSONRPCRequest) any {
	var params MCPInitializeParams
	if len(req.Params) > 0 {
		// A malformed params object still gets the default handshake.
		_ = json.Unmarshal(req.Params, &params)
	}

	version := latestProtocolVersion
	if supportedProtocolVersions[params.ProtocolVersion] {
		version = params.ProtocolVersion
	}

	s.logger.Info("MCP client initialized",
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"protocol_version", version,
	)

	return map[string]any{
		"protocolVersion": version,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    s.name,
			"version": s.version,
		},
	}
}

// handleToolsList handles tools/list requests.
func (s *Server) handleToolsList() MCPListToolsResult {
	all := s.registry.All()
	result := MCPListToolsResult{Tools: make([]MCPToolInfo, len(all))}
	for i, t := range all {
		result.Tools[i] = MCPToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Schema,
		}
	}
	s.logger.Debug("tools/list", "count", len(all))
	return result
}

// handleToolsCall handles tools/call requests.
func (s *Server) handleToolsCall(ctx context.Context, req JSONRPCRequest, id json.RawMessage) (any, *rpcFailure) {
	var params MCPCallToolParams
	if len(req.Params) > 0 && string(req.Params) != "null" {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, failure(http.StatusBadRequest, JSONRPCInvalidParams, "invalid params")
		}
	}
	if params.Name == "" {
		return nil, failure(http.StatusBadRequest, JSONRPCInvalidParams, "tool name is required")
	}

	start := time.Now()
	tool := s.registry.ByName(params.Name)
	if tool == nil {
		s.record(ctx, params.Name, id, CallNotFound, "", start)
		return nil, failure(http.StatusNotFound, JSONRPCInvalidParams, fmt.Sprintf("tool %q not found", params.Name))
	}

	args := tools.Arguments{}
	if len(params.Arguments) > 0 && string(params.Arguments) != "null" {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			s.record(ctx, tool.Name, id, CallInvalid, "arguments must be an object", start)
			return nil, failure(http.StatusBadRequest, JSONRPCInvalidParams, "arguments must be an object")
		}
	}
	if err := s.registry.Validate(tool, args); err != nil {
		s.record(ctx, tool.Name, id, CallInvalid, err.Error(), start)
		return nil, failure(http.StatusBadRequest, JSONRPCInvalidParams,
			fmt.Sprintf("invalid arguments for tool %q: %v", tool.Name, err))
	}

	s.logger.Info("→ tools/call", "tool_name", tool.Name, "id", string(id))

	text, err := tool.Handler(ctx, s.env, args)
	if err != nil {
		s.logger.Warn("tool execution failed",
			"tool_name", tool.Name,
			"id", string(id),
			"error", err,
		)
		s.record(ctx, tool.Name, id, CallError, err.Error(), start)
		return nil, failure(http.StatusInternalServerError, JSONRPCInternalError,
			fmt.Sprintf("tool %q failed: %v", tool.Name, err))
	}

	s.logger.Info("← tools/call complete",
		"tool_name", tool.Name,
		"id", string(id),
		"duration", time.Since(start),
	)
	s.record(ctx, tool.Name, id, CallOK, "", start)
	return MCPCallToolResult{Content: []MCPContent{{Type: "text", Text: text}}}, nil
}

func (s *Server) record(ctx context.Context, tool string, id json.RawMessage, status, errMsg string, start time.Time) {
	if s.recorder == nil {
		return
	}
	// The client may already be gone; the audit entry should still land.
	ctx = context.WithoutCancel(ctx)
	if err := s.recorder.RecordToolCall(ctx, tool, string(id), status, errMsg, time.Since(start)); err != nil {
		s.logger.Warn("failed to record tool call", "tool_name", tool, "error", err)
	}
}

// writeResponse writes a reply with its HTTP status.
func (s *Server) writeResponse(w http.ResponseWriter, r reply) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(r.Status)
	if err := json.NewEncoder(w).Encode(r.Response); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}

// replyID validates a request ID and returns the ID to echo. Absent and null
// IDs map to the sentinel; anything but a string or number is invalid.
func replyID(raw json.RawMessage) (json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return sentinelID, true
	}
	switch r := gjson.ParseBytes(raw); r.Type {
	case gjson.String, gjson.Number:
		return raw, true
	default:
		return nil, false
	}
}

// envelopeProblem names the mistyped envelope field in a parsed object.
func envelopeProblem(obj gjson.Result) string {
	if m := obj.Get("method"); m.Exists() && m.Type != gjson.String {
		return "method must be a string"
	}
	if v := obj.Get("jsonrpc"); v.Exists() && v.Type != gjson.String {
		return "invalid JSON-RPC version"
	}
	return "invalid request envelope"
}

// recoverID extracts a usable ID from a raw body on a best-effort basis.
func recoverID(body []byte) json.RawMessage {
	if !gjson.ValidBytes(body) {
		return sentinelID
	}
	r := gjson.GetBytes(body, "id")
	switch r.Type {
	case gjson.String, gjson.Number:
		return json.RawMessage(r.Raw)
	default:
		return sentinelID
	}
}
