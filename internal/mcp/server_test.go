// ABOUTME: Tests for the JSON-RPC router and its HTTP transport
// ABOUTME: Covers dispatch, malformed input, ID echoing, panics and auditing

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/editor-bridge/internal/tools"
)

type auditEntry struct {
	tool, rpcID, status, errMsg string
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (f *fakeRecorder) RecordToolCall(ctx context.Context, tool, rpcID, status, errMsg string, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, auditEntry{tool, rpcID, status, errMsg})
	return nil
}

func setupTestServer(t *testing.T) (*Server, *fakeRecorder) {
	t.Helper()
	registry, err := tools.NewRegistry(
		&tools.Tool{
			ID:          "t:ping",
			Name:        "ping",
			Description: "health",
			Handler: func(ctx context.Context, env *tools.Env, args tools.Arguments) (string, error) {
				return "pong: healthy", nil
			},
		},
		&tools.Tool{
			ID:          "t:echo",
			Name:        "echo",
			Description: "echo text",
			Schema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{"text": {Type: "string"}},
				Required:   []string{"text"},
			},
			Handler: func(ctx context.Context, env *tools.Env, args tools.Arguments) (string, error) {
				return args.String("text", ""), nil
			},
		},
		&tools.Tool{
			ID:   "t:fail",
			Name: "fail",
			Handler: func(ctx context.Context, env *tools.Env, args tools.Arguments) (string, error) {
				return "", errors.New("disk full")
			},
		},
		&tools.Tool{
			ID:   "t:panic",
			Name: "explode",
			Handler: func(ctx context.Context, env *tools.Env, args tools.Arguments) (string, error) {
				panic("kaboom")
			},
		},
	)
	require.NoError(t, err)

	recorder := &fakeRecorder{}
	s, err := NewServer(Config{
		Env:      &tools.Env{Registry: registry},
		Recorder: recorder,
		Version:  "1.2.3",
	})
	require.NoError(t, err)
	return s, recorder
}

func handle(t *testing.T, s *Server, body string) (int, JSONRPCResponse, map[string]any) {
	t.Helper()
	status, resp := s.Handle(context.Background(), []byte(body))

	// Round-trip through JSON to check the wire form.
	data, err := json.Marshal(resp)
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))

	_, hasResult := wire["result"]
	_, hasError := wire["error"]
	assert.True(t, hasResult != hasError, "exactly one of result and error: %s", data)
	assert.Equal(t, "2.0", wire["jsonrpc"])
	return status, resp, wire
}

func TestHandle_EchoesID(t *testing.T) {
	s, _ := setupTestServer(t)

	ids := []string{`1`, `42`, `"abc"`, `"req-7"`, `-3`, `1.5`}
	for _, id := range ids {
		for _, body := range []string{
			`{"jsonrpc":"2.0","id":` + id + `,"method":"tools/list"}`,
			`{"jsonrpc":"2.0","id":` + id + `,"method":"no/such"}`,
			`{"jsonrpc":"2.0","id":` + id + `,"method":"tools/call","params":{"name":"missing"}}`,
			`{"jsonrpc":"2.0","id":` + id + `,"method":"tools/call","params":{"name":"fail"}}`,
		} {
			_, resp, _ := handle(t, s, body)
			assert.Equal(t, id, string(resp.ID), body)
		}
	}
}

func TestHandle_EmptyBody(t *testing.T) {
	s, _ := setupTestServer(t)
	for _, body := range []string{"", "   ", "\n"} {
		status, resp, _ := handle(t, s, body)
		assert.Equal(t, http.StatusBadRequest, status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, JSONRPCInvalidRequest, resp.Error.Code)
		assert.Equal(t, "0", string(resp.ID))
	}
}

func TestHandle_MissingMethod(t *testing.T) {
	s, _ := setupTestServer(t)

	status, resp, _ := handle(t, s, `{"jsonrpc":"2.0","id":9}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, JSONRPCInvalidRequest, resp.Error.Code)
	assert.Equal(t, "9", string(resp.ID))

	_, resp, _ = handle(t, s, `{}`)
	assert.Equal(t, JSONRPCInvalidRequest, resp.Error.Code)
	assert.Equal(t, "0", string(resp.ID))
}

func TestHandle_UnparseableBody(t *testing.T) {
	s, _ := setupTestServer(t)
	for _, body := range []string{`{"id":5,`, `not json`, `[1,2]`} {
		status, resp, _ := handle(t, s, body)
		assert.Equal(t, http.StatusInternalServerError, status, body)
		assert.Equal(t, JSONRPCInternalError, resp.Error.Code, body)
		assert.Equal(t, "0", string(resp.ID), body)
	}
}

func TestHandle_MistypedFields(t *testing.T) {
	s, _ := setupTestServer(t)

	tests := []struct {
		name    string
		body    string
		wantID  string
		wantMsg string
	}{
		{"numeric method", `{"jsonrpc":"2.0","id":7,"method":5}`, "7", "method must be a string"},
		{"object method", `{"id":"a","method":{"x":1}}`, `"a"`, "method must be a string"},
		{"numeric version", `{"jsonrpc":2,"id":3,"method":"ping"}`, "3", "invalid JSON-RPC version"},
		{"no id", `{"method":true}`, "0", "method must be a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp, _ := handle(t, s, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, JSONRPCInvalidRequest, resp.Error.Code)
			assert.Equal(t, tt.wantMsg, resp.Error.Message)
			assert.Equal(t, tt.wantID, string(resp.ID))
		})
	}
}

func TestHandle_InvalidEnvelope(t *testing.T) {
	s, _ := setupTestServer(t)

	status, resp, _ := handle(t, s, `{"jsonrpc":"1.0","id":1,"method":"tools/list"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, JSONRPCInvalidRequest, resp.Error.Code)

	status, resp, _ = handle(t, s, `{"jsonrpc":"2.0","id":{"a":1},"method":"tools/list"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, JSONRPCInvalidRequest, resp.Error.Code)
	assert.Equal(t, "0", string(resp.ID))

	// A missing version tag is tolerated.
	status, _, _ = handle(t, s, `{"id":1,"method":"tools/list"}`)
	assert.Equal(t, http.StatusOK, status)
}

func TestHandle_Initialize(t *testing.T) {
	s, _ := setupTestServer(t)

	status, _, wire := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"test"}}}`)
	assert.Equal(t, http.StatusOK, status)
	result := wire["result"].(map[string]any)
	assert.Equal(t, "2025-03-26", result["protocolVersion"])
	assert.Contains(t, result["capabilities"], "tools")
	info := result["serverInfo"].(map[string]any)
	assert.Equal(t, "editor-bridge", info["name"])
	assert.Equal(t, "1.2.3", info["version"])

	_, _, wire = handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"initialize","params":{"protocolVersion":"1999-01-01"}}`)
	assert.Equal(t, latestProtocolVersion, wire["result"].(map[string]any)["protocolVersion"])
}

func TestHandle_InitializedNotification(t *testing.T) {
	s, _ := setupTestServer(t)

	status, resp, wire := handle(t, s, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{}, wire["result"])
	assert.Equal(t, "0", string(resp.ID))
}

func TestHandle_ToolsList(t *testing.T) {
	s, _ := setupTestServer(t)

	status, resp, _ := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	assert.Equal(t, http.StatusOK, status)
	result := resp.Result.(MCPListToolsResult)
	assert.Len(t, result.Tools, s.registry.Len())
	assert.Equal(t, "ping", result.Tools[0].Name)
	assert.Equal(t, "object", result.Tools[1].InputSchema.Type)
}

func TestHandle_ToolsCall(t *testing.T) {
	s, recorder := setupTestServer(t)

	status, resp, _ := handle(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"ping","arguments":{}}}`)
	assert.Equal(t, http.StatusOK, status)
	result := resp.Result.(MCPCallToolResult)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	assert.Contains(t, result.Content[0].Text, "healthy")

	_, resp, _ = handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"echo","arguments":{"text":"hello"}}}`)
	assert.Equal(t, "hello", resp.Result.(MCPCallToolResult).Content[0].Text)

	require.Len(t, recorder.entries, 2)
	assert.Equal(t, auditEntry{"ping", "1", CallOK, ""}, recorder.entries[0])
	assert.Equal(t, auditEntry{"echo", "2", CallOK, ""}, recorder.entries[1])
}

func TestHandle_ToolsCallErrors(t *testing.T) {
	tests := []struct {
		name     string
		params   string
		status   int
		code     int
		contains string
		audit    string
	}{
		{"unknown tool", `{"name":"nope"}`, http.StatusNotFound, JSONRPCInvalidParams, `"nope"`, CallNotFound},
		{"missing name", `{}`, http.StatusBadRequest, JSONRPCInvalidParams, "name", ""},
		{"params not object", `[1]`, http.StatusBadRequest, JSONRPCInvalidParams, "params", ""},
		{"arguments not object", `{"name":"echo","arguments":"x"}`, http.StatusBadRequest, JSONRPCInvalidParams, "object", CallInvalid},
		{"schema violation", `{"name":"echo","arguments":{}}`, http.StatusBadRequest, JSONRPCInvalidParams, "echo", CallInvalid},
		{"handler error", `{"name":"fail"}`, http.StatusInternalServerError, JSONRPCInternalError, "disk full", CallError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, recorder := setupTestServer(t)
			status, resp, _ := handle(t, s, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":`+tt.params+`}`)
			assert.Equal(t, tt.status, status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Contains(t, resp.Error.Message, tt.contains)

			if tt.audit == "" {
				assert.Empty(t, recorder.entries)
				return
			}
			require.Len(t, recorder.entries, 1)
			assert.Equal(t, tt.audit, recorder.entries[0].status)
		})
	}
}

func TestHandle_UnknownMethod(t *testing.T) {
	s, _ := setupTestServer(t)
	status, resp, _ := handle(t, s, `{"jsonrpc":"2.0","id":3,"method":"resources/list"}`)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, JSONRPCMethodNotFound, resp.Error.Code)
}

func TestHandle_PanicIsContained(t *testing.T) {
	s, _ := setupTestServer(t)

	status, resp, _ := handle(t, s, `{"jsonrpc":"2.0","id":"p-1","method":"tools/call","params":{"name":"explode"}}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, JSONRPCInternalError, resp.Error.Code)
	assert.Equal(t, `"p-1"`, string(resp.ID))
	assert.Contains(t, resp.Error.Message, "kaboom")

	// The server keeps serving afterwards.
	status, _, _ = handle(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	assert.Equal(t, http.StatusOK, status)
}

func TestParseMethod(t *testing.T) {
	assert.Equal(t, MethodInitialize, ParseMethod("initialize"))
	assert.Equal(t, MethodInitialized, ParseMethod("notifications/initialized"))
	assert.Equal(t, MethodToolsList, ParseMethod("tools/list"))
	assert.Equal(t, MethodToolsCall, ParseMethod("tools/call"))
	assert.Equal(t, MethodUnknown, ParseMethod("tools/List"))
	assert.Equal(t, "tools/call", MethodToolsCall.String())
	assert.Equal(t, "unknown", MethodUnknown.String())
}

func TestServeHTTP(t *testing.T) {
	s, _ := setupTestServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux, nil)

	for _, path := range []string{"/", "/mcp"} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var resp map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Len(t, resp["result"].(map[string]any)["tools"], 4)
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeHTTP_BodyTooLarge(t *testing.T) {
	s, _ := setupTestServer(t)
	body := bytes.Repeat([]byte("x"), MaxRequestBodySize+1)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServeHTTP_ConcurrentRequests(t *testing.T) {
	s, _ := setupTestServer(t)
	srv := httptest.NewServer(s)
	defer srv.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			method := "ping"
			if i%2 == 0 {
				method = "explode"
			}
			body := `{"jsonrpc":"2.0","id":` + string(rune('0'+i%10)) + `,"method":"tools/call","params":{"name":"` + method + `"}}`
			resp, err := http.Post(srv.URL, "application/json", strings.NewReader(body))
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()
			if method == "ping" {
				assert.Equal(t, http.StatusOK, resp.StatusCode)
			} else {
				assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			}
		}(i)
	}
	wg.Wait()
}

func TestNewServer_RequiresRegistry(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)
	_, err = NewServer(Config{Env: &tools.Env{}})
	assert.Error(t, err)
}
