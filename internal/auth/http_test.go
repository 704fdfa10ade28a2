// ABOUTME: Tests for the security gate HTTP middleware
// ABOUTME: Covers rejection bodies, body restoration and admission context

package auth

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_RejectsWithJSONError(t *testing.T) {
	gate := NewGate(GateConfig{Policy: newTestPolicy(t, "strict")})

	called := false
	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"method":"tools/list"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "missing API key", body["error"])
}

func TestMiddleware_AdmitsAndRestoresBody(t *testing.T) {
	gate := NewGate(GateConfig{Policy: newTestPolicy(t, "strict")})

	var gotBody string
	var gotAdmission *Admission
	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotAdmission = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	payload := `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, gotBody)
	require.NotNil(t, gotAdmission)
	assert.Equal(t, ViaAPIKey, gotAdmission.Via)
}

func TestMiddleware_NonceAdmissionCarriesCorrelationID(t *testing.T) {
	nonces := NewNonceStore(0)
	defer nonces.Close()
	gate := NewGate(GateConfig{Policy: newTestPolicy(t, "strict"), Nonces: nonces})

	token, err := nonces.Issue("corr-7", time.Minute)
	require.NoError(t, err)

	var gotAdmission *Admission
	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAdmission = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, DefaultRelayPath, strings.NewReader(`{"request_id":"corr-7"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, gotAdmission)
	assert.Equal(t, ViaNonce, gotAdmission.Via)
	assert.Equal(t, "corr-7", gotAdmission.CorrelationID)
}

func TestMiddleware_BodyTooLarge(t *testing.T) {
	gate := NewGate(GateConfig{})
	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", MaxBodySize+1)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMiddleware_LaxWrongKeyForbidden(t *testing.T) {
	gate := NewGate(GateConfig{Policy: newTestPolicy(t, "lax")})
	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
