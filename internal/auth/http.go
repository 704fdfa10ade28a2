// ABOUTME: HTTP middleware running the security gate before protocol handlers
// ABOUTME: Reads the full body once, evaluates the gate, and restores the body

package auth

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// MaxBodySize is the maximum request body the gate will buffer (1MB).
const MaxBodySize = 1 << 20

// ExtractBearer extracts a bearer token from an Authorization header value.
// present is false when the header is missing or uses another scheme; a
// "Bearer" header with no token is present with an empty token.
func ExtractBearer(authHeader string) (token string, present bool) {
	if authHeader == "" {
		return "", false
	}
	scheme, rest, _ := strings.Cut(authHeader, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// Middleware returns an HTTP middleware that evaluates the gate for every
// request. Admitted requests continue with an Admission in their context and
// the body restored; rejected requests get a JSON error with the gate status.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize+1))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		if len(body) > MaxBodySize {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}

		decision := g.Evaluate(Request{
			Method:     r.Method,
			Path:       r.URL.Path,
			Header:     r.Header,
			RemoteAddr: r.RemoteAddr,
			Body:       body,
		})
		if !decision.Allowed {
			g.logger.Warn("request rejected by security gate",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"status", decision.Status,
				"reason", decision.Message,
			)
			writeJSONError(w, decision.Status, decision.Message)
			return
		}

		g.logger.Debug("request admitted",
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"via", decision.Via,
		)

		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		ctx := WithAdmission(r.Context(), &Admission{
			Via:           decision.Via,
			ClientAddr:    r.RemoteAddr,
			CorrelationID: decision.CorrelationID,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeJSONError writes {"error": message} with the given status.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
