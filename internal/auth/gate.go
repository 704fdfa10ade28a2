// ABOUTME: Security gate evaluating nonces, API keys and client addresses per request
// ABOUTME: Pure per-request decision; the only side effect is consuming a nonce

package auth

import (
	"log/slog"
	"net/http"

	"github.com/tidwall/gjson"
)

// DefaultRelayPath is the route on which the editor delivers correlated replies.
const DefaultRelayPath = "/vscode-response"

// NonceConsumer consumes single-use nonces.
type NonceConsumer interface {
	Consume(correlationID, token string) bool
}

// Request is the subset of an inbound request the gate inspects.
type Request struct {
	Method     string
	Path       string
	Header     http.Header
	RemoteAddr string
	Body       []byte
}

// Decision is the gate's verdict. A rejected decision carries the HTTP status
// and message to return to the client.
type Decision struct {
	Allowed bool
	Status  int
	Message string
	Via     Via
	// CorrelationID is the relay request ID a nonce was consumed for. Only
	// set when Via is ViaNonce.
	CorrelationID string
}

func admit(via Via) Decision {
	return Decision{Allowed: true, Status: http.StatusOK, Via: via}
}

func reject(status int, message string) Decision {
	return Decision{Status: status, Message: message}
}

// GateConfig contains configuration options for the Gate.
type GateConfig struct {
	Policy    *Policy // nil means open mode
	Nonces    NonceConsumer
	RelayPath string
	Logger    *slog.Logger
}

// Gate validates inbound requests against a Policy.
type Gate struct {
	policy    *Policy
	nonces    NonceConsumer
	relayPath string
	logger    *slog.Logger
}

// NewGate creates a Gate with the given configuration.
func NewGate(cfg GateConfig) *Gate {
	relayPath := cfg.RelayPath
	if relayPath == "" {
		relayPath = DefaultRelayPath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		policy:    cfg.Policy,
		nonces:    cfg.Nonces,
		relayPath: relayPath,
		logger:    logger,
	}
}

// Mode returns the effective policy mode.
func (g *Gate) Mode() Mode {
	return ModeOf(g.policy)
}

// Evaluate decides whether req is admitted.
func (g *Gate) Evaluate(req Request) Decision {
	if g.policy == nil {
		return admit(ViaOpen)
	}

	token, present := ExtractBearer(req.Header.Get("Authorization"))

	if req.Path == g.relayPath {
		correlationID := correlationIDFromBody(req.Body)
		if token != "" && correlationID != "" {
			if g.nonces != nil && g.nonces.Consume(correlationID, token) {
				d := admit(ViaNonce)
				d.CorrelationID = correlationID
				return d
			}
			return reject(http.StatusUnauthorized, "invalid or expired nonce")
		}
		if token == "" && g.policy.Mode == ModeLax {
			return admit(ViaAnonymous)
		}
	}

	return g.checkKeyAndAddress(token, present, req.RemoteAddr)
}

// checkKeyAndAddress runs the standard API key and allow-list validation.
func (g *Gate) checkKeyAndAddress(key string, present bool, remoteAddr string) Decision {
	lax := g.policy.Mode == ModeLax

	if !present && !lax {
		return reject(http.StatusUnauthorized, "missing API key")
	}

	via := ViaAPIKey
	switch {
	case key == "" && lax:
		via = ViaAnonymous
	case !g.policy.Keys.Contains(key):
		return reject(http.StatusForbidden, "invalid API key")
	}

	if !g.policy.Addresses.Allows(remoteAddr) {
		return reject(http.StatusForbidden, "client address not allowed")
	}
	return admit(via)
}

// correlationIDFromBody extracts request_id from a relay body without fully
// decoding it. Returns "" when the body is not JSON or has no string ID.
func correlationIDFromBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	id := gjson.GetBytes(body, "request_id")
	if id.Type != gjson.String {
		return ""
	}
	return id.Str
}
