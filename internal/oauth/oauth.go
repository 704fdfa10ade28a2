// ABOUTME: Non-authoritative OAuth discovery, registration, authorize and token endpoints
// ABOUTME: Lets OAuth-probing MCP clients connect; tokens only grant access when accepted by policy

package oauth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Route paths.
const (
	MetadataPath  = "/.well-known/oauth-authorization-server"
	RegisterPath  = "/oauth/register"
	AuthorizePath = "/oauth/authorize"
	TokenPath     = "/oauth/token"
)

// DefaultTokenTTL is the lifetime of issued access tokens.
const DefaultTokenTTL = time.Hour

// TokenIssuer signs access tokens for a subject.
type TokenIssuer interface {
	Generate(subject string, expiresIn time.Duration) (string, error)
}

// Config contains configuration options for the Handler.
type Config struct {
	// Enabled is false in open mode; every route then answers 404.
	Enabled bool
	Issuer  TokenIssuer
	// BaseURL is used to build absolute endpoint URLs in the metadata.
	// Derived from the request host when empty.
	BaseURL  string
	TokenTTL time.Duration
	// TokenAuth wraps the token endpoint when set. Used when issued tokens
	// are accepted as API keys, so only an authenticated client can mint one.
	TokenAuth func(http.Handler) http.Handler
	Logger    *slog.Logger
}

// Handler serves the OAuth stub routes.
type Handler struct {
	enabled  bool
	issuer   TokenIssuer
	baseURL  string
	tokenTTL  time.Duration
	tokenAuth func(http.Handler) http.Handler
	logger    *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg Config) *Handler {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		enabled:   cfg.Enabled,
		issuer:    cfg.Issuer,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		tokenTTL:  ttl,
		tokenAuth: cfg.TokenAuth,
		logger:    logger,
	}
}

// RegisterRoutes mounts the OAuth routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(MetadataPath, h.guard(h.handleMetadata))
	mux.HandleFunc(RegisterPath, h.guard(h.handleRegister))
	mux.HandleFunc(AuthorizePath, h.guard(h.handleAuthorize))

	var token http.Handler = http.HandlerFunc(h.handleToken)
	if h.tokenAuth != nil {
		token = h.tokenAuth(token)
	}
	mux.HandleFunc(TokenPath, h.guard(token.ServeHTTP))
}

func (h *Handler) guard(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.enabled {
			http.NotFound(w, r)
			return
		}
		next(w, r)
	}
}

// Metadata is the authorization server metadata document (RFC 8414 subset).
type Metadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

func (h *Handler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	base := h.base(r)
	writeJSON(w, http.StatusOK, Metadata{
		Issuer:                            base,
		AuthorizationEndpoint:             base + AuthorizePath,
		TokenEndpoint:                     base + TokenPath,
		RegistrationEndpoint:              base + RegisterPath,
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "client_credentials"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{"none", "client_secret_post"},
	})
}

type registerRequest struct {
	ClientName   string   `json:"client_name"`
	RedirectURIs []string `json:"redirect_uris"`
}

type registerResponse struct {
	ClientID                string   `json:"client_id"`
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris,omitempty"`
	ClientIDIssuedAt        int64    `json:"client_id_issued_at"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}

	var req registerRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_client_metadata", "invalid JSON body")
			return
		}
	}

	clientID := uuid.NewString()
	h.logger.Info("registered oauth client", "client_id", clientID, "client_name", req.ClientName)
	writeJSON(w, http.StatusCreated, registerResponse{
		ClientID:                clientID,
		ClientName:              req.ClientName,
		RedirectURIs:            req.RedirectURIs,
		ClientIDIssuedAt:        time.Now().Unix(),
		TokenEndpointAuthMethod: "none",
	})
}

func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}

	q := r.URL.Query()
	redirectURI := q.Get("redirect_uri")
	target, err := url.Parse(redirectURI)
	if redirectURI == "" || err != nil || !target.IsAbs() {
		writeError(w, http.StatusBadRequest, "invalid_request", "redirect_uri must be an absolute URL")
		return
	}

	values := target.Query()
	values.Set("code", uuid.NewString())
	if state := q.Get("state"); state != "" {
		values.Set("state", state)
	}
	target.RawQuery = values.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	if h.issuer == nil {
		writeError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "token issuing is not configured")
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid form body")
		return
	}

	switch grant := r.PostForm.Get("grant_type"); grant {
	case "authorization_code", "client_credentials":
	default:
		writeError(w, http.StatusBadRequest, "unsupported_grant_type", "unsupported grant_type "+grant)
		return
	}

	clientID := r.PostForm.Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}

	token, err := h.issuer.Generate(clientID, h.tokenTTL)
	if err != nil {
		h.logger.Error("failed to issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "failed to issue token")
		return
	}

	h.logger.Info("issued oauth token", "client_id", clientID)
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.tokenTTL / time.Second),
	})
}

func (h *Handler) base(r *http.Request) string {
	if h.baseURL != "" {
		return h.baseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}
