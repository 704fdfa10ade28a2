// ABOUTME: HTTP handler for the relay route on which the editor posts replies
// ABOUTME: Parses {request_id, result, error} and feeds it to the Correlator

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/2389/editor-bridge/internal/auth"
)

const maxReplySize = 1 << 20

// Recorder persists relay deliveries for auditing.
type Recorder interface {
	RecordRelay(ctx context.Context, requestID string, delivered bool, errMsg string) error
}

// DuplicateSet remembers request IDs already posted to the relay route.
type DuplicateSet interface {
	// Mark records id and reports whether it was already present.
	Mark(id string) bool
}

// replyBody is the wire form of a relay reply. The editor may report its
// error as a string or as an arbitrary JSON value.
type replyBody struct {
	RequestID json.RawMessage `json:"request_id"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
}

// HandlerConfig contains configuration options for the Handler.
type HandlerConfig struct {
	Correlator *Correlator
	Recorder   Recorder     // optional
	Duplicates DuplicateSet // optional; repeated replies are dropped before delivery
	Logger     *slog.Logger
}

// Handler serves POST requests on the relay route.
type Handler struct {
	correlator *Correlator
	recorder   Recorder
	duplicates DuplicateSet
	logger     *slog.Logger
}

// NewHandler creates a relay Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		correlator: cfg.Correlator,
		recorder:   cfg.Recorder,
		duplicates: cfg.Duplicates,
		logger:     logger,
	}
}

// ServeHTTP delivers a reply. Deliveries for unknown or expired IDs still
// answer {"status":"ok"}; nobody is listening for them.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var body replyBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReplySize)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	requestID, err := parseRequestID(body.RequestID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// A nonce only authorizes the reply it was issued for.
	if a := auth.FromContext(r.Context()); a != nil && a.Via == auth.ViaNonce && a.CorrelationID != requestID {
		h.logger.Warn("nonce presented for a different request_id",
			"request_id", requestID,
			"nonce_request_id", a.CorrelationID,
		)
		h.record(r.Context(), requestID, false, "nonce bound to another request_id")
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "nonce does not match request_id"})
		return
	}

	reply := Reply{
		RequestID: requestID,
		Result:    body.Result,
		Error:     errorText(body.Error),
	}
	if h.duplicates != nil && h.duplicates.Mark(reply.RequestID) {
		h.logger.Debug("dropping duplicate reply", "request_id", reply.RequestID)
		h.record(r.Context(), reply.RequestID, false, "duplicate reply")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	delivered := h.correlator.Deliver(reply)
	h.record(r.Context(), reply.RequestID, delivered, reply.Error)

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseRequestID requires request_id to be a non-empty JSON string.
func parseRequestID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", errors.New("missing request_id")
	}
	var id string
	if err := json.Unmarshal(raw, &id); err != nil {
		return "", errors.New("request_id must be a string")
	}
	if id == "" {
		return "", errors.New("missing request_id")
	}
	return id, nil
}

func (h *Handler) record(ctx context.Context, requestID string, delivered bool, errMsg string) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.RecordRelay(ctx, requestID, delivered, errMsg); err != nil {
		h.logger.Warn("failed to record relay delivery", "request_id", requestID, "error", err)
	}
}

// errorText normalizes the reply's error field. Absent, null, false and
// empty values mean no error.
func errorText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	switch string(raw) {
	case "null", "false":
		return ""
	}
	return string(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
