// ABOUTME: Fire-and-forget command sender for the editor extension
// ABOUTME: Posts a JSON command carrying the correlation ID, nonce and reply URL

package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// DefaultSendTimeout bounds how long posting a command may take. It does not
// cover the editor's reply, which arrives separately on the relay route.
const DefaultSendTimeout = 5 * time.Second

var (
	// ErrNotConfigured indicates no editor command URL is configured.
	ErrNotConfigured = errors.New("editor command URL not configured")

	// ErrRejected indicates the editor answered the command post with a non-2xx status.
	ErrRejected = errors.New("editor rejected command")
)

// Command is the payload posted to the editor.
type Command struct {
	RequestID   string         `json:"request_id"`
	Nonce       string         `json:"nonce,omitempty"`
	Command     string         `json:"command"`
	Arguments   map[string]any `json:"arguments,omitempty"`
	ResponseURL string         `json:"response_url"`
}

// ClientConfig contains configuration options for the Client.
type ClientConfig struct {
	CommandURL string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client posts commands to the editor extension.
type Client struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a Client. An empty CommandURL yields a client whose Send
// always fails with ErrNotConfigured, so editor tools fail fast.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultSendTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:    cfg.CommandURL,
		http:   httpClient,
		logger: logger,
	}
}

// Send posts cmd to the editor. It returns once the editor has accepted the
// command; the command's outcome is delivered later on the relay route.
func (c *Client) Send(ctx context.Context, cmd Command) error {
	if c.url == "" {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting command: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	c.logger.Debug("→ command posted to editor",
		"command", cmd.Command,
		"request_id", cmd.RequestID,
	)
	return nil
}
