// ABOUTME: Bridge turns an editor command into a blocking request/response call
// ABOUTME: Begins a wait, binds a nonce to it, posts the command and awaits the reply

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/editor-bridge/internal/editor"
)

// DefaultNonceGrace extends a nonce's lifetime past the wait deadline so a
// reply racing the deadline is still authenticated.
const DefaultNonceGrace = 2 * time.Second

// NonceIssuer issues and revokes nonces bound to correlation IDs.
type NonceIssuer interface {
	Issue(correlationID string, ttl time.Duration) (string, error)
	Revoke(correlationID string)
}

// CommandSender posts a command to the editor without waiting for its outcome.
type CommandSender interface {
	Send(ctx context.Context, cmd editor.Command) error
}

// BridgeConfig contains configuration options for the Bridge.
type BridgeConfig struct {
	Correlator  *Correlator
	Nonces      NonceIssuer // optional; nil sends commands without a nonce
	Sender      CommandSender
	ResponseURL string
	NonceGrace  time.Duration
	Logger      *slog.Logger
}

// Bridge issues correlated editor commands.
type Bridge struct {
	correlator  *Correlator
	nonces      NonceIssuer
	sender      CommandSender
	responseURL string
	grace       time.Duration
	logger      *slog.Logger
}

// NewBridge creates a Bridge with the given configuration.
func NewBridge(cfg BridgeConfig) *Bridge {
	grace := cfg.NonceGrace
	if grace <= 0 {
		grace = DefaultNonceGrace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		correlator:  cfg.Correlator,
		nonces:      cfg.Nonces,
		sender:      cfg.Sender,
		responseURL: cfg.ResponseURL,
		grace:       grace,
		logger:      logger,
	}
}

// Request sends command to the editor and blocks until its reply arrives,
// the timeout elapses or ctx is cancelled.
func (b *Bridge) Request(ctx context.Context, command string, args map[string]any, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	wait, err := b.correlator.BeginWait(timeout)
	if err != nil {
		return nil, err
	}

	var nonce string
	if b.nonces != nil {
		nonce, err = b.nonces.Issue(wait.ID, timeout+b.grace)
		if err != nil {
			wait.Cancel()
			return nil, fmt.Errorf("issuing nonce: %w", err)
		}
		defer b.nonces.Revoke(wait.ID)
	}

	cmd := editor.Command{
		RequestID:   wait.ID,
		Nonce:       nonce,
		Command:     command,
		Arguments:   args,
		ResponseURL: b.responseURL,
	}
	if err := b.sender.Send(ctx, cmd); err != nil {
		wait.Cancel()
		b.logger.Warn("editor command not delivered",
			"command", command,
			"request_id", wait.ID,
			"error", err,
		)
		return nil, fmt.Errorf("sending %q to editor: %w", command, err)
	}

	b.logger.Info("→ awaiting editor reply",
		"command", command,
		"request_id", wait.ID,
		"timeout", timeout,
	)

	result, err := wait.Await(ctx)
	if err != nil {
		b.logger.Warn("editor request failed",
			"command", command,
			"request_id", wait.ID,
			"error", err,
		)
		return nil, err
	}

	b.logger.Info("← editor replied",
		"command", command,
		"request_id", wait.ID,
		"elapsed", time.Since(wait.CreatedAt),
	)
	return result, nil
}
