// ABOUTME: Explicit per-call environment handed to every tool handler
// ABOUTME: Replaces shared server state with named collaborators

package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/2389/editor-bridge/internal/executor"
)

// EditorBridge performs correlated editor round trips.
type EditorBridge interface {
	Request(ctx context.Context, command string, args map[string]any, timeout time.Duration) (json.RawMessage, error)
}

// Lifecycle accepts restart and shutdown requests.
type Lifecycle interface {
	RequestRestart(reason string)
	RequestShutdown(reason string)
}

// DocsLocator finds the agents document.
type DocsLocator interface {
	Find() (path string, content []byte, err error)
}

// Env carries what a handler may use. Fields other than Registry and Logger
// may be nil when the collaborator is not configured.
type Env struct {
	ServerAddr    string
	Version       string
	StartedAt     time.Time
	Registry      *Registry
	Editor        EditorBridge
	EditorTimeout time.Duration
	Executor      executor.Executor
	Lifecycle     Lifecycle
	Docs          DocsLocator
	Logger        *slog.Logger
}

// Log returns the Env's logger, falling back to the default logger.
func (e *Env) Log() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}
