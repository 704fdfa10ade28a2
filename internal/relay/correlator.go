// ABOUTME: Correlates fire-and-forget editor commands with their asynchronous replies
// ABOUTME: Each wait owns a one-shot buffered channel in a mutex-guarded pending map

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout indicates no reply arrived before the wait's deadline.
var ErrTimeout = errors.New("timed out waiting for editor reply")

// ErrClosed indicates the correlator shut down while the wait was pending.
var ErrClosed = errors.New("correlator closed")

// DefaultTimeout is the default bound on a correlated wait.
const DefaultTimeout = 10 * time.Second

// EditorError is a failure reported by the editor in its reply.
type EditorError struct {
	Message string
}

func (e *EditorError) Error() string {
	return "editor reported error: " + e.Message
}

// Reply is a correlated reply delivered on the relay route.
type Reply struct {
	RequestID string
	Result    json.RawMessage
	Error     string
}

// Wait is a registered pending wait. It is resolved by exactly one of a
// delivery, its deadline, context cancellation or correlator close.
type Wait struct {
	ID        string
	CreatedAt time.Time
	Deadline  time.Time

	ch     chan Reply
	closed chan struct{}
	c      *Correlator
}

// Correlator tracks pending waits keyed by correlation ID.
type Correlator struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*Wait
	closed  bool
}

// NewCorrelator creates an empty Correlator.
func NewCorrelator(logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Correlator{
		logger:  logger,
		pending: make(map[string]*Wait),
	}
}

// BeginWait registers a new wait with a fresh random correlation ID. The wait
// is visible to Deliver before BeginWait returns. A non-positive timeout
// selects DefaultTimeout.
func (c *Correlator) BeginWait(timeout time.Duration) (*Wait, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	now := time.Now()
	w := &Wait{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Deadline:  now.Add(timeout),
		ch:        make(chan Reply, 1),
		closed:    make(chan struct{}),
		c:         c,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	// 122 random bits; a collision here means the random source is broken.
	if _, exists := c.pending[w.ID]; exists {
		return nil, errors.New("correlation ID collision")
	}
	c.pending[w.ID] = w
	return w, nil
}

// Deliver resolves the wait registered under reply.RequestID. It reports
// whether a pending wait was resolved; unknown, expired and already resolved
// IDs are ignored.
func (c *Correlator) Deliver(reply Reply) bool {
	// The entry is removed and the reply buffered under one lock so a
	// concurrent timeout either wins the removal or finds the reply waiting.
	c.mu.Lock()
	w, ok := c.pending[reply.RequestID]
	if ok {
		delete(c.pending, reply.RequestID)
		w.ch <- reply
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("dropping reply for unknown or expired request",
			"request_id", reply.RequestID,
		)
		return false
	}
	c.logger.Debug("← reply delivered", "request_id", reply.RequestID)
	return true
}

// remove deregisters id, reporting whether it was still pending.
func (c *Correlator) remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	return true
}

// Pending returns the number of unresolved waits.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close releases every pending wait with ErrClosed and rejects new waits.
func (c *Correlator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true

	n := len(c.pending)
	for id, w := range c.pending {
		close(w.closed)
		delete(c.pending, id)
	}
	c.logger.Info("correlator closed", "pending_cancelled", n)
}

// Await blocks until the wait is resolved. It returns the editor's result,
// an *EditorError when the editor reported a failure, ErrTimeout at the
// deadline, ErrClosed on shutdown, or the context's error.
func (w *Wait) Await(ctx context.Context) (json.RawMessage, error) {
	timer := time.NewTimer(time.Until(w.Deadline))
	defer timer.Stop()

	var cause error
	select {
	case reply := <-w.ch:
		return reply.outcome()
	case <-w.closed:
		return nil, ErrClosed
	case <-timer.C:
		cause = ErrTimeout
	case <-ctx.Done():
		cause = ctx.Err()
	}

	if w.c.remove(w.ID) {
		return nil, cause
	}

	// Lost the race: a delivery or Close already claimed the entry, and
	// either one has completed its signal before releasing the lock.
	select {
	case reply := <-w.ch:
		return reply.outcome()
	case <-w.closed:
		return nil, ErrClosed
	}
}

// Cancel deregisters a wait that will never be awaited, for example because
// the command could not be sent.
func (w *Wait) Cancel() {
	w.c.remove(w.ID)
}

func (r Reply) outcome() (json.RawMessage, error) {
	if r.Error != "" {
		return nil, &EditorError{Message: r.Error}
	}
	return r.Result, nil
}
