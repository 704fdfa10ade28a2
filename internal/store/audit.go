// ABOUTME: Audit records for tool calls and relay deliveries
// ABOUTME: Append-only writes plus filtered, newest-first listing

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ToolCall is one audited tools/call.
type ToolCall struct {
	ID        string
	Tool      string
	RPCID     string
	Status    string // ok, error, invalid, not_found
	Error     string
	Duration  time.Duration
	CreatedAt time.Time
}

// RelayEvent is one audited delivery on the relay route.
type RelayEvent struct {
	ID        string
	RequestID string
	Delivered bool
	Error     string
	CreatedAt time.Time
}

// ToolCallFilter specifies filtering options for listing tool calls.
type ToolCallFilter struct {
	Tool   *string
	Status *string
	Since  *time.Time
	Limit  int // default 100, max 1000
}

// RecordToolCall appends a tool call to the audit log.
func (s *SQLiteStore) RecordToolCall(ctx context.Context, tool, rpcID, status, errMsg string, duration time.Duration) error {
	id := uuid.New().String()
	query := `
		INSERT INTO tool_calls (id, tool, rpc_id, status, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		id,
		tool,
		rpcID,
		status,
		nullString(errMsg),
		duration.Milliseconds(),
		time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting tool call: %w", err)
	}

	s.logger.Debug("recorded tool call", "id", id, "tool", tool, "status", status)
	return nil
}

// RecordRelay appends a relay delivery to the audit log.
func (s *SQLiteStore) RecordRelay(ctx context.Context, requestID string, delivered bool, errMsg string) error {
	query := `
		INSERT INTO relay_events (id, request_id, delivered, error, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(),
		requestID,
		delivered,
		nullString(errMsg),
		time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting relay event: %w", err)
	}
	return nil
}

const toolCallsQuery = `
	SELECT id, tool, rpc_id, status, error, duration_ms, created_at
	FROM tool_calls
	WHERE (? IS NULL OR tool = ?)
	  AND (? IS NULL OR status = ?)
	  AND (? IS NULL OR created_at >= ?)
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?
`

// ListToolCalls returns tool calls matching the filter, newest first.
func (s *SQLiteStore) ListToolCalls(ctx context.Context, f ToolCallFilter) ([]ToolCall, error) {
	var since *string
	if f.Since != nil {
		v := f.Since.UTC().Format(timeFormat)
		since = &v
	}

	rows, err := s.db.QueryContext(ctx, toolCallsQuery,
		f.Tool, f.Tool,
		f.Status, f.Status,
		since, since,
		normalizeLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying tool calls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	calls := []ToolCall{}
	for rows.Next() {
		var c ToolCall
		var errMsg sql.NullString
		var durationMS int64
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Tool, &c.RPCID, &c.Status, &errMsg, &durationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning tool call: %w", err)
		}
		c.Error = errMsg.String
		c.Duration = time.Duration(durationMS) * time.Millisecond
		if c.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tool calls: %w", err)
	}
	return calls, nil
}

// ListRelayEvents returns the most recent relay deliveries, newest first.
func (s *SQLiteStore) ListRelayEvents(ctx context.Context, limit int) ([]RelayEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, delivered, error, created_at
		FROM relay_events
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying relay events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []RelayEvent{}
	for rows.Next() {
		var e RelayEvent
		var errMsg sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Delivered, &errMsg, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning relay event: %w", err)
		}
		e.Error = errMsg.String
		if e.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relay events: %w", err)
	}
	return events, nil
}

// normalizeLimit applies default (100) and cap (1000) to a list limit.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
