// ABOUTME: Tests for audit store operations
// ABOUTME: Covers recording and filtered listing of tool calls and relay events

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func TestRecordToolCall(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordToolCall(ctx, "ping", "1", "ok", "", 12*time.Millisecond))
	require.NoError(t, store.RecordToolCall(ctx, "open_file", `"a"`, "error", "editor unreachable", time.Second))

	calls, err := store.ListToolCalls(ctx, ToolCallFilter{})
	require.NoError(t, err)
	require.Len(t, calls, 2)

	// Newest first
	assert.Equal(t, "open_file", calls[0].Tool)
	assert.Equal(t, `"a"`, calls[0].RPCID)
	assert.Equal(t, "error", calls[0].Status)
	assert.Equal(t, "editor unreachable", calls[0].Error)
	assert.Equal(t, time.Second, calls[0].Duration)
	assert.NotEmpty(t, calls[0].ID)
	assert.False(t, calls[0].CreatedAt.IsZero())

	assert.Equal(t, "ping", calls[1].Tool)
	assert.Empty(t, calls[1].Error)
	assert.Equal(t, 12*time.Millisecond, calls[1].Duration)
}

func TestRecordToolCall_RejectsUnknownStatus(t *testing.T) {
	store := setupTestStore(t)
	err := store.RecordToolCall(context.Background(), "ping", "1", "exploded", "", 0)
	assert.Error(t, err)
}

func TestListToolCalls_Filters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordToolCall(ctx, "ping", "1", "ok", "", 0))
	require.NoError(t, store.RecordToolCall(ctx, "ping", "2", "error", "boom", 0))
	require.NoError(t, store.RecordToolCall(ctx, "nope", "3", "not_found", "", 0))

	tool := "ping"
	calls, err := store.ListToolCalls(ctx, ToolCallFilter{Tool: &tool})
	require.NoError(t, err)
	assert.Len(t, calls, 2)

	status := "not_found"
	calls, err = store.ListToolCalls(ctx, ToolCallFilter{Status: &status})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "nope", calls[0].Tool)

	calls, err = store.ListToolCalls(ctx, ToolCallFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "3", calls[0].RPCID)

	future := time.Now().Add(time.Hour)
	calls, err = store.ListToolCalls(ctx, ToolCallFilter{Since: &future})
	require.NoError(t, err)
	assert.Empty(t, calls)
	assert.NotNil(t, calls)
}

func TestRecordRelay(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.RecordRelay(ctx, "corr-1", true, ""))
	require.NoError(t, store.RecordRelay(ctx, "corr-2", false, "no active editor"))

	events, err := store.ListRelayEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "corr-2", events[0].RequestID)
	assert.False(t, events[0].Delivered)
	assert.Equal(t, "no active editor", events[0].Error)

	assert.Equal(t, "corr-1", events[1].RequestID)
	assert.True(t, events[1].Delivered)
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.RecordToolCall(context.Background(), "ping", "1", "ok", "", 0))
	calls, err := store.ListToolCalls(context.Background(), ToolCallFilter{})
	require.NoError(t, err)
	assert.Len(t, calls, 1)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, 100, normalizeLimit(0))
	assert.Equal(t, 100, normalizeLimit(-5))
	assert.Equal(t, 50, normalizeLimit(50))
	assert.Equal(t, 1000, normalizeLimit(5000))
}
