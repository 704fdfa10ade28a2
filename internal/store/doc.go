// Package store provides the SQLite audit log.
//
// # Tables
//
//   - tool_calls: one row per tools/call with tool name, JSON-RPC id,
//     outcome (ok, error, invalid, not_found), error text and duration
//   - relay_events: one row per reply posted to the relay route, noting
//     whether a waiting caller was still there to receive it
//
// The store is append-only. Listing is newest first with an optional filter.
//
// # Usage
//
//	s, err := store.NewSQLiteStore(path)
//	defer s.Close()
//
// SQLiteStore satisfies the recorder interfaces of the mcp and relay packages.
package store
