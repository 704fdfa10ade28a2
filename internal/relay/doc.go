// ABOUTME: Package documentation for the relay package
// ABOUTME: Describes the correlator, the editor bridge and the relay route

// Package relay turns fire-and-forget editor commands into blocking calls.
//
// A tool handler calls Bridge.Request, which registers a Wait with the
// Correlator under a fresh random correlation ID, binds a single-use nonce to
// that ID, posts the command to the editor and blocks. The editor later POSTs
// its reply to the relay route (served by Handler), authenticating with the
// nonce; the Handler hands the reply to Correlator.Deliver, which releases the
// waiting caller.
//
// Each wait is resolved exactly once. Deliveries that arrive after the wait
// timed out, was cancelled or was already answered are dropped without error.
// Waits on distinct IDs never interact.
package relay
