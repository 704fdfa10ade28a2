// Package gateway orchestrates the editor-bridge server components.
//
// # Overview
//
// The gateway builds every component from configuration and owns the HTTP
// server: the security gate, nonce store, correlator, editor client, code
// executor, tool registry, JSON-RPC router and the optional audit store.
//
// # Routes
//
//	POST /, /mcp           JSON-RPC router (behind the gate)
//	POST /vscode-response  editor replies (behind the gate)
//	GET  /health           liveness
//	GET  /agents.md        agents document (and /.well-known/ and case variants)
//	     /.well-known/oauth-authorization-server, /oauth/*
//	                       OAuth stubs, 404 in open mode
//
// # Request Flow
//
// A tool that needs the editor registers a wait with the correlator, obtains
// a nonce bound to the wait's ID and posts the command to the editor. The
// editor later posts its reply to /vscode-response with that nonce as a bearer
// token. The gate consumes the nonce, the relay handler delivers the reply and
// the blocked tool call returns.
//
// # Listeners
//
// The server listens on server.http_addr, or on a Tailscale node when
// tailscale.enabled is set (:80, or :443 with Tailscale certificates when
// tailscale.https is set).
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger, gateway.Options{Lifecycle: supervisor})
//	err = gw.Run(ctx) // blocks until ctx is canceled
//
// Shutdown releases pending editor waits before draining the HTTP server, then
// closes the nonce store, the Tailscale node and the audit store.
package gateway
