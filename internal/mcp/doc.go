// Package mcp implements the JSON-RPC protocol router that exposes the tool
// registry to automated clients.
//
// # Protocol
//
// JSON-RPC 2.0 over HTTP POST on / and /mcp. Recognised methods:
//
//   - initialize: protocol version, capabilities and server info
//   - notifications/initialized: acknowledged with an empty result
//   - tools/list: every registered tool with its input schema
//   - tools/call: run one tool and wrap its text as a single content item
//
// Every request gets a reply envelope, including notifications. The reply
// echoes the request ID verbatim; absent or unrecoverable IDs become 0.
//
// # Errors
//
//	-32600  invalid request (empty body, missing method, bad id)  HTTP 400
//	-32601  method not found                                      HTTP 404
//	-32602  unknown tool                                          HTTP 404
//	-32602  invalid params or arguments                           HTTP 400
//	-32603  internal error (handler failure, panic, bad JSON)     HTTP 500
//
// A panic raised while dispatching one request becomes an internal error for
// that request only.
//
// # Usage
//
//	server, err := mcp.NewServer(mcp.Config{Env: env, Logger: logger})
//	server.RegisterRoutes(mux, gate.Middleware)
package mcp
