// Package auth implements the security gate that runs before any protocol logic.
//
// # Overview
//
// Every inbound request is evaluated against a Policy before it reaches the
// JSON-RPC router or the relay endpoint. Three independent mechanisms are
// layered:
//
//   - Single-use nonces, bound to one correlation ID, accepted only on the
//     relay route
//   - Static API keys (plain or bcrypt-hashed), optionally extended with JWTs
//     issued by the OAuth stub
//   - Client address allow-listing (exact IP, CIDR prefix or glob pattern)
//
// # Modes
//
//   - open: no policy object, every request is admitted
//   - lax: keys are checked only when a credential is supplied
//   - strict: a valid key is always required
//
// The address check applies in every mode once it is reached.
//
// # Relay Route
//
// Replies from the editor arrive on the relay route with the nonce that was
// handed out alongside the command:
//
//	POST /vscode-response
//	Authorization: Bearer <nonce>
//
//	{"request_id": "<correlation id>", "result": ...}
//
// A nonce that matches its correlation ID admits the request and skips the key
// and address checks. A wrong, reused or expired nonce is rejected with 401.
//
// # Usage
//
//	nonces := auth.NewNonceStore(time.Minute)
//	gate := auth.NewGate(auth.GateConfig{
//	    Policy:    policy,
//	    Nonces:    nonces,
//	    RelayPath: "/vscode-response",
//	    Logger:    logger,
//	})
//	mux.Handle("/", gate.Middleware(router))
package auth
