// Package oauth serves stub OAuth endpoints for MCP clients that probe for
// an authorization server before connecting.
//
// The endpoints are not an authorization server. Registration hands out a
// random client ID, authorize redirects straight back with a random code and
// the caller's state, and token signs an HS256 JWT whose subject is the client
// ID. Such a token is only accepted by the security gate when the policy is
// configured to accept issued tokens.
//
// In open mode every route answers 404.
package oauth
