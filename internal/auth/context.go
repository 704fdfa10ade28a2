// ABOUTME: Admission context for tracking how a request passed the security gate
// ABOUTME: Provides WithAdmission/FromContext for propagating gate results via context

package auth

import (
	"context"
)

// Via names the mechanism that admitted a request.
type Via string

const (
	ViaOpen      Via = "open"      // no policy configured
	ViaAnonymous Via = "anonymous" // lax mode, no credential supplied
	ViaAPIKey    Via = "api_key"
	ViaNonce     Via = "nonce"
)

// Admission records the outcome of an admitted request.
// It is attached to the request context by Gate.Middleware.
type Admission struct {
	Via        Via
	ClientAddr string
	// CorrelationID is the relay request ID the presented nonce was bound
	// to. Handlers must not act on any other ID for a nonce admission.
	CorrelationID string
}

// admissionContextKey is the key type for storing Admission in context.Context.
type admissionContextKey struct{}

// WithAdmission returns a new context with the Admission attached.
func WithAdmission(ctx context.Context, a *Admission) context.Context {
	return context.WithValue(ctx, admissionContextKey{}, a)
}

// FromContext retrieves the Admission from the context, returning nil if not present.
func FromContext(ctx context.Context) *Admission {
	val := ctx.Value(admissionContextKey{})
	if val == nil {
		return nil
	}
	a, ok := val.(*Admission)
	if !ok {
		return nil
	}
	return a
}
