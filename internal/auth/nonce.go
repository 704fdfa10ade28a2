// ABOUTME: Single-use nonce store binding one bearer token to one correlation ID
// ABOUTME: Consumption is atomic; expired and reused nonces fail like missing ones

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNonceExists indicates a nonce is already bound to the correlation ID.
var ErrNonceExists = errors.New("nonce already issued for correlation ID")

// nonceBytes is the amount of randomness in each nonce.
const nonceBytes = 32

// nonce is a single-use credential scoped to one correlation ID.
type nonce struct {
	token     string
	expiresAt time.Time
	consumed  bool
}

// NonceStore issues and consumes nonces. Nonces are keyed by the correlation
// ID they are bound to, so each ID has at most one live nonce.
type NonceStore struct {
	mu     sync.Mutex
	nonces map[string]*nonce
	now    func() time.Time
	done   chan struct{}
	closed bool
}

// NewNonceStore creates a nonce store. When sweepInterval is positive, a
// background goroutine removes expired nonces at that interval.
func NewNonceStore(sweepInterval time.Duration) *NonceStore {
	s := &NonceStore{
		nonces: make(map[string]*nonce),
		now:    time.Now,
		done:   make(chan struct{}),
	}
	if sweepInterval > 0 {
		go s.sweepLoop(sweepInterval)
	}
	return s
}

// Issue creates a nonce bound to correlationID that expires after ttl.
func (s *NonceStore) Issue(correlationID string, ttl time.Duration) (string, error) {
	if correlationID == "" {
		return "", errors.New("correlation ID is required")
	}

	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.nonces[correlationID]; ok && !existing.consumed && s.now().Before(existing.expiresAt) {
		return "", ErrNonceExists
	}
	s.nonces[correlationID] = &nonce{
		token:     token,
		expiresAt: s.now().Add(ttl),
	}
	return token, nil
}

// Consume exchanges a nonce for authorization. It succeeds at most once per
// nonce: a second attempt, a wrong token or an expired nonce returns false.
func (s *NonceStore) Consume(correlationID, token string) bool {
	if correlationID == "" || token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nonces[correlationID]
	if !ok || n.consumed {
		return false
	}
	if !s.now().Before(n.expiresAt) {
		delete(s.nonces, correlationID)
		return false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(n.token)) != 1 {
		return false
	}

	n.consumed = true
	delete(s.nonces, correlationID)
	return true
}

// Revoke removes any nonce bound to correlationID.
func (s *NonceStore) Revoke(correlationID string) {
	s.mu.Lock()
	delete(s.nonces, correlationID)
	s.mu.Unlock()
}

// Len returns the number of live nonces (for testing/monitoring).
func (s *NonceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nonces)
}

// sweepLoop periodically drops expired nonces.
func (s *NonceStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

// sweep removes every expired nonce.
func (s *NonceStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, n := range s.nonces {
		if !now.Before(n.expiresAt) {
			delete(s.nonces, id)
		}
	}
}

// Close stops the background sweep. It is safe to call multiple times.
func (s *NonceStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}
