// ABOUTME: Accepted API key set with plain, bcrypt-hashed and token-backed keys
// ABOUTME: Plain keys are compared in constant time

package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// KeySet holds the API keys accepted by a policy.
type KeySet struct {
	plain    [][]byte
	hashes   [][]byte
	verifier TokenVerifier
}

// NewKeySet creates a key set. Empty entries are ignored. Hashes must be
// bcrypt hashes; a malformed hash is a configuration error.
func NewKeySet(keys, hashes []string, verifier TokenVerifier) (*KeySet, error) {
	ks := &KeySet{verifier: verifier}
	for _, k := range keys {
		if k == "" {
			continue
		}
		ks.plain = append(ks.plain, []byte(k))
	}
	for i, h := range hashes {
		if h == "" {
			continue
		}
		if _, err := bcrypt.Cost([]byte(h)); err != nil {
			return nil, fmt.Errorf("api key hash %d: %w", i, err)
		}
		ks.hashes = append(ks.hashes, []byte(h))
	}
	return ks, nil
}

// Empty reports whether the set holds no configured API keys. Issued tokens
// do not count: they can only be minted by a client that already holds a key.
func (k *KeySet) Empty() bool {
	return k == nil || (len(k.plain) == 0 && len(k.hashes) == 0)
}

// Contains reports whether key is an accepted API key.
func (k *KeySet) Contains(key string) bool {
	if k == nil || key == "" {
		return false
	}

	candidate := []byte(key)
	// Check every plain key so timing does not reveal which one matched.
	matched := 0
	for _, p := range k.plain {
		matched |= subtle.ConstantTimeCompare(candidate, p)
	}
	if matched == 1 {
		return true
	}

	for _, h := range k.hashes {
		if bcrypt.CompareHashAndPassword(h, candidate) == nil {
			return true
		}
	}

	if k.verifier != nil {
		if _, err := k.verifier.Verify(key); err == nil {
			return true
		}
	}
	return false
}
