// ABOUTME: Security policy definition: mode, accepted keys and client addresses
// ABOUTME: A nil policy means open mode and disables every check

package auth

import (
	"fmt"
	"strings"
)

// Mode controls how strictly the gate enforces credentials.
type Mode string

const (
	ModeOpen   Mode = "open"
	ModeLax    Mode = "lax"
	ModeStrict Mode = "strict"
)

// ParseMode converts a configuration string into a Mode.
// An empty string is treated as open.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeOpen:
		return ModeOpen, nil
	case ModeLax:
		return ModeLax, nil
	case ModeStrict:
		return ModeStrict, nil
	default:
		return "", fmt.Errorf("unknown security mode %q (want open, lax or strict)", s)
	}
}

// Policy is the configured security policy.
type Policy struct {
	Mode      Mode
	Keys      *KeySet
	Addresses *AddressList
}

// PolicyConfig holds the raw values used to build a Policy.
type PolicyConfig struct {
	Mode             string
	APIKeys          []string
	APIKeyHashes     []string
	AllowedAddresses []string
	TokenVerifier    TokenVerifier // optional, accepts issued tokens as keys
}

// NewPolicy builds a Policy from configuration. It returns a nil Policy
// (open mode) when the mode is open.
func NewPolicy(cfg PolicyConfig) (*Policy, error) {
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	if mode == ModeOpen {
		return nil, nil
	}

	keys, err := NewKeySet(cfg.APIKeys, cfg.APIKeyHashes, cfg.TokenVerifier)
	if err != nil {
		return nil, fmt.Errorf("building key set: %w", err)
	}
	if mode == ModeStrict && keys.Empty() {
		return nil, fmt.Errorf("strict mode requires at least one API key")
	}

	addrs, err := ParseAddressList(cfg.AllowedAddresses)
	if err != nil {
		return nil, fmt.Errorf("building address list: %w", err)
	}

	return &Policy{
		Mode:      mode,
		Keys:      keys,
		Addresses: addrs,
	}, nil
}

// ModeOf returns the effective mode of a possibly nil policy.
func ModeOf(p *Policy) Mode {
	if p == nil {
		return ModeOpen
	}
	return p.Mode
}
