// Package signer derives signing keys from wallet seeds and assembles
// signed extrinsics. Scheme selection is a strategy lookup so chain
// families with different signature bundles share the same creation path.
package signer

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/deweblabs/txrelay/internal/core/domain"
)

var (
	// ErrUnknownScheme is returned for signature schemes the relay cannot
	// sign with.
	ErrUnknownScheme = errors.New("unknown signature scheme")

	// ErrInvalidSeed is returned when a wallet seed cannot be decoded into
	// key material.
	ErrInvalidSeed = errors.New("invalid signing seed")
)

// Scheme names a signature scheme.
type Scheme string

const (
	SchemeSr25519 Scheme = "sr25519"
	SchemeEd25519 Scheme = "ed25519"
)

// Signer signs payloads with a key derived from a wallet seed. The key
// lives only as long as the Signer; callers create one per signing step and
// drop it.
type Signer interface {
	Scheme() Scheme
	PublicKey() []byte
	Sign(msg []byte) ([]byte, error)
	Verify(msg, sig []byte) bool
}

// ParseScheme resolves a configured scheme name.
func ParseScheme(name string) (Scheme, error) {
	switch Scheme(strings.ToLower(name)) {
	case SchemeSr25519:
		return SchemeSr25519, nil
	case SchemeEd25519:
		return SchemeEd25519, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScheme, name)
	}
}

// New derives a Signer for scheme from seed.
func New(scheme Scheme, seed domain.Seed) (Signer, error) {
	raw, err := decodeSeed(seed)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case SchemeSr25519:
		return newSr25519(raw)
	case SchemeEd25519:
		return newEd25519(raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
}

// decodeSeed expects a hex-encoded 32-byte seed, 0x prefix optional. The
// raw bytes never appear in errors.
func decodeSeed(seed domain.Seed) ([32]byte, error) {
	var out [32]byte

	s := strings.TrimPrefix(string(seed.Bytes()), "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("%w: not hex-encoded", ErrInvalidSeed)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("%w: got %d bytes, want 32", ErrInvalidSeed, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
