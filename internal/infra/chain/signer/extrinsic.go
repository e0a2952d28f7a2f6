package signer

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const (
	// signed transaction, extrinsic format version 4
	extrinsicVersionSigned = 0x84

	multiAddressID = 0x00

	sigTypeEd25519 = 0x00
	sigTypeSr25519 = 0x01
)

// Payload carries everything that goes under the signature.
type Payload struct {
	Call        []byte
	Era         [2]byte
	Nonce       uint64
	Tip         uint64
	SpecVersion uint32
	TxVersion   uint32
	GenesisHash []byte
	BlockHash   []byte
}

// SigningMessage serializes the payload in signing order. Messages longer
// than 256 bytes are signed through their blake2b-256 digest, matching the
// runtime's verification rule.
func (p Payload) SigningMessage() []byte {
	msg := make([]byte, 0, len(p.Call)+128)
	msg = append(msg, p.Call...)
	msg = append(msg, p.Era[:]...)
	msg = append(msg, CompactUint(p.Nonce)...)
	msg = append(msg, CompactUint(p.Tip)...)
	msg = append(msg, uint32LE(p.SpecVersion)...)
	msg = append(msg, uint32LE(p.TxVersion)...)
	msg = append(msg, p.GenesisHash...)
	msg = append(msg, p.BlockHash...)

	if len(msg) > 256 {
		digest := blake2b.Sum256(msg)
		return digest[:]
	}
	return msg
}

// BuildExtrinsic signs the payload and assembles the length-prefixed raw
// extrinsic. Returns the hex raw transaction and its blake2b-256 hash, which
// is the hash indexers report for the extrinsic.
func BuildExtrinsic(s Signer, p Payload) (raw string, hash string, err error) {
	if len(p.GenesisHash) != 32 || len(p.BlockHash) != 32 {
		return "", "", fmt.Errorf("payload checkpoint hashes must be 32 bytes")
	}

	sig, err := s.Sign(p.SigningMessage())
	if err != nil {
		return "", "", fmt.Errorf("sign payload: %w", err)
	}

	var sigType byte
	switch s.Scheme() {
	case SchemeSr25519:
		sigType = sigTypeSr25519
	case SchemeEd25519:
		sigType = sigTypeEd25519
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnknownScheme, s.Scheme())
	}

	body := make([]byte, 0, len(p.Call)+112)
	body = append(body, extrinsicVersionSigned)
	body = append(body, multiAddressID)
	body = append(body, s.PublicKey()...)
	body = append(body, sigType)
	body = append(body, sig...)
	body = append(body, p.Era[:]...)
	body = append(body, CompactUint(p.Nonce)...)
	body = append(body, CompactUint(p.Tip)...)
	body = append(body, p.Call...)

	encoded := append(CompactUint(uint64(len(body))), body...)
	digest := blake2b.Sum256(encoded)

	return "0x" + hex.EncodeToString(encoded), "0x" + hex.EncodeToString(digest[:]), nil
}
