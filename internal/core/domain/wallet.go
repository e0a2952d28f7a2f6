package domain

import (
	"log/slog"
	"time"
)

// Wallet is one custodial signing identity for a (chain, chainType) pair.
//
// NextNonce is the nonce that will be handed to the next created
// transaction; LastProcessedNonce is the highest nonce the transmitter has
// successfully pushed to the chain. For a healthy wallet the PENDING
// transactions form a contiguous nonce range starting at
// LastProcessedNonce+1; a gap means nonce drift that needs operator
// attention.
type Wallet struct {
	ID                 uint64
	Chain              Chain
	ChainType          ChainType
	Address            string
	SecretSeed         Seed
	NextNonce          uint64
	LastProcessedNonce uint64
	LastParsedBlock    uint64
	BlockParseSize     uint64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Ref returns the chain scope of this wallet.
func (w *Wallet) Ref() ChainRef {
	return ChainRef{Chain: w.Chain, ChainType: w.ChainType}
}

// Seed is a signing seed. It never leaves the signing boundary: the String
// and LogValue implementations redact it so it cannot end up in logs or
// error messages by accident.
type Seed string

func (Seed) String() string { return "[redacted]" }

func (Seed) LogValue() slog.Value { return slog.StringValue("[redacted]") }

// Bytes exposes the raw seed to the signer.
func (s Seed) Bytes() []byte { return []byte(s) }
