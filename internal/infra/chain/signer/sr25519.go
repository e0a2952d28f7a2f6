package signer

import (
	"fmt"

	"github.com/ChainSafe/go-schnorrkel"
)

// signingCtx is the transcript label Substrate runtimes expect.
var signingCtx = []byte("substrate")

type sr25519Signer struct {
	secret *schnorrkel.SecretKey
	public *schnorrkel.PublicKey
}

func newSr25519(seed [32]byte) (Signer, error) {
	mini, err := schnorrkel.NewMiniSecretKeyFromRaw(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	return &sr25519Signer{
		secret: mini.ExpandEd25519(),
		public: mini.Public(),
	}, nil
}

func (s *sr25519Signer) Scheme() Scheme { return SchemeSr25519 }

func (s *sr25519Signer) PublicKey() []byte {
	pub := s.public.Encode()
	return pub[:]
}

func (s *sr25519Signer) Sign(msg []byte) ([]byte, error) {
	t := schnorrkel.NewSigningContext(signingCtx, msg)
	sig, err := s.secret.Sign(t)
	if err != nil {
		return nil, fmt.Errorf("sr25519 sign: %w", err)
	}
	enc := sig.Encode()
	return enc[:], nil
}

func (s *sr25519Signer) Verify(msg, sig []byte) bool {
	if len(sig) != 64 {
		return false
	}
	var raw [64]byte
	copy(raw[:], sig)

	decoded := &schnorrkel.Signature{}
	if err := decoded.Decode(raw); err != nil {
		return false
	}

	t := schnorrkel.NewSigningContext(signingCtx, msg)
	ok, err := s.public.Verify(decoded, t)
	return err == nil && ok
}
