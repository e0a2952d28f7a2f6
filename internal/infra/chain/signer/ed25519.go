package signer

import "crypto/ed25519"

type ed25519Signer struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

func newEd25519(seed [32]byte) (Signer, error) {
	private := ed25519.NewKeyFromSeed(seed[:])
	return &ed25519Signer{
		private: private,
		public:  private.Public().(ed25519.PublicKey),
	}, nil
}

func (s *ed25519Signer) Scheme() Scheme { return SchemeEd25519 }

func (s *ed25519Signer) PublicKey() []byte {
	return []byte(s.public)
}

func (s *ed25519Signer) Sign(msg []byte) ([]byte, error) {
	return ed25519.Sign(s.private, msg), nil
}

func (s *ed25519Signer) Verify(msg, sig []byte) bool {
	return ed25519.Verify(s.public, msg, sig)
}
