package chain

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable is returned on transport-level failures. Callers treat
	// it as retryable on the next scheduled run.
	ErrUnavailable = errors.New("chain provider unavailable")

	// ErrRejected is returned when the node accepted the request but refused
	// the extrinsic (bad nonce, stale era, insufficient funds).
	ErrRejected = errors.New("extrinsic rejected")
)

// Header identifies the current chain head.
type Header struct {
	Number uint64
	Hash   string
}

// Provider is the chain-level execution interface: submit pre-signed raw
// transactions and read account state. One Provider per (chain, chainType)
// endpoint; implementations must fail fast (seconds-scale timeouts) rather
// than block.
type Provider interface {
	// Submit pushes a fully signed raw transaction to the node.
	Submit(ctx context.Context, rawTransaction string) error

	// AccountNonce returns the next nonce the chain expects for address,
	// including transactions still in the node's pool.
	AccountNonce(ctx context.Context, address string) (uint64, error)

	// Head returns the current chain head, used to anchor mortal eras.
	Head(ctx context.Context) (Header, error)

	// Close releases the underlying connection.
	Close()
}

// DialFunc connects a Provider to an endpoint. Injected into the services
// so tests can swap in fakes.
type DialFunc func(ctx context.Context, endpoint string) (Provider, error)
