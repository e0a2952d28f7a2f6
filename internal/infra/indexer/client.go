// Package indexer abstracts chain-specific indexer access. Callers never
// see chain-specific query shapes; each chain family plugs in its own
// implementation.
package indexer

import (
	"context"
	"errors"

	"github.com/deweblabs/txrelay/internal/core/domain"
)

// ErrUnavailable is returned on transport errors. It is retryable and must
// never be treated as "no results".
var ErrUnavailable = errors.New("indexer unavailable")

// ExtrinsicStatus is the indexer's view of a single extrinsic, used by the
// transmitter's self-repair path.
type ExtrinsicStatus struct {
	Found       bool
	Success     bool
	BlockNumber uint64
}

// Client reads historical chain data for one (chain, chainType) deployment.
// Block ranges are (fromBlock, toBlock]: exclusive start, inclusive end.
type Client interface {
	// GetDeposits returns transfers into address in the block range.
	GetDeposits(ctx context.Context, address string, fromBlock, toBlock uint64) ([]domain.Transfer, error)

	// GetWithdrawals returns transfers out of address in the block range.
	GetWithdrawals(ctx context.Context, address string, fromBlock, toBlock uint64) ([]domain.Transfer, error)

	// GetDomainEvents returns the chain family's business events (storage
	// orders, DID anchors) initiated by address in the block range.
	GetDomainEvents(ctx context.Context, address string, fromBlock, toBlock uint64) ([]domain.DomainEvent, error)

	// GetBlockHeight returns the highest block the indexer has processed.
	GetBlockHeight(ctx context.Context) (uint64, error)

	// FindExtrinsic looks a single extrinsic up by hash.
	FindExtrinsic(ctx context.Context, hash string) (ExtrinsicStatus, error)
}
