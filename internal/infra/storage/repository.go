package storage

import (
	"context"
	"errors"

	"github.com/deweblabs/txrelay/internal/core/domain"
)

var (
	// ErrNoWalletAvailable is returned when no wallet exists for a
	// (chain, chainType) pair.
	ErrNoWalletAvailable = errors.New("no wallet available")

	// ErrWalletNotFound is returned when a specific wallet row is missing.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrDuplicateNonce is returned when a transaction insert collides on
	// (chain, chainType, address, nonce). It indicates a violation of the
	// single-writer assumption and is never retried automatically.
	ErrDuplicateNonce = errors.New("duplicate nonce")

	// ErrTransactionNotFound is returned on reference lookups with no match.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// WalletRepository handles wallet state outside the creation path.
type WalletRepository interface {
	// Get retrieves a wallet by its composite identity.
	Get(ctx context.Context, chain domain.Chain, chainType domain.ChainType, address string) (*domain.Wallet, error)

	// List retrieves all wallets for a (chain, chainType) pair.
	List(ctx context.Context, chain domain.Chain, chainType domain.ChainType) ([]*domain.Wallet, error)

	// Create provisions a new wallet.
	Create(ctx context.Context, wallet *domain.Wallet) error

	// AdvanceProcessedNonce sets lastProcessedNonce to nonce if and only if
	// it is higher than the stored value (monotonic, idempotent).
	AdvanceProcessedNonce(ctx context.Context, chain domain.Chain, chainType domain.ChainType, address string, nonce uint64) error

	// AdvanceParsedBlock moves the reconciliation watermark forward
	// (monotonic).
	AdvanceParsedBlock(ctx context.Context, chain domain.Chain, chainType domain.ChainType, address string, blockNumber uint64) error

	// ResetNonces overwrites nextNonce and lastProcessedNonce. Operator
	// tooling only; never called by the workers.
	ResetNonces(ctx context.Context, chain domain.Chain, chainType domain.ChainType, address string, nextNonce, lastProcessed uint64) error
}

// TransactionRepository handles the durable transaction log.
type TransactionRepository interface {
	// ListPending retrieves PENDING transactions for a wallet, ordered by
	// nonce ascending.
	ListPending(ctx context.Context, chain domain.Chain, chainType domain.ChainType, address string) ([]*domain.Transaction, error)

	// UpdateStatusByHashes transitions all rows matching the given hashes to
	// status and returns the subset of hashes that actually matched a stored
	// row. Hashes with no match are the caller's anomaly to classify.
	UpdateStatusByHashes(ctx context.Context, chain domain.Chain, chainType domain.ChainType, address string, hashes []string, status domain.TxStatus) ([]string, error)

	// GetByReference looks a transaction up by its business-entity linkage.
	GetByReference(ctx context.Context, referenceTable, referenceID string) (*domain.Transaction, error)

	// GetByHash looks a transaction up by its chain hash.
	GetByHash(ctx context.Context, chain domain.Chain, chainType domain.ChainType, hash string) (*domain.Transaction, error)

	// ListUnnotified retrieves terminal transactions whose downstream
	// notification has not fired yet.
	ListUnnotified(ctx context.Context, chain domain.Chain, chainType domain.ChainType, address string) ([]*domain.Transaction, error)

	// MarkNotified flips the webhook flag for the given hashes.
	MarkNotified(ctx context.Context, chain domain.Chain, chainType domain.ChainType, hashes []string) error
}

// UnitOfWork scopes wallet selection, nonce allocation and transaction
// persistence to one atomic unit. If the unit rolls back the allocated
// nonce is not consumed.
type UnitOfWork interface {
	// SelectWalletForUpdate picks the signing wallet and locks it for the
	// duration of the unit. With preferred set, that wallet is returned if it
	// exists; otherwise the wallet with the fewest pending transactions wins.
	SelectWalletForUpdate(ctx context.Context, chain domain.Chain, chainType domain.ChainType, preferred string) (*domain.Wallet, error)

	// AllocateNonce returns wallet.NextNonce and increments it.
	AllocateNonce(ctx context.Context, wallet *domain.Wallet) (uint64, error)

	// InsertTransaction persists a new PENDING transaction.
	InsertTransaction(ctx context.Context, tx *domain.Transaction) error

	Commit() error
	Rollback() error
}

// Store is the storage entry point handed to the creation service.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}
