package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/deweblabs/txrelay/internal/core/domain"
	"github.com/deweblabs/txrelay/internal/infra/storage"
)

// walletRow maps the wallet table.
type walletRow struct {
	ID                 uint64    `db:"id"`
	Chain              string    `db:"chain"`
	ChainType          string    `db:"chain_type"`
	Address            string    `db:"address"`
	SecretSeed         string    `db:"secret_seed"`
	NextNonce          int64     `db:"next_nonce"`
	LastProcessedNonce int64     `db:"last_processed_nonce"`
	LastParsedBlock    int64     `db:"last_parsed_block"`
	BlockParseSize     int64     `db:"block_parse_size"`
	CreatedAt          time.Time `db:"created_at"`
	UpdatedAt          time.Time `db:"updated_at"`
}

func (r walletRow) toDomain() *domain.Wallet {
	return &domain.Wallet{
		ID:                 r.ID,
		Chain:              domain.Chain(r.Chain),
		ChainType:          domain.ChainType(r.ChainType),
		Address:            r.Address,
		SecretSeed:         domain.Seed(r.SecretSeed),
		NextNonce:          uint64(r.NextNonce),
		LastProcessedNonce: uint64(r.LastProcessedNonce),
		LastParsedBlock:    uint64(r.LastParsedBlock),
		BlockParseSize:     uint64(r.BlockParseSize),
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// WalletRepo implements storage.WalletRepository using PostgreSQL.
type WalletRepo struct {
	db *DB
}

// NewWalletRepo creates a new PostgreSQL wallet repository.
func NewWalletRepo(db *DB) *WalletRepo {
	return &WalletRepo{db: db}
}

// Get retrieves a wallet by its composite identity.
func (r *WalletRepo) Get(
	ctx context.Context,
	chain domain.Chain,
	chainType domain.ChainType,
	address string,
) (*domain.Wallet, error) {
	var row walletRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM wallet WHERE chain = $1 AND chain_type = $2 AND address = $3`,
		chain, chainType, address)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return row.toDomain(), nil
}

// List retrieves all wallets for a (chain, chainType) pair.
func (r *WalletRepo) List(
	ctx context.Context,
	chain domain.Chain,
	chainType domain.ChainType,
) ([]*domain.Wallet, error) {
	var rows []walletRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM wallet WHERE chain = $1 AND chain_type = $2 ORDER BY address`,
		chain, chainType)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallets: %w", err)
	}

	wallets := make([]*domain.Wallet, 0, len(rows))
	for _, row := range rows {
		wallets = append(wallets, row.toDomain())
	}
	return wallets, nil
}

// Create provisions a new wallet.
func (r *WalletRepo) Create(ctx context.Context, wallet *domain.Wallet) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO wallet
			(chain, chain_type, address, secret_seed, next_nonce,
			 last_processed_nonce, last_parsed_block, block_parse_size)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		wallet.Chain, wallet.ChainType, wallet.Address, string(wallet.SecretSeed),
		int64(wallet.NextNonce), int64(wallet.LastProcessedNonce),
		int64(wallet.LastParsedBlock), int64(wallet.BlockParseSize))
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// AdvanceProcessedNonce sets lastProcessedNonce only if nonce is higher than
// the stored value. A no-op update is not an error, so repeated calls with
// the same nonce are safe.
func (r *WalletRepo) AdvanceProcessedNonce(
	ctx context.Context,
	chain domain.Chain,
	chainType domain.ChainType,
	address string,
	nonce uint64,
) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE wallet SET last_processed_nonce = $4, updated_at = now()
		 WHERE chain = $1 AND chain_type = $2 AND address = $3
		   AND last_processed_nonce < $4`,
		chain, chainType, address, int64(nonce))
	if err != nil {
		return fmt.Errorf("failed to advance processed nonce: %w", err)
	}
	return nil
}

// AdvanceParsedBlock moves the reconciliation watermark forward.
func (r *WalletRepo) AdvanceParsedBlock(
	ctx context.Context,
	chain domain.Chain,
	chainType domain.ChainType,
	address string,
	blockNumber uint64,
) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE wallet SET last_parsed_block = $4, updated_at = now()
		 WHERE chain = $1 AND chain_type = $2 AND address = $3
		   AND last_parsed_block < $4`,
		chain, chainType, address, int64(blockNumber))
	if err != nil {
		return fmt.Errorf("failed to advance parsed block: %w", err)
	}
	return nil
}

// ResetNonces overwrites the nonce state of a wallet. Operator tooling only.
func (r *WalletRepo) ResetNonces(
	ctx context.Context,
	chain domain.Chain,
	chainType domain.ChainType,
	address string,
	nextNonce, lastProcessed uint64,
) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE wallet SET next_nonce = $4, last_processed_nonce = $5, updated_at = now()
		 WHERE chain = $1 AND chain_type = $2 AND address = $3`,
		chain, chainType, address, int64(nextNonce), int64(lastProcessed))
	if err != nil {
		return fmt.Errorf("failed to reset nonces: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrWalletNotFound
	}
	return nil
}
