package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/deweblabs/txrelay/internal/core/domain"
	"github.com/deweblabs/txrelay/internal/infra/storage"
)

const pgUniqueViolation = "23505"

// UnitOfWork bundles wallet selection, nonce allocation and transaction
// persistence into a single database transaction. The selected wallet row
// stays locked until Commit or Rollback, which serializes nonce allocation
// per wallet.
type UnitOfWork struct {
	tx *sqlx.Tx
}

// Begin starts a new unit of work.
func (db *DB) Begin(ctx context.Context) (storage.UnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &UnitOfWork{tx: tx}, nil
}

// SelectWalletForUpdate locks and returns the signing wallet. A preferred
// address wins when it exists; otherwise the wallet with the fewest pending
// transactions is picked.
func (u *UnitOfWork) SelectWalletForUpdate(
	ctx context.Context,
	chain domain.Chain,
	chainType domain.ChainType,
	preferred string,
) (*domain.Wallet, error) {
	var row walletRow

	if preferred != "" {
		err := u.tx.GetContext(ctx, &row,
			`SELECT * FROM wallet
			 WHERE chain = $1 AND chain_type = $2 AND address = $3
			 FOR UPDATE`,
			chain, chainType, preferred)
		if err == nil {
			return row.toDomain(), nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to select preferred wallet: %w", err)
		}
		// Unknown preferred address falls back to least-used selection.
	}

	// Postgres rejects FOR UPDATE on aggregated queries, so the least-used
	// wallet id is picked in a plain grouped subquery and the row lock is
	// taken on the outer select.
	err := u.tx.GetContext(ctx, &row,
		`SELECT * FROM wallet
		 WHERE id = (
			SELECT w.id FROM wallet w
			LEFT JOIN transaction_queue t
			  ON t.chain = w.chain AND t.chain_type = w.chain_type
			 AND t.address = w.address AND t.transaction_status = $3
			WHERE w.chain = $1 AND w.chain_type = $2
			GROUP BY w.id
			ORDER BY COUNT(t.id) ASC, w.id ASC
			LIMIT 1
		 )
		 FOR UPDATE`,
		chain, chainType, domain.TxStatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNoWalletAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select wallet: %w", err)
	}
	return row.toDomain(), nil
}

// AllocateNonce returns wallet.NextNonce and increments the stored value.
// Callers must have locked the wallet row via SelectWalletForUpdate.
func (u *UnitOfWork) AllocateNonce(ctx context.Context, wallet *domain.Wallet) (uint64, error) {
	var allocated int64
	err := u.tx.GetContext(ctx, &allocated,
		`UPDATE wallet SET next_nonce = next_nonce + 1, updated_at = now()
		 WHERE id = $1
		 RETURNING next_nonce - 1`,
		wallet.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate nonce: %w", err)
	}

	wallet.NextNonce = uint64(allocated) + 1
	return uint64(allocated), nil
}

// InsertTransaction persists a new PENDING transaction.
func (u *UnitOfWork) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	_, err := u.tx.ExecContext(ctx,
		`INSERT INTO transaction_queue
			(chain, chain_type, address, nonce, reference_table, reference_id,
			 raw_transaction, transaction_hash, transaction_status, webhook_triggered)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)`,
		tx.Chain, tx.ChainType, tx.Address, int64(tx.Nonce),
		tx.ReferenceTable, tx.ReferenceID,
		tx.RawTransaction, tx.TransactionHash, domain.TxStatusPending)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return storage.ErrDuplicateNonce
	}
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	tx.Status = domain.TxStatusPending
	return nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	return err
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}
