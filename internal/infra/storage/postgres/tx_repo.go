package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/deweblabs/txrelay/internal/core/domain"
	"github.com/deweblabs/txrelay/internal/infra/storage"
)

// txRow maps the transaction_queue table.
type txRow struct {
	ID               uint64    `db:"id"`
	Chain            string    `db:"chain"`
	ChainType        string    `db:"chain_type"`
	Address          string    `db:"address"`
	Nonce            int64     `db:"nonce"`
	ReferenceTable   string    `db:"reference_table"`
	ReferenceID      string    `db:"reference_id"`
	RawTransaction   string    `db:"raw_transaction"`
	TransactionHash  string    `db:"transaction_hash"`
	Status           string    `db:"transaction_status"`
	WebhookTriggered bool      `db:"webhook_triggered"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r txRow) toDomain() *domain.Transaction {
	return &domain.Transaction{
		ID:               r.ID,
		Chain:            domain.Chain(r.Chain),
		ChainType:        domain.ChainType(r.ChainType),
		Address:          r.Address,
		Nonce:            uint64(r.Nonce),
		ReferenceTable:   r.ReferenceTable,
		ReferenceID:      r.ReferenceID,
		RawTransaction:   r.RawTransaction,
		TransactionHash:  r.TransactionHash,
		Status:           domain.TxStatus(r.Status),
		WebhookTriggered: r.WebhookTriggered,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

// TxRepo implements storage.TransactionRepository using PostgreSQL.
type TxRepo struct {
	db *DB
}

// NewTxRepo creates a new PostgreSQL transaction repository.
func NewTxRepo(db *DB) *TxRepo {
	return &TxRepo{db: db}
}

// ListPending retrieves PENDING transactions ordered by nonce ascending.
func (r *TxRepo) ListPending(
	ctx context.Context,
	chain domain.Chain,
	chainType domain.ChainType,
	address string,
) ([]*domain.Transaction, error) {
	var rows []txRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM transaction_queue
		 WHERE chain = $1 AND chain_type = $2 AND address = $3
		   AND transaction_status = $4
		 ORDER BY nonce ASC`,
		chain, chainType, address, domain.TxStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}

	txs := make([]*domain.Transaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, row.toDomain())
	}
	return txs, nil
}

// UpdateStatusByHashes transitions matching rows to status and returns the
// hashes that matched. Rows already in the target status match as well, so a
// retried reconciliation window does not misreport its own transactions as
// anomalies; rows in the other terminal status are left alone.
func (r *TxRepo) UpdateStatusByHashes(
	ctx context.Context,
	chain domain.Chain,
	chainType domain.ChainType,
	address string,
	hashes []string,
	status domain.TxStatus,
) ([]string, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`UPDATE transaction_queue SET transaction_status = $5, updated_at = now()
		 WHERE chain = $1 AND chain_type = $2 AND address = $3
		   AND transaction_hash = ANY($4)
		   AND transaction_status IN ($6, $5)
		 RETURNING transaction_hash`,
		chain, chainType, address, pq.Array(hashes), status, domain.TxStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to update transaction statuses: %w", err)
	}
	defer rows.Close()

	var matched []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("failed to scan matched hash: %w", err)
		}
		matched = append(matched, hash)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read matched hashes: %w", err)
	}
	return matched, nil
}

// GetByReference looks a transaction up by its business-entity linkage.
func (r *TxRepo) GetByReference(
	ctx context.Context,
	referenceTable, referenceID string,
) (*domain.Transaction, error) {
	var row txRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM transaction_queue
		 WHERE reference_table = $1 AND reference_id = $2
		 ORDER BY id DESC LIMIT 1`,
		referenceTable, referenceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction by reference: %w", err)
	}
	return row.toDomain(), nil
}

// GetByHash looks a transaction up by its chain hash.
func (r *TxRepo) GetByHash(
	ctx context.Context,
	chain domain.Chain,
	chainType domain.ChainType,
	hash string,
) (*domain.Transaction, error) {
	var row txRow
	err := r.db.GetContext(ctx, &row,
		`SELECT * FROM transaction_queue
		 WHERE chain = $1 AND chain_type = $2 AND transaction_hash = $3`,
		chain, chainType, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction by hash: %w", err)
	}
	return row.toDomain(), nil
}

// ListUnnotified retrieves terminal transactions whose webhook has not fired.
func (r *TxRepo) ListUnnotified(
	ctx context.Context,
	chain domain.Chain,
	chainType domain.ChainType,
	address string,
) ([]*domain.Transaction, error) {
	var rows []txRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT * FROM transaction_queue
		 WHERE chain = $1 AND chain_type = $2 AND address = $3
		   AND transaction_status IN ($4, $5)
		   AND webhook_triggered = FALSE
		 ORDER BY nonce ASC`,
		chain, chainType, address, domain.TxStatusConfirmed, domain.TxStatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to list unnotified transactions: %w", err)
	}

	txs := make([]*domain.Transaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, row.toDomain())
	}
	return txs, nil
}

// MarkNotified flips the webhook flag for the given hashes.
func (r *TxRepo) MarkNotified(
	ctx context.Context,
	chain domain.Chain,
	chainType domain.ChainType,
	hashes []string,
) error {
	if len(hashes) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE transaction_queue SET webhook_triggered = TRUE, updated_at = now()
		 WHERE chain = $1 AND chain_type = $2 AND transaction_hash = ANY($3)`,
		chain, chainType, pq.Array(hashes))
	if err != nil {
		return fmt.Errorf("failed to mark transactions notified: %w", err)
	}
	return nil
}
