// Package reconcile implements the reconciliation worker: matching indexer
// results against stored transactions over an advancing block window.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deweblabs/txrelay/internal/core/domain"
	"github.com/deweblabs/txrelay/internal/engine/metrics"
	"github.com/deweblabs/txrelay/internal/engine/notify"
	"github.com/deweblabs/txrelay/internal/infra/indexer"
	"github.com/deweblabs/txrelay/internal/infra/storage"
)

// Notifier delivers terminal-status notifications. Failures here must not
// roll back status updates already committed.
type Notifier interface {
	Notify(ctx context.Context, batch notify.Batch) error
}

// Worker reconciles wallet windows against the chain indexer.
type Worker struct {
	wallets  storage.WalletRepository
	txs      storage.TransactionRepository
	indexers map[domain.ChainRef]indexer.Client
	notifier Notifier
	log      *slog.Logger
}

// NewWorker creates a reconciliation worker.
func NewWorker(
	wallets storage.WalletRepository,
	txs storage.TransactionRepository,
	indexers map[domain.ChainRef]indexer.Client,
	notifier Notifier,
	log *slog.Logger,
) *Worker {
	return &Worker{
		wallets:  wallets,
		txs:      txs,
		indexers: indexers,
		notifier: notifier,
		log:      log,
	}
}

// Run reconciles every wallet of a (chain, chainType) sequentially. A
// failing wallet never aborts the others; its window is retried in full on
// the next run.
func (w *Worker) Run(ctx context.Context, chainName domain.Chain, chainType domain.ChainType) error {
	ref := domain.ChainRef{Chain: chainName, ChainType: chainType}
	idx, ok := w.indexers[ref]
	if !ok {
		return fmt.Errorf("%w: no indexer for %s", domain.ErrInvalidChain, ref)
	}

	wallets, err := w.wallets.List(ctx, chainName, chainType)
	if err != nil {
		return fmt.Errorf("list wallets: %w", err)
	}

	for _, wallet := range wallets {
		if err := w.runWallet(ctx, idx, wallet); err != nil {
			w.log.Error("Reconciliation failed for wallet",
				"chain", ref.String(),
				"address", wallet.Address,
				"error", err,
			)
		}
	}
	return nil
}

// runWallet processes one block window for one wallet. The watermark only
// advances after every step succeeded, so a failed window is replayed
// whole; matching and status updates are safe to repeat.
func (w *Worker) runWallet(ctx context.Context, idx indexer.Client, wallet *domain.Wallet) error {
	start := time.Now()

	height, err := idx.GetBlockHeight(ctx)
	if err != nil {
		return fmt.Errorf("fetch indexer height: %w", err)
	}
	metrics.IndexerHeight.WithLabelValues(string(wallet.Chain)).Set(float64(height))

	if height <= wallet.LastParsedBlock {
		return nil
	}

	toBlock := wallet.LastParsedBlock + wallet.BlockParseSize
	if toBlock > height {
		toBlock = height
	}
	fromBlock := wallet.LastParsedBlock

	deposits, err := idx.GetDeposits(ctx, wallet.Address, fromBlock, toBlock)
	if err != nil {
		return fmt.Errorf("fetch deposits: %w", err)
	}
	withdrawals, err := idx.GetWithdrawals(ctx, wallet.Address, fromBlock, toBlock)
	if err != nil {
		return fmt.Errorf("fetch withdrawals: %w", err)
	}
	events, err := idx.GetDomainEvents(ctx, wallet.Address, fromBlock, toBlock)
	if err != nil {
		return fmt.Errorf("fetch domain events: %w", err)
	}

	// Domain events are the settlement evidence: partition by on-chain
	// status and transition matching stored rows.
	var confirmedHashes, failedHashes []string
	for _, ev := range events {
		if ev.Status == domain.OnChainSuccess {
			confirmedHashes = append(confirmedHashes, ev.ExtrinsicHash)
		} else {
			failedHashes = append(failedHashes, ev.ExtrinsicHash)
		}
	}

	confirmed, err := w.txs.UpdateStatusByHashes(
		ctx, wallet.Chain, wallet.ChainType, wallet.Address, confirmedHashes, domain.TxStatusConfirmed)
	if err != nil {
		return fmt.Errorf("confirm transactions: %w", err)
	}
	failed, err := w.txs.UpdateStatusByHashes(
		ctx, wallet.Chain, wallet.ChainType, wallet.Address, failedHashes, domain.TxStatusFailed)
	if err != nil {
		return fmt.Errorf("fail transactions: %w", err)
	}
	metrics.TransactionsReconciled.
		WithLabelValues(string(wallet.Chain), string(domain.TxStatusConfirmed)).
		Add(float64(len(confirmed)))
	metrics.TransactionsReconciled.
		WithLabelValues(string(wallet.Chain), string(domain.TxStatusFailed)).
		Add(float64(len(failed)))

	w.classifyAnomalies(ctx, wallet, events, withdrawals, deposits, toMatchedSet(confirmed, failed))

	if err := w.notifyTerminal(ctx, wallet); err != nil {
		// Best effort; the rows stay unnotified and are picked up again.
		w.log.Warn("Webhook notification failed",
			"address", wallet.Address,
			"error", err,
		)
	}

	if err := w.wallets.AdvanceParsedBlock(ctx, wallet.Chain, wallet.ChainType, wallet.Address, toBlock); err != nil {
		return fmt.Errorf("advance parsed block: %w", err)
	}

	metrics.ReconcileWindowSeconds.
		WithLabelValues(string(wallet.Chain)).
		Observe(time.Since(start).Seconds())

	w.log.Debug("Reconciled wallet window",
		"address", wallet.Address,
		"from_block", fromBlock,
		"to_block", toBlock,
		"confirmed", len(confirmed),
		"failed", len(failed),
	)
	return nil
}

func toMatchedSet(groups ...[]string) map[string]bool {
	set := make(map[string]bool)
	for _, g := range groups {
		for _, h := range g {
			set[h] = true
		}
	}
	return set
}

// classifyAnomalies flags indexer results that do not correspond to a
// transaction this system created. Anomalies never fail the worker run.
func (w *Worker) classifyAnomalies(
	ctx context.Context,
	wallet *domain.Wallet,
	events []domain.DomainEvent,
	withdrawals, deposits []domain.Transfer,
	matched map[string]bool,
) {
	for _, ev := range events {
		if matched[ev.ExtrinsicHash] {
			continue
		}
		metrics.ReconcileAnomalies.WithLabelValues(string(wallet.Chain), "event").Inc()
		w.log.Warn("Unknown domain event from custodial wallet",
			"address", wallet.Address,
			"kind", ev.Kind,
			"hash", ev.ExtrinsicHash,
			"block", ev.BlockNumber,
		)
	}

	// Withdrawals are not expected to originate here at all; one that does
	// not match a stored transaction means funds left custody outside this
	// system. Withdrawal evidence deliberately never drives status updates.
	for _, t := range withdrawals {
		_, err := w.txs.GetByHash(ctx, wallet.Chain, wallet.ChainType, t.ExtrinsicHash)
		if errors.Is(err, storage.ErrTransactionNotFound) {
			metrics.ReconcileAnomalies.WithLabelValues(string(wallet.Chain), "withdrawal").Inc()
			w.log.Error("ALERT: unmatched withdrawal from custodial wallet",
				"address", wallet.Address,
				"hash", t.ExtrinsicHash,
				"amount", t.Amount,
				"to", t.To,
				"block", t.BlockNumber,
			)
		} else if err != nil {
			w.log.Warn("Failed to match withdrawal", "hash", t.ExtrinsicHash, "error", err)
		}
	}

	for _, t := range deposits {
		metrics.DepositsObserved.WithLabelValues(string(wallet.Chain)).Inc()
		w.log.Info("Deposit observed",
			"address", wallet.Address,
			"hash", t.ExtrinsicHash,
			"amount", t.Amount,
			"from", t.From,
			"block", t.BlockNumber,
		)
	}
}

// notifyTerminal fires the downstream webhook exactly once per transaction,
// guarded by the stored webhook flag.
func (w *Worker) notifyTerminal(ctx context.Context, wallet *domain.Wallet) error {
	unnotified, err := w.txs.ListUnnotified(ctx, wallet.Chain, wallet.ChainType, wallet.Address)
	if err != nil {
		return fmt.Errorf("list unnotified: %w", err)
	}
	if len(unnotified) == 0 {
		return nil
	}

	batch := notify.Batch{
		Chain:     wallet.Chain,
		ChainType: wallet.ChainType,
		Address:   wallet.Address,
	}
	var hashes []string
	for _, tx := range unnotified {
		hashes = append(hashes, tx.TransactionHash)
		if tx.Status == domain.TxStatusConfirmed {
			batch.Confirmed = append(batch.Confirmed, tx.TransactionHash)
		} else {
			batch.Failed = append(batch.Failed, tx.TransactionHash)
		}
	}

	if err := w.notifier.Notify(ctx, batch); err != nil {
		return err
	}
	return w.txs.MarkNotified(ctx, wallet.Chain, wallet.ChainType, hashes)
}
