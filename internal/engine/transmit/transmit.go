// Package transmit implements the transmission worker: pushing pending
// transactions to the chain in strict nonce order, one wallet at a time.
package transmit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deweblabs/txrelay/internal/core/config"
	"github.com/deweblabs/txrelay/internal/core/domain"
	"github.com/deweblabs/txrelay/internal/engine/metrics"
	"github.com/deweblabs/txrelay/internal/infra/chain"
	"github.com/deweblabs/txrelay/internal/infra/indexer"
	"github.com/deweblabs/txrelay/internal/infra/storage"
)

// ErrLeaseBusy signals another run holds a wallet's transmission lease.
var ErrLeaseBusy = errors.New("transmission lease busy")

// Lease is a held per-wallet exclusion lease.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out per-wallet leases. At most one transmission run per
// wallet may be active at a time; the lease enforces what the scheduler is
// asked to guarantee, and the self-repair path below covers the rest.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
}

const leaseTTL = 2 * time.Minute

// Worker submits outstanding signed transactions per wallet.
type Worker struct {
	chains   map[domain.ChainRef]config.ChainConfig
	wallets  storage.WalletRepository
	txs      storage.TransactionRepository
	dial     chain.DialFunc
	indexers map[domain.ChainRef]indexer.Client
	locker   Locker
	log      *slog.Logger
}

// NewWorker creates a transmission worker.
func NewWorker(
	chains []config.ChainConfig,
	wallets storage.WalletRepository,
	txs storage.TransactionRepository,
	dial chain.DialFunc,
	indexers map[domain.ChainRef]indexer.Client,
	locker Locker,
	log *slog.Logger,
) *Worker {
	byRef := make(map[domain.ChainRef]config.ChainConfig, len(chains))
	for _, c := range chains {
		byRef[c.Ref()] = c
	}
	return &Worker{
		chains:   byRef,
		wallets:  wallets,
		txs:      txs,
		dial:     dial,
		indexers: indexers,
		locker:   locker,
		log:      log,
	}
}

// Run processes every wallet of a (chain, chainType) sequentially. A
// failing wallet never aborts the others.
func (w *Worker) Run(ctx context.Context, chainName domain.Chain, chainType domain.ChainType) error {
	ref := domain.ChainRef{Chain: chainName, ChainType: chainType}
	cfg, ok := w.chains[ref]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrInvalidChain, ref)
	}
	idx, ok := w.indexers[ref]
	if !ok {
		return fmt.Errorf("%w: no indexer for %s", domain.ErrInvalidChain, ref)
	}

	wallets, err := w.wallets.List(ctx, chainName, chainType)
	if err != nil {
		return fmt.Errorf("list wallets: %w", err)
	}
	if len(wallets) == 0 {
		return nil
	}

	provider, err := w.dial(ctx, cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("connect provider: %w", err)
	}
	defer provider.Close()

	for _, wallet := range wallets {
		if err := w.runWallet(ctx, provider, idx, wallet); err != nil {
			w.log.Error("Transmission failed for wallet",
				"chain", ref.String(),
				"address", wallet.Address,
				"error", err,
			)
		}
	}
	return nil
}

// runWallet submits the wallet's unsubmitted pending transactions in nonce
// order, stopping at the first failure so the chain never sees an
// out-of-order nonce.
func (w *Worker) runWallet(
	ctx context.Context,
	provider chain.Provider,
	idx indexer.Client,
	wallet *domain.Wallet,
) error {
	leaseName := fmt.Sprintf("transmit:%s:%s", wallet.Ref(), wallet.Address)
	lease, err := w.locker.Acquire(ctx, leaseName, leaseTTL)
	if errors.Is(err, ErrLeaseBusy) {
		w.log.Debug("Skipping wallet, transmission lease held", "address", wallet.Address)
		return nil
	}
	if err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	defer func() {
		// The lease TTL cleans up after a failed release, but the operator
		// should still see it.
		if err := lease.Release(ctx); err != nil {
			w.log.Warn("Failed to release transmission lease",
				"lease", leaseName, "error", err)
		}
	}()

	pending, err := w.txs.ListPending(ctx, wallet.Chain, wallet.ChainType, wallet.Address)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	metrics.WalletPendingDepth.
		WithLabelValues(string(wallet.Chain), wallet.Address).
		Set(float64(len(pending)))

	// Pending rows at or below the watermark were already submitted and are
	// waiting on reconciliation. A fresh wallet is the exception: watermark 0
	// cannot record that nonce 0 went out, so a pending nonce-0 row is always
	// attempted. Resubmitting the identical raw bytes is safe, the chain
	// rejects the replay and the self-repair path advances past it.
	start := wallet.LastProcessedNonce + 1
	if wallet.LastProcessedNonce == 0 && len(pending) > 0 && pending[0].Nonce == 0 {
		start = 0
	}
	toSend := pending[:0:0]
	for _, tx := range pending {
		if tx.Nonce >= start {
			toSend = append(toSend, tx)
		}
	}
	if len(toSend) == 0 {
		return nil
	}

	if toSend[0].Nonce != start {
		// Nonce drift. The single-writer assumption was violated; renumbering
		// automatically would only make it worse.
		w.log.Error("ALERT: nonce gap detected, skipping wallet",
			"chain", wallet.Ref().String(),
			"address", wallet.Address,
			"expected", start,
			"next_pending", toSend[0].Nonce,
		)
		return nil
	}

	var (
		attempted   []string
		highest     uint64
		anySent     bool
		stoppedAt   *domain.Transaction
		submitError error
	)

	for _, tx := range toSend {
		attempted = append(attempted, tx.TransactionHash)

		err := provider.Submit(ctx, tx.RawTransaction)
		if err == nil {
			highest, anySent = tx.Nonce, true
			metrics.TransactionsSubmitted.WithLabelValues(string(wallet.Chain)).Inc()
			continue
		}

		// Before treating the failure as fatal, check whether this nonce
		// already landed in a previous run whose success response was lost.
		status, idxErr := idx.FindExtrinsic(ctx, tx.TransactionHash)
		if idxErr != nil {
			// Without indexer evidence there is nothing safe to decide. Leave
			// all state untouched; the next run retries.
			return fmt.Errorf("self-repair aborted, indexer unreachable: %w", idxErr)
		}
		if status.Found {
			w.log.Warn("Self-repair: transaction already on chain, advancing",
				"address", wallet.Address,
				"nonce", tx.Nonce,
				"hash", tx.TransactionHash,
				"block", status.BlockNumber,
			)
			metrics.SelfRepairs.WithLabelValues(string(wallet.Chain)).Inc()
			highest, anySent = tx.Nonce, true
			continue
		}

		// Indexer has no record: transient provider failure, safe to retry on
		// the next run. Stop here to preserve nonce ordering.
		stoppedAt, submitError = tx, err
		break
	}

	if stoppedAt != nil {
		metrics.SubmissionFailures.WithLabelValues(string(wallet.Chain)).Inc()
		w.log.Error("Submission stopped at first failure",
			"chain", wallet.Ref().String(),
			"address", wallet.Address,
			"failed_nonce", stoppedAt.Nonce,
			"attempted_hashes", attempted,
			"error", submitError,
		)
	}

	if anySent {
		if err := w.wallets.AdvanceProcessedNonce(ctx, wallet.Chain, wallet.ChainType, wallet.Address, highest); err != nil {
			return fmt.Errorf("advance processed nonce: %w", err)
		}
	}
	return nil
}
