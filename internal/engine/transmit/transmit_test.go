package transmit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/deweblabs/txrelay/internal/core/config"
	"github.com/deweblabs/txrelay/internal/core/domain"
	"github.com/deweblabs/txrelay/internal/infra/chain"
	"github.com/deweblabs/txrelay/internal/infra/indexer"
	"github.com/deweblabs/txrelay/internal/infra/storage/memory"
)

type fakeProvider struct {
	submitErrs map[string]error // raw transaction -> error
	submitted  []string
}

func (p *fakeProvider) Submit(ctx context.Context, raw string) error {
	p.submitted = append(p.submitted, raw)
	return p.submitErrs[raw]
}

func (p *fakeProvider) AccountNonce(ctx context.Context, address string) (uint64, error) {
	return 0, nil
}

func (p *fakeProvider) Head(ctx context.Context) (chain.Header, error) {
	return chain.Header{}, nil
}

func (p *fakeProvider) Close() {}

type fakeIndexer struct {
	found map[string]indexer.ExtrinsicStatus // hash -> status
	err   error
}

func (f *fakeIndexer) GetDeposits(ctx context.Context, address string, from, to uint64) ([]domain.Transfer, error) {
	return nil, nil
}

func (f *fakeIndexer) GetWithdrawals(ctx context.Context, address string, from, to uint64) ([]domain.Transfer, error) {
	return nil, nil
}

func (f *fakeIndexer) GetDomainEvents(ctx context.Context, address string, from, to uint64) ([]domain.DomainEvent, error) {
	return nil, nil
}

func (f *fakeIndexer) GetBlockHeight(ctx context.Context) (uint64, error) {
	return 0, f.err
}

func (f *fakeIndexer) FindExtrinsic(ctx context.Context, hash string) (indexer.ExtrinsicStatus, error) {
	if f.err != nil {
		return indexer.ExtrinsicStatus{}, f.err
	}
	return f.found[hash], nil
}

type fakeLease struct {
	released   bool
	releaseErr error
}

func (l *fakeLease) Release(ctx context.Context) error {
	l.released = true
	return l.releaseErr
}

type fakeLocker struct {
	busy       bool
	acquired   int
	releaseErr error
	lease      *fakeLease
}

func (l *fakeLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	if l.busy {
		return nil, ErrLeaseBusy
	}
	l.acquired++
	l.lease = &fakeLease{releaseErr: l.releaseErr}
	return l.lease, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testChains() []config.ChainConfig {
	return []config.ChainConfig{{
		Chain:     domain.ChainCrust,
		ChainType: domain.ChainTypeMainnet,
		Endpoint:  "http://node.local",
	}}
}

// fixture seeds one wallet with lastProcessedNonce and a pending
// transaction for every nonce given.
func fixture(t *testing.T, lastProcessed uint64, nonces ...uint64) *memory.MemoryStorage {
	t.Helper()
	ctx := context.Background()
	store := memory.NewMemoryStorage()

	err := memory.NewWalletRepo(store).Create(ctx, &domain.Wallet{
		Chain:              domain.ChainCrust,
		ChainType:          domain.ChainTypeMainnet,
		Address:            "addr-1",
		LastProcessedNonce: lastProcessed,
		BlockParseSize:     10,
	})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	for _, nonce := range nonces {
		uow, err := store.Begin(ctx)
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		err = uow.InsertTransaction(ctx, &domain.Transaction{
			Chain:           domain.ChainCrust,
			ChainType:       domain.ChainTypeMainnet,
			Address:         "addr-1",
			Nonce:           nonce,
			RawTransaction:  rawFor(nonce),
			TransactionHash: hashFor(nonce),
		})
		if err != nil {
			t.Fatalf("insert nonce %d: %v", nonce, err)
		}
		if err := uow.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
	return store
}

func rawFor(nonce uint64) string  { return string(rune('a'+nonce)) + "-raw" }
func hashFor(nonce uint64) string { return string(rune('a'+nonce)) + "-hash" }

func newWorker(store *memory.MemoryStorage, p *fakeProvider, idx *fakeIndexer, l *fakeLocker) *Worker {
	ref := domain.ChainRef{Chain: domain.ChainCrust, ChainType: domain.ChainTypeMainnet}
	dial := func(ctx context.Context, endpoint string) (chain.Provider, error) { return p, nil }
	return NewWorker(
		testChains(),
		memory.NewWalletRepo(store),
		memory.NewTxRepo(store),
		dial,
		map[domain.ChainRef]indexer.Client{ref: idx},
		l,
		discardLogger(),
	)
}

func lastProcessed(t *testing.T, store *memory.MemoryStorage) uint64 {
	t.Helper()
	w, err := memory.NewWalletRepo(store).Get(
		context.Background(), domain.ChainCrust, domain.ChainTypeMainnet, "addr-1")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	return w.LastProcessedNonce
}

func TestRunSubmitsInNonceOrder(t *testing.T) {
	store := fixture(t, 2, 3, 4, 5)
	provider := &fakeProvider{}
	locker := &fakeLocker{}
	w := newWorker(store, provider, &fakeIndexer{}, locker)

	if err := w.Run(context.Background(), domain.ChainCrust, domain.ChainTypeMainnet); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{rawFor(3), rawFor(4), rawFor(5)}
	if len(provider.submitted) != len(want) {
		t.Fatalf("submitted %d transactions, want %d", len(provider.submitted), len(want))
	}
	for i, raw := range want {
		if provider.submitted[i] != raw {
			t.Errorf("submitted[%d] = %s, want %s", i, provider.submitted[i], raw)
		}
	}
	if got := lastProcessed(t, store); got != 5 {
		t.Errorf("lastProcessedNonce = %d, want 5", got)
	}
	if locker.lease == nil || !locker.lease.released {
		t.Error("lease not released")
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	store := fixture(t, 2, 3, 4, 5)
	provider := &fakeProvider{
		submitErrs: map[string]error{rawFor(4): chain.ErrRejected},
	}
	w := newWorker(store, provider, &fakeIndexer{}, &fakeLocker{})

	if err := w.Run(context.Background(), domain.ChainCrust, domain.ChainTypeMainnet); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Nonce 3 went out, 4 failed without indexer evidence, 5 must never
	// reach the chain.
	if len(provider.submitted) != 2 {
		t.Fatalf("submitted %d transactions, want 2", len(provider.submitted))
	}
	if provider.submitted[1] != rawFor(4) {
		t.Errorf("last submission = %s, want %s", provider.submitted[1], rawFor(4))
	}
	if got := lastProcessed(t, store); got != 3 {
		t.Errorf("lastProcessedNonce = %d, want 3", got)
	}

	pending, err := memory.NewTxRepo(store).ListPending(
		context.Background(), domain.ChainCrust, domain.ChainTypeMainnet, "addr-1")
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	// Submission never changes status; reconciliation does.
	if len(pending) != 3 {
		t.Errorf("pending count = %d, want 3", len(pending))
	}
}

func TestRunSelfRepairAdvances(t *testing.T) {
	store := fixture(t, 2, 3, 4)
	provider := &fakeProvider{
		submitErrs: map[string]error{rawFor(3): chain.ErrRejected},
	}
	idx := &fakeIndexer{found: map[string]indexer.ExtrinsicStatus{
		hashFor(3): {Found: true, Success: true, BlockNumber: 90},
	}}
	w := newWorker(store, provider, idx, &fakeLocker{})

	if err := w.Run(context.Background(), domain.ChainCrust, domain.ChainTypeMainnet); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Nonce 3 was rejected because it already landed; the indexer confirms
	// it and the run continues with 4.
	if len(provider.submitted) != 2 {
		t.Fatalf("submitted %d transactions, want 2", len(provider.submitted))
	}
	if provider.submitted[1] != rawFor(4) {
		t.Errorf("second submission = %s, want %s", provider.submitted[1], rawFor(4))
	}
	if got := lastProcessed(t, store); got != 4 {
		t.Errorf("lastProcessedNonce = %d, want 4", got)
	}
}

func TestRunIndexerDownLeavesStateUntouched(t *testing.T) {
	store := fixture(t, 2, 3, 4)
	provider := &fakeProvider{
		submitErrs: map[string]error{rawFor(3): chain.ErrUnavailable},
	}
	idx := &fakeIndexer{err: indexer.ErrUnavailable}
	w := newWorker(store, provider, idx, &fakeLocker{})

	if err := w.Run(context.Background(), domain.ChainCrust, domain.ChainTypeMainnet); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Without indexer evidence the failure is undecidable: no advancement,
	// no further submissions.
	if len(provider.submitted) != 1 {
		t.Errorf("submitted %d transactions, want 1", len(provider.submitted))
	}
	if got := lastProcessed(t, store); got != 2 {
		t.Errorf("lastProcessedNonce = %d, want 2", got)
	}
}

func TestRunSkipsAlreadySubmitted(t *testing.T) {
	store := fixture(t, 3, 3, 4)
	provider := &fakeProvider{}
	w := newWorker(store, provider, &fakeIndexer{}, &fakeLocker{})

	if err := w.Run(context.Background(), domain.ChainCrust, domain.ChainTypeMainnet); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Nonce 3 is at the watermark: submitted earlier, awaiting
	// reconciliation. Only 4 goes out.
	if len(provider.submitted) != 1 || provider.submitted[0] != rawFor(4) {
		t.Errorf("submitted = %v, want [%s]", provider.submitted, rawFor(4))
	}
	if got := lastProcessed(t, store); got != 4 {
		t.Errorf("lastProcessedNonce = %d, want 4", got)
	}
}

func TestRunFreshWalletSubmitsNonceZero(t *testing.T) {
	store := fixture(t, 0, 0, 1)
	provider := &fakeProvider{}
	w := newWorker(store, provider, &fakeIndexer{}, &fakeLocker{})

	if err := w.Run(context.Background(), domain.ChainCrust, domain.ChainTypeMainnet); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Watermark 0 on a fresh wallet does not mean nonce 0 was submitted.
	want := []string{rawFor(0), rawFor(1)}
	if len(provider.submitted) != len(want) {
		t.Fatalf("submitted %d transactions, want %d", len(provider.submitted), len(want))
	}
	for i, raw := range want {
		if provider.submitted[i] != raw {
			t.Errorf("submitted[%d] = %s, want %s", i, provider.submitted[i], raw)
		}
	}
	if got := lastProcessed(t, store); got != 1 {
		t.Errorf("lastProcessedNonce = %d, want 1", got)
	}
}

func TestRunNonceZeroReplayRepairs(t *testing.T) {
	// Nonce 0 already landed in a crashed run; watermark is still 0. The
	// replay is rejected by the chain and the indexer evidence moves on.
	store := fixture(t, 0, 0, 1)
	provider := &fakeProvider{
		submitErrs: map[string]error{rawFor(0): chain.ErrRejected},
	}
	idx := &fakeIndexer{found: map[string]indexer.ExtrinsicStatus{
		hashFor(0): {Found: true, Success: true, BlockNumber: 12},
	}}
	w := newWorker(store, provider, idx, &fakeLocker{})

	if err := w.Run(context.Background(), domain.ChainCrust, domain.ChainTypeMainnet); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(provider.submitted) != 2 {
		t.Fatalf("submitted %d transactions, want 2", len(provider.submitted))
	}
	if got := lastProcessed(t, store); got != 1 {
		t.Errorf("lastProcessedNonce = %d, want 1", got)
	}
}

func TestRunNonceGapSkipsWallet(t *testing.T) {
	store := fixture(t, 2, 4, 5) // nonce 3 missing
	provider := &fakeProvider{}
	w := newWorker(store, provider, &fakeIndexer{}, &fakeLocker{})

	if err := w.Run(context.Background(), domain.ChainCrust, domain.ChainTypeMainnet); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(provider.submitted) != 0 {
		t.Errorf("submitted %d transactions across a nonce gap, want 0", len(provider.submitted))
	}
	if got := lastProcessed(t, store); got != 2 {
		t.Errorf("lastProcessedNonce = %d, want 2", got)
	}
}

func TestRunLeaseBusySkipsWallet(t *testing.T) {
	store := fixture(t, 2, 3)
	provider := &fakeProvider{}
	w := newWorker(store, provider, &fakeIndexer{}, &fakeLocker{busy: true})

	if err := w.Run(context.Background(), domain.ChainCrust, domain.ChainTypeMainnet); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(provider.submitted) != 0 {
		t.Errorf("submitted %d transactions with lease held, want 0", len(provider.submitted))
	}
}

func TestRunLeaseReleaseFailureIsLoggedNotFatal(t *testing.T) {
	store := fixture(t, 2, 3)
	provider := &fakeProvider{}
	locker := &fakeLocker{releaseErr: errors.New("redis gone")}
	idx := &fakeIndexer{}

	var logBuf bytes.Buffer
	ref := domain.ChainRef{Chain: domain.ChainCrust, ChainType: domain.ChainTypeMainnet}
	dial := func(ctx context.Context, endpoint string) (chain.Provider, error) { return provider, nil }
	w := NewWorker(
		testChains(),
		memory.NewWalletRepo(store),
		memory.NewTxRepo(store),
		dial,
		map[domain.ChainRef]indexer.Client{ref: idx},
		locker,
		slog.New(slog.NewTextHandler(&logBuf, nil)),
	)

	if err := w.Run(context.Background(), domain.ChainCrust, domain.ChainTypeMainnet); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(provider.submitted) != 1 {
		t.Errorf("submitted %d transactions, want 1", len(provider.submitted))
	}
	if got := lastProcessed(t, store); got != 3 {
		t.Errorf("lastProcessedNonce = %d, want 3", got)
	}
	if !strings.Contains(logBuf.String(), "Failed to release transmission lease") {
		t.Error("release failure was not logged")
	}
}

func TestRunUnknownChain(t *testing.T) {
	store := fixture(t, 0)
	w := newWorker(store, &fakeProvider{}, &fakeIndexer{}, &fakeLocker{})

	err := w.Run(context.Background(), domain.ChainPeaq, domain.ChainTypeMainnet)
	if !errors.Is(err, domain.ErrInvalidChain) {
		t.Errorf("Run() error = %v, want ErrInvalidChain", err)
	}
}
