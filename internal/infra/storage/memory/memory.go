package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/deweblabs/txrelay/internal/core/domain"
	"github.com/deweblabs/txrelay/internal/infra/storage"
)

// MemoryStorage holds all state behind one mutex. Good enough for tests and
// local development; the mutex also serializes nonce allocation the way row
// locks do in PostgreSQL.
type MemoryStorage struct {
	mu      sync.Mutex
	wallets []*domain.Wallet
	txs     []*domain.Transaction
	nextID  uint64
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) findWallet(chain domain.Chain, chainType domain.ChainType, address string) *domain.Wallet {
	for _, w := range s.wallets {
		if w.Chain == chain && w.ChainType == chainType && w.Address == address {
			return w
		}
	}
	return nil
}

func (s *MemoryStorage) pendingCount(w *domain.Wallet) int {
	n := 0
	for _, t := range s.txs {
		if t.Chain == w.Chain && t.ChainType == w.ChainType &&
			t.Address == w.Address && t.Status == domain.TxStatusPending {
			n++
		}
	}
	return n
}

// -----------------------------------------------------------------------------
// Wallet Repository
// -----------------------------------------------------------------------------

type WalletRepo struct {
	store *MemoryStorage
}

func NewWalletRepo(store *MemoryStorage) *WalletRepo {
	return &WalletRepo{store: store}
}

func (r *WalletRepo) Get(ctx context.Context, chain domain.Chain, chainType domain.ChainType, address string) (*domain.Wallet, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	w := r.store.findWallet(chain, chainType, address)
	if w == nil {
		return nil, storage.ErrWalletNotFound
	}
	c := *w
	return &c, nil
}

func (r *WalletRepo) List(ctx context.Context, chain domain.Chain, chainType domain.ChainType) ([]*domain.Wallet, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*domain.Wallet
	for _, w := range r.store.wallets {
		if w.Chain == chain && w.ChainType == chainType {
			c := *w
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

func (r *WalletRepo) Create(ctx context.Context, wallet *domain.Wallet) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.nextID++
	c := *wallet
	c.ID = r.store.nextID
	r.store.wallets = append(r.store.wallets, &c)
	wallet.ID = c.ID
	return nil
}

func (r *WalletRepo) AdvanceProcessedNonce(ctx context.Context, chain domain.Chain, chainType domain.ChainType, address string, nonce uint64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	w := r.store.findWallet(chain, chainType, address)
	if w == nil {
		return storage.ErrWalletNotFound
	}
	if nonce > w.LastProcessedNonce {
		w.LastProcessedNonce = nonce
	}
	return nil
}

func (r *WalletRepo) AdvanceParsedBlock(ctx context.Context, chain domain.Chain, chainType domain.ChainType, address string, blockNumber uint64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	w := r.store.findWallet(chain, chainType, address)
	if w == nil {
		return storage.ErrWalletNotFound
	}
	if blockNumber > w.LastParsedBlock {
		w.LastParsedBlock = blockNumber
	}
	return nil
}

func (r *WalletRepo) ResetNonces(ctx context.Context, chain domain.Chain, chainType domain.ChainType, address string, nextNonce, lastProcessed uint64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	w := r.store.findWallet(chain, chainType, address)
	if w == nil {
		return storage.ErrWalletNotFound
	}
	w.NextNonce = nextNonce
	w.LastProcessedNonce = lastProcessed
	return nil
}

// -----------------------------------------------------------------------------
// Transaction Repository
// -----------------------------------------------------------------------------

type TxRepo struct {
	store *MemoryStorage
}

func NewTxRepo(store *MemoryStorage) *TxRepo {
	return &TxRepo{store: store}
}

func (r *TxRepo) ListPending(ctx context.Context, chain domain.Chain, chainType domain.ChainType, address string) ([]*domain.Transaction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*domain.Transaction
	for _, t := range r.store.txs {
		if t.Chain == chain && t.ChainType == chainType &&
			t.Address == address && t.Status == domain.TxStatusPending {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nonce < out[j].Nonce })
	return out, nil
}

func (r *TxRepo) UpdateStatusByHashes(ctx context.Context, chain domain.Chain, chainType domain.ChainType, address string, hashes []string, status domain.TxStatus) ([]string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	want := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		want[h] = true
	}

	var matched []string
	for _, t := range r.store.txs {
		if t.Chain != chain || t.ChainType != chainType || t.Address != address {
			continue
		}
		if !want[t.TransactionHash] {
			continue
		}
		if t.Status != domain.TxStatusPending && t.Status != status {
			continue
		}
		t.Status = status
		matched = append(matched, t.TransactionHash)
	}
	return matched, nil
}

func (r *TxRepo) GetByReference(ctx context.Context, referenceTable, referenceID string) (*domain.Transaction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for i := len(r.store.txs) - 1; i >= 0; i-- {
		t := r.store.txs[i]
		if t.ReferenceTable == referenceTable && t.ReferenceID == referenceID {
			c := *t
			return &c, nil
		}
	}
	return nil, storage.ErrTransactionNotFound
}

func (r *TxRepo) GetByHash(ctx context.Context, chain domain.Chain, chainType domain.ChainType, hash string) (*domain.Transaction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, t := range r.store.txs {
		if t.Chain == chain && t.ChainType == chainType && t.TransactionHash == hash {
			c := *t
			return &c, nil
		}
	}
	return nil, storage.ErrTransactionNotFound
}

func (r *TxRepo) ListUnnotified(ctx context.Context, chain domain.Chain, chainType domain.ChainType, address string) ([]*domain.Transaction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*domain.Transaction
	for _, t := range r.store.txs {
		if t.Chain == chain && t.ChainType == chainType && t.Address == address &&
			t.Status.Terminal() && !t.WebhookTriggered {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nonce < out[j].Nonce })
	return out, nil
}

func (r *TxRepo) MarkNotified(ctx context.Context, chain domain.Chain, chainType domain.ChainType, hashes []string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	want := make(map[string]bool, len(hashes))
	for _, h := range hashes {
		want[h] = true
	}
	for _, t := range r.store.txs {
		if t.Chain == chain && t.ChainType == chainType && want[t.TransactionHash] {
			t.WebhookTriggered = true
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Unit of Work
// -----------------------------------------------------------------------------

// unitOfWork stages its mutations and applies them on Commit, holding the
// store mutex for its whole lifetime. That mirrors the row-lock semantics of
// the PostgreSQL implementation: concurrent allocations for the same store
// serialize, and a rollback leaves the nonce unconsumed.
type unitOfWork struct {
	store     *MemoryStorage
	done      bool
	allocated map[*domain.Wallet]uint64 // wallet -> nonces allocated
	staged    []*domain.Transaction
}

func (s *MemoryStorage) Begin(ctx context.Context) (storage.UnitOfWork, error) {
	s.mu.Lock()
	return &unitOfWork{
		store:     s,
		allocated: make(map[*domain.Wallet]uint64),
	}, nil
}

func (u *unitOfWork) SelectWalletForUpdate(ctx context.Context, chain domain.Chain, chainType domain.ChainType, preferred string) (*domain.Wallet, error) {
	if preferred != "" {
		if w := u.store.findWallet(chain, chainType, preferred); w != nil {
			return u.view(w), nil
		}
	}

	var best *domain.Wallet
	bestPending := 0
	for _, w := range u.store.wallets {
		if w.Chain != chain || w.ChainType != chainType {
			continue
		}
		pending := u.store.pendingCount(w)
		if best == nil || pending < bestPending {
			best, bestPending = w, pending
		}
	}
	if best == nil {
		return nil, storage.ErrNoWalletAvailable
	}
	return u.view(best), nil
}

// view returns a copy reflecting allocations staged in this unit.
func (u *unitOfWork) view(w *domain.Wallet) *domain.Wallet {
	c := *w
	c.NextNonce += u.allocated[w]
	return &c
}

func (u *unitOfWork) AllocateNonce(ctx context.Context, wallet *domain.Wallet) (uint64, error) {
	stored := u.store.findWallet(wallet.Chain, wallet.ChainType, wallet.Address)
	if stored == nil {
		return 0, storage.ErrWalletNotFound
	}
	nonce := stored.NextNonce + u.allocated[stored]
	u.allocated[stored]++
	wallet.NextNonce = nonce + 1
	return nonce, nil
}

func (u *unitOfWork) InsertTransaction(ctx context.Context, tx *domain.Transaction) error {
	for _, existing := range append(u.store.txs, u.staged...) {
		if existing.Chain == tx.Chain && existing.ChainType == tx.ChainType &&
			existing.Address == tx.Address && existing.Nonce == tx.Nonce {
			return storage.ErrDuplicateNonce
		}
	}
	tx.Status = domain.TxStatusPending
	c := *tx
	u.staged = append(u.staged, &c)
	return nil
}

func (u *unitOfWork) Commit() error {
	if u.done {
		return nil
	}
	for w, n := range u.allocated {
		w.NextNonce += n
	}
	for _, t := range u.staged {
		u.store.nextID++
		t.ID = u.store.nextID
		u.store.txs = append(u.store.txs, t)
	}
	u.done = true
	u.store.mu.Unlock()
	return nil
}

func (u *unitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	u.store.mu.Unlock()
	return nil
}
