package health

import (
	"context"
	"errors"
	"testing"

	"github.com/deweblabs/txrelay/internal/core/domain"
	"github.com/deweblabs/txrelay/internal/infra/indexer"
	"github.com/deweblabs/txrelay/internal/infra/storage/memory"
)

type stubIndexer struct {
	height uint64
	err    error
}

func (s *stubIndexer) GetDeposits(ctx context.Context, a string, f, t uint64) ([]domain.Transfer, error) {
	return nil, nil
}
func (s *stubIndexer) GetWithdrawals(ctx context.Context, a string, f, t uint64) ([]domain.Transfer, error) {
	return nil, nil
}
func (s *stubIndexer) GetDomainEvents(ctx context.Context, a string, f, t uint64) ([]domain.DomainEvent, error) {
	return nil, nil
}
func (s *stubIndexer) GetBlockHeight(ctx context.Context) (uint64, error) {
	return s.height, s.err
}
func (s *stubIndexer) FindExtrinsic(ctx context.Context, h string) (indexer.ExtrinsicStatus, error) {
	return indexer.ExtrinsicStatus{}, nil
}

type stubPinger struct{ err error }

func (s *stubPinger) Health(ctx context.Context) error { return s.err }

func newTestMonitor(t *testing.T, lastParsed uint64, idx indexer.Client, db, redis Pinger) *Monitor {
	t.Helper()
	ref := domain.ChainRef{Chain: domain.ChainCrust, ChainType: domain.ChainTypeMainnet}
	store := memory.NewMemoryStorage()
	wallets := memory.NewWalletRepo(store)
	err := wallets.Create(context.Background(), &domain.Wallet{
		Chain:           ref.Chain,
		ChainType:       ref.ChainType,
		Address:         "addr-1",
		LastParsedBlock: lastParsed,
		BlockParseSize:  10,
	})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return NewMonitor(
		[]domain.ChainRef{ref},
		wallets,
		memory.NewTxRepo(store),
		map[domain.ChainRef]indexer.Client{ref: idx},
		db, redis,
	)
}

func TestCheckHealthHealthy(t *testing.T) {
	m := newTestMonitor(t, 100, &stubIndexer{height: 110}, &stubPinger{}, &stubPinger{})

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("system status = %s, want healthy", report.SystemStatus)
	}
	ch := report.Chains["crust/mainnet"]
	if ch.IndexerLag != 10 {
		t.Errorf("indexer lag = %d, want 10", ch.IndexerLag)
	}
	if ch.Wallets != 1 {
		t.Errorf("wallets = %d, want 1", ch.Wallets)
	}
}

func TestCheckHealthIndexerLagDegrades(t *testing.T) {
	m := newTestMonitor(t, 100, &stubIndexer{height: 300}, nil, nil)

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("system status = %s, want degraded", report.SystemStatus)
	}
	if got := report.Chains["crust/mainnet"].IndexerLag; got != 200 {
		t.Errorf("indexer lag = %d, want 200", got)
	}
}

func TestCheckHealthIndexerDownDegrades(t *testing.T) {
	m := newTestMonitor(t, 100, &stubIndexer{err: indexer.ErrUnavailable}, nil, nil)

	report := m.CheckHealth(context.Background())
	if got := report.Chains["crust/mainnet"].Status; got != StatusDegraded {
		t.Errorf("chain status = %s, want degraded", got)
	}
}

func TestCheckHealthDatabaseDownIsCritical(t *testing.T) {
	m := newTestMonitor(t, 100, &stubIndexer{height: 100}, &stubPinger{err: errors.New("down")}, nil)

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusCritical {
		t.Errorf("system status = %s, want critical", report.SystemStatus)
	}
	if report.Database != StatusCritical {
		t.Errorf("database = %s, want critical", report.Database)
	}
}

func TestCheckHealthRedisDownDegrades(t *testing.T) {
	m := newTestMonitor(t, 100, &stubIndexer{height: 100}, &stubPinger{}, &stubPinger{err: errors.New("down")})

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("system status = %s, want degraded", report.SystemStatus)
	}
}

func TestCheckHealthCached(t *testing.T) {
	idx := &stubIndexer{height: 110}
	m := newTestMonitor(t, 100, idx, nil, nil)

	first := m.CheckHealth(context.Background())
	idx.height = 5000

	// Within the rate-limit window the cached report is served.
	second := m.CheckHealth(context.Background())
	if second.Chains["crust/mainnet"].IndexerLag != first.Chains["crust/mainnet"].IndexerLag {
		t.Error("expected cached report inside rate-limit window")
	}
}
