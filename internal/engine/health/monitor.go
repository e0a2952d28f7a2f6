package health

import (
	"context"
	"sync"
	"time"

	"github.com/deweblabs/txrelay/internal/core/domain"
	"github.com/deweblabs/txrelay/internal/infra/indexer"
	"github.com/deweblabs/txrelay/internal/infra/storage"
)

// Pinger reports whether a backing service answers.
type Pinger interface {
	Health(ctx context.Context) error
}

// Monitor aggregates health status from various system components.
type Monitor struct {
	chains     []domain.ChainRef
	wallets    storage.WalletRepository
	txs        storage.TransactionRepository
	indexers   map[domain.ChainRef]indexer.Client
	db         Pinger
	redis      Pinger
	lastCheck  time.Time
	lastReport HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor. db and redis may be nil when the
// corresponding backend is not configured.
func NewMonitor(
	chains []domain.ChainRef,
	wallets storage.WalletRepository,
	txs storage.TransactionRepository,
	indexers map[domain.ChainRef]indexer.Client,
	db, redis Pinger,
) *Monitor {
	return &Monitor{
		chains:   chains,
		wallets:  wallets,
		txs:      txs,
		indexers: indexers,
		db:       db,
		redis:    redis,
	}
}

// CheckHealth builds a full report. Checks are rate limited (max once per
// 10s) to avoid spamming the indexers.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && len(m.lastReport.Chains) > 0 {
		return m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Database:     m.ping(ctx, m.db),
		Redis:        m.ping(ctx, m.redis),
		Chains:       make(map[string]ChainHealth),
	}
	if report.Database == StatusCritical {
		report.SystemStatus = StatusCritical
	}
	if report.Redis == StatusCritical && report.SystemStatus == StatusHealthy {
		report.SystemStatus = StatusDegraded
	}

	for _, ref := range m.chains {
		ch := m.checkChain(ctx, ref)
		report.Chains[ref.String()] = ch

		if ch.Status == StatusCritical {
			report.SystemStatus = StatusCritical
		} else if ch.Status == StatusDegraded && report.SystemStatus == StatusHealthy {
			report.SystemStatus = StatusDegraded
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func (m *Monitor) ping(ctx context.Context, p Pinger) SystemStatus {
	if p == nil {
		return StatusHealthy
	}
	if err := p.Health(ctx); err != nil {
		return StatusCritical
	}
	return StatusHealthy
}

func (m *Monitor) checkChain(ctx context.Context, ref domain.ChainRef) ChainHealth {
	ch := ChainHealth{
		Chain:  ref.String(),
		Status: StatusHealthy,
	}

	wallets, err := m.wallets.List(ctx, ref.Chain, ref.ChainType)
	if err != nil {
		ch.Status = StatusCritical
		return ch
	}
	ch.Wallets = len(wallets)

	// Indexer lag: how far the slowest wallet's watermark trails the
	// indexer head. A stalled watermark means settlements stop landing.
	if idx, ok := m.indexers[ref]; ok {
		height, err := idx.GetBlockHeight(ctx)
		if err != nil {
			ch.Status = StatusDegraded
		} else {
			for _, w := range wallets {
				if height > w.LastParsedBlock {
					if lag := height - w.LastParsedBlock; lag > ch.IndexerLag {
						ch.IndexerLag = lag
					}
				}
			}
		}
	}

	for _, w := range wallets {
		pending, err := m.txs.ListPending(ctx, ref.Chain, ref.ChainType, w.Address)
		if err != nil {
			continue
		}
		ch.PendingDepth += len(pending)
	}

	if ch.IndexerLag > 1000 || ch.PendingDepth > 500 {
		ch.Status = StatusCritical
	} else if ch.Status == StatusHealthy && (ch.IndexerLag > 100 || ch.PendingDepth > 50) {
		ch.Status = StatusDegraded
	}
	return ch
}
