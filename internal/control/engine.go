// Package control wires the engine together and drives the workers: storage
// selection, per-chain schedulers, worker dispatch and lifecycle.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deweblabs/txrelay/internal/core/config"
	"github.com/deweblabs/txrelay/internal/core/domain"
	"github.com/deweblabs/txrelay/internal/engine/creation"
	"github.com/deweblabs/txrelay/internal/engine/health"
	"github.com/deweblabs/txrelay/internal/engine/notify"
	"github.com/deweblabs/txrelay/internal/engine/reconcile"
	"github.com/deweblabs/txrelay/internal/engine/transmit"
	"github.com/deweblabs/txrelay/internal/infra/chain/substrate"
	"github.com/deweblabs/txrelay/internal/infra/indexer"
	"github.com/deweblabs/txrelay/internal/infra/indexer/subquery"
	redisclient "github.com/deweblabs/txrelay/internal/infra/redis"
	"github.com/deweblabs/txrelay/internal/infra/storage"
	"github.com/deweblabs/txrelay/internal/infra/storage/memory"
	"github.com/deweblabs/txrelay/internal/infra/storage/postgres"
)

// Engine is the main application struct that manages the relay lifecycle.
type Engine struct {
	cfg          *config.AppConfig
	db           *postgres.DB
	redisClient  *redisclient.Client
	wallets      storage.WalletRepository
	txs          storage.TransactionRepository
	creator      *creation.Service
	transmitter  *transmit.Worker
	reconciler   *reconcile.Worker
	healthServer *health.Server
	log          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an Engine with all dependencies initialized.
func NewEngine(cfg *config.AppConfig) (*Engine, error) {
	log := slog.Default()

	// 1. Storage
	var (
		db      *postgres.DB
		store   storage.Store
		wallets storage.WalletRepository
		txs     storage.TransactionRepository
	)
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate("migrations"); err != nil {
			return nil, err
		}
		store = db
		wallets = postgres.NewWalletRepo(db)
		txs = postgres.NewTxRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		mem := memory.NewMemoryStorage()
		store = mem
		wallets = memory.NewWalletRepo(mem)
		txs = memory.NewTxRepo(mem)
		log.Info("Using Memory storage")
	}

	// 2. Transmission locking. Redis serializes runs across processes;
	// without it a process-local locker still covers a single instance.
	var (
		redisClient *redisclient.Client
		locker      transmit.Locker
	)
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		locker = &redisLocker{client: redisClient}
		log.Info("Using Redis transmission leases")
	} else {
		locker = newLocalLocker()
		log.Warn("Redis not configured, transmission leases are process-local")
	}

	// 3. Per-chain indexer clients
	indexers := make(map[domain.ChainRef]indexer.Client, len(cfg.Chains))
	for _, c := range cfg.Chains {
		indexers[c.Ref()] = subquery.NewClient(c.Chain, c.IndexerURL)
	}

	notifier := notify.NewDispatcher(
		cfg.Webhook.URL, cfg.Webhook.Timeout, cfg.Webhook.MaxRetries, log)

	// 4. Engine services
	creator := creation.NewService(cfg.Chains, store, substrate.Dial, log)
	transmitter := transmit.NewWorker(
		cfg.Chains, wallets, txs, substrate.Dial, indexers, locker, log)
	reconciler := reconcile.NewWorker(wallets, txs, indexers, notifier, log)

	// 5. Health
	refs := make([]domain.ChainRef, 0, len(cfg.Chains))
	for _, c := range cfg.Chains {
		refs = append(refs, c.Ref())
	}
	var dbPinger, redisPinger health.Pinger
	if db != nil {
		dbPinger = db
	}
	if redisClient != nil {
		redisPinger = redisClient
	}
	monitor := health.NewMonitor(refs, wallets, txs, indexers, dbPinger, redisPinger)
	healthServer := health.NewServer(monitor, cfg.Server.Port)

	return &Engine{
		cfg:          cfg,
		db:           db,
		redisClient:  redisClient,
		wallets:      wallets,
		txs:          txs,
		creator:      creator,
		transmitter:  transmitter,
		reconciler:   reconciler,
		healthServer: healthServer,
		log:          log,
	}, nil
}

// Wallets exposes the wallet repository for provisioning and operator
// tooling.
func (e *Engine) Wallets() storage.WalletRepository {
	return e.wallets
}

// Transactions exposes the transaction repository for operator tooling.
func (e *Engine) Transactions() storage.TransactionRepository {
	return e.txs
}

// CreateTransaction signs and persists a new transaction.
func (e *Engine) CreateTransaction(ctx context.Context, req creation.Request) (*domain.Transaction, error) {
	return e.creator.Create(ctx, req)
}

// RunTransmission runs one transmission pass for a chain deployment.
func (e *Engine) RunTransmission(ctx context.Context, chain domain.Chain, chainType domain.ChainType) error {
	return e.transmitter.Run(ctx, chain, chainType)
}

// RunReconciliation runs one reconciliation pass for a chain deployment.
func (e *Engine) RunReconciliation(ctx context.Context, chain domain.Chain, chainType domain.ChainType) error {
	return e.reconciler.Run(ctx, chain, chainType)
}

// Start launches the health server and the per-chain schedulers. It returns
// immediately; work happens in background goroutines until Stop.
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)

	go func() {
		if err := e.healthServer.Start(); err != nil {
			e.log.Error("Health server failed", "error", err)
		}
	}()

	for _, c := range e.cfg.Chains {
		e.schedule(ctx, "transaction_transmitter", c, c.TransmitInterval)
		e.schedule(ctx, "transaction_reconciler", c, c.ReconcileInterval)
	}
	return nil
}

// schedule runs one worker on a fixed interval until the context ends. Runs
// never overlap for the same worker: the next tick waits for the previous
// run to return.
func (e *Engine) schedule(ctx context.Context, worker string, c config.ChainConfig, interval time.Duration) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		e.log.Info("Scheduler started",
			"worker", worker, "chain", c.Ref().String(), "interval", interval)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				inv := Invocation{
					WorkerName: worker,
					Parameters: Parameters{Chain: c.Chain, ChainType: c.ChainType},
				}
				if err := e.Dispatch(ctx, inv); err != nil && !errors.Is(err, context.Canceled) {
					e.log.Error("Worker run failed",
						"worker", worker, "chain", c.Ref().String(), "error", err)
				}
			}
		}
	}()
}

// Stop drains the schedulers and shuts everything down.
func (e *Engine) Stop(ctx context.Context) error {
	e.log.Info("Stopping engine...")

	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	if e.redisClient != nil {
		if err := e.redisClient.Close(); err != nil {
			e.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.log.Warn("Failed to close database", "error", err)
		}
	}
	return e.healthServer.Stop(ctx)
}
