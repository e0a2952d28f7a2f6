// Package creation implements the transaction creation service: wallet
// selection, nonce allocation, signing and persistence as one atomic unit.
package creation

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deweblabs/txrelay/internal/core/config"
	"github.com/deweblabs/txrelay/internal/core/domain"
	"github.com/deweblabs/txrelay/internal/engine/metrics"
	"github.com/deweblabs/txrelay/internal/infra/chain"
	"github.com/deweblabs/txrelay/internal/infra/chain/signer"
	"github.com/deweblabs/txrelay/internal/infra/storage"
)

// Request describes one transaction to create. Call is the chain-encoded
// unsigned call; the service does not interpret it.
type Request struct {
	Chain            domain.Chain
	ChainType        domain.ChainType
	Call             []byte
	Tip              uint64
	PreferredAddress string
	ReferenceTable   string
	ReferenceID      string
}

// Service allocates a wallet and nonce, signs and persists new
// transactions.
type Service struct {
	chains map[domain.ChainRef]config.ChainConfig
	store  storage.Store
	dial   chain.DialFunc
	log    *slog.Logger
}

// NewService creates the creation service.
func NewService(chains []config.ChainConfig, store storage.Store, dial chain.DialFunc, log *slog.Logger) *Service {
	byRef := make(map[domain.ChainRef]config.ChainConfig, len(chains))
	for _, c := range chains {
		byRef[c.Ref()] = c
	}
	return &Service{chains: byRef, store: store, dial: dial, log: log}
}

// Create signs and persists one transaction. Nonce allocation and
// persistence commit together; any failure in between rolls the unit back
// so the nonce is not consumed. No retry happens at this layer.
func (s *Service) Create(ctx context.Context, req Request) (*domain.Transaction, error) {
	cfg, ok := s.chains[domain.ChainRef{Chain: req.Chain, ChainType: req.ChainType}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrInvalidChain, req.Chain, req.ChainType)
	}

	scheme, err := signer.ParseScheme(cfg.Scheme)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidChain, err)
	}

	genesisHash, err := decodeHash(cfg.GenesisHash)
	if err != nil {
		return nil, fmt.Errorf("%w: bad genesis hash: %v", domain.ErrInvalidChain, err)
	}

	provider, err := s.dial(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect provider: %w", err)
	}
	defer provider.Close()

	head, err := provider.Head(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain head: %w", err)
	}
	blockHash, err := decodeHash(head.Hash)
	if err != nil {
		return nil, fmt.Errorf("bad head hash: %w", err)
	}

	uow, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin unit of work: %w", err)
	}
	defer uow.Rollback()

	wallet, err := uow.SelectWalletForUpdate(ctx, req.Chain, req.ChainType, req.PreferredAddress)
	if err != nil {
		return nil, err
	}

	nonce, err := uow.AllocateNonce(ctx, wallet)
	if err != nil {
		return nil, err
	}

	// The signing key exists only inside this scope.
	sgn, err := signer.New(scheme, wallet.SecretSeed)
	if err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}

	payload := signer.Payload{
		Call:        req.Call,
		Era:         signer.MortalEra(cfg.EraPeriod, head.Number),
		Nonce:       nonce,
		Tip:         req.Tip,
		SpecVersion: cfg.SpecVersion,
		TxVersion:   cfg.TxVersion,
		GenesisHash: genesisHash,
		BlockHash:   blockHash,
	}

	raw, hash, err := signer.BuildExtrinsic(sgn, payload)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	tx := &domain.Transaction{
		Chain:           req.Chain,
		ChainType:       req.ChainType,
		Address:         wallet.Address,
		Nonce:           nonce,
		ReferenceTable:  req.ReferenceTable,
		ReferenceID:     req.ReferenceID,
		RawTransaction:  raw,
		TransactionHash: hash,
		Status:          domain.TxStatusPending,
	}

	if err := uow.InsertTransaction(ctx, tx); err != nil {
		return nil, err
	}
	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("commit unit of work: %w", err)
	}

	metrics.TransactionsCreated.WithLabelValues(string(req.Chain)).Inc()
	s.log.Info("Transaction created",
		"chain", req.Chain,
		"chain_type", req.ChainType,
		"address", wallet.Address,
		"nonce", nonce,
		"hash", hash,
		"reference", req.ReferenceTable+"/"+req.ReferenceID,
	)
	return tx, nil
}

func decodeHash(s string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, err
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("got %d bytes, want 32", len(raw))
	}
	return raw, nil
}
