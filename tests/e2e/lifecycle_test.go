package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deweblabs/txrelay/internal/control"
	"github.com/deweblabs/txrelay/internal/core/config"
	"github.com/deweblabs/txrelay/internal/core/domain"
	"github.com/deweblabs/txrelay/internal/engine/creation"
)

const (
	testSeed    = "0xfac7959dbfe72f052e5a0c3c8d6530f202b02fd8f9f5ca3580ec8deb7797479e"
	testGenesis = "0x8b404e7ed8789d813982b9cb4c8b664c05b3fbf433309f603af014ec9ce56a8c"
	testHead    = "0x4545454545454545454545454545454545454545454545454545454545454545"
	testAddress = "cTJp1Yyur84o8q2T46wybZBMre6cfFPd8xXSKq41RdCxfnLUY"
)

// fakeNode is a minimal Substrate JSON-RPC endpoint.
type fakeNode struct {
	mu        sync.Mutex
	submitted []string
}

func (n *fakeNode) handler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string `json:"method"`
		Params []any  `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var result any
	switch req.Method {
	case "system_chain":
		result = "Crust"
	case "system_accountNextIndex":
		result = 0
	case "chain_getBlockHash":
		result = testHead
	case "chain_getHeader":
		result = map[string]any{"number": "0x64"}
	case "author_submitExtrinsic":
		n.mu.Lock()
		n.submitted = append(n.submitted, req.Params[0].(string))
		n.mu.Unlock()
		result = testHead
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": 1, "result": result})
}

// fakeIndexer is a minimal SubQuery GraphQL endpoint whose event set the
// test mutates as the chain "settles".
type fakeIndexer struct {
	mu        sync.Mutex
	height    uint64
	eventHash string
}

func (f *fakeIndexer) handler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	height, eventHash := f.height, f.eventHash
	f.mu.Unlock()

	var data string
	switch {
	case strings.Contains(req.Query, "_metadata"):
		data = `{"_metadata": {"lastProcessedHeight": ` + strconv.FormatUint(height, 10) + `}}`
	case strings.Contains(req.Query, "storageOrders"):
		if eventHash == "" {
			data = `{"events": {"nodes": []}}`
		} else {
			data = `{"events": {"nodes": [{"extrinsicHash": "` + eventHash +
				`", "blockNumber": 50, "account": "` + testAddress +
				`", "status": "success", "attribute": "QmTestCid"}]}}`
		}
	case strings.Contains(req.Query, "transfers"):
		data = `{"transfers": {"nodes": []}}`
	case strings.Contains(req.Query, "extrinsics"):
		data = `{"extrinsics": {"nodes": []}}`
	default:
		data = `{}`
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"data": ` + data + `}`))
}

func TestFullTransactionLifecycle(t *testing.T) {
	node := &fakeNode{}
	nodeSrv := httptest.NewServer(http.HandlerFunc(node.handler))
	defer nodeSrv.Close()

	idx := &fakeIndexer{height: 120}
	idxSrv := httptest.NewServer(http.HandlerFunc(idx.handler))
	defer idxSrv.Close()

	var webhookCalls int
	webhookSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookCalls++
		w.WriteHeader(http.StatusOK)
	}))
	defer webhookSrv.Close()

	cfg := &config.AppConfig{
		Server: config.ServerConfig{Port: 0},
		Chains: []config.ChainConfig{{
			Chain:             domain.ChainCrust,
			ChainType:         domain.ChainTypeMainnet,
			Endpoint:          nodeSrv.URL,
			IndexerURL:        idxSrv.URL,
			Scheme:            "sr25519",
			GenesisHash:       testGenesis,
			SpecVersion:       23,
			TxVersion:         2,
			EraPeriod:         64,
			BlockParseSize:    50,
			TransmitInterval:  time.Hour,
			ReconcileInterval: time.Hour,
		}},
		Webhook: config.WebhookConfig{
			URL:        webhookSrv.URL,
			Timeout:    5 * time.Second,
			MaxRetries: 1,
		},
	}

	engine, err := control.NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	ctx := context.Background()
	err = engine.Wallets().Create(ctx, &domain.Wallet{
		Chain:          domain.ChainCrust,
		ChainType:      domain.ChainTypeMainnet,
		Address:        testAddress,
		SecretSeed:     domain.Seed(testSeed),
		BlockParseSize: 50,
	})
	if err != nil {
		t.Fatalf("provision wallet: %v", err)
	}

	// 1. Create: allocate nonce, sign, persist.
	tx, err := engine.CreateTransaction(ctx, creation.Request{
		Chain:          domain.ChainCrust,
		ChainType:      domain.ChainTypeMainnet,
		Call:           []byte{0x40, 0x00},
		ReferenceTable: "storage_order",
		ReferenceID:    "1",
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	if tx.Nonce != 0 || tx.Status != domain.TxStatusPending {
		t.Fatalf("created tx nonce=%d status=%s", tx.Nonce, tx.Status)
	}

	// 2. Transmit: the signed bytes reach the node.
	err = engine.Dispatch(ctx, control.Invocation{
		WorkerName: control.WorkerTransmitter,
		Parameters: control.Parameters{Chain: domain.ChainCrust, ChainType: domain.ChainTypeMainnet},
	})
	if err != nil {
		t.Fatalf("transmit dispatch: %v", err)
	}
	node.mu.Lock()
	submissions := len(node.submitted)
	node.mu.Unlock()
	if submissions != 1 {
		t.Fatalf("node received %d submissions, want 1", submissions)
	}

	// 3. The indexer picks the extrinsic up as a settled storage order.
	idx.mu.Lock()
	idx.eventHash = tx.TransactionHash
	idx.mu.Unlock()

	// 4. Reconcile: status flips, watermark advances, webhook fires.
	err = engine.Dispatch(ctx, control.Invocation{
		WorkerName: control.WorkerReconciler,
		Parameters: control.Parameters{Chain: domain.ChainCrust, ChainType: domain.ChainTypeMainnet},
	})
	if err != nil {
		t.Fatalf("reconcile dispatch: %v", err)
	}

	settled, err := engine.Transactions().GetByHash(
		ctx, domain.ChainCrust, domain.ChainTypeMainnet, tx.TransactionHash)
	if err != nil {
		t.Fatalf("GetByHash() error = %v", err)
	}
	if settled.Status != domain.TxStatusConfirmed {
		t.Errorf("status = %s, want CONFIRMED", settled.Status)
	}
	if !settled.WebhookTriggered {
		t.Error("webhook flag not set")
	}
	if webhookCalls != 1 {
		t.Errorf("webhook calls = %d, want 1", webhookCalls)
	}

	wallet, err := engine.Wallets().Get(ctx, domain.ChainCrust, domain.ChainTypeMainnet, testAddress)
	if err != nil {
		t.Fatalf("Get wallet: %v", err)
	}
	if wallet.LastParsedBlock != 50 {
		t.Errorf("lastParsedBlock = %d, want 50", wallet.LastParsedBlock)
	}
	if wallet.NextNonce != 1 || wallet.LastProcessedNonce != 0 {
		t.Errorf("nonces next=%d processed=%d, want 1/0", wallet.NextNonce, wallet.LastProcessedNonce)
	}
}
