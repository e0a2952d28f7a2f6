package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/deweblabs/txrelay/internal/control"
	"github.com/deweblabs/txrelay/internal/core/config"
	"github.com/deweblabs/txrelay/internal/core/domain"
)

func TestGracefulShutdown(t *testing.T) {
	// Memory storage, unreachable backends: enough to start every
	// component and prove shutdown drains cleanly.
	cfg := &config.AppConfig{
		Server: config.ServerConfig{Port: 0},
		Chains: []config.ChainConfig{{
			Chain:             domain.ChainCrust,
			ChainType:         domain.ChainTypeMainnet,
			Endpoint:          "http://localhost:19933",
			IndexerURL:        "http://localhost:13000/graphql",
			Scheme:            "sr25519",
			EraPeriod:         64,
			BlockParseSize:    10,
			TransmitInterval:  100 * time.Millisecond,
			ReconcileInterval: 100 * time.Millisecond,
		}},
	}

	engine, err := control.NewEngine(cfg)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := engine.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Let the schedulers tick a few times.
	time.Sleep(300 * time.Millisecond)

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()

	done := make(chan error, 1)
	go func() {
		done <- engine.Stop(stopCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Error("Stop did not return within 10s")
	}
}
