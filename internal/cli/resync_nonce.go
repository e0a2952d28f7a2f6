package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/deweblabs/txrelay/internal/core/config"
	"github.com/deweblabs/txrelay/internal/core/domain"
	"github.com/deweblabs/txrelay/internal/infra/chain/substrate"
	"github.com/deweblabs/txrelay/internal/infra/storage/postgres"
)

var resyncNonceCmd = &cobra.Command{
	Use:   "resync-nonce [chain] [chain_type] [address]",
	Short: "Reset a wallet's nonce state from the chain's account nonce",
	Long: `resync-nonce queries the node for the account's current nonce and
overwrites the wallet's next_nonce and last_processed_nonce. Only use this
after draining or abandoning the wallet's pending queue; it does not touch
stored transactions.`,
	Args: cobra.ExactArgs(3),
	Run:  runResyncNonce,
}

func init() {
	rootCmd.AddCommand(resyncNonceCmd)
}

func runResyncNonce(cmd *cobra.Command, args []string) {
	chainName := domain.Chain(args[0])
	chainType := domain.ChainType(args[1])
	address := args[2]

	if !domain.KnownChains[chainName] {
		fmt.Printf("Unknown chain: %s\n", chainName)
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	var endpoint string
	for _, c := range cfg.Chains {
		if c.Chain == chainName && c.ChainType == chainType {
			endpoint = c.Endpoint
		}
	}
	if endpoint == "" {
		fmt.Printf("No configured deployment for %s/%s\n", chainName, chainType)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	provider, err := substrate.Dial(ctx, endpoint)
	if err != nil {
		slog.Error("Failed to connect to chain", "error", err)
		os.Exit(1)
	}
	defer provider.Close()

	chainNonce, err := provider.AccountNonce(ctx, address)
	if err != nil {
		slog.Error("Failed to query account nonce", "error", err)
		os.Exit(1)
	}

	// The chain nonce counts settled submissions, so it is both the next
	// nonce to allocate and, less one, the transmission watermark.
	lastProcessed := uint64(0)
	if chainNonce > 0 {
		lastProcessed = chainNonce - 1
	}

	wallets := postgres.NewWalletRepo(db)
	if err := wallets.ResetNonces(ctx, chainName, chainType, address, chainNonce, lastProcessed); err != nil {
		slog.Error("Failed to reset wallet nonces", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Resynced %s/%s %s: next_nonce=%d last_processed_nonce=%d\n",
		chainName, chainType, address, chainNonce, lastProcessed)
}
