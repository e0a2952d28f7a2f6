package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/deweblabs/txrelay/internal/core/config"
	"github.com/deweblabs/txrelay/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show wallet nonces, watermarks and queue depth per chain",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
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

	rows, err := db.QueryContext(ctx,
		`SELECT w.chain, w.chain_type, w.address, w.next_nonce, w.last_processed_nonce,
		        w.last_parsed_block,
		        COUNT(t.id) FILTER (WHERE t.transaction_status = 'PENDING') AS pending
		 FROM wallet w
		 LEFT JOIN transaction_queue t
		   ON t.chain = w.chain AND t.chain_type = w.chain_type AND t.address = w.address
		 GROUP BY w.id
		 ORDER BY w.chain, w.chain_type, w.address`)
	if err != nil {
		slog.Error("Failed to query wallets", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rows.Close()
	}()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CHAIN\tADDRESS\tNEXT NONCE\tPROCESSED\tPARSED BLOCK\tPENDING")

	for rows.Next() {
		var chain, chainType, address string
		var nextNonce, processed, parsedBlock, pending int64
		if err := rows.Scan(&chain, &chainType, &address, &nextNonce, &processed, &parsedBlock, &pending); err != nil {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s/%s\t%s\t%d\t%d\t%d\t%d\n",
			chain, chainType, address, nextNonce, processed, parsedBlock, pending)
	}
	_ = w.Flush()
}
