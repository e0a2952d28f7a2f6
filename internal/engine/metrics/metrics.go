package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransactionsCreated tracks transactions signed and persisted per chain
	TransactionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txrelay_transactions_created_total",
			Help: "Total number of transactions created",
		},
		[]string{"chain"},
	)

	// TransactionsSubmitted tracks successful submissions per chain
	TransactionsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txrelay_transactions_submitted_total",
			Help: "Total number of transactions submitted to the chain",
		},
		[]string{"chain"},
	)

	// SubmissionFailures tracks submissions that stopped a transmit run
	SubmissionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txrelay_submission_failures_total",
			Help: "Total number of failed submission attempts",
		},
		[]string{"chain"},
	)

	// SelfRepairs tracks nonces recovered from indexer evidence
	SelfRepairs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txrelay_self_repairs_total",
			Help: "Total number of nonces advanced from indexer evidence",
		},
		[]string{"chain"},
	)

	// TransactionsReconciled tracks terminal status transitions per chain
	TransactionsReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txrelay_transactions_reconciled_total",
			Help: "Total number of transactions moved to a terminal status",
		},
		[]string{"chain", "status"},
	)

	// ReconcileAnomalies tracks indexer results with no stored transaction
	ReconcileAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txrelay_reconcile_anomalies_total",
			Help: "Total number of unmatched indexer results",
		},
		[]string{"chain", "kind"},
	)

	// DepositsObserved tracks inbound transfers seen during reconciliation.
	// Deposits are expected traffic, so they stay out of the anomaly counter.
	DepositsObserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txrelay_deposits_observed_total",
			Help: "Total number of inbound transfers observed by reconciliation",
		},
		[]string{"chain"},
	)

	// ReconcileWindowSeconds tracks how long one wallet window takes
	ReconcileWindowSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "txrelay_reconcile_window_seconds",
			Help:    "Reconciliation window processing time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain"},
	)

	// IndexerHeight tracks the indexer's reported block height
	IndexerHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "txrelay_indexer_height",
			Help: "Latest block height reported by the chain indexer",
		},
		[]string{"chain"},
	)

	// WalletPendingDepth tracks outstanding transactions per wallet
	WalletPendingDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "txrelay_wallet_pending_depth",
			Help: "Number of pending transactions per wallet",
		},
		[]string{"chain", "address"},
	)

	// WebhookDeliveries tracks downstream notification outcomes
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txrelay_webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts by outcome",
		},
		[]string{"outcome"},
	)
)
