// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ChainHealth contains health metrics for one chain deployment.
type ChainHealth struct {
	Chain        string       `json:"chain"`
	Status       SystemStatus `json:"status"`
	IndexerLag   uint64       `json:"indexer_lag"`
	PendingDepth int          `json:"pending_depth"`
	Wallets      int          `json:"wallets"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus           `json:"system_status"`
	Database     SystemStatus           `json:"database"`
	Redis        SystemStatus           `json:"redis"`
	Chains       map[string]ChainHealth `json:"chains"`
}
