// Package health provides system health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ComponentHealth is the probe result for one dependency.
type ComponentHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// ProviderHealth summarizes one indexer provider.
type ProviderHealth struct {
	Name      string        `json:"name"`
	Available bool          `json:"available"`
	Latency   time.Duration `json:"latency"`
	ErrorRate float64       `json:"error_rate"`
}

// IndexerHealth covers the indexer providers and how far the sweep lags the chain.
type IndexerHealth struct {
	Status    SystemStatus     `json:"status"`
	Providers []ProviderHealth `json:"providers"`
	LastRound uint64           `json:"last_round"`
	SweepLag  uint64           `json:"sweep_lag"`
}

// ReconcileHealth covers the reconciliation backlog.
type ReconcileHealth struct {
	Status       SystemStatus `json:"status"`
	PendingTasks int          `json:"pending_tasks"`
	Unreconciled int          `json:"unreconciled_bounties"`
}

// Report contains the full system health report.
type Report struct {
	Status    SystemStatus     `json:"status"`
	Database  ComponentHealth  `json:"database"`
	Redis     *ComponentHealth `json:"redis,omitempty"`
	Indexer   IndexerHealth    `json:"indexer"`
	Reconcile ReconcileHealth  `json:"reconcile"`
	CheckedAt time.Time        `json:"checked_at"`
}
