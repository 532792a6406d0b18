package domain

import "time"

// ReconcileKind names what a reconcile task is trying to recover.
type ReconcileKind string

const (
	// ReconcileKindBountyID recovers a missing on-chain bounty id.
	ReconcileKindBountyID ReconcileKind = "bounty_id"

	// ReconcileKindRefund confirms the refund payment of a rejected bounty.
	ReconcileKindRefund ReconcileKind = "refund"
)

// ReconcileTaskStatus is the queue state of a task.
type ReconcileTaskStatus string

const (
	ReconcileTaskPending   ReconcileTaskStatus = "pending"
	ReconcileTaskResolved  ReconcileTaskStatus = "resolved"
	ReconcileTaskAbandoned ReconcileTaskStatus = "abandoned"
)

// ReconcileTask is one unit of reconciliation work against the indexer.
type ReconcileTask struct {
	ID          string              `json:"id"`
	BountyRowID string              `json:"bounty_row_id"`
	Kind        ReconcileKind       `json:"kind"`
	Status      ReconcileTaskStatus `json:"status"`
	RetryCount  int                 `json:"retry_count"`
	LastError   string              `json:"last_error"`
	NextAttempt time.Time           `json:"next_attempt"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}
