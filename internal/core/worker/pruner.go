package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/algoease/backend/internal/infra/storage"
)

// Pruner deletes finished reconcile-queue entries past the retention period.
// Bounty records are never pruned.
type Pruner struct {
	queue     storage.ReconcileQueueRepository
	retention time.Duration
}

// NewPruner creates a new Pruner worker.
func NewPruner(queue storage.ReconcileQueueRepository, retention time.Duration) *Pruner {
	return &Pruner{
		queue:     queue,
		retention: retention,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check interval: 10% of retention, clamped to [1m, 1h].
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)

	deleted, err := p.queue.DeleteResolvedBefore(ctx, cutoff)
	if err != nil {
		slog.Error("failed to prune reconcile queue", "error", err)
		return
	}
	if deleted > 0 {
		slog.Debug("pruned reconcile queue", "deleted", deleted, "cutoff", cutoff)
	}
}
