package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/algoease/backend/internal/core/domain"
	"github.com/algoease/backend/internal/infra/algorand"
	"github.com/algoease/backend/internal/infra/storage"
	"github.com/algoease/backend/internal/metrics"
)

// IndexerClient is the slice of the indexer API the reconciler needs.
type IndexerClient interface {
	LookupTransaction(ctx context.Context, txid string) (*algorand.Transaction, error)
	ApplicationBoxes(ctx context.Context, applicationID uint64) ([][]byte, error)
	ApplicationBox(ctx context.Context, applicationID uint64, name []byte) ([]byte, error)
}

// Locker coordinates reconciliation across backend instances. Nil disables
// locking (single-instance mode).
type Locker interface {
	AcquireLock(ctx context.Context, bountyRowID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, bountyRowID string) error
}

// Reconciler recovers missing on-chain bounty ids and confirms refunds by
// polling the indexer, with backoff on transient failures.
type Reconciler struct {
	applicationID uint64
	bounties      storage.BountyRepository
	queue         storage.ReconcileQueueRepository
	indexer       IndexerClient
	locks         Locker
	strategy      *ExponentialBackoff
	interval      time.Duration
	lockTTL       time.Duration
	log           *slog.Logger
}

// Config holds reconciler settings.
type Config struct {
	ApplicationID uint64
	Interval      time.Duration
	LockTTL       time.Duration
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
}

// NewReconciler creates a reconciler.
func NewReconciler(
	cfg Config,
	bounties storage.BountyRepository,
	queue storage.ReconcileQueueRepository,
	indexer IndexerClient,
	locks Locker,
) *Reconciler {
	strategy := DefaultBackoff(nil)
	if cfg.MaxAttempts > 0 {
		strategy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialDelay > 0 {
		strategy.InitialDelay = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		strategy.MaxDelay = cfg.MaxDelay
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}

	return &Reconciler{
		applicationID: cfg.ApplicationID,
		bounties:      bounties,
		queue:         queue,
		indexer:       indexer,
		locks:         locks,
		strategy:      strategy,
		interval:      interval,
		lockTTL:       lockTTL,
		log:           slog.Default().With("component", "reconciler"),
	}
}

// Start runs the reconcile loop until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.log.Error("reconcile pass failed", "error", err)
			}
		}
	}
}

// RunOnce enqueues unreconciled bounties and drains the due queue.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	if err := r.EnqueueMissing(ctx); err != nil {
		return err
	}

	for {
		task, err := r.queue.GetNext(ctx)
		if err != nil {
			return fmt.Errorf("failed to get next task: %w", err)
		}
		if task == nil {
			return nil
		}
		handled, err := r.process(ctx, task)
		if err != nil {
			return err
		}
		if !handled {
			// Lock held by another instance and the task is still due, so
			// draining further would spin. Next tick picks it back up.
			return nil
		}
	}
}

// EnqueueMissing queues a task for every bounty without an on-chain id.
func (r *Reconciler) EnqueueMissing(ctx context.Context) error {
	unreconciled, err := r.bounties.ListUnreconciled(ctx, 100)
	if err != nil {
		return fmt.Errorf("failed to list unreconciled bounties: %w", err)
	}
	metrics.UnreconciledBounties.Set(float64(len(unreconciled)))

	for _, b := range unreconciled {
		task := &domain.ReconcileTask{
			ID:          uuid.New().String(),
			BountyRowID: b.ID,
			Kind:        domain.ReconcileKindBountyID,
			NextAttempt: time.Now(),
		}
		if err := r.queue.Add(ctx, task); err != nil {
			return fmt.Errorf("failed to enqueue bounty %s: %w", b.ID, err)
		}
	}

	// Rejected bounties stay rejected until the inner refund payment is
	// confirmed. Re-queueing here makes refund confirmation survive a lost
	// enqueue at reject time; Add dedupes pending tasks.
	rejected, err := r.bounties.List(ctx, storage.BountyFilter{Status: domain.StatusRejected})
	if err != nil {
		return fmt.Errorf("failed to list rejected bounties: %w", err)
	}
	for _, b := range rejected {
		if b.RejectTxID == nil {
			continue
		}
		if err := r.EnqueueRefund(ctx, b.ID); err != nil {
			return fmt.Errorf("failed to enqueue refund for %s: %w", b.ID, err)
		}
	}
	return nil
}

// EnqueueRefund queues refund confirmation for a rejected bounty.
func (r *Reconciler) EnqueueRefund(ctx context.Context, bountyRowID string) error {
	task := &domain.ReconcileTask{
		ID:          uuid.New().String(),
		BountyRowID: bountyRowID,
		Kind:        domain.ReconcileKindRefund,
		NextAttempt: time.Now(),
	}
	return r.queue.Add(ctx, task)
}

// ReconcileNow runs a single bounty's id recovery immediately, bypassing the
// queue. Used by the force-reconcile endpoint.
func (r *Reconciler) ReconcileNow(ctx context.Context, bountyRowID string) (*domain.Bounty, error) {
	b, err := r.bounties.GetByRowID(ctx, bountyRowID)
	if err != nil {
		return nil, err
	}
	if b.BountyID != nil {
		return b, nil
	}
	if err := r.resolveBountyID(ctx, b); err != nil {
		return nil, err
	}
	return r.bounties.GetByRowID(ctx, bountyRowID)
}

func (r *Reconciler) process(ctx context.Context, task *domain.ReconcileTask) (bool, error) {
	if r.locks != nil {
		acquired, err := r.locks.AcquireLock(ctx, task.BountyRowID, r.lockTTL)
		if err != nil {
			r.log.Warn("lock acquire failed, proceeding unlocked", "error", err)
		} else if !acquired {
			// Another instance is on it; leave the task scheduled.
			return false, nil
		} else {
			defer func() {
				if err := r.locks.ReleaseLock(ctx, task.BountyRowID); err != nil {
					r.log.Warn("lock release failed", "error", err)
				}
			}()
		}
	}

	workErr := r.run(ctx, task)
	if workErr == nil {
		metrics.ReconcileAttemptsTotal.WithLabelValues(string(task.Kind), "resolved").Inc()
		return true, r.queue.MarkResolved(ctx, task.ID)
	}

	if !r.strategy.ShouldRetry(workErr, task.RetryCount) {
		metrics.ReconcileAttemptsTotal.WithLabelValues(string(task.Kind), "abandoned").Inc()
		r.log.Error("abandoning reconcile task",
			"bounty", task.BountyRowID, "kind", task.Kind,
			"retries", task.RetryCount, "error", workErr)
		return true, r.queue.MarkAbandoned(ctx, task.ID, workErr.Error())
	}

	metrics.ReconcileAttemptsTotal.WithLabelValues(string(task.Kind), "retry").Inc()
	next := time.Now().Add(r.strategy.GetDelay(task.RetryCount))
	r.log.Debug("reconcile attempt failed, scheduling retry",
		"bounty", task.BountyRowID, "kind", task.Kind,
		"next_attempt", next, "error", workErr)
	return true, r.queue.IncrementRetry(ctx, task.ID, next, workErr.Error())
}

func (r *Reconciler) run(ctx context.Context, task *domain.ReconcileTask) error {
	b, err := r.bounties.GetByRowID(ctx, task.BountyRowID)
	if err != nil {
		return err
	}

	switch task.Kind {
	case domain.ReconcileKindBountyID:
		if b.BountyID != nil {
			return nil // Already bound
		}
		return r.resolveBountyID(ctx, b)
	case domain.ReconcileKindRefund:
		if b.Status == domain.StatusRefunded {
			return nil // Already confirmed
		}
		return r.confirmRefund(ctx, b)
	default:
		return fmt.Errorf("unknown reconcile kind %q", task.Kind)
	}
}

// resolveBountyID recovers the on-chain id for a bounty row. The primary
// path reads the bounty_count delta off the creation transaction; the
// fallback scans boxes and matches creator + amount, a best-effort heuristic
// for rows whose creation txid was never recorded correctly.
func (r *Reconciler) resolveBountyID(ctx context.Context, b *domain.Bounty) error {
	if b.CreateTxID != "" {
		tx, err := r.indexer.LookupTransaction(ctx, b.CreateTxID)
		if err == nil {
			if count, ok := algorand.BountyCountDelta(tx); ok && count > 0 {
				id := int64(count - 1)
				if err := r.bounties.SetBountyID(ctx, b.ID, id); err != nil {
					return err
				}
				r.log.Info("recovered on-chain id from creation tx",
					"bounty", b.ID, "bounty_id", id)
				return nil
			}
			// Confirmed but no counter delta: not a create call, fall back.
			r.log.Warn("creation tx carries no bounty_count delta, scanning boxes",
				"bounty", b.ID, "txid", b.CreateTxID)
		} else if DefaultClassifier(err) == CategoryTransient {
			return err // Likely indexer lag; retry before guessing.
		}
	}

	return r.matchByBoxScan(ctx, b)
}

func (r *Reconciler) matchByBoxScan(ctx context.Context, b *domain.Bounty) error {
	names, err := r.indexer.ApplicationBoxes(ctx, r.applicationID)
	if err != nil {
		return fmt.Errorf("failed to list boxes: %w", err)
	}

	for _, name := range names {
		id, ok := algorand.ParseBoxName(name)
		if !ok {
			continue
		}

		// Skip ids already bound to another row.
		if _, err := r.bounties.GetByBountyID(ctx, int64(id)); err == nil {
			continue
		} else if !errors.Is(err, storage.ErrBountyNotFound) {
			return err
		}

		value, err := r.indexer.ApplicationBox(ctx, r.applicationID, name)
		if err != nil {
			return fmt.Errorf("failed to fetch box %d: %w", id, err)
		}
		box, err := algorand.DecodeBountyBox(name, value)
		if err != nil {
			r.log.Warn("skipping undecodable box", "box_id", id, "error", err)
			continue
		}

		if box.Creator == b.ClientAddress && int64(box.Amount) == b.Amount {
			if err := r.bounties.SetBountyID(ctx, b.ID, int64(id)); err != nil {
				return err
			}
			r.log.Info("recovered on-chain id by box scan",
				"bounty", b.ID, "bounty_id", id)
			return nil
		}
	}

	return fmt.Errorf("%w: no unbound box matches bounty %s", algorand.ErrNotFound, b.ID)
}

// confirmRefund verifies the reject call's inner payment back to the client
// and flips the record to refunded.
func (r *Reconciler) confirmRefund(ctx context.Context, b *domain.Bounty) error {
	if b.Status != domain.StatusRejected {
		return fmt.Errorf("%w: refund confirmation on status %s",
			storage.ErrInvalidTransition, b.Status)
	}
	if b.RejectTxID == nil {
		return fmt.Errorf("%w: rejected bounty %s has no reject txid",
			storage.ErrInvalidTransition, b.ID)
	}

	tx, err := r.indexer.LookupTransaction(ctx, *b.RejectTxID)
	if err != nil {
		return err
	}

	for _, inner := range tx.InnerTxns {
		if inner.Payment == nil {
			continue
		}
		if inner.Payment.Receiver == b.ClientAddress &&
			int64(inner.Payment.Amount) == b.Amount {
			_, err := r.bounties.UpdateStatus(ctx, storage.StatusUpdate{
				RowID:      b.ID,
				NextStatus: domain.StatusRefunded,
				TxID:       *b.RejectTxID,
			})
			if err != nil {
				return err
			}
			r.log.Info("refund confirmed", "bounty", b.ID, "txid", *b.RejectTxID)
			return nil
		}
	}

	return fmt.Errorf("%w: reject tx %s has no matching refund payment",
		algorand.ErrNotFound, *b.RejectTxID)
}
