package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/algoease/backend/internal/core/domain"
)

// ReconcileQueueRepo implements storage.ReconcileQueueRepository using PostgreSQL.
type ReconcileQueueRepo struct {
	db *DB
}

// NewReconcileQueueRepo creates a new PostgreSQL reconcile queue repository.
func NewReconcileQueueRepo(db *DB) *ReconcileQueueRepo {
	return &ReconcileQueueRepo{db: db}
}

type reconcileTaskRow struct {
	ID          string    `db:"id"`
	BountyRowID string    `db:"bounty_row_id"`
	Kind        string    `db:"kind"`
	Status      string    `db:"status"`
	RetryCount  int       `db:"retry_count"`
	LastError   string    `db:"last_error"`
	NextAttempt time.Time `db:"next_attempt"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r reconcileTaskRow) toDomain() *domain.ReconcileTask {
	return &domain.ReconcileTask{
		ID:          r.ID,
		BountyRowID: r.BountyRowID,
		Kind:        domain.ReconcileKind(r.Kind),
		Status:      domain.ReconcileTaskStatus(r.Status),
		RetryCount:  r.RetryCount,
		LastError:   r.LastError,
		NextAttempt: r.NextAttempt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// Add enqueues a task. A pending task for the same (bounty, kind) is kept
// as-is so retry backoff survives duplicate enqueues.
func (r *ReconcileQueueRepo) Add(ctx context.Context, task *domain.ReconcileTask) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reconcile_queue (id, bounty_row_id, kind, status, next_attempt)
		VALUES ($1, $2, $3, 'pending', $4)
		ON CONFLICT (bounty_row_id, kind) WHERE status = 'pending'
		DO NOTHING`,
		task.ID, task.BountyRowID, string(task.Kind), task.NextAttempt)
	if err != nil {
		return fmt.Errorf("failed to enqueue reconcile task: %w", err)
	}
	return nil
}

// GetNext retrieves the next due pending task, oldest first.
func (r *ReconcileQueueRepo) GetNext(ctx context.Context) (*domain.ReconcileTask, error) {
	var row reconcileTaskRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, bounty_row_id, kind, status, retry_count, last_error,
		       next_attempt, created_at, updated_at
		FROM reconcile_queue
		WHERE status = 'pending' AND next_attempt <= now()
		ORDER BY next_attempt ASC
		LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Queue empty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get next reconcile task: %w", err)
	}
	return row.toDomain(), nil
}

// IncrementRetry bumps the retry count and schedules the next attempt.
func (r *ReconcileQueueRepo) IncrementRetry(ctx context.Context, id string, nextAttempt time.Time, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reconcile_queue
		SET retry_count = retry_count + 1, next_attempt = $1, last_error = $2,
		    updated_at = now()
		WHERE id = $3`,
		nextAttempt, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to increment retry: %w", err)
	}
	return nil
}

// MarkResolved marks a task done.
func (r *ReconcileQueueRepo) MarkResolved(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reconcile_queue
		SET status = 'resolved', updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark task resolved: %w", err)
	}
	return nil
}

// MarkAbandoned marks a task permanently failed.
func (r *ReconcileQueueRepo) MarkAbandoned(ctx context.Context, id string, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reconcile_queue
		SET status = 'abandoned', last_error = $1, updated_at = now()
		WHERE id = $2`, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to mark task abandoned: %w", err)
	}
	return nil
}

// Count returns the number of pending tasks.
func (r *ReconcileQueueRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM reconcile_queue WHERE status = 'pending'`)
	if err != nil {
		return 0, fmt.Errorf("failed to count reconcile tasks: %w", err)
	}
	return count, nil
}

// DeleteResolvedBefore prunes finished tasks older than cutoff.
func (r *ReconcileQueueRepo) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM reconcile_queue
		WHERE status IN ('resolved', 'abandoned') AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune reconcile tasks: %w", err)
	}
	return res.RowsAffected()
}
