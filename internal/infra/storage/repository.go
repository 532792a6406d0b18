package storage

import (
	"context"
	"errors"
	"time"

	"github.com/algoease/backend/internal/core/domain"
)

var (
	// ErrBountyNotFound is returned when no bounty matches a lookup.
	ErrBountyNotFound = errors.New("bounty not found")

	// ErrDuplicateBountyID is returned when an on-chain id is already bound
	// to another row. At most one record may exist per on-chain id.
	ErrDuplicateBountyID = errors.New("on-chain bounty id already bound")

	// ErrInvalidTransition is returned when a status update violates the
	// lifecycle state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrCursorNotFound is returned when a sync cursor doesn't exist yet.
	ErrCursorNotFound = errors.New("sync cursor not found")
)

// BountyFilter narrows List results.
type BountyFilter struct {
	Status     domain.Status
	Client     string
	Freelancer string
	Limit      int
	Offset     int
}

// StatusUpdate describes one guarded lifecycle transition.
type StatusUpdate struct {
	RowID      string
	NextStatus domain.Status
	TxID       string
	// Freelancer is set only on the accept transition.
	Freelancer string
}

// BountyRepository handles bounty metadata persistence. Bounties are never
// hard-deleted.
type BountyRepository interface {
	// Create inserts a new bounty row (status open, on-chain id unset).
	Create(ctx context.Context, b *domain.Bounty) error

	// GetByRowID retrieves a bounty by its row UUID.
	GetByRowID(ctx context.Context, rowID string) (*domain.Bounty, error)

	// GetByBountyID retrieves a bounty by its on-chain id.
	GetByBountyID(ctx context.Context, bountyID int64) (*domain.Bounty, error)

	// List retrieves bounties matching the filter, newest first.
	List(ctx context.Context, filter BountyFilter) ([]*domain.Bounty, error)

	// UpdateStatus applies a lifecycle transition, recording the action txid
	// (and freelancer on accept). Returns ErrInvalidTransition if the current
	// status does not permit it.
	UpdateStatus(ctx context.Context, update StatusUpdate) (*domain.Bounty, error)

	// SetBountyID binds the on-chain id recovered by reconciliation.
	// Returns ErrDuplicateBountyID if another row already holds it.
	SetBountyID(ctx context.Context, rowID string, bountyID int64) error

	// SetStatus forces a status (sweep repair); the caller is responsible
	// for forward-only ordering.
	SetStatus(ctx context.Context, rowID string, status domain.Status, txid *string) error

	// ListUnreconciled retrieves bounties whose on-chain id is still unset.
	ListUnreconciled(ctx context.Context, limit int) ([]*domain.Bounty, error)

	// CountByStatus returns row counts grouped by status.
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
}

// CursorRepository tracks the last swept indexer round per application.
type CursorRepository interface {
	// Get retrieves the cursor for an application.
	Get(ctx context.Context, applicationID uint64) (*domain.SyncCursor, error)

	// Upsert saves the cursor.
	Upsert(ctx context.Context, cursor *domain.SyncCursor) error
}

// ReconcileQueueRepository handles the reconciliation work queue.
type ReconcileQueueRepository interface {
	// Add enqueues a task. Adding an already-pending (bounty, kind) pair is
	// a no-op.
	Add(ctx context.Context, task *domain.ReconcileTask) error

	// GetNext retrieves the next due pending task, oldest first.
	GetNext(ctx context.Context) (*domain.ReconcileTask, error)

	// IncrementRetry bumps the retry count and schedules the next attempt.
	IncrementRetry(ctx context.Context, id string, nextAttempt time.Time, lastError string) error

	// MarkResolved marks a task done.
	MarkResolved(ctx context.Context, id string) error

	// MarkAbandoned marks a task permanently failed.
	MarkAbandoned(ctx context.Context, id string, lastError string) error

	// Count returns the number of pending tasks.
	Count(ctx context.Context) (int, error)

	// DeleteResolvedBefore prunes resolved/abandoned tasks older than cutoff.
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
