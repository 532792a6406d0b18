package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/algoease/backend/internal/core/domain"
	"github.com/algoease/backend/internal/infra/storage"
)

// Storage is an in-memory implementation of all repositories, used for tests
// and for running without a database.
type Storage struct {
	mu       sync.RWMutex
	bounties map[string]*domain.Bounty
	byChain  map[int64]string // on-chain id -> row id
	cursors  map[uint64]*domain.SyncCursor
	tasks    map[string]*domain.ReconcileTask
}

// NewStorage creates empty in-memory storage.
func NewStorage() *Storage {
	return &Storage{
		bounties: make(map[string]*domain.Bounty),
		byChain:  make(map[int64]string),
		cursors:  make(map[uint64]*domain.SyncCursor),
		tasks:    make(map[string]*domain.ReconcileTask),
	}
}

// BountyRepo implements storage.BountyRepository in memory.
type BountyRepo struct{ s *Storage }

// NewBountyRepo creates an in-memory bounty repository.
func NewBountyRepo(s *Storage) *BountyRepo { return &BountyRepo{s: s} }

func copyBounty(b *domain.Bounty) *domain.Bounty {
	out := *b
	if b.BountyID != nil {
		id := *b.BountyID
		out.BountyID = &id
	}
	out.FreelancerAddress = copyString(b.FreelancerAddress)
	out.AcceptTxID = copyString(b.AcceptTxID)
	out.SubmitTxID = copyString(b.SubmitTxID)
	out.ApproveTxID = copyString(b.ApproveTxID)
	out.RejectTxID = copyString(b.RejectTxID)
	out.ClaimTxID = copyString(b.ClaimTxID)
	out.RefundTxID = copyString(b.RefundTxID)
	return &out
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func (r *BountyRepo) Create(ctx context.Context, b *domain.Bounty) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.bounties[b.ID]; exists {
		return fmt.Errorf("bounty %s already exists", b.ID)
	}
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	r.s.bounties[b.ID] = copyBounty(b)
	return nil
}

func (r *BountyRepo) GetByRowID(ctx context.Context, rowID string) (*domain.Bounty, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	b, ok := r.s.bounties[rowID]
	if !ok {
		return nil, storage.ErrBountyNotFound
	}
	return copyBounty(b), nil
}

func (r *BountyRepo) GetByBountyID(ctx context.Context, bountyID int64) (*domain.Bounty, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	rowID, ok := r.s.byChain[bountyID]
	if !ok {
		return nil, storage.ErrBountyNotFound
	}
	return copyBounty(r.s.bounties[rowID]), nil
}

func (r *BountyRepo) List(ctx context.Context, filter storage.BountyFilter) ([]*domain.Bounty, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []*domain.Bounty
	for _, b := range r.s.bounties {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.Client != "" && b.ClientAddress != filter.Client {
			continue
		}
		if filter.Freelancer != "" &&
			(b.FreelancerAddress == nil || *b.FreelancerAddress != filter.Freelancer) {
			continue
		}
		result = append(result, copyBounty(b))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *BountyRepo) UpdateStatus(ctx context.Context, update storage.StatusUpdate) (*domain.Bounty, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bounties[update.RowID]
	if !ok {
		return nil, storage.ErrBountyNotFound
	}
	if !domain.CanTransition(b.Status, update.NextStatus) {
		return nil, fmt.Errorf("%w: %s -> %s",
			storage.ErrInvalidTransition, b.Status, update.NextStatus)
	}

	txid := update.TxID
	b.Status = update.NextStatus
	switch update.NextStatus {
	case domain.StatusAccepted:
		b.AcceptTxID = &txid
		freelancer := update.Freelancer
		b.FreelancerAddress = &freelancer
	case domain.StatusSubmitted:
		b.SubmitTxID = &txid
	case domain.StatusApproved:
		b.ApproveTxID = &txid
	case domain.StatusRejected:
		b.RejectTxID = &txid
	case domain.StatusClaimed:
		b.ClaimTxID = &txid
	case domain.StatusRefunded:
		b.RefundTxID = &txid
	}
	b.UpdatedAt = time.Now()
	return copyBounty(b), nil
}

func (r *BountyRepo) SetBountyID(ctx context.Context, rowID string, bountyID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bounties[rowID]
	if !ok {
		return storage.ErrBountyNotFound
	}
	if existing, bound := r.s.byChain[bountyID]; bound && existing != rowID {
		return storage.ErrDuplicateBountyID
	}
	if b.BountyID != nil {
		if *b.BountyID == bountyID {
			return nil
		}
		return storage.ErrDuplicateBountyID
	}
	id := bountyID
	b.BountyID = &id
	b.UpdatedAt = time.Now()
	r.s.byChain[bountyID] = rowID
	return nil
}

func (r *BountyRepo) SetStatus(ctx context.Context, rowID string, status domain.Status, txid *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bounties[rowID]
	if !ok {
		return storage.ErrBountyNotFound
	}
	b.Status = status
	if txid != nil {
		v := *txid
		switch status {
		case domain.StatusAccepted:
			if b.AcceptTxID == nil {
				b.AcceptTxID = &v
			}
		case domain.StatusSubmitted:
			if b.SubmitTxID == nil {
				b.SubmitTxID = &v
			}
		case domain.StatusApproved:
			if b.ApproveTxID == nil {
				b.ApproveTxID = &v
			}
		case domain.StatusRejected:
			if b.RejectTxID == nil {
				b.RejectTxID = &v
			}
		case domain.StatusClaimed:
			if b.ClaimTxID == nil {
				b.ClaimTxID = &v
			}
		case domain.StatusRefunded:
			if b.RefundTxID == nil {
				b.RefundTxID = &v
			}
		}
	}
	b.UpdatedAt = time.Now()
	return nil
}

func (r *BountyRepo) ListUnreconciled(ctx context.Context, limit int) ([]*domain.Bounty, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var result []*domain.Bounty
	for _, b := range r.s.bounties {
		if b.BountyID == nil {
			result = append(result, copyBounty(b))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *BountyRepo) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	counts := make(map[domain.Status]int)
	for _, b := range r.s.bounties {
		counts[b.Status]++
	}
	return counts, nil
}

// CursorRepo implements storage.CursorRepository in memory.
type CursorRepo struct{ s *Storage }

// NewCursorRepo creates an in-memory cursor repository.
func NewCursorRepo(s *Storage) *CursorRepo { return &CursorRepo{s: s} }

func (r *CursorRepo) Get(ctx context.Context, applicationID uint64) (*domain.SyncCursor, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.cursors[applicationID]
	if !ok {
		return nil, storage.ErrCursorNotFound
	}
	out := *c
	return &out, nil
}

func (r *CursorRepo) Upsert(ctx context.Context, cursor *domain.SyncCursor) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *cursor
	c.UpdatedAt = time.Now()
	r.s.cursors[cursor.ApplicationID] = &c
	return nil
}

// ReconcileQueueRepo implements storage.ReconcileQueueRepository in memory.
type ReconcileQueueRepo struct{ s *Storage }

// NewReconcileQueueRepo creates an in-memory reconcile queue repository.
func NewReconcileQueueRepo(s *Storage) *ReconcileQueueRepo {
	return &ReconcileQueueRepo{s: s}
}

func (r *ReconcileQueueRepo) Add(ctx context.Context, task *domain.ReconcileTask) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tasks {
		if t.BountyRowID == task.BountyRowID && t.Kind == task.Kind &&
			t.Status == domain.ReconcileTaskPending {
			return nil // Already queued
		}
	}
	now := time.Now()
	t := *task
	t.Status = domain.ReconcileTaskPending
	t.CreatedAt = now
	t.UpdatedAt = now
	r.s.tasks[task.ID] = &t
	return nil
}

func (r *ReconcileQueueRepo) GetNext(ctx context.Context) (*domain.ReconcileTask, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	now := time.Now()
	var next *domain.ReconcileTask
	for _, t := range r.s.tasks {
		if t.Status != domain.ReconcileTaskPending || t.NextAttempt.After(now) {
			continue
		}
		if next == nil || t.NextAttempt.Before(next.NextAttempt) {
			next = t
		}
	}
	if next == nil {
		return nil, nil
	}
	out := *next
	return &out, nil
}

func (r *ReconcileQueueRepo) IncrementRetry(ctx context.Context, id string, nextAttempt time.Time, lastError string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return fmt.Errorf("reconcile task %s not found", id)
	}
	t.RetryCount++
	t.NextAttempt = nextAttempt
	t.LastError = lastError
	t.UpdatedAt = time.Now()
	return nil
}

func (r *ReconcileQueueRepo) MarkResolved(ctx context.Context, id string) error {
	return r.setStatus(id, domain.ReconcileTaskResolved, "")
}

func (r *ReconcileQueueRepo) MarkAbandoned(ctx context.Context, id string, lastError string) error {
	return r.setStatus(id, domain.ReconcileTaskAbandoned, lastError)
}

func (r *ReconcileQueueRepo) setStatus(id string, status domain.ReconcileTaskStatus, lastError string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return fmt.Errorf("reconcile task %s not found", id)
	}
	t.Status = status
	if lastError != "" {
		t.LastError = lastError
	}
	t.UpdatedAt = time.Now()
	return nil
}

func (r *ReconcileQueueRepo) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	count := 0
	for _, t := range r.s.tasks {
		if t.Status == domain.ReconcileTaskPending {
			count++
		}
	}
	return count, nil
}

func (r *ReconcileQueueRepo) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var deleted int64
	for id, t := range r.s.tasks {
		if t.Status == domain.ReconcileTaskPending {
			continue
		}
		if t.UpdatedAt.Before(cutoff) {
			delete(r.s.tasks, id)
			deleted++
		}
	}
	return deleted, nil
}
