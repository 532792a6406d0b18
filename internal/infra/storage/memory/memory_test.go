package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/algoease/backend/internal/core/domain"
	"github.com/algoease/backend/internal/infra/storage"
)

func newBounty(id string) *domain.Bounty {
	return &domain.Bounty{
		ID:            id,
		Title:         "title " + id,
		Amount:        1_000_000,
		Status:        domain.StatusOpen,
		ClientAddress: "CLIENT",
		CreateTxID:    "TX" + id,
	}
}

func TestBountyRepo_CreateAndGet(t *testing.T) {
	repo := NewBountyRepo(NewStorage())
	ctx := context.Background()

	if err := repo.Create(ctx, newBounty("a")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByRowID(ctx, "a")
	if err != nil {
		t.Fatalf("GetByRowID() error = %v", err)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not stamped on create")
	}

	if _, err := repo.GetByRowID(ctx, "missing"); !errors.Is(err, storage.ErrBountyNotFound) {
		t.Errorf("GetByRowID(missing) error = %v, want ErrBountyNotFound", err)
	}
}

func TestBountyRepo_ReturnsCopies(t *testing.T) {
	repo := NewBountyRepo(NewStorage())
	ctx := context.Background()

	if err := repo.Create(ctx, newBounty("a")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got, _ := repo.GetByRowID(ctx, "a")
	got.Status = domain.StatusClaimed

	again, _ := repo.GetByRowID(ctx, "a")
	if again.Status != domain.StatusOpen {
		t.Error("mutation of a returned bounty leaked into the store")
	}
}

func TestBountyRepo_SetBountyID(t *testing.T) {
	repo := NewBountyRepo(NewStorage())
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := repo.Create(ctx, newBounty(id)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	if err := repo.SetBountyID(ctx, "a", 3); err != nil {
		t.Fatalf("SetBountyID() error = %v", err)
	}
	got, err := repo.GetByBountyID(ctx, 3)
	if err != nil {
		t.Fatalf("GetByBountyID() error = %v", err)
	}
	if got.ID != "a" {
		t.Errorf("GetByBountyID(3).ID = %s, want a", got.ID)
	}

	// Same id on another row must conflict.
	if err := repo.SetBountyID(ctx, "b", 3); !errors.Is(err, storage.ErrDuplicateBountyID) {
		t.Errorf("SetBountyID(b, 3) error = %v, want ErrDuplicateBountyID", err)
	}
	// Rebinding the same row to the same id is a no-op.
	if err := repo.SetBountyID(ctx, "a", 3); err != nil {
		t.Errorf("SetBountyID(a, 3) again error = %v, want nil", err)
	}
}

func TestBountyRepo_UpdateStatusGuardsTransitions(t *testing.T) {
	repo := NewBountyRepo(NewStorage())
	ctx := context.Background()

	if err := repo.Create(ctx, newBounty("a")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err := repo.UpdateStatus(ctx, storage.StatusUpdate{
		RowID: "a", NextStatus: domain.StatusSubmitted, TxID: "TXS",
	})
	if !errors.Is(err, storage.ErrInvalidTransition) {
		t.Fatalf("open->submitted error = %v, want ErrInvalidTransition", err)
	}

	got, err := repo.UpdateStatus(ctx, storage.StatusUpdate{
		RowID: "a", NextStatus: domain.StatusAccepted, TxID: "TXA", Freelancer: "FREE",
	})
	if err != nil {
		t.Fatalf("open->accepted error = %v", err)
	}
	if got.FreelancerAddress == nil || *got.FreelancerAddress != "FREE" {
		t.Errorf("FreelancerAddress = %v, want FREE", got.FreelancerAddress)
	}
	if got.AcceptTxID == nil || *got.AcceptTxID != "TXA" {
		t.Errorf("AcceptTxID = %v, want TXA", got.AcceptTxID)
	}
}

func TestBountyRepo_ListUnreconciled(t *testing.T) {
	repo := NewBountyRepo(NewStorage())
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := repo.Create(ctx, newBounty(id)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if err := repo.SetBountyID(ctx, "b", 1); err != nil {
		t.Fatalf("SetBountyID() error = %v", err)
	}

	unbound, err := repo.ListUnreconciled(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnreconciled() error = %v", err)
	}
	if len(unbound) != 2 {
		t.Errorf("len(unbound) = %d, want 2", len(unbound))
	}
	for _, b := range unbound {
		if b.ID == "b" {
			t.Error("bound bounty returned as unreconciled")
		}
	}

	limited, err := repo.ListUnreconciled(ctx, 1)
	if err != nil {
		t.Fatalf("ListUnreconciled(1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("len(limited) = %d, want 1", len(limited))
	}
}

func TestBountyRepo_CountByStatus(t *testing.T) {
	repo := NewBountyRepo(NewStorage())
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := repo.Create(ctx, newBounty(id)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if _, err := repo.UpdateStatus(ctx, storage.StatusUpdate{
		RowID: "a", NextStatus: domain.StatusAccepted, TxID: "T", Freelancer: "F",
	}); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus() error = %v", err)
	}
	if counts[domain.StatusOpen] != 2 || counts[domain.StatusAccepted] != 1 {
		t.Errorf("counts = %v, want open:2 accepted:1", counts)
	}
}

func TestCursorRepo_RoundTrip(t *testing.T) {
	repo := NewCursorRepo(NewStorage())
	ctx := context.Background()

	if _, err := repo.Get(ctx, 100); !errors.Is(err, storage.ErrCursorNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrCursorNotFound", err)
	}

	if err := repo.Upsert(ctx, &domain.SyncCursor{ApplicationID: 100, Round: 7}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := repo.Upsert(ctx, &domain.SyncCursor{ApplicationID: 100, Round: 9}); err != nil {
		t.Fatalf("Upsert() update error = %v", err)
	}

	got, err := repo.Get(ctx, 100)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Round != 9 {
		t.Errorf("Round = %d, want 9", got.Round)
	}
}

func TestReconcileQueueRepo_DedupesPending(t *testing.T) {
	repo := NewReconcileQueueRepo(NewStorage())
	ctx := context.Background()

	add := func(id string) {
		t.Helper()
		err := repo.Add(ctx, &domain.ReconcileTask{
			ID:          id,
			BountyRowID: "row-1",
			Kind:        domain.ReconcileKindBountyID,
			NextAttempt: time.Now().Add(-time.Second),
		})
		if err != nil {
			t.Fatalf("Add(%s) error = %v", id, err)
		}
	}

	add("t1")
	add("t2") // same bounty and kind, must be dropped

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}

	task, err := repo.GetNext(ctx)
	if err != nil {
		t.Fatalf("GetNext() error = %v", err)
	}
	if task == nil || task.ID != "t1" {
		t.Fatalf("GetNext() = %+v, want t1", task)
	}

	if err := repo.MarkResolved(ctx, "t1"); err != nil {
		t.Fatalf("MarkResolved() error = %v", err)
	}
	// With no pending task left, the same (bounty, kind) can queue again.
	add("t3")
	count, _ = repo.Count(ctx)
	if count != 1 {
		t.Errorf("Count() after requeue = %d, want 1", count)
	}
}

func TestReconcileQueueRepo_GetNextHonorsSchedule(t *testing.T) {
	repo := NewReconcileQueueRepo(NewStorage())
	ctx := context.Background()

	err := repo.Add(ctx, &domain.ReconcileTask{
		ID:          "future",
		BountyRowID: "row-1",
		Kind:        domain.ReconcileKindRefund,
		NextAttempt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	task, err := repo.GetNext(ctx)
	if err != nil {
		t.Fatalf("GetNext() error = %v", err)
	}
	if task != nil {
		t.Errorf("GetNext() = %+v, want nil before the task is due", task)
	}
}
