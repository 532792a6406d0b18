package worker

import (
	"context"
	"testing"
	"time"

	"github.com/algoease/backend/internal/core/domain"
	"github.com/algoease/backend/internal/infra/storage/memory"
)

func TestPruner_RemovesOnlyFinishedTasks(t *testing.T) {
	store := memory.NewStorage()
	queue := memory.NewReconcileQueueRepo(store)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		err := queue.Add(ctx, &domain.ReconcileTask{
			ID:          id,
			BountyRowID: "row-" + id,
			Kind:        domain.ReconcileKindBountyID,
			NextAttempt: time.Now(),
		})
		if err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if err := queue.MarkResolved(ctx, "a"); err != nil {
		t.Fatalf("MarkResolved() error = %v", err)
	}
	if err := queue.MarkAbandoned(ctx, "b", "gave up"); err != nil {
		t.Fatalf("MarkAbandoned() error = %v", err)
	}

	// Negative retention: the cutoff lies in the future, so every finished
	// task is already past it.
	p := NewPruner(queue, -time.Hour)
	p.prune(ctx)

	pending, err := queue.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if pending != 1 {
		t.Errorf("pending tasks = %d, want 1", pending)
	}
	task, err := queue.GetNext(ctx)
	if err != nil {
		t.Fatalf("GetNext() error = %v", err)
	}
	if task == nil || task.ID != "c" {
		t.Errorf("GetNext() = %+v, want the pending task c", task)
	}
}
