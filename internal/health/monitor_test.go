package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/algoease/backend/internal/core/domain"
	"github.com/algoease/backend/internal/infra/algorand"
	"github.com/algoease/backend/internal/infra/storage/memory"
)

type stubPinger struct {
	err error
}

func (s *stubPinger) Health(ctx context.Context) error { return s.err }

type stubIndexer struct {
	providers []*algorand.Provider
	round     uint64
	roundErr  error
}

func (s *stubIndexer) Providers() []*algorand.Provider { return s.providers }
func (s *stubIndexer) LastRound(ctx context.Context) (uint64, error) {
	return s.round, s.roundErr
}

func newTestMonitor(db, redis *stubPinger, idx *stubIndexer) (*Monitor, *memory.Storage) {
	store := memory.NewStorage()
	var redisPinger Pinger
	if redis != nil {
		redisPinger = redis
	}
	m := NewMonitor(
		100,
		db,
		redisPinger,
		idx,
		memory.NewCursorRepo(store),
		memory.NewReconcileQueueRepo(store),
		memory.NewBountyRepo(store),
	)
	return m, store
}

func healthyIndexer() *stubIndexer {
	return &stubIndexer{
		providers: []*algorand.Provider{
			algorand.NewProvider("primary", "http://localhost", "", time.Second),
		},
		round: 42,
	}
}

func TestCheck_AllHealthy(t *testing.T) {
	m, _ := newTestMonitor(&stubPinger{}, &stubPinger{}, healthyIndexer())

	report := m.Check(context.Background())
	if report.Status != StatusHealthy {
		t.Errorf("Status = %s, want %s", report.Status, StatusHealthy)
	}
	if report.Database.Status != StatusHealthy {
		t.Errorf("Database.Status = %s, want %s", report.Database.Status, StatusHealthy)
	}
	if report.Redis == nil || report.Redis.Status != StatusHealthy {
		t.Errorf("Redis = %+v, want healthy", report.Redis)
	}
	if report.Indexer.LastRound != 42 {
		t.Errorf("Indexer.LastRound = %d, want 42", report.Indexer.LastRound)
	}
}

func TestCheck_DatabaseDownIsCritical(t *testing.T) {
	m, _ := newTestMonitor(&stubPinger{err: errors.New("connection refused")}, nil, healthyIndexer())

	report := m.Check(context.Background())
	if report.Status != StatusCritical {
		t.Errorf("Status = %s, want %s", report.Status, StatusCritical)
	}
	if report.Database.Error == "" {
		t.Error("Database.Error is empty, want probe error")
	}
}

func TestCheck_RedisDownOnlyDegrades(t *testing.T) {
	m, _ := newTestMonitor(&stubPinger{}, &stubPinger{err: errors.New("no route")}, healthyIndexer())

	report := m.Check(context.Background())
	if report.Status != StatusDegraded {
		t.Errorf("Status = %s, want %s", report.Status, StatusDegraded)
	}
}

func TestCheck_NoRedisConfigured(t *testing.T) {
	m, _ := newTestMonitor(&stubPinger{}, nil, healthyIndexer())

	report := m.Check(context.Background())
	if report.Redis != nil {
		t.Errorf("Redis = %+v, want nil when not configured", report.Redis)
	}
	if report.Status != StatusHealthy {
		t.Errorf("Status = %s, want %s", report.Status, StatusHealthy)
	}
}

func TestCheck_NoProvidersIsCritical(t *testing.T) {
	m, _ := newTestMonitor(&stubPinger{}, nil, &stubIndexer{})

	report := m.Check(context.Background())
	if report.Status != StatusCritical {
		t.Errorf("Status = %s, want %s", report.Status, StatusCritical)
	}
}

func TestCheck_BacklogDegrades(t *testing.T) {
	m, store := newTestMonitor(&stubPinger{}, nil, healthyIndexer())

	bounties := memory.NewBountyRepo(store)
	for i := 0; i < maxUnreconciled+1; i++ {
		b := &domain.Bounty{
			ID:            string(rune('a'+i%26)) + string(rune('0'+i/26)),
			Amount:        1,
			Status:        domain.StatusOpen,
			ClientAddress: "CLIENT",
		}
		if err := bounties.Create(context.Background(), b); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	report := m.Check(context.Background())
	if report.Status != StatusDegraded {
		t.Errorf("Status = %s, want %s", report.Status, StatusDegraded)
	}
	if report.Reconcile.Unreconciled <= maxUnreconciled {
		t.Errorf("Unreconciled = %d, want > %d", report.Reconcile.Unreconciled, maxUnreconciled)
	}
}

func TestCheck_ReportIsCached(t *testing.T) {
	idx := healthyIndexer()
	m, _ := newTestMonitor(&stubPinger{}, nil, idx)

	first := m.Check(context.Background())
	idx.round = 9999
	second := m.Check(context.Background())

	if first != second {
		t.Error("second Check() within cache window returned a fresh report")
	}
}
