package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/algoease/backend/internal/infra/algorand"
	"github.com/algoease/backend/internal/infra/storage"
)

// Pinger is a dependency that can be probed for liveness.
type Pinger interface {
	Health(ctx context.Context) error
}

// IndexerStatus exposes provider state and the chain head.
type IndexerStatus interface {
	Providers() []*algorand.Provider
	LastRound(ctx context.Context) (uint64, error)
}

// Thresholds before the sweep/backlog is considered degraded.
const (
	maxSweepLag     = 1000
	maxPendingTasks = 50
	maxUnreconciled = 25
)

// Monitor aggregates health status from the system's dependencies.
type Monitor struct {
	applicationID uint64
	db            Pinger
	redis         Pinger // nil when redis is not configured
	indexer       IndexerStatus
	cursors       storage.CursorRepository
	queue         storage.ReconcileQueueRepository
	bounties      storage.BountyRepository

	lastCheck  time.Time
	lastReport *Report
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(
	applicationID uint64,
	db Pinger,
	redis Pinger,
	indexer IndexerStatus,
	cursors storage.CursorRepository,
	queue storage.ReconcileQueueRepository,
	bounties storage.BountyRepository,
) *Monitor {
	return &Monitor{
		applicationID: applicationID,
		db:            db,
		redis:         redis,
		indexer:       indexer,
		cursors:       cursors,
		queue:         queue,
		bounties:      bounties,
	}
}

// Check performs a full health check. Results are cached for 10s so the
// endpoint cannot be used to hammer the indexer.
func (m *Monitor) Check(ctx context.Context) *Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < 10*time.Second {
		return m.lastReport
	}

	report := &Report{
		Status:    StatusHealthy,
		CheckedAt: time.Now(),
	}

	report.Database = m.probe(ctx, m.db)
	if m.redis != nil {
		r := m.probe(ctx, m.redis)
		report.Redis = &r
	}
	report.Indexer = m.checkIndexer(ctx)
	report.Reconcile = m.checkReconcile(ctx)

	// Worst case wins. The database and the indexer are load-bearing;
	// redis only coordinates locks, so its loss is a degradation.
	report.Status = worst(report.Database.Status, report.Indexer.Status, report.Reconcile.Status)
	if report.Redis != nil && report.Redis.Status != StatusHealthy {
		report.Status = worst(report.Status, StatusDegraded)
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func (m *Monitor) probe(ctx context.Context, p Pinger) ComponentHealth {
	if err := p.Health(ctx); err != nil {
		return ComponentHealth{Status: StatusCritical, Error: err.Error()}
	}
	return ComponentHealth{Status: StatusHealthy}
}

func (m *Monitor) checkIndexer(ctx context.Context) IndexerHealth {
	h := IndexerHealth{Status: StatusHealthy}

	available := 0
	for _, p := range m.indexer.Providers() {
		s := p.Health()
		h.Providers = append(h.Providers, ProviderHealth{
			Name:      p.Name(),
			Available: s.Available,
			Latency:   s.Latency,
			ErrorRate: s.ErrorRate,
		})
		if s.Available {
			available++
		}
	}
	if available == 0 {
		h.Status = StatusCritical
		return h
	}
	if available < len(h.Providers) {
		h.Status = StatusDegraded
	}

	round, err := m.indexer.LastRound(ctx)
	if err != nil {
		h.Status = worst(h.Status, StatusDegraded)
		return h
	}
	h.LastRound = round

	cursor, err := m.cursors.Get(ctx, m.applicationID)
	switch {
	case errors.Is(err, storage.ErrCursorNotFound):
		// First sweep has not happened yet.
	case err != nil:
		h.Status = worst(h.Status, StatusDegraded)
	case round > cursor.Round:
		h.SweepLag = round - cursor.Round
		if h.SweepLag > maxSweepLag {
			h.Status = worst(h.Status, StatusDegraded)
		}
	}
	return h
}

func (m *Monitor) checkReconcile(ctx context.Context) ReconcileHealth {
	h := ReconcileHealth{Status: StatusHealthy}

	if pending, err := m.queue.Count(ctx); err == nil {
		h.PendingTasks = pending
	}
	if unbound, err := m.bounties.ListUnreconciled(ctx, maxUnreconciled+1); err == nil {
		h.Unreconciled = len(unbound)
	}

	if h.PendingTasks > maxPendingTasks || h.Unreconciled > maxUnreconciled {
		h.Status = StatusDegraded
	}
	return h
}

func worst(statuses ...SystemStatus) SystemStatus {
	out := StatusHealthy
	for _, s := range statuses {
		switch s {
		case StatusCritical:
			return StatusCritical
		case StatusDegraded:
			out = StatusDegraded
		}
	}
	return out
}
