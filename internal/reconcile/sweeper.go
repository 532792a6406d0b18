package reconcile

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/algoease/backend/internal/core/domain"
	"github.com/algoease/backend/internal/infra/algorand"
	"github.com/algoease/backend/internal/infra/storage"
	"github.com/algoease/backend/internal/metrics"
)

// TxSearcher pages application transactions for the sweep.
type TxSearcher interface {
	SearchApplicationTransactions(
		ctx context.Context,
		applicationID uint64,
		minRound uint64,
		nextToken string,
		limit int,
	) (*algorand.TxPage, error)
}

// methodStatus maps contract app-call methods to the status they produce.
var methodStatus = map[string]domain.Status{
	"accept_bounty":  domain.StatusAccepted,
	"submit_bounty":  domain.StatusSubmitted,
	"approve_bounty": domain.StatusApproved,
	"reject_bounty":  domain.StatusRejected,
	"claim_bounty":   domain.StatusClaimed,
}

// Sweeper repairs status drift: it walks the escrow application's
// transactions from the last swept round and applies any lifecycle action
// the API missed, then advances the cursor.
type Sweeper struct {
	applicationID uint64
	bounties      storage.BountyRepository
	cursors       storage.CursorRepository
	searcher      TxSearcher
	interval      time.Duration
	pageLimit     int
	log           *slog.Logger
}

// NewSweeper creates a sweeper.
func NewSweeper(
	applicationID uint64,
	bounties storage.BountyRepository,
	cursors storage.CursorRepository,
	searcher TxSearcher,
	interval time.Duration,
) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		applicationID: applicationID,
		bounties:      bounties,
		cursors:       cursors,
		searcher:      searcher,
		interval:      interval,
		pageLimit:     100,
		log:           slog.Default().With("component", "sweeper"),
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("sweep failed", "error", err)
			}
		}
	}
}

// RunOnce performs one full sweep from the cursor to the indexer's head.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	var fromRound uint64
	cursor, err := s.cursors.Get(ctx, s.applicationID)
	switch {
	case err == nil:
		fromRound = cursor.Round + 1
	case errors.Is(err, storage.ErrCursorNotFound):
		fromRound = 0
	default:
		return fmt.Errorf("failed to load cursor: %w", err)
	}

	var (
		nextToken string
		maxRound  uint64
	)
	for {
		page, err := s.searcher.SearchApplicationTransactions(
			ctx, s.applicationID, fromRound, nextToken, s.pageLimit)
		if err != nil {
			return fmt.Errorf("failed to search transactions: %w", err)
		}

		for i := range page.Transactions {
			tx := &page.Transactions[i]
			if tx.ConfirmedRound > maxRound {
				maxRound = tx.ConfirmedRound
			}
			s.apply(ctx, tx)
		}

		if page.NextToken == "" || len(page.Transactions) == 0 {
			if page.CurrentRound > maxRound {
				maxRound = page.CurrentRound
			}
			break
		}
		nextToken = page.NextToken
	}

	if maxRound == 0 {
		return nil
	}

	if err := s.cursors.Upsert(ctx, &domain.SyncCursor{
		ApplicationID: s.applicationID,
		Round:         maxRound,
	}); err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	metrics.SweepRound.Set(float64(maxRound))
	return nil
}

// apply replays one application call against the metadata store. Errors are
// logged, not returned: a single bad transaction must not stall the cursor.
func (s *Sweeper) apply(ctx context.Context, tx *algorand.Transaction) {
	call := tx.ApplicationCall
	if call == nil || call.ApplicationID != s.applicationID || len(call.ApplicationArgs) < 2 {
		return
	}

	method, err := base64.StdEncoding.DecodeString(call.ApplicationArgs[0])
	if err != nil {
		return
	}
	target, ok := methodStatus[string(method)]
	if !ok {
		return // create_bounty is handled by the reconciler
	}

	rawID, err := base64.StdEncoding.DecodeString(call.ApplicationArgs[1])
	if err != nil || len(rawID) != 8 {
		return
	}
	bountyID := int64(binary.BigEndian.Uint64(rawID))

	b, err := s.bounties.GetByBountyID(ctx, bountyID)
	if errors.Is(err, storage.ErrBountyNotFound) {
		// A bounty created outside this backend; nothing to repair.
		s.log.Debug("sweep saw unknown bounty", "bounty_id", bountyID, "txid", tx.ID)
		return
	}
	if err != nil {
		s.log.Error("sweep lookup failed", "bounty_id", bountyID, "error", err)
		return
	}

	if domain.StatusRank(target) <= domain.StatusRank(b.Status) {
		return // Record already caught up; never move backwards.
	}

	if domain.CanTransition(b.Status, target) {
		update := storage.StatusUpdate{
			RowID:      b.ID,
			NextStatus: target,
			TxID:       tx.ID,
		}
		if target == domain.StatusAccepted {
			update.Freelancer = tx.Sender
		}
		if _, err := s.bounties.UpdateStatus(ctx, update); err != nil {
			s.log.Error("sweep transition failed",
				"bounty", b.ID, "status", target, "error", err)
			return
		}
	} else {
		// The record skipped intermediate actions; jump forward.
		txid := tx.ID
		if err := s.bounties.SetStatus(ctx, b.ID, target, &txid); err != nil {
			s.log.Error("sweep repair failed",
				"bounty", b.ID, "status", target, "error", err)
			return
		}
	}

	s.log.Info("sweep repaired status drift",
		"bounty", b.ID, "bounty_id", bountyID,
		"from", b.Status, "to", target, "txid", tx.ID)
}
