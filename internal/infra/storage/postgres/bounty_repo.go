package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/algoease/backend/internal/core/domain"
	"github.com/algoease/backend/internal/infra/storage"
)

// BountyRepo implements storage.BountyRepository using PostgreSQL.
type BountyRepo struct {
	db *DB
}

// NewBountyRepo creates a new PostgreSQL bounty repository.
func NewBountyRepo(db *DB) *BountyRepo {
	return &BountyRepo{db: db}
}

// bountyRow mirrors the bounties table.
type bountyRow struct {
	ID                string         `db:"id"`
	BountyID          sql.NullInt64  `db:"bounty_id"`
	Title             string         `db:"title"`
	Description       string         `db:"description"`
	Amount            int64          `db:"amount"`
	Status            string         `db:"status"`
	ClientAddress     string         `db:"client_address"`
	FreelancerAddress sql.NullString `db:"freelancer_address"`
	CreateTxID        string         `db:"create_txid"`
	AcceptTxID        sql.NullString `db:"accept_txid"`
	SubmitTxID        sql.NullString `db:"submit_txid"`
	ApproveTxID       sql.NullString `db:"approve_txid"`
	RejectTxID        sql.NullString `db:"reject_txid"`
	ClaimTxID         sql.NullString `db:"claim_txid"`
	RefundTxID        sql.NullString `db:"refund_txid"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

const bountyColumns = `id, bounty_id, title, description, amount, status,
	client_address, freelancer_address,
	create_txid, accept_txid, submit_txid, approve_txid, reject_txid,
	claim_txid, refund_txid, created_at, updated_at`

func (r bountyRow) toDomain() *domain.Bounty {
	b := &domain.Bounty{
		ID:            r.ID,
		Title:         r.Title,
		Description:   r.Description,
		Amount:        r.Amount,
		Status:        domain.Status(r.Status),
		ClientAddress: r.ClientAddress,
		CreateTxID:    r.CreateTxID,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.BountyID.Valid {
		b.BountyID = &r.BountyID.Int64
	}
	if r.FreelancerAddress.Valid {
		b.FreelancerAddress = &r.FreelancerAddress.String
	}
	b.AcceptTxID = nullableString(r.AcceptTxID)
	b.SubmitTxID = nullableString(r.SubmitTxID)
	b.ApproveTxID = nullableString(r.ApproveTxID)
	b.RejectTxID = nullableString(r.RejectTxID)
	b.ClaimTxID = nullableString(r.ClaimTxID)
	b.RefundTxID = nullableString(r.RefundTxID)
	return b
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

// Create inserts a new bounty row.
func (r *BountyRepo) Create(ctx context.Context, b *domain.Bounty) error {
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO bounties (id, title, description, amount, status, client_address, create_txid)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		b.ID, b.Title, b.Description, b.Amount, string(b.Status), b.ClientAddress, b.CreateTxID,
	)
	if err := row.Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert bounty: %w", err)
	}
	return nil
}

// GetByRowID retrieves a bounty by its row UUID.
func (r *BountyRepo) GetByRowID(ctx context.Context, rowID string) (*domain.Bounty, error) {
	var row bountyRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+bountyColumns+` FROM bounties WHERE id = $1`, rowID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrBountyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bounty: %w", err)
	}
	return row.toDomain(), nil
}

// GetByBountyID retrieves a bounty by its on-chain id.
func (r *BountyRepo) GetByBountyID(ctx context.Context, bountyID int64) (*domain.Bounty, error) {
	var row bountyRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+bountyColumns+` FROM bounties WHERE bounty_id = $1`, bountyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrBountyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bounty by on-chain id: %w", err)
	}
	return row.toDomain(), nil
}

// List retrieves bounties matching the filter, newest first.
func (r *BountyRepo) List(ctx context.Context, filter storage.BountyFilter) ([]*domain.Bounty, error) {
	query := `SELECT ` + bountyColumns + ` FROM bounties WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Client != "" {
		args = append(args, filter.Client)
		query += fmt.Sprintf(" AND client_address = $%d", len(args))
	}
	if filter.Freelancer != "" {
		args = append(args, filter.Freelancer)
		query += fmt.Sprintf(" AND freelancer_address = $%d", len(args))
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var rows []bountyRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list bounties: %w", err)
	}

	bounties := make([]*domain.Bounty, 0, len(rows))
	for _, row := range rows {
		bounties = append(bounties, row.toDomain())
	}
	return bounties, nil
}

// txidColumns maps a target status to the breadcrumb column its action fills.
var txidColumns = map[domain.Status]string{
	domain.StatusAccepted:  "accept_txid",
	domain.StatusSubmitted: "submit_txid",
	domain.StatusApproved:  "approve_txid",
	domain.StatusRejected:  "reject_txid",
	domain.StatusClaimed:   "claim_txid",
	domain.StatusRefunded:  "refund_txid",
}

// UpdateStatus applies a guarded lifecycle transition under a row lock.
func (r *BountyRepo) UpdateStatus(ctx context.Context, update storage.StatusUpdate) (*domain.Bounty, error) {
	column, ok := txidColumns[update.NextStatus]
	if !ok {
		return nil, storage.ErrInvalidTransition
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowxContext(ctx,
		`SELECT status FROM bounties WHERE id = $1 FOR UPDATE`, update.RowID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrBountyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock bounty: %w", err)
	}

	if !domain.CanTransition(domain.Status(current), update.NextStatus) {
		return nil, fmt.Errorf("%w: %s -> %s",
			storage.ErrInvalidTransition, current, update.NextStatus)
	}

	if update.NextStatus == domain.StatusAccepted {
		_, err = tx.ExecContext(ctx, `
			UPDATE bounties
			SET status = $1, accept_txid = $2, freelancer_address = $3, updated_at = now()
			WHERE id = $4`,
			string(update.NextStatus), update.TxID, update.Freelancer, update.RowID)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE bounties
			SET status = $1, `+column+` = $2, updated_at = now()
			WHERE id = $3`,
			string(update.NextStatus), update.TxID, update.RowID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}

	var row bountyRow
	err = tx.QueryRowxContext(ctx,
		`SELECT `+bountyColumns+` FROM bounties WHERE id = $1`, update.RowID,
	).StructScan(&row)
	if err != nil {
		return nil, fmt.Errorf("failed to reload bounty: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}
	return row.toDomain(), nil
}

// SetBountyID binds the on-chain id recovered by reconciliation.
func (r *BountyRepo) SetBountyID(ctx context.Context, rowID string, bountyID int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE bounties SET bounty_id = $1, updated_at = now()
		WHERE id = $2 AND bounty_id IS NULL`,
		bountyID, rowID)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrDuplicateBountyID
		}
		return fmt.Errorf("failed to set on-chain id: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		// Row missing, or already bound to some id.
		existing, getErr := r.GetByRowID(ctx, rowID)
		if getErr != nil {
			return getErr
		}
		if existing.BountyID != nil && *existing.BountyID == bountyID {
			return nil // Idempotent rebind
		}
		return storage.ErrDuplicateBountyID
	}
	return nil
}

// SetStatus forces a status with an optional breadcrumb (sweep repair).
func (r *BountyRepo) SetStatus(ctx context.Context, rowID string, status domain.Status, txid *string) error {
	column := txidColumns[status]
	var err error
	if column != "" && txid != nil {
		_, err = r.db.ExecContext(ctx, `
			UPDATE bounties
			SET status = $1, `+column+` = COALESCE(`+column+`, $2), updated_at = now()
			WHERE id = $3`,
			string(status), *txid, rowID)
	} else {
		_, err = r.db.ExecContext(ctx, `
			UPDATE bounties SET status = $1, updated_at = now() WHERE id = $2`,
			string(status), rowID)
	}
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return nil
}

// ListUnreconciled retrieves bounties whose on-chain id is still unset.
func (r *BountyRepo) ListUnreconciled(ctx context.Context, limit int) ([]*domain.Bounty, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []bountyRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+bountyColumns+` FROM bounties
		 WHERE bounty_id IS NULL ORDER BY created_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unreconciled bounties: %w", err)
	}
	bounties := make([]*domain.Bounty, 0, len(rows))
	for _, row := range rows {
		bounties = append(bounties, row.toDomain())
	}
	return bounties, nil
}

// CountByStatus returns row counts grouped by status.
func (r *BountyRepo) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.db.QueryxContext(ctx,
		`SELECT status, COUNT(*) FROM bounties GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count bounties: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[domain.Status(status)] = count
	}
	return counts, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
