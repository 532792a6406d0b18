package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/algoease/backend/internal/core/domain"
	"github.com/algoease/backend/internal/infra/storage"
)

// CursorRepo implements storage.CursorRepository using PostgreSQL.
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new PostgreSQL cursor repository.
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

// Get retrieves a cursor by application id.
func (r *CursorRepo) Get(ctx context.Context, applicationID uint64) (*domain.SyncCursor, error) {
	var cursor domain.SyncCursor
	err := r.db.QueryRowxContext(ctx, `
		SELECT application_id, round, updated_at
		FROM sync_cursors WHERE application_id = $1`,
		int64(applicationID),
	).Scan(&cursor.ApplicationID, &cursor.Round, &cursor.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrCursorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}
	return &cursor, nil
}

// Upsert saves a cursor.
func (r *CursorRepo) Upsert(ctx context.Context, cursor *domain.SyncCursor) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (application_id, round, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (application_id)
		DO UPDATE SET round = EXCLUDED.round, updated_at = now()`,
		int64(cursor.ApplicationID), int64(cursor.Round))
	if err != nil {
		return fmt.Errorf("failed to save cursor: %w", err)
	}
	return nil
}
