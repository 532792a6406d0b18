package domain

import "time"

// SyncCursor tracks the last indexer round swept for an escrow application.
type SyncCursor struct {
	ApplicationID uint64    `json:"application_id"`
	Round         uint64    `json:"round"`
	UpdatedAt     time.Time `json:"updated_at"`
}
