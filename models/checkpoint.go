package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncCheckpoint is the durable progress marker for a sync run. It is
// written after every successfully processed page so an interrupted run can
// resume from lastPage+1 instead of page 1. Losing one only costs redundant
// work: upserts are idempotent.
type SyncCheckpoint struct {
	RunID          uuid.UUID `json:"run_id" db:"run_id"`
	LastPage       int       `json:"last_page" db:"last_page"`
	TotalProcessed int       `json:"total_processed" db:"total_processed"`
	StartTime      time.Time `json:"start_time" db:"start_time"`
	LastUpdateTime time.Time `json:"last_update_time" db:"last_update_time"`
}

// CheckpointMaxAge is how old a checkpoint may be and still be resumed.
// Upstream listing state drifts too much beyond this to trust a partial run.
const CheckpointMaxAge = 24 * time.Hour

// Stale reports whether the checkpoint is too old to resume at time now.
func (c *SyncCheckpoint) Stale(now time.Time) bool {
	return now.Sub(c.LastUpdateTime) > CheckpointMaxAge
}
