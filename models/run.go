package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// SyncRun is the per-run audit record in Postgres. One row per pipeline
// execution, updated in place when the run finishes.
type SyncRun struct {
	ID            int64           `json:"id" db:"id"`
	RunID         uuid.UUID       `json:"run_id" db:"run_id"`
	Source        string          `json:"source" db:"source"`
	StartedAt     time.Time       `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at" db:"finished_at"`
	Status        RunStatus       `json:"status" db:"status"`
	PagesFetched  int             `json:"pages_fetched" db:"pages_fetched"`
	RowsProcessed int             `json:"rows_processed" db:"rows_processed"`
	RowsUpserted  int             `json:"rows_upserted" db:"rows_upserted"`
	RowsDropped   int             `json:"rows_dropped" db:"rows_dropped"`
	APIErrors     int             `json:"api_errors" db:"api_errors"`
	DBErrors      int             `json:"db_errors" db:"db_errors"`
	ErrorMessage  string          `json:"error_message" db:"error_message"`
	Metadata      json.RawMessage `json:"metadata" db:"metadata"`
}
