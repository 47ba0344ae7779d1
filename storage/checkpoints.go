package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"carsync/models"
)

// CheckpointStore persists sync progress locally in SQLite. It lives next to
// the binary so progress survives restarts even when Postgres is unreachable.
type CheckpointStore struct {
	db *sql.DB
}

func NewCheckpointStore(dbPath string) (*CheckpointStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &CheckpointStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *CheckpointStore) Close() error {
	return s.db.Close()
}

func (s *CheckpointStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_checkpoints (
		source TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		last_page INTEGER NOT NULL,
		total_processed INTEGER NOT NULL,
		start_time DATETIME NOT NULL,
		last_update_time DATETIME NOT NULL
	);`

	_, err := s.db.Exec(schema)
	return err
}

// Save upserts the checkpoint row for a source. One row per source: a new
// run simply overwrites the previous run's progress.
func (s *CheckpointStore) Save(source string, cp *models.SyncCheckpoint) error {
	query := `
		INSERT INTO sync_checkpoints (source, run_id, last_page, total_processed, start_time, last_update_time)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET
			run_id = excluded.run_id,
			last_page = excluded.last_page,
			total_processed = excluded.total_processed,
			start_time = excluded.start_time,
			last_update_time = excluded.last_update_time`

	_, err := s.db.Exec(query,
		source, cp.RunID.String(), cp.LastPage, cp.TotalProcessed,
		cp.StartTime.UTC(), cp.LastUpdateTime.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Load returns the checkpoint for a source, or nil when none exists.
func (s *CheckpointStore) Load(source string) (*models.SyncCheckpoint, error) {
	query := `
		SELECT run_id, last_page, total_processed, start_time, last_update_time
		FROM sync_checkpoints WHERE source = ?`

	var runID string
	var cp models.SyncCheckpoint
	err := s.db.QueryRow(query, source).Scan(
		&runID, &cp.LastPage, &cp.TotalProcessed, &cp.StartTime, &cp.LastUpdateTime,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(runID)
	if err != nil {
		// Corrupt row, treat as no checkpoint
		return nil, nil
	}
	cp.RunID = parsed

	return &cp, nil
}

// Clear removes the checkpoint for a source after a completed run.
func (s *CheckpointStore) Clear(source string) error {
	_, err := s.db.Exec(`DELETE FROM sync_checkpoints WHERE source = ?`, source)
	return err
}

// Touch bumps last_update_time without changing progress. Used by long
// merge phases so an otherwise fresh checkpoint does not age out.
func (s *CheckpointStore) Touch(source string, now time.Time) error {
	_, err := s.db.Exec(`UPDATE sync_checkpoints SET last_update_time = ? WHERE source = ?`, now.UTC(), source)
	return err
}
