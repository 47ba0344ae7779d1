package syncer

import (
	"time"

	"carsync/models"
)

// CheckpointStore is the durable side of checkpointing. The SQLite store in
// the storage package implements it.
type CheckpointStore interface {
	Save(source string, cp *models.SyncCheckpoint) error
	Load(source string) (*models.SyncCheckpoint, error)
	Clear(source string) error
}

// CheckpointManager decides resume-versus-fresh and absorbs store failures.
// Checkpoint writes are best effort: losing one only costs redundant pages on
// the next resume, because upserts are idempotent. A nil store means every
// run starts fresh.
type CheckpointManager struct {
	store  CheckpointStore
	source string
	logf   func(format string, args ...interface{})
}

func NewCheckpointManager(store CheckpointStore, source string, logf func(string, ...interface{})) *CheckpointManager {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &CheckpointManager{store: store, source: source, logf: logf}
}

// Load returns a resumable checkpoint or nil. Stale checkpoints and store
// read errors both resolve to nil: upstream state drifts too much past the
// max age to trust a partial run, and an unreachable store is not worth
// failing a sync over.
func (m *CheckpointManager) Load(now time.Time) *models.SyncCheckpoint {
	if m.store == nil {
		return nil
	}
	cp, err := m.store.Load(m.source)
	if err != nil {
		m.logf("checkpoint load failed, starting fresh: %v", err)
		return nil
	}
	if cp == nil {
		return nil
	}
	if cp.Stale(now) {
		m.logf("checkpoint from %s is stale, starting fresh", cp.LastUpdateTime.Format(time.RFC3339))
		return nil
	}
	return cp
}

// Save persists progress. Failures are logged and swallowed.
func (m *CheckpointManager) Save(cp *models.SyncCheckpoint) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(m.source, cp); err != nil {
		m.logf("checkpoint save failed (page %d): %v", cp.LastPage, err)
	}
}

// Clear drops the checkpoint after a completed run.
func (m *CheckpointManager) Clear() {
	if m.store == nil {
		return
	}
	if err := m.store.Clear(m.source); err != nil {
		m.logf("checkpoint clear failed: %v", err)
	}
}
