package syncer

import (
	"context"
	"time"

	"carsync/models"
)

// StagingWriter is the slice of the store the upserter needs.
type StagingWriter interface {
	UpsertStagingBatch(ctx context.Context, records []*models.CachedCarRecord) (int, error)
}

// BatchUpserter writes records in micro-batches to bound payload size and
// peak memory. A failed micro-batch is counted and skipped; the remaining
// batches still run.
type BatchUpserter struct {
	store     StagingWriter
	batchSize int
	pause     time.Duration
	metrics   *Metrics
	logf      func(format string, args ...interface{})
}

func NewBatchUpserter(store StagingWriter, batchSize int, pause time.Duration, metrics *Metrics, logf func(string, ...interface{})) *BatchUpserter {
	if batchSize < 1 {
		batchSize = 50
	}
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &BatchUpserter{
		store:     store,
		batchSize: batchSize,
		pause:     pause,
		metrics:   metrics,
		logf:      logf,
	}
}

// Upsert writes all records and returns (succeeded, failed) row counts.
// Replaying the same input is safe: the conflict key is the record id.
func (u *BatchUpserter) Upsert(ctx context.Context, records []*models.CachedCarRecord) (int, int) {
	success, failed := 0, 0

	for start := 0; start < len(records); start += u.batchSize {
		end := start + u.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		written, err := u.store.UpsertStagingBatch(ctx, batch)
		success += written
		failed += len(batch) - written
		if err != nil {
			u.metrics.AddDBError()
			u.logf("micro-batch of %d failed: %v", len(batch), err)
		}

		// Let the pool breathe between batches
		if end < len(records) && u.pause > 0 {
			select {
			case <-ctx.Done():
				failed += len(records) - end
				return success, failed
			case <-time.After(u.pause):
			}
		}
	}

	u.metrics.AddRowsUpserted(success)
	return success, failed
}
