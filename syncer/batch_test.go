package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"carsync/models"
)

type fakeStagingWriter struct {
	batches [][]string
	failOn  string
}

func (f *fakeStagingWriter) UpsertStagingBatch(_ context.Context, records []*models.CachedCarRecord) (int, error) {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	f.batches = append(f.batches, ids)

	for _, id := range ids {
		if id == f.failOn {
			return 0, errors.New("simulated batch failure")
		}
	}
	return len(records), nil
}

func carRecords(ids ...string) []*models.CachedCarRecord {
	recs := make([]*models.CachedCarRecord, len(ids))
	for i, id := range ids {
		recs[i] = &models.CachedCarRecord{ID: id}
	}
	return recs
}

func TestBatchUpserter_SplitsIntoMicroBatches(t *testing.T) {
	store := &fakeStagingWriter{}
	m := NewMetrics(time.Now())
	up := NewBatchUpserter(store, 2, 0, m, nil)

	success, failed := up.Upsert(context.Background(), carRecords("a", "b", "c", "d", "e"))
	if success != 5 || failed != 0 {
		t.Fatalf("expected 5/0, got %d/%d", success, failed)
	}

	if len(store.batches) != 3 {
		t.Fatalf("expected 3 micro-batches, got %d", len(store.batches))
	}
	if len(store.batches[0]) != 2 || len(store.batches[1]) != 2 || len(store.batches[2]) != 1 {
		t.Fatalf("unexpected batch sizes: %v", store.batches)
	}
}

func TestBatchUpserter_FailedBatchIsIsolated(t *testing.T) {
	store := &fakeStagingWriter{failOn: "c"}
	m := NewMetrics(time.Now())
	up := NewBatchUpserter(store, 2, 0, m, nil)

	success, failed := up.Upsert(context.Background(), carRecords("a", "b", "c", "d", "e"))
	if success != 3 {
		t.Fatalf("expected 3 succeeded, got %d", success)
	}
	if failed != 2 {
		t.Fatalf("expected 2 failed, got %d", failed)
	}
	// All three batches were still attempted
	if len(store.batches) != 3 {
		t.Fatalf("expected all 3 micro-batches attempted, got %d", len(store.batches))
	}

	snap := m.Snapshot(time.Now())
	if snap.DBErrors != 1 {
		t.Fatalf("expected 1 db error counted, got %d", snap.DBErrors)
	}
	if snap.RowsUpserted != 3 {
		t.Fatalf("expected 3 rows upserted in metrics, got %d", snap.RowsUpserted)
	}
}

func TestBatchUpserter_EmptyInput(t *testing.T) {
	store := &fakeStagingWriter{}
	up := NewBatchUpserter(store, 50, 0, NewMetrics(time.Now()), nil)

	success, failed := up.Upsert(context.Background(), nil)
	if success != 0 || failed != 0 {
		t.Fatalf("expected 0/0 for empty input, got %d/%d", success, failed)
	}
	if len(store.batches) != 0 {
		t.Fatalf("expected no batches for empty input, got %d", len(store.batches))
	}
}
