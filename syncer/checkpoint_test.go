package syncer

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"carsync/models"
)

type fakeCheckpointStore struct {
	saved   *models.SyncCheckpoint
	loaded  *models.SyncCheckpoint
	loadErr error
	saveErr error
	cleared bool
}

func (f *fakeCheckpointStore) Save(_ string, cp *models.SyncCheckpoint) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	copied := *cp
	f.saved = &copied
	return nil
}

func (f *fakeCheckpointStore) Load(string) (*models.SyncCheckpoint, error) {
	return f.loaded, f.loadErr
}

func (f *fakeCheckpointStore) Clear(string) error {
	f.cleared = true
	return nil
}

func TestCheckpointManager_FreshCheckpointResumes(t *testing.T) {
	now := time.Now()
	store := &fakeCheckpointStore{
		loaded: &models.SyncCheckpoint{
			RunID:          uuid.New(),
			LastPage:       42,
			TotalProcessed: 1260,
			StartTime:      now.Add(-2 * time.Hour),
			LastUpdateTime: now.Add(-1 * time.Hour),
		},
	}
	m := NewCheckpointManager(store, "auctionapi", nil)

	cp := m.Load(now)
	if cp == nil {
		t.Fatal("expected checkpoint within 24h to be resumable")
	}
	if cp.LastPage != 42 {
		t.Fatalf("expected last page 42, got %d", cp.LastPage)
	}
}

func TestCheckpointManager_StaleCheckpointRejected(t *testing.T) {
	now := time.Now()
	store := &fakeCheckpointStore{
		loaded: &models.SyncCheckpoint{
			RunID:          uuid.New(),
			LastPage:       42,
			LastUpdateTime: now.Add(-25 * time.Hour),
		},
	}
	m := NewCheckpointManager(store, "auctionapi", nil)

	if cp := m.Load(now); cp != nil {
		t.Fatalf("expected stale checkpoint rejected, got %+v", cp)
	}
}

func TestCheckpointManager_UnreachableStoreStartsFresh(t *testing.T) {
	store := &fakeCheckpointStore{loadErr: errors.New("disk gone")}
	m := NewCheckpointManager(store, "auctionapi", nil)

	if cp := m.Load(time.Now()); cp != nil {
		t.Fatal("expected nil checkpoint when store is unreachable")
	}

	// Nil store behaves the same
	nilStore := NewCheckpointManager(nil, "auctionapi", nil)
	if cp := nilStore.Load(time.Now()); cp != nil {
		t.Fatal("expected nil checkpoint with nil store")
	}
}

func TestCheckpointManager_SaveFailureIsSwallowed(t *testing.T) {
	store := &fakeCheckpointStore{saveErr: errors.New("disk full")}
	logged := false
	m := NewCheckpointManager(store, "auctionapi", func(string, ...interface{}) { logged = true })

	m.Save(&models.SyncCheckpoint{RunID: uuid.New(), LastPage: 7})
	if !logged {
		t.Fatal("expected save failure to be logged")
	}
}

func TestCheckpointStaleness(t *testing.T) {
	now := time.Now()

	fresh := &models.SyncCheckpoint{LastUpdateTime: now.Add(-23 * time.Hour)}
	if fresh.Stale(now) {
		t.Fatal("checkpoint within 24h must not be stale")
	}

	old := &models.SyncCheckpoint{LastUpdateTime: now.Add(-24*time.Hour - time.Minute)}
	if !old.Stale(now) {
		t.Fatal("checkpoint older than 24h must be stale")
	}
}
