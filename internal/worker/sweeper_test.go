package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicedesk/backend/internal/models"
)

type fakeSweeperStore struct {
	expired []models.Call

	softDeleted   []string
	cleared       []string
	softDeleteErr map[string]error
	clearErr      map[string]error
}

func (f *fakeSweeperStore) ListExpiredCalls(ctx context.Context, cutoff time.Time) ([]models.Call, error) {
	return f.expired, nil
}

func (f *fakeSweeperStore) SoftDeleteCall(ctx context.Context, id string) error {
	if err := f.softDeleteErr[id]; err != nil {
		return err
	}
	f.softDeleted = append(f.softDeleted, id)
	return nil
}

func (f *fakeSweeperStore) ClearAudioPath(ctx context.Context, id string) error {
	if err := f.clearErr[id]; err != nil {
		return err
	}
	f.cleared = append(f.cleared, id)
	return nil
}

type fakeAudioDeleter struct {
	deleted []string
	errFor  map[string]error
}

func (f *fakeAudioDeleter) DeleteFile(callID string) (bool, error) {
	if err := f.errFor[callID]; err != nil {
		return false, err
	}
	f.deleted = append(f.deleted, callID)
	return true, nil
}

func TestSweep_SoftDeletesAndPurges(t *testing.T) {
	store := &fakeSweeperStore{expired: []models.Call{
		{ID: "old-1", AudioPath: "/audio/old-1.wav"},
		{ID: "old-2", AudioPath: "/audio/old-2.mp3"},
	}}
	files := &fakeAudioDeleter{}
	s := &Sweeper{Store: store, Files: files, Logger: zerolog.Nop(), RetentionDays: 30}

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.softDeleted) != 2 || len(files.deleted) != 2 || len(store.cleared) != 2 {
		t.Fatalf("full pass expected: softDeleted=%v deleted=%v cleared=%v",
			store.softDeleted, files.deleted, store.cleared)
	}
}

func TestSweep_SkipsAlreadyDeleted(t *testing.T) {
	// A call whose earlier purge failed: already soft-deleted, audio path set.
	store := &fakeSweeperStore{expired: []models.Call{
		{ID: "old-1", AudioPath: "/audio/old-1.wav", IsDeleted: true},
	}}
	files := &fakeAudioDeleter{}
	s := &Sweeper{Store: store, Files: files, Logger: zerolog.Nop(), RetentionDays: 30}

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(store.softDeleted) != 0 {
		t.Fatalf("already deleted call must not be soft-deleted again: %v", store.softDeleted)
	}
	if len(files.deleted) != 1 || len(store.cleared) != 1 {
		t.Fatalf("purge should still run: deleted=%v cleared=%v", files.deleted, store.cleared)
	}
}

func TestSweep_ContinuesPastPerCallFailures(t *testing.T) {
	store := &fakeSweeperStore{
		expired: []models.Call{
			{ID: "bad-delete", AudioPath: "/audio/a.wav"},
			{ID: "bad-purge", AudioPath: "/audio/b.wav"},
			{ID: "good", AudioPath: "/audio/c.wav"},
		},
		softDeleteErr: map[string]error{"bad-delete": errors.New("db down")},
	}
	files := &fakeAudioDeleter{
		errFor: map[string]error{"bad-purge": errors.New("disk error")},
	}
	s := &Sweeper{Store: store, Files: files, Logger: zerolog.Nop(), RetentionDays: 30}

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	// bad-purge was soft-deleted but keeps its audio path for the next sweep.
	if len(store.softDeleted) != 2 {
		t.Fatalf("softDeleted = %v", store.softDeleted)
	}
	if len(store.cleared) != 1 || store.cleared[0] != "good" {
		t.Fatalf("only the clean call should clear its path: %v", store.cleared)
	}
	if len(files.deleted) != 1 || files.deleted[0] != "good" {
		t.Fatalf("deleted = %v", files.deleted)
	}
}

func TestSweep_NoAudioPath(t *testing.T) {
	store := &fakeSweeperStore{expired: []models.Call{{ID: "purged", IsDeleted: true}}}
	files := &fakeAudioDeleter{}
	s := &Sweeper{Store: store, Files: files, Logger: zerolog.Nop(), RetentionDays: 30}

	if err := s.Sweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(files.deleted) != 0 || len(store.cleared) != 0 {
		t.Fatalf("fully purged call must be left alone: deleted=%v cleared=%v",
			files.deleted, store.cleared)
	}
}
