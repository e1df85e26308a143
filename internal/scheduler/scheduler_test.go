package scheduler

import (
	"path/filepath"
	"testing"

	"github.com/arung-agamani/scarchive-go/internal/config"
	"github.com/arung-agamani/scarchive-go/internal/store"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	dir := t.TempDir()
	trackStore, err := store.LoadOrCreateTrackStore(filepath.Join(dir, "tracks.json"))
	if err != nil {
		t.Fatal(err)
	}
	accountStore, err := store.LoadOrCreateAccountStore(filepath.Join(dir, "accounts.json"))
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{SaveEveryTicks: 10, SaveEveryTracks: 5}
	return &Scheduler{
		cfg:          cfg,
		trackStore:   trackStore,
		accountStore: accountStore,
	}
}

func TestMaybeSaveResetsBothCountersTogether(t *testing.T) {
	s := newTestScheduler(t)
	s.dirty = true
	s.pendingNewTracks = 5
	s.tickCounter = 3

	s.maybeSave()

	if s.dirty {
		t.Error("expected dirty to be reset")
	}
	if s.pendingNewTracks != 0 {
		t.Errorf("expected pendingNewTracks reset to 0, got %d", s.pendingNewTracks)
	}
	if s.tickCounter != 0 {
		t.Errorf("expected tickCounter reset to 0, got %d", s.tickCounter)
	}
}

func TestMaybeSaveNoOpBelowThresholds(t *testing.T) {
	s := newTestScheduler(t)
	s.dirty = true
	s.pendingNewTracks = 2
	s.tickCounter = 1

	s.maybeSave()

	if !s.dirty || s.pendingNewTracks != 2 || s.tickCounter != 1 {
		t.Fatal("expected no state change below both thresholds")
	}
}

func TestMaybeSaveFiresOnTickCounterAlone(t *testing.T) {
	s := newTestScheduler(t)
	s.dirty = false
	s.pendingNewTracks = 0
	s.tickCounter = 10

	s.maybeSave()

	if s.tickCounter != 0 {
		t.Errorf("expected tickCounter reset once threshold reached, got %d", s.tickCounter)
	}
}
