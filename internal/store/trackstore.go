// Package store holds the crash-safe on-disk state the archiver needs across
// restarts: the set of known track ids (with optional announce linkage) and
// the watched-account list. Both use the same backup-and-overwrite
// durability primitive (spec.md §4.3): copy the existing file to <path>.bak,
// write the new content directly to <path>, and remove the backup on
// success; on write failure, restore from the backup if present.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/arung-agamani/scarchive-go/internal/scerrors"
)

// AnnounceLink records the destination message linkage for a track that was
// successfully announced.
type AnnounceLink struct {
	MessageID string  `json:"id"`
	ChannelID *string `json:"channel_id"`
	UserID    *string `json:"user_id"`
}

// trackDocument is the on-disk shape: { "tracks": { "<id>": null | {...} } }.
type trackDocument struct {
	Tracks map[string]*AnnounceLink `json:"tracks"`
}

// TrackStore is the crash-safe set of known track ids. All operations are
// safe for concurrent use and internally atomic; AddMany in particular
// performs its own classify-then-mutate step under the store's lock, so
// callers never need to hold it across a call.
type TrackStore struct {
	mu     sync.Mutex
	path   string
	tracks map[string]*AnnounceLink
}

// LoadOrCreateTrackStore reads the document at path, or starts empty if the
// file does not exist.
func LoadOrCreateTrackStore(path string) (*TrackStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %q: %w", dir, err)
	}

	s := &TrackStore{path: path, tracks: make(map[string]*AnnounceLink)}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read track store %q: %w", path, err)
	}

	var doc trackDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse track store %q: %w", path, err)
	}
	if doc.Tracks != nil {
		s.tracks = doc.Tracks
	}

	slog.Info("Track store loaded", "path", path, "known_tracks", len(s.tracks))
	return s, nil
}

// Contains reports whether id is already known.
func (s *TrackStore) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tracks[id]
	return ok
}

// AddMany inserts every id not already present (with no announce link yet)
// and returns the subset that was newly added. It is pure on the in-memory
// side — callers must call Save separately to persist.
func (s *TrackStore) AddMany(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []string
	for _, id := range ids {
		if _, ok := s.tracks[id]; ok {
			continue
		}
		s.tracks[id] = nil
		added = append(added, id)
	}
	return added
}

// Link records the announce-message linkage for an already-known track.
func (s *TrackStore) Link(id string, link AnnounceLink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[id] = &link
}

// ListIDs returns every known track id. The returned slice is a snapshot.
func (s *TrackStore) ListIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.tracks))
	for id := range s.tracks {
		ids = append(ids, id)
	}
	return ids
}

// FindByAnnounce returns the track id linked to the given announce message
// id, if any. Kept per spec.md §4.3 even though no in-core caller beyond
// tests exercises it — the message-ID reverse-lookup utility that uses it
// lives outside this module's scope.
func (s *TrackStore) FindByAnnounce(messageID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, link := range s.tracks {
		if link != nil && link.MessageID == messageID {
			return id, true
		}
	}
	return "", false
}

// Save persists the current in-memory state using the backup-and-overwrite
// scheme described in spec.md §4.3.
func (s *TrackStore) Save() error {
	s.mu.Lock()
	doc := trackDocument{Tracks: make(map[string]*AnnounceLink, len(s.tracks))}
	for id, link := range s.tracks {
		doc.Tracks[id] = link
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal track store: %w", scerrors.ErrPersistenceFailed, err)
	}

	if err := saveWithBackup(s.path, data); err != nil {
		return fmt.Errorf("%w: %w", scerrors.ErrPersistenceFailed, err)
	}

	slog.Info("Track store saved", "path", s.path, "known_tracks", len(doc.Tracks))
	return nil
}

// Shutdown is a final Save.
func (s *TrackStore) Shutdown() error {
	return s.Save()
}

// saveWithBackup implements the shared backup-and-overwrite durability
// primitive: copy the current file to <path>.bak if it exists, write the new
// content directly to <path>, and on success remove the backup; on write
// failure, restore from the backup if present. This tolerates a crash
// between copy and write (recovery uses the backup) but is not atomic
// against power loss — spec.md §4.3 accepts that trade-off explicitly.
func saveWithBackup(path string, data []byte) error {
	backupPath := path + ".bak"

	existing, err := os.ReadFile(path)
	hadExisting := err == nil
	if hadExisting {
		if err := os.WriteFile(backupPath, existing, 0o644); err != nil {
			return fmt.Errorf("failed to write backup %q: %w", backupPath, err)
		}
	}

	writeErr := os.WriteFile(path, data, 0o644)
	if writeErr != nil {
		if hadExisting {
			if restoreErr := os.WriteFile(path, existing, 0o644); restoreErr != nil {
				return fmt.Errorf("write failed (%v) and restore from backup failed: %w", writeErr, restoreErr)
			}
		}
		return fmt.Errorf("failed to write %q: %w", path, writeErr)
	}

	if hadExisting {
		if err := os.Remove(backupPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("Failed to remove backup file after successful save", "path", backupPath, "error", err)
		}
	}

	return nil
}
