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

// accountDocument is the on-disk shape: {"users": ["<id>", ...]}. Order is
// preserved since it reads as enrollment order and is convenient when
// eyeballing the file by hand.
type accountDocument struct {
	Users []string `json:"users"`
}

// AccountStore is the ordered, append-only list of watched account ids.
type AccountStore struct {
	mu    sync.Mutex
	path  string
	users []string
	index map[string]bool
}

// LoadOrCreateAccountStore reads the document at path, or starts empty if
// the file does not exist.
func LoadOrCreateAccountStore(path string) (*AccountStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create account store directory %q: %w", dir, err)
	}

	s := &AccountStore{path: path, index: make(map[string]bool)}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read account store %q: %w", path, err)
	}

	var doc accountDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse account store %q: %w", path, err)
	}
	// No de-duplication on load: the on-disk list is trusted as-is, and the
	// auto-enroll diff already guards against re-adding a duplicate going
	// forward via Contains.
	s.users = doc.Users
	for _, id := range doc.Users {
		s.index[id] = true
	}

	slog.Info("Account store loaded", "path", path, "watched_accounts", len(s.users))
	return s, nil
}

// List returns every watched account id, in enrollment order.
func (s *AccountStore) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.users))
	copy(out, s.users)
	return out
}

// Contains reports whether id is already watched.
func (s *AccountStore) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index[id]
}

// Add appends every id not already present and returns the subset newly
// added, preserving input order. It does not persist; call Save afterward.
func (s *AccountStore) Add(ids ...string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added []string
	for _, id := range ids {
		if s.index[id] {
			continue
		}
		s.index[id] = true
		s.users = append(s.users, id)
		added = append(added, id)
	}
	return added
}

// Save persists the current list using the shared backup-and-overwrite
// scheme.
func (s *AccountStore) Save() error {
	s.mu.Lock()
	doc := accountDocument{Users: make([]string, len(s.users))}
	copy(doc.Users, s.users)
	s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal account store: %w", scerrors.ErrPersistenceFailed, err)
	}

	if err := saveWithBackup(s.path, data); err != nil {
		return fmt.Errorf("%w: %w", scerrors.ErrPersistenceFailed, err)
	}

	slog.Info("Account store saved", "path", s.path, "watched_accounts", len(doc.Users))
	return nil
}
