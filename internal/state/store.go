package state

import (
	"fmt"
	"log/slog"
	"strconv"

	"updatr/internal/logging"
)

// Store binds a loaded File to its path. The pipeline goroutine is its only
// user during a run, so it carries no lock.
type Store struct {
	path   string
	file   *File
	logger *slog.Logger
}

// Open loads the state file at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	file, err := Load(path)
	if err != nil {
		return nil, err
	}
	logger = logging.NewComponentLogger(logger, "state")
	logger.Debug("state loaded",
		logging.String("path", path),
		logging.Int("items", len(file.Items)),
		logging.Int("version", file.Version))
	return &Store{path: path, file: file, logger: logger}, nil
}

// Path returns the on-disk location of the store.
func (s *Store) Path() string { return s.path }

// Get returns the record for a catalog item.
func (s *Store) Get(id int64) (ItemState, bool) {
	return s.file.Get(Key(id))
}

// Put upserts the record for a catalog item in memory.
func (s *Store) Put(id int64, item ItemState) {
	s.file.Put(Key(id), item)
}

// Delete removes the record for a catalog item. Reports whether one existed.
func (s *Store) Delete(id int64) bool {
	key := Key(id)
	if _, ok := s.file.Items[key]; !ok {
		return false
	}
	delete(s.file.Items, key)
	return true
}

// Save persists the store.
func (s *Store) Save() error {
	if err := Save(s.path, s.file); err != nil {
		return fmt.Errorf("save state %s: %w", s.path, err)
	}
	return nil
}

// Entry pairs a state key with its record.
type Entry struct {
	ID    string
	State ItemState
}

// Items returns every record ordered by id.
func (s *Store) Items() []Entry {
	ids := s.file.IDs()
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, Entry{ID: id, State: s.file.Items[id]})
	}
	return out
}

// File exposes the underlying document for read-only reporting.
func (s *Store) File() *File { return s.file }

// Key renders a catalog id as the stable string key used in the state file.
func Key(id int64) string {
	return strconv.FormatInt(id, 10)
}
