package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"updatr/internal/fileutil"
)

// CurrentVersion is the state file format written by this build.
const CurrentVersion = 1

// ErrCorrupt marks a state file that exists but cannot be decoded.
var ErrCorrupt = errors.New("state file corrupt")

// Status is the persisted processing status of one item.
type Status string

const (
	StatusStarted         Status = "started"
	StatusDone            Status = "done"
	StatusEmbeddedOnly    Status = "embedded_only"
	StatusSkipped         Status = "skipped"
	StatusFailed          Status = "failed"
	StatusFailedPermanent Status = "failed_permanent"

	// legacySkipped is the skip status written by older releases.
	legacySkipped Status = "skipped_good_enough"
)

// Resting reports whether a later run may treat the item as already handled.
func (s Status) Resting() bool {
	switch s {
	case StatusDone, StatusSkipped, StatusEmbeddedOnly, StatusFailedPermanent:
		return true
	default:
		return false
	}
}

// ItemState is the record kept for one catalog item.
type ItemState struct {
	Status          Status     `json:"status"`
	LastFingerprint string     `json:"last_hash"`
	LastAttempt     time.Time  `json:"last_attempt_utc"`
	LastSuccess     *time.Time `json:"last_ok_utc,omitempty"`
	Message         string     `json:"message,omitempty"`
	FailCount       int        `json:"fail_count"`
}

// File is the durable container written to disk.
type File struct {
	Version   int                  `json:"version"`
	UpdatedAt *time.Time           `json:"updated_at_utc,omitempty"`
	Items     map[string]ItemState `json:"books"`
}

// NewFile returns an empty store at the current version.
func NewFile() *File {
	return &File{Version: CurrentVersion, Items: make(map[string]ItemState)}
}

// Get returns the record for id, if any.
func (f *File) Get(id string) (ItemState, bool) {
	s, ok := f.Items[id]
	return s, ok
}

// Put upserts the record for id in memory.
func (f *File) Put(id string, s ItemState) {
	if f.Items == nil {
		f.Items = make(map[string]ItemState)
	}
	f.Items[id] = s
}

// IDs returns the item ids in the store in sorted order.
func (f *File) IDs() []string {
	ids := make([]string, 0, len(f.Items))
	for id := range f.Items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Load reads the state file at path. A missing file yields an empty version 1
// store; a file that cannot be decoded returns an error wrapping ErrCorrupt.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewFile(), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, path, err)
	}
	if file.Version < 0 || file.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", ErrCorrupt, path, file.Version)
	}
	if file.Version == 0 {
		file.Version = CurrentVersion
	}
	if file.Items == nil {
		file.Items = make(map[string]ItemState)
	}
	for id, item := range file.Items {
		if item.Status == legacySkipped {
			item.Status = StatusSkipped
			file.Items[id] = item
		}
	}
	return &file, nil
}

// Save stamps UpdatedAt and writes the store to path atomically.
func Save(path string, file *File) error {
	if file == nil {
		return errors.New("state file is nil")
	}
	now := time.Now().UTC()
	file.UpdatedAt = &now
	if file.Version == 0 {
		file.Version = CurrentVersion
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}
