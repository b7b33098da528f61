package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/felixgeelhaar/capboard/internal/errors"
)

// Persisted key names. A stored session is exactly these four entries.
const (
	KeyToken     = "token"
	KeyUserEmail = "user_email"
	KeyUserRole  = "user_role"
	KeyUserName  = "user_name"
)

// Record is the persisted form of a session.
type Record struct {
	Token     string `json:"token,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
	UserRole  string `json:"user_role,omitempty"`
	UserName  string `json:"user_name,omitempty"`
}

// Complete reports whether the record can restore a session. The display
// name is optional.
func (r Record) Complete() bool {
	return r.Token != "" && r.UserEmail != "" && r.UserRole != ""
}

// Empty reports whether no key is set.
func (r Record) Empty() bool {
	return r == Record{}
}

// Store persists the session between runs.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the stored record, or a zero Record when nothing is
	// stored.
	Load(ctx context.Context) (Record, error)

	// Save replaces the stored record.
	Save(ctx context.Context, r Record) error

	// Clear removes every key. Clearing an empty store is not an error.
	Clear(ctx context.Context) error
}

// MemoryStore keeps the record in memory. Used by tests and --ephemeral runs.
type MemoryStore struct {
	mu  sync.Mutex
	rec Record
}

// NewMemoryStore returns an empty store, optionally seeded.
func NewMemoryStore(seed ...Record) *MemoryStore {
	s := &MemoryStore{}
	if len(seed) > 0 {
		s.rec = seed[0]
	}
	return s
}

func (m *MemoryStore) Load(context.Context) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec, nil
}

func (m *MemoryStore) Save(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = r
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = Record{}
	return nil
}

// FileStore keeps the record in a JSON file readable only by the owner.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file and its directory
// are created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load(context.Context) (Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, errors.NewFileReadError(f.path, err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, errors.NewFileUnmarshalError(f.path, "JSON", err)
	}
	return r, nil
}

// Save writes to a temporary file and renames it over the old one, so a
// reader never sees half a session.
func (f *FileStore) Save(_ context.Context, r Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.NewFileWriteError(f.path, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.NewFileWriteError(f.path, err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.json")
	if err != nil {
		return errors.NewFileWriteError(f.path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.NewFileWriteError(f.path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.NewFileWriteError(f.path, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewFileWriteError(f.path, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return errors.NewFileWriteError(f.path, err)
	}
	return nil
}

func (f *FileStore) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errors.NewFileWriteError(f.path, err)
	}
	return nil
}
