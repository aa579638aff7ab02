package client

import (
	"os"
	"strings"
	"sync"
)

// Store persists a single session token between process runs. It is a dumb
// durable cell: no validation of the token value happens here.
//
// Implementations must treat an absent token as a normal condition, not an
// error, and must make Clear idempotent.
type Store interface {
	// Load returns the stored token, or "" if none is stored. Absence is
	// not an error; only an unreadable store returns one.
	Load() (string, error)

	// Save overwrites the stored token.
	Save(token string) error

	// Clear removes the stored token. Clearing an empty store is a no-op.
	Clear() error
}

// FileStore caches the session token as a single plain-text value in a
// file. It is the default [Store] used by [Client]; the path is set with
// [WithTokenPath].
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore backed by the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", &StorageError{Op: "load", Path: s.path, Err: err}
	}

	return strings.TrimSpace(string(data)), nil
}

func (s *FileStore) Save(token string) error {
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return &StorageError{Op: "save", Path: s.path, Err: err}
	}
	return nil
}

func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return &StorageError{Op: "clear", Path: s.path, Err: err}
	}
	return nil
}

// MemoryStore keeps the session token in memory only. Use it to disable
// token reuse across process runs.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

func (s *MemoryStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
