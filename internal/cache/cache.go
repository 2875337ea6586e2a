package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/hnrobert/vtlogin/internal/logger"
)

// Package cache persists the last successful login so the front end can
// pre-fill the username and pre-select the environment. Everything here is
// best-effort: a missing, unreadable, or corrupt cache degrades to empty
// defaults and never blocks a login.

// Entry is the persisted record.
type Entry struct {
	UpdatedAt       time.Time `json:"updated_at"`
	LastUsername    string    `json:"last_username"`
	LastEnvironment string    `json:"last_environment"`
}

type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the cached entry. The second return is false when no usable
// entry exists, whatever the reason.
func (s *Store) Load() (Entry, bool) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Cannot read login cache %s: %v", s.path, err)
		}
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		logger.Warn("Ignoring corrupt login cache %s: %v", s.path, err)
		return Entry{}, false
	}
	if e.LastUsername == "" && e.LastEnvironment == "" {
		return Entry{}, false
	}
	return e, true
}

// Store writes the entry atomically (tmp file + rename). Failure is logged
// and swallowed.
func (s *Store) Store(e Entry) {
	e.UpdatedAt = time.Now().UTC()
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		logger.Warn("Cannot encode login cache: %v", err)
		return
	}
	b = append(b, '\n')
	if err := writeFileAtomic(s.path, b, 0600); err != nil {
		logger.Warn("Cannot write login cache %s: %v", s.path, err)
	}
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".vtlogin-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
