package server

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// State, yerel sunucunun çalışmalar arası kalıcı kaydıdır.
// Her çalıştırmada sıfırdan kurulmaz; dosyadan okunup süreç problanarak
// yeniden bağlanılır.
type State struct {
	Port              int        `json:"port"`
	PID               int        `json:"pid"`
	LastUploadTime    *time.Time `json:"last_upload_time,omitempty"`
	LatestUploadedRef string     `json:"latest_uploaded_ref,omitempty"`
	LastUploadID      string     `json:"last_upload_id,omitempty"`
}

// Store manages reading/writing the state file.
// It uses a Mutex for thread-safety.
type Store struct {
	Path string
	mu   sync.Mutex
}

func NewStore(stateDir string) *Store {
	return &Store{Path: filepath.Join(stateDir, "state.json")}
}

// Load reads the state file. A missing file yields an empty state, not an
// error; first runs start from nothing.
func (s *Store) Load() (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, err
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Save writes the state atomically (temp file + rename) so a crashed run
// never leaves a half-written record behind.
func (s *Store) Save(st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.Path)
}

// Update loads, mutates and saves the state in one step.
func (s *Store) Update(fn func(*State)) error {
	st, err := s.Load()
	if err != nil {
		return err
	}
	fn(st)
	return s.Save(st)
}
