package outbox

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type fileQueueState struct {
	Intents []Intent `json:"intents"`
}

// FileQueueStore persists the intent sequence as a single JSON blob,
// written atomically via tmp+rename. An advisory lock on a sidecar
// file (unix only) keeps a second daemon on the same machine from
// writing the blob concurrently; within the process the Outbox
// serializes mutations.
type FileQueueStore struct {
	path string

	mu       sync.Mutex
	lockFile *os.File
}

func NewFileQueueStore(path string) (*FileQueueStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	s := &FileQueueStore{path: path}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	lockFile, err := acquireFileLock(path + ".lock")
	if err != nil {
		return nil, err
	}
	s.lockFile = lockFile
	return s, nil
}

func (s *FileQueueStore) Load() ([]Intent, error) {
	if s == nil {
		return nil, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var snapshot fileQueueState
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return snapshot.Intents, nil
}

func (s *FileQueueStore) Save(intents []Intent) error {
	if s == nil {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := fileQueueState{Intents: append([]Intent(nil), intents...)}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileQueueStore) Close() error {
	if s == nil || s.lockFile == nil {
		return nil
	}
	err := releaseFileLock(s.lockFile)
	s.lockFile = nil
	return err
}
