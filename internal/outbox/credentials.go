package outbox

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Credentials hold the remote endpoint and its auth token. Both must
// be present before any remote work happens; a daemon without them
// still accepts nothing (captures fail fast with
// ErrConfigurationMissing) but never loses queued intents.
type Credentials struct {
	GatewayURL string `json:"gateway_url"`
	AuthToken  string `json:"auth_token"`
}

func (c Credentials) configured() bool {
	return strings.TrimSpace(c.GatewayURL) != ""
}

// CredentialStore reads credentials from a JSON file and watches it
// for changes so the token can be rotated without restarting the
// daemon.
type CredentialStore struct {
	path string

	mu       sync.Mutex
	creds    Credentials
	ok       bool
	onChange func(Credentials, bool)

	watcher   *fsnotify.Watcher
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewCredentialStore(path string) (*CredentialStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidInput
	}
	s := &CredentialStore{path: path, closed: make(chan struct{})}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the credentials and whether they are usable.
func (s *CredentialStore) Current() (Credentials, bool) {
	if s == nil {
		return Credentials{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds, s.ok
}

// Reload re-reads the file. A missing file is not an error; it just
// means the daemon is unconfigured.
func (s *CredentialStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.update(Credentials{}, false)
			return nil
		}
		return err
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return err
	}
	s.update(creds, creds.configured())
	return nil
}

func (s *CredentialStore) update(creds Credentials, ok bool) {
	s.mu.Lock()
	changed := creds != s.creds || ok != s.ok
	s.creds = creds
	s.ok = ok
	onChange := s.onChange
	s.mu.Unlock()
	if changed && onChange != nil {
		onChange(creds, ok)
	}
}

// Watch starts the fsnotify loop and invokes onChange whenever the
// file's contents produce different credentials. The parent directory
// is watched so editors that replace the file (rename-over) are seen.
func (s *CredentialStore) Watch(onChange func(Credentials, bool)) error {
	if s == nil {
		return ErrInvalidInput
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}
	s.mu.Lock()
	s.onChange = onChange
	s.watcher = watcher
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.closed:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
					continue
				}
				if err := s.Reload(); err != nil {
					log.Printf("credential reload failed: %v", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("credential watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (s *CredentialStore) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		watcher := s.watcher
		s.watcher = nil
		s.mu.Unlock()
		if watcher != nil {
			err = watcher.Close()
		}
		s.wg.Wait()
	})
	return err
}
