package outbox

import (
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrConfigurationMissing = errors.New("remote credentials not configured")
	ErrExtractionTimeout    = errors.New("page extraction timed out")
	ErrDuplicate            = errors.New("url already saved or pending")
	ErrNotImplemented       = errors.New("not implemented")
)

// Intent is one pending "save page" request. Immutable once enqueued;
// it leaves the queue either when a drain confirms the remote write or
// when the user cancels it. Identity for removal is URL plus the
// enqueue timestamp, so a cancel-then-recapture of the same URL cannot
// be confused with the original entry.
type Intent struct {
	Title      string `json:"title"`
	URL        string `json:"url"`
	Summary    string `json:"summaryText"`
	CreatedAt  int64  `json:"createdAtEpochSeconds"`
	EnqueuedAt int64  `json:"enqueuedAtEpochMillis"`
}

func (i Intent) sameIdentity(other Intent) bool {
	return i.URL == other.URL && i.EnqueuedAt == other.EnqueuedAt
}

// QueueStore persists the full ordered intent sequence as one blob.
// Load must return the freshest persisted sequence; Save must replace
// it atomically.
type QueueStore interface {
	Load() ([]Intent, error)
	Save(intents []Intent) error
	Close() error
}

// Outbox is the durable FIFO of pending save-intents. Every mutation
// re-reads the persisted sequence, applies the change, and writes the
// whole sequence back while holding the mutation lock, so concurrent
// mutators can never clobber each other's appends.
type Outbox struct {
	mu    sync.Mutex
	store QueueStore
}

func NewOutbox(store QueueStore) (*Outbox, error) {
	if store == nil {
		return nil, ErrInvalidInput
	}
	return &Outbox{store: store}, nil
}

// Enqueue appends the intent, stamping the enqueue time. It never
// blocks on remote work; draining is the engine's job.
func (o *Outbox) Enqueue(intent Intent) (Intent, error) {
	if strings.TrimSpace(intent.URL) == "" {
		return Intent{}, ErrInvalidInput
	}
	if intent.CreatedAt == 0 {
		intent.CreatedAt = time.Now().Unix()
	}
	if intent.EnqueuedAt == 0 {
		intent.EnqueuedAt = time.Now().UnixMilli()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	intents, err := o.store.Load()
	if err != nil {
		return Intent{}, err
	}
	intents = append(intents, intent)
	if err := o.store.Save(intents); err != nil {
		return Intent{}, err
	}
	return intent, nil
}

// PeekHead returns the current head without removing it.
func (o *Outbox) PeekHead() (Intent, bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	intents, err := o.store.Load()
	if err != nil {
		return Intent{}, false, err
	}
	if len(intents) == 0 {
		return Intent{}, false, nil
	}
	return intents[0], true, nil
}

// RemoveHead pops the head, but only if it still matches the intent
// the drain step processed. A cancel that raced the drain leaves a
// different head; in that case nothing is removed.
func (o *Outbox) RemoveHead(match Intent) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	intents, err := o.store.Load()
	if err != nil {
		return false, err
	}
	if len(intents) == 0 || !intents[0].sameIdentity(match) {
		return false, nil
	}
	if err := o.store.Save(intents[1:]); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveByURL removes the first entry with the URL regardless of
// position. This is the only interior mutation the queue allows; the
// relative order of all other entries is preserved.
func (o *Outbox) RemoveByURL(url string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	intents, err := o.store.Load()
	if err != nil {
		return false, err
	}
	for i, intent := range intents {
		if intent.URL == url {
			next := make([]Intent, 0, len(intents)-1)
			next = append(next, intents[:i]...)
			next = append(next, intents[i+1:]...)
			if err := o.store.Save(next); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

func (o *Outbox) Len() (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	intents, err := o.store.Load()
	if err != nil {
		return 0, err
	}
	return len(intents), nil
}

// Snapshot returns a copy of the current sequence, head first.
func (o *Outbox) Snapshot() ([]Intent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	intents, err := o.store.Load()
	if err != nil {
		return nil, err
	}
	return append([]Intent(nil), intents...), nil
}

// ContainsURL reports whether any pending intent carries the URL.
func (o *Outbox) ContainsURL(url string) (bool, error) {
	intents, err := o.Snapshot()
	if err != nil {
		return false, err
	}
	for _, intent := range intents {
		if intent.URL == url {
			return true, nil
		}
	}
	return false, nil
}

// MemoryQueueStore keeps the sequence in memory. Used by tests and the
// memory:// queue DSN.
type MemoryQueueStore struct {
	mu      sync.Mutex
	intents []Intent
}

func NewMemoryQueueStore() *MemoryQueueStore {
	return &MemoryQueueStore{}
}

func (s *MemoryQueueStore) Load() ([]Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Intent(nil), s.intents...), nil
}

func (s *MemoryQueueStore) Save(intents []Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intents = append([]Intent(nil), intents...)
	return nil
}

func (s *MemoryQueueStore) Close() error {
	return nil
}
