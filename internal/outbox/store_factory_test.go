package outbox

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestBuildQueueStoreFromDSN(t *testing.T) {
	store, err := BuildQueueStoreFromDSN("memory://")
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := store.(*MemoryQueueStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}

	path := filepath.Join(t.TempDir(), "queue.json")
	store, err = BuildQueueStoreFromDSN("file://" + path)
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if _, ok := store.(*FileQueueStore); !ok {
		t.Fatalf("expected file store, got %T", store)
	}
	store.Close()

	// Bare paths map to the file store.
	store, err = BuildQueueStoreFromDSN(filepath.Join(t.TempDir(), "bare.json"))
	if err != nil {
		t.Fatalf("bare path: %v", err)
	}
	if _, ok := store.(*FileQueueStore); !ok {
		t.Fatalf("expected file store for bare path, got %T", store)
	}
	store.Close()
}

func TestBuildQueueStoreRejectsUnknownScheme(t *testing.T) {
	if _, err := BuildQueueStoreFromDSN("redis://localhost:6379"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
	if _, err := BuildQueueStoreFromDSN("sqlite://queue.db"); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented for sqlite queue store, got %v", err)
	}
	if _, err := BuildQueueStoreFromDSN(""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty DSN, got %v", err)
	}
}
