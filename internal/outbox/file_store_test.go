package outbox

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox.json")

	store, err := NewFileQueueStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ob, _ := NewOutbox(store)
	if _, err := ob.Enqueue(Intent{Title: "A", URL: "https://a.example"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := ob.Enqueue(Intent{Title: "B", URL: "https://b.example"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewFileQueueStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	intents, err := reopened.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(intents) != 2 || intents[0].URL != "https://a.example" || intents[1].URL != "https://b.example" {
		t.Fatalf("persisted sequence mismatch: %+v", intents)
	}
}

func TestFileStoreMissingFileIsEmptyQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox.json")
	store, err := NewFileQueueStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	intents, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(intents) != 0 {
		t.Fatalf("expected empty queue, got %+v", intents)
	}
}

func TestFileStoreSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "outbox.json")
	store, err := NewFileQueueStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if err := store.Save([]Intent{{URL: "https://a.example"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("blob not written: %v", err)
	}
}
