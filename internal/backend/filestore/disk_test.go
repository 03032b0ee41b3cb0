package filestore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDiskStore_RoundTrip(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore error: %v", err)
	}

	payload := []byte("jpeg bytes")
	if err := store.Write(context.Background(), "asset-1.jpg", payload); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	data, err := store.Read(context.Background(), "asset-1.jpg")
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("read back %q, expected %q", data, payload)
	}

	if err := store.Delete(context.Background(), "asset-1.jpg"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := store.Read(context.Background(), "asset-1.jpg"); err == nil {
		t.Errorf("expected read error after delete, got nil")
	}
}

func TestDiskStore_DeleteMissingFile(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore error: %v", err)
	}

	if err := store.Delete(context.Background(), "never-written.jpg"); err != nil {
		t.Errorf("expected missing-file delete to succeed, got %v", err)
	}
}

func TestDiskStore_RejectsInvalidLocations(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskStore(root)
	if err != nil {
		t.Fatalf("NewDiskStore error: %v", err)
	}

	for _, location := range []string{"", "..", "../escape.jpg", "nested/file.jpg", `nested\file.jpg`} {
		if err := store.Write(context.Background(), location, []byte("x")); err == nil {
			t.Errorf("expected write rejection for location %q", location)
		}
		if _, err := store.Read(context.Background(), location); err == nil {
			t.Errorf("expected read rejection for location %q", location)
		}
		if err := store.Delete(context.Background(), location); err == nil {
			t.Errorf("expected delete rejection for location %q", location)
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("failed to list root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty root, found %d entries", len(entries))
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "escape.jpg")); err == nil {
		t.Errorf("file escaped the storage root")
	}
}

func TestDiskStore_CancelledContext(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Write(ctx, "asset-1.jpg", []byte("x")); err == nil {
		t.Errorf("expected error for cancelled context, got nil")
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore()

	payload := []byte("jpeg bytes")
	if err := store.Write(context.Background(), "asset-1.jpg", payload); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	// Mutating the caller's slice must not affect the stored copy.
	payload[0] = 'X'
	data, err := store.Read(context.Background(), "asset-1.jpg")
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if data[0] != 'j' {
		t.Errorf("stored data aliases the caller's buffer")
	}

	if store.Len() != 1 {
		t.Errorf("expected 1 stored file, got %d", store.Len())
	}
	if err := store.Delete(context.Background(), "asset-1.jpg"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("expected empty store after delete, got %d", store.Len())
	}
}
