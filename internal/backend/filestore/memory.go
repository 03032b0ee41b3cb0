package filestore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps files in a map. Used in tests and as a scratch store.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string][]byte)}
}

func (s *MemoryStore) Write(ctx context.Context, location string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[location] = buf
	return nil
}

func (s *MemoryStore) Read(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[location]
	if !ok {
		return nil, fmt.Errorf("no file at %s", location)
	}
	return data, nil
}

func (s *MemoryStore) Delete(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, location)
	return nil
}

// Len reports the number of stored files.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Locations returns the stored location keys.
func (s *MemoryStore) Locations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	locations := make([]string, 0, len(s.files))
	for location := range s.files {
		locations = append(locations, location)
	}
	return locations
}
