// Package filestore provides the file-storage implementations behind the
// ingestion pipeline's FileStore contract: local disk for single-node
// deployments, S3 for object storage, and an in-memory store for tests.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore stores files under a single root directory, one flat file per
// location key.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", root, err)
	}
	return &DiskStore{root: root}, nil
}

// resolve maps a location key onto a path under the root, rejecting keys
// that would escape it.
func (s *DiskStore) resolve(location string) (string, error) {
	if location == "" || strings.Contains(location, "..") || strings.ContainsAny(location, `/\`) {
		return "", fmt.Errorf("invalid storage location %q", location)
	}
	return filepath.Join(s.root, location), nil
}

func (s *DiskStore) Write(ctx context.Context, location string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(location)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", location, err)
	}
	return nil
}

func (s *DiskStore) Read(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(location)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", location, err)
	}
	return data, nil
}

// Delete removes the file; a missing file is not an error so cleanup paths
// can run repeatedly.
func (s *DiskStore) Delete(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(location)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", location, err)
	}
	return nil
}
