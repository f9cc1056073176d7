// Package storage provides object storage implementations for audit log
// archival.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryArchiveStore keeps archive batches in memory. Use it for development
// and tests until a real S3-compatible backend is configured.
type MemoryArchiveStore struct {
	// BaseURL is the base URL for generated download URLs
	BaseURL string

	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryArchiveStore creates a new MemoryArchiveStore
func NewMemoryArchiveStore() *MemoryArchiveStore {
	return &MemoryArchiveStore{
		BaseURL: "https://storage.example.com",
		objects: make(map[string][]byte),
	}
}

// ArchiveKey builds the object key for a tenant's archive batch.
func (s *MemoryArchiveStore) ArchiveKey(tenantID uuid.UUID, archivedAt time.Time, batchID uuid.UUID) string {
	return fmt.Sprintf("%s/%s/%s.json", tenantID, archivedAt.UTC().Format("2006/01"), batchID)
}

// StoreArchive keeps a copy of the batch in memory.
func (s *MemoryArchiveStore) StoreArchive(_ context.Context, storageKey string, data []byte) error {
	if storageKey == "" {
		return errors.New("storage key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[storageKey] = stored
	return nil
}

// GenerateDownloadURL generates a stub download URL for an archive batch.
func (s *MemoryArchiveStore) GenerateDownloadURL(
	_ context.Context,
	storageKey string,
	expiresIn time.Duration,
) (string, time.Time, error) {
	if storageKey == "" {
		return "", time.Time{}, errors.New("storage key is required")
	}

	expiresAt := time.Now().Add(expiresIn)
	url := s.BaseURL + "/download/" + storageKey + "?expires=" + expiresAt.Format(time.RFC3339)
	return url, expiresAt, nil
}

// DeleteObject removes an archive batch.
func (s *MemoryArchiveStore) DeleteObject(_ context.Context, storageKey string) error {
	if storageKey == "" {
		return errors.New("storage key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, storageKey)
	return nil
}

// ObjectExists reports whether a batch was stored.
func (s *MemoryArchiveStore) ObjectExists(_ context.Context, storageKey string) (bool, error) {
	if storageKey == "" {
		return false, errors.New("storage key is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[storageKey]
	return ok, nil
}

// Get returns a stored batch. Test helper.
func (s *MemoryArchiveStore) Get(storageKey string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[storageKey]
	return data, ok
}
