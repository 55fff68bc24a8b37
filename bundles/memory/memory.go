package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"

	"version-registry/bundles"
)

// MemoryStore implements the bundle store using in-memory storage.
// Used only for testing.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	uploads map[string]*upload
}

type upload struct {
	key   string
	parts map[int32][]byte
}

// New creates a new memory-based bundle store
func New() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
		uploads: make(map[string]*upload),
	}
}

// StoreBundle stores bundle content under the given key
func (s *MemoryStore) StoreBundle(
	_ context.Context,
	key string,
	content io.Reader,
) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("failed to read bundle content: %w", err)
	}

	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()

	return nil
}

// GetBundle retrieves a bundle by key
func (s *MemoryStore) GetBundle(
	_ context.Context,
	key string,
) (io.ReadCloser, int64, error) {
	s.mu.RLock()
	data, exists := s.objects[key]
	s.mu.RUnlock()

	if !exists {
		return nil, 0, bundles.ErrBundleNotFound
	}

	// Return a copy to prevent external modifications
	buf := make([]byte, len(data))
	copy(buf, data)

	return io.NopCloser(bytes.NewReader(buf)), int64(len(buf)), nil
}

// DeleteBundle deletes a bundle by key
func (s *MemoryStore) DeleteBundle(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[key]; !exists {
		return bundles.ErrBundleNotFound
	}

	delete(s.objects, key)

	return nil
}

// CreateUpload starts a multipart upload for the given key
func (s *MemoryStore) CreateUpload(
	_ context.Context,
	key string,
) (string, error) {
	uploadID := uuid.NewString()

	s.mu.Lock()
	s.uploads[uploadID] = &upload{
		key:   key,
		parts: make(map[int32][]byte),
	}
	s.mu.Unlock()

	return uploadID, nil
}

// UploadPart stores one part of a multipart upload
func (s *MemoryStore) UploadPart(
	_ context.Context,
	key, uploadID string,
	partNumber int32,
	body io.Reader,
) (bundles.Part, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return bundles.Part{}, fmt.Errorf("failed to read part content: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	up, exists := s.uploads[uploadID]
	if !exists || up.key != key {
		return bundles.Part{}, bundles.ErrUploadNotFound
	}

	up.parts[partNumber] = data

	return bundles.Part{
		Number: partNumber,
		ETag:   contentETag(data),
	}, nil
}

// CompleteUpload assembles the parts in part-number order and stores the
// result under the upload's key
func (s *MemoryStore) CompleteUpload(
	_ context.Context,
	key, uploadID string,
	parts []bundles.Part,
) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	up, exists := s.uploads[uploadID]
	if !exists || up.key != key {
		return "", bundles.ErrUploadNotFound
	}

	sorted := make([]bundles.Part, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Number < sorted[j].Number
	})

	var assembled []byte
	for _, part := range sorted {
		data, ok := up.parts[part.Number]
		if !ok {
			return "", fmt.Errorf(
				"%w: part %d was never uploaded",
				bundles.ErrUploadNotFound,
				part.Number,
			)
		}
		assembled = append(assembled, data...)
	}

	s.objects[key] = assembled
	delete(s.uploads, uploadID)

	return contentETag(assembled), nil
}

// AbortUpload discards a multipart upload and its parts
func (s *MemoryStore) AbortUpload(
	_ context.Context,
	key, uploadID string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	up, exists := s.uploads[uploadID]
	if !exists || up.key != key {
		return bundles.ErrUploadNotFound
	}

	delete(s.uploads, uploadID)

	return nil
}

// Clear removes all bundles and uploads (useful for testing)
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.objects = make(map[string][]byte)
	s.uploads = make(map[string]*upload)
	s.mu.Unlock()
}

// Count returns the number of stored bundles (useful for testing)
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

func contentETag(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}
