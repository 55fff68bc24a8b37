package filesystem

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"version-registry/bundles"
)

const uploadsDir = ".uploads"

// FilesystemStore implements the bundle store using simple filesystem
// storage under a base directory. Multipart uploads are buffered as part
// files and assembled on completion.
type FilesystemStore struct {
	baseDir string
}

// New creates a new filesystem-based bundle store
func New(baseDir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FilesystemStore{baseDir: baseDir}, nil
}

// bundlePath resolves a key below the base directory. Keys carry
// caller-supplied segments, so a resolved path that escapes the base is
// rejected.
func (s *FilesystemStore) bundlePath(key string) (string, error) {
	target := filepath.Join(s.baseDir, filepath.FromSlash(key))

	rel, err := filepath.Rel(s.baseDir, target)
	if err != nil || rel == "." || rel == ".." ||
		strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("bundle key %q escapes the storage directory", key)
	}

	return target, nil
}

func (s *FilesystemStore) uploadDir(uploadID string) string {
	return filepath.Join(s.baseDir, uploadsDir, uploadID)
}

// StoreBundle writes bundle content under the given key
func (s *FilesystemStore) StoreBundle(
	_ context.Context,
	key string,
	content io.Reader,
) error {
	target, err := s.bundlePath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create bundle directory: %w", err)
	}

	file, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create bundle file: %w", err)
	}

	if _, err := io.Copy(file, content); err != nil {
		_ = file.Close()

		return fmt.Errorf("failed to write bundle content: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close bundle file: %w", err)
	}

	return nil
}

// GetBundle opens a bundle by key and returns its reader and size
func (s *FilesystemStore) GetBundle(
	_ context.Context,
	key string,
) (io.ReadCloser, int64, error) {
	path, err := s.bundlePath(key)
	if err != nil {
		return nil, 0, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, bundles.ErrBundleNotFound
		}

		return nil, 0, fmt.Errorf("failed to open bundle: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()

		return nil, 0, fmt.Errorf("failed to stat bundle: %w", err)
	}

	return file, info.Size(), nil
}

// DeleteBundle removes a bundle by key
func (s *FilesystemStore) DeleteBundle(_ context.Context, key string) error {
	path, err := s.bundlePath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return bundles.ErrBundleNotFound
		}

		return fmt.Errorf("failed to delete bundle: %w", err)
	}

	return nil
}

// CreateUpload starts a multipart upload for the given key
func (s *FilesystemStore) CreateUpload(
	_ context.Context,
	key string,
) (string, error) {
	uploadID := uuid.NewString()

	dir := s.uploadDir(uploadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	// Remember the target key so completion does not trust the caller
	// blindly.
	if err := os.WriteFile(filepath.Join(dir, "key"), []byte(key), 0o644); err != nil {
		return "", fmt.Errorf("failed to record upload key: %w", err)
	}

	return uploadID, nil
}

// UploadPart buffers one part of a multipart upload as a part file
func (s *FilesystemStore) UploadPart(
	_ context.Context,
	key, uploadID string,
	partNumber int32,
	body io.Reader,
) (bundles.Part, error) {
	if err := s.checkUpload(key, uploadID); err != nil {
		return bundles.Part{}, err
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return bundles.Part{}, fmt.Errorf("failed to read part content: %w", err)
	}

	partPath := filepath.Join(
		s.uploadDir(uploadID),
		"part-"+strconv.Itoa(int(partNumber)),
	)
	if err := os.WriteFile(partPath, data, 0o644); err != nil {
		return bundles.Part{}, fmt.Errorf("failed to write part file: %w", err)
	}

	h := sha256.Sum256(data)

	return bundles.Part{
		Number: partNumber,
		ETag:   hex.EncodeToString(h[:]),
	}, nil
}

// CompleteUpload concatenates the buffered parts in part-number order into
// the final bundle and discards the upload
func (s *FilesystemStore) CompleteUpload(
	ctx context.Context,
	key, uploadID string,
	parts []bundles.Part,
) (string, error) {
	if err := s.checkUpload(key, uploadID); err != nil {
		return "", err
	}

	sorted := make([]bundles.Part, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Number < sorted[j].Number
	})

	hash := sha256.New()
	var assembled []byte
	for _, part := range sorted {
		partPath := filepath.Join(
			s.uploadDir(uploadID),
			"part-"+strconv.Itoa(int(part.Number)),
		)
		data, err := os.ReadFile(partPath)
		if err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf(
					"%w: part %d was never uploaded",
					bundles.ErrUploadNotFound,
					part.Number,
				)
			}

			return "", fmt.Errorf("failed to read part file: %w", err)
		}
		hash.Write(data)
		assembled = append(assembled, data...)
	}

	if err := s.StoreBundle(ctx, key, bytes.NewReader(assembled)); err != nil {
		return "", err
	}

	if err := os.RemoveAll(s.uploadDir(uploadID)); err != nil {
		return "", fmt.Errorf("failed to clean up upload directory: %w", err)
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// AbortUpload discards a multipart upload and its buffered parts
func (s *FilesystemStore) AbortUpload(
	_ context.Context,
	key, uploadID string,
) error {
	if err := s.checkUpload(key, uploadID); err != nil {
		return err
	}

	if err := os.RemoveAll(s.uploadDir(uploadID)); err != nil {
		return fmt.Errorf("failed to remove upload directory: %w", err)
	}

	return nil
}

func (s *FilesystemStore) checkUpload(key, uploadID string) error {
	recorded, err := os.ReadFile(filepath.Join(s.uploadDir(uploadID), "key"))
	if err != nil {
		if os.IsNotExist(err) {
			return bundles.ErrUploadNotFound
		}

		return fmt.Errorf("failed to read upload key: %w", err)
	}

	if string(recorded) != key {
		return bundles.ErrUploadNotFound
	}

	return nil
}
