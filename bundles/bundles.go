package bundles

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrBundleNotFound is returned when a bundle is not found
var ErrBundleNotFound = errors.New("bundle not found")

// ErrUploadNotFound is returned when a multipart upload id is unknown
var ErrUploadNotFound = errors.New("upload not found")

// Part identifies one uploaded piece of a multipart upload.
type Part struct {
	Number int32  `json:"partNumber"`
	ETag   string `json:"etag"`
}

// Store is the blob side of the registry: it holds the release zips whose
// metadata lives in the version store. Implementations must support the
// multipart flow used by the upload API; backends without native multipart
// buffer parts until CompleteUpload.
type Store interface {
	StoreBundle(ctx context.Context, key string, content io.Reader) error
	GetBundle(ctx context.Context, key string) (io.ReadCloser, int64, error)
	DeleteBundle(ctx context.Context, key string) error

	CreateUpload(ctx context.Context, key string) (uploadID string, err error)
	UploadPart(
		ctx context.Context,
		key, uploadID string,
		partNumber int32,
		body io.Reader,
	) (Part, error)
	CompleteUpload(
		ctx context.Context,
		key, uploadID string,
		parts []Part,
	) (etag string, err error)
	AbortUpload(ctx context.Context, key, uploadID string) error
}

// Key returns the object key for an app's release zip.
func Key(appName, version, platform string) string {
	return fmt.Sprintf("%s/%s/%s-%s.zip", appName, version, appName, platform)
}

// Filename returns the attachment filename offered on download.
func Filename(appName, platform, version string) string {
	return fmt.Sprintf("%s-%s-%s.zip", appName, platform, version)
}
