package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Package storage contains the S3-compatible object store abstraction used
// for mail attachments. Implementations must rely on streaming I/O only and
// must not embed any retention or tenancy logic beyond the key layout.

// DefaultDownloadTTL is the default lifetime of a presigned download URL.
const DefaultDownloadTTL = 24 * time.Hour

// ErrObjectNotFound is returned by Stat for a key that has no object behind
// it. A missing object is an answer, not a backend failure.
var ErrObjectNotFound = errors.New("object not found")

// WriteError wraps a backend rejection during upload (auth, quota, network).
// Callers must not assume the object exists after receiving one.
type WriteError struct {
	Key string
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("storage write %q: %v", e.Key, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

// ReadError wraps a failure to stat, list, or presign caused by connectivity
// problems or backend rejection.
type ReadError struct {
	Key string
	Err error
}

func (e *ReadError) Error() string { return fmt.Sprintf("storage read %q: %v", e.Key, e.Err) }
func (e *ReadError) Unwrap() error { return e.Err }

// UploadMetadata enumerates the recognized per-object metadata fields.
// Unknown keys cannot slip in or collide with backend-reserved names.
type UploadMetadata struct {
	OriginalName string
	UploadedBy   string
	TenantID     string
	MessageID    string
}

// PutObjectOptions define parameters for uploading objects. Size should be
// the exact number of bytes if known; -1 lets the backend chunk as it sees fit.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    UploadMetadata
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is the object store contract consumed by the attachment service and
// the retention scheduler. It is safe for concurrent use.
type Storage interface {
	// Put uploads an object under the given key. Failures are reported as *WriteError.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Stat returns object metadata, or ErrObjectNotFound for a missing key.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)
	// Delete removes an object by key. Deleting a nonexistent key is not an error.
	Delete(ctx context.Context, key string) error
	// List enumerates up to max objects under the given key prefix.
	// max <= 0 means no limit.
	List(ctx context.Context, prefix string, max int) ([]ObjectInfo, error)
	// PresignDownload returns a time-limited URL that forces a download
	// content-disposition carrying the given filename. expiry <= 0 falls back
	// to DefaultDownloadTTL. Failures are reported as *ReadError.
	PresignDownload(ctx context.Context, key, filename string, expiry time.Duration) (string, error)
	// TestConnection is a lightweight connectivity probe. It never fails hard.
	TestConnection(ctx context.Context) bool
}
