package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/config"
)

// minioStorage implements the Storage interface using an S3-compatible
// backend (MinIO, AWS S3, etc.). It is safe for concurrent use by multiple
// goroutines.
type minioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinIO creates a new S3-compatible storage client backed by MinIO.
// It validates connectivity and ensures the bucket exists (creates it if missing).
func NewMinIO(cfg config.StorageConfig) (Storage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("storage credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
		// Storage round-trips show up as spans next to the SQL ones.
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ms := &minioStorage{client: cli, bucket: cfg.Bucket}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Ensure bucket exists.
	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return ms, nil
}

// userMetadata flattens the typed metadata struct into the header map the
// backend stores. Empty fields are omitted.
func userMetadata(m UploadMetadata) map[string]string {
	out := make(map[string]string, 4)
	if m.OriginalName != "" {
		out["original-name"] = m.OriginalName
	}
	if m.UploadedBy != "" {
		out["uploaded-by"] = m.UploadedBy
	}
	if m.TenantID != "" {
		out["tenant-id"] = m.TenantID
	}
	if m.MessageID != "" {
		out["message-id"] = m.MessageID
	}
	return out
}

// Put uploads an object using streaming I/O only (no local disk).
func (m *minioStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	putOpts := minio.PutObjectOptions{
		ContentType:  opt.ContentType,
		UserMetadata: userMetadata(opt.Metadata),
	}
	info, err := m.client.PutObject(ctx, m.bucket, key, r, opt.Size, putOpts)
	if err != nil {
		return ObjectInfo{}, &WriteError{Key: key, Err: err}
	}
	return ObjectInfo{
		Key:          key,
		Size:         info.Size,
		ETag:         info.ETag,
		ContentType:  opt.ContentType,
		LastModified: time.Now(), // MinIO PutObjectInfo doesn't return LastModified
		Metadata:     putOpts.UserMetadata,
	}, nil
}

// statError translates a backend stat failure: a missing key becomes the
// ErrObjectNotFound sentinel, anything else a ReadError.
func statError(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == 404 {
		return ErrObjectNotFound
	}
	return &ReadError{Key: key, Err: err}
}

// Stat returns object metadata, or ErrObjectNotFound if no object exists
// under the key.
func (m *minioStorage) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	st, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, statError(key, err)
	}
	return &ObjectInfo{
		Key:          key,
		Size:         st.Size,
		ETag:         st.ETag,
		ContentType:  st.ContentType,
		LastModified: st.LastModified,
		Metadata:     st.UserMetadata,
	}, nil
}

// Delete removes an object by key. S3 delete is idempotent: removing a key
// that is already gone succeeds.
func (m *minioStorage) Delete(ctx context.Context, key string) error {
	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}

// List enumerates objects under the prefix, up to max entries.
func (m *minioStorage) List(ctx context.Context, prefix string, max int) ([]ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	var out []ObjectInfo
	for obj := range m.client.ListObjects(ctx, m.bucket, opts) {
		if obj.Err != nil {
			return nil, &ReadError{Key: prefix, Err: obj.Err}
		}
		out = append(out, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			ETag:         obj.ETag,
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
		})
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out, nil
}

// PresignDownload generates a pre-signed GET URL that forces a download
// disposition with the given filename.
func (m *minioStorage) PresignDownload(ctx context.Context, key, filename string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = DefaultDownloadTTL
	}
	params := make(url.Values)
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, expiry, params)
	if err != nil {
		return "", &ReadError{Key: key, Err: err}
	}
	return u.String(), nil
}

// TestConnection probes the backend by listing a single object. Any failure
// is reported as false, never an error.
func (m *minioStorage) TestConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ch := m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: KeyPrefix, MaxKeys: 1})
	obj, ok := <-ch
	if !ok {
		// Empty bucket counts as reachable.
		return true
	}
	return obj.Err == nil
}
