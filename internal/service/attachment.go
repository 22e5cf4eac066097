package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/model"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/repository"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/storage"
)

var (
	ErrNotFound   = errors.New("attachment not found")
	ErrReaderNil  = errors.New("reader is nil")
	ErrBadRequest = errors.New("tenant, user and message ids are required")
)

// UploadInput carries everything the mail-send path knows about an attachment
// at upload time.
type UploadInput struct {
	TenantID     string
	UserID       string
	MessageID    string
	OriginalName string
	ContentType  string
	Size         int64
}

// AttachmentService defines the use cases for handling mail attachments.
type AttachmentService interface {
	// Upload stores the content in the object store, saves the tracking row,
	// and rolls back storage if the row insert fails. The returned attachment
	// carries the opaque download identifier handed to recipients.
	Upload(ctx context.Context, r io.Reader, in UploadInput) (*model.Attachment, error)

	// DownloadURL returns a presigned download URL for the attachment behind
	// the public download identifier. ttl <= 0 or above the default is clamped
	// to the 24h default.
	DownloadURL(ctx context.Context, downloadID string, ttl time.Duration) (string, error)

	// TrackedDownload records a download event, bumps the counters and returns
	// the presigned URL to redirect to.
	TrackedDownload(ctx context.Context, downloadID, clientIP, userAgent string) (string, error)

	// TrackOpen records one open-pixel hit for a message.
	TrackOpen(ctx context.Context, messageID, clientIP string) error

	// Delete removes the object and its registry row. Either side may already
	// be gone; removing a half-present attachment still succeeds.
	Delete(ctx context.Context, storageKey string) error
}

type attachmentService struct {
	store    storage.Storage
	registry repository.AttachmentRepository
	tracking repository.TrackingRepository
}

// NewAttachmentService constructs a new AttachmentService.
func NewAttachmentService(store storage.Storage, registry repository.AttachmentRepository, tracking repository.TrackingRepository) AttachmentService {
	return &attachmentService{store: store, registry: registry, tracking: tracking}
}

func (s *attachmentService) Upload(ctx context.Context, r io.Reader, in UploadInput) (*model.Attachment, error) {
	if r == nil {
		return nil, ErrReaderNil
	}
	if in.TenantID == "" || in.UserID == "" || in.MessageID == "" {
		return nil, ErrBadRequest
	}

	now := time.Now().UTC()
	key := storage.GeneratePath(in.TenantID, in.UserID, in.OriginalName, now)

	contentType := in.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(in.OriginalName))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objInfo, err := s.store.Put(ctx, key, r, storage.PutObjectOptions{
		Size:        in.Size,
		ContentType: contentType,
		Metadata: storage.UploadMetadata{
			OriginalName: in.OriginalName,
			UploadedBy:   in.UserID,
			TenantID:     in.TenantID,
			MessageID:    in.MessageID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}

	att := &model.Attachment{
		ID:           uuid.New().String(),
		MessageID:    in.MessageID,
		OriginalName: in.OriginalName,
		StorageKey:   objInfo.Key,
		DownloadID:   uuid.New().String(),
		Size:         objInfo.Size,
		ContentType:  contentType,
		CreatedAt:    now,
	}
	stored, err := s.registry.Create(ctx, att)
	if err != nil {
		// Rollback: delete the object from storage
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			return nil, fmt.Errorf("registry save failed: %v; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("registry save failed: %w", err)
	}
	return stored, nil
}

func (s *attachmentService) DownloadURL(ctx context.Context, downloadID string, ttl time.Duration) (string, error) {
	att, err := s.findByDownloadID(ctx, downloadID)
	if err != nil {
		return "", err
	}
	if ttl <= 0 || ttl > storage.DefaultDownloadTTL {
		ttl = storage.DefaultDownloadTTL
	}
	return s.store.PresignDownload(ctx, att.StorageKey, att.OriginalName, ttl)
}

func (s *attachmentService) TrackedDownload(ctx context.Context, downloadID, clientIP, userAgent string) (string, error) {
	att, err := s.findByDownloadID(ctx, downloadID)
	if err != nil {
		return "", err
	}

	url, err := s.store.PresignDownload(ctx, att.StorageKey, att.OriginalName, storage.DefaultDownloadTTL)
	if err != nil {
		return "", err
	}

	// Tracking is best-effort: a failed event write must not block the
	// recipient's download.
	now := time.Now().UTC()
	ev := &model.DownloadEvent{
		ID:         uuid.New().String(),
		DownloadID: downloadID,
		ClientIP:   clientIP,
		UserAgent:  userAgent,
		CreatedAt:  now,
	}
	if err := s.tracking.RecordDownload(ctx, ev); err != nil {
		logEvent("download_event_write_failed", map[string]any{"download_id": downloadID, "error": err.Error()})
	}
	if err := s.registry.MarkDownloaded(ctx, downloadID, now); err != nil {
		logEvent("mark_downloaded_failed", map[string]any{"download_id": downloadID, "error": err.Error()})
	}
	return url, nil
}

func (s *attachmentService) TrackOpen(ctx context.Context, messageID, clientIP string) error {
	if messageID == "" {
		return ErrBadRequest
	}
	return s.tracking.RecordOpen(ctx, &model.OpenEvent{
		ID:        uuid.New().String(),
		MessageID: messageID,
		ClientIP:  clientIP,
		CreatedAt: time.Now().UTC(),
	})
}

// Delete removes the object first, then the registry row. A crash in between
// leaves a row pointing at nothing, which the orphan sweep repairs; the
// opposite order would strand an unfindable object.
func (s *attachmentService) Delete(ctx context.Context, storageKey string) error {
	if storageKey == "" {
		return ErrBadRequest
	}
	if err := s.store.Delete(ctx, storageKey); err != nil {
		return fmt.Errorf("delete storage object: %w", err)
	}
	return s.registry.DeleteByStorageKey(ctx, storageKey)
}

var logEncoder = json.NewEncoder(os.Stdout)

func logEvent(event string, fields map[string]any) {
	entry := map[string]any{
		"component": "service",
		"event":     event,
		"ts":        time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range fields {
		entry[k] = v
	}
	_ = logEncoder.Encode(entry)
}

func (s *attachmentService) findByDownloadID(ctx context.Context, downloadID string) (*model.Attachment, error) {
	if downloadID == "" {
		return nil, ErrNotFound
	}
	att, err := s.registry.FindByDownloadID(ctx, downloadID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return att, nil
}
