package repository

import (
	"context"
	"time"

	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/model"
)

// AttachmentRepository defines data access for tracked attachments using SQL
// queries only. No business logic here — strictly persistence operations.
type AttachmentRepository interface {
	// Create inserts a new attachment row and returns the stored record.
	Create(ctx context.Context, att *model.Attachment) (*model.Attachment, error)

	// FindByStorageKey returns the attachment referencing the given key.
	FindByStorageKey(ctx context.Context, key string) (*model.Attachment, error)

	// FindByDownloadID returns the attachment behind a public download identifier.
	FindByDownloadID(ctx context.Context, downloadID string) (*model.Attachment, error)

	// FindByStorageKeys returns attachments for the given keys, indexed by key.
	// Keys with no row are simply absent from the map.
	FindByStorageKeys(ctx context.Context, keys []string) (map[string]model.Attachment, error)

	// MarkDownloaded increments the download counter and stamps the first
	// download time if not already set.
	MarkDownloaded(ctx context.Context, downloadID string, at time.Time) error

	// FindOrphans returns attachments older than the cutoff whose referenced
	// message row no longer exists, up to limit rows.
	FindOrphans(ctx context.Context, olderThan time.Time, limit int) ([]model.Attachment, error)

	// DeleteByStorageKey removes the row referencing the key. Deleting a
	// nonexistent row is not an error.
	DeleteByStorageKey(ctx context.Context, key string) error

	// Analytics aggregates usage numbers; wastedBefore is the age horizon
	// past which a never-downloaded attachment counts as wasted storage.
	Analytics(ctx context.Context, wastedBefore time.Time, topN int) (*model.StorageAnalytics, error)
}

// TrackingRepository covers the append-only download/open event logs.
// Events grow without bound and are pruned in bulk by the retention pass.
type TrackingRepository interface {
	RecordDownload(ctx context.Context, ev *model.DownloadEvent) error
	RecordOpen(ctx context.Context, ev *model.OpenEvent) error

	// DeleteDownloadEventsBefore bulk-deletes download events older than the
	// cutoff and returns the number of rows removed.
	DeleteDownloadEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteOpenEventsBefore bulk-deletes open events older than the cutoff.
	DeleteOpenEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupRunRepository persists the append-only audit trail of retention passes.
type CleanupRunRepository interface {
	Create(ctx context.Context, run *model.CleanupRun) error

	// ListSince returns runs newer than the cutoff, most recent first.
	ListSince(ctx context.Context, since time.Time) ([]model.CleanupRun, error)
}
