package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/model"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/repository"
)

// AttachmentPostgres is a PostgreSQL implementation of
// repository.AttachmentRepository. It uses database/sql with parameterized
// queries and contains no business logic.
type AttachmentPostgres struct {
	db *sql.DB
}

// NewAttachmentPostgres creates a new AttachmentPostgres repository.
func NewAttachmentPostgres(db *sql.DB) *AttachmentPostgres {
	return &AttachmentPostgres{db: db}
}

var _ repository.AttachmentRepository = (*AttachmentPostgres)(nil)

const attachmentColumns = `id, message_id, original_name, storage_key, download_id, size, content_type, downloaded, download_count, first_downloaded_at, created_at`

func scanAttachment(row interface{ Scan(...any) error }) (*model.Attachment, error) {
	var a model.Attachment
	if err := row.Scan(
		&a.ID,
		&a.MessageID,
		&a.OriginalName,
		&a.StorageKey,
		&a.DownloadID,
		&a.Size,
		&a.ContentType,
		&a.Downloaded,
		&a.DownloadCount,
		&a.FirstDownloadedAt,
		&a.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new attachment row and returns the stored record.
func (r *AttachmentPostgres) Create(ctx context.Context, att *model.Attachment) (*model.Attachment, error) {
	q := `
		INSERT INTO mail_attachments (` + attachmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + attachmentColumns
	row := r.db.QueryRowContext(ctx, q,
		att.ID,
		att.MessageID,
		att.OriginalName,
		att.StorageKey,
		att.DownloadID,
		att.Size,
		att.ContentType,
		att.Downloaded,
		att.DownloadCount,
		att.FirstDownloadedAt,
		att.CreatedAt,
	)
	return scanAttachment(row)
}

// FindByStorageKey fetches the attachment referencing the given storage key.
func (r *AttachmentPostgres) FindByStorageKey(ctx context.Context, key string) (*model.Attachment, error) {
	q := `SELECT ` + attachmentColumns + ` FROM mail_attachments WHERE storage_key = $1`
	return scanAttachment(r.db.QueryRowContext(ctx, q, key))
}

// FindByDownloadID fetches the attachment behind a public download identifier.
func (r *AttachmentPostgres) FindByDownloadID(ctx context.Context, downloadID string) (*model.Attachment, error) {
	q := `SELECT ` + attachmentColumns + ` FROM mail_attachments WHERE download_id = $1`
	return scanAttachment(r.db.QueryRowContext(ctx, q, downloadID))
}

// FindByStorageKeys returns attachments for the given keys, indexed by key.
func (r *AttachmentPostgres) FindByStorageKeys(ctx context.Context, keys []string) (map[string]model.Attachment, error) {
	out := make(map[string]model.Attachment, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = k
	}
	q := `SELECT ` + attachmentColumns + ` FROM mail_attachments WHERE storage_key IN (` + strings.Join(placeholders, ", ") + `)`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out[a.StorageKey] = *a
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkDownloaded increments the download counter and stamps the first
// download time once.
func (r *AttachmentPostgres) MarkDownloaded(ctx context.Context, downloadID string, at time.Time) error {
	const q = `
		UPDATE mail_attachments
		SET downloaded = TRUE,
		    download_count = download_count + 1,
		    first_downloaded_at = COALESCE(first_downloaded_at, $2)
		WHERE download_id = $1
	`
	res, err := r.db.ExecContext(ctx, q, downloadID, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindOrphans returns attachments older than the cutoff whose referenced
// sent-message row no longer exists.
func (r *AttachmentPostgres) FindOrphans(ctx context.Context, olderThan time.Time, limit int) ([]model.Attachment, error) {
	const q = `
		SELECT a.id, a.message_id, a.original_name, a.storage_key, a.download_id,
		       a.size, a.content_type, a.downloaded, a.download_count,
		       a.first_downloaded_at, a.created_at
		FROM mail_attachments a
		LEFT JOIN sent_messages m ON m.id = a.message_id
		WHERE m.id IS NULL AND a.created_at < $1
		ORDER BY a.created_at
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, q, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteByStorageKey removes the row referencing the key. A missing row is
// not an error.
func (r *AttachmentPostgres) DeleteByStorageKey(ctx context.Context, key string) error {
	const q = `DELETE FROM mail_attachments WHERE storage_key = $1`
	res, err := r.db.ExecContext(ctx, q, key)
	if err != nil {
		return err
	}
	_, _ = res.RowsAffected()
	return nil
}

// Analytics aggregates counts, bytes, download rate and wasted storage.
func (r *AttachmentPostgres) Analytics(ctx context.Context, wastedBefore time.Time, topN int) (*model.StorageAnalytics, error) {
	var out model.StorageAnalytics

	const qTotals = `
		SELECT COUNT(*),
		       COALESCE(SUM(size), 0),
		       COUNT(*) FILTER (WHERE downloaded)
		FROM mail_attachments
	`
	if err := r.db.QueryRowContext(ctx, qTotals).Scan(&out.TotalAttachments, &out.TotalBytes, &out.DownloadedCount); err != nil {
		return nil, err
	}
	if out.TotalAttachments > 0 {
		out.DownloadRate = float64(out.DownloadedCount) / float64(out.TotalAttachments)
	}

	const qWasted = `
		SELECT COUNT(*), COALESCE(SUM(size), 0)
		FROM mail_attachments
		WHERE NOT downloaded AND created_at < $1
	`
	if err := r.db.QueryRowContext(ctx, qWasted, wastedBefore).Scan(&out.WastedCount, &out.WastedBytes); err != nil {
		return nil, err
	}

	if topN <= 0 {
		topN = 10
	}
	const qLargest = `
		SELECT storage_key, original_name, size
		FROM mail_attachments
		ORDER BY size DESC, storage_key
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, qLargest, topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var l model.LargestObject
		if err := rows.Scan(&l.StorageKey, &l.OriginalName, &l.Size); err != nil {
			return nil, err
		}
		out.Largest = append(out.Largest, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &out, nil
}

// IsNoRows reports whether err means "row not found".
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
