package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/model"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/repository"
)

// TrackingPostgres is a PostgreSQL implementation of
// repository.TrackingRepository. Event tables are append-only; the only
// deletes are the bulk age-based ones issued by the retention pass.
type TrackingPostgres struct {
	db *sql.DB
}

// NewTrackingPostgres creates a new TrackingPostgres repository.
func NewTrackingPostgres(db *sql.DB) *TrackingPostgres {
	return &TrackingPostgres{db: db}
}

var _ repository.TrackingRepository = (*TrackingPostgres)(nil)

// RecordDownload appends one download-attempt event.
func (r *TrackingPostgres) RecordDownload(ctx context.Context, ev *model.DownloadEvent) error {
	const q = `
		INSERT INTO download_events (id, download_id, client_ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, q, ev.ID, ev.DownloadID, ev.ClientIP, ev.UserAgent, ev.CreatedAt)
	return err
}

// RecordOpen appends one open-pixel event.
func (r *TrackingPostgres) RecordOpen(ctx context.Context, ev *model.OpenEvent) error {
	const q = `
		INSERT INTO open_events (id, message_id, client_ip, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, q, ev.ID, ev.MessageID, ev.ClientIP, ev.CreatedAt)
	return err
}

// DeleteDownloadEventsBefore bulk-deletes download events older than cutoff.
func (r *TrackingPostgres) DeleteDownloadEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM download_events WHERE created_at < $1`
	res, err := r.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteOpenEventsBefore bulk-deletes open events older than cutoff.
func (r *TrackingPostgres) DeleteOpenEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM open_events WHERE created_at < $1`
	res, err := r.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
