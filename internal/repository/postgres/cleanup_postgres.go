package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/model"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/repository"
)

// CleanupRunPostgres persists cleanup_runs rows. Rows are inserted once per
// retention pass and never updated.
type CleanupRunPostgres struct {
	db *sql.DB
}

// NewCleanupRunPostgres creates a new CleanupRunPostgres repository.
func NewCleanupRunPostgres(db *sql.DB) *CleanupRunPostgres {
	return &CleanupRunPostgres{db: db}
}

var _ repository.CleanupRunRepository = (*CleanupRunPostgres)(nil)

// Create appends one run-summary row.
func (r *CleanupRunPostgres) Create(ctx context.Context, run *model.CleanupRun) error {
	const q = `
		INSERT INTO cleanup_runs (id, ran_at, objects_deleted, cache_files_deleted, orphan_rows_deleted, tracking_deleted, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, q,
		run.ID,
		run.RanAt,
		run.ObjectsDeleted,
		run.CacheFilesDeleted,
		run.OrphanRowsDeleted,
		run.TrackingDeleted,
		run.DurationMS,
	)
	return err
}

// ListSince returns runs newer than the cutoff, most recent first.
func (r *CleanupRunPostgres) ListSince(ctx context.Context, since time.Time) ([]model.CleanupRun, error) {
	const q = `
		SELECT id, ran_at, objects_deleted, cache_files_deleted, orphan_rows_deleted, tracking_deleted, duration_ms
		FROM cleanup_runs
		WHERE ran_at >= $1
		ORDER BY ran_at DESC
	`
	rows, err := r.db.QueryContext(ctx, q, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.CleanupRun, 0)
	for rows.Next() {
		var run model.CleanupRun
		if err := rows.Scan(
			&run.ID,
			&run.RanAt,
			&run.ObjectsDeleted,
			&run.CacheFilesDeleted,
			&run.OrphanRowsDeleted,
			&run.TrackingDeleted,
			&run.DurationMS,
		); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
