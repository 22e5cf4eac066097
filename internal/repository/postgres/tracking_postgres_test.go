package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/model"
)

func TestTrackingPostgres_RecordDownload(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewTrackingPostgres(db)

	ev := &model.DownloadEvent{
		ID:         "ev-1",
		DownloadID: "tok",
		ClientIP:   "10.0.0.1",
		UserAgent:  "curl/8",
		CreatedAt:  time.Now(),
	}
	mock.ExpectExec("INSERT INTO download_events").
		WithArgs(ev.ID, ev.DownloadID, ev.ClientIP, ev.UserAgent, ev.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.RecordDownload(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackingPostgres_RecordOpen(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewTrackingPostgres(db)

	ev := &model.OpenEvent{ID: "ev-2", MessageID: "msg-1", ClientIP: "10.0.0.2", CreatedAt: time.Now()}
	mock.ExpectExec("INSERT INTO open_events").
		WithArgs(ev.ID, ev.MessageID, ev.ClientIP, ev.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.RecordOpen(context.Background(), ev))
}

func TestTrackingPostgres_BulkDeletes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewTrackingPostgres(db)
	cutoff := time.Now().AddDate(-3, 0, 0)

	mock.ExpectExec("DELETE FROM download_events WHERE created_at < ?").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 42))
	mock.ExpectExec("DELETE FROM open_events WHERE created_at < ?").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteDownloadEventsBefore(context.Background(), cutoff)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), n)

	n, err = repo.DeleteOpenEventsBefore(context.Background(), cutoff)
	assert.NoError(t, err)
	assert.Equal(t, int64(7), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupRunPostgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewCleanupRunPostgres(db)
	ctx := context.Background()

	run := &model.CleanupRun{
		ID:                "run-1",
		RanAt:             time.Now().UTC(),
		ObjectsDeleted:    3,
		CacheFilesDeleted: 1,
		OrphanRowsDeleted: 2,
		TrackingDeleted:   49,
		DurationMS:        120,
	}
	mock.ExpectExec("INSERT INTO cleanup_runs").
		WithArgs(run.ID, run.RanAt, run.ObjectsDeleted, run.CacheFilesDeleted,
			run.OrphanRowsDeleted, run.TrackingDeleted, run.DurationMS).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Create(ctx, run))

	since := time.Now().AddDate(0, 0, -30)
	rows := sqlmock.NewRows([]string{"id", "ran_at", "objects_deleted", "cache_files_deleted", "orphan_rows_deleted", "tracking_deleted", "duration_ms"}).
		AddRow(run.ID, run.RanAt, run.ObjectsDeleted, run.CacheFilesDeleted, run.OrphanRowsDeleted, run.TrackingDeleted, run.DurationMS)
	mock.ExpectQuery("SELECT (.+) FROM cleanup_runs").
		WithArgs(since).
		WillReturnRows(rows)

	got, err := repo.ListSince(ctx, since)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 3, got[0].ObjectsDeleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
