package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/config"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/http/middleware"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/model"
	repomocks "github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/repository/mocks"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/retention"
	svcmocks "github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/service/mocks"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/storage"
	storagemocks "github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/storage/mocks"
)

const testAdminToken = "test-admin-token"

type adminFixture struct {
	app       *fiber.App
	store     *storagemocks.MockStorage
	registry  *repomocks.MockAttachmentRepository
	tracking  *repomocks.MockTrackingRepository
	runs      *repomocks.MockCleanupRunRepository
	svc       *svcmocks.MockAttachmentService
	scheduler *retention.Scheduler
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()

	f := &adminFixture{
		store:    new(storagemocks.MockStorage),
		registry: new(repomocks.MockAttachmentRepository),
		tracking: new(repomocks.MockTrackingRepository),
		runs:     new(repomocks.MockCleanupRunRepository),
		svc:      new(svcmocks.MockAttachmentService),
	}

	cfg := config.RetentionConfig{
		ObjectMaxAgeDays:      365,
		CacheMaxAgeDays:       365,
		OrphanGraceDays:       180,
		DownloadLogMaxAgeDays: 1095,
		OpenLogMaxAgeDays:     1095,
		CacheDir:              t.TempDir(),
	}

	metrics, err := retention.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	f.scheduler = retention.NewScheduler(f.store, f.registry, f.tracking, f.runs, cfg, metrics)

	f.app = fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	h := NewAdminHandler(f.store, f.registry, f.runs, f.scheduler, f.svc, cfg)
	RegisterAdminRoutes(f.app, h, testAdminToken)
	return f
}

func TestAdminAuth(t *testing.T) {
	f := newAdminFixture(t)

	t.Run("missing token", func(t *testing.T) {
		resp, err := f.app.Test(httptest.NewRequest("GET", "/admin/storage-analytics", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/admin/storage-analytics", nil)
		req.Header.Set(middleware.AdminTokenHeader, "guess")
		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("surface disabled without configured token", func(t *testing.T) {
		app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
		h := NewAdminHandler(f.store, f.registry, f.runs, nil, f.svc, config.RetentionConfig{})
		RegisterAdminRoutes(app, h, "")

		req := httptest.NewRequest("GET", "/admin/storage-analytics", nil)
		req.Header.Set(middleware.AdminTokenHeader, "anything")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})
}

func TestAdminStatus(t *testing.T) {
	f := newAdminFixture(t)

	f.store.On("TestConnection", mock.Anything).Return(true)
	f.registry.On("Analytics", mock.Anything, mock.Anything, 10).
		Return(&model.StorageAnalytics{TotalAttachments: 42, TotalBytes: 1 << 20}, nil)

	req := httptest.NewRequest("GET", "/admin/status", nil)
	req.Header.Set(middleware.AdminTokenHeader, testAdminToken)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got struct {
		StorageConnected bool                    `json:"storage_connected"`
		CleanupRunning   bool                    `json:"cleanup_running"`
		Analytics        *model.StorageAnalytics `json:"analytics"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.True(t, got.StorageConnected)
	assert.False(t, got.CleanupRunning)
	require.NotNil(t, got.Analytics)
	assert.EqualValues(t, 42, got.Analytics.TotalAttachments)
}

func TestAdminTestConnection(t *testing.T) {
	t.Run("reachable", func(t *testing.T) {
		f := newAdminFixture(t)
		f.store.On("TestConnection", mock.Anything).Return(true)

		req := httptest.NewRequest("POST", "/admin/test-connection", nil)
		req.Header.Set(middleware.AdminTokenHeader, testAdminToken)
		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("unreachable", func(t *testing.T) {
		f := newAdminFixture(t)
		f.store.On("TestConnection", mock.Anything).Return(false)

		req := httptest.NewRequest("POST", "/admin/test-connection", nil)
		req.Header.Set(middleware.AdminTokenHeader, testAdminToken)
		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestAdminListFiles(t *testing.T) {
	f := newAdminFixture(t)

	now := time.Now()
	objects := []storage.ObjectInfo{
		{Key: "mail-attachments/7/3/2025/01/15/a.pdf", Size: 100, LastModified: now.AddDate(0, 0, -400)},
		{Key: "mail-attachments/7/3/2025/06/01/b.pdf", Size: 200, LastModified: now.AddDate(0, 0, -10)},
	}
	f.store.On("List", mock.Anything, "mail-attachments/", 100).Return(objects, nil)

	// only the old object survives the older_than_days filter
	f.registry.On("FindByStorageKeys", mock.Anything, []string{objects[0].Key}).
		Return(map[string]model.Attachment{
			objects[0].Key: {ID: "a1", StorageKey: objects[0].Key, OriginalName: "a.pdf"},
		}, nil)

	req := httptest.NewRequest("GET", "/admin/files?older_than_days=100", nil)
	req.Header.Set(middleware.AdminTokenHeader, testAdminToken)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got struct {
		Files []fileEntry `json:"files"`
		Count int         `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, 1, got.Count)
	assert.Equal(t, objects[0].Key, got.Files[0].Key)
	require.NotNil(t, got.Files[0].Attachment)
	assert.Equal(t, "a.pdf", got.Files[0].Attachment.OriginalName)

	f.store.AssertExpectations(t)
	f.registry.AssertExpectations(t)
}

func TestAdminListFiles_Pagination(t *testing.T) {
	f := newAdminFixture(t)

	now := time.Now()
	objects := []storage.ObjectInfo{
		{Key: "mail-attachments/7/3/2025/01/01/a.pdf", Size: 1, LastModified: now.AddDate(0, 0, -5)},
		{Key: "mail-attachments/7/3/2025/01/02/b.pdf", Size: 2, LastModified: now.AddDate(0, 0, -4)},
		{Key: "mail-attachments/7/3/2025/01/03/c.pdf", Size: 3, LastModified: now.AddDate(0, 0, -3)},
		{Key: "mail-attachments/7/3/2025/01/04/d.pdf", Size: 4, LastModified: now.AddDate(0, 0, -2)},
	}
	// page 1 with limit 2 asks the store for the first two pages worth.
	f.store.On("List", mock.Anything, "mail-attachments/", 4).Return(objects, nil)
	f.registry.On("FindByStorageKeys", mock.Anything, []string{objects[2].Key, objects[3].Key}).
		Return(map[string]model.Attachment{}, nil)

	req := httptest.NewRequest("GET", "/admin/files?limit=2&page=1", nil)
	req.Header.Set(middleware.AdminTokenHeader, testAdminToken)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got struct {
		Files []fileEntry `json:"files"`
		Count int         `json:"count"`
		Page  int         `json:"page"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 1, got.Page)
	require.Equal(t, 2, got.Count)
	assert.Equal(t, objects[2].Key, got.Files[0].Key)
	assert.Equal(t, objects[3].Key, got.Files[1].Key)

	t.Run("page past the end is empty", func(t *testing.T) {
		f.store.On("List", mock.Anything, "mail-attachments/", 6).
			Return(objects, nil)
		f.registry.On("FindByStorageKeys", mock.Anything, []string{}).
			Return(map[string]model.Attachment{}, nil)

		req := httptest.NewRequest("GET", "/admin/files?limit=2&page=2", nil)
		req.Header.Set(middleware.AdminTokenHeader, testAdminToken)
		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		var got struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, 0, got.Count)
	})

	t.Run("negative page is rejected", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/admin/files?limit=2&page=-1", nil)
		req.Header.Set(middleware.AdminTokenHeader, testAdminToken)
		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	f.store.AssertExpectations(t)
}

func TestAdminFileInfo(t *testing.T) {
	key := "mail-attachments/7/3/2025/01/15/a.pdf"

	t.Run("object with registry row", func(t *testing.T) {
		f := newAdminFixture(t)

		f.store.On("Stat", mock.Anything, key).Return(&storage.ObjectInfo{
			Key:          key,
			Size:         2048,
			ContentType:  "application/pdf",
			LastModified: time.Now().AddDate(0, 0, -1),
		}, nil)
		f.registry.On("FindByStorageKey", mock.Anything, key).
			Return(&model.Attachment{ID: "a1", StorageKey: key, OriginalName: "a.pdf"}, nil)

		req := httptest.NewRequest("GET", "/admin/files/"+key, nil)
		req.Header.Set(middleware.AdminTokenHeader, testAdminToken)
		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		var got fileEntry
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, key, got.Key)
		assert.EqualValues(t, 2048, got.Size)
		assert.Equal(t, "application/pdf", got.ContentType)
		require.NotNil(t, got.Attachment)
		assert.Equal(t, "a.pdf", got.Attachment.OriginalName)
	})

	t.Run("object without registry row", func(t *testing.T) {
		f := newAdminFixture(t)

		f.store.On("Stat", mock.Anything, key).Return(&storage.ObjectInfo{Key: key, Size: 1}, nil)
		f.registry.On("FindByStorageKey", mock.Anything, key).Return(nil, sql.ErrNoRows)

		req := httptest.NewRequest("GET", "/admin/files/"+key, nil)
		req.Header.Set(middleware.AdminTokenHeader, testAdminToken)
		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		var got fileEntry
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Nil(t, got.Attachment)
	})

	t.Run("missing object is 404", func(t *testing.T) {
		f := newAdminFixture(t)

		f.store.On("Stat", mock.Anything, key).Return(nil, storage.ErrObjectNotFound)

		req := httptest.NewRequest("GET", "/admin/files/"+key, nil)
		req.Header.Set(middleware.AdminTokenHeader, testAdminToken)
		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

		var got errorPayload
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, "OBJECT_NOT_FOUND", got.Error.Code)
		f.registry.AssertNotCalled(t, "FindByStorageKey")
	})
}

func TestAdminDeleteFile(t *testing.T) {
	f := newAdminFixture(t)

	key := "mail-attachments/7/3/2025/01/15/a.pdf"
	f.svc.On("Delete", mock.Anything, key).Return(nil)

	req := httptest.NewRequest("DELETE", "/admin/files/"+key, nil)
	req.Header.Set(middleware.AdminTokenHeader, testAdminToken)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	f.svc.AssertExpectations(t)
}

func TestAdminCleanup(t *testing.T) {
	t.Run("manual pass with overrides", func(t *testing.T) {
		f := newAdminFixture(t)

		f.tracking.On("DeleteDownloadEventsBefore", mock.Anything, mock.Anything).Return(int64(7), nil)
		f.tracking.On("DeleteOpenEventsBefore", mock.Anything, mock.Anything).Return(int64(3), nil)
		f.runs.On("Create", mock.Anything, mock.Anything).Return(nil)

		body := bytes.NewBufferString(`{"sweeps":8,"download_log_days_old":30}`)
		req := httptest.NewRequest("POST", "/admin/cleanup", body)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.AdminTokenHeader, testAdminToken)

		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		var got retention.Result
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.EqualValues(t, 7, got.DownloadEventsDeleted)
		assert.EqualValues(t, 3, got.OpenEventsDeleted)
		f.tracking.AssertExpectations(t)
	})

	t.Run("busy conflict", func(t *testing.T) {
		f := newAdminFixture(t)

		started := make(chan struct{})
		release := make(chan struct{})
		f.store.On("List", mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) {
				close(started)
				<-release
			}).
			Return([]storage.ObjectInfo{}, nil)
		f.runs.On("Create", mock.Anything, mock.Anything).Return(nil)

		go func() {
			_, _ = f.scheduler.Run(context.Background(), retention.Options{Sweeps: retention.SweepObjects})
		}()
		<-started

		req := httptest.NewRequest("POST", "/admin/cleanup", nil)
		req.Header.Set(middleware.AdminTokenHeader, testAdminToken)
		resp, err := f.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

		var got errorPayload
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, "CLEANUP_RUNNING", got.Error.Code)

		close(release)
	})
}

func TestAdminCleanupStats(t *testing.T) {
	f := newAdminFixture(t)

	runs := []model.CleanupRun{
		{ID: "r1", RanAt: time.Now().AddDate(0, 0, -1), ObjectsDeleted: 12},
	}
	f.runs.On("ListSince", mock.Anything, mock.Anything).Return(runs, nil)

	req := httptest.NewRequest("GET", "/admin/cleanup-stats?days=7", nil)
	req.Header.Set(middleware.AdminTokenHeader, testAdminToken)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got struct {
		Runs  []model.CleanupRun `json:"runs"`
		Count int                `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, 1, got.Count)
	assert.Equal(t, 12, got.Runs[0].ObjectsDeleted)
}

func TestAdminStorageAnalytics(t *testing.T) {
	f := newAdminFixture(t)

	f.registry.On("Analytics", mock.Anything, mock.Anything, 5).
		Return(&model.StorageAnalytics{TotalAttachments: 9}, nil)

	req := httptest.NewRequest("GET", "/admin/storage-analytics?top=5", nil)
	req.Header.Set(middleware.AdminTokenHeader, testAdminToken)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got model.StorageAnalytics
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.EqualValues(t, 9, got.TotalAttachments)
	f.registry.AssertExpectations(t)
}
