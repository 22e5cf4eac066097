package handler

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/config"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/http/middleware"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/model"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/repository"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/retention"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/service"
	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/storage"
)

// AdminHandler exposes the elevated-privilege control surface: connectivity
// probes, registry-enriched listing, single-object delete, manual cleanup and
// storage analytics. It performs no business logic beyond calling the
// storage, registry and scheduler operations and shaping the response.
type AdminHandler struct {
	store     storage.Storage
	registry  repository.AttachmentRepository
	runs      repository.CleanupRunRepository
	scheduler *retention.Scheduler
	svc       service.AttachmentService
	cfg       config.RetentionConfig
}

// NewAdminHandler wires the admin surface.
func NewAdminHandler(
	store storage.Storage,
	registry repository.AttachmentRepository,
	runs repository.CleanupRunRepository,
	scheduler *retention.Scheduler,
	svc service.AttachmentService,
	cfg config.RetentionConfig,
) *AdminHandler {
	return &AdminHandler{
		store:     store,
		registry:  registry,
		runs:      runs,
		scheduler: scheduler,
		svc:       svc,
		cfg:       cfg,
	}
}

// RegisterAdminRoutes attaches the admin surface under /admin, guarded by the
// shared-token middleware.
func RegisterAdminRoutes(app *fiber.App, h *AdminHandler, adminToken string) {
	grp := app.Group("/admin", middleware.AdminAuth(adminToken))

	grp.Get("/status", h.Status)
	grp.Post("/test-connection", h.TestConnection)
	grp.Get("/files", h.ListFiles)
	grp.Get("/files/+", h.FileInfo)
	grp.Delete("/files/+", h.DeleteFile)
	grp.Post("/cleanup", h.Cleanup)
	grp.Get("/cleanup-stats", h.CleanupStats)
	grp.Get("/storage-analytics", h.StorageAnalytics)
}

// fileEntry is one row of the enriched file listing.
type fileEntry struct {
	Key          string            `json:"key"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"content_type,omitempty"`
	LastModified time.Time         `json:"last_modified"`
	Attachment   *model.Attachment `json:"attachment,omitempty"`
}

// Status reports backend connectivity, scheduler state and usage aggregates
// in one call.
func (h *AdminHandler) Status(c *fiber.Ctx) error {
	ctx := c.UserContext()

	connected := h.store.TestConnection(ctx)

	analytics, err := h.registry.Analytics(ctx, h.wastedHorizon(), 10)
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}

	return c.JSON(fiber.Map{
		"storage_connected": connected,
		"cleanup_running":   h.scheduler.Running(),
		"last_cleanup":      h.scheduler.LastRun(),
		"analytics":         analytics,
	})
}

// TestConnection performs a synchronous connectivity probe.
func (h *AdminHandler) TestConnection(c *fiber.Ctx) error {
	ok := h.store.TestConnection(c.UserContext())
	status := fiber.StatusOK
	if !ok {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"connected": ok})
}

// ListFiles enumerates objects under a prefix, enriched with registry rows.
// Query parameters: prefix, limit, page, older_than_days. Pages are windows
// of limit objects in listing order; the age filter applies within a page.
func (h *AdminHandler) ListFiles(c *fiber.Ctx) error {
	ctx := c.UserContext()

	prefix := c.Query("prefix", storage.KeyPrefix+"/")
	limit, err := strconv.Atoi(c.Query("limit", "100"))
	if err != nil || limit <= 0 {
		return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
	}
	page, err := strconv.Atoi(c.Query("page", "0"))
	if err != nil || page < 0 {
		return writeError(c, fiber.StatusBadRequest, "INVALID_PAGE", "invalid page")
	}

	var cutoff time.Time
	if raw := c.Query("older_than_days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 0 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_AGE", "invalid older_than_days")
		}
		cutoff = time.Now().AddDate(0, 0, -days)
	}

	objects, err := h.store.List(ctx, prefix, limit*(page+1))
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, "STORAGE_ERROR", "cannot list storage objects")
	}

	// Window for the requested page; earlier pages were already served.
	offset := page * limit
	if offset > len(objects) {
		offset = len(objects)
	}
	window := objects[offset:]

	keys := make([]string, 0, len(window))
	filtered := make([]storage.ObjectInfo, 0, len(window))
	for _, obj := range window {
		if !cutoff.IsZero() && !obj.LastModified.Before(cutoff) {
			continue
		}
		filtered = append(filtered, obj)
		keys = append(keys, obj.Key)
	}

	rows, err := h.registry.FindByStorageKeys(ctx, keys)
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}

	entries := make([]fileEntry, 0, len(filtered))
	for _, obj := range filtered {
		e := fileEntry{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified}
		if att, ok := rows[obj.Key]; ok {
			a := att
			e.Attachment = &a
		}
		entries = append(entries, e)
	}

	return c.JSON(fiber.Map{"files": entries, "count": len(entries), "page": page})
}

// FileInfo returns backend metadata for one object together with its
// registry row, if one exists. A key with no object behind it is a 404 even
// when a stale registry row still points at it.
func (h *AdminHandler) FileInfo(c *fiber.Ctx) error {
	ctx := c.UserContext()

	key := c.Params("+")
	if key == "" {
		return writeError(c, fiber.StatusBadRequest, "KEY_REQUIRED", "storage key is required")
	}

	info, err := h.store.Stat(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return writeError(c, fiber.StatusNotFound, "OBJECT_NOT_FOUND", "no object under this key")
		}
		return writeError(c, fiber.StatusInternalServerError, "STORAGE_ERROR", "cannot stat storage object")
	}

	entry := fileEntry{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		LastModified: info.LastModified,
	}
	att, err := h.registry.FindByStorageKey(ctx, key)
	switch {
	case err == nil:
		entry.Attachment = att
	case errors.Is(err, sql.ErrNoRows):
		// Object without a row; still reportable.
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}

	return c.JSON(entry)
}

// DeleteFile removes one object and its registry row. The wildcard parameter
// carries the full storage key. Succeeds even if only one side exists.
func (h *AdminHandler) DeleteFile(c *fiber.Ctx) error {
	key := c.Params("+")
	if key == "" {
		return writeError(c, fiber.StatusBadRequest, "KEY_REQUIRED", "storage key is required")
	}
	if err := h.svc.Delete(c.UserContext(), key); err != nil {
		return writeError(c, fiber.StatusInternalServerError, "STORAGE_ERROR", "cannot delete object")
	}
	return c.JSON(fiber.Map{"deleted": key})
}

// Cleanup triggers a manual retention pass with optional threshold overrides.
// A pass already in progress yields a busy-conflict response.
func (h *AdminHandler) Cleanup(c *fiber.Ctx) error {
	var opts retention.Options
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&opts); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid cleanup options")
		}
	}

	res, err := h.scheduler.Run(c.UserContext(), opts)
	if err != nil {
		if errors.Is(err, retention.ErrCleanupRunning) {
			return writeError(c, fiber.StatusConflict, "CLEANUP_RUNNING", "a cleanup pass is already running")
		}
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
	return c.JSON(res)
}

// CleanupStats returns the CleanupRun history for the last N days (default 30).
func (h *AdminHandler) CleanupStats(c *fiber.Ctx) error {
	days, err := strconv.Atoi(c.Query("days", "30"))
	if err != nil || days <= 0 {
		return writeError(c, fiber.StatusBadRequest, "INVALID_DAYS", "invalid days")
	}

	runs, err := h.runs.ListSince(c.UserContext(), time.Now().AddDate(0, 0, -days))
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
	return c.JSON(fiber.Map{"runs": runs, "count": len(runs)})
}

// StorageAnalytics returns usage aggregates and the top-N largest objects.
func (h *AdminHandler) StorageAnalytics(c *fiber.Ctx) error {
	topN, err := strconv.Atoi(c.Query("top", "10"))
	if err != nil || topN <= 0 {
		return writeError(c, fiber.StatusBadRequest, "INVALID_TOP", "invalid top")
	}

	analytics, err := h.registry.Analytics(c.UserContext(), h.wastedHorizon(), topN)
	if err != nil {
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
	return c.JSON(analytics)
}

// wastedHorizon is the age past which a never-downloaded attachment counts as
// wasted storage. It reuses the object retention threshold.
func (h *AdminHandler) wastedHorizon() time.Time {
	return time.Now().AddDate(0, 0, -h.cfg.ObjectMaxAgeDays)
}
