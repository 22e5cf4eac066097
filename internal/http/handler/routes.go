package handler

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/angbrunosa-netizen/opero-gestionale-sub006/internal/service"
)

// openPixel is a 1x1 transparent GIF served by the open-tracking endpoint.
var openPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// RegisterRoutes attaches the public HTTP routes to the provided Fiber app.
// publicBaseURL is used to build the tracking redirect link handed to mail
// recipients.
func RegisterRoutes(app *fiber.App, db *sql.DB, attSvc service.AttachmentService, publicBaseURL string) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	app.Post("/attachments", UploadAttachment(attSvc, publicBaseURL))
	app.Get("/attachments/:download_id/url", AttachmentURL(attSvc))
	app.Get("/d/:download_id", TrackedDownload(attSvc))
	app.Get("/track/open/:message_id", OpenPixel(attSvc))
}

// HealthCheck checks database connectivity only.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a bare liveness endpoint.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// UploadAttachment accepts a multipart upload (field name: file) plus
// tenant_id, user_id and message_id form fields. The response carries the
// stored attachment and the public tracking link.
func UploadAttachment(svc service.AttachmentService, publicBaseURL string) fiber.Handler {
	base := strings.TrimSuffix(publicBaseURL, "/")
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		in := service.UploadInput{
			TenantID:     c.FormValue("tenant_id"),
			UserID:       c.FormValue("user_id"),
			MessageID:    c.FormValue("message_id"),
			OriginalName: fh.Filename,
			ContentType:  fh.Header.Get("Content-Type"),
			Size:         fh.Size,
		}
		if in.TenantID == "" || in.UserID == "" || in.MessageID == "" {
			return writeError(c, fiber.StatusBadRequest, "FIELDS_REQUIRED", "tenant_id, user_id and message_id are required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		att, err := svc.Upload(c.UserContext(), f, in)
		if err != nil {
			if errors.Is(err, service.ErrBadRequest) {
				return writeError(c, fiber.StatusBadRequest, "FIELDS_REQUIRED", "tenant_id, user_id and message_id are required")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"attachment":   att,
			"download_url": base + "/d/" + att.DownloadID,
		})
	}
}

// AttachmentURL issues a presigned download URL for a download identifier.
// ttl_seconds may request a shorter lifetime than the 24h default.
func AttachmentURL(svc service.AttachmentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		downloadID := c.Params("download_id")

		var ttl time.Duration
		if raw := c.Query("ttl_seconds"); raw != "" {
			secs, err := strconv.Atoi(raw)
			if err != nil || secs <= 0 {
				return writeError(c, fiber.StatusBadRequest, "INVALID_TTL", "invalid ttl_seconds")
			}
			ttl = time.Duration(secs) * time.Second
		}

		url, err := svc.DownloadURL(c.UserContext(), downloadID, ttl)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "attachment not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(fiber.Map{"url": url})
	}
}

// TrackedDownload records the download attempt and redirects the recipient to
// the presigned URL.
func TrackedDownload(svc service.AttachmentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		downloadID := c.Params("download_id")

		url, err := svc.TrackedDownload(c.UserContext(), downloadID, c.IP(), c.Get(fiber.HeaderUserAgent))
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "attachment not found")
			}
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.Redirect(url, fiber.StatusFound)
	}
}

// OpenPixel records an email-open event and returns a 1x1 GIF. The pixel is
// always served, even when the event write fails: tracking must never break
// mail rendering.
func OpenPixel(svc service.AttachmentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		messageID := c.Params("message_id")
		_ = svc.TrackOpen(c.UserContext(), messageID, c.IP())

		c.Set(fiber.HeaderContentType, "image/gif")
		c.Set(fiber.HeaderCacheControl, "no-store, no-cache, must-revalidate")
		return c.Send(openPixel)
	}
}
