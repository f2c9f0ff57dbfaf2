package documents

import (
	"errors"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/internal/storage"
	"github.com/aldoetobex/section1983-backend/pkg/models"
)

const (
	MaxEvidenceFileSize = 25 * 1024 * 1024
	signedURLSeconds    = 60
)

var allowedEvidenceTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"video/mp4":       true,
	"video/quicktime": true,
}

// @Summary      Upload evidence file
// @Description  Attaches one PDF/PNG/JPEG/MP4/MOV file to an evidence item (max 25MB)
// @Tags         files
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id      path      string  true  "document id (uuid)"
// @Param        itemId  path      string  true  "evidence id (uuid)"
// @Param        file    formData  file    true  "evidence file"
// @Success      201     {object}  models.Evidence
// @Failure      400     {object}  models.ErrorResponse
// @Failure      403     {object}  models.ErrorResponse
// @Failure      502     {object}  models.ErrorResponse  "storage upload failed"
// @Router       /documents/{id}/evidence/{itemId}/file [post]
func (h *Handler) UploadEvidenceFile(c *fiber.Ctx) error {
	ctx := c.UserContext()
	itemID, err := ParamID(c, "itemId")
	if err != nil {
		return err
	}
	doc, err := h.editable(c)
	if err != nil {
		return err
	}

	db := h.svc.DB().WithContext(ctx)
	var ev models.Evidence
	if err := db.Where("id = ? AND document_id = ?", itemID, doc.ID).Take(&ev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart form with a file field is required")
	}
	if fh.Size <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "empty file")
	}
	if fh.Size > MaxEvidenceFileSize {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "max 25MB per file")
	}

	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = mime.TypeByExtension(strings.ToLower(filepath.Ext(fh.Filename)))
	}
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if !allowedEvidenceTypes[ct] {
		return fiber.NewError(fiber.StatusBadRequest, "only PDF, PNG, JPEG, MP4 or MOV files are allowed")
	}

	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "cannot read upload")
	}
	defer f.Close()

	key := storage.EvidenceKey(doc.ID.String(), ev.ID.String(), fh.Filename)
	if err := h.store.Upload(ctx, key, f, ct, fh.Size); err != nil {
		h.svc.log.Error(ctx, "evidence upload", err)
		return fiber.NewError(fiber.StatusBadGateway, "upload failed")
	}

	old := ev.StorageKey
	ev.StorageKey = key
	ev.Mime = ct
	ev.Size = fh.Size
	ev.OriginalName = filepath.Base(fh.Filename)
	if err := db.Save(&ev).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if old != "" && old != key {
		if err := h.store.Delete(ctx, old); err != nil {
			h.svc.log.Error(ctx, "delete replaced evidence object", err)
		}
	}
	return c.Status(fiber.StatusCreated).JSON(ev)
}

// @Summary      Evidence file signed URL
// @Description  Owner obtains a short-lived signed URL for an uploaded evidence file
// @Tags         files
// @Security     BearerAuth
// @Produce      json
// @Param        id      path string true "document id (uuid)"
// @Param        itemId  path string true "evidence id (uuid)"
// @Success      200  {object}  map[string]any  "url, expires_in, now"
// @Failure      404  {object}  models.ErrorResponse
// @Router       /documents/{id}/evidence/{itemId}/file [get]
func (h *Handler) EvidenceFileURL(c *fiber.Ctx) error {
	ctx := c.UserContext()
	itemID, err := ParamID(c, "itemId")
	if err != nil {
		return err
	}
	doc, err := h.owned(c)
	if err != nil {
		return err
	}

	var ev models.Evidence
	if err := h.svc.DB().WithContext(ctx).
		Where("id = ? AND document_id = ?", itemID, doc.ID).
		Take(&ev).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	if ev.StorageKey == "" {
		return fiber.NewError(fiber.StatusNotFound, "no file uploaded for this evidence item")
	}

	url, err := h.store.SignedURL(ctx, ev.StorageKey, signedURLSeconds)
	if err != nil {
		h.svc.log.Error(ctx, "sign evidence url", err)
		return fiber.NewError(fiber.StatusBadGateway, "could not sign url")
	}
	return c.JSON(fiber.Map{"url": url, "expires_in": signedURLSeconds, "now": time.Now().UTC()})
}
