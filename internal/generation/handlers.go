package generation

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/section1983-backend/internal/assist"
	"github.com/aldoetobex/section1983-backend/internal/auth"
	"github.com/aldoetobex/section1983-backend/internal/documents"
	"github.com/aldoetobex/section1983-backend/pkg/models"
)

const pdfLinkTTL = 300

type Handler struct {
	gen *Generator
}

func NewHandler(gen *Generator) *Handler { return &Handler{gen: gen} }

func httpError(err error) error {
	if errors.Is(err, ErrNotGenerated) {
		return fiber.NewError(fiber.StatusConflict, "generate the complaint first")
	}
	return assist.HTTPError(err)
}

func ids(c *fiber.Ctx) (uuid.UUID, uuid.UUID, error) {
	uid, err := uuid.Parse(auth.MustUserID(c))
	if err != nil {
		return uuid.Nil, uuid.Nil, fiber.ErrUnauthorized
	}
	docID, err := documents.ParamID(c, "id")
	return uid, docID, err
}

// @Summary      Generate complaint
// @Description  Runs the eight complaint steps; steps whose AI call fails use a template and are listed in warnings
// @Tags         generation
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "document id (uuid)"
// @Success      200  {object}  Complaint
// @Failure      402  {object}  models.ErrorResponse  "document not purchased"
// @Failure      403  {object}  models.ErrorResponse
// @Router       /documents/{id}/generate [post]
func (h *Handler) Generate(c *fiber.Ctx) error {
	uid, docID, err := ids(c)
	if err != nil {
		return err
	}
	out, err := h.gen.Generate(c.UserContext(), uid, docID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(out)
}

// @Summary      Get generated complaint
// @Tags         generation
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "document id (uuid)"
// @Success      200  {object}  Complaint
// @Failure      409  {object}  models.ErrorResponse  "not generated yet"
// @Router       /documents/{id}/complaint [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	uid, docID, err := ids(c)
	if err != nil {
		return err
	}
	out, err := h.gen.Stored(c.UserContext(), uid, docID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(out)
}

// @Summary      Download complaint PDF
// @Tags         generation
// @Security     BearerAuth
// @Produce      application/pdf
// @Param        id  path  string  true  "document id (uuid)"
// @Success      200  {file}  binary
// @Failure      409  {object}  models.ErrorResponse  "not generated yet"
// @Router       /documents/{id}/pdf [get]
func (h *Handler) PDF(c *fiber.Ctx) error {
	uid, docID, err := ids(c)
	if err != nil {
		return err
	}
	out, err := h.gen.Stored(c.UserContext(), uid, docID)
	if err != nil {
		return httpError(err)
	}
	var buf bytes.Buffer
	if err := RenderPDF(&buf, out); err != nil {
		h.gen.log.Error(c.UserContext(), "render pdf", err)
		return fiber.ErrInternalServerError
	}
	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="complaint-%s.pdf"`, docID.String()[:8]))
	return c.Send(buf.Bytes())
}

// @Summary      Publish complaint PDF
// @Description  Uploads the PDF to storage and returns a short-lived signed link
// @Tags         generation
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "document id (uuid)"
// @Success      200  {object}  map[string]any
// @Router       /documents/{id}/pdf/link [post]
func (h *Handler) PDFLink(c *fiber.Ctx) error {
	uid, docID, err := ids(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	out, err := h.gen.Stored(ctx, uid, docID)
	if err != nil {
		return httpError(err)
	}
	key, url, err := PublishPDF(ctx, h.gen.store, docID, out, pdfLinkTTL)
	if err != nil {
		h.gen.log.Error(ctx, "publish pdf", err)
		return fiber.NewError(fiber.StatusBadGateway, "could not store the PDF")
	}
	if err := h.gen.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", docID).
		Update("pdf_key", key).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"url": url, "expires_in": pdfLinkTTL})
}

// Mount registers the generation routes on an authenticated router.
func (h *Handler) Mount(r fiber.Router) {
	r.Post("/documents/:id/generate", h.Generate)
	r.Get("/documents/:id/complaint", h.Get)
	r.Get("/documents/:id/pdf", h.PDF)
	r.Post("/documents/:id/pdf/link", h.PDFLink)
}
