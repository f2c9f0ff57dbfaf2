package transcript

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/section1983-backend/internal/auth"
	"github.com/aldoetobex/section1983-backend/internal/documents"
)

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrEvidenceNotFound), errors.Is(err, ErrNoJob):
		return fiber.ErrNotFound
	case errors.Is(err, ErrNoVideo):
		return fiber.NewError(fiber.StatusBadRequest, "add a video link to this evidence first")
	case errors.Is(err, ErrNotConfigured):
		return fiber.NewError(fiber.StatusServiceUnavailable, "video transcripts are not available right now")
	case errors.Is(err, ErrUpstream):
		return fiber.NewError(fiber.StatusBadGateway, "the transcript service is unavailable; try again shortly")
	}
	return documents.HTTPError(err)
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func ids(c *fiber.Ctx) (userID, docID, evID uuid.UUID, err error) {
	if userID, err = uuid.Parse(auth.MustUserID(c)); err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, fiber.ErrUnauthorized
	}
	if docID, err = documents.ParamID(c, "id"); err != nil {
		return
	}
	evID, err = documents.ParamID(c, "eid")
	return
}

// @Summary      Request a video transcript
// @Description  Submits the evidence video link; poll GET for the result
// @Tags         evidence
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  string  true  "document id (uuid)"
// @Param        eid  path  string  true  "evidence id (uuid)"
// @Success      202  {object}  models.TranscriptJob
// @Success      200  {object}  models.TranscriptJob  "a job is already running"
// @Failure      400  {object}  models.ErrorResponse
// @Failure      502  {object}  models.ErrorResponse
// @Router       /documents/{id}/evidence/{eid}/transcript [post]
func (h *Handler) Start(c *fiber.Ctx) error {
	userID, docID, evID, err := ids(c)
	if err != nil {
		return err
	}
	job, created, err := h.svc.Start(c.UserContext(), userID, docID, evID)
	if err != nil {
		return httpError(err)
	}
	if created {
		return c.Status(fiber.StatusAccepted).JSON(job)
	}
	return c.JSON(job)
}

// @Summary      Poll a video transcript
// @Tags         evidence
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  string  true  "document id (uuid)"
// @Param        eid  path  string  true  "evidence id (uuid)"
// @Success      200  {object}  models.TranscriptJob
// @Failure      404  {object}  models.ErrorResponse
// @Router       /documents/{id}/evidence/{eid}/transcript [get]
func (h *Handler) Poll(c *fiber.Ctx) error {
	userID, docID, evID, err := ids(c)
	if err != nil {
		return err
	}
	job, err := h.svc.Poll(c.UserContext(), userID, docID, evID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(job)
}

func (h *Handler) Mount(r fiber.Router) {
	r.Post("/documents/:id/evidence/:eid/transcript", h.Start)
	r.Get("/documents/:id/evidence/:eid/transcript", h.Poll)
}
