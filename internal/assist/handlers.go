package assist

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/section1983-backend/internal/auth"
	"github.com/aldoetobex/section1983-backend/internal/documents"
	"github.com/aldoetobex/section1983-backend/internal/prompts"
	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/validation"
)

// HTTPError maps assist errors, then defers to the document mapping.
func HTTPError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnauthorized):
		return fiber.ErrUnauthorized
	case errors.Is(err, ErrAILimit):
		return fiber.NewError(fiber.StatusForbidden, "AI limit reached")
	case errors.Is(err, ErrRateLimited):
		return fiber.NewError(fiber.StatusTooManyRequests, "too many AI requests; wait a minute and try again")
	case errors.Is(err, ErrUpstream):
		return fiber.NewError(fiber.StatusBadGateway, "the AI service is unavailable; try again shortly")
	case errors.Is(err, ErrBadModelOutput):
		return fiber.NewError(fiber.StatusBadGateway, "the AI service returned an unexpected response")
	case errors.Is(err, ErrStoryMissing):
		return fiber.NewError(fiber.StatusBadRequest, "tell us what happened first")
	case errors.Is(err, ErrFieldNotFixable):
		return fiber.NewError(fiber.StatusBadRequest, "that field cannot be changed here")
	case errors.Is(err, prompts.ErrPromptNotFound):
		return fiber.ErrInternalServerError
	}
	return documents.HTTPError(err)
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func ids(c *fiber.Ctx) (userID, docID uuid.UUID, err error) {
	userID, err = uuid.Parse(auth.MustUserID(c))
	if err != nil {
		return uuid.Nil, uuid.Nil, fiber.ErrUnauthorized
	}
	docID, err = documents.ParamID(c, "id")
	return userID, docID, err
}

/* ================================= Story ================================ */

type StoryRequest struct {
	StoryText string `json:"story_text" validate:"max=20000"`
}

// @Summary      Parse story
// @Description  Saves the story and extracts structured facts in the background; poll GET for the result
// @Tags         ai
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string        true   "document id (uuid)"
// @Param        payload  body  StoryRequest  false  "Story text; the saved story is used when empty"
// @Success      202  {object}  StoryPoll
// @Success      200  {object}  StoryPoll  "already processing"
// @Failure      403  {object}  models.ErrorResponse
// @Failure      429  {object}  models.ErrorResponse
// @Router       /documents/{id}/ai/story [post]
func (h *Handler) SubmitStory(c *fiber.Ctx) error {
	var in StoryRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid json")
		}
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	uid, docID, err := ids(c)
	if err != nil {
		return err
	}
	poll, started, err := h.svc.SubmitStory(c.UserContext(), uid, docID, in.StoryText)
	if err != nil {
		return HTTPError(err)
	}
	if started {
		return c.Status(fiber.StatusAccepted).JSON(poll)
	}
	return c.JSON(poll)
}

// @Summary      Story parse status
// @Tags         ai
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "document id (uuid)"
// @Success      200  {object}  StoryPoll
// @Router       /documents/{id}/ai/story [get]
func (h *Handler) StoryStatus(c *fiber.Ctx) error {
	uid, docID, err := ids(c)
	if err != nil {
		return err
	}
	poll, err := h.svc.StoryStatus(c.UserContext(), uid, docID)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(poll)
}

/* ============================ Suggestions =============================== */

// @Summary      Analyze rights
// @Description  Suggests violated rights with matching case law; the user confirms them on the rights section
// @Tags         ai
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "document id (uuid)"
// @Success      200  {object}  RightsAnalysis
// @Failure      403  {object}  models.ErrorResponse  "AI limit reached"
// @Failure      502  {object}  models.ErrorResponse
// @Router       /documents/{id}/ai/rights [post]
func (h *Handler) AnalyzeRights(c *fiber.Ctx) error {
	uid, docID, err := ids(c)
	if err != nil {
		return err
	}
	out, err := h.svc.AnalyzeRights(c.UserContext(), uid, docID)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(out)
}

// @Summary      Suggest relief
// @Tags         ai
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "document id (uuid)"
// @Success      200  {object}  ReliefSuggestion
// @Router       /documents/{id}/ai/relief [post]
func (h *Handler) SuggestRelief(c *fiber.Ctx) error {
	uid, docID, err := ids(c)
	if err != nil {
		return err
	}
	out, err := h.svc.SuggestRelief(c.UserContext(), uid, docID)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(out)
}

// @Summary      Suggest agency
// @Description  Guesses the employing agency of an officer; city and state default to the incident overview
// @Tags         ai
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string       true   "document id (uuid)"
// @Param        payload  body  AgencyQuery  false  "Location and description"
// @Success      200  {object}  AgencySuggestion
// @Router       /documents/{id}/ai/agency [post]
func (h *Handler) SuggestAgency(c *fiber.Ctx) error {
	var in AgencyQuery
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid json")
		}
	}
	in.State = validation.NormalizeState(in.State)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	uid, docID, err := ids(c)
	if err != nil {
		return err
	}
	out, err := h.svc.SuggestAgency(c.UserContext(), uid, docID, in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(out)
}

type SectionSuggestRequest struct {
	Current string `json:"current" validate:"max=20000"`
}

// @Summary      Suggest section text
// @Tags         ai
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                 true   "document id (uuid)"
// @Param        type     path  string                 true   "section type"
// @Param        payload  body  SectionSuggestRequest  false  "Unsaved text to improve"
// @Success      200  {object}  TextSuggestion
// @Router       /documents/{id}/ai/sections/{type} [post]
func (h *Handler) SuggestSection(c *fiber.Ctx) error {
	var in SectionSuggestRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid json")
		}
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	t := models.SectionType(c.Params("type"))
	if !t.Valid() {
		return fiber.ErrNotFound
	}
	uid, docID, err := ids(c)
	if err != nil {
		return err
	}
	out, err := h.svc.SuggestSection(c.UserContext(), uid, docID, t, in.Current)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(out)
}

// @Summary      Review document
// @Description  Lists gaps and weaknesses in the draft; completed sections with serious issues move to needs_work
// @Tags         ai
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "document id (uuid)"
// @Success      200  {object}  Review
// @Router       /documents/{id}/ai/review [post]
func (h *Handler) ReviewDocument(c *fiber.Ctx) error {
	uid, docID, err := ids(c)
	if err != nil {
		return err
	}
	out, err := h.svc.ReviewDocument(c.UserContext(), uid, docID)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(out)
}

/* ================================= Fixes ================================ */

// @Summary      Generate fix
// @Tags         ai
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string      true  "document id (uuid)"
// @Param        payload  body  FixRequest  true  "Issue to resolve"
// @Success      200  {object}  TextSuggestion
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /documents/{id}/ai/fix [post]
func (h *Handler) GenerateFix(c *fiber.Ctx) error {
	var in FixRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	uid, docID, err := ids(c)
	if err != nil {
		return err
	}
	out, err := h.svc.GenerateFix(c.UserContext(), uid, docID, in)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(out)
}

// @Summary      Apply fix
// @Description  Stores accepted text into the field a fix was generated for
// @Tags         ai
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string           true  "document id (uuid)"
// @Param        payload  body  ApplyFixRequest  true  "Accepted text"
// @Success      200  {object}  map[string]any
// @Router       /documents/{id}/ai/apply-fix [post]
func (h *Handler) ApplyFix(c *fiber.Ctx) error {
	var in ApplyFixRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	uid, docID, err := ids(c)
	if err != nil {
		return err
	}
	if err := h.svc.ApplyFix(c.UserContext(), uid, docID, in); err != nil {
		return HTTPError(err)
	}
	return c.JSON(fiber.Map{"section": in.Section, "field": in.Field, "applied": true})
}

// Mount registers the AI routes on an authenticated router.
func (h *Handler) Mount(r fiber.Router) {
	g := r.Group("/documents/:id/ai")
	g.Post("/story", h.SubmitStory)
	g.Get("/story", h.StoryStatus)
	g.Post("/rights", h.AnalyzeRights)
	g.Post("/relief", h.SuggestRelief)
	g.Post("/agency", h.SuggestAgency)
	g.Post("/sections/:type", h.SuggestSection)
	g.Post("/review", h.ReviewDocument)
	g.Post("/fix", h.GenerateFix)
	g.Post("/apply-fix", h.ApplyFix)
}
