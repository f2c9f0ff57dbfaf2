package wizard

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/section1983-backend/internal/assist"
	"github.com/aldoetobex/section1983-backend/internal/auth"
	"github.com/aldoetobex/section1983-backend/internal/documents"
	"github.com/aldoetobex/section1983-backend/pkg/validation"
)

func httpError(err error) error {
	var missing *MissingStepsError
	switch {
	case errors.As(err, &missing):
		return fiber.NewError(fiber.StatusConflict, "answer every step before finishing: "+joinInts(missing.Steps))
	case errors.Is(err, ErrSessionNotFound):
		return fiber.ErrNotFound
	case errors.Is(err, ErrInvalidPayload):
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	case errors.Is(err, ErrUnknownStep):
		return fiber.ErrNotFound
	case errors.Is(err, ErrCompleted):
		return fiber.NewError(fiber.StatusConflict, "this wizard session is already finished")
	case errors.Is(err, ErrStepLocked):
		return fiber.NewError(fiber.StatusConflict, "finish the earlier steps first")
	}
	return assist.HTTPError(err)
}

func joinInts(ns []int) string {
	out := ""
	for i, n := range ns {
		if i > 0 {
			out += ", "
		}
		out += strconv.Itoa(n)
	}
	return out
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func ids(c *fiber.Ctx) (userID, sessionID uuid.UUID, err error) {
	userID, err = uuid.Parse(auth.MustUserID(c))
	if err != nil {
		return uuid.Nil, uuid.Nil, fiber.ErrUnauthorized
	}
	sessionID, err = documents.ParamID(c, "sid")
	return userID, sessionID, err
}

/* ================================ Steps ================================= */

// @Summary      Wizard steps
// @Description  Step definitions and the fields each one stores
// @Tags         wizard
// @Produce      json
// @Success      200  {array}  Step
// @Router       /api/v1/wizard/steps [get]
func (h *Handler) ListSteps(c *fiber.Ctx) error {
	return c.JSON(Steps)
}

type StartRequest struct {
	Fresh bool `json:"fresh"`
}

// @Summary      Start or resume
// @Description  Returns the open session, or a new one when none exists or fresh is set
// @Tags         wizard
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  StartRequest  false  "Start options"
// @Success      201  {object}  models.WizardSession
// @Success      200  {object}  models.WizardSession  "resumed"
// @Router       /api/v1/wizard/start [post]
func (h *Handler) Start(c *fiber.Ctx) error {
	userID, err := uuid.Parse(auth.MustUserID(c))
	if err != nil {
		return fiber.ErrUnauthorized
	}
	var in StartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid json")
		}
	}
	sess, created, err := h.svc.Start(c.UserContext(), userID, in.Fresh)
	if err != nil {
		return httpError(err)
	}
	if created {
		return c.Status(fiber.StatusCreated).JSON(sess)
	}
	return c.JSON(sess)
}

// @Summary      Get session
// @Tags         wizard
// @Security     BearerAuth
// @Produce      json
// @Param        sid  path  string  true  "session id (uuid)"
// @Success      200  {object}  models.WizardSession
// @Failure      404  {object}  models.ErrorResponse
// @Router       /api/v1/wizard/sessions/{sid} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	userID, sid, err := ids(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.Get(c.UserContext(), userID, sid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(sess)
}

// @Summary      Save step
// @Description  Validates one step and stores only its declared fields; progress never goes backwards
// @Tags         wizard
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        sid   path  string  true  "session id (uuid)"
// @Param        step  path  int     true  "step number (1-7)"
// @Success      200  {object}  models.WizardSession
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /api/v1/wizard/sessions/{sid}/steps/{step} [post]
func (h *Handler) SaveStep(c *fiber.Ctx) error {
	userID, sid, err := ids(c)
	if err != nil {
		return err
	}
	step, err := c.ParamsInt("step")
	if err != nil {
		return fiber.ErrNotFound
	}
	sess, fieldErrs, err := h.svc.SaveStep(c.UserContext(), userID, sid, step, c.Body())
	if fieldErrs != nil {
		return validation.Respond(c, fieldErrs)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(sess)
}

/* ============================ Background AI ============================= */

// @Summary      Parse story
// @Description  Extracts facts from the step 3 story in the background
// @Tags         wizard
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        sid      path  string               true   "session id (uuid)"
// @Param        payload  body  assist.StoryRequest  false  "Story text; step 3 is used when empty"
// @Success      202  {object}  JobPoll
// @Success      200  {object}  JobPoll  "already processing"
// @Failure      403  {object}  models.ErrorResponse
// @Router       /api/v1/wizard/sessions/{sid}/story [post]
func (h *Handler) SubmitStory(c *fiber.Ctx) error {
	userID, sid, err := ids(c)
	if err != nil {
		return err
	}
	var in assist.StoryRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid json")
		}
	}
	poll, started, err := h.svc.SubmitStory(c.UserContext(), userID, sid, in.StoryText)
	if err != nil {
		return httpError(err)
	}
	if started {
		return c.Status(fiber.StatusAccepted).JSON(poll)
	}
	return c.JSON(poll)
}

// @Summary      Story status
// @Tags         wizard
// @Security     BearerAuth
// @Produce      json
// @Param        sid  path  string  true  "session id (uuid)"
// @Success      200  {object}  JobPoll
// @Router       /api/v1/wizard/sessions/{sid}/story [get]
func (h *Handler) StoryStatus(c *fiber.Ctx) error {
	userID, sid, err := ids(c)
	if err != nil {
		return err
	}
	poll, err := h.svc.StoryPoll(c.UserContext(), userID, sid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(poll)
}

// @Summary      Analyze rights
// @Description  Suggests violated rights from the answers so far, in the background
// @Tags         wizard
// @Security     BearerAuth
// @Produce      json
// @Param        sid  path  string  true  "session id (uuid)"
// @Success      202  {object}  JobPoll
// @Router       /api/v1/wizard/sessions/{sid}/analyze [post]
func (h *Handler) SubmitAnalysis(c *fiber.Ctx) error {
	userID, sid, err := ids(c)
	if err != nil {
		return err
	}
	poll, started, err := h.svc.SubmitAnalysis(c.UserContext(), userID, sid)
	if err != nil {
		return httpError(err)
	}
	if started {
		return c.Status(fiber.StatusAccepted).JSON(poll)
	}
	return c.JSON(poll)
}

// @Summary      Analysis status
// @Tags         wizard
// @Security     BearerAuth
// @Produce      json
// @Param        sid  path  string  true  "session id (uuid)"
// @Success      200  {object}  JobPoll
// @Router       /api/v1/wizard/sessions/{sid}/analysis [get]
func (h *Handler) AnalysisStatus(c *fiber.Ctx) error {
	userID, sid, err := ids(c)
	if err != nil {
		return err
	}
	poll, err := h.svc.AnalysisPoll(c.UserContext(), userID, sid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(poll)
}

/* =============================== Complete =============================== */

// @Summary      Finish wizard
// @Description  Builds a draft document from every answered step; repeat calls return the same document
// @Tags         wizard
// @Security     BearerAuth
// @Produce      json
// @Param        sid  path  string  true  "session id (uuid)"
// @Success      201  {object}  models.Document
// @Failure      409  {object}  models.ErrorResponse
// @Router       /api/v1/wizard/sessions/{sid}/complete [post]
func (h *Handler) Complete(c *fiber.Ctx) error {
	userID, sid, err := ids(c)
	if err != nil {
		return err
	}
	doc, err := h.svc.Complete(c.UserContext(), userID, sid)
	if err != nil {
		return httpError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

// Mount registers the wizard routes on an authenticated group.
func (h *Handler) Mount(r fiber.Router) {
	r.Get("/steps", h.ListSteps)
	r.Post("/start", h.Start)
	r.Get("/sessions/:sid", h.Get)
	r.Post("/sessions/:sid/steps/:step", h.SaveStep)
	r.Post("/sessions/:sid/story", h.SubmitStory)
	r.Get("/sessions/:sid/story", h.StoryStatus)
	r.Post("/sessions/:sid/analyze", h.SubmitAnalysis)
	r.Get("/sessions/:sid/analysis", h.AnalysisStatus)
	r.Post("/sessions/:sid/complete", h.Complete)
}
