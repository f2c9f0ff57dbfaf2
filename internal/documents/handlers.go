package documents

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/section1983-backend/internal/auth"
	"github.com/aldoetobex/section1983-backend/internal/court"
	"github.com/aldoetobex/section1983-backend/internal/storage"
	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/utils"
	"github.com/aldoetobex/section1983-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

type CreateDocumentRequest struct {
	Title string `json:"title" validate:"max=160"`
}

type DocumentListItem struct {
	ID                   uuid.UUID            `json:"id"`
	Title                string               `json:"title"`
	PaymentStatus        models.PaymentStatus `json:"payment_status"`
	CourtDistrict        string               `json:"court_district"`
	CompletionPercentage int                  `json:"completion_percentage"`
	CreatedAt            time.Time            `json:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

type PageDocuments struct {
	Page     int                `json:"page"`
	PageSize int                `json:"pageSize"`
	Total    int64              `json:"total"`
	Pages    int                `json:"pages"`
	Items    []DocumentListItem `json:"items"`
}

// DocumentDetail is a document plus the derived state the UI renders.
type DocumentDetail struct {
	*models.Document
	CompletionPercentage int        `json:"completion_percentage"`
	CanEdit              bool       `json:"can_edit"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
	AIRemaining          int        `json:"ai_remaining"`
}

type StoryRequest struct {
	StoryText string `json:"story_text" validate:"required,min=20,max=20000"`
}

type CourtRequest struct {
	City  string `json:"city" validate:"max=80"`
	State string `json:"state" validate:"omitempty,usstate"`
}

type SectionStatusRequest struct {
	Status models.SectionStatus `json:"status" validate:"required,oneof=not_started in_progress needs_work completed not_applicable"`
	Notes  string               `json:"notes" validate:"max=2000"`
}

/* ============================== Handler ================================= */

// CourtResolver is satisfied by *court.Handler.
type CourtResolver interface {
	Resolve(city, state string) court.Result
}

type Handler struct {
	svc    *Service
	store  storage.Store
	courts CourtResolver
}

func NewHandler(svc *Service, store storage.Store, courts CourtResolver) *Handler {
	return &Handler{svc: svc, store: store, courts: courts}
}

func userID(c *fiber.Ctx) uuid.UUID {
	id, _ := uuid.Parse(auth.MustUserID(c))
	return id
}

// owned loads the :id document for the caller.
func (h *Handler) owned(c *fiber.Ctx) (*models.Document, error) {
	id, err := ParamID(c, "id")
	if err != nil {
		return nil, err
	}
	doc, err := h.svc.Get(c.UserContext(), userID(c), id)
	return doc, HTTPError(err)
}

// editable loads the :id document and rejects it when it is locked.
func (h *Handler) editable(c *fiber.Ctx) (*models.Document, error) {
	id, err := ParamID(c, "id")
	if err != nil {
		return nil, err
	}
	doc, err := h.svc.Editable(c.UserContext(), userID(c), id)
	return doc, HTTPError(err)
}

/* =============================== Create ================================= */

// @Summary      Create document
// @Description  Starts a draft complaint with ten sections; plaintiff info is pre-filled from the profile
// @Tags         documents
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateDocumentRequest  false  "Optional title"
// @Success      201  {object}  DocumentDetail
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "profile incomplete or consents missing"
// @Router       /documents [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateDocumentRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid json")
		}
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	u, err := auth.CurrentUser(c, h.svc.DB())
	if err != nil {
		return err
	}
	doc, err := h.svc.Create(c.UserContext(), u, in.Title)
	if err != nil {
		return HTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(h.detail(doc, u))
}

/* ================================ List ================================== */

// @Summary      List my documents
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int false "page"
// @Param        pageSize  query int false "pageSize"
// @Success      200  {object}  PageDocuments
// @Router       /documents/mine [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	ctx := c.UserContext()
	uid := userID(c)
	p, _ := strconv.Atoi(c.Query("page", "1"))
	s, _ := strconv.Atoi(c.Query("pageSize", "10"))
	page, size := utils.ParsePage(p, s)

	db := h.svc.DB().WithContext(ctx)
	var total int64
	if err := db.Model(&models.Document{}).Where("user_id = ?", uid).Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var docs []models.Document
	if err := db.Where("user_id = ?", uid).
		Preload("Sections").
		Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&docs).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	items := make([]DocumentListItem, 0, len(docs))
	for i := range docs {
		d := &docs[i]
		h.svc.RefreshExpiry(ctx, d)
		items = append(items, DocumentListItem{
			ID:                   d.ID,
			Title:                d.Title,
			PaymentStatus:        d.PaymentStatus,
			CourtDistrict:        d.CourtDistrict,
			CompletionPercentage: models.CompletionPercentage(d.Sections),
			CreatedAt:            d.CreatedAt,
			UpdatedAt:            d.UpdatedAt,
		})
	}

	return c.JSON(PageDocuments{
		Page: page, PageSize: size, Total: total,
		Pages: int(math.Ceil(float64(total) / float64(size))),
		Items: items,
	})
}

/* =============================== Detail ================================= */

// @Summary      Document detail
// @Description  Sections, child records and completion percentage. Stale drafts are expired on read.
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "document id (uuid)"
// @Success      200  {object}  DocumentDetail
// @Failure      404  {object}  models.ErrorResponse
// @Router       /documents/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return err
	}
	u, err := auth.CurrentUser(c, h.svc.DB())
	if err != nil {
		return err
	}
	doc, err := h.svc.GetFull(c.UserContext(), u.ID, id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(h.detail(doc, u))
}

func (h *Handler) detail(doc *models.Document, u *models.User) DocumentDetail {
	now, p := h.svc.Now(), h.svc.Policy()
	out := DocumentDetail{
		Document:             doc,
		CompletionPercentage: models.CompletionPercentage(doc.Sections),
		CanEdit:              doc.CanEdit(now, p),
		AIRemaining:          doc.RemainingAI(u, p),
	}
	if doc.PaymentStatus == models.PaymentDraft {
		exp := doc.ExpiresAt(p)
		out.ExpiresAt = &exp
	}
	return out
}

/* ============================ Delete / Finalize ========================= */

// @Summary      Delete draft
// @Tags         documents
// @Security     BearerAuth
// @Param        id   path string true "document id (uuid)"
// @Success      204
// @Failure      409  {object}  models.ErrorResponse  "not a draft"
// @Router       /documents/{id} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDraft(c.UserContext(), userID(c), id); err != nil {
		return HTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// @Summary      Finalize document
// @Description  Locks a paid document against further edits
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "document id (uuid)"
// @Success      200  {object}  map[string]any
// @Failure      402  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse  "already finalized"
// @Router       /documents/{id}/finalize [post]
func (h *Handler) Finalize(c *fiber.Ctx) error {
	id, err := ParamID(c, "id")
	if err != nil {
		return err
	}
	doc, err := h.svc.Finalize(c.UserContext(), userID(c), id)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(fiber.Map{
		"id":             doc.ID,
		"payment_status": doc.PaymentStatus,
		"finalized_at":   doc.FinalizedAt,
	})
}

/* ================================ Story ================================= */

// @Summary      Save story
// @Description  Saves the free-text account used by AI story parsing
// @Tags         documents
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string        true  "document id (uuid)"
// @Param        payload  body  StoryRequest  true  "Story"
// @Success      200  {object}  map[string]any
// @Router       /documents/{id}/story [put]
func (h *Handler) SaveStory(c *fiber.Ctx) error {
	var in StoryRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	in.StoryText = strings.TrimSpace(in.StoryText)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	doc, err := h.editable(c)
	if err != nil {
		return err
	}
	if err := h.svc.DB().WithContext(c.UserContext()).Model(doc).
		Update("story_text", in.StoryText).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"id": doc.ID, "story_text": in.StoryText, "story_status": doc.StoryStatus})
}

/* ================================ Court ================================= */

// @Summary      Assign federal court
// @Description  Looks up the district from the given city/state or the incident overview and stores it
// @Tags         documents
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string        true   "document id (uuid)"
// @Param        payload  body  CourtRequest  false  "Override city/state"
// @Success      200  {object}  court.Result
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /documents/{id}/court [post]
func (h *Handler) AssignCourt(c *fiber.Ctx) error {
	var in CourtRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid json")
		}
	}
	in.State = validation.NormalizeState(in.State)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	doc, err := h.editable(c)
	if err != nil {
		return err
	}
	db := h.svc.DB().WithContext(c.UserContext())

	city, state := strings.TrimSpace(in.City), in.State
	if state == "" {
		var io models.IncidentOverview
		if err := db.Where("document_id = ?", doc.ID).Take(&io).Error; err == nil {
			city, state = io.City, io.State
		}
	}
	if state == "" {
		return validation.Field(c, "state", "Provide a state or complete the incident overview first")
	}

	res := h.courts.Resolve(city, state)
	if err := db.Model(doc).Updates(map[string]any{
		"court_district":   res.District,
		"court_state":      res.State,
		"court_city":       strings.TrimSpace(city),
		"court_confidence": string(res.Confidence),
	}).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(res)
}

/* =========================== Section status ============================= */

// @Summary      Set section status
// @Description  Mark a section not applicable, needs work, etc.
// @Tags         documents
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                true  "document id (uuid)"
// @Param        type     path  string                true  "section type"
// @Param        payload  body  SectionStatusRequest  true  "Status"
// @Success      200  {object}  map[string]any
// @Router       /documents/{id}/sections/{type}/status [patch]
func (h *Handler) SetStatus(c *fiber.Ctx) error {
	st := models.SectionType(c.Params("type"))
	if !st.Valid() {
		return fiber.ErrNotFound
	}
	var in SectionStatusRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	doc, err := h.editable(c)
	if err != nil {
		return err
	}
	res := h.svc.DB().WithContext(c.UserContext()).Model(&models.DocumentSection{}).
		Where("document_id = ? AND section_type = ?", doc.ID, st).
		Updates(map[string]any{"status": in.Status, "notes": strings.TrimSpace(in.Notes)})
	if res.Error != nil {
		return fiber.ErrInternalServerError
	}
	if res.RowsAffected == 0 {
		return fiber.ErrNotFound
	}
	return h.sectionResponse(c, doc.ID, st, nil)
}

// sectionResponse echoes the section row, its data and the new completion.
func (h *Handler) sectionResponse(c *fiber.Ctx, docID uuid.UUID, st models.SectionType, data any) error {
	ctx := c.UserContext()
	var sec models.DocumentSection
	if err := h.svc.DB().WithContext(ctx).
		Where("document_id = ? AND section_type = ?", docID, st).
		Take(&sec).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	pct, err := h.svc.Completion(ctx, docID)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	out := fiber.Map{"section": sec, "completion_percentage": pct}
	if data != nil {
		out["data"] = data
	}
	return c.JSON(out)
}
