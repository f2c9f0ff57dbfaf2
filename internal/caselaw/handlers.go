package caselaw

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/validation"
)

// ===== DTOs =====

type CaseLawRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Citation string `json:"citation" validate:"required,max=120"`
	Court    string `json:"court" validate:"max=120"`
	Year     int    `json:"year" validate:"omitempty,gte=1789,lte=2100"`
	Category string `json:"category" validate:"required,rightcategory"`
	Summary  string `json:"summary" validate:"max=5000"`
	Holding  string `json:"holding" validate:"max=5000"`
	Keywords string `json:"keywords" validate:"max=500"`
	IsActive *bool  `json:"is_active"`
}

type Page[T any] struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
	Pages    int   `json:"pages"`
	Items    []T   `json:"items"`
}

type UserListItem struct {
	ID              uuid.UUID `json:"id"`
	Email           string    `json:"email"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	IsStaff         bool      `json:"is_staff"`
	CreatedAt       time.Time `json:"created_at"`
	Documents       int64     `json:"documents"`
	PaidDocuments   int64     `json:"paid_documents"`
	FreeAIUsed      int       `json:"free_ai_generations_used"`
	ProfileComplete bool      `json:"profile_complete"`
}

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

func parsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return
}

func pages(total int64, size int) int {
	return int(math.Ceil(float64(total) / float64(size)))
}

func validCategory(cat string) bool {
	for _, c := range models.RightCategories {
		if c == cat {
			return true
		}
	}
	return false
}

/* ============================== Public ================================== */

// List case law godoc
// @Summary      List case law
// @Description  Active precedents, optionally for one right category
// @Tags         caselaw
// @Produce      json
// @Param        category  query  string  false  "right category"
// @Success      200  {array}  models.CaseLaw
// @Failure      400  {object}  models.ErrorResponse
// @Router       /caselaw [get]
func (h *Handler) List(c *fiber.Ctx) error {
	q := h.db.WithContext(c.UserContext()).Where("is_active = ?", true)
	if cat := strings.TrimSpace(c.Query("category")); cat != "" {
		if !validCategory(cat) {
			return fiber.NewError(fiber.StatusBadRequest, "unknown category")
		}
		q = q.Where("category = ?", cat)
	}
	rows := []models.CaseLaw{}
	if err := q.Order("category ASC, year DESC, name ASC").Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(rows)
}

/* =============================== Admin ================================== */

// @Summary      List all case law (staff)
// @Description  Includes inactive rows; paginated
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        category  query string false "right category"
// @Param        page      query int false "page"
// @Param        pageSize  query int false "pageSize"
// @Success      200  {object}  Page[models.CaseLaw]
// @Router       /admin/caselaw [get]
func (h *Handler) AdminList(c *fiber.Ctx) error {
	page, size := parsePage(c)
	q := h.db.WithContext(c.UserContext()).Model(&models.CaseLaw{})
	if cat := strings.TrimSpace(c.Query("category")); cat != "" {
		q = q.Where("category = ?", cat)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	rows := make([]models.CaseLaw, 0, size)
	if err := q.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(Page[models.CaseLaw]{Page: page, PageSize: size, Total: total, Pages: pages(total, size), Items: rows})
}

func (h *Handler) bind(c *fiber.Ctx) (*CaseLawRequest, error) {
	var in CaseLawRequest
	if err := c.BodyParser(&in); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Citation = strings.TrimSpace(in.Citation)
	in.Category = strings.TrimSpace(in.Category)
	if errs, _ := validation.Validate(in); errs != nil {
		return nil, validation.Respond(c, errs)
	}
	return &in, nil
}

func (in *CaseLawRequest) apply(row *models.CaseLaw) {
	row.Name = in.Name
	row.Citation = in.Citation
	row.Court = strings.TrimSpace(in.Court)
	row.Year = in.Year
	row.Category = in.Category
	row.Summary = strings.TrimSpace(in.Summary)
	row.Holding = strings.TrimSpace(in.Holding)
	row.Keywords = strings.TrimSpace(in.Keywords)
	if in.IsActive != nil {
		row.IsActive = *in.IsActive
	}
}

// @Summary      Create case law (staff)
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CaseLawRequest  true  "Case law"
// @Success      201  {object}  models.CaseLaw
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /admin/caselaw [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	in, err := h.bind(c)
	if in == nil {
		return err
	}
	row := models.CaseLaw{IsActive: true}
	in.apply(&row)
	if err := h.db.WithContext(c.UserContext()).Create(&row).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(row)
}

func (h *Handler) load(c *fiber.Ctx) (*models.CaseLaw, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, fiber.ErrNotFound
	}
	var row models.CaseLaw
	if err := h.db.WithContext(c.UserContext()).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.ErrNotFound
		}
		return nil, fiber.ErrInternalServerError
	}
	return &row, nil
}

// @Summary      Update case law (staff)
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string          true  "case law id"
// @Param        payload  body  CaseLawRequest  true  "Case law"
// @Success      200  {object}  models.CaseLaw
// @Failure      404  {object}  models.ErrorResponse
// @Router       /admin/caselaw/{id} [put]
func (h *Handler) Update(c *fiber.Ctx) error {
	row, err := h.load(c)
	if err != nil {
		return err
	}
	in, err := h.bind(c)
	if in == nil {
		return err
	}
	in.apply(row)
	if err := h.db.WithContext(c.UserContext()).Save(row).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(row)
}

// @Summary      Delete case law (staff)
// @Tags         admin
// @Security     BearerAuth
// @Param        id  path  string  true  "case law id"
// @Success      204
// @Router       /admin/caselaw/{id} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	row, err := h.load(c)
	if err != nil {
		return err
	}
	if err := h.db.WithContext(c.UserContext()).Delete(row).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type userRow struct {
	models.User
	Documents     int64
	PaidDocuments int64
}

// @Summary      List users (staff)
// @Description  Paginated, newest first, with document counts; q filters by email or name
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        q         query string false "search"
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Success      200  {object}  Page[UserListItem]
// @Router       /admin/users [get]
func (h *Handler) Users(c *fiber.Ctx) error {
	page, size := parsePage(c)
	db := h.db.WithContext(c.UserContext())

	filter := func(q *gorm.DB) *gorm.DB {
		if s := strings.ToLower(strings.TrimSpace(c.Query("q"))); s != "" {
			like := "%" + s + "%"
			q = q.Where("LOWER(users.email) LIKE ? OR LOWER(users.first_name) LIKE ? OR LOWER(users.last_name) LIKE ?",
				like, like, like)
		}
		return q
	}

	var total int64
	if err := filter(db.Model(&models.User{})).Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var rows []userRow
	err := filter(db.Table("users")).
		Select(`users.*,
          COUNT(documents.id) AS documents,
          COUNT(CASE WHEN documents.payment_status IN ('paid','finalized') THEN 1 END) AS paid_documents`).
		Joins("LEFT JOIN documents ON documents.user_id = users.id").
		Group("users.id").
		Order("users.created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Scan(&rows).Error
	if err != nil {
		return fiber.ErrInternalServerError
	}

	items := make([]UserListItem, 0, len(rows))
	for i := range rows {
		u := &rows[i].User
		items = append(items, UserListItem{
			ID:              u.ID,
			Email:           u.Email,
			FirstName:       u.FirstName,
			LastName:        u.LastName,
			IsStaff:         u.HasUnlimitedAccess(),
			CreatedAt:       u.CreatedAt,
			Documents:       rows[i].Documents,
			PaidDocuments:   rows[i].PaidDocuments,
			FreeAIUsed:      u.FreeAIGenerationsUsed,
			ProfileComplete: u.IsProfileComplete(),
		})
	}
	return c.JSON(Page[UserListItem]{Page: page, PageSize: size, Total: total, Pages: pages(total, size), Items: items})
}

// Mount registers the public listing.
func (h *Handler) Mount(r fiber.Router) {
	r.Get("/caselaw", h.List)
}

// MountAdmin registers the staff routes; r must already require staff.
func (h *Handler) MountAdmin(r fiber.Router) {
	r.Get("/caselaw", h.AdminList)
	r.Post("/caselaw", h.Create)
	r.Put("/caselaw/:id", h.Update)
	r.Delete("/caselaw/:id", h.Delete)
	r.Get("/users", h.Users)
}
