package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for /signup
type SignupRequest struct {
	Email         string `json:"email" validate:"required,email,max=120"`
	Password      string `json:"password" validate:"required,min=8,max=72"`
	FirstName     string `json:"first_name" validate:"required,min=1,max=60"`
	LastName      string `json:"last_name" validate:"required,min=1,max=60"`
	AcceptTerms   bool   `json:"accept_terms" validate:"eq=true"`
	AcceptPrivacy bool   `json:"accept_privacy" validate:"eq=true"`
}

// Request body for /login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required"`
}

// Standard auth response
type AuthResponse struct {
	Token string `json:"token"`
	Staff bool   `json:"staff"`
}

// Profile response for /me
type UserProfileResponse struct {
	ID                    uuid.UUID  `json:"id"`
	Email                 string     `json:"email"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name"`
	Phone                 string     `json:"phone"`
	Street                string     `json:"street"`
	City                  string     `json:"city"`
	State                 string     `json:"state"`
	ZipCode               string     `json:"zip_code"`
	IsStaff               bool       `json:"is_staff"`
	ProfileComplete       bool       `json:"profile_complete"`
	MissingFields         []string   `json:"missing_fields"`
	TermsAcceptedAt       *time.Time `json:"terms_accepted_at"`
	PrivacyAcceptedAt     *time.Time `json:"privacy_accepted_at"`
	FreeAIGenerationsUsed int        `json:"free_ai_generations_used"`
	FreeAIGenerationsCap  int        `json:"free_ai_generations_cap"`
	CreatedAt             time.Time  `json:"created_at"`
}

/* ============================== Handler ================================= */

type Handler struct {
	db      *gorm.DB
	tokens  *Tokens
	freeCap int
}

func NewHandler(db *gorm.DB, tokens *Tokens, freeAICap int) *Handler {
	return &Handler{db: db, tokens: tokens, freeCap: freeAICap}
}

/* =============================== Signup ================================= */

// @Summary      Sign up
// @Description  Register a new plaintiff account; both consents must be accepted
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  SignupRequest  true  "Signup payload"
// @Success      201      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      409      {object}  models.ErrorResponse  "email already exists"
// @Router       /signup [post]
func (h *Handler) Signup(c *fiber.Ctx) error {
	var in SignupRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return fiber.ErrInternalServerError
	}

	now := time.Now()
	u := models.User{
		Email:             in.Email,
		PasswordHash:      string(hash),
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		TermsAcceptedAt:   &now,
		PrivacyAcceptedAt: &now,
	}
	if err := h.db.WithContext(c.UserContext()).Create(&u).Error; err != nil {
		return fiber.NewError(fiber.StatusConflict, "email already exists")
	}

	token, err := h.tokens.Issue(u.ID.String(), u.HasUnlimitedAccess())
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(AuthResponse{Token: token, Staff: u.HasUnlimitedAccess()})
}

/* ================================ Login ================================= */

// @Summary      Login
// @Description  Authenticate and receive a JWT (web and mobile)
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  LoginRequest  true  "Login payload"
// @Success      200      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      401      {object}  models.ErrorResponse
// @Router       /login [post]
func (h *Handler) Login(c *fiber.Ctx) error {
	var in LoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var u models.User
	if err := h.db.WithContext(c.UserContext()).Where("email = ?", in.Email).First(&u).Error; err != nil {
		return fiber.ErrUnauthorized
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return fiber.ErrUnauthorized
	}

	token, err := h.tokens.Issue(u.ID.String(), u.HasUnlimitedAccess())
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(AuthResponse{Token: token, Staff: u.HasUnlimitedAccess()})
}

/* ================================= Me =================================== */

// @Summary      Get current user profile
// @Description  Profile, consent state and free AI allowance of the authenticated user
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  UserProfileResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /me [get]
func (h *Handler) Me(c *fiber.Ctx) error {
	u, err := CurrentUser(c, h.db)
	if err != nil {
		return err
	}
	return c.JSON(h.profileOf(u))
}

func (h *Handler) profileOf(u *models.User) UserProfileResponse {
	missing := u.MissingProfileFields()
	if missing == nil {
		missing = []string{}
	}
	return UserProfileResponse{
		ID:                    u.ID,
		Email:                 u.Email,
		FirstName:             u.FirstName,
		LastName:              u.LastName,
		Phone:                 u.Phone,
		Street:                u.Street,
		City:                  u.City,
		State:                 u.State,
		ZipCode:               u.ZipCode,
		IsStaff:               u.HasUnlimitedAccess(),
		ProfileComplete:       u.IsProfileComplete(),
		MissingFields:         missing,
		TermsAcceptedAt:       u.TermsAcceptedAt,
		PrivacyAcceptedAt:     u.PrivacyAcceptedAt,
		FreeAIGenerationsUsed: u.FreeAIGenerationsUsed,
		FreeAIGenerationsCap:  h.freeCap,
		CreatedAt:             u.CreatedAt,
	}
}
