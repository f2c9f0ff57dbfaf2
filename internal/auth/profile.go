package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aldoetobex/section1983-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for PUT /me/profile. Omitted fields are left unchanged.
type ProfileUpdateRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,min=1,max=60"`
	LastName  *string `json:"last_name" validate:"omitempty,min=1,max=60"`
	Phone     *string `json:"phone" validate:"omitempty,max=30"`
	Street    *string `json:"street" validate:"omitempty,max=200"`
	City      *string `json:"city" validate:"omitempty,max=100"`
	State     *string `json:"state" validate:"omitempty,usstate"`
	ZipCode   *string `json:"zip_code" validate:"omitempty,zip5"`
}

type ConsentRequest struct {
	AcceptTerms   bool `json:"accept_terms"`
	AcceptPrivacy bool `json:"accept_privacy"`
}

/* =============================== Profile ================================ */

// @Summary      Update profile
// @Description  Update the address fields used to pre-fill new documents
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  ProfileUpdateRequest  true  "Profile fields"
// @Success      200  {object}  UserProfileResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /me/profile [put]
func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	var in ProfileUpdateRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	u, err := CurrentUser(c, h.db)
	if err != nil {
		return err
	}

	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&u.FirstName, in.FirstName)
	set(&u.LastName, in.LastName)
	set(&u.Phone, in.Phone)
	set(&u.Street, in.Street)
	set(&u.City, in.City)
	set(&u.ZipCode, in.ZipCode)
	if in.State != nil {
		u.State = validation.NormalizeState(*in.State)
	}

	if err := h.db.WithContext(c.UserContext()).Model(u).Select(
		"first_name", "last_name", "phone", "street", "city", "state", "zip_code",
	).Updates(u).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(h.profileOf(u))
}

// @Summary      Accept consents
// @Description  Record acceptance of the terms of service and privacy policy
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  ConsentRequest  true  "Consents"
// @Success      200  {object}  UserProfileResponse
// @Router       /me/consents [post]
func (h *Handler) AcceptConsents(c *fiber.Ctx) error {
	var in ConsentRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if !in.AcceptTerms && !in.AcceptPrivacy {
		return validation.Field(c, "accept_terms", "Accept at least one document")
	}

	u, err := CurrentUser(c, h.db)
	if err != nil {
		return err
	}
	now := time.Now()
	updates := map[string]any{}
	if in.AcceptTerms && u.TermsAcceptedAt == nil {
		u.TermsAcceptedAt = &now
		updates["terms_accepted_at"] = now
	}
	if in.AcceptPrivacy && u.PrivacyAcceptedAt == nil {
		u.PrivacyAcceptedAt = &now
		updates["privacy_accepted_at"] = now
	}
	if len(updates) > 0 {
		if err := h.db.WithContext(c.UserContext()).Model(u).Updates(updates).Error; err != nil {
			return fiber.ErrInternalServerError
		}
	}
	return c.JSON(h.profileOf(u))
}
