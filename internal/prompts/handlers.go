package prompts

import (
	"errors"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

type UpsertRequest struct {
	Description   string  `json:"description" validate:"max=200"`
	SystemMessage string  `json:"system_message" validate:"max=20000"`
	UserTemplate  string  `json:"user_template" validate:"required,max=20000"`
	Model         string  `json:"model" validate:"max=80"`
	Temperature   float64 `json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens     int     `json:"max_tokens" validate:"gte=0,lte=16000"`
	JSONMode      bool    `json:"json_mode"`
	IsActive      *bool   `json:"is_active"`
}

type PreviewRequest struct {
	Values map[string]string `json:"values"`
}

type PromptSummary struct {
	Key         string `json:"key"`
	Description string `json:"description"`
	HasDefault  bool   `json:"has_default"`
	Overridden  bool   `json:"overridden"`
	Active      bool   `json:"active"`
}

/* ============================== Handler ================================= */

type Handler struct {
	db    *gorm.DB
	store *Store
}

func NewHandler(db *gorm.DB, store *Store) *Handler { return &Handler{db: db, store: store} }

// @Summary      List prompts
// @Description  Built-in prompts merged with database overrides (staff)
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  PromptSummary
// @Router       /admin/prompts [get]
func (h *Handler) List(c *fiber.Ctx) error {
	var rows []models.AIPrompt
	if err := h.db.WithContext(c.UserContext()).Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	byKey := map[string]*PromptSummary{}
	for _, k := range h.store.DefaultKeys() {
		d, _ := h.store.Default(k)
		byKey[k] = &PromptSummary{Key: k, Description: d.Description, HasDefault: true, Active: true}
	}
	for _, r := range rows {
		s, ok := byKey[r.Key]
		if !ok {
			s = &PromptSummary{Key: r.Key}
			byKey[r.Key] = s
		}
		if r.Description != "" {
			s.Description = r.Description
		}
		s.Overridden = r.IsActive
		s.Active = r.IsActive || s.HasDefault
	}
	out := make([]PromptSummary, 0, len(byKey))
	for _, s := range byKey {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return c.JSON(out)
}

// @Summary      Get prompt
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        key  path  string  true  "Prompt key"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  models.ErrorResponse
// @Router       /admin/prompts/{key} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	key := c.Params("key")
	p, err := h.store.Get(c.UserContext(), key)
	if errors.Is(err, ErrPromptNotFound) {
		return fiber.ErrNotFound
	}
	if err != nil {
		return fiber.ErrInternalServerError
	}
	resp := fiber.Map{"effective": p}
	if d, ok := h.store.Default(key); ok {
		resp["default"] = d
	}
	placeholders, _ := Placeholders(p.User)
	resp["placeholders"] = placeholders
	return c.JSON(resp)
}

// @Summary      Create or replace a prompt override
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        key      path  string         true  "Prompt key"
// @Param        payload  body  UpsertRequest  true  "Prompt"
// @Success      200  {object}  models.AIPrompt
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /admin/prompts/{key} [put]
func (h *Handler) Upsert(c *fiber.Ctx) error {
	key := strings.TrimSpace(c.Params("key"))
	if key == "" || len(key) > 60 {
		return fiber.ErrBadRequest
	}
	var in UpsertRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	if _, err := Placeholders(in.UserTemplate); err != nil {
		return validation.Field(c, "user_template", err.Error())
	}
	if _, err := Placeholders(in.SystemMessage); err != nil {
		return validation.Field(c, "system_message", err.Error())
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	row := models.AIPrompt{
		Key:           key,
		Description:   in.Description,
		SystemMessage: in.SystemMessage,
		UserTemplate:  in.UserTemplate,
		Model:         in.Model,
		Temperature:   in.Temperature,
		MaxTokens:     in.MaxTokens,
		JSONMode:      in.JSONMode,
		IsActive:      active,
	}
	err := h.db.WithContext(c.UserContext()).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"description", "system_message", "user_template", "model",
			"temperature", "max_tokens", "json_mode", "is_active", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fiber.ErrInternalServerError
	}
	h.store.Invalidate(c.UserContext(), key)

	var saved models.AIPrompt
	if err := h.db.WithContext(c.UserContext()).Where(&models.AIPrompt{Key: key}).First(&saved).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(saved)
}

// @Summary      Delete a prompt override
// @Description  The built-in default (if any) takes effect again
// @Tags         admin
// @Security     BearerAuth
// @Param        key  path  string  true  "Prompt key"
// @Success      204
// @Router       /admin/prompts/{key} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	key := c.Params("key")
	res := h.db.WithContext(c.UserContext()).Where(&models.AIPrompt{Key: key}).Delete(&models.AIPrompt{})
	if res.Error != nil {
		return fiber.ErrInternalServerError
	}
	if res.RowsAffected == 0 {
		return fiber.ErrNotFound
	}
	h.store.Invalidate(c.UserContext(), key)
	return c.SendStatus(fiber.StatusNoContent)
}

// @Summary      Preview a prompt
// @Description  Render the effective user template with the given values
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        key      path  string          true  "Prompt key"
// @Param        payload  body  PreviewRequest  true  "Values"
// @Success      200  {object}  map[string]string
// @Failure      422  {object}  models.ErrorResponse
// @Router       /admin/prompts/{key}/preview [post]
func (h *Handler) Preview(c *fiber.Ctx) error {
	var in PreviewRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	p, out, err := h.store.RenderUser(c.UserContext(), c.Params("key"), in.Values)
	switch {
	case errors.Is(err, ErrPromptNotFound):
		return fiber.ErrNotFound
	case errors.Is(err, ErrMissingPlaceholder), errors.Is(err, ErrMalformedTemplate):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case err != nil:
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"system": p.System, "user": out})
}
