package documents

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

type DefendantRequest struct {
	Name          string `json:"name" validate:"required,max=120"`
	BadgeNumber   string `json:"badge_number" validate:"max=40"`
	Title         string `json:"title" validate:"max=80"`
	AgencyName    string `json:"agency_name" validate:"max=160"`
	AgencyAddress string `json:"agency_address" validate:"max=240"`
	DefendantType string `json:"defendant_type" validate:"omitempty,oneof=individual agency municipality"`
	Capacity      string `json:"capacity" validate:"omitempty,oneof=individual official both"`
	Description   string `json:"description" validate:"max=4000"`
}

type WitnessRequest struct {
	Name         string `json:"name" validate:"required,max=120"`
	Phone        string `json:"phone" validate:"max=30"`
	Email        string `json:"email" validate:"omitempty,email,max=120"`
	Relationship string `json:"relationship" validate:"max=80"`
	Statement    string `json:"statement" validate:"max=8000"`
}

type EvidenceRequest struct {
	EvidenceType string `json:"evidence_type" validate:"required,oneof=video photo document medical other"`
	Description  string `json:"description" validate:"required,max=4000"`
	DateObtained string `json:"date_obtained" validate:"omitempty,isodate"`
	InPossession bool   `json:"in_possession"`
	VideoURL     string `json:"video_url" validate:"omitempty,url,max=500"`
}

/* ============================ Apply helpers ============================= */

func (in DefendantRequest) apply(d *models.Defendant) {
	d.Name = strings.TrimSpace(in.Name)
	d.BadgeNumber = strings.TrimSpace(in.BadgeNumber)
	d.Title = strings.TrimSpace(in.Title)
	d.AgencyName = strings.TrimSpace(in.AgencyName)
	d.AgencyAddress = strings.TrimSpace(in.AgencyAddress)
	d.DefendantType = models.DefendantIndividual
	if in.DefendantType != "" {
		d.DefendantType = models.DefendantType(in.DefendantType)
	}
	d.Capacity = models.CapacityBoth
	if in.Capacity != "" {
		d.Capacity = models.Capacity(in.Capacity)
	}
	d.Description = strings.TrimSpace(in.Description)
}

func (in WitnessRequest) apply(w *models.Witness) {
	w.Name = strings.TrimSpace(in.Name)
	w.Phone = strings.TrimSpace(in.Phone)
	w.Email = strings.TrimSpace(in.Email)
	w.Relationship = strings.TrimSpace(in.Relationship)
	w.Statement = strings.TrimSpace(in.Statement)
}

func (in EvidenceRequest) apply(e *models.Evidence) {
	e.EvidenceType = models.EvidenceType(in.EvidenceType)
	e.Description = strings.TrimSpace(in.Description)
	e.DateObtained, _ = validation.ParseDate(in.DateObtained) // isodate-validated
	e.InPossession = in.InPossession
	e.VideoURL = strings.TrimSpace(in.VideoURL)
}

// Row builds a new defendant row for docID.
func (in DefendantRequest) Row(docID uuid.UUID) *models.Defendant {
	d := &models.Defendant{DocumentID: docID}
	in.apply(d)
	return d
}

func (in WitnessRequest) Row(docID uuid.UUID) *models.Witness {
	w := &models.Witness{DocumentID: docID}
	in.apply(w)
	return w
}

func (in EvidenceRequest) Row(docID uuid.UUID) *models.Evidence {
	e := &models.Evidence{DocumentID: docID}
	in.apply(e)
	return e
}

// SyncListSection marks a list section completed once it has rows and back
// to in_progress when the last row is removed. not_applicable is kept while empty.
func SyncListSection(tx *gorm.DB, docID uuid.UUID, st models.SectionType, model any) error {
	var n int64
	if err := tx.Model(model).Where("document_id = ?", docID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return SetSectionStatus(tx, docID, st, models.SectionCompleted)
	}
	return tx.Model(&models.DocumentSection{}).
		Where("document_id = ? AND section_type = ? AND status <> ?", docID, st, models.SectionNotApplicable).
		Update("status", models.SectionInProgress).Error
}

// listItem wires the shared add/update/delete flow for one child table.
type listItem[T any, R any] struct {
	section models.SectionType
	apply   func(R, *T)
}

func (li listItem[T, R]) add(h *Handler, c *fiber.Ctx, newRow func(uuid.UUID) *T) error {
	var in R
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

	row := newRow(doc.ID)
	li.apply(in, row)
	err = h.svc.DB().WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		return SyncListSection(tx, doc.ID, li.section, new(T))
	})
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(row)
}

func (li listItem[T, R]) update(h *Handler, c *fiber.Ctx) error {
	itemID, err := ParamID(c, "itemId")
	if err != nil {
		return err
	}
	var in R
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

	var row T
	db := h.svc.DB().WithContext(c.UserContext())
	if err := db.Where("id = ? AND document_id = ?", itemID, doc.ID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	li.apply(in, &row)
	if err := db.Save(&row).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.JSON(row)
}

func (li listItem[T, R]) remove(h *Handler, c *fiber.Ctx, cleanup func(*T)) error {
	itemID, err := ParamID(c, "itemId")
	if err != nil {
		return err
	}
	doc, err := h.editable(c)
	if err != nil {
		return err
	}

	var row T
	err = h.svc.DB().WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND document_id = ?", itemID, doc.ID).Take(&row).Error; err != nil {
			return err
		}
		if err := tx.Delete(&row).Error; err != nil {
			return err
		}
		return SyncListSection(tx, doc.ID, li.section, new(T))
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	if cleanup != nil {
		cleanup(&row)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

var (
	defendantItems = listItem[models.Defendant, DefendantRequest]{
		section: models.SectionDefendants,
		apply:   func(in DefendantRequest, d *models.Defendant) { in.apply(d) },
	}
	witnessItems = listItem[models.Witness, WitnessRequest]{
		section: models.SectionWitnesses,
		apply:   func(in WitnessRequest, w *models.Witness) { in.apply(w) },
	}
	evidenceItems = listItem[models.Evidence, EvidenceRequest]{
		section: models.SectionEvidence,
		apply:   func(in EvidenceRequest, e *models.Evidence) { in.apply(e) },
	}
)

/* ============================== Defendants ============================== */

// @Summary      Add defendant
// @Tags         sections
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string            true  "document id (uuid)"
// @Param        payload  body  DefendantRequest  true  "Defendant"
// @Success      201  {object}  models.Defendant
// @Router       /documents/{id}/defendants [post]
func (h *Handler) AddDefendant(c *fiber.Ctx) error {
	return defendantItems.add(h, c, func(docID uuid.UUID) *models.Defendant {
		return &models.Defendant{DocumentID: docID}
	})
}

// @Summary      Update defendant
// @Tags         sections
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string            true  "document id (uuid)"
// @Param        itemId   path  string            true  "defendant id (uuid)"
// @Param        payload  body  DefendantRequest  true  "Defendant"
// @Success      200  {object}  models.Defendant
// @Router       /documents/{id}/defendants/{itemId} [put]
func (h *Handler) UpdateDefendant(c *fiber.Ctx) error {
	return defendantItems.update(h, c)
}

// @Summary      Delete defendant
// @Tags         sections
// @Security     BearerAuth
// @Param        id      path  string  true  "document id (uuid)"
// @Param        itemId  path  string  true  "defendant id (uuid)"
// @Success      204
// @Router       /documents/{id}/defendants/{itemId} [delete]
func (h *Handler) DeleteDefendant(c *fiber.Ctx) error {
	return defendantItems.remove(h, c, nil)
}

/* =============================== Witnesses ============================== */

// @Summary      Add witness
// @Tags         sections
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string          true  "document id (uuid)"
// @Param        payload  body  WitnessRequest  true  "Witness"
// @Success      201  {object}  models.Witness
// @Router       /documents/{id}/witnesses [post]
func (h *Handler) AddWitness(c *fiber.Ctx) error {
	return witnessItems.add(h, c, func(docID uuid.UUID) *models.Witness {
		return &models.Witness{DocumentID: docID}
	})
}

// @Summary      Update witness
// @Tags         sections
// @Security     BearerAuth
// @Router       /documents/{id}/witnesses/{itemId} [put]
func (h *Handler) UpdateWitness(c *fiber.Ctx) error {
	return witnessItems.update(h, c)
}

// @Summary      Delete witness
// @Tags         sections
// @Security     BearerAuth
// @Router       /documents/{id}/witnesses/{itemId} [delete]
func (h *Handler) DeleteWitness(c *fiber.Ctx) error {
	return witnessItems.remove(h, c, nil)
}

/* =============================== Evidence =============================== */

// @Summary      Add evidence item
// @Tags         sections
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string           true  "document id (uuid)"
// @Param        payload  body  EvidenceRequest  true  "Evidence"
// @Success      201  {object}  models.Evidence
// @Router       /documents/{id}/evidence [post]
func (h *Handler) AddEvidence(c *fiber.Ctx) error {
	return evidenceItems.add(h, c, func(docID uuid.UUID) *models.Evidence {
		return &models.Evidence{DocumentID: docID}
	})
}

// @Summary      Update evidence item
// @Tags         sections
// @Security     BearerAuth
// @Router       /documents/{id}/evidence/{itemId} [put]
func (h *Handler) UpdateEvidence(c *fiber.Ctx) error {
	return evidenceItems.update(h, c)
}

// @Summary      Delete evidence item
// @Description  Also removes the uploaded file from storage (best effort)
// @Tags         sections
// @Security     BearerAuth
// @Router       /documents/{id}/evidence/{itemId} [delete]
func (h *Handler) DeleteEvidence(c *fiber.Ctx) error {
	ctx := c.UserContext()
	return evidenceItems.remove(h, c, func(e *models.Evidence) {
		if e.StorageKey == "" {
			return
		}
		if err := h.store.Delete(ctx, e.StorageKey); err != nil {
			h.svc.log.Error(ctx, "delete evidence object", err)
		}
	})
}
