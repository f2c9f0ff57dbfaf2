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

/* ============================ Section DTOs ============================== */

type PlaintiffRequest struct {
	FirstName  string `json:"first_name" validate:"max=60"`
	LastName   string `json:"last_name" validate:"max=60"`
	Street     string `json:"street" validate:"max=160"`
	City       string `json:"city" validate:"max=80"`
	State      string `json:"state" validate:"omitempty,usstate"`
	ZipCode    string `json:"zip_code" validate:"omitempty,zip5"`
	Phone      string `json:"phone" validate:"max=30"`
	Email      string `json:"email" validate:"omitempty,email,max=120"`
	IsPrisoner bool   `json:"is_prisoner"`
	PrisonerID string `json:"prisoner_id" validate:"max=40"`
	Facility   string `json:"facility" validate:"max=160"`
}

type IncidentRequest struct {
	IncidentDate        string `json:"incident_date" validate:"omitempty,isodate"`
	IncidentTime        string `json:"incident_time" validate:"omitempty,hhmm"`
	Street              string `json:"street" validate:"max=160"`
	City                string `json:"city" validate:"max=80"`
	State               string `json:"state" validate:"omitempty,usstate"`
	ZipCode             string `json:"zip_code" validate:"omitempty,zip5"`
	LocationDescription string `json:"location_description" validate:"max=2000"`
	WasRecording        bool   `json:"was_recording"`
	Summary             string `json:"summary" validate:"max=4000"`
}

type NarrativeRequest struct {
	BeforeIncident string `json:"before_incident" validate:"max=10000"`
	DuringIncident string `json:"during_incident" validate:"max=20000"`
	AfterIncident  string `json:"after_incident" validate:"max=10000"`
	FullNarrative  string `json:"full_narrative" validate:"max=40000"`
}

type RightsRequest struct {
	// Rights lists the checked categories, e.g. "fourth_amendment_excessive_force".
	Rights  []string `json:"rights" validate:"dive,oneof=first_amendment_speech first_amendment_retaliation fourth_amendment_search fourth_amendment_seizure fourth_amendment_excessive_force eighth_amendment fourteenth_due_process fourteenth_equal_protection"`
	Details string   `json:"details" validate:"max=10000"`
}

type DamagesRequest struct {
	PhysicalInjury       bool   `json:"physical_injury"`
	PhysicalDescription  string `json:"physical_description" validate:"max=4000"`
	EmotionalDistress    bool   `json:"emotional_distress"`
	EmotionalDescription string `json:"emotional_description" validate:"max=4000"`
	FinancialLoss        bool   `json:"financial_loss"`
	MedicalExpenses      string `json:"medical_expenses" validate:"omitempty,money"`
	LostWages            string `json:"lost_wages" validate:"omitempty,money"`
	PropertyDamage       string `json:"property_damage" validate:"omitempty,money"`
	OtherAmount          string `json:"other_amount" validate:"omitempty,money"`
	Description          string `json:"description" validate:"max=4000"`
}

type PriorComplaintsRequest struct {
	FiledComplaint  bool   `json:"filed_complaint"`
	AgencyName      string `json:"agency_name" validate:"required_if=FiledComplaint true,max=160"`
	ComplaintDate   string `json:"complaint_date" validate:"omitempty,isodate"`
	ComplaintNumber string `json:"complaint_number" validate:"max=60"`
	Outcome         string `json:"outcome" validate:"max=4000"`
}

type ReliefRequest struct {
	Compensatory    bool   `json:"compensatory"`
	Punitive        bool   `json:"punitive"`
	Declaratory     bool   `json:"declaratory"`
	Injunctive      bool   `json:"injunctive"`
	AttorneyFees    bool   `json:"attorney_fees"`
	JuryTrial       bool   `json:"jury_trial"`
	AmountRequested string `json:"amount_requested" validate:"omitempty,money"`
	OtherRelief     string `json:"other_relief" validate:"max=4000"`
}

/* ========================= Completeness rules =========================== */

func PlaintiffComplete(p *models.PlaintiffInfo) bool {
	return allSet(p.FirstName, p.LastName, p.Street, p.City, p.State, p.ZipCode)
}

func IncidentComplete(o *models.IncidentOverview) bool {
	return o.IncidentDate != nil && allSet(o.City, o.State, o.Summary)
}

func NarrativeComplete(n *models.IncidentNarrative) bool {
	return allSet(n.FullNarrative) || allSet(n.DuringIncident)
}

func RightsComplete(r *models.RightsViolated) bool {
	return len(r.Selected()) > 0
}

func DamagesComplete(d *models.Damages) bool {
	return d.PhysicalInjury || d.EmotionalDistress || d.FinancialLoss ||
		d.Total().IsPositive() || allSet(d.Description)
}

// PriorComplaintsComplete: "no prior complaint" is a complete answer.
func PriorComplaintsComplete(p *models.PriorComplaints) bool {
	return !p.FiledComplaint || allSet(p.AgencyName)
}

func ReliefComplete(r *models.ReliefSought) bool {
	return r.Compensatory || r.Punitive || r.Declaratory || r.Injunctive || r.AttorneyFees || allSet(r.OtherRelief)
}

func allSet(vals ...string) bool {
	for _, v := range vals {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

/* ============================ Save helpers ============================== */

// loadChild reads the one-to-one row of a document into row; a missing row
// leaves row zeroed so Save inserts it.
func loadChild[T any](tx *gorm.DB, docID uuid.UUID, row *T) error {
	err := tx.Where("document_id = ?", docID).Take(row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// saveSection binds and validates in, then runs apply inside a transaction
// that also stores the section status it returns.
func saveSection[T any](h *Handler, c *fiber.Ctx, st models.SectionType, in *T,
	apply func(tx *gorm.DB, docID uuid.UUID) (any, bool, error),
) error {
	if err := c.BodyParser(in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	doc, err := h.editable(c)
	if err != nil {
		return err
	}

	var data any
	err = h.svc.DB().WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		var complete bool
		var err error
		data, complete, err = apply(tx, doc.ID)
		if err != nil {
			return err
		}
		return SetSectionStatus(tx, doc.ID, st, statusFor(complete))
	})
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return fe
		}
		return fiber.ErrInternalServerError
	}
	return h.sectionResponse(c, doc.ID, st, data)
}

func badField(field, msg string) error {
	return fiber.NewError(fiber.StatusBadRequest, field+": "+msg)
}

/* =========================== Section saves ============================== */

// @Summary      Save plaintiff information
// @Tags         sections
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string            true  "document id (uuid)"
// @Param        payload  body  PlaintiffRequest  true  "Plaintiff"
// @Success      200  {object}  map[string]any
// @Failure      403  {object}  models.ErrorResponse  "expired or finalized"
// @Router       /documents/{id}/sections/plaintiff_info [put]
func (h *Handler) SavePlaintiff(c *fiber.Ctx) error {
	var in PlaintiffRequest
	return saveSection(h, c, models.SectionPlaintiffInfo, &in, func(tx *gorm.DB, docID uuid.UUID) (any, bool, error) {
		var row models.PlaintiffInfo
		if err := loadChild(tx, docID, &row); err != nil {
			return nil, false, err
		}
		row.DocumentID = docID
		row.FirstName = strings.TrimSpace(in.FirstName)
		row.LastName = strings.TrimSpace(in.LastName)
		row.Street = strings.TrimSpace(in.Street)
		row.City = strings.TrimSpace(in.City)
		row.State = validation.NormalizeState(in.State)
		row.ZipCode = strings.TrimSpace(in.ZipCode)
		row.Phone = strings.TrimSpace(in.Phone)
		row.Email = strings.TrimSpace(in.Email)
		row.IsPrisoner = in.IsPrisoner
		row.PrisonerID = strings.TrimSpace(in.PrisonerID)
		row.Facility = strings.TrimSpace(in.Facility)
		if err := tx.Save(&row).Error; err != nil {
			return nil, false, err
		}
		return row, PlaintiffComplete(&row), nil
	})
}

// @Summary      Save incident overview
// @Tags         sections
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string           true  "document id (uuid)"
// @Param        payload  body  IncidentRequest  true  "Incident"
// @Success      200  {object}  map[string]any
// @Router       /documents/{id}/sections/incident_overview [put]
func (h *Handler) SaveIncident(c *fiber.Ctx) error {
	var in IncidentRequest
	return saveSection(h, c, models.SectionIncidentOverview, &in, func(tx *gorm.DB, docID uuid.UUID) (any, bool, error) {
		date, err := validation.ParseDate(in.IncidentDate)
		if err != nil {
			return nil, false, badField("incident_date", err.Error())
		}
		var row models.IncidentOverview
		if err := loadChild(tx, docID, &row); err != nil {
			return nil, false, err
		}
		row.DocumentID = docID
		row.IncidentDate = date
		row.IncidentTime = strings.TrimSpace(in.IncidentTime)
		row.Street = strings.TrimSpace(in.Street)
		row.City = strings.TrimSpace(in.City)
		row.State = validation.NormalizeState(in.State)
		row.ZipCode = strings.TrimSpace(in.ZipCode)
		row.LocationDescription = strings.TrimSpace(in.LocationDescription)
		row.WasRecording = in.WasRecording
		row.Summary = strings.TrimSpace(in.Summary)
		if err := tx.Save(&row).Error; err != nil {
			return nil, false, err
		}
		return row, IncidentComplete(&row), nil
	})
}

// @Summary      Save narrative
// @Tags         sections
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string            true  "document id (uuid)"
// @Param        payload  body  NarrativeRequest  true  "Narrative"
// @Success      200  {object}  map[string]any
// @Router       /documents/{id}/sections/narrative [put]
func (h *Handler) SaveNarrative(c *fiber.Ctx) error {
	var in NarrativeRequest
	return saveSection(h, c, models.SectionNarrative, &in, func(tx *gorm.DB, docID uuid.UUID) (any, bool, error) {
		var row models.IncidentNarrative
		if err := loadChild(tx, docID, &row); err != nil {
			return nil, false, err
		}
		row.DocumentID = docID
		row.BeforeIncident = strings.TrimSpace(in.BeforeIncident)
		row.DuringIncident = strings.TrimSpace(in.DuringIncident)
		row.AfterIncident = strings.TrimSpace(in.AfterIncident)
		row.FullNarrative = strings.TrimSpace(in.FullNarrative)
		if err := tx.Save(&row).Error; err != nil {
			return nil, false, err
		}
		return row, NarrativeComplete(&row), nil
	})
}

// @Summary      Save rights violated
// @Tags         sections
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true  "document id (uuid)"
// @Param        payload  body  RightsRequest  true  "Checked rights"
// @Success      200  {object}  map[string]any
// @Router       /documents/{id}/sections/rights_violated [put]
func (h *Handler) SaveRights(c *fiber.Ctx) error {
	var in RightsRequest
	return saveSection(h, c, models.SectionRightsViolated, &in, func(tx *gorm.DB, docID uuid.UUID) (any, bool, error) {
		var row models.RightsViolated
		if err := loadChild(tx, docID, &row); err != nil {
			return nil, false, err
		}
		row.DocumentID = docID
		for _, cat := range models.RightCategories {
			row.Set(cat, false)
		}
		for _, cat := range in.Rights {
			row.Set(cat, true)
		}
		row.Details = strings.TrimSpace(in.Details)
		if err := tx.Save(&row).Error; err != nil {
			return nil, false, err
		}
		return row, RightsComplete(&row), nil
	})
}

// @Summary      Save damages
// @Tags         sections
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string          true  "document id (uuid)"
// @Param        payload  body  DamagesRequest  true  "Damages; amounts as dollar strings"
// @Success      200  {object}  map[string]any
// @Router       /documents/{id}/sections/damages [put]
func (h *Handler) SaveDamages(c *fiber.Ctx) error {
	var in DamagesRequest
	return saveSection(h, c, models.SectionDamages, &in, func(tx *gorm.DB, docID uuid.UUID) (any, bool, error) {
		var row models.Damages
		if err := loadChild(tx, docID, &row); err != nil {
			return nil, false, err
		}
		row.DocumentID = docID
		row.PhysicalInjury = in.PhysicalInjury
		row.PhysicalDescription = strings.TrimSpace(in.PhysicalDescription)
		row.EmotionalDistress = in.EmotionalDistress
		row.EmotionalDescription = strings.TrimSpace(in.EmotionalDescription)
		row.FinancialLoss = in.FinancialLoss
		row.Description = strings.TrimSpace(in.Description)

		// validated by the money tag already
		row.MedicalExpenses, _ = validation.ParseMoney(in.MedicalExpenses)
		row.LostWages, _ = validation.ParseMoney(in.LostWages)
		row.PropertyDamage, _ = validation.ParseMoney(in.PropertyDamage)
		row.OtherAmount, _ = validation.ParseMoney(in.OtherAmount)

		if err := tx.Save(&row).Error; err != nil {
			return nil, false, err
		}
		return fiber.Map{"damages": row, "total": row.Total().StringFixed(2)}, DamagesComplete(&row), nil
	})
}

// @Summary      Save prior complaints
// @Tags         sections
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                  true  "document id (uuid)"
// @Param        payload  body  PriorComplaintsRequest  true  "Prior complaints"
// @Success      200  {object}  map[string]any
// @Router       /documents/{id}/sections/prior_complaints [put]
func (h *Handler) SavePriorComplaints(c *fiber.Ctx) error {
	var in PriorComplaintsRequest
	return saveSection(h, c, models.SectionPriorComplaints, &in, func(tx *gorm.DB, docID uuid.UUID) (any, bool, error) {
		date, err := validation.ParseDate(in.ComplaintDate)
		if err != nil {
			return nil, false, badField("complaint_date", err.Error())
		}
		var row models.PriorComplaints
		if err := loadChild(tx, docID, &row); err != nil {
			return nil, false, err
		}
		row.DocumentID = docID
		row.FiledComplaint = in.FiledComplaint
		row.AgencyName = strings.TrimSpace(in.AgencyName)
		row.ComplaintDate = date
		row.ComplaintNumber = strings.TrimSpace(in.ComplaintNumber)
		row.Outcome = strings.TrimSpace(in.Outcome)
		if err := tx.Save(&row).Error; err != nil {
			return nil, false, err
		}
		return row, PriorComplaintsComplete(&row), nil
	})
}

// @Summary      Save relief sought
// @Tags         sections
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true  "document id (uuid)"
// @Param        payload  body  ReliefRequest  true  "Relief"
// @Success      200  {object}  map[string]any
// @Router       /documents/{id}/sections/relief_sought [put]
func (h *Handler) SaveRelief(c *fiber.Ctx) error {
	var in ReliefRequest
	return saveSection(h, c, models.SectionReliefSought, &in, func(tx *gorm.DB, docID uuid.UUID) (any, bool, error) {
		var row models.ReliefSought
		if err := loadChild(tx, docID, &row); err != nil {
			return nil, false, err
		}
		row.DocumentID = docID
		row.Compensatory = in.Compensatory
		row.Punitive = in.Punitive
		row.Declaratory = in.Declaratory
		row.Injunctive = in.Injunctive
		row.AttorneyFees = in.AttorneyFees
		row.JuryTrial = in.JuryTrial
		row.AmountRequested, _ = validation.ParseMoney(in.AmountRequested)
		row.OtherRelief = strings.TrimSpace(in.OtherRelief)
		if err := tx.Save(&row).Error; err != nil {
			return nil, false, err
		}
		return row, ReliefComplete(&row), nil
	})
}
