package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

/* =============================== Enums ================================== */

// PaymentStatus gates editing and AI usage on a document.
type PaymentStatus string

const (
	PaymentDraft     PaymentStatus = "draft"
	PaymentPaid      PaymentStatus = "paid"
	PaymentFinalized PaymentStatus = "finalized"
	PaymentExpired   PaymentStatus = "expired"
)

// SectionType names one of the ten questionnaire sections.
type SectionType string

const (
	SectionPlaintiffInfo    SectionType = "plaintiff_info"
	SectionIncidentOverview SectionType = "incident_overview"
	SectionDefendants       SectionType = "defendants"
	SectionNarrative        SectionType = "narrative"
	SectionRightsViolated   SectionType = "rights_violated"
	SectionWitnesses        SectionType = "witnesses"
	SectionEvidence         SectionType = "evidence"
	SectionDamages          SectionType = "damages"
	SectionPriorComplaints  SectionType = "prior_complaints"
	SectionReliefSought     SectionType = "relief_sought"
)

// SectionTypes is the fixed display order of the ten sections.
var SectionTypes = []SectionType{
	SectionPlaintiffInfo,
	SectionIncidentOverview,
	SectionDefendants,
	SectionNarrative,
	SectionRightsViolated,
	SectionWitnesses,
	SectionEvidence,
	SectionDamages,
	SectionPriorComplaints,
	SectionReliefSought,
}

var sectionTitles = map[SectionType]string{
	SectionPlaintiffInfo:    "Plaintiff Information",
	SectionIncidentOverview: "Incident Overview",
	SectionDefendants:       "Defendants",
	SectionNarrative:        "Statement of What Happened",
	SectionRightsViolated:   "Rights Violated",
	SectionWitnesses:        "Witnesses",
	SectionEvidence:         "Evidence",
	SectionDamages:          "Damages",
	SectionPriorComplaints:  "Prior Complaints",
	SectionReliefSought:     "Relief Sought",
}

func (s SectionType) Title() string { return sectionTitles[s] }

func (s SectionType) Valid() bool {
	_, ok := sectionTitles[s]
	return ok
}

// SectionStatus tracks progress on a single section.
type SectionStatus string

const (
	SectionNotStarted    SectionStatus = "not_started"
	SectionInProgress    SectionStatus = "in_progress"
	SectionNeedsWork     SectionStatus = "needs_work"
	SectionCompleted     SectionStatus = "completed"
	SectionNotApplicable SectionStatus = "not_applicable"
)

// Done reports whether the section counts toward completion.
func (s SectionStatus) Done() bool {
	return s == SectionCompleted || s == SectionNotApplicable
}

// JobStatus is the polled status column written by detached AI jobs.
type JobStatus string

const (
	JobIdle       JobStatus = "idle"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

/* =============================== Entities =============================== */

// Base carries the UUID key and timestamps shared by every table. The key is
// generated in Go so postgres and sqlite behave the same.
type Base struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// User is a plaintiff (or staff member). Profile fields pre-fill legal documents.
type User struct {
	Base
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone"`
	Street       string `json:"street"`
	City         string `json:"city"`
	State        string `gorm:"type:varchar(2)" json:"state"`
	ZipCode      string `gorm:"type:varchar(10)" json:"zip_code"`

	IsStaff     bool `gorm:"not null;default:false" json:"is_staff"`
	IsSuperuser bool `gorm:"not null;default:false" json:"is_superuser"`

	TermsAcceptedAt   *time.Time `json:"terms_accepted_at"`
	PrivacyAcceptedAt *time.Time `json:"privacy_accepted_at"`

	FreeAIGenerationsUsed int `gorm:"not null;default:0" json:"free_ai_generations_used"`
	TotalAIGenerations    int `gorm:"not null;default:0" json:"total_ai_generations"`

	StripeCustomerID string `json:"-"`
}

// Document is one complaint draft.
type Document struct {
	Base
	UserID        uuid.UUID     `gorm:"type:uuid;not null;index" json:"user_id"`
	Title         string        `gorm:"not null" json:"title"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20);not null;default:'draft';index" json:"payment_status"`

	CourtDistrict   string `json:"court_district"`
	CourtState      string `gorm:"type:varchar(2)" json:"court_state"`
	CourtCity       string `json:"court_city"`
	CourtConfidence string `gorm:"type:varchar(10)" json:"court_confidence"`

	AIGenerationsUsed int        `gorm:"not null;default:0" json:"ai_generations_used"`
	PaidAt            *time.Time `json:"paid_at"`
	FinalizedAt       *time.Time `json:"finalized_at"`

	StoryText      string     `gorm:"type:text" json:"story_text"`
	StoryStatus    JobStatus  `gorm:"type:varchar(20);not null;default:'idle'" json:"story_status"`
	StoryError     string     `gorm:"type:text" json:"story_error"`
	StoryStartedAt *time.Time `json:"story_started_at"`

	StatementOfFacts  string         `gorm:"type:text" json:"statement_of_facts"`
	CausesOfAction    string         `gorm:"type:text" json:"causes_of_action"`
	GeneratedSections datatypes.JSON `json:"generated_sections,omitempty"`
	GeneratedAt       *time.Time     `json:"generated_at"`
	PDFKey            string         `json:"-"`

	Sections         []DocumentSection  `json:"sections,omitempty"`
	PlaintiffInfo    *PlaintiffInfo     `json:"plaintiff_info,omitempty"`
	IncidentOverview *IncidentOverview  `json:"incident_overview,omitempty"`
	Narrative        *IncidentNarrative `json:"narrative,omitempty"`
	RightsViolated   *RightsViolated    `json:"rights_violated,omitempty"`
	Defendants       []Defendant        `json:"defendants,omitempty"`
	Witnesses        []Witness          `json:"witnesses,omitempty"`
	Evidence         []Evidence         `json:"evidence,omitempty"`
	Damages          *Damages           `json:"damages,omitempty"`
	PriorComplaints  *PriorComplaints   `json:"prior_complaints,omitempty"`
	ReliefSought     *ReliefSought      `json:"relief_sought,omitempty"`
}

// DocumentSection is the status row for one section of a document.
type DocumentSection struct {
	Base
	DocumentID  uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:ux_document_section" json:"document_id"`
	SectionType SectionType   `gorm:"type:varchar(30);not null;uniqueIndex:ux_document_section" json:"section_type"`
	Status      SectionStatus `gorm:"type:varchar(20);not null;default:'not_started'" json:"status"`
	SortOrder   int           `gorm:"not null;default:0" json:"order"`
	Notes       string        `gorm:"type:text" json:"notes"`
}

// DocumentHistory is an audit entry for payment status changes on a document.
type DocumentHistory struct {
	ID         uuid.UUID     `gorm:"type:uuid;primaryKey"`
	DocumentID uuid.UUID     `gorm:"type:uuid;not null;index"`
	ActorID    uuid.UUID     `gorm:"type:uuid;index"` // nil for system actions (webhook, sweep)
	Action     string        `gorm:"type:varchar(50);not null"`
	OldStatus  PaymentStatus `gorm:"type:varchar(20)"`
	NewStatus  PaymentStatus `gorm:"type:varchar(20)"`
	Reason     string        `gorm:"type:text"`
	CreatedAt  time.Time     `gorm:"autoCreateTime"`
}

func (h *DocumentHistory) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// All lists every model for AutoMigrate and test setup.
func All() []any {
	return []any{
		&User{}, &Document{}, &DocumentSection{}, &DocumentHistory{},
		&PlaintiffInfo{}, &IncidentOverview{}, &IncidentNarrative{}, &RightsViolated{},
		&Defendant{}, &Witness{}, &Evidence{}, &Damages{}, &PriorComplaints{}, &ReliefSought{},
		&WizardSession{},
		&Payment{}, &Subscription{}, &DocumentPack{}, &PromoCode{}, &PromoCodeUsage{}, &PayoutRequest{},
		&CaseLaw{}, &AIPrompt{}, &TranscriptJob{},
	}
}
