package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DefendantType distinguishes a person from an entity being sued.
type DefendantType string

const (
	DefendantIndividual   DefendantType = "individual"
	DefendantAgency       DefendantType = "agency"
	DefendantMunicipality DefendantType = "municipality"
)

// Capacity is the capacity in which a defendant is sued.
type Capacity string

const (
	CapacityIndividual Capacity = "individual"
	CapacityOfficial   Capacity = "official"
	CapacityBoth       Capacity = "both"
)

// EvidenceType classifies an evidence item.
type EvidenceType string

const (
	EvidenceVideo    EvidenceType = "video"
	EvidencePhoto    EvidenceType = "photo"
	EvidenceDocument EvidenceType = "document"
	EvidenceMedical  EvidenceType = "medical"
	EvidenceOther    EvidenceType = "other"
)

type PlaintiffInfo struct {
	Base
	DocumentID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"document_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Street     string    `json:"street"`
	City       string    `json:"city"`
	State      string    `gorm:"type:varchar(2)" json:"state"`
	ZipCode    string    `gorm:"type:varchar(10)" json:"zip_code"`
	Phone      string    `json:"phone"`
	Email      string    `json:"email"`
	IsPrisoner bool      `gorm:"not null;default:false" json:"is_prisoner"`
	PrisonerID string    `json:"prisoner_id"`
	Facility   string    `json:"facility"`
}

func (p *PlaintiffInfo) FullName() string {
	return joinName(p.FirstName, p.LastName)
}

type IncidentOverview struct {
	Base
	DocumentID          uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"document_id"`
	IncidentDate        *time.Time `json:"incident_date"`
	IncidentTime        string     `gorm:"type:varchar(10)" json:"incident_time"`
	Street              string     `json:"street"`
	City                string     `json:"city"`
	State               string     `gorm:"type:varchar(2)" json:"state"`
	ZipCode             string     `gorm:"type:varchar(10)" json:"zip_code"`
	LocationDescription string     `gorm:"type:text" json:"location_description"`
	WasRecording        bool       `gorm:"not null;default:false" json:"was_recording"`
	Summary             string     `gorm:"type:text" json:"summary"`
}

type Defendant struct {
	Base
	DocumentID    uuid.UUID     `gorm:"type:uuid;not null;index" json:"document_id"`
	Name          string        `gorm:"not null" json:"name"`
	BadgeNumber   string        `json:"badge_number"`
	Title         string        `json:"title"`
	AgencyName    string        `json:"agency_name"`
	AgencyAddress string        `json:"agency_address"`
	DefendantType DefendantType `gorm:"type:varchar(20);not null;default:'individual'" json:"defendant_type"`
	Capacity      Capacity      `gorm:"type:varchar(20);not null;default:'both'" json:"capacity"`
	Description   string        `gorm:"type:text" json:"description"`
}

type IncidentNarrative struct {
	Base
	DocumentID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"document_id"`
	BeforeIncident string    `gorm:"type:text" json:"before_incident"`
	DuringIncident string    `gorm:"type:text" json:"during_incident"`
	AfterIncident  string    `gorm:"type:text" json:"after_incident"`
	FullNarrative  string    `gorm:"type:text" json:"full_narrative"`
}

type RightsViolated struct {
	Base
	DocumentID                    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"document_id"`
	FirstAmendmentSpeech          bool           `gorm:"not null;default:false" json:"first_amendment_speech"`
	FirstAmendmentRetaliation     bool           `gorm:"not null;default:false" json:"first_amendment_retaliation"`
	FourthAmendmentSearch         bool           `gorm:"not null;default:false" json:"fourth_amendment_search"`
	FourthAmendmentSeizure        bool           `gorm:"not null;default:false" json:"fourth_amendment_seizure"`
	FourthAmendmentExcessiveForce bool           `gorm:"not null;default:false" json:"fourth_amendment_excessive_force"`
	EighthAmendment               bool           `gorm:"not null;default:false" json:"eighth_amendment"`
	FourteenthDueProcess          bool           `gorm:"not null;default:false" json:"fourteenth_due_process"`
	FourteenthEqualProtection     bool           `gorm:"not null;default:false" json:"fourteenth_equal_protection"`
	Details                       string         `gorm:"type:text" json:"details"`
	AISuggestions                 datatypes.JSON `json:"ai_suggestions,omitempty"`
}

// Right categories, shared with CaseLaw.Category.
const (
	RightFirstSpeech         = "first_amendment_speech"
	RightFirstRetaliation    = "first_amendment_retaliation"
	RightFourthSearch        = "fourth_amendment_search"
	RightFourthSeizure       = "fourth_amendment_seizure"
	RightFourthForce         = "fourth_amendment_excessive_force"
	RightEighth              = "eighth_amendment"
	RightFourteenthDue       = "fourteenth_due_process"
	RightFourteenthEqualProt = "fourteenth_equal_protection"
)

// RightCategories lists every category in display order.
var RightCategories = []string{
	RightFirstSpeech, RightFirstRetaliation, RightFourthSearch, RightFourthSeizure,
	RightFourthForce, RightEighth, RightFourteenthDue, RightFourteenthEqualProt,
}

// Selected returns the checked right categories in display order.
func (r *RightsViolated) Selected() []string {
	flags := map[string]bool{
		RightFirstSpeech:         r.FirstAmendmentSpeech,
		RightFirstRetaliation:    r.FirstAmendmentRetaliation,
		RightFourthSearch:        r.FourthAmendmentSearch,
		RightFourthSeizure:       r.FourthAmendmentSeizure,
		RightFourthForce:         r.FourthAmendmentExcessiveForce,
		RightEighth:              r.EighthAmendment,
		RightFourteenthDue:       r.FourteenthDueProcess,
		RightFourteenthEqualProt: r.FourteenthEqualProtection,
	}
	out := make([]string, 0, len(flags))
	for _, c := range RightCategories {
		if flags[c] {
			out = append(out, c)
		}
	}
	return out
}

// Set checks the flag for a category. Unknown categories are ignored.
func (r *RightsViolated) Set(category string, v bool) bool {
	switch category {
	case RightFirstSpeech:
		r.FirstAmendmentSpeech = v
	case RightFirstRetaliation:
		r.FirstAmendmentRetaliation = v
	case RightFourthSearch:
		r.FourthAmendmentSearch = v
	case RightFourthSeizure:
		r.FourthAmendmentSeizure = v
	case RightFourthForce:
		r.FourthAmendmentExcessiveForce = v
	case RightEighth:
		r.EighthAmendment = v
	case RightFourteenthDue:
		r.FourteenthDueProcess = v
	case RightFourteenthEqualProt:
		r.FourteenthEqualProtection = v
	default:
		return false
	}
	return true
}

type Witness struct {
	Base
	DocumentID   uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	Name         string    `gorm:"not null" json:"name"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	Relationship string    `json:"relationship"`
	Statement    string    `gorm:"type:text" json:"statement"`
}

type Evidence struct {
	Base
	DocumentID   uuid.UUID    `gorm:"type:uuid;not null;index" json:"document_id"`
	EvidenceType EvidenceType `gorm:"type:varchar(20);not null;default:'other'" json:"evidence_type"`
	Description  string       `gorm:"type:text" json:"description"`
	DateObtained *time.Time   `json:"date_obtained"`
	InPossession bool         `gorm:"not null;default:false" json:"in_possession"`
	VideoURL     string       `json:"video_url"`
	StorageKey   string       `json:"-"`
	Mime         string       `json:"mime,omitempty"`
	Size         int64        `json:"size,omitempty"`
	OriginalName string       `json:"original_name,omitempty"`
	Transcript   string       `gorm:"type:text" json:"transcript"`
}

type Damages struct {
	Base
	DocumentID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"document_id"`
	PhysicalInjury       bool            `gorm:"not null;default:false" json:"physical_injury"`
	PhysicalDescription  string          `gorm:"type:text" json:"physical_description"`
	EmotionalDistress    bool            `gorm:"not null;default:false" json:"emotional_distress"`
	EmotionalDescription string          `gorm:"type:text" json:"emotional_description"`
	FinancialLoss        bool            `gorm:"not null;default:false" json:"financial_loss"`
	MedicalExpenses      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"medical_expenses"`
	LostWages            decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"lost_wages"`
	PropertyDamage       decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"property_damage"`
	OtherAmount          decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"other_amount"`
	Description          string          `gorm:"type:text" json:"description"`
}

// Total sums the itemized economic damages.
func (d *Damages) Total() decimal.Decimal {
	return d.MedicalExpenses.Add(d.LostWages).Add(d.PropertyDamage).Add(d.OtherAmount)
}

type PriorComplaints struct {
	Base
	DocumentID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex" json:"document_id"`
	FiledComplaint  bool       `gorm:"not null;default:false" json:"filed_complaint"`
	AgencyName      string     `json:"agency_name"`
	ComplaintDate   *time.Time `json:"complaint_date"`
	ComplaintNumber string     `json:"complaint_number"`
	Outcome         string     `gorm:"type:text" json:"outcome"`
}

type ReliefSought struct {
	Base
	DocumentID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex" json:"document_id"`
	Compensatory    bool            `gorm:"not null;default:false" json:"compensatory"`
	Punitive        bool            `gorm:"not null;default:false" json:"punitive"`
	Declaratory     bool            `gorm:"not null;default:false" json:"declaratory"`
	Injunctive      bool            `gorm:"not null;default:false" json:"injunctive"`
	AttorneyFees    bool            `gorm:"not null;default:false" json:"attorney_fees"`
	JuryTrial       bool            `gorm:"not null;default:false" json:"jury_trial"`
	AmountRequested decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"amount_requested"`
	OtherRelief     string          `gorm:"type:text" json:"other_relief"`
}
