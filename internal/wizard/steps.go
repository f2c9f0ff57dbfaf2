// Package wizard is the one-question-at-a-time intake used by the mobile
// client. Answers live in a JSON blob on the session until the session is
// turned into a regular document.
package wizard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/aldoetobex/section1983-backend/internal/documents"
	"github.com/aldoetobex/section1983-backend/pkg/validation"
)

const TotalSteps = 7

// Money accepts a JSON number or string and keeps the text for validation.
type Money string

func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*m = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = Money(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("amount must be a number or string")
	}
	*m = Money(n.String())
	return nil
}

/* ============================== Step DTOs =============================== */

type PlaintiffStep struct {
	FirstName  string `json:"first_name" validate:"required,max=60"`
	LastName   string `json:"last_name" validate:"required,max=60"`
	Street     string `json:"street" validate:"required,max=160"`
	City       string `json:"city" validate:"required,max=80"`
	State      string `json:"state" validate:"required,usstate"`
	Zip        string `json:"zip" validate:"required,zip5"`
	Phone      string `json:"phone" validate:"max=30"`
	Email      string `json:"email" validate:"omitempty,email,max=120"`
	IsPrisoner bool   `json:"is_prisoner"`
}

type IncidentStep struct {
	IncidentDate        string `json:"incident_date" validate:"required,isodate"`
	IncidentTime        string `json:"incident_time" validate:"omitempty,hhmm"`
	City                string `json:"city" validate:"required,max=80"`
	State               string `json:"state" validate:"required,usstate"`
	LocationDescription string `json:"location_description" validate:"max=2000"`
	Summary             string `json:"summary" validate:"max=4000"`
}

type StoryStep struct {
	StoryText string `json:"story_text" validate:"required,min=20,max=20000"`
}

type DefendantsStep struct {
	Defendants []documents.DefendantRequest `json:"defendants" validate:"max=20,dive"`
}

type WitnessesEvidenceStep struct {
	Witnesses []documents.WitnessRequest  `json:"witnesses" validate:"max=30,dive"`
	Evidence  []documents.EvidenceRequest `json:"evidence" validate:"max=50,dive"`
}

type DamagesStep struct {
	PhysicalInjury     bool   `json:"physical_injury"`
	EmotionalDistress  bool   `json:"emotional_distress"`
	FinancialLoss      bool   `json:"financial_loss"`
	MedicalExpenses    Money  `json:"medical_expenses" validate:"money"`
	LostWages          Money  `json:"lost_wages" validate:"money"`
	PropertyDamage     Money  `json:"property_damage" validate:"money"`
	DamagesDescription string `json:"damages_description" validate:"max=8000"`
}

type ReliefStep struct {
	Compensatory    bool   `json:"compensatory"`
	Punitive        bool   `json:"punitive"`
	Declaratory     bool   `json:"declaratory"`
	Injunctive      bool   `json:"injunctive"`
	AttorneyFees    bool   `json:"attorney_fees"`
	JuryTrial       bool   `json:"jury_trial"`
	AmountRequested Money  `json:"amount_requested" validate:"money"`
	OtherRelief     string `json:"other_relief" validate:"max=4000"`
}

/* ============================= Definitions ============================== */

// Step describes one wizard screen. Fields are the keys stored for it.
type Step struct {
	Number int      `json:"number"`
	Name   string   `json:"name"`
	Title  string   `json:"title"`
	Fields []string `json:"fields"`
	newDTO func() any
}

var Steps = []Step{
	{1, "plaintiff", "About you",
		[]string{"first_name", "last_name", "street", "city", "state", "zip", "phone", "email", "is_prisoner"},
		func() any { return &PlaintiffStep{} }},
	{2, "incident", "When and where",
		[]string{"incident_date", "incident_time", "city", "state", "location_description", "summary"},
		func() any { return &IncidentStep{} }},
	{3, "story", "What happened",
		[]string{"story_text"},
		func() any { return &StoryStep{} }},
	{4, "defendants", "Who was involved",
		[]string{"defendants"},
		func() any { return &DefendantsStep{} }},
	{5, "witnesses_evidence", "Witnesses and evidence",
		[]string{"witnesses", "evidence"},
		func() any { return &WitnessesEvidenceStep{} }},
	{6, "damages", "How you were harmed",
		[]string{"physical_injury", "emotional_distress", "financial_loss", "medical_expenses",
			"lost_wages", "property_damage", "damages_description"},
		func() any { return &DamagesStep{} }},
	{7, "relief", "What you are asking for",
		[]string{"compensatory", "punitive", "declaratory", "injunctive", "attorney_fees",
			"jury_trial", "amount_requested", "other_relief"},
		func() any { return &ReliefStep{} }},
}

func StepByNumber(n int) (Step, bool) {
	if n < 1 || n > len(Steps) {
		return Step{}, false
	}
	return Steps[n-1], true
}

// Decode parses and validates payload for the step. It returns the stored
// form of the answers: the step's fields that appear in payload, normalized.
func (st Step) Decode(payload []byte) (map[string]any, map[string][]string, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = []byte("{}")
	}
	dto := st.newDTO()
	if err := json.Unmarshal(payload, dto); err != nil {
		return nil, nil, err
	}
	var sent map[string]json.RawMessage
	if err := json.Unmarshal(payload, &sent); err != nil {
		return nil, nil, err
	}
	normalize(dto)
	if errs, err := validation.Validate(dto); err != nil || errs != nil {
		return nil, errs, err
	}

	b, err := json.Marshal(dto)
	if err != nil {
		return nil, nil, err
	}
	var all map[string]any
	if err := json.Unmarshal(b, &all); err != nil {
		return nil, nil, err
	}
	out := make(map[string]any, len(st.Fields))
	for _, f := range st.Fields {
		if _, ok := sent[f]; ok {
			out[f] = all[f]
		}
	}
	return out, nil, nil
}

func normalize(dto any) {
	switch d := dto.(type) {
	case *PlaintiffStep:
		d.FirstName = strings.TrimSpace(d.FirstName)
		d.LastName = strings.TrimSpace(d.LastName)
		d.State = validation.NormalizeState(d.State)
		d.Zip = strings.TrimSpace(d.Zip)
		d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	case *IncidentStep:
		d.State = validation.NormalizeState(d.State)
		d.City = strings.TrimSpace(d.City)
	case *StoryStep:
		d.StoryText = strings.TrimSpace(d.StoryText)
	}
}

// advance returns the new position after step was saved. Neither value
// ever goes down.
func advance(current, progress, step int) (int, int) {
	next := step + 1
	if next > TotalSteps {
		next = TotalSteps
	}
	if next > current {
		current = next
	}
	pct := int(math.Round(100 * float64(step) / TotalSteps))
	if pct > progress {
		progress = pct
	}
	return current, progress
}
