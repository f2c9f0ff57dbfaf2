package assist

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/internal/documents"
	"github.com/aldoetobex/section1983-backend/pkg/llm"
	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/validation"
)

/* ================================ Relief ================================ */

type ReliefSuggestion struct {
	Compensatory bool   `json:"compensatory"`
	Punitive     bool   `json:"punitive"`
	Declaratory  bool   `json:"declaratory"`
	Injunctive   bool   `json:"injunctive"`
	AttorneyFees bool   `json:"attorney_fees"`
	JuryTrial    bool   `json:"jury_trial"`
	Explanation  string `json:"explanation"`
	AIRemaining  int    `json:"ai_remaining"`
}

func (s *Service) SuggestRelief(ctx context.Context, userID, docID uuid.UUID) (*ReliefSuggestion, error) {
	u, doc, err := s.begin(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	r, err := s.CompleteJSON(ctx, "suggest_relief", map[string]string{
		"facts":   documents.FactsText(doc),
		"damages": orNone(documents.DamagesText(doc)),
		"rights":  orNone(documents.RightsText(doc)),
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, u, doc)
	return &ReliefSuggestion{
		Compensatory: r.Get("compensatory").Bool(),
		Punitive:     r.Get("punitive").Bool(),
		Declaratory:  r.Get("declaratory").Bool(),
		Injunctive:   r.Get("injunctive").Bool(),
		AttorneyFees: r.Get("attorney_fees").Bool(),
		JuryTrial:    r.Get("jury_trial").Bool(),
		Explanation:  llm.Str(r, "explanation"),
		AIRemaining:  doc.RemainingAI(u, s.docs.Policy()),
	}, nil
}

/* ================================ Agency ================================ */

type AgencyQuery struct {
	City        string `json:"city" validate:"max=80"`
	State       string `json:"state" validate:"omitempty,usstate"`
	Description string `json:"description" validate:"max=2000"`
}

type AgencySuggestion struct {
	AgencyName    string `json:"agency_name"`
	AgencyAddress string `json:"agency_address"`
	Explanation   string `json:"explanation"`
	AIRemaining   int    `json:"ai_remaining"`
}

// SuggestAgency guesses the employing agency. City and state fall back to the
// incident overview.
func (s *Service) SuggestAgency(ctx context.Context, userID, docID uuid.UUID, q AgencyQuery) (*AgencySuggestion, error) {
	u, doc, err := s.begin(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	if io := doc.IncidentOverview; io != nil {
		q.City = firstNonBlank(q.City, io.City)
		q.State = firstNonBlank(q.State, io.State)
		q.Description = firstNonBlank(q.Description, io.Summary)
	}
	r, err := s.CompleteJSON(ctx, "suggest_agency", map[string]string{
		"city":        orNone(q.City),
		"state":       orNone(validation.NormalizeState(q.State)),
		"description": orNone(q.Description),
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, u, doc)
	return &AgencySuggestion{
		AgencyName:    llm.Str(r, "agency_name"),
		AgencyAddress: llm.Str(r, "agency_address"),
		Explanation:   llm.Str(r, "explanation"),
		AIRemaining:   doc.RemainingAI(u, s.docs.Policy()),
	}, nil
}

/* =============================== Sections =============================== */

type TextSuggestion struct {
	Section     models.SectionType `json:"section"`
	Field       string             `json:"field,omitempty"`
	Text        string             `json:"text"`
	AIRemaining int                `json:"ai_remaining"`
}

// sectionText is the current free text of a section, used as the starting
// point for a rewrite.
func sectionText(doc *models.Document, t models.SectionType) string {
	switch t {
	case models.SectionIncidentOverview:
		if doc.IncidentOverview != nil {
			return doc.IncidentOverview.Summary
		}
	case models.SectionNarrative:
		return documents.NarrativeText(doc)
	case models.SectionRightsViolated:
		if doc.RightsViolated != nil {
			return doc.RightsViolated.Details
		}
	case models.SectionDefendants:
		return documents.DefendantText(doc)
	case models.SectionWitnesses:
		return documents.WitnessText(doc)
	case models.SectionEvidence:
		return documents.EvidenceText(doc)
	case models.SectionDamages:
		return documents.DamagesText(doc)
	case models.SectionPriorComplaints:
		if doc.PriorComplaints != nil {
			return doc.PriorComplaints.Outcome
		}
	case models.SectionReliefSought:
		return documents.ReliefText(doc)
	}
	return ""
}

// SuggestSection drafts improved text for one section. current overrides the
// stored text when the client has unsaved edits.
func (s *Service) SuggestSection(ctx context.Context, userID, docID uuid.UUID, t models.SectionType, current string) (*TextSuggestion, error) {
	if !t.Valid() || t == models.SectionPlaintiffInfo {
		return nil, ErrFieldNotFixable
	}
	u, doc, err := s.begin(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	current = firstNonBlank(current, sectionText(doc, t))
	out, err := s.Complete(ctx, "suggest_section", map[string]string{
		"section":       string(t),
		"section_title": t.Title(),
		"facts":         orNone(documents.FactsText(doc)),
		"current":       orNone(current),
	})
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, ErrBadModelOutput
	}
	s.record(ctx, u, doc)
	return &TextSuggestion{Section: t, Text: out, AIRemaining: doc.RemainingAI(u, s.docs.Policy())}, nil
}

/* ================================ Review ================================ */

type Issue struct {
	Section    string `json:"section"`
	Field      string `json:"field,omitempty"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
	Fixable    bool   `json:"fixable"`
}

type Review struct {
	Issues      []Issue `json:"issues"`
	AIRemaining int     `json:"ai_remaining"`
}

// ReviewDocument asks the model to critique the whole draft. Completed
// sections with a high-severity issue are moved to needs_work.
func (s *Service) ReviewDocument(ctx context.Context, userID, docID uuid.UUID) (*Review, error) {
	u, doc, err := s.begin(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	r, err := s.CompleteJSON(ctx, "review_document", map[string]string{
		"document": documents.DraftText(doc),
	})
	if err != nil {
		return nil, err
	}

	issues := []Issue{}
	flag := map[models.SectionType]bool{}
	for _, v := range r.Get("issues").Array() {
		is := Issue{
			Section:    strings.ToLower(llm.Str(v, "section")),
			Field:      strings.ToLower(llm.Str(v, "field")),
			Severity:   normConfidence(llm.Str(v, "severity")),
			Message:    llm.Str(v, "message"),
			Suggestion: llm.Str(v, "suggestion"),
		}
		if is.Message == "" {
			continue
		}
		st := models.SectionType(is.Section)
		if !st.Valid() {
			is.Section = "general"
		}
		is.Fixable = fixable(st, is.Field)
		if st.Valid() && is.Severity == "high" {
			flag[st] = true
		}
		issues = append(issues, is)
	}

	if len(flag) > 0 && s.docs.EditDenial(doc) == nil {
		types := make([]models.SectionType, 0, len(flag))
		for t := range flag {
			types = append(types, t)
		}
		if err := s.db.WithContext(ctx).Model(&models.DocumentSection{}).
			Where("document_id = ? AND section_type IN ? AND status = ?", doc.ID, types, models.SectionCompleted).
			Update("status", models.SectionNeedsWork).Error; err != nil {
			s.log.Error(ctx, "flag sections needing work", err)
		}
	}
	s.record(ctx, u, doc)
	return &Review{Issues: issues, AIRemaining: doc.RemainingAI(u, s.docs.Policy())}, nil
}

/* ================================== Fix ================================= */

type FixRequest struct {
	Section    string `json:"section" validate:"required,sectiontype"`
	Field      string `json:"field" validate:"required,max=60"`
	Issue      string `json:"issue" validate:"required,max=2000"`
	Suggestion string `json:"suggestion" validate:"max=2000"`
	Current    string `json:"current" validate:"max=20000"`
}

// GenerateFix writes replacement text for one whitelisted field.
func (s *Service) GenerateFix(ctx context.Context, userID, docID uuid.UUID, in FixRequest) (*TextSuggestion, error) {
	t := models.SectionType(in.Section)
	if !fixable(t, in.Field) {
		return nil, ErrFieldNotFixable
	}
	u, doc, err := s.begin(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	out, err := s.Complete(ctx, "generate_fix", map[string]string{
		"section":    in.Section,
		"field":      in.Field,
		"issue":      in.Issue,
		"suggestion": orNone(in.Suggestion),
		"current":    orNone(firstNonBlank(in.Current, fieldValue(doc, t, in.Field))),
		"facts":      orNone(documents.FactsText(doc)),
	})
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, ErrBadModelOutput
	}
	s.record(ctx, u, doc)
	return &TextSuggestion{Section: t, Field: in.Field, Text: out, AIRemaining: doc.RemainingAI(u, s.docs.Policy())}, nil
}

type ApplyFixRequest struct {
	Section string `json:"section" validate:"required,sectiontype"`
	Field   string `json:"field" validate:"required,max=60"`
	Text    string `json:"text" validate:"required,max=20000"`
}

// ApplyFix stores accepted text into a whitelisted field, creating the
// section row when missing. It is not an AI call and is not counted.
func (s *Service) ApplyFix(ctx context.Context, userID, docID uuid.UUID, in ApplyFixRequest) error {
	t := models.SectionType(in.Section)
	target, ok := fixTargets[t]
	if !ok || !target.has(in.Field) {
		return ErrFieldNotFixable
	}
	doc, err := s.docs.Editable(ctx, userID, docID)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := target.newRow(doc.ID)
		if err := tx.Where("document_id = ?", doc.ID).FirstOrCreate(row).Error; err != nil {
			return err
		}
		if err := tx.Model(row).Update(in.Field, strings.TrimSpace(in.Text)).Error; err != nil {
			return err
		}
		return documents.TouchSection(tx, doc.ID, t)
	})
}

type fixTarget struct {
	newRow func(docID uuid.UUID) any
	fields map[string]func(*models.Document) string
}

func (f fixTarget) has(field string) bool {
	_, ok := f.fields[field]
	return ok
}

// fixTargets lists the free-text columns a fix may overwrite. Field names are
// the column names.
var fixTargets = map[models.SectionType]fixTarget{
	models.SectionIncidentOverview: {
		newRow: func(id uuid.UUID) any { return &models.IncidentOverview{DocumentID: id} },
		fields: map[string]func(*models.Document) string{
			"summary": func(d *models.Document) string { return ptrField(d.IncidentOverview, func(o *models.IncidentOverview) string { return o.Summary }) },
			"location_description": func(d *models.Document) string {
				return ptrField(d.IncidentOverview, func(o *models.IncidentOverview) string { return o.LocationDescription })
			},
		},
	},
	models.SectionNarrative: {
		newRow: func(id uuid.UUID) any { return &models.IncidentNarrative{DocumentID: id} },
		fields: map[string]func(*models.Document) string{
			"before_incident": func(d *models.Document) string { return ptrField(d.Narrative, func(n *models.IncidentNarrative) string { return n.BeforeIncident }) },
			"during_incident": func(d *models.Document) string { return ptrField(d.Narrative, func(n *models.IncidentNarrative) string { return n.DuringIncident }) },
			"after_incident":  func(d *models.Document) string { return ptrField(d.Narrative, func(n *models.IncidentNarrative) string { return n.AfterIncident }) },
			"full_narrative":  func(d *models.Document) string { return ptrField(d.Narrative, func(n *models.IncidentNarrative) string { return n.FullNarrative }) },
		},
	},
	models.SectionRightsViolated: {
		newRow: func(id uuid.UUID) any { return &models.RightsViolated{DocumentID: id} },
		fields: map[string]func(*models.Document) string{
			"details": func(d *models.Document) string { return ptrField(d.RightsViolated, func(r *models.RightsViolated) string { return r.Details }) },
		},
	},
	models.SectionDamages: {
		newRow: func(id uuid.UUID) any { return &models.Damages{DocumentID: id} },
		fields: map[string]func(*models.Document) string{
			"physical_description":  func(d *models.Document) string { return ptrField(d.Damages, func(x *models.Damages) string { return x.PhysicalDescription }) },
			"emotional_description": func(d *models.Document) string { return ptrField(d.Damages, func(x *models.Damages) string { return x.EmotionalDescription }) },
			"description":           func(d *models.Document) string { return ptrField(d.Damages, func(x *models.Damages) string { return x.Description }) },
		},
	},
	models.SectionPriorComplaints: {
		newRow: func(id uuid.UUID) any { return &models.PriorComplaints{DocumentID: id} },
		fields: map[string]func(*models.Document) string{
			"outcome": func(d *models.Document) string { return ptrField(d.PriorComplaints, func(p *models.PriorComplaints) string { return p.Outcome }) },
		},
	},
	models.SectionReliefSought: {
		newRow: func(id uuid.UUID) any { return &models.ReliefSought{DocumentID: id} },
		fields: map[string]func(*models.Document) string{
			"other_relief": func(d *models.Document) string { return ptrField(d.ReliefSought, func(r *models.ReliefSought) string { return r.OtherRelief }) },
		},
	},
}

func fixable(t models.SectionType, field string) bool {
	target, ok := fixTargets[t]
	return ok && target.has(field)
}

func fieldValue(doc *models.Document, t models.SectionType, field string) string {
	if target, ok := fixTargets[t]; ok {
		if get, ok := target.fields[field]; ok {
			return get(doc)
		}
	}
	return ""
}

func ptrField[T any](p *T, get func(*T) string) string {
	if p == nil {
		return ""
	}
	return get(p)
}

/* ================================ Helpers =============================== */

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none provided)"
	}
	return s
}
