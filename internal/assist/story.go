package assist

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/internal/documents"
	"github.com/aldoetobex/section1983-backend/internal/jobs"
	"github.com/aldoetobex/section1983-backend/pkg/llm"
	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/sanitize"
	"github.com/aldoetobex/section1983-backend/pkg/validation"
)

/* ============================ Extracted facts =========================== */

type IncidentFacts struct {
	Date                string `json:"date"`
	Time                string `json:"time"`
	City                string `json:"city"`
	State               string `json:"state"`
	LocationDescription string `json:"location_description"`
	Summary             string `json:"summary"`
}

type DefendantFacts struct {
	Name        string `json:"name"`
	BadgeNumber string `json:"badge_number"`
	Title       string `json:"title"`
	AgencyName  string `json:"agency_name"`
	Description string `json:"description"`
}

type WitnessFacts struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Statement    string `json:"statement"`
}

type EvidenceFacts struct {
	EvidenceType string `json:"evidence_type"`
	Description  string `json:"description"`
}

type NarrativeFacts struct {
	BeforeIncident string `json:"before_incident"`
	DuringIncident string `json:"during_incident"`
	AfterIncident  string `json:"after_incident"`
}

type DamageFacts struct {
	PhysicalInjury       bool   `json:"physical_injury"`
	PhysicalDescription  string `json:"physical_description"`
	EmotionalDistress    bool   `json:"emotional_distress"`
	EmotionalDescription string `json:"emotional_description"`
	FinancialLoss        bool   `json:"financial_loss"`
}

// StoryFacts is what the model pulled out of a free-form story. Values that
// failed validation (bad dates, unknown states) are already blanked.
type StoryFacts struct {
	Incident     IncidentFacts    `json:"incident"`
	Defendants   []DefendantFacts `json:"defendants"`
	Witnesses    []WitnessFacts   `json:"witnesses"`
	Evidence     []EvidenceFacts  `json:"evidence"`
	Narrative    NarrativeFacts   `json:"narrative"`
	Damages      DamageFacts      `json:"damages"`
	WasRecording bool             `json:"was_recording"`
}

// ExtractStory asks the model for structured facts. It does not touch the
// database and does not count usage.
func (s *Service) ExtractStory(ctx context.Context, story, state string) (*StoryFacts, error) {
	story = strings.TrimSpace(story)
	if story == "" {
		return nil, ErrStoryMissing
	}
	state = validation.NormalizeState(state)
	if state == "" {
		state = "unknown"
	}
	r, err := s.CompleteJSON(ctx, "parse_story", map[string]string{
		"today":          s.docs.Now().Format(time.DateOnly),
		"incident_state": state,
		"story":          sanitize.RedactPII(story),
	})
	if err != nil {
		return nil, err
	}
	return parseFacts(r), nil
}

func parseFacts(r gjson.Result) *StoryFacts {
	f := &StoryFacts{
		Incident: IncidentFacts{
			Date:                llm.Str(r, "incident.date"),
			Time:                llm.Str(r, "incident.time"),
			City:                llm.Str(r, "incident.city"),
			State:               validation.NormalizeState(llm.Str(r, "incident.state")),
			LocationDescription: llm.Str(r, "incident.location_description"),
			Summary:             llm.Str(r, "incident.summary"),
		},
		Narrative: NarrativeFacts{
			BeforeIncident: llm.Str(r, "narrative.before_incident"),
			DuringIncident: llm.Str(r, "narrative.during_incident"),
			AfterIncident:  llm.Str(r, "narrative.after_incident"),
		},
		Damages: DamageFacts{
			PhysicalInjury:       r.Get("damages.physical_injury").Bool(),
			PhysicalDescription:  llm.Str(r, "damages.physical_description"),
			EmotionalDistress:    r.Get("damages.emotional_distress").Bool(),
			EmotionalDescription: llm.Str(r, "damages.emotional_description"),
			FinancialLoss:        r.Get("damages.financial_loss").Bool(),
		},
		WasRecording: r.Get("was_recording").Bool(),
	}
	if _, err := time.Parse(time.DateOnly, f.Incident.Date); err != nil {
		f.Incident.Date = ""
	}
	if _, err := time.Parse("15:04", f.Incident.Time); err != nil {
		f.Incident.Time = ""
	}
	if !validation.USStates[f.Incident.State] {
		f.Incident.State = ""
	}

	for _, d := range r.Get("defendants").Array() {
		df := DefendantFacts{
			Name:        llm.Str(d, "name"),
			BadgeNumber: llm.Str(d, "badge_number"),
			Title:       llm.Str(d, "title"),
			AgencyName:  llm.Str(d, "agency_name"),
			Description: llm.Str(d, "description"),
		}
		if df.Name == "" && df.BadgeNumber != "" {
			df.Name = "Unknown Officer, Badge " + df.BadgeNumber
		}
		if df.Name != "" {
			f.Defendants = append(f.Defendants, df)
		}
	}
	for _, w := range r.Get("witnesses").Array() {
		if wf := (WitnessFacts{
			Name:         llm.Str(w, "name"),
			Relationship: llm.Str(w, "relationship"),
			Statement:    llm.Str(w, "statement"),
		}); wf.Name != "" {
			f.Witnesses = append(f.Witnesses, wf)
		}
	}
	for _, e := range r.Get("evidence").Array() {
		ef := EvidenceFacts{
			EvidenceType: strings.ToLower(llm.Str(e, "evidence_type")),
			Description:  llm.Str(e, "description"),
		}
		if ef.Description == "" {
			continue
		}
		switch models.EvidenceType(ef.EvidenceType) {
		case models.EvidenceVideo, models.EvidencePhoto, models.EvidenceDocument, models.EvidenceMedical:
		default:
			ef.EvidenceType = string(models.EvidenceOther)
		}
		f.Evidence = append(f.Evidence, ef)
	}
	return f
}

/* ============================ Apply to document ========================= */

func fill(dst *string, v string) {
	if strings.TrimSpace(*dst) == "" && v != "" {
		*dst = v
	}
}

func key(s string) string { return strings.ToLower(sanitize.CollapseSpace(s)) }

// ApplyStory copies facts into doc's child records. Blank values never
// overwrite filled ones and list rows are appended only when their name (or
// description) is new. doc must be fully preloaded.
func ApplyStory(tx *gorm.DB, doc *models.Document, f *StoryFacts) ([]models.SectionType, error) {
	var touched []models.SectionType

	io := doc.IncidentOverview
	if io == nil {
		io = &models.IncidentOverview{DocumentID: doc.ID}
	}
	if io.IncidentDate == nil {
		io.IncidentDate, _ = validation.ParseDate(f.Incident.Date)
	}
	fill(&io.IncidentTime, f.Incident.Time)
	fill(&io.City, f.Incident.City)
	fill(&io.State, f.Incident.State)
	fill(&io.LocationDescription, f.Incident.LocationDescription)
	fill(&io.Summary, f.Incident.Summary)
	io.WasRecording = io.WasRecording || f.WasRecording
	if err := tx.Save(io).Error; err != nil {
		return nil, err
	}
	doc.IncidentOverview = io
	touched = append(touched, models.SectionIncidentOverview)

	n := doc.Narrative
	if n == nil {
		n = &models.IncidentNarrative{DocumentID: doc.ID}
	}
	fill(&n.BeforeIncident, f.Narrative.BeforeIncident)
	fill(&n.DuringIncident, f.Narrative.DuringIncident)
	fill(&n.AfterIncident, f.Narrative.AfterIncident)
	fill(&n.FullNarrative, strings.TrimSpace(doc.StoryText))
	if err := tx.Save(n).Error; err != nil {
		return nil, err
	}
	doc.Narrative = n
	touched = append(touched, models.SectionNarrative)

	dm := f.Damages
	if dm.PhysicalInjury || dm.EmotionalDistress || dm.FinancialLoss {
		d := doc.Damages
		if d == nil {
			d = &models.Damages{DocumentID: doc.ID}
		}
		d.PhysicalInjury = d.PhysicalInjury || dm.PhysicalInjury
		d.EmotionalDistress = d.EmotionalDistress || dm.EmotionalDistress
		d.FinancialLoss = d.FinancialLoss || dm.FinancialLoss
		fill(&d.PhysicalDescription, dm.PhysicalDescription)
		fill(&d.EmotionalDescription, dm.EmotionalDescription)
		if err := tx.Save(d).Error; err != nil {
			return nil, err
		}
		doc.Damages = d
		touched = append(touched, models.SectionDamages)
	}

	seen := map[string]bool{}
	for _, d := range doc.Defendants {
		seen[key(d.Name)] = true
	}
	added := 0
	for _, df := range f.Defendants {
		if seen[key(df.Name)] {
			continue
		}
		seen[key(df.Name)] = true
		row := models.Defendant{
			DocumentID:    doc.ID,
			Name:          df.Name,
			BadgeNumber:   df.BadgeNumber,
			Title:         df.Title,
			AgencyName:    df.AgencyName,
			Description:   df.Description,
			DefendantType: models.DefendantIndividual,
			Capacity:      models.CapacityBoth,
		}
		if err := tx.Create(&row).Error; err != nil {
			return nil, err
		}
		doc.Defendants = append(doc.Defendants, row)
		added++
	}
	if added > 0 {
		if err := documents.SyncListSection(tx, doc.ID, models.SectionDefendants, &models.Defendant{}); err != nil {
			return nil, err
		}
		touched = append(touched, models.SectionDefendants)
	}

	seen = map[string]bool{}
	for _, w := range doc.Witnesses {
		seen[key(w.Name)] = true
	}
	added = 0
	for _, wf := range f.Witnesses {
		if seen[key(wf.Name)] {
			continue
		}
		seen[key(wf.Name)] = true
		row := models.Witness{DocumentID: doc.ID, Name: wf.Name, Relationship: wf.Relationship, Statement: wf.Statement}
		if err := tx.Create(&row).Error; err != nil {
			return nil, err
		}
		doc.Witnesses = append(doc.Witnesses, row)
		added++
	}
	if added > 0 {
		if err := documents.SyncListSection(tx, doc.ID, models.SectionWitnesses, &models.Witness{}); err != nil {
			return nil, err
		}
		touched = append(touched, models.SectionWitnesses)
	}

	seen = map[string]bool{}
	for _, e := range doc.Evidence {
		seen[key(e.Description)] = true
	}
	added = 0
	for _, ef := range f.Evidence {
		if seen[key(ef.Description)] {
			continue
		}
		seen[key(ef.Description)] = true
		row := models.Evidence{DocumentID: doc.ID, EvidenceType: models.EvidenceType(ef.EvidenceType), Description: ef.Description}
		if err := tx.Create(&row).Error; err != nil {
			return nil, err
		}
		doc.Evidence = append(doc.Evidence, row)
		added++
	}
	if added > 0 {
		if err := documents.SyncListSection(tx, doc.ID, models.SectionEvidence, &models.Evidence{}); err != nil {
			return nil, err
		}
		touched = append(touched, models.SectionEvidence)
	}

	for _, t := range []models.SectionType{models.SectionIncidentOverview, models.SectionNarrative, models.SectionDamages} {
		if err := documents.TouchSection(tx, doc.ID, t); err != nil {
			return nil, err
		}
	}
	return touched, nil
}

/* ============================ Background job ============================ */

// StoryPoll is the body of the story status endpoint.
type StoryPoll struct {
	Status               models.JobStatus `json:"status"`
	Error                string           `json:"error,omitempty"`
	StartedAt            *time.Time       `json:"started_at,omitempty"`
	CompletionPercentage int              `json:"completion_percentage"`
}

// SubmitStory saves the story and starts parsing it in the background. When
// a parse of this document started within the duplicate window is still
// processing, nothing new is started and started is false.
func (s *Service) SubmitStory(ctx context.Context, userID, docID uuid.UUID, story string) (poll *StoryPoll, started bool, err error) {
	u, doc, err := s.load(ctx, userID, docID)
	if err != nil {
		return nil, false, err
	}
	if err := s.docs.EditDenial(doc); err != nil {
		return nil, false, err
	}
	story = strings.TrimSpace(story)
	if story == "" {
		story = strings.TrimSpace(doc.StoryText)
	}
	if story == "" {
		return nil, false, ErrStoryMissing
	}

	now := s.docs.Now()
	if jobs.InFlight(doc.StoryStatus, doc.StoryStartedAt, now, s.dupWindow) {
		return &StoryPoll{Status: doc.StoryStatus, StartedAt: doc.StoryStartedAt}, false, nil
	}
	if err := s.allow(ctx, u, doc); err != nil {
		return nil, false, err
	}

	if err := s.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", doc.ID).Updates(map[string]any{
		"story_text":       story,
		"story_status":     models.JobProcessing,
		"story_started_at": now,
		"story_error":      "",
	}).Error; err != nil {
		return nil, false, err
	}

	state := ""
	if doc.IncidentOverview != nil {
		state = doc.IncidentOverview.State
	}
	ctx = s.log.WithDocumentID(ctx, doc.ID.String())
	s.runner.Go(ctx, "parse_story", func(ctx context.Context) error {
		return s.runStory(ctx, u.ID, doc.ID, story, state)
	}, func(ctx context.Context, err error) {
		s.failStory(ctx, doc.ID, err)
	})
	return &StoryPoll{Status: models.JobProcessing, StartedAt: &now}, true, nil
}

func (s *Service) runStory(ctx context.Context, userID, docID uuid.UUID, story, state string) error {
	facts, err := s.ExtractStory(ctx, story, state)
	if err != nil {
		return err
	}

	var u models.User
	var doc models.Document
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&u, "id = ?", userID).Error; err != nil {
			return err
		}
		if err := documents.Preloaded(tx).First(&doc, "id = ?", docID).Error; err != nil {
			return err
		}
		if _, err := ApplyStory(tx, &doc, facts); err != nil {
			return err
		}
		return tx.Model(&models.Document{}).Where("id = ?", docID).Updates(map[string]any{
			"story_status": models.JobCompleted,
			"story_error":  "",
		}).Error
	})
	if err != nil {
		return err
	}
	s.record(ctx, &u, &doc)
	return nil
}

func (s *Service) failStory(ctx context.Context, docID uuid.UUID, cause error) {
	msg := "We could not read your story. Please try again."
	if errors.Is(cause, ErrStoryMissing) {
		msg = cause.Error()
	}
	if err := s.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", docID).Updates(map[string]any{
		"story_status": models.JobFailed,
		"story_error":  msg,
	}).Error; err != nil {
		s.log.Error(ctx, "mark story failed", err)
	}
}

// StoryStatus reports the state of the latest story parse.
func (s *Service) StoryStatus(ctx context.Context, userID, docID uuid.UUID) (*StoryPoll, error) {
	doc, err := s.docs.Get(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	return &StoryPoll{
		Status:               doc.StoryStatus,
		Error:                doc.StoryError,
		StartedAt:            doc.StoryStartedAt,
		CompletionPercentage: models.CompletionPercentage(doc.Sections),
	}, nil
}
