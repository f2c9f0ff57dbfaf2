package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/internal/assist"
	"github.com/aldoetobex/section1983-backend/internal/documents"
	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/validation"
)

var errClaimed = errors.New("session already converted")

// answers is every step decoded into its DTO.
type answers struct {
	plaintiff  PlaintiffStep
	incident   IncidentStep
	story      StoryStep
	defendants DefendantsStep
	witnesses  WitnessesEvidenceStep
	damages    DamagesStep
	relief     ReliefStep
}

func readAnswers(sess *models.WizardSession) (*answers, []int) {
	a := &answers{}
	dst := []any{&a.plaintiff, &a.incident, &a.story, &a.defendants, &a.witnesses, &a.damages, &a.relief}
	var missing []int
	for i, d := range dst {
		if !stepInto(sess, i+1, d) {
			missing = append(missing, i+1)
		}
	}
	return a, missing
}

func money(m Money) (out decimal.Decimal) {
	out, _ = validation.ParseMoney(string(m))
	return out
}

/* ========================= In-memory document =========================== */

// draftDocument lays the answers so far over an unsaved document, enough for
// the fact summary handed to the model.
func draftDocument(sess *models.WizardSession) *models.Document {
	a, _ := readAnswers(sess)
	doc := &models.Document{StoryText: a.story.StoryText}
	doc.IncidentOverview = a.incidentRow(uuid.Nil)
	doc.Narrative = &models.IncidentNarrative{FullNarrative: a.story.StoryText}
	for _, d := range a.defendants.Defendants {
		doc.Defendants = append(doc.Defendants, *d.Row(uuid.Nil))
	}
	for _, w := range a.witnesses.Witnesses {
		doc.Witnesses = append(doc.Witnesses, *w.Row(uuid.Nil))
	}
	for _, e := range a.witnesses.Evidence {
		doc.Evidence = append(doc.Evidence, *e.Row(uuid.Nil))
	}
	doc.Damages = a.damagesRow(uuid.Nil)
	return doc
}

func (a *answers) incidentRow(docID uuid.UUID) *models.IncidentOverview {
	date, _ := validation.ParseDate(a.incident.IncidentDate)
	return &models.IncidentOverview{
		DocumentID:          docID,
		IncidentDate:        date,
		IncidentTime:        a.incident.IncidentTime,
		City:                a.incident.City,
		State:               a.incident.State,
		LocationDescription: strings.TrimSpace(a.incident.LocationDescription),
		Summary:             strings.TrimSpace(a.incident.Summary),
	}
}

func (a *answers) damagesRow(docID uuid.UUID) *models.Damages {
	d := a.damages
	return &models.Damages{
		DocumentID:        docID,
		PhysicalInjury:    d.PhysicalInjury,
		EmotionalDistress: d.EmotionalDistress,
		FinancialLoss:     d.FinancialLoss,
		MedicalExpenses:   money(d.MedicalExpenses),
		LostWages:         money(d.LostWages),
		PropertyDamage:    money(d.PropertyDamage),
		Description:       strings.TrimSpace(d.DamagesDescription),
	}
}

func (a *answers) reliefRow(docID uuid.UUID) *models.ReliefSought {
	r := a.relief
	return &models.ReliefSought{
		DocumentID:      docID,
		Compensatory:    r.Compensatory,
		Punitive:        r.Punitive,
		Declaratory:     r.Declaratory,
		Injunctive:      r.Injunctive,
		AttorneyFees:    r.AttorneyFees,
		JuryTrial:       r.JuryTrial,
		AmountRequested: money(r.AmountRequested),
		OtherRelief:     strings.TrimSpace(r.OtherRelief),
	}
}

/* =============================== Complete =============================== */

// Complete turns a fully answered session into a draft document. Calling it
// again returns the same document.
func (s *Service) Complete(ctx context.Context, userID, sessionID uuid.UUID) (*models.Document, error) {
	sess, err := s.Get(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.DocumentID != nil {
		return s.docs.GetFull(ctx, userID, *sess.DocumentID)
	}
	a, missing := readAnswers(sess)
	if len(missing) > 0 {
		return nil, &MissingStepsError{Steps: missing}
	}

	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		return nil, assist.ErrUnauthorized
	}
	if err := s.fillProfile(ctx, &u, a.plaintiff); err != nil {
		return nil, fmt.Errorf("fill profile: %w", err)
	}

	doc, err := s.docs.Create(ctx, &u, "")
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.WizardSession{}).
			Where("id = ? AND document_id IS NULL", sess.ID).
			Updates(map[string]any{"document_id": doc.ID, "completed_at": s.docs.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errClaimed
		}
		return s.populate(tx, doc.ID, sess, a)
	})
	if errors.Is(err, errClaimed) {
		// Lost a race with a concurrent completion: drop our copy.
		if derr := s.docs.DeleteDraft(ctx, userID, doc.ID); derr != nil {
			s.log.Error(ctx, "drop duplicate wizard draft", derr)
		}
		fresh, gerr := s.Get(ctx, userID, sessionID)
		if gerr != nil {
			return nil, gerr
		}
		return s.docs.GetFull(ctx, userID, *fresh.DocumentID)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info(s.log.WithDocumentID(ctx, doc.ID.String()), "wizard session completed")
	return s.docs.GetFull(ctx, userID, doc.ID)
}

// fillProfile copies step 1 into profile fields the user left blank.
func (s *Service) fillProfile(ctx context.Context, u *models.User, p PlaintiffStep) error {
	updates := map[string]any{}
	set := func(col string, cur *string, v string) {
		if strings.TrimSpace(*cur) == "" && v != "" {
			*cur = v
			updates[col] = v
		}
	}
	set("first_name", &u.FirstName, p.FirstName)
	set("last_name", &u.LastName, p.LastName)
	set("street", &u.Street, strings.TrimSpace(p.Street))
	set("city", &u.City, strings.TrimSpace(p.City))
	set("state", &u.State, p.State)
	set("zip_code", &u.ZipCode, p.Zip)
	set("phone", &u.Phone, strings.TrimSpace(p.Phone))
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(u).Updates(updates).Error
}

// populate writes the answers into the new document's child rows and sets
// each section's status from what ended up there.
func (s *Service) populate(tx *gorm.DB, docID uuid.UUID, sess *models.WizardSession, a *answers) error {
	p := a.plaintiff
	pi := map[string]any{
		"first_name":  p.FirstName,
		"last_name":   p.LastName,
		"street":      strings.TrimSpace(p.Street),
		"city":        strings.TrimSpace(p.City),
		"state":       p.State,
		"zip_code":    p.Zip,
		"is_prisoner": p.IsPrisoner,
	}
	if v := strings.TrimSpace(p.Phone); v != "" {
		pi["phone"] = v
	}
	if p.Email != "" {
		pi["email"] = p.Email
	}
	if err := tx.Model(&models.PlaintiffInfo{}).Where("document_id = ?", docID).Updates(pi).Error; err != nil {
		return fmt.Errorf("plaintiff: %w", err)
	}

	if err := tx.Model(&models.Document{}).Where("id = ?", docID).Updates(map[string]any{
		"story_text":   a.story.StoryText,
		"story_status": sess.StoryStatus,
	}).Error; err != nil {
		return err
	}

	rows := []any{
		a.incidentRow(docID),
		&models.IncidentNarrative{DocumentID: docID, FullNarrative: a.story.StoryText},
		a.damagesRow(docID),
		a.reliefRow(docID),
	}
	for _, d := range a.defendants.Defendants {
		rows = append(rows, d.Row(docID))
	}
	for _, w := range a.witnesses.Witnesses {
		rows = append(rows, w.Row(docID))
	}
	for _, e := range a.witnesses.Evidence {
		rows = append(rows, e.Row(docID))
	}
	if len(sess.AnalysisResult) > 0 {
		rows = append(rows, &models.RightsViolated{DocumentID: docID, AISuggestions: analysisSuggestions(sess.AnalysisResult)})
	}
	for _, r := range rows {
		if err := tx.Create(r).Error; err != nil {
			return fmt.Errorf("create %T: %w", r, err)
		}
	}

	var doc models.Document
	if err := documents.Preloaded(tx).First(&doc, "id = ?", docID).Error; err != nil {
		return err
	}
	if len(sess.StoryResult) > 0 {
		var facts assist.StoryFacts
		if err := json.Unmarshal(sess.StoryResult, &facts); err == nil {
			if _, err := assist.ApplyStory(tx, &doc, &facts); err != nil {
				return fmt.Errorf("apply story: %w", err)
			}
		}
	}
	return syncSections(tx, &doc)
}

// analysisSuggestions keeps the violations list of a stored analysis result.
func analysisSuggestions(raw datatypes.JSON) datatypes.JSON {
	var out struct {
		Violations json.RawMessage `json:"violations"`
	}
	if json.Unmarshal(raw, &out) != nil || len(out.Violations) == 0 {
		return nil
	}
	return datatypes.JSON(out.Violations)
}

func syncSections(tx *gorm.DB, doc *models.Document) error {
	status := func(ok bool) models.SectionStatus {
		if ok {
			return models.SectionCompleted
		}
		return models.SectionInProgress
	}
	single := map[models.SectionType]models.SectionStatus{}
	if doc.PlaintiffInfo != nil {
		single[models.SectionPlaintiffInfo] = status(documents.PlaintiffComplete(doc.PlaintiffInfo))
	}
	if doc.IncidentOverview != nil {
		single[models.SectionIncidentOverview] = status(documents.IncidentComplete(doc.IncidentOverview))
	}
	if doc.Narrative != nil {
		single[models.SectionNarrative] = status(documents.NarrativeComplete(doc.Narrative))
	}
	if doc.Damages != nil {
		single[models.SectionDamages] = status(documents.DamagesComplete(doc.Damages))
	}
	if doc.ReliefSought != nil {
		single[models.SectionReliefSought] = status(documents.ReliefComplete(doc.ReliefSought))
	}
	if doc.RightsViolated != nil {
		// Suggestions are never checked on the user's behalf.
		single[models.SectionRightsViolated] = status(documents.RightsComplete(doc.RightsViolated))
	}
	for _, t := range models.SectionTypes {
		st, ok := single[t]
		if !ok {
			continue
		}
		if err := documents.SetSectionStatus(tx, doc.ID, t, st); err != nil {
			return err
		}
	}

	lists := []struct {
		t     models.SectionType
		model any
	}{
		{models.SectionDefendants, &models.Defendant{}},
		{models.SectionWitnesses, &models.Witness{}},
		{models.SectionEvidence, &models.Evidence{}},
	}
	for _, l := range lists {
		if err := documents.SyncListSection(tx, doc.ID, l.t, l.model); err != nil {
			return err
		}
	}
	return nil
}
