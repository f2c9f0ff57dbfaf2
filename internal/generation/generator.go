// Package generation assembles the final complaint from a document's sections
// and renders it to PDF.
package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/internal/assist"
	"github.com/aldoetobex/section1983-backend/internal/court"
	"github.com/aldoetobex/section1983-backend/internal/documents"
	"github.com/aldoetobex/section1983-backend/internal/prompts"
	"github.com/aldoetobex/section1983-backend/internal/storage"
	"github.com/aldoetobex/section1983-backend/pkg/logger"
	"github.com/aldoetobex/section1983-backend/pkg/models"
)

var ErrNotGenerated = errors.New("complaint not generated yet")

// Step is one fixed part of the complaint. AI steps fall back to a plain
// template when the model call fails.
type Step struct {
	Key   string
	Title string
	AI    bool
}

var Steps = []Step{
	{Key: "caption", Title: "Caption"},
	{Key: "jurisdiction_venue", Title: "Jurisdiction and Venue"},
	{Key: "parties", Title: "Parties"},
	{Key: "statement_of_facts", Title: "Statement of Facts", AI: true},
	{Key: "causes_of_action", Title: "Causes of Action", AI: true},
	{Key: "damages", Title: "Damages"},
	{Key: "prayer_for_relief", Title: "Prayer for Relief"},
	{Key: "jury_demand_and_signature", Title: "Jury Demand and Signature"},
}

type Section struct {
	Key      string `json:"key"`
	Title    string `json:"title"`
	Text     string `json:"text"`
	Fallback bool   `json:"fallback,omitempty"`
}

type Complaint struct {
	DocumentID  uuid.UUID  `json:"document_id"`
	Title       string     `json:"title"`
	CourtName   string     `json:"court_name"`
	Sections    []Section  `json:"sections"`
	Warnings    []string   `json:"warnings,omitempty"`
	GeneratedAt *time.Time `json:"generated_at"`
}

type Generator struct {
	docs    *documents.Service
	db      *gorm.DB
	prompts *prompts.Store
	ai      *assist.Service
	courts  documents.CourtResolver
	store   storage.Store
	log     *logger.Logger
}

func New(docs *documents.Service, store *prompts.Store, ai *assist.Service, courts documents.CourtResolver, files storage.Store, log *logger.Logger) *Generator {
	return &Generator{docs: docs, db: docs.DB(), prompts: store, ai: ai, courts: courts, store: files, log: log}
}

/* ================================ Values ================================ */

// Values builds every placeholder the complaint templates use.
func Values(doc *models.Document, u *models.User, now time.Time) map[string]string {
	p := doc.PlaintiffInfo
	if p == nil {
		p = documents.PlaintiffFromUser(doc.ID, u)
	}
	var city, state, summary string
	if io := doc.IncidentOverview; io != nil {
		city, state, summary = io.City, io.State, io.Summary
	}

	jury := ""
	if doc.ReliefSought != nil && doc.ReliefSought.JuryTrial {
		jury = "JURY DEMAND\n\nPlaintiff demands a trial by jury on all issues so triable."
	}
	total := "0.00"
	if doc.Damages != nil {
		total = doc.Damages.Total().StringFixed(2)
	}

	plaintiffBlock := p.FullName()
	if addr := plaintiffAddress(p); addr != "" {
		plaintiffBlock += ", residing at " + addr
	}
	if p.IsPrisoner {
		plaintiffBlock += fmt.Sprintf(". Plaintiff is incarcerated at %s, inmate number %s",
			orNA(p.Facility), orNA(p.PrisonerID))
	}
	plaintiffBlock += "."

	return map[string]string{
		"court_name":        orText(court.CourtName(doc.CourtDistrict), "United States District Court"),
		"district":          orText(doc.CourtDistrict, "this District"),
		"plaintiff_name":    p.FullName(),
		"plaintiff_block":   plaintiffBlock,
		"plaintiff_address": plaintiffAddress(p),
		"phone":             p.Phone,
		"email":             p.Email,
		"defendant_names":   documents.DefendantNames(doc),
		"defendant_block":   orText(documents.DefendantText(doc), "Defendants are unknown at this time."),
		"incident_city":     orText(city, "[city]"),
		"incident_state":    orText(state, "[state]"),
		"incident_block":    orText(documents.IncidentText(doc), "(not provided)"),
		"narrative":         orText(documents.NarrativeText(doc), orText(summary, "(not provided)")),
		"witness_block":     orText(documents.WitnessText(doc), "None identified."),
		"evidence_block":    orText(documents.EvidenceText(doc), "None identified."),
		"rights_list":       orText(documents.RightsText(doc), "the Constitution of the United States"),
		"facts":             documents.FactsText(doc),
		"damages_block":     orText(documents.DamagesText(doc), "Plaintiff suffered damages in an amount to be proven at trial."),
		"damages_total":     total,
		"relief_block":      numbered(documents.ReliefText(doc)),
		"jury_line":         jury,
		"date":              now.Format("January 2, 2006"),
	}
}

func plaintiffAddress(p *models.PlaintiffInfo) string {
	line2 := strings.TrimSpace(strings.TrimSpace(p.State) + " " + strings.TrimSpace(p.ZipCode))
	parts := []string{}
	for _, v := range []string{p.Street, p.City, line2} {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

func numbered(lines string) string {
	if strings.TrimSpace(lines) == "" {
		return "1. Award such other relief as the Court deems just and proper."
	}
	var b strings.Builder
	n := 0
	for _, l := range strings.Split(lines, "\n") {
		if l = strings.TrimSpace(l); l == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d. %s;\n", n, l)
	}
	fmt.Fprintf(&b, "%d. Award such other relief as the Court deems just and proper.", n+1)
	return b.String()
}

func orText(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func orNA(v string) string { return orText(v, "N/A") }

/* =============================== Pipeline =============================== */

// Generate runs every step in order and stores the result. A failed step
// never stops the pipeline; its error is returned as a warning.
func (g *Generator) Generate(ctx context.Context, userID, docID uuid.UUID) (*Complaint, error) {
	var u models.User
	if err := g.db.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		return nil, assist.ErrUnauthorized
	}
	doc, err := g.docs.GetFull(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	switch {
	case doc.PaymentStatus == models.PaymentFinalized:
		return nil, documents.ErrFinalized
	case !doc.IsPaid() && !u.HasUnlimitedAccess():
		return nil, documents.ErrPaymentRequired
	case !doc.CanUseAI(&u, g.docs.Now(), g.docs.Policy()):
		return nil, assist.ErrAILimit
	}

	g.ensureCourt(ctx, doc)
	now := g.docs.Now()
	values := Values(doc, &u, now)

	var errs error
	usedAI := false
	sections := make([]Section, 0, len(Steps))
	for _, st := range Steps {
		sec, aiOK, err := g.runStep(ctx, st, values)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", st.Key, err))
		}
		usedAI = usedAI || aiOK
		sections = append(sections, sec)
	}

	raw, _ := json.Marshal(sections)
	updates := map[string]any{
		"generated_sections": datatypes.JSON(raw),
		"statement_of_facts": textOf(sections, "statement_of_facts"),
		"causes_of_action":   textOf(sections, "causes_of_action"),
		"generated_at":       now,
	}
	if err := g.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", doc.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	if usedAI {
		if err := assist.Record(ctx, g.db, &u, doc); err != nil {
			g.log.Error(ctx, "record generation usage", err)
		}
	}

	c := &Complaint{
		DocumentID:  doc.ID,
		Title:       doc.Title,
		CourtName:   values["court_name"],
		Sections:    sections,
		GeneratedAt: &now,
	}
	for _, e := range multierr.Errors(errs) {
		g.log.Warn(ctx, "complaint step fell back: "+e.Error())
		c.Warnings = append(c.Warnings, e.Error())
	}
	return c, nil
}

func (g *Generator) runStep(ctx context.Context, st Step, values map[string]string) (Section, bool, error) {
	sec := Section{Key: st.Key, Title: st.Title}
	key := "gen_" + st.Key
	if !st.AI {
		text, err := g.render(ctx, key, values)
		sec.Text = text
		return sec, false, err
	}

	text, err := g.ai.Complete(ctx, key, values)
	if err == nil && strings.TrimSpace(text) != "" {
		sec.Text = strings.TrimSpace(text)
		return sec, true, nil
	}
	if err == nil {
		err = assist.ErrBadModelOutput
	}
	fallback, ferr := g.render(ctx, key+"_fallback", values)
	sec.Text = fallback
	sec.Fallback = true
	return sec, false, multierr.Append(err, ferr)
}

// render fills a stored template, retrying with the built-in one when an
// edited template no longer renders.
func (g *Generator) render(ctx context.Context, key string, values map[string]string) (string, error) {
	_, text, err := g.prompts.RenderUser(ctx, key, values)
	if err == nil {
		return strings.TrimSpace(text), nil
	}
	if def, ok := g.prompts.Default(key); ok {
		if text, derr := prompts.Render(def.User, values); derr == nil {
			return strings.TrimSpace(text), err
		}
	}
	return "", err
}

// ensureCourt resolves and stores the court when the document has none.
func (g *Generator) ensureCourt(ctx context.Context, doc *models.Document) {
	if doc.CourtDistrict != "" || g.courts == nil || doc.IncidentOverview == nil || doc.IncidentOverview.State == "" {
		return
	}
	res := g.courts.Resolve(doc.IncidentOverview.City, doc.IncidentOverview.State)
	if res.District == "" {
		return
	}
	doc.CourtDistrict, doc.CourtState, doc.CourtCity, doc.CourtConfidence = res.District, res.State, res.City, string(res.Confidence)
	if err := g.db.WithContext(ctx).Model(&models.Document{}).Where("id = ?", doc.ID).Updates(map[string]any{
		"court_district":   res.District,
		"court_state":      res.State,
		"court_city":       res.City,
		"court_confidence": string(res.Confidence),
	}).Error; err != nil {
		g.log.Error(ctx, "store resolved court", err)
	}
}

func textOf(sections []Section, key string) string {
	for _, s := range sections {
		if s.Key == key {
			return s.Text
		}
	}
	return ""
}

/* ================================ Stored ================================ */

// Stored returns the last generated complaint of a document.
func (g *Generator) Stored(ctx context.Context, userID, docID uuid.UUID) (*Complaint, error) {
	doc, err := g.docs.Get(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	return stored(doc)
}

func stored(doc *models.Document) (*Complaint, error) {
	if doc.GeneratedAt == nil || len(doc.GeneratedSections) == 0 {
		return nil, ErrNotGenerated
	}
	var sections []Section
	if err := json.Unmarshal(doc.GeneratedSections, &sections); err != nil {
		return nil, fmt.Errorf("decode generated sections: %w", err)
	}
	return &Complaint{
		DocumentID:  doc.ID,
		Title:       doc.Title,
		CourtName:   court.CourtName(doc.CourtDistrict),
		Sections:    sections,
		GeneratedAt: doc.GeneratedAt,
	}, nil
}
