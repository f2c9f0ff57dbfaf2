package documents

import (
	"fmt"
	"strings"

	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/sanitize"
)

// Plain-text renderings of a fully preloaded document, shared by the AI
// prompts and the complaint generator.

func IncidentText(doc *models.Document) string {
	io := doc.IncidentOverview
	if io == nil {
		return ""
	}
	var b strings.Builder
	if io.IncidentDate != nil {
		fmt.Fprintf(&b, "Date: %s\n", io.IncidentDate.Format("January 2, 2006"))
	}
	if io.IncidentTime != "" {
		fmt.Fprintf(&b, "Time: %s\n", io.IncidentTime)
	}
	if loc := joinNonEmpty(", ", io.Street, io.City, io.State, io.ZipCode); loc != "" {
		fmt.Fprintf(&b, "Location: %s\n", loc)
	}
	if io.LocationDescription != "" {
		fmt.Fprintf(&b, "Location details: %s\n", io.LocationDescription)
	}
	if io.WasRecording {
		b.WriteString("The plaintiff was recording during the incident.\n")
	}
	if io.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", io.Summary)
	}
	return strings.TrimSpace(b.String())
}

func NarrativeText(doc *models.Document) string {
	n := doc.Narrative
	if n == nil {
		return strings.TrimSpace(doc.StoryText)
	}
	if n.FullNarrative != "" {
		return n.FullNarrative
	}
	parts := []string{}
	if n.BeforeIncident != "" {
		parts = append(parts, "Before: "+n.BeforeIncident)
	}
	if n.DuringIncident != "" {
		parts = append(parts, "During: "+n.DuringIncident)
	}
	if n.AfterIncident != "" {
		parts = append(parts, "After: "+n.AfterIncident)
	}
	if len(parts) == 0 {
		return strings.TrimSpace(doc.StoryText)
	}
	return strings.Join(parts, "\n\n")
}

func DefendantNames(doc *models.Document) string {
	names := make([]string, 0, len(doc.Defendants))
	for _, d := range doc.Defendants {
		names = append(names, d.Name)
	}
	if len(names) == 0 {
		return "Unknown Defendants"
	}
	return strings.Join(names, ", ")
}

func DefendantText(doc *models.Document) string {
	var b strings.Builder
	for i, d := range doc.Defendants {
		fmt.Fprintf(&b, "%d. %s", i+1, d.Name)
		if d.Title != "" {
			fmt.Fprintf(&b, ", %s", d.Title)
		}
		if d.BadgeNumber != "" {
			fmt.Fprintf(&b, " (badge %s)", d.BadgeNumber)
		}
		if d.AgencyName != "" {
			fmt.Fprintf(&b, ", employed by %s", d.AgencyName)
		}
		if d.AgencyAddress != "" {
			fmt.Fprintf(&b, ", %s", d.AgencyAddress)
		}
		fmt.Fprintf(&b, ". Sued in %s capacity.", capacityText(d.Capacity))
		if d.Description != "" {
			fmt.Fprintf(&b, " %s", d.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func capacityText(c models.Capacity) string {
	switch c {
	case models.CapacityIndividual:
		return "an individual"
	case models.CapacityOfficial:
		return "an official"
	default:
		return "both individual and official"
	}
}

func WitnessText(doc *models.Document) string {
	var b strings.Builder
	for _, w := range doc.Witnesses {
		fmt.Fprintf(&b, "- %s", w.Name)
		if w.Relationship != "" {
			fmt.Fprintf(&b, " (%s)", w.Relationship)
		}
		if w.Statement != "" {
			fmt.Fprintf(&b, ": %s", w.Statement)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func EvidenceText(doc *models.Document) string {
	var b strings.Builder
	for _, e := range doc.Evidence {
		fmt.Fprintf(&b, "- [%s] %s", e.EvidenceType, e.Description)
		if e.Transcript != "" {
			fmt.Fprintf(&b, "\n  Transcript excerpt: %s", sanitize.Summary(e.Transcript, 600))
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func DamagesText(doc *models.Document) string {
	d := doc.Damages
	if d == nil {
		return ""
	}
	var b strings.Builder
	if d.PhysicalInjury {
		fmt.Fprintf(&b, "Physical injury: %s\n", orDefault(d.PhysicalDescription, "yes"))
	}
	if d.EmotionalDistress {
		fmt.Fprintf(&b, "Emotional distress: %s\n", orDefault(d.EmotionalDescription, "yes"))
	}
	if d.FinancialLoss || d.Total().IsPositive() {
		fmt.Fprintf(&b, "Medical expenses: $%s\n", d.MedicalExpenses.StringFixed(2))
		fmt.Fprintf(&b, "Lost wages: $%s\n", d.LostWages.StringFixed(2))
		fmt.Fprintf(&b, "Property damage: $%s\n", d.PropertyDamage.StringFixed(2))
		if d.OtherAmount.IsPositive() {
			fmt.Fprintf(&b, "Other: $%s\n", d.OtherAmount.StringFixed(2))
		}
	}
	if d.Description != "" {
		fmt.Fprintf(&b, "%s\n", d.Description)
	}
	return strings.TrimSpace(b.String())
}

func RightsList(doc *models.Document) []string {
	if doc.RightsViolated == nil {
		return nil
	}
	return doc.RightsViolated.Selected()
}

var rightLabels = map[string]string{
	models.RightFirstSpeech:         "First Amendment (freedom of speech)",
	models.RightFirstRetaliation:    "First Amendment (retaliation)",
	models.RightFourthSearch:        "Fourth Amendment (unreasonable search)",
	models.RightFourthSeizure:       "Fourth Amendment (unreasonable seizure / false arrest)",
	models.RightFourthForce:         "Fourth Amendment (excessive force)",
	models.RightEighth:              "Eighth Amendment (cruel and unusual punishment)",
	models.RightFourteenthDue:       "Fourteenth Amendment (due process)",
	models.RightFourteenthEqualProt: "Fourteenth Amendment (equal protection)",
}

// RightLabel is the human label of a right category.
func RightLabel(category string) string {
	if l, ok := rightLabels[category]; ok {
		return l
	}
	return category
}

func RightsText(doc *models.Document) string {
	rights := RightsList(doc)
	labels := make([]string, 0, len(rights))
	for _, r := range rights {
		labels = append(labels, RightLabel(r))
	}
	return strings.Join(labels, "; ")
}

// FactsText is the fact summary handed to the AI assists.
func FactsText(doc *models.Document) string {
	blocks := []struct{ title, body string }{
		{"Incident", IncidentText(doc)},
		{"What happened", NarrativeText(doc)},
		{"Defendants", DefendantText(doc)},
		{"Witnesses", WitnessText(doc)},
		{"Evidence", EvidenceText(doc)},
		{"Damages", DamagesText(doc)},
	}
	var b strings.Builder
	for _, bl := range blocks {
		if bl.body == "" {
			continue
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", bl.title, bl.body)
	}
	return strings.TrimSpace(b.String())
}

// DraftText renders every section for a whole-document review, headed by
// section type so the reviewer can point at it.
func DraftText(doc *models.Document) string {
	var b strings.Builder
	if p := doc.PlaintiffInfo; p != nil {
		fmt.Fprintf(&b, "[plaintiff_info]\n%s, %s\n\n", p.FullName(), joinNonEmpty(", ", p.City, p.State))
	}
	section := func(t models.SectionType, body string) {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", t, orDefault(body, "(empty)"))
	}
	section(models.SectionIncidentOverview, IncidentText(doc))
	section(models.SectionDefendants, DefendantText(doc))
	section(models.SectionNarrative, NarrativeText(doc))
	if doc.RightsViolated != nil && doc.RightsViolated.Details != "" {
		section(models.SectionRightsViolated, RightsText(doc)+"\n"+doc.RightsViolated.Details)
	} else {
		section(models.SectionRightsViolated, RightsText(doc))
	}
	section(models.SectionWitnesses, WitnessText(doc))
	section(models.SectionEvidence, EvidenceText(doc))
	section(models.SectionDamages, DamagesText(doc))
	if pc := doc.PriorComplaints; pc != nil && pc.FiledComplaint {
		section(models.SectionPriorComplaints, joinNonEmpty(" / ", pc.AgencyName, pc.ComplaintNumber, pc.Outcome))
	}
	section(models.SectionReliefSought, ReliefText(doc))
	return strings.TrimSpace(b.String())
}

func ReliefText(doc *models.Document) string {
	r := doc.ReliefSought
	if r == nil {
		return ""
	}
	var items []string
	if r.Compensatory {
		item := "Compensatory damages"
		if r.AmountRequested.IsPositive() {
			item += " in the amount of $" + r.AmountRequested.StringFixed(2)
		}
		items = append(items, item)
	}
	if r.Punitive {
		items = append(items, "Punitive damages against the individual defendants")
	}
	if r.Declaratory {
		items = append(items, "A declaration that the defendants violated the plaintiff's constitutional rights")
	}
	if r.Injunctive {
		items = append(items, "Injunctive relief")
	}
	if r.AttorneyFees {
		items = append(items, "Costs and reasonable attorney's fees under 42 U.S.C. 1988")
	}
	if r.OtherRelief != "" {
		items = append(items, r.OtherRelief)
	}
	return strings.Join(items, "\n")
}

func joinNonEmpty(sep string, vals ...string) string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
