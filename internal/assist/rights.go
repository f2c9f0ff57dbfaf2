package assist

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/internal/documents"
	"github.com/aldoetobex/section1983-backend/pkg/llm"
	"github.com/aldoetobex/section1983-backend/pkg/models"
)

type CaseCite struct {
	Name     string `json:"name"`
	Citation string `json:"citation"`
	Court    string `json:"court,omitempty"`
	Year     int    `json:"year,omitempty"`
	Holding  string `json:"holding,omitempty"`
}

type Violation struct {
	Right       string     `json:"right"`
	Label       string     `json:"label"`
	Amendment   string     `json:"amendment"`
	Explanation string     `json:"explanation"`
	Confidence  string     `json:"confidence"`
	CaseLaw     []CaseCite `json:"case_law"`
}

type RightsAnalysis struct {
	Violations  []Violation `json:"violations"`
	AIRemaining int         `json:"ai_remaining"`
}

func normConfidence(s string) string {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "high", "medium", "low":
		return s
	default:
		return "low"
	}
}

// SuggestRights asks the model which rights the facts implicate. Unknown
// categories and repeats are dropped. Usage is not counted.
func (s *Service) SuggestRights(ctx context.Context, facts string) ([]Violation, error) {
	if strings.TrimSpace(facts) == "" {
		return nil, ErrStoryMissing
	}
	r, err := s.CompleteJSON(ctx, "analyze_rights", map[string]string{
		"categories": strings.Join(models.RightCategories, ", "),
		"facts":      facts,
	})
	if err != nil {
		return nil, err
	}

	allowed := map[string]bool{}
	for _, c := range models.RightCategories {
		allowed[c] = true
	}
	out := []Violation{}
	seen := map[string]bool{}
	for _, v := range r.Get("violations").Array() {
		right := strings.ToLower(llm.Str(v, "right"))
		if !allowed[right] || seen[right] {
			continue
		}
		seen[right] = true
		out = append(out, Violation{
			Right:       right,
			Label:       documents.RightLabel(right),
			Amendment:   llm.Str(v, "amendment"),
			Explanation: llm.Str(v, "explanation"),
			Confidence:  normConfidence(llm.Str(v, "confidence")),
			CaseLaw:     []CaseCite{},
		})
	}
	if err := s.attachCaseLaw(ctx, out); err != nil {
		s.log.Warn(ctx, "case law lookup failed: "+err.Error())
	}
	return out, nil
}

func (s *Service) attachCaseLaw(ctx context.Context, vs []Violation) error {
	if len(vs) == 0 {
		return nil
	}
	cats := make([]string, len(vs))
	for i, v := range vs {
		cats[i] = v.Right
	}
	var rows []models.CaseLaw
	if err := s.db.WithContext(ctx).
		Where("is_active = ? AND category IN ?", true, cats).
		Order("year desc").Find(&rows).Error; err != nil {
		return err
	}
	for i := range vs {
		for _, cl := range rows {
			if cl.Category == vs[i].Right {
				vs[i].CaseLaw = append(vs[i].CaseLaw, CaseCite{
					Name: cl.Name, Citation: cl.Citation, Court: cl.Court, Year: cl.Year, Holding: cl.Holding,
				})
			}
		}
	}
	return nil
}

// AnalyzeRights suggests violated rights for a document and keeps the
// suggestions on its rights section. The flags themselves are left for the
// user to confirm.
func (s *Service) AnalyzeRights(ctx context.Context, userID, docID uuid.UUID) (*RightsAnalysis, error) {
	u, doc, err := s.begin(ctx, userID, docID)
	if err != nil {
		return nil, err
	}
	vs, err := s.SuggestRights(ctx, documents.FactsText(doc))
	if err != nil {
		return nil, err
	}

	raw, _ := json.Marshal(vs)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rv := doc.RightsViolated
		if rv == nil {
			rv = &models.RightsViolated{DocumentID: doc.ID}
		}
		rv.AISuggestions = datatypes.JSON(raw)
		if err := tx.Save(rv).Error; err != nil {
			return err
		}
		return documents.TouchSection(tx, doc.ID, models.SectionRightsViolated)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, u, doc)
	return &RightsAnalysis{Violations: vs, AIRemaining: doc.RemainingAI(u, s.docs.Policy())}, nil
}
