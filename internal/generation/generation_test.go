package generation

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/internal/assist"
	"github.com/aldoetobex/section1983-backend/internal/auth"
	"github.com/aldoetobex/section1983-backend/internal/court"
	"github.com/aldoetobex/section1983-backend/internal/documents"
	"github.com/aldoetobex/section1983-backend/internal/jobs"
	"github.com/aldoetobex/section1983-backend/internal/prompts"
	"github.com/aldoetobex/section1983-backend/internal/storage"
	"github.com/aldoetobex/section1983-backend/pkg/llm"
	"github.com/aldoetobex/section1983-backend/pkg/logger"
	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/testutil"
)

type fixture struct {
	db    *gorm.DB
	docs  *documents.Service
	gen   *Generator
	files *storage.Memory
	user  *models.User
}

func newFixture(t *testing.T, fn llm.CompleterFunc) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	log := logger.Nop()
	store, err := prompts.NewStore(db, nil, time.Minute, log)
	require.NoError(t, err)
	docs := documents.NewService(db, models.DefaultPolicy(), log, nil)
	ai, err := assist.NewService(assist.Deps{
		Docs: docs, Prompts: store, LLM: fn, Runner: jobs.NewRunner(log, nil), Log: log,
	})
	require.NoError(t, err)

	f := &fixture{db: db, docs: docs, files: storage.NewMemory()}
	f.gen = New(docs, store, ai, court.NewHandler(court.Default(), nil), f.files, log)
	f.user = testutil.SeedUser(t, db)
	return f
}

// paidDoc builds a purchased document with enough facts for every step.
func (f *fixture) paidDoc(t *testing.T) *models.Document {
	t.Helper()
	doc, err := f.docs.Create(context.Background(), f.user, "")
	require.NoError(t, err)
	day := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	rows := []any{
		&models.IncidentOverview{DocumentID: doc.ID, IncidentDate: &day, City: "Houston", State: "TX", Summary: "Tackled while filming"},
		&models.Defendant{DocumentID: doc.ID, Name: "Officer J. Miller", AgencyName: "Houston Police Department",
			DefendantType: models.DefendantIndividual, Capacity: models.CapacityBoth},
		&models.RightsViolated{DocumentID: doc.ID, FourthAmendmentExcessiveForce: true},
		&models.Damages{DocumentID: doc.ID, PhysicalInjury: true, MedicalExpenses: decimal.NewFromInt(1200)},
		&models.ReliefSought{DocumentID: doc.ID, Compensatory: true, JuryTrial: true},
	}
	for _, r := range rows {
		require.NoError(t, f.db.Create(r).Error)
	}
	require.NoError(t, f.db.Model(doc).Update("payment_status", models.PaymentPaid).Error)
	return doc
}

func byKey(c *Complaint) map[string]Section {
	out := map[string]Section{}
	for _, s := range c.Sections {
		out[s.Key] = s
	}
	return out
}

func TestGenerateRunsEveryStepAndFallsBack(t *testing.T) {
	f := newFixture(t, func(_ context.Context, req llm.Request) (string, error) {
		if strings.Contains(req.System, "Statement of Facts") {
			return "1. On March 2, 2024, I was filming a traffic stop.", nil
		}
		return "", errors.New("timeout")
	})
	doc := f.paidDoc(t)

	c, err := f.gen.Generate(context.Background(), f.user.ID, doc.ID)
	require.NoError(t, err)
	require.Len(t, c.Sections, len(Steps))
	for i, st := range Steps {
		assert.Equal(t, st.Key, c.Sections[i].Key)
	}

	s := byKey(c)
	assert.Contains(t, s["caption"].Text, "United States District Court for the Southern District of Texas")
	assert.Contains(t, s["caption"].Text, "Ana Reyes")
	assert.Contains(t, s["jurisdiction_venue"].Text, "Houston, TX")
	assert.False(t, s["statement_of_facts"].Fallback)
	assert.True(t, s["causes_of_action"].Fallback)
	assert.Contains(t, s["causes_of_action"].Text, "Officer J. Miller")
	assert.Contains(t, s["causes_of_action"].Text, "excessive force")
	assert.Contains(t, s["damages"].Text, "$1200.00")
	assert.Contains(t, s["jury_demand_and_signature"].Text, "trial by jury")
	require.Len(t, c.Warnings, 1)
	assert.Contains(t, c.Warnings[0], "causes_of_action")

	var got models.Document
	require.NoError(t, f.db.First(&got, "id = ?", doc.ID).Error)
	assert.Equal(t, "Southern District of Texas", got.CourtDistrict)
	assert.NotNil(t, got.GeneratedAt)
	assert.Equal(t, s["statement_of_facts"].Text, got.StatementOfFacts)
	assert.Equal(t, 1, got.AIGenerationsUsed)
}

func TestGenerateWithoutModelIsNotCounted(t *testing.T) {
	f := newFixture(t, func(context.Context, llm.Request) (string, error) { return "", errors.New("down") })
	doc := f.paidDoc(t)

	c, err := f.gen.Generate(context.Background(), f.user.ID, doc.ID)
	require.NoError(t, err)
	assert.Len(t, c.Warnings, 2)
	assert.Contains(t, byKey(c)["statement_of_facts"].Text, "Tackled while filming")

	var got models.Document
	require.NoError(t, f.db.First(&got, "id = ?", doc.ID).Error)
	assert.Zero(t, got.AIGenerationsUsed)
}

func TestGenerateRequiresPurchaseUnlessStaff(t *testing.T) {
	f := newFixture(t, func(context.Context, llm.Request) (string, error) { return "text", nil })
	doc, err := f.docs.Create(context.Background(), f.user, "")
	require.NoError(t, err)

	_, err = f.gen.Generate(context.Background(), f.user.ID, doc.ID)
	assert.ErrorIs(t, err, documents.ErrPaymentRequired)

	require.NoError(t, f.db.Model(f.user).Update("is_staff", true).Error)
	_, err = f.gen.Generate(context.Background(), f.user.ID, doc.ID)
	assert.NoError(t, err)

	require.NoError(t, f.db.Model(doc).Update("payment_status", models.PaymentFinalized).Error)
	_, err = f.gen.Generate(context.Background(), f.user.ID, doc.ID)
	assert.ErrorIs(t, err, documents.ErrFinalized)
}

func TestNumberedRelief(t *testing.T) {
	assert.Equal(t, "1. A;\n2. B;\n3. Award such other relief as the Court deems just and proper.", numbered("A\n\nB"))
	assert.Equal(t, "1. Award such other relief as the Court deems just and proper.", numbered(""))
}

func TestPDFEndpoints(t *testing.T) {
	f := newFixture(t, func(context.Context, llm.Request) (string, error) { return "1. Fact § one.", nil })
	doc := f.paidDoc(t)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	NewHandler(f.gen).Mount(app.Group("/api", testutil.InjectAuth(f.user.ID, false)))
	base := "/api/documents/" + doc.ID.String()

	resp := testutil.Do(t, app, http.MethodGet, base+"/pdf", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = testutil.Do(t, app, http.MethodPost, base+"/generate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = testutil.Do(t, app, http.MethodGet, base+"/pdf", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "%PDF"))

	resp = testutil.Do(t, app, http.MethodPost, base+"/pdf/link", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	link := testutil.DecodeMap(t, resp)
	assert.True(t, strings.HasPrefix(link["url"].(string), "memory://documents/"+doc.ID.String()))

	resp = testutil.Do(t, app, http.MethodGet, base+"/complaint", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var c Complaint
	testutil.Decode(t, resp, &c)
	assert.Len(t, c.Sections, len(Steps))
}
