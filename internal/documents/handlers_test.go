package documents

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/internal/auth"
	"github.com/aldoetobex/section1983-backend/internal/court"
	"github.com/aldoetobex/section1983-backend/internal/storage"
	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/testutil"
)

/* ============================================================================
   Helpers
   ============================================================================ */

type fixture struct {
	db    *gorm.DB
	svc   *Service
	store *storage.Memory
	app   *fiber.App
	user  *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	f := &fixture{db: db, svc: newService(db), store: storage.NewMemory()}
	f.user = testutil.SeedUser(t, db)

	h := NewHandler(f.svc, f.store, court.NewHandler(court.Default(), nil))
	f.app = fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	h.Mount(f.app.Group("/api", testutil.InjectAuth(f.user.ID, false)))
	return f
}

func (f *fixture) createDoc(t *testing.T) string {
	t.Helper()
	resp := testutil.Do(t, f.app, http.MethodPost, "/api/documents", fiber.Map{"title": "Traffic stop"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := testutil.DecodeMap(t, resp)
	return body["id"].(string)
}

func sectionStatus(t *testing.T, db *gorm.DB, docID string, st models.SectionType) models.SectionStatus {
	t.Helper()
	var s models.DocumentSection
	require.NoError(t, db.Where("document_id = ? AND section_type = ?", docID, st).Take(&s).Error)
	return s.Status
}

/* ============================================================================
   Tests
   ============================================================================ */

func TestCreateAndDetail(t *testing.T) {
	f := newFixture(t)
	id := f.createDoc(t)

	resp := testutil.Do(t, f.app, http.MethodGet, "/api/documents/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := testutil.DecodeMap(t, resp)
	assert.Equal(t, "Traffic stop", body["title"])
	assert.Equal(t, float64(10), body["completion_percentage"])
	assert.Equal(t, true, body["can_edit"])
	assert.Equal(t, float64(3), body["ai_remaining"])
	assert.NotNil(t, body["expires_at"])
	assert.Len(t, body["sections"], 10)
	assert.NotNil(t, body["plaintiff_info"])

	resp = testutil.Do(t, f.app, http.MethodGet, "/api/documents/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateWithIncompleteProfileConflicts(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(f.user).Update("zip_code", "").Error)

	resp := testutil.Do(t, f.app, http.MethodPost, "/api/documents", fiber.Map{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := testutil.DecodeMap(t, resp)
	assert.Equal(t, "CONFLICT", body["code"])
}

func TestListMinePaginates(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.createDoc(t)
	}

	resp := testutil.Do(t, f.app, http.MethodGet, "/api/documents/mine?page=1&pageSize=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page PageDocuments
	testutil.Decode(t, resp, &page)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.Pages)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 10, page.Items[0].CompletionPercentage)
}

func TestSaveIncidentSetsSectionStatus(t *testing.T) {
	f := newFixture(t)
	id := f.createDoc(t)
	path := "/api/documents/" + id + "/sections/incident_overview"

	resp := testutil.Do(t, f.app, http.MethodPut, path, fiber.Map{"city": "Dallas", "state": "tx"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.SectionInProgress, sectionStatus(t, f.db, id, models.SectionIncidentOverview))

	resp = testutil.Do(t, f.app, http.MethodPut, path, fiber.Map{
		"incident_date": "2024-03-02", "incident_time": "21:15",
		"city": "Dallas", "state": "TX", "summary": "Stopped and searched without cause.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := testutil.DecodeMap(t, resp)
	assert.Equal(t, float64(20), body["completion_percentage"])
	assert.Equal(t, models.SectionCompleted, sectionStatus(t, f.db, id, models.SectionIncidentOverview))

	var row models.IncidentOverview
	require.NoError(t, f.db.Where("document_id = ?", id).Take(&row).Error)
	assert.Equal(t, "TX", row.State)
	require.NotNil(t, row.IncidentDate)
	assert.Equal(t, 2024, row.IncidentDate.Year())

	resp = testutil.Do(t, f.app, http.MethodPut, path, fiber.Map{"incident_time": "25:00", "state": "ZZ"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errs := testutil.DecodeMap(t, resp)["errors"].(map[string]any)
	assert.Contains(t, errs, "incident_time")
	assert.Contains(t, errs, "state")
}

func TestSaveRightsAndDamages(t *testing.T) {
	f := newFixture(t)
	id := f.createDoc(t)

	resp := testutil.Do(t, f.app, http.MethodPut, "/api/documents/"+id+"/sections/rights_violated", fiber.Map{
		"rights": []string{models.RightFourthForce, models.RightFourthSeizure},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rv models.RightsViolated
	require.NoError(t, f.db.Where("document_id = ?", id).Take(&rv).Error)
	assert.Equal(t, []string{models.RightFourthSeizure, models.RightFourthForce}, rv.Selected())

	resp = testutil.Do(t, f.app, http.MethodPut, "/api/documents/"+id+"/sections/damages", fiber.Map{
		"physical_injury": true, "medical_expenses": "$1,200.50", "lost_wages": "300",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := testutil.DecodeMap(t, resp)["data"].(map[string]any)
	assert.Equal(t, "1500.50", data["total"])
	assert.Equal(t, models.SectionCompleted, sectionStatus(t, f.db, id, models.SectionDamages))

	resp = testutil.Do(t, f.app, http.MethodPut, "/api/documents/"+id+"/sections/prior_complaints", fiber.Map{
		"filed_complaint": true,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "agency is required once a complaint was filed")
}

func TestDefendantListDrivesSectionStatus(t *testing.T) {
	f := newFixture(t)
	id := f.createDoc(t)

	resp := testutil.Do(t, f.app, http.MethodPost, "/api/documents/"+id+"/defendants", fiber.Map{
		"name": "Officer J. Doe", "badge_number": "4411", "agency_name": "Dallas Police Department",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var d models.Defendant
	testutil.Decode(t, resp, &d)
	assert.Equal(t, models.DefendantIndividual, d.DefendantType)
	assert.Equal(t, models.CapacityBoth, d.Capacity)
	assert.Equal(t, models.SectionCompleted, sectionStatus(t, f.db, id, models.SectionDefendants))

	resp = testutil.Do(t, f.app, http.MethodPut, "/api/documents/"+id+"/defendants/"+d.ID.String(), fiber.Map{
		"name": "Officer Jane Doe", "capacity": "individual",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = testutil.Do(t, f.app, http.MethodDelete, "/api/documents/"+id+"/defendants/"+d.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, models.SectionInProgress, sectionStatus(t, f.db, id, models.SectionDefendants))

	resp = testutil.Do(t, f.app, http.MethodDelete, "/api/documents/"+id+"/defendants/"+d.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSetStatusNotApplicable(t *testing.T) {
	f := newFixture(t)
	id := f.createDoc(t)

	resp := testutil.Do(t, f.app, http.MethodPatch, "/api/documents/"+id+"/sections/witnesses/status", fiber.Map{
		"status": "not_applicable",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.SectionNotApplicable, sectionStatus(t, f.db, id, models.SectionWitnesses))

	resp = testutil.Do(t, f.app, http.MethodPatch, "/api/documents/"+id+"/sections/bogus/status", fiber.Map{
		"status": "completed",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExpiredDraftIsReadOnly(t *testing.T) {
	f := newFixture(t)
	id := f.createDoc(t)
	f.svc.WithClock(func() time.Time { return time.Now().Add(49 * time.Hour) })

	resp := testutil.Do(t, f.app, http.MethodPut, "/api/documents/"+id+"/story", fiber.Map{
		"story_text": "I was pulled over on my way home from work and searched.",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = testutil.Do(t, f.app, http.MethodGet, "/api/documents/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := testutil.DecodeMap(t, resp)
	assert.Equal(t, "expired", body["payment_status"])
	assert.Equal(t, false, body["can_edit"])
}

func TestAssignCourtFromIncident(t *testing.T) {
	f := newFixture(t)
	id := f.createDoc(t)

	resp := testutil.Do(t, f.app, http.MethodPost, "/api/documents/"+id+"/court", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = testutil.Do(t, f.app, http.MethodPut, "/api/documents/"+id+"/sections/incident_overview", fiber.Map{
		"city": "Houston", "state": "TX",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = testutil.Do(t, f.app, http.MethodPost, "/api/documents/"+id+"/court", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res court.Result
	testutil.Decode(t, resp, &res)
	assert.Equal(t, court.High, res.Confidence)

	var doc models.Document
	require.NoError(t, f.db.First(&doc, "id = ?", id).Error)
	assert.Equal(t, res.District, doc.CourtDistrict)
	assert.Equal(t, "high", doc.CourtConfidence)
	assert.Equal(t, "Houston", doc.CourtCity)
}

func TestEvidenceFileUploadAndSign(t *testing.T) {
	f := newFixture(t)
	id := f.createDoc(t)

	resp := testutil.Do(t, f.app, http.MethodPost, "/api/documents/"+id+"/evidence", fiber.Map{
		"evidence_type": "photo", "description": "Bruising on left arm",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var ev models.Evidence
	testutil.Decode(t, resp, &ev)
	path := "/api/documents/" + id + "/evidence/" + ev.ID.String() + "/file"

	resp = testutil.Do(t, f.app, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = upload(t, f.app, path, "arm.gif", "image/gif", []byte("GIF89a"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = upload(t, f.app, path, "arm.png", "image/png", []byte("\x89PNG fake"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var stored models.Evidence
	require.NoError(t, f.db.First(&stored, "id = ?", ev.ID).Error)
	assert.Equal(t, storage.EvidenceKey(id, ev.ID.String(), "arm.png"), stored.StorageKey)
	assert.Equal(t, "image/png", stored.Mime)

	r, ct, err := f.store.Open(stored.StorageKey)
	require.NoError(t, err)
	b, _ := io.ReadAll(r)
	assert.Equal(t, "\x89PNG fake", string(b))
	assert.Equal(t, "image/png", ct)

	resp = testutil.Do(t, f.app, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := testutil.DecodeMap(t, resp)
	assert.Contains(t, body["url"], stored.StorageKey)
	assert.Equal(t, float64(60), body["expires_in"])

	resp = testutil.Do(t, f.app, http.MethodDelete, "/api/documents/"+id+"/evidence/"+ev.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, err = f.store.SignedURL(context.Background(), stored.StorageKey, 60)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func upload(t *testing.T, app *fiber.App, path, name, contentType string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, _ = part.Write(data)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}
