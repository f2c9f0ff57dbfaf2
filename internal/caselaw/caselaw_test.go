package caselaw

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/internal/auth"
	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/testutil"
)

func newApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := testutil.OpenDB(t)
	staff := testutil.SeedUser(t, db, func(u *models.User) { u.IsStaff = true })
	h := NewHandler(db)

	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	h.Mount(app.Group("/api"))
	h.MountAdmin(app.Group("/api/admin", testutil.InjectAuth(staff.ID, true)))
	return app, db
}

func seedCase(t *testing.T, db *gorm.DB, name, cat string, year int, active bool) models.CaseLaw {
	t.Helper()
	row := models.CaseLaw{Name: name, Citation: name + " cite", Category: cat, Year: year, IsActive: true}
	require.NoError(t, db.Create(&row).Error)
	if !active {
		require.NoError(t, db.Model(&row).Update("is_active", false).Error)
	}
	return row
}

func Test_List_FiltersActiveByCategory(t *testing.T) {
	app, db := newApp(t)
	seedCase(t, db, "Graham v. Connor", models.RightFourthForce, 1989, true)
	seedCase(t, db, "Tennessee v. Garner", models.RightFourthForce, 1985, true)
	seedCase(t, db, "Retired", models.RightFourthForce, 1970, false)
	seedCase(t, db, "Terry v. Ohio", models.RightFourthSearch, 1968, true)

	resp := testutil.Do(t, app, http.MethodGet, "/api/caselaw?category="+models.RightFourthForce, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows []models.CaseLaw
	testutil.Decode(t, resp, &rows)
	require.Len(t, rows, 2)
	assert.Equal(t, "Graham v. Connor", rows[0].Name, "newest first within a category")

	resp = testutil.Do(t, app, http.MethodGet, "/api/caselaw", nil)
	testutil.Decode(t, resp, &rows)
	assert.Len(t, rows, 3)

	resp = testutil.Do(t, app, http.MethodGet, "/api/caselaw?category=nope", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func Test_Admin_CRUD(t *testing.T) {
	app, db := newApp(t)

	resp := testutil.Do(t, app, http.MethodPost, "/api/admin/caselaw", map[string]any{
		"name": "Monroe v. Pape", "citation": "365 U.S. 167", "category": "made_up",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := testutil.DecodeMap(t, resp)
	assert.Contains(t, body["errors"], "category")

	resp = testutil.Do(t, app, http.MethodPost, "/api/admin/caselaw", map[string]any{
		"name": " Monroe v. Pape ", "citation": "365 U.S. 167", "year": 1961,
		"category": models.RightFourteenthDue, "holding": "Officers acting under color of law are liable.",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.CaseLaw
	testutil.Decode(t, resp, &created)
	assert.Equal(t, "Monroe v. Pape", created.Name)
	assert.True(t, created.IsActive)

	resp = testutil.Do(t, app, http.MethodPut, "/api/admin/caselaw/"+created.ID.String(), map[string]any{
		"name": "Monroe v. Pape", "citation": "365 U.S. 167 (1961)", "year": 1961,
		"category": models.RightFourteenthDue, "is_active": false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got models.CaseLaw
	require.NoError(t, db.First(&got, "id = ?", created.ID).Error)
	assert.Equal(t, "365 U.S. 167 (1961)", got.Citation)
	assert.False(t, got.IsActive)

	resp = testutil.Do(t, app, http.MethodGet, "/api/admin/caselaw?pageSize=1", nil)
	page := testutil.DecodeMap(t, resp)
	assert.EqualValues(t, 1, page["total"], "inactive rows are listed for staff")

	resp = testutil.Do(t, app, http.MethodDelete, "/api/admin/caselaw/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = testutil.Do(t, app, http.MethodDelete, "/api/admin/caselaw/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = testutil.Do(t, app, http.MethodPut, "/api/admin/caselaw/not-a-uuid", map[string]any{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func Test_Admin_Users_CountsDocuments(t *testing.T) {
	app, db := newApp(t)
	u := testutil.SeedUser(t, db, func(u *models.User) { u.Email = "jordan@example.com"; u.FirstName = "Jordan" })
	require.NoError(t, db.Create(&models.Document{UserID: u.ID, Title: "A", PaymentStatus: models.PaymentDraft}).Error)
	require.NoError(t, db.Create(&models.Document{UserID: u.ID, Title: "B", PaymentStatus: models.PaymentPaid}).Error)

	resp := testutil.Do(t, app, http.MethodGet, "/api/admin/users?q=JORDAN", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page Page[UserListItem]
	testutil.Decode(t, resp, &page)
	require.EqualValues(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, u.ID, page.Items[0].ID)
	assert.EqualValues(t, 2, page.Items[0].Documents)
	assert.EqualValues(t, 1, page.Items[0].PaidDocuments)
	assert.True(t, page.Items[0].ProfileComplete)

	resp = testutil.Do(t, app, http.MethodGet, "/api/admin/users", nil)
	testutil.Decode(t, resp, &page)
	assert.EqualValues(t, 2, page.Total)
	assert.Equal(t, 1, page.Pages)
}
