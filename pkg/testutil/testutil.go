// Package testutil holds the DB, auth and request helpers shared by handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/pkg/database"
	"github.com/aldoetobex/section1983-backend/pkg/models"
)

// OpenDB returns a migrated in-memory sqlite database that lives for the test.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenTest("t" + uuid.NewString())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// InjectAuth sets the locals RequireAuth would set, without a real JWT.
func InjectAuth(userID uuid.UUID, staff bool) fiber.Handler {
	id := userID.String()
	return func(c *fiber.Ctx) error {
		c.Locals("userID", id)
		c.Locals("staff", staff)
		return c.Next()
	}
}

// SeedUser creates a user with a complete profile and accepted consents.
func SeedUser(t *testing.T, db *gorm.DB, mutate ...func(*models.User)) *models.User {
	t.Helper()
	now := time.Now()
	u := &models.User{
		Email:             uuid.NewString()[:8] + "@example.com",
		PasswordHash:      "x",
		FirstName:         "Ana",
		LastName:          "Reyes",
		Phone:             "2145550199",
		Street:            "100 Elm St",
		City:              "Dallas",
		State:             "TX",
		ZipCode:           "75201",
		TermsAcceptedAt:   &now,
		PrivacyAcceptedAt: &now,
	}
	for _, m := range mutate {
		m(u)
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// Do sends a request through app.Test. A non-nil body is JSON encoded.
func Do(t *testing.T, app *fiber.App, method, path string, body any, headers ...string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// Decode reads a JSON response body into v.
func Decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

// DecodeMap is Decode into a generic map.
func DecodeMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var m map[string]any
	Decode(t, resp, &m)
	return m
}
