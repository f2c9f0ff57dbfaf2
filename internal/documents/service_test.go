package documents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/pkg/logger"
	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/testutil"
)

func newService(db *gorm.DB) *Service {
	return NewService(db, models.DefaultPolicy(), logger.Nop(), nil)
}

func TestCreatePrefillsPlaintiffAndSections(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := newService(db)
	u := testutil.SeedUser(t, db)

	doc, err := svc.Create(context.Background(), u, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, doc.Title)
	assert.Equal(t, models.PaymentDraft, doc.PaymentStatus)

	require.Len(t, doc.Sections, len(models.SectionTypes))
	for i, s := range doc.Sections {
		assert.Equal(t, models.SectionTypes[i], s.SectionType)
		if s.SectionType == models.SectionPlaintiffInfo {
			assert.Equal(t, models.SectionCompleted, s.Status)
		} else {
			assert.Equal(t, models.SectionNotStarted, s.Status, s.SectionType)
		}
	}

	var pi models.PlaintiffInfo
	require.NoError(t, db.Where("document_id = ?", doc.ID).Take(&pi).Error)
	assert.Equal(t, "Ana", pi.FirstName)
	assert.Equal(t, "TX", pi.State)
	assert.Equal(t, u.Email, pi.Email)
	assert.Equal(t, 10, models.CompletionPercentage(doc.Sections))
}

func TestCreateRequiresProfileAndConsents(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := newService(db)

	noStreet := testutil.SeedUser(t, db, func(u *models.User) { u.Street = "" })
	_, err := svc.Create(context.Background(), noStreet, "x")
	assert.ErrorIs(t, err, ErrProfileIncomplete)

	noConsent := testutil.SeedUser(t, db, func(u *models.User) { u.PrivacyAcceptedAt = nil })
	_, err = svc.Create(context.Background(), noConsent, "x")
	assert.ErrorIs(t, err, ErrConsentsRequired)

	var n int64
	db.Model(&models.Document{}).Count(&n)
	assert.Zero(t, n)
}

func TestGetExpiresStaleDraftLazily(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := newService(db)
	u := testutil.SeedUser(t, db)
	ctx := context.Background()

	doc, err := svc.Create(ctx, u, "t")
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return doc.CreatedAt.Add(48 * time.Hour) })
	got, err := svc.Get(ctx, u.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentDraft, got.PaymentStatus, "exactly at the boundary is not yet expired")

	svc.WithClock(func() time.Time { return doc.CreatedAt.Add(48*time.Hour + time.Second) })
	got, err = svc.Get(ctx, u.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentExpired, got.PaymentStatus)

	var stored models.Document
	require.NoError(t, db.First(&stored, "id = ?", doc.ID).Error)
	assert.Equal(t, models.PaymentExpired, stored.PaymentStatus)

	_, err = svc.Editable(ctx, u.ID, doc.ID)
	assert.ErrorIs(t, err, ErrExpired)

	var hist int64
	db.Model(&models.DocumentHistory{}).Where("document_id = ? AND action = ?", doc.ID, "expired").Count(&hist)
	assert.Equal(t, int64(1), hist)
}

func TestGetIsOwnerScoped(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := newService(db)
	owner := testutil.SeedUser(t, db)
	other := testutil.SeedUser(t, db)

	doc, err := svc.Create(context.Background(), owner, "t")
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), other.ID, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Get(context.Background(), owner.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpireStaleDrafts(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := newService(db)
	u := testutil.SeedUser(t, db)
	ctx := context.Background()

	stale, err := svc.Create(ctx, u, "stale")
	require.NoError(t, err)
	paid, err := svc.Create(ctx, u, "paid")
	require.NoError(t, err)
	require.NoError(t, db.Model(paid).Update("payment_status", models.PaymentPaid).Error)

	n, err := svc.ExpireStaleDrafts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	svc.WithClock(func() time.Time { return time.Now().Add(49 * time.Hour) })
	n, err = svc.ExpireStaleDrafts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var got models.Document
	require.NoError(t, db.First(&got, "id = ?", stale.ID).Error)
	assert.Equal(t, models.PaymentExpired, got.PaymentStatus)
	require.NoError(t, db.First(&got, "id = ?", paid.ID).Error)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus, "paid documents never expire")

	n, err = svc.ExpireStaleDrafts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	var history []models.DocumentHistory
	require.NoError(t, db.Where("action = ?", "expired").Find(&history).Error)
	require.Len(t, history, 1)
	assert.Equal(t, stale.ID, history[0].DocumentID)
}

func TestExpireDraftSkipsDocumentPaidAfterSelection(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := newService(db)
	u := testutil.SeedUser(t, db)
	ctx := context.Background()

	doc, err := svc.Create(ctx, u, "paid late")
	require.NoError(t, err)
	require.NoError(t, db.Model(doc).Update("payment_status", models.PaymentPaid).Error)

	changed, err := svc.expireDraft(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	var got models.Document
	require.NoError(t, db.First(&got, "id = ?", doc.ID).Error)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	var count int64
	require.NoError(t, db.Model(&models.DocumentHistory{}).
		Where("document_id = ? AND action = ?", doc.ID, "expired").Count(&count).Error)
	assert.Zero(t, count)
}

func TestFinalizeRequiresPaid(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := newService(db)
	u := testutil.SeedUser(t, db)
	ctx := context.Background()

	doc, err := svc.Create(ctx, u, "t")
	require.NoError(t, err)

	_, err = svc.Finalize(ctx, u.ID, doc.ID)
	assert.ErrorIs(t, err, ErrPaymentRequired)

	require.NoError(t, db.Model(doc).Update("payment_status", models.PaymentPaid).Error)
	got, err := svc.Finalize(ctx, u.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFinalized, got.PaymentStatus)
	assert.NotNil(t, got.FinalizedAt)

	_, err = svc.Finalize(ctx, u.ID, doc.ID)
	assert.ErrorIs(t, err, ErrFinalized)
	_, err = svc.Editable(ctx, u.ID, doc.ID)
	assert.ErrorIs(t, err, ErrFinalized)
}

func TestDeleteDraftRemovesChildren(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := newService(db)
	u := testutil.SeedUser(t, db)
	ctx := context.Background()

	doc, err := svc.Create(ctx, u, "t")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteDraft(ctx, u.ID, doc.ID))

	var n int64
	db.Model(&models.DocumentSection{}).Where("document_id = ?", doc.ID).Count(&n)
	assert.Zero(t, n)
	db.Model(&models.PlaintiffInfo{}).Where("document_id = ?", doc.ID).Count(&n)
	assert.Zero(t, n)

	paid, err := svc.Create(ctx, u, "p")
	require.NoError(t, err)
	require.NoError(t, db.Model(paid).Update("payment_status", models.PaymentPaid).Error)
	assert.ErrorIs(t, svc.DeleteDraft(ctx, u.ID, paid.ID), ErrNotDraft)
}
