package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftExpiresStrictlyAfterWindow(t *testing.T) {
	p := DefaultPolicy()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := &Document{Base: Base{CreatedAt: created}, PaymentStatus: PaymentDraft}

	edge := created.Add(p.DraftExpiry)
	assert.False(t, d.IsExpired(edge, p), "exactly at the boundary is still live")
	assert.True(t, d.CanEdit(edge, p))

	after := edge.Add(time.Nanosecond)
	assert.True(t, d.IsExpired(after, p))
	assert.False(t, d.CanEdit(after, p))

	require.True(t, d.RefreshExpiry(after, p))
	assert.Equal(t, PaymentExpired, d.PaymentStatus)
	assert.False(t, d.RefreshExpiry(after, p), "second refresh is a no-op")
}

func TestPaidDocumentsNeverExpire(t *testing.T) {
	p := DefaultPolicy()
	d := &Document{Base: Base{CreatedAt: time.Now().Add(-365 * 24 * time.Hour)}, PaymentStatus: PaymentPaid}
	assert.False(t, d.IsExpired(time.Now(), p))
	assert.True(t, d.CanEdit(time.Now(), p))

	d.PaymentStatus = PaymentFinalized
	assert.False(t, d.CanEdit(time.Now(), p))
}

func TestCompletionPercentage(t *testing.T) {
	assert.Equal(t, 0, CompletionPercentage(nil))

	sections := make([]DocumentSection, 0, len(SectionTypes))
	for _, st := range SectionTypes {
		sections = append(sections, DocumentSection{SectionType: st, Status: SectionCompleted})
	}
	sections[3].Status = SectionNotApplicable
	assert.Equal(t, 100, CompletionPercentage(sections))

	sections[0].Status = SectionInProgress
	assert.Equal(t, 90, CompletionPercentage(sections))

	sections[1].Status = SectionNeedsWork
	sections[2].Status = SectionNotStarted
	assert.Equal(t, 70, CompletionPercentage(sections))

	thirds := []DocumentSection{{Status: SectionCompleted}, {Status: SectionNotStarted}, {Status: SectionNotStarted}}
	assert.Equal(t, 33, CompletionPercentage(thirds))
}

func TestFreeAIAllowanceIsConsumedOnDrafts(t *testing.T) {
	p := DefaultPolicy()
	now := time.Now()
	u := &User{}
	d := &Document{Base: Base{CreatedAt: now}, PaymentStatus: PaymentDraft}

	for i := 0; i < p.FreeAIGenerations; i++ {
		require.True(t, u.CanUseFreeAI(p.FreeAIGenerations))
		require.True(t, d.CanUseAI(u, now, p))
		d.RecordAIUsage(u)
	}
	assert.False(t, u.CanUseFreeAI(p.FreeAIGenerations))
	assert.False(t, d.CanUseAI(u, now, p))
	assert.Equal(t, p.FreeAIGenerations, u.TotalAIGenerations)
	assert.Equal(t, 0, d.AIGenerationsUsed)
	assert.Equal(t, 0, d.RemainingAI(u, p))
}

func TestStaffIsNeverCapped(t *testing.T) {
	p := DefaultPolicy()
	now := time.Now()
	staff := &User{IsStaff: true}
	d := &Document{Base: Base{CreatedAt: now}, PaymentStatus: PaymentDraft}

	for i := 0; i < p.FreeAIGenerations*3; i++ {
		d.RecordAIUsage(staff)
	}
	assert.True(t, staff.HasUnlimitedAccess())
	assert.True(t, staff.CanUseFreeAI(p.FreeAIGenerations))
	assert.True(t, d.CanUseAI(staff, now, p))
	assert.Equal(t, 0, staff.FreeAIGenerationsUsed)
	assert.Equal(t, p.FreeAIGenerations*3, staff.TotalAIGenerations)
	assert.Equal(t, -1, d.RemainingAI(staff, p))

	super := &User{IsSuperuser: true}
	assert.True(t, super.HasUnlimitedAccess())
}

func TestPaidDocumentUsesPerDocumentCap(t *testing.T) {
	p := Policy{DraftExpiry: time.Hour, FreeAIGenerations: 1, PaidAIGenerations: 2}
	now := time.Now()
	u := &User{FreeAIGenerationsUsed: 1}
	d := &Document{Base: Base{CreatedAt: now}, PaymentStatus: PaymentPaid}

	assert.True(t, d.CanUseAI(u, now, p), "free cap does not apply to paid documents")
	d.RecordAIUsage(u)
	d.RecordAIUsage(u)
	assert.False(t, d.CanUseAI(u, now, p))
	assert.Equal(t, 1, u.FreeAIGenerationsUsed)
	assert.Equal(t, 2, d.AIGenerationsUsed)
}

func TestProfileCompleteness(t *testing.T) {
	u := &User{FirstName: "Ana", LastName: "Reyes", Street: "1 Main St", City: "Dallas", State: "TX"}
	assert.False(t, u.IsProfileComplete())
	assert.Equal(t, []string{"zip_code"}, u.MissingProfileFields())

	u.ZipCode = "75201"
	assert.True(t, u.IsProfileComplete())
	assert.Empty(t, u.MissingProfileFields())
	assert.Equal(t, "Ana Reyes", u.FullName())
}

func TestRightsSelectedKeepsDisplayOrder(t *testing.T) {
	r := &RightsViolated{}
	require.True(t, r.Set(RightFourteenthDue, true))
	require.True(t, r.Set(RightFirstSpeech, true))
	assert.False(t, r.Set("sixth_amendment", true))
	assert.Equal(t, []string{RightFirstSpeech, RightFourteenthDue}, r.Selected())
}

func TestDamagesTotal(t *testing.T) {
	d := &Damages{
		MedicalExpenses: decimal.RequireFromString("1200.50"),
		LostWages:       decimal.RequireFromString("800"),
		OtherAmount:     decimal.RequireFromString("0.25"),
	}
	assert.Equal(t, "2000.75", d.Total().StringFixed(2))
}

func TestPromoAvailableNeverNegative(t *testing.T) {
	pc := &PromoCode{TotalEarnedCents: 5000, TotalPaidOutCents: 1000}
	assert.EqualValues(t, 1500, pc.AvailableCents(2500))
	assert.EqualValues(t, 0, pc.AvailableCents(9000))
}

func TestSubscriptionActive(t *testing.T) {
	now := time.Now()
	end := now.Add(time.Hour)
	s := &Subscription{Status: SubActive, CurrentPeriodEnd: &end}
	assert.True(t, s.IsActive(now))
	assert.False(t, s.IsActive(end.Add(time.Second)))
	s.Status = SubPastDue
	assert.False(t, s.IsActive(now))
}
