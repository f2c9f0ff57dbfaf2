package models

import (
	"math"
	"strings"
	"time"
)

// Policy carries the configurable limits the model methods depend on.
type Policy struct {
	DraftExpiry       time.Duration
	FreeAIGenerations int
	PaidAIGenerations int
}

func DefaultPolicy() Policy {
	return Policy{
		DraftExpiry:       48 * time.Hour,
		FreeAIGenerations: 3,
		PaidAIGenerations: 30,
	}
}

/* ================================ User =================================== */

// HasUnlimitedAccess bypasses every AI cap.
func (u *User) HasUnlimitedAccess() bool {
	return u.IsStaff || u.IsSuperuser
}

func (u *User) CanUseFreeAI(limit int) bool {
	return u.HasUnlimitedAccess() || u.FreeAIGenerationsUsed < limit
}

// IsProfileComplete requires every field used to pre-fill plaintiff_info.
func (u *User) IsProfileComplete() bool {
	for _, v := range []string{u.FirstName, u.LastName, u.Street, u.City, u.State, u.ZipCode} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

func (u *User) HasAcceptedConsents() bool {
	return u.TermsAcceptedAt != nil && u.PrivacyAcceptedAt != nil
}

func (u *User) FullName() string {
	return joinName(u.FirstName, u.LastName)
}

// MissingProfileFields lists the json names of empty required profile fields.
func (u *User) MissingProfileFields() []string {
	fields := []struct {
		name, value string
	}{
		{"first_name", u.FirstName},
		{"last_name", u.LastName},
		{"street", u.Street},
		{"city", u.City},
		{"state", u.State},
		{"zip_code", u.ZipCode},
	}
	var out []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			out = append(out, f.name)
		}
	}
	return out
}

/* ============================== Document ================================= */

func (d *Document) ExpiresAt(p Policy) time.Time {
	return d.CreatedAt.Add(p.DraftExpiry)
}

// IsExpired is true for a stored expired status or a draft past its window.
func (d *Document) IsExpired(now time.Time, p Policy) bool {
	switch d.PaymentStatus {
	case PaymentExpired:
		return true
	case PaymentDraft:
		return now.After(d.ExpiresAt(p))
	default:
		return false
	}
}

// RefreshExpiry flips a stale draft to expired in memory. Callers persist the
// change when it returns true.
func (d *Document) RefreshExpiry(now time.Time, p Policy) bool {
	if d.PaymentStatus == PaymentDraft && d.IsExpired(now, p) {
		d.PaymentStatus = PaymentExpired
		return true
	}
	return false
}

func (d *Document) IsPaid() bool {
	return d.PaymentStatus == PaymentPaid || d.PaymentStatus == PaymentFinalized
}

// CanEdit allows unexpired drafts and paid documents. Finalized is read-only.
func (d *Document) CanEdit(now time.Time, p Policy) bool {
	switch d.PaymentStatus {
	case PaymentPaid:
		return true
	case PaymentDraft:
		return !d.IsExpired(now, p)
	default:
		return false
	}
}

// CanUseAI applies the per-user free cap to drafts and the per-document cap to
// paid documents.
func (d *Document) CanUseAI(u *User, now time.Time, p Policy) bool {
	if u.HasUnlimitedAccess() {
		return true
	}
	switch d.PaymentStatus {
	case PaymentDraft:
		return !d.IsExpired(now, p) && u.FreeAIGenerationsUsed < p.FreeAIGenerations
	case PaymentPaid:
		return d.AIGenerationsUsed < p.PaidAIGenerations
	default:
		return false
	}
}

// RecordAIUsage bumps the counters for one successful AI call.
func (d *Document) RecordAIUsage(u *User) {
	u.TotalAIGenerations++
	switch d.PaymentStatus {
	case PaymentDraft:
		if !u.HasUnlimitedAccess() {
			u.FreeAIGenerationsUsed++
		}
	case PaymentPaid:
		d.AIGenerationsUsed++
	}
}

// RemainingAI returns how many AI calls are left on the document for u, or -1
// when unlimited.
func (d *Document) RemainingAI(u *User, p Policy) int {
	if u.HasUnlimitedAccess() {
		return -1
	}
	var left int
	switch d.PaymentStatus {
	case PaymentDraft:
		left = p.FreeAIGenerations - u.FreeAIGenerationsUsed
	case PaymentPaid:
		left = p.PaidAIGenerations - d.AIGenerationsUsed
	}
	if left < 0 {
		return 0
	}
	return left
}

// CompletionPercentage is the rounded share of completed or not_applicable sections.
func CompletionPercentage(sections []DocumentSection) int {
	if len(sections) == 0 {
		return 0
	}
	done := 0
	for _, s := range sections {
		if s.Status.Done() {
			done++
		}
	}
	return int(math.Round(100 * float64(done) / float64(len(sections))))
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}
