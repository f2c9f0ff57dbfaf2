package models

import (
	"time"

	"github.com/google/uuid"
)

type PaymentKind string

const (
	KindDocument     PaymentKind = "document"
	KindPack         PaymentKind = "pack"
	KindSubscription PaymentKind = "subscription"
)

type PaymentState string

const (
	PaymentInitiated PaymentState = "initiated"
	PaymentSucceeded PaymentState = "paid"
	PaymentFailed    PaymentState = "failed"
)

type SubscriptionPlan string

const (
	PlanMonthly SubscriptionPlan = "monthly"
	PlanAnnual  SubscriptionPlan = "annual"
)

type SubscriptionStatus string

const (
	SubActive   SubscriptionStatus = "active"
	SubPastDue  SubscriptionStatus = "past_due"
	SubCanceled SubscriptionStatus = "canceled"
	SubExpired  SubscriptionStatus = "expired"
)

type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "pending"
	PayoutApproved PayoutStatus = "approved"
	PayoutRejected PayoutStatus = "rejected"
	PayoutPaid     PayoutStatus = "paid"
)

// Payment is a checkout attempt. StripeSessionID is unique so a replayed
// completion event finds the row it already fulfilled.
type Payment struct {
	Base
	UserID              uuid.UUID    `gorm:"type:uuid;not null;index" json:"user_id"`
	Kind                PaymentKind  `gorm:"type:varchar(20);not null" json:"kind"`
	DocumentID          *uuid.UUID   `gorm:"type:uuid;index" json:"document_id,omitempty"`
	Plan                string       `gorm:"type:varchar(20)" json:"plan,omitempty"`
	PromoCodeID         *uuid.UUID   `gorm:"type:uuid" json:"promo_code_id,omitempty"`
	StripeSessionID     *string      `gorm:"uniqueIndex" json:"stripe_session_id,omitempty"`
	StripePaymentIntent *string      `json:"-"`
	AmountCents         int64        `gorm:"not null" json:"amount_cents"`
	DiscountCents       int64        `gorm:"not null;default:0" json:"discount_cents"`
	Status              PaymentState `gorm:"type:varchar(20);not null;default:'initiated';index" json:"status"`
	CompletedAt         *time.Time   `json:"completed_at,omitempty"`
}

type Subscription struct {
	Base
	UserID               uuid.UUID          `gorm:"type:uuid;not null;index" json:"user_id"`
	Plan                 SubscriptionPlan   `gorm:"type:varchar(20);not null" json:"plan"`
	Status               SubscriptionStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	StripeSubscriptionID *string            `gorm:"uniqueIndex" json:"-"`
	StripeCustomerID     string             `json:"-"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end"`
	DocumentsUsed        int                `gorm:"not null;default:0" json:"documents_used"`
}

// IsActive reports whether the subscription can unlock documents at now.
func (s *Subscription) IsActive(now time.Time) bool {
	if s.Status != SubActive {
		return false
	}
	return s.CurrentPeriodEnd == nil || now.Before(*s.CurrentPeriodEnd)
}

type DocumentPack struct {
	Base
	UserID             uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	PaymentID          *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"payment_id,omitempty"`
	PackSize           int        `gorm:"not null" json:"pack_size"`
	DocumentsRemaining int        `gorm:"not null" json:"documents_remaining"`
	AmountCents        int64      `gorm:"not null" json:"amount_cents"`
}

// PromoCode belongs to a referrer who earns a fixed payout per paid use.
type PromoCode struct {
	Base
	Code              string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	OwnerID           uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	DiscountPercent   int       `gorm:"not null" json:"discount_percent"`
	PayoutCents       int64     `gorm:"not null" json:"payout_cents"`
	IsActive          bool      `gorm:"not null" json:"is_active"`
	TimesUsed         int       `gorm:"not null;default:0" json:"times_used"`
	TotalEarnedCents  int64     `gorm:"not null;default:0" json:"total_earned_cents"`
	TotalPaidOutCents int64     `gorm:"not null;default:0" json:"total_paid_out_cents"`
}

// AvailableCents is earned minus paid out minus what is already requested.
func (p *PromoCode) AvailableCents(pendingCents int64) int64 {
	v := p.TotalEarnedCents - p.TotalPaidOutCents - pendingCents
	if v < 0 {
		return 0
	}
	return v
}

type PromoCodeUsage struct {
	Base
	PromoCodeID     uuid.UUID `gorm:"type:uuid;not null;index" json:"promo_code_id"`
	UserID          uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	PaymentID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"payment_id"`
	AmountPaidCents int64     `gorm:"not null" json:"amount_paid_cents"`
	PayoutCents     int64     `gorm:"not null" json:"payout_cents"`
}

type PayoutRequest struct {
	Base
	UserID      uuid.UUID    `gorm:"type:uuid;not null;index" json:"user_id"`
	PromoCodeID uuid.UUID    `gorm:"type:uuid;not null;index" json:"promo_code_id"`
	AmountCents int64        `gorm:"not null" json:"amount_cents"`
	Status      PayoutStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Method      string       `gorm:"type:varchar(20);not null" json:"method"`
	Details     string       `gorm:"type:text" json:"details"`
	AdminNote   string       `gorm:"type:text" json:"admin_note"`
	ProcessedAt *time.Time   `json:"processed_at"`
}
