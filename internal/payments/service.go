// Package payments sells documents, packs and subscriptions, fulfils them from
// Stripe (or the dev mock) and runs the promo-code referral ledger.
package payments

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/pkg/config"
	"github.com/aldoetobex/section1983-backend/pkg/logger"
	"github.com/aldoetobex/section1983-backend/pkg/metrics"
	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/redis"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyPurchased = errors.New("document already purchased")
	ErrInvalidPromo     = errors.New("invalid promo code")
	ErrOwnPromo         = errors.New("cannot use your own promo code")
	ErrPromoTaken       = errors.New("promo code already taken")
	ErrHasPromo         = errors.New("user already owns a promo code")
	ErrNoCredits        = errors.New("no document credits available")
	ErrBelowMinimum     = errors.New("payout below minimum")
	ErrOverBalance      = errors.New("payout exceeds available balance")
	ErrBadTransition    = errors.New("payout cannot move to that status")
	ErrProvider         = errors.New("payment provider failed")
)

// Deps wires the payments service.
type Deps struct {
	DB       *gorm.DB
	Pricing  config.PricingConfig
	Policy   config.PolicyConfig
	Stripe   config.StripeConfig
	Provider Provider
	Cache    *redis.Client // optional; nil turns off webhook replay suppression
	Log      *logger.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
	// IdempotencyTTL bounds how long a processed webhook event id is remembered.
	IdempotencyTTL time.Duration
}

type Service struct {
	db       *gorm.DB
	pricing  config.PricingConfig
	policy   config.PolicyConfig
	stripe   config.StripeConfig
	provider Provider
	guard    *IdempotencyGuard
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(d Deps) (*Service, error) {
	if d.DB == nil {
		return nil, errors.New("db required")
	}
	if d.Provider == nil {
		return nil, errors.New("payment provider required")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &Service{
		db:       d.DB,
		pricing:  d.Pricing,
		policy:   d.Policy,
		stripe:   d.Stripe,
		provider: d.Provider,
		log:      d.Log,
		metrics:  d.Metrics,
		now:      d.Now,
	}
	if d.Cache != nil {
		ttl := d.IdempotencyTTL
		if ttl <= 0 {
			ttl = 72 * time.Hour
		}
		guard, err := NewIdempotencyGuard(d.Cache, ttl, "stripe_webhook")
		if err != nil {
			return nil, err
		}
		s.guard = guard
	}
	return s, nil
}

/* ================================ Pricing =============================== */

type PackPrice struct {
	Size  int             `json:"size"`
	Price decimal.Decimal `json:"price"`
}

// Pricing is shown in dollars; everything is stored in cents.
type Pricing struct {
	Document             decimal.Decimal `json:"document"`
	Pack                 PackPrice       `json:"pack"`
	Monthly              decimal.Decimal `json:"monthly"`
	Annual               decimal.Decimal `json:"annual"`
	DocumentsPerPeriod   int             `json:"subscription_documents_per_period"`
	PromoDiscountPercent int             `json:"promo_discount_percent"`
	Currency             string          `json:"currency"`
}

func (s *Service) Pricing() Pricing {
	p := s.pricing
	return Pricing{
		Document:             config.Dollars(p.DocumentCents),
		Pack:                 PackPrice{Size: p.PackSize, Price: config.Dollars(p.PackCents)},
		Monthly:              config.Dollars(p.MonthlyCents),
		Annual:               config.Dollars(p.AnnualCents),
		DocumentsPerPeriod:   s.policy.SubscriptionDocsPerMon,
		PromoDiscountPercent: p.PromoDiscountPerc,
		Currency:             "usd",
	}
}

// priceFor returns the list price in cents of a purchase.
func (s *Service) priceFor(kind models.PaymentKind, plan models.SubscriptionPlan) (int64, error) {
	switch kind {
	case models.KindDocument:
		return s.pricing.DocumentCents, nil
	case models.KindPack:
		return s.pricing.PackCents, nil
	case models.KindSubscription:
		switch plan {
		case models.PlanMonthly:
			return s.pricing.MonthlyCents, nil
		case models.PlanAnnual:
			return s.pricing.AnnualCents, nil
		}
	}
	return 0, errors.New("unknown product")
}

// discountCents applies percent to cents, rounding half up to the cent.
func discountCents(cents int64, percent int) int64 {
	if percent <= 0 {
		return 0
	}
	if percent > 100 {
		percent = 100
	}
	return decimal.NewFromInt(cents).
		Mul(decimal.NewFromInt(int64(percent))).
		Div(decimal.NewFromInt(100)).
		Round(0).IntPart()
}

// periodEnd is the fallback billing period when the provider did not send one.
func periodEnd(plan models.SubscriptionPlan, from time.Time) time.Time {
	if plan == models.PlanAnnual {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

func (s *Service) withTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}
