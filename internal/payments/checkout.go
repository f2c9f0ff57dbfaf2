package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/pkg/config"
	"github.com/aldoetobex/section1983-backend/pkg/models"
)

type CheckoutInput struct {
	Kind       models.PaymentKind
	DocumentID *uuid.UUID
	Plan       models.SubscriptionPlan
	PromoCode  string
}

type CheckoutResult struct {
	PaymentID   uuid.UUID       `json:"payment_id"`
	CheckoutURL string          `json:"checkout_url"`
	Provider    string          `json:"provider"`
	Amount      decimal.Decimal `json:"amount"`
	Discount    decimal.Decimal `json:"discount"`
}

// Checkout records an initiated payment and opens a provider session for it.
// Prices always come from config, never from the client.
func (s *Service) Checkout(ctx context.Context, userID uuid.UUID, in CheckoutInput) (*CheckoutResult, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		return nil, ErrNotFound
	}

	title := ""
	switch in.Kind {
	case models.KindDocument:
		if in.DocumentID == nil {
			return nil, ErrNotFound
		}
		var doc models.Document
		if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", *in.DocumentID, userID).First(&doc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		if doc.PaymentStatus == models.PaymentPaid || doc.PaymentStatus == models.PaymentFinalized {
			return nil, ErrAlreadyPurchased
		}
		title = "Section 1983 complaint: " + doc.Title
	case models.KindPack:
		in.DocumentID = nil
		title = fmt.Sprintf("%d-document pack", s.pricing.PackSize)
	case models.KindSubscription:
		in.DocumentID = nil
		title = "Section 1983 builder " + string(in.Plan) + " subscription"
	}

	list, err := s.priceFor(in.Kind, in.Plan)
	if err != nil {
		return nil, err
	}

	var promo *models.PromoCode
	if code := normalizeCode(in.PromoCode); code != "" {
		promo, err = s.usablePromo(ctx, code, userID)
		if err != nil {
			return nil, err
		}
	}
	discount := int64(0)
	if promo != nil {
		discount = discountCents(list, promo.DiscountPercent)
	}

	pay := models.Payment{
		UserID:        userID,
		Kind:          in.Kind,
		DocumentID:    in.DocumentID,
		AmountCents:   list - discount,
		DiscountCents: discount,
		Status:        models.PaymentInitiated,
	}
	if in.Kind == models.KindSubscription {
		pay.Plan = string(in.Plan)
	}
	if promo != nil {
		pay.PromoCodeID = &promo.ID
	}
	if err := s.db.WithContext(ctx).Create(&pay).Error; err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	cs, err := s.provider.CreateCheckout(ctx, CheckoutRequest{
		PaymentID:   pay.ID,
		Kind:        in.Kind,
		Plan:        in.Plan,
		Description: title,
		AmountCents: pay.AmountCents,
		Email:       u.Email,
		CustomerID:  u.StripeCustomerID,
	})
	if err != nil {
		_ = s.db.WithContext(ctx).Model(&pay).Update("status", models.PaymentFailed).Error
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&pay).Update("stripe_session_id", cs.ID).Error; err != nil {
		return nil, fmt.Errorf("store checkout session: %w", err)
	}

	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"payment_id": pay.ID.String(),
		"kind":       string(in.Kind),
		"provider":   s.provider.Name(),
	}), "checkout started")

	return &CheckoutResult{
		PaymentID:   pay.ID,
		CheckoutURL: cs.URL,
		Provider:    s.provider.Name(),
		Amount:      config.Dollars(pay.AmountCents),
		Discount:    config.Dollars(discount),
	}, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// usablePromo loads an active code that the buyer does not own.
func (s *Service) usablePromo(ctx context.Context, code string, buyer uuid.UUID) (*models.PromoCode, error) {
	var p models.PromoCode
	err := s.db.WithContext(ctx).Where("code = ? AND is_active = ?", code, true).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidPromo
	}
	if err != nil {
		return nil, err
	}
	if p.OwnerID == buyer {
		return nil, ErrOwnPromo
	}
	return &p, nil
}

// Payments lists the caller's payments, newest first.
func (s *Service) Payments(ctx context.Context, userID uuid.UUID) ([]models.Payment, error) {
	var out []models.Payment
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc").Find(&out).Error
	return out, err
}
