package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/utils"
)

// Fulfilment carries what the provider reported about a completed checkout.
type Fulfilment struct {
	SessionID      string
	PaymentIntent  string
	SubscriptionID string
	CustomerID     string
	PeriodEnd      *time.Time
}

// Fulfil marks a payment paid and grants what was bought, all in one
// transaction. A payment that is already paid is left alone and reported
// with alreadyPaid.
func (s *Service) Fulfil(ctx context.Context, paymentID uuid.UUID, f Fulfilment) (alreadyPaid bool, err error) {
	now := s.now()
	var pay models.Payment
	var docChange *models.Document

	err = s.withTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&pay, "id = ?", paymentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if pay.Status == models.PaymentSucceeded {
			alreadyPaid = true
			return nil
		}

		switch pay.Kind {
		case models.KindDocument:
			doc, err := s.grantDocument(tx, &pay, now)
			if err != nil {
				return err
			}
			docChange = doc
		case models.KindPack:
			if err := tx.Create(&models.DocumentPack{
				UserID:             pay.UserID,
				PaymentID:          &pay.ID,
				PackSize:           s.pricing.PackSize,
				DocumentsRemaining: s.pricing.PackSize,
				AmountCents:        pay.AmountCents,
			}).Error; err != nil {
				return fmt.Errorf("create pack: %w", err)
			}
		case models.KindSubscription:
			if err := s.grantSubscription(tx, &pay, f, now); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown payment kind %q", pay.Kind)
		}

		if pay.PromoCodeID != nil {
			if err := s.creditPromo(tx, &pay); err != nil {
				return err
			}
		}
		if f.CustomerID != "" {
			if err := tx.Model(&models.User{}).Where("id = ? AND (stripe_customer_id = '' OR stripe_customer_id IS NULL)", pay.UserID).
				Update("stripe_customer_id", f.CustomerID).Error; err != nil {
				return err
			}
		}

		updates := map[string]any{"status": models.PaymentSucceeded, "completed_at": now}
		if f.PaymentIntent != "" {
			updates["stripe_payment_intent"] = f.PaymentIntent
		}
		return tx.Model(&models.Payment{}).Where("id = ?", pay.ID).Updates(updates).Error
	})
	if err != nil || alreadyPaid {
		return alreadyPaid, err
	}

	if docChange != nil {
		utils.LogDocumentHistory(ctx, s.db, docChange.ID, uuid.Nil, "purchased", docChange.PaymentStatus, models.PaymentPaid, "payment "+pay.ID.String())
	}
	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"payment_id": pay.ID.String(),
		"kind":       string(pay.Kind),
	}), "payment fulfilled")
	return false, nil
}

// grantDocument flips an owned draft or expired document to paid. It returns
// the document as it was before the change, or nil when nothing changed.
func (s *Service) grantDocument(tx *gorm.DB, pay *models.Payment, now time.Time) (*models.Document, error) {
	if pay.DocumentID == nil {
		return nil, errors.New("document payment without document")
	}
	var doc models.Document
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND user_id = ?", *pay.DocumentID, pay.UserID).First(&doc).Error; err != nil {
		return nil, fmt.Errorf("load purchased document: %w", err)
	}
	if doc.PaymentStatus == models.PaymentPaid || doc.PaymentStatus == models.PaymentFinalized {
		return nil, nil
	}
	before := doc
	if err := tx.Model(&doc).Updates(map[string]any{
		"payment_status": models.PaymentPaid,
		"paid_at":        now,
	}).Error; err != nil {
		return nil, err
	}
	return &before, nil
}

func (s *Service) grantSubscription(tx *gorm.DB, pay *models.Payment, f Fulfilment, now time.Time) error {
	plan := models.SubscriptionPlan(pay.Plan)
	end := periodEnd(plan, now)
	if f.PeriodEnd != nil {
		end = *f.PeriodEnd
	}

	var sub models.Subscription
	q := tx.Clauses(clause.Locking{Strength: "UPDATE"})
	var err error
	if f.SubscriptionID != "" {
		err = q.Where("stripe_subscription_id = ?", f.SubscriptionID).First(&sub).Error
	} else {
		err = q.Where("user_id = ?", pay.UserID).Order("created_at desc").First(&sub).Error
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if sub.ID == uuid.Nil {
		sub = models.Subscription{UserID: pay.UserID}
	}
	sub.Plan = plan
	sub.Status = models.SubActive
	sub.CurrentPeriodEnd = &end
	sub.DocumentsUsed = 0
	if f.SubscriptionID != "" {
		sub.StripeSubscriptionID = &f.SubscriptionID
	}
	if f.CustomerID != "" {
		sub.StripeCustomerID = f.CustomerID
	}
	return tx.Save(&sub).Error
}

// creditPromo records the referral and adds the payout to the owner's totals.
func (s *Service) creditPromo(tx *gorm.DB, pay *models.Payment) error {
	var promo models.PromoCode
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&promo, "id = ?", *pay.PromoCodeID).Error; err != nil {
		return fmt.Errorf("load promo code: %w", err)
	}
	if err := tx.Create(&models.PromoCodeUsage{
		PromoCodeID:     promo.ID,
		UserID:          pay.UserID,
		PaymentID:       pay.ID,
		AmountPaidCents: pay.AmountCents,
		PayoutCents:     promo.PayoutCents,
	}).Error; err != nil {
		return fmt.Errorf("record promo usage: %w", err)
	}
	return tx.Model(&models.PromoCode{}).Where("id = ?", promo.ID).UpdateColumns(map[string]any{
		"times_used":         gorm.Expr("times_used + 1"),
		"total_earned_cents": gorm.Expr("total_earned_cents + ?", promo.PayoutCents),
	}).Error
}

// MarkFailed fails a payment that has not been fulfilled.
func (s *Service) MarkFailed(ctx context.Context, paymentID uuid.UUID) error {
	return s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, models.PaymentInitiated).
		Update("status", models.PaymentFailed).Error
}

/* ================================ Credits =============================== */

type Credits struct {
	PackDocumentsRemaining int                  `json:"pack_documents_remaining"`
	Subscription           *models.Subscription `json:"subscription,omitempty"`
	SubscriptionRemaining  int                  `json:"subscription_documents_remaining"`
}

func (s *Service) Credits(ctx context.Context, userID uuid.UUID) (*Credits, error) {
	out := &Credits{}
	var total struct{ N int }
	if err := s.db.WithContext(ctx).Model(&models.DocumentPack{}).
		Select("COALESCE(SUM(documents_remaining), 0) AS n").
		Where("user_id = ?", userID).Scan(&total).Error; err != nil {
		return nil, err
	}
	out.PackDocumentsRemaining = total.N

	var sub models.Subscription
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc").First(&sub).Error
	if err == nil {
		out.Subscription = &sub
		if sub.IsActive(s.now()) {
			out.SubscriptionRemaining = max(s.policy.SubscriptionDocsPerMon-sub.DocumentsUsed, 0)
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return out, nil
}

// Unlock pays for a document with a pack credit, or failing that with the
// active subscription's allowance. source is "pack" or "subscription".
func (s *Service) Unlock(ctx context.Context, userID, docID uuid.UUID) (source string, err error) {
	now := s.now()
	var before models.Document
	err = s.withTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND user_id = ?", docID, userID).First(&before).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if before.PaymentStatus == models.PaymentPaid || before.PaymentStatus == models.PaymentFinalized {
			return ErrAlreadyPurchased
		}

		var pack models.DocumentPack
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND documents_remaining > 0", userID).
			Order("created_at asc").First(&pack).Error
		switch {
		case err == nil:
			if err := tx.Model(&pack).UpdateColumn("documents_remaining", gorm.Expr("documents_remaining - 1")).Error; err != nil {
				return err
			}
			source = "pack"
		case errors.Is(err, gorm.ErrRecordNotFound):
			var sub models.Subscription
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("user_id = ? AND status = ?", userID, models.SubActive).
				Order("created_at desc").First(&sub).Error
			if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !sub.IsActive(now)) ||
				(err == nil && sub.DocumentsUsed >= s.policy.SubscriptionDocsPerMon) {
				return ErrNoCredits
			}
			if err != nil {
				return err
			}
			if err := tx.Model(&sub).UpdateColumn("documents_used", gorm.Expr("documents_used + 1")).Error; err != nil {
				return err
			}
			source = "subscription"
		default:
			return err
		}

		return tx.Model(&models.Document{}).Where("id = ?", docID).Updates(map[string]any{
			"payment_status": models.PaymentPaid,
			"paid_at":        now,
		}).Error
	})
	if err != nil {
		return "", err
	}
	utils.LogDocumentHistory(ctx, s.db, docID, userID, "unlocked", before.PaymentStatus, models.PaymentPaid, source)
	return source, nil
}
