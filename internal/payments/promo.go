package payments

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/section1983-backend/pkg/config"
	"github.com/aldoetobex/section1983-backend/pkg/models"
)

var reCode = regexp.MustCompile(`^[A-Z0-9]{4,20}$`)

/* ============================== Promo codes ============================= */

// CreatePromo gives the user their referral code. An empty code is
// generated from the user's name.
func (s *Service) CreatePromo(ctx context.Context, userID uuid.UUID, code string) (*models.PromoCode, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		return nil, ErrNotFound
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.PromoCode{}).Where("owner_id = ?", userID).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrHasPromo
	}

	code = normalizeCode(code)
	generated := code == ""
	if generated {
		code = suggestCode(u.FirstName, u.LastName)
	}
	if !reCode.MatchString(code) {
		return nil, ErrInvalidPromo
	}

	p := &models.PromoCode{
		Code:            code,
		OwnerID:         userID,
		DiscountPercent: s.pricing.PromoDiscountPerc,
		PayoutCents:     s.pricing.PromoPayoutCents,
		IsActive:        true,
	}
	for attempt := 0; ; attempt++ {
		var taken int64
		if err := s.db.WithContext(ctx).Model(&models.PromoCode{}).Where("code = ?", p.Code).Count(&taken).Error; err != nil {
			return nil, err
		}
		if taken == 0 {
			break
		}
		if !generated || attempt >= 5 {
			return nil, ErrPromoTaken
		}
		p.Code = suggestCode(u.FirstName, u.LastName)
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, ErrPromoTaken
	}
	return p, nil
}

// suggestCode is up to eight letters of the name plus four random digits.
func suggestCode(first, last string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(first + last) {
		if r >= 'A' && r <= 'Z' && b.Len() < 8 {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		b.WriteString("REF")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		n = big.NewInt(int64(uuid.New().ID() % 10000))
	}
	return fmt.Sprintf("%s%04d", b.String(), n.Int64())
}

type PromoStats struct {
	Code            string                  `json:"code"`
	DiscountPercent int                     `json:"discount_percent"`
	PayoutPerUse    decimal.Decimal         `json:"payout_per_use"`
	IsActive        bool                    `json:"is_active"`
	TimesUsed       int                     `json:"times_used"`
	TotalEarned     decimal.Decimal         `json:"total_earned"`
	TotalPaidOut    decimal.Decimal         `json:"total_paid_out"`
	Pending         decimal.Decimal         `json:"pending_payouts"`
	Available       decimal.Decimal         `json:"available"`
	MinimumPayout   decimal.Decimal         `json:"minimum_payout"`
	RecentUses      []models.PromoCodeUsage `json:"recent_uses"`
}

func (s *Service) ownPromo(ctx context.Context, db *gorm.DB, userID uuid.UUID) (*models.PromoCode, error) {
	var p models.PromoCode
	err := db.WithContext(ctx).Where("owner_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &p, err
}

// pendingCents sums payouts requested but not yet paid or rejected.
func pendingCents(ctx context.Context, db *gorm.DB, promoID uuid.UUID) (int64, error) {
	var total struct{ N int64 }
	err := db.WithContext(ctx).Model(&models.PayoutRequest{}).
		Select("COALESCE(SUM(amount_cents), 0) AS n").
		Where("promo_code_id = ? AND status IN ?", promoID, []models.PayoutStatus{models.PayoutPending, models.PayoutApproved}).
		Scan(&total).Error
	return total.N, err
}

func (s *Service) PromoStats(ctx context.Context, userID uuid.UUID) (*PromoStats, error) {
	p, err := s.ownPromo(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	pending, err := pendingCents(ctx, s.db, p.ID)
	if err != nil {
		return nil, err
	}
	var uses []models.PromoCodeUsage
	if err := s.db.WithContext(ctx).Where("promo_code_id = ?", p.ID).
		Order("created_at desc").Limit(20).Find(&uses).Error; err != nil {
		return nil, err
	}
	return &PromoStats{
		Code:            p.Code,
		DiscountPercent: p.DiscountPercent,
		PayoutPerUse:    config.Dollars(p.PayoutCents),
		IsActive:        p.IsActive,
		TimesUsed:       p.TimesUsed,
		TotalEarned:     config.Dollars(p.TotalEarnedCents),
		TotalPaidOut:    config.Dollars(p.TotalPaidOutCents),
		Pending:         config.Dollars(pending),
		Available:       config.Dollars(p.AvailableCents(pending)),
		MinimumPayout:   config.Dollars(s.policy.MinPayoutCents),
		RecentUses:      uses,
	}, nil
}

// ValidatePromo reports the discount a buyer would get, without using the code.
func (s *Service) ValidatePromo(ctx context.Context, buyer uuid.UUID, code string) (int, error) {
	p, err := s.usablePromo(ctx, normalizeCode(code), buyer)
	if err != nil {
		return 0, err
	}
	return p.DiscountPercent, nil
}

/* ================================ Payouts =============================== */

type PayoutInput struct {
	AmountCents int64
	Method      string
	Details     string
}

// RequestPayout asks for part of the available referral balance.
func (s *Service) RequestPayout(ctx context.Context, userID uuid.UUID, in PayoutInput) (*models.PayoutRequest, error) {
	if in.AmountCents < s.policy.MinPayoutCents {
		return nil, ErrBelowMinimum
	}
	var req *models.PayoutRequest
	err := s.withTx(ctx, func(tx *gorm.DB) error {
		var p models.PromoCode
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("owner_id = ?", userID).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		pending, err := pendingCents(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if in.AmountCents > p.AvailableCents(pending) {
			return ErrOverBalance
		}
		req = &models.PayoutRequest{
			UserID:      userID,
			PromoCodeID: p.ID,
			AmountCents: in.AmountCents,
			Status:      models.PayoutPending,
			Method:      in.Method,
			Details:     strings.TrimSpace(in.Details),
		}
		return tx.Create(req).Error
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Service) MyPayouts(ctx context.Context, userID uuid.UUID) ([]models.PayoutRequest, error) {
	var out []models.PayoutRequest
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc").Find(&out).Error
	return out, err
}

// ListPayouts is the staff queue, optionally filtered by status.
func (s *Service) ListPayouts(ctx context.Context, status string) ([]models.PayoutRequest, error) {
	q := s.db.WithContext(ctx).Order("created_at asc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.PayoutRequest
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

var payoutMoves = map[models.PayoutStatus][]models.PayoutStatus{
	models.PayoutApproved: {models.PayoutPending},
	models.PayoutRejected: {models.PayoutPending, models.PayoutApproved},
	models.PayoutPaid:     {models.PayoutApproved},
}

// SetPayoutStatus moves a payout request along pending → approved → paid,
// or to rejected. Paying adds the amount to the code's paid-out total.
func (s *Service) SetPayoutStatus(ctx context.Context, payoutID uuid.UUID, to models.PayoutStatus, note string) (*models.PayoutRequest, error) {
	var req models.PayoutRequest
	err := s.withTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, "id = ?", payoutID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		allowed := false
		for _, from := range payoutMoves[to] {
			if req.Status == from {
				allowed = true
			}
		}
		if !allowed {
			return ErrBadTransition
		}

		updates := map[string]any{"status": to}
		if note = strings.TrimSpace(note); note != "" {
			updates["admin_note"] = note
		}
		if to == models.PayoutPaid || to == models.PayoutRejected {
			updates["processed_at"] = s.now()
		}
		if to == models.PayoutPaid {
			if err := tx.Model(&models.PromoCode{}).Where("id = ?", req.PromoCodeID).
				UpdateColumn("total_paid_out_cents", gorm.Expr("total_paid_out_cents + ?", req.AmountCents)).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&req).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&req, "id = ?", payoutID).Error
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(s.log.WithFields(ctx, map[string]any{"payout_id": req.ID.String(), "status": string(to)}), "payout updated")
	return &req, nil
}
