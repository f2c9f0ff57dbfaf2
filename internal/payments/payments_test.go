package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/internal/auth"
	"github.com/aldoetobex/section1983-backend/pkg/config"
	"github.com/aldoetobex/section1983-backend/pkg/logger"
	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/testutil"
)

/* ============================================================================
   Helpers
   ============================================================================ */

const whsec = "whsec_test_secret"

type memStore struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (m *memStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

type env struct {
	db    *gorm.DB
	svc   *Service
	store *memStore
	buyer *models.User
}

func newEnv(t *testing.T, docsPerPeriod int) *env {
	t.Helper()
	db := testutil.OpenDB(t)
	svc, err := NewService(Deps{
		DB: db,
		Pricing: config.PricingConfig{
			DocumentCents: 4900, PackSize: 3, PackCents: 11900,
			MonthlyCents: 2900, AnnualCents: 24900,
			PromoPayoutCents: 1000, PromoDiscountPerc: 10,
		},
		Policy:   config.PolicyConfig{MinPayoutCents: 2500, SubscriptionDocsPerMon: docsPerPeriod},
		Stripe:   config.StripeConfig{Provider: config.ProviderMock, WebhookSecret: whsec, DevSecret: "letmein"},
		Provider: MockProvider{},
		Log:      logger.Nop(),
	})
	require.NoError(t, err)
	store := &memStore{keys: map[string]bool{}}
	svc.guard, err = NewIdempotencyGuard(store, time.Hour, "stripe_webhook")
	require.NoError(t, err)
	return &env{db: db, svc: svc, store: store, buyer: testutil.SeedUser(t, db)}
}

func (e *env) draft(t *testing.T, owner *models.User) *models.Document {
	t.Helper()
	doc := &models.Document{UserID: owner.ID, Title: "Complaint", PaymentStatus: models.PaymentDraft}
	require.NoError(t, e.db.Create(doc).Error)
	return doc
}

func (e *env) promo(t *testing.T, earnedCents int64) (*models.User, *models.PromoCode) {
	t.Helper()
	owner := testutil.SeedUser(t, e.db)
	p, err := e.svc.CreatePromo(context.Background(), owner.ID, "civil2024")
	require.NoError(t, err)
	if earnedCents > 0 {
		require.NoError(t, e.db.Model(p).Update("total_earned_cents", earnedCents).Error)
	}
	return owner, p
}

func (e *env) reload(t *testing.T, v any, id uuid.UUID) {
	t.Helper()
	require.NoError(t, e.db.First(v, "id = ?", id).Error)
}

func signed(t *testing.T, event map[string]any) ([]byte, string) {
	t.Helper()
	b, err := json.Marshal(event)
	require.NoError(t, err)
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: b, Secret: whsec})
	return sp.Payload, sp.Header
}

func event(id, typ string, object map[string]any) map[string]any {
	return map[string]any{"id": id, "object": "event", "type": typ, "data": map[string]any{"object": object}}
}

/* ============================================================================
   Checkout and fulfilment
   ============================================================================ */

func TestDiscountCents(t *testing.T) {
	assert.Equal(t, int64(490), discountCents(4900, 10))
	assert.Equal(t, int64(1190), discountCents(11900, 10))
	assert.Equal(t, int64(3), discountCents(25, 10), "half cents round up")
	assert.Zero(t, discountCents(4900, 0))
	assert.Equal(t, int64(4900), discountCents(4900, 150))
}

func TestCheckoutWithPromoAndIdempotentFulfil(t *testing.T) {
	e := newEnv(t, 5)
	_, promo := e.promo(t, 0)
	doc := e.draft(t, e.buyer)

	res, err := e.svc.Checkout(context.Background(), e.buyer.ID, CheckoutInput{
		Kind: models.KindDocument, DocumentID: &doc.ID, PromoCode: " civil2024 ",
	})
	require.NoError(t, err)
	assert.Equal(t, "44.1", res.Amount.String())
	assert.Equal(t, "4.9", res.Discount.String())
	assert.Equal(t, config.ProviderMock, res.Provider)
	assert.Contains(t, res.CheckoutURL, res.PaymentID.String())

	var pay models.Payment
	e.reload(t, &pay, res.PaymentID)
	assert.Equal(t, models.PaymentInitiated, pay.Status)
	assert.EqualValues(t, 4410, pay.AmountCents)
	require.NotNil(t, pay.StripeSessionID)

	already, err := e.svc.Fulfil(context.Background(), pay.ID, Fulfilment{})
	require.NoError(t, err)
	assert.False(t, already)

	var got models.Document
	e.reload(t, &got, doc.ID)
	assert.Equal(t, models.PaymentPaid, got.PaymentStatus)
	assert.NotNil(t, got.PaidAt)

	already, err = e.svc.Fulfil(context.Background(), pay.ID, Fulfilment{})
	require.NoError(t, err)
	assert.True(t, already)

	var p models.PromoCode
	e.reload(t, &p, promo.ID)
	assert.Equal(t, 1, p.TimesUsed)
	assert.EqualValues(t, 1000, p.TotalEarnedCents)

	var uses int64
	require.NoError(t, e.db.Model(&models.PromoCodeUsage{}).Where("promo_code_id = ?", promo.ID).Count(&uses).Error)
	assert.EqualValues(t, 1, uses)

	_, err = e.svc.Checkout(context.Background(), e.buyer.ID, CheckoutInput{Kind: models.KindDocument, DocumentID: &doc.ID})
	assert.ErrorIs(t, err, ErrAlreadyPurchased)
}

func TestCheckoutPromoRules(t *testing.T) {
	e := newEnv(t, 5)
	owner, _ := e.promo(t, 0)

	_, err := e.svc.Checkout(context.Background(), owner.ID, CheckoutInput{Kind: models.KindPack, PromoCode: "CIVIL2024"})
	assert.ErrorIs(t, err, ErrOwnPromo)

	_, err = e.svc.Checkout(context.Background(), e.buyer.ID, CheckoutInput{Kind: models.KindPack, PromoCode: "NOPE1234"})
	assert.ErrorIs(t, err, ErrInvalidPromo)

	other := testutil.SeedUser(t, e.db)
	doc := e.draft(t, other)
	_, err = e.svc.Checkout(context.Background(), e.buyer.ID, CheckoutInput{Kind: models.KindDocument, DocumentID: &doc.ID})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = e.svc.CreatePromo(context.Background(), owner.ID, "")
	assert.ErrorIs(t, err, ErrHasPromo)
	_, err = e.svc.CreatePromo(context.Background(), e.buyer.ID, "CIVIL2024")
	assert.ErrorIs(t, err, ErrPromoTaken)

	generated, err := e.svc.CreatePromo(context.Background(), e.buyer.ID, "")
	require.NoError(t, err)
	assert.Regexp(t, `^ANAREYES\d{4}$`, generated.Code)
}

func TestPackCreditsUnlockDocuments(t *testing.T) {
	e := newEnv(t, 5)
	res, err := e.svc.Checkout(context.Background(), e.buyer.ID, CheckoutInput{Kind: models.KindPack})
	require.NoError(t, err)
	_, err = e.svc.Fulfil(context.Background(), res.PaymentID, Fulfilment{})
	require.NoError(t, err)

	credits, err := e.svc.Credits(context.Background(), e.buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, credits.PackDocumentsRemaining)

	doc := e.draft(t, e.buyer)
	source, err := e.svc.Unlock(context.Background(), e.buyer.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "pack", source)

	_, err = e.svc.Unlock(context.Background(), e.buyer.ID, doc.ID)
	assert.ErrorIs(t, err, ErrAlreadyPurchased)

	credits, err = e.svc.Credits(context.Background(), e.buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, credits.PackDocumentsRemaining)

	stranger := testutil.SeedUser(t, e.db)
	_, err = e.svc.Unlock(context.Background(), stranger.ID, e.draft(t, stranger).ID)
	assert.ErrorIs(t, err, ErrNoCredits)

	var h models.DocumentHistory
	require.NoError(t, e.db.Where("document_id = ? AND action = ?", doc.ID, "unlocked").First(&h).Error)
	assert.Equal(t, models.PaymentPaid, h.NewStatus)
}

func TestSubscriptionAllowance(t *testing.T) {
	e := newEnv(t, 1)
	res, err := e.svc.Checkout(context.Background(), e.buyer.ID, CheckoutInput{Kind: models.KindSubscription, Plan: models.PlanMonthly})
	require.NoError(t, err)
	assert.Equal(t, "29", res.Amount.String())
	_, err = e.svc.Fulfil(context.Background(), res.PaymentID, Fulfilment{SubscriptionID: "sub_1", CustomerID: "cus_1"})
	require.NoError(t, err)

	var sub models.Subscription
	require.NoError(t, e.db.Where("user_id = ?", e.buyer.ID).First(&sub).Error)
	assert.Equal(t, models.SubActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.True(t, sub.CurrentPeriodEnd.After(time.Now().AddDate(0, 0, 27)))

	var u models.User
	e.reload(t, &u, e.buyer.ID)
	assert.Equal(t, "cus_1", u.StripeCustomerID)

	source, err := e.svc.Unlock(context.Background(), e.buyer.ID, e.draft(t, e.buyer).ID)
	require.NoError(t, err)
	assert.Equal(t, "subscription", source)

	_, err = e.svc.Unlock(context.Background(), e.buyer.ID, e.draft(t, e.buyer).ID)
	assert.ErrorIs(t, err, ErrNoCredits)
}

/* ============================================================================
   Webhook
   ============================================================================ */

func TestWebhookCompletesCheckoutOnce(t *testing.T) {
	e := newEnv(t, 5)
	doc := e.draft(t, e.buyer)
	res, err := e.svc.Checkout(context.Background(), e.buyer.ID, CheckoutInput{Kind: models.KindDocument, DocumentID: &doc.ID})
	require.NoError(t, err)

	payload, header := signed(t, event("evt_1", "checkout.session.completed", map[string]any{
		"id": "cs_test_1", "object": "checkout.session", "client_reference_id": res.PaymentID.String(),
		"payment_status": "paid", "mode": "payment", "payment_intent": "pi_1", "customer": "cus_9",
	}))
	require.NoError(t, e.svc.HandleWebhook(context.Background(), payload, header))

	var pay models.Payment
	e.reload(t, &pay, res.PaymentID)
	assert.Equal(t, models.PaymentSucceeded, pay.Status)
	require.NotNil(t, pay.StripePaymentIntent)
	assert.Equal(t, "pi_1", *pay.StripePaymentIntent)

	// Replays are acknowledged and skipped.
	require.NoError(t, e.db.Model(&models.Document{}).Where("id = ?", doc.ID).Update("payment_status", models.PaymentDraft).Error)
	require.NoError(t, e.svc.HandleWebhook(context.Background(), payload, header))
	var got models.Document
	e.reload(t, &got, doc.ID)
	assert.Equal(t, models.PaymentDraft, got.PaymentStatus)

	err = e.svc.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestWebhookFailureReleasesEventID(t *testing.T) {
	e := newEnv(t, 5)
	payload, header := signed(t, event("evt_missing", "checkout.session.completed", map[string]any{
		"id": "cs_test_2", "object": "checkout.session", "client_reference_id": uuid.NewString(), "payment_status": "paid",
	}))
	err := e.svc.HandleWebhook(context.Background(), payload, header)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, e.store.keys, "a failed event can be retried")
}

func TestWebhookSubscriptionLifecycle(t *testing.T) {
	e := newEnv(t, 5)
	sid := "sub_life"
	start := time.Now().Add(24 * time.Hour)
	require.NoError(t, e.db.Create(&models.Subscription{
		UserID: e.buyer.ID, Plan: models.PlanMonthly, Status: models.SubActive,
		StripeSubscriptionID: &sid, CurrentPeriodEnd: &start, DocumentsUsed: 4,
	}).Error)
	load := func() models.Subscription {
		var s models.Subscription
		require.NoError(t, e.db.Where("stripe_subscription_id = ?", sid).First(&s).Error)
		return s
	}

	payload, header := signed(t, event("evt_inv", "invoice.payment_failed", map[string]any{
		"id": "in_1", "object": "invoice",
		"parent": map[string]any{"subscription_details": map[string]any{"subscription": sid}},
	}))
	require.NoError(t, e.svc.HandleWebhook(context.Background(), payload, header))
	assert.Equal(t, models.SubPastDue, load().Status)

	next := time.Now().AddDate(0, 1, 1).Unix()
	payload, header = signed(t, event("evt_upd", "customer.subscription.updated", map[string]any{
		"id": sid, "object": "subscription", "status": "active",
		"items": map[string]any{"object": "list", "data": []any{map[string]any{"id": "si_1", "current_period_end": next}}},
	}))
	require.NoError(t, e.svc.HandleWebhook(context.Background(), payload, header))
	s := load()
	assert.Equal(t, models.SubActive, s.Status)
	assert.Zero(t, s.DocumentsUsed, "a new period resets the allowance")
	assert.Equal(t, next, s.CurrentPeriodEnd.Unix())

	payload, header = signed(t, event("evt_del", "customer.subscription.deleted", map[string]any{
		"id": sid, "object": "subscription", "status": "active",
	}))
	require.NoError(t, e.svc.HandleWebhook(context.Background(), payload, header))
	assert.Equal(t, models.SubCanceled, load().Status)
}

func TestWebhookExpiredSessionFailsPayment(t *testing.T) {
	e := newEnv(t, 5)
	res, err := e.svc.Checkout(context.Background(), e.buyer.ID, CheckoutInput{Kind: models.KindPack})
	require.NoError(t, err)

	payload, header := signed(t, event("evt_exp", "checkout.session.expired", map[string]any{
		"id": "cs_exp", "object": "checkout.session", "metadata": map[string]any{"payment_id": res.PaymentID.String()},
	}))
	require.NoError(t, e.svc.HandleWebhook(context.Background(), payload, header))

	var pay models.Payment
	e.reload(t, &pay, res.PaymentID)
	assert.Equal(t, models.PaymentFailed, pay.Status)
}

/* ============================================================================
   Payouts
   ============================================================================ */

func TestPayoutFlow(t *testing.T) {
	e := newEnv(t, 5)
	owner, promo := e.promo(t, 6000)
	ctx := context.Background()

	_, err := e.svc.RequestPayout(ctx, owner.ID, PayoutInput{AmountCents: 2000, Method: "paypal", Details: "me@example.com"})
	assert.ErrorIs(t, err, ErrBelowMinimum)

	req, err := e.svc.RequestPayout(ctx, owner.ID, PayoutInput{AmountCents: 2500, Method: "paypal", Details: "me@example.com"})
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPending, req.Status)

	_, err = e.svc.RequestPayout(ctx, owner.ID, PayoutInput{AmountCents: 4000, Method: "paypal", Details: "me@example.com"})
	assert.ErrorIs(t, err, ErrOverBalance, "pending requests count against the balance")

	stats, err := e.svc.PromoStats(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "35", stats.Available.String())
	assert.Equal(t, "25", stats.Pending.String())

	_, err = e.svc.SetPayoutStatus(ctx, req.ID, models.PayoutPaid, "")
	assert.ErrorIs(t, err, ErrBadTransition, "must be approved first")

	_, err = e.svc.SetPayoutStatus(ctx, req.ID, models.PayoutApproved, "")
	require.NoError(t, err)
	paid, err := e.svc.SetPayoutStatus(ctx, req.ID, models.PayoutPaid, "sent via paypal")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPaid, paid.Status)
	assert.NotNil(t, paid.ProcessedAt)

	var p models.PromoCode
	e.reload(t, &p, promo.ID)
	assert.EqualValues(t, 2500, p.TotalPaidOutCents)

	stats, err = e.svc.PromoStats(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "35", stats.Available.String())
	assert.True(t, stats.Pending.IsZero())

	_, err = e.svc.SetPayoutStatus(ctx, req.ID, models.PayoutRejected, "")
	assert.ErrorIs(t, err, ErrBadTransition)
}

/* ============================================================================
   HTTP
   ============================================================================ */

func TestPaymentRoutes(t *testing.T) {
	e := newEnv(t, 5)
	h := NewHandler(e.svc, config.AppEnvDev)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	h.MountPublic(app.Group("/api"))
	api := app.Group("/api", testutil.InjectAuth(e.buyer.ID, false))
	h.Mount(api)

	resp := testutil.Do(t, app, http.MethodGet, "/api/payments/pricing", nil)
	body := testutil.DecodeMap(t, resp)
	assert.Equal(t, "49", body["document"])

	resp = testutil.Do(t, app, http.MethodPost, "/api/payments/checkout", map[string]any{"kind": "subscription"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, testutil.DecodeMap(t, resp)["errors"], "plan")

	resp = testutil.Do(t, app, http.MethodPost, "/api/payments/checkout", map[string]any{"kind": "pack"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var res CheckoutResult
	testutil.Decode(t, resp, &res)

	complete := map[string]any{"payment_id": res.PaymentID.String()}
	resp = testutil.Do(t, app, http.MethodPost, "/api/payments/mock/complete", complete)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = testutil.Do(t, app, http.MethodPost, "/api/payments/mock/complete", complete, "X-Dev-Secret", "letmein")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = testutil.Do(t, app, http.MethodPost, "/api/payments/mock/complete", complete, "X-Dev-Secret", "letmein")
	assert.Equal(t, "already paid (idempotent)", testutil.DecodeMap(t, resp)["message"])

	doc := e.draft(t, e.buyer)
	resp = testutil.Do(t, app, http.MethodPost, fmt.Sprintf("/api/documents/%s/unlock", doc.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pack", testutil.DecodeMap(t, resp)["source"])

	resp = testutil.Do(t, app, http.MethodPost, "/api/promo-codes/payouts", map[string]any{"amount": "25", "method": "paypal", "details": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no promo code yet")
}

func TestMockCompleteHiddenOutsideDev(t *testing.T) {
	e := newEnv(t, 5)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	NewHandler(e.svc, config.AppEnvProd).MountPublic(app.Group("/api"))

	resp := testutil.Do(t, app, http.MethodPost, "/api/payments/mock/complete", map[string]any{"payment_id": uuid.NewString()},
		"X-Dev-Secret", "letmein")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
