package payments

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/section1983-backend/internal/auth"
	"github.com/aldoetobex/section1983-backend/internal/documents"
	"github.com/aldoetobex/section1983-backend/pkg/config"
	"github.com/aldoetobex/section1983-backend/pkg/models"
	"github.com/aldoetobex/section1983-backend/pkg/validation"
)

func httpError(err error) error {
	var fe *fiber.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &fe):
		return fe
	case errors.Is(err, ErrNotFound):
		return fiber.ErrNotFound
	case errors.Is(err, ErrAlreadyPurchased):
		return fiber.NewError(fiber.StatusConflict, "this document is already purchased")
	case errors.Is(err, ErrInvalidPromo):
		return fiber.NewError(fiber.StatusBadRequest, "invalid promo code")
	case errors.Is(err, ErrOwnPromo):
		return fiber.NewError(fiber.StatusBadRequest, "you cannot use your own promo code")
	case errors.Is(err, ErrPromoTaken):
		return fiber.NewError(fiber.StatusConflict, "that promo code is taken")
	case errors.Is(err, ErrHasPromo):
		return fiber.NewError(fiber.StatusConflict, "you already have a promo code")
	case errors.Is(err, ErrNoCredits):
		return fiber.NewError(fiber.StatusPaymentRequired, "no document credits left; purchase this document or a pack")
	case errors.Is(err, ErrBelowMinimum):
		return fiber.NewError(fiber.StatusBadRequest, "payout is below the minimum")
	case errors.Is(err, ErrOverBalance):
		return fiber.NewError(fiber.StatusBadRequest, "payout exceeds your available balance")
	case errors.Is(err, ErrBadTransition):
		return fiber.NewError(fiber.StatusConflict, "payout cannot move to that status")
	case errors.Is(err, ErrBadSignature):
		return fiber.NewError(fiber.StatusBadRequest, "invalid signature")
	case errors.Is(err, ErrProvider):
		return fiber.NewError(fiber.StatusBadGateway, "payment provider unavailable")
	}
	return fiber.ErrInternalServerError
}

type Handler struct {
	svc    *Service
	appEnv string
}

func NewHandler(svc *Service, appEnv string) *Handler {
	return &Handler{svc: svc, appEnv: appEnv}
}

func userID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.MustUserID(c))
	if err != nil {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	return id, nil
}

/* ================================ Pricing =============================== */

// @Summary      Pricing
// @Description  Current prices in dollars
// @Tags         payments
// @Produce      json
// @Success      200  {object}  Pricing
// @Router       /payments/pricing [get]
func (h *Handler) Pricing(c *fiber.Ctx) error {
	return c.JSON(h.svc.Pricing())
}

/* =============================== Checkout =============================== */

type CheckoutBody struct {
	Kind       string `json:"kind" validate:"required,oneof=document pack subscription"`
	DocumentID string `json:"document_id" validate:"required_if=Kind document,omitempty,uuid"`
	Plan       string `json:"plan" validate:"required_if=Kind subscription,omitempty,oneof=monthly annual"`
	PromoCode  string `json:"promo_code" validate:"max=32"`
}

// @Summary      Start checkout
// @Description  Creates an initiated payment and returns the provider checkout URL
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CheckoutBody  true  "What to buy"
// @Success      201  {object}  CheckoutResult
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "already purchased"
// @Router       /payments/checkout [post]
func (h *Handler) CreateCheckout(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var in CheckoutBody
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Kind = strings.ToLower(strings.TrimSpace(in.Kind))
	in.Plan = strings.ToLower(strings.TrimSpace(in.Plan))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	ci := CheckoutInput{
		Kind:      models.PaymentKind(in.Kind),
		Plan:      models.SubscriptionPlan(in.Plan),
		PromoCode: in.PromoCode,
	}
	if in.DocumentID != "" {
		id := uuid.MustParse(in.DocumentID)
		ci.DocumentID = &id
	}
	res, err := h.svc.Checkout(c.UserContext(), uid, ci)
	if err != nil {
		return httpError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// @Summary      My payments
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  models.Payment
// @Router       /payments [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Payments(c.UserContext(), uid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(out)
}

// @Summary      My credits
// @Description  Pack documents left and the subscription allowance for this period
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  Credits
// @Router       /payments/credits [get]
func (h *Handler) Credits(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Credits(c.UserContext(), uid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(out)
}

// @Summary      Unlock with credits
// @Description  Pays for a document with a pack credit or the active subscription
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id  path  string  true  "document id (uuid)"
// @Success      200  {object}  map[string]string
// @Failure      402  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /documents/{id}/unlock [post]
func (h *Handler) Unlock(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	docID, err := documents.ParamID(c, "id")
	if err != nil {
		return err
	}
	source, err := h.svc.Unlock(c.UserContext(), uid, docID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"document_id": docID, "payment_status": models.PaymentPaid, "source": source})
}

/* ========================= Webhook / mock complete ======================= */

// @Summary      Stripe webhook
// @Description  Verifies the Stripe-Signature header; replayed events are acknowledged without reprocessing
// @Tags         payments
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Failure      400  {object}  models.ErrorResponse
// @Router       /payments/stripe/webhook [post]
func (h *Handler) StripeWebhook(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	if err := h.svc.HandleWebhook(c.UserContext(), body, c.Get("Stripe-Signature")); err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"received": true})
}

type mockCompleteReq struct {
	PaymentID string `json:"payment_id" validate:"required,uuid"`
}

// @Summary      Complete mock payment (dev)
// @Description  Fulfils a mock checkout. Requires X-Dev-Secret; only mounted with APP_ENV=dev and PAYMENT_PROVIDER=mock
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        X-Dev-Secret  header  string           true  "dev secret"
// @Param        payload       body    mockCompleteReq  true  "payment"
// @Success      200  {object}  map[string]any
// @Failure      401  {object}  models.ErrorResponse
// @Router       /payments/mock/complete [post]
func (h *Handler) MockComplete(c *fiber.Ctx) error {
	if !strings.EqualFold(h.appEnv, config.AppEnvDev) || h.svc.provider.Name() != config.ProviderMock {
		return fiber.ErrNotFound
	}
	secret := h.svc.stripe.DevSecret
	got := c.Get("X-Dev-Secret")
	if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
		return fiber.NewError(fiber.StatusUnauthorized, "missing/invalid X-Dev-Secret")
	}
	var in mockCompleteReq
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	already, err := h.svc.Fulfil(c.UserContext(), uuid.MustParse(in.PaymentID), Fulfilment{})
	if err != nil {
		return httpError(err)
	}
	if already {
		return c.JSON(fiber.Map{"ok": true, "message": "already paid (idempotent)"})
	}
	return c.JSON(fiber.Map{"ok": true})
}

/* ============================== Promo codes ============================= */

type PromoRequest struct {
	Code string `json:"code" validate:"omitempty,min=4,max=20,alphanum"`
}

// @Summary      Create my promo code
// @Description  One referral code per user; an empty code is generated
// @Tags         promo
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  PromoRequest  false  "Desired code"
// @Success      201  {object}  models.PromoCode
// @Failure      409  {object}  models.ErrorResponse
// @Router       /promo-codes [post]
func (h *Handler) CreatePromo(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var in PromoRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.ErrBadRequest
		}
	}
	in.Code = strings.TrimSpace(in.Code)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	p, err := h.svc.CreatePromo(c.UserContext(), uid, in.Code)
	if err != nil {
		return httpError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

// @Summary      My promo stats
// @Description  Uses, earnings and the balance available for payout
// @Tags         promo
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  PromoStats
// @Failure      404  {object}  models.ErrorResponse
// @Router       /promo-codes/mine [get]
func (h *Handler) PromoStats(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.PromoStats(c.UserContext(), uid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(out)
}

// @Summary      Check a promo code
// @Tags         promo
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  PromoRequest  true  "Code"
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  models.ErrorResponse
// @Router       /promo-codes/validate [post]
func (h *Handler) ValidatePromo(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var in PromoRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	pct, err := h.svc.ValidatePromo(c.UserContext(), uid, in.Code)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(fiber.Map{"valid": true, "code": normalizeCode(in.Code), "discount_percent": pct})
}

type PayoutRequestBody struct {
	Amount  string `json:"amount" validate:"required,money"`
	Method  string `json:"method" validate:"required,oneof=paypal venmo zelle check"`
	Details string `json:"details" validate:"required,max=500"`
}

// @Summary      Request payout
// @Tags         promo
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  PayoutRequestBody  true  "Amount in dollars"
// @Success      201  {object}  models.PayoutRequest
// @Failure      400  {object}  models.ErrorResponse
// @Router       /promo-codes/payouts [post]
func (h *Handler) RequestPayout(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	var in PayoutRequestBody
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Method = strings.ToLower(strings.TrimSpace(in.Method))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	amt, _ := validation.ParseMoney(in.Amount) // money-validated
	req, err := h.svc.RequestPayout(c.UserContext(), uid, PayoutInput{
		AmountCents: amt.Shift(2).Round(0).IntPart(),
		Method:      in.Method,
		Details:     in.Details,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// @Summary      My payouts
// @Tags         promo
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  models.PayoutRequest
// @Router       /promo-codes/payouts [get]
func (h *Handler) MyPayouts(c *fiber.Ctx) error {
	uid, err := userID(c)
	if err != nil {
		return err
	}
	out, err := h.svc.MyPayouts(c.UserContext(), uid)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(out)
}

/* ================================= Admin ================================ */

// @Summary      Payout queue
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        status  query  string  false  "pending|approved|rejected|paid"
// @Success      200  {array}  models.PayoutRequest
// @Router       /admin/payouts [get]
func (h *Handler) AdminListPayouts(c *fiber.Ctx) error {
	out, err := h.svc.ListPayouts(c.UserContext(), c.Query("status"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(out)
}

type payoutNote struct {
	Note string `json:"note" validate:"max=2000"`
}

func (h *Handler) movePayout(to models.PayoutStatus) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := documents.ParamID(c, "id")
		if err != nil {
			return err
		}
		var in payoutNote
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&in); err != nil {
				return fiber.ErrBadRequest
			}
		}
		if errs, _ := validation.Validate(in); errs != nil {
			return validation.Respond(c, errs)
		}
		out, err := h.svc.SetPayoutStatus(c.UserContext(), id, to, in.Note)
		if err != nil {
			return httpError(err)
		}
		return c.JSON(out)
	}
}

/* ================================ Routes ================================ */

// MountPublic registers routes that need no session: pricing, the webhook
// and, in dev with the mock provider, mock completion.
func (h *Handler) MountPublic(r fiber.Router) {
	r.Get("/payments/pricing", h.Pricing)
	r.Post("/payments/stripe/webhook", h.StripeWebhook)
	if strings.EqualFold(h.appEnv, config.AppEnvDev) && h.svc.provider.Name() == config.ProviderMock {
		r.Post("/payments/mock/complete", h.MockComplete)
	}
}

// Mount registers the authenticated billing and referral routes.
func (h *Handler) Mount(r fiber.Router) {
	r.Post("/payments/checkout", h.CreateCheckout)
	r.Get("/payments", h.ListMine)
	r.Get("/payments/credits", h.Credits)
	r.Post("/documents/:id/unlock", h.Unlock)

	r.Post("/promo-codes", h.CreatePromo)
	r.Get("/promo-codes/mine", h.PromoStats)
	r.Post("/promo-codes/validate", h.ValidatePromo)
	r.Post("/promo-codes/payouts", h.RequestPayout)
	r.Get("/promo-codes/payouts", h.MyPayouts)
}

// MountAdmin registers the payout queue on a staff-only router.
func (h *Handler) MountAdmin(r fiber.Router) {
	r.Get("/payouts", h.AdminListPayouts)
	r.Post("/payouts/:id/approve", h.movePayout(models.PayoutApproved))
	r.Post("/payouts/:id/reject", h.movePayout(models.PayoutRejected))
	r.Post("/payouts/:id/mark-paid", h.movePayout(models.PayoutPaid))
}
