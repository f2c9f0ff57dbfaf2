package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/aldoetobex/section1983-backend/pkg/config"
	"github.com/aldoetobex/section1983-backend/pkg/models"
)

// CheckoutRequest is what a provider needs to open a hosted checkout page.
type CheckoutRequest struct {
	PaymentID   uuid.UUID
	Kind        models.PaymentKind
	Plan        models.SubscriptionPlan
	Description string
	AmountCents int64
	Email       string
	CustomerID  string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// Provider opens checkout sessions.
type Provider interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// NewProvider picks the provider named by cfg.Provider.
func NewProvider(cfg config.StripeConfig) (Provider, error) {
	switch cfg.Provider {
	case config.ProviderStripe:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
		return NewStripeProvider(cfg), nil
	case config.ProviderMock, "":
		return MockProvider{}, nil
	}
	return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
}

/* ================================= Mock ================================= */

// MockProvider returns a fake checkout URL; the payment is fulfilled through
// the dev-only mock complete endpoint.
type MockProvider struct{}

func (MockProvider) Name() string { return config.ProviderMock }

func (MockProvider) CreateCheckout(_ context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	return &CheckoutSession{
		ID:  "mock_" + uuid.NewString(),
		URL: "mock://checkout?payment_id=" + req.PaymentID.String(),
	}, nil
}

/* ================================ Stripe ================================ */

type StripeProvider struct {
	successURL string
	cancelURL  string
}

func NewStripeProvider(cfg config.StripeConfig) *StripeProvider {
	stripe.Key = cfg.APIKey
	return &StripeProvider{successURL: cfg.SuccessURL, cancelURL: cfg.CancelURL}
}

func (p *StripeProvider) Name() string { return config.ProviderStripe }

func (p *StripeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	price := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		UnitAmount:  stripe.Int64(req.AmountCents),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(req.Description)},
	}
	meta := map[string]string{
		"payment_id": req.PaymentID.String(),
		"kind":       string(req.Kind),
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.successURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(p.cancelURL),
		ClientReferenceID: stripe.String(req.PaymentID.String()),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{{PriceData: price, Quantity: stripe.Int64(1)}},
		Metadata:          meta,
	}
	if req.Kind == models.KindSubscription {
		interval := "month"
		if req.Plan == models.PlanAnnual {
			interval = "year"
		}
		price.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{Interval: stripe.String(interval)}
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: meta}
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx

	cs, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	return &CheckoutSession{ID: cs.ID, URL: cs.URL}, nil
}
