package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/tidwall/gjson"
	"gorm.io/gorm"

	"github.com/aldoetobex/section1983-backend/pkg/models"
)

var ErrBadSignature = errors.New("invalid stripe signature")

// ParseEvent verifies the Stripe-Signature header against the webhook secret.
func (s *Service) ParseEvent(payload []byte, sigHeader string) (*stripe.Event, error) {
	if s.stripe.WebhookSecret == "" || sigHeader == "" {
		return nil, ErrBadSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.stripe.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return &ev, nil
}

// HandleWebhook verifies and processes one event. A replayed event id is
// acknowledged without being processed again; the id is forgotten when
// processing fails so Stripe's retry gets another go.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	ev, err := s.ParseEvent(payload, sigHeader)
	if err != nil {
		s.metrics.IncWebhook("unknown", "bad_signature")
		return err
	}
	ctx = s.log.WithFields(ctx, map[string]any{"stripe_event_id": ev.ID, "stripe_event_type": string(ev.Type)})

	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, ev.ID)
		if err != nil {
			s.log.Warn(ctx, "webhook idempotency check unavailable: "+err.Error())
		} else if seen {
			s.metrics.IncWebhook(string(ev.Type), "duplicate")
			return nil
		}
	}

	if err := s.HandleEvent(ctx, ev); err != nil {
		if s.guard != nil {
			if derr := s.guard.Delete(ctx, ev.ID); derr != nil {
				s.log.Error(ctx, "release webhook idempotency key", derr)
			}
		}
		s.metrics.IncWebhook(string(ev.Type), "error")
		s.log.Error(ctx, "stripe webhook failed", err)
		return err
	}
	s.metrics.IncWebhook(string(ev.Type), "ok")
	return nil
}

// HandleEvent applies a verified event. Unhandled types are ignored.
func (s *Service) HandleEvent(ctx context.Context, ev *stripe.Event) error {
	if ev == nil || ev.Data == nil {
		return errors.New("stripe event data required")
	}
	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return s.sessionCompleted(ctx, &cs)

	case stripe.EventTypeCheckoutSessionExpired:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		id, ok := paymentIDOf(&cs)
		if !ok {
			return nil
		}
		return s.MarkFailed(ctx, id)

	case stripe.EventTypeCustomerSubscriptionUpdated, stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		status := subscriptionStatus(sub.Status)
		if ev.Type == stripe.EventTypeCustomerSubscriptionDeleted {
			status = models.SubCanceled
		}
		return s.syncSubscription(ctx, sub.ID, status, currentPeriodEnd(&sub))

	case stripe.EventTypeInvoicePaymentFailed:
		raw := gjson.ParseBytes(ev.Data.Raw)
		subID := raw.Get("parent.subscription_details.subscription").String()
		if subID == "" {
			subID = raw.Get("subscription").String()
		}
		if subID == "" {
			return nil
		}
		return s.syncSubscription(ctx, subID, models.SubPastDue, nil)
	}
	return nil
}

func (s *Service) sessionCompleted(ctx context.Context, cs *stripe.CheckoutSession) error {
	id, ok := paymentIDOf(cs)
	if !ok {
		return fmt.Errorf("checkout session %s has no payment reference", cs.ID)
	}
	if cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		// Delayed payment methods complete later via async events.
		return nil
	}
	f := Fulfilment{SessionID: cs.ID}
	if cs.PaymentIntent != nil {
		f.PaymentIntent = cs.PaymentIntent.ID
	}
	if cs.Customer != nil {
		f.CustomerID = cs.Customer.ID
	}
	if cs.Subscription != nil {
		f.SubscriptionID = cs.Subscription.ID
		f.PeriodEnd = currentPeriodEnd(cs.Subscription)
	}
	_, err := s.Fulfil(ctx, id, f)
	return err
}

func paymentIDOf(cs *stripe.CheckoutSession) (uuid.UUID, bool) {
	ref := cs.ClientReferenceID
	if ref == "" && cs.Metadata != nil {
		ref = cs.Metadata["payment_id"]
	}
	id, err := uuid.Parse(ref)
	return id, err == nil
}

func subscriptionStatus(st stripe.SubscriptionStatus) models.SubscriptionStatus {
	switch st {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return models.SubActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncomplete:
		return models.SubPastDue
	case stripe.SubscriptionStatusIncompleteExpired:
		return models.SubExpired
	}
	return models.SubCanceled
}

// currentPeriodEnd reads the period end from the first subscription item.
func currentPeriodEnd(sub *stripe.Subscription) *time.Time {
	if sub == nil || sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].CurrentPeriodEnd == 0 {
		return nil
	}
	t := time.Unix(sub.Items.Data[0].CurrentPeriodEnd, 0).UTC()
	return &t
}

// syncSubscription copies provider status onto the stored subscription.
// A new period resets the monthly document allowance.
func (s *Service) syncSubscription(ctx context.Context, stripeSubID string, status models.SubscriptionStatus, end *time.Time) error {
	var sub models.Subscription
	err := s.db.WithContext(ctx).Where("stripe_subscription_id = ?", stripeSubID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Events for subscriptions created outside checkout are not ours.
		s.log.Warn(ctx, "subscription event for unknown subscription "+stripeSubID)
		return nil
	}
	if err != nil {
		return err
	}
	updates := map[string]any{"status": status}
	if end != nil {
		if sub.CurrentPeriodEnd == nil || end.After(*sub.CurrentPeriodEnd) {
			updates["documents_used"] = 0
		}
		updates["current_period_end"] = *end
	}
	return s.db.WithContext(ctx).Model(&sub).Updates(updates).Error
}
