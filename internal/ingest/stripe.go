package ingest

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
	"go.uber.org/zap"

	"github.com/affilinoanvesh/customer-insights/internal/services"
)

// Stripe event types that represent a completed purchase.
const (
	eventCheckoutCompleted      = "checkout.session.completed"
	eventPaymentIntentSucceeded = "payment_intent.succeeded"
)

// StripeTranslator verifies Stripe webhook deliveries and maps purchase
// events onto the common order input. Events that do not represent a
// purchase are skipped, not errored, so the webhook endpoint can accept
// whatever event selection the Stripe account sends.
type StripeTranslator struct {
	webhookSecret string
	logger        *zap.Logger
}

// NewStripeTranslator creates a new StripeTranslator.
func NewStripeTranslator(webhookSecret string, logger *zap.Logger) *StripeTranslator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StripeTranslator{
		webhookSecret: webhookSecret,
		logger:        logger.Named("stripe_ingest"),
	}
}

// VerifyAndTranslate checks the delivery signature and maps the event to
// an order input. ok is false when the event type carries no order. The
// returned event id is set for every verified delivery so callers can
// deduplicate before deciding whether the event is interesting.
func (t *StripeTranslator) VerifyAndTranslate(payload []byte, signatureHeader string) (in services.OrderInput, eventID string, ok bool, err error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, t.webhookSecret)
	if err != nil {
		return services.OrderInput{}, "", false, fmt.Errorf("invalid stripe signature: %w", err)
	}
	in, ok, err = t.translate(event)
	return in, event.ID, ok, err
}

func (t *StripeTranslator) translate(event stripe.Event) (services.OrderInput, bool, error) {
	switch event.Type {
	case eventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return services.OrderInput{}, false, fmt.Errorf("failed to parse checkout session: %w", err)
		}
		return t.orderFromCheckout(event, session), true, nil
	case eventPaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return services.OrderInput{}, false, fmt.Errorf("failed to parse payment intent: %w", err)
		}
		return t.orderFromIntent(event, intent), true, nil
	default:
		t.logger.Debug("ignoring stripe event", zap.String("type", string(event.Type)))
		return services.OrderInput{}, false, nil
	}
}

func (t *StripeTranslator) orderFromCheckout(event stripe.Event, session stripe.CheckoutSession) services.OrderInput {
	in := services.OrderInput{
		ID:          session.ID,
		DateCreated: stripeTimestamp(session.Created, event.Created),
		Total:       float64(session.AmountTotal) / 100,
		Source:      "stripe",
	}
	if session.Customer != nil && session.Customer.ID != "" {
		in.CustomerID = session.Customer.ID
		customer := &services.CustomerInput{ID: session.Customer.ID}
		if session.CustomerDetails != nil {
			customer.Email = session.CustomerDetails.Email
			customer.Name = session.CustomerDetails.Name
		}
		in.Customer = customer
	}
	return in
}

func (t *StripeTranslator) orderFromIntent(event stripe.Event, intent stripe.PaymentIntent) services.OrderInput {
	in := services.OrderInput{
		ID:          intent.ID,
		DateCreated: stripeTimestamp(intent.Created, event.Created),
		Total:       float64(intent.Amount) / 100,
		Source:      "stripe",
	}
	if intent.Customer != nil && intent.Customer.ID != "" {
		in.CustomerID = intent.Customer.ID
		in.Customer = &services.CustomerInput{ID: intent.Customer.ID}
	}
	return in
}

// stripeTimestamp prefers the object's own creation instant and falls
// back to the delivery's.
func stripeTimestamp(created, fallback int64) string {
	if created == 0 {
		created = fallback
	}
	if created == 0 {
		return ""
	}
	return time.Unix(created, 0).UTC().Format(time.RFC3339)
}
