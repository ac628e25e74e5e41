package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"carelink/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

// StripeProcessor backs qr attempts with Stripe PaymentIntents. The attempt
// reference is the PaymentIntent id; the payer completes it by scanning the
// QR code Stripe renders for the configured payment method types.
type StripeProcessor struct {
	client       paymentintent.Client
	methodTypes  []string
	pollInterval time.Duration
}

func NewStripeProcessor(key string, methodTypes []string) *StripeProcessor {
	return &StripeProcessor{
		client:       paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: key},
		methodTypes:  methodTypes,
		pollInterval: 500 * time.Millisecond,
	}
}

func (p *StripeProcessor) Name() string { return "stripe" }

func (p *StripeProcessor) Open(ctx context.Context, attempt *models.PaymentAttempt) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(attempt.Amount),
		Currency:           stripe.String(strings.ToLower(attempt.Currency)),
		PaymentMethodTypes: stripe.StringSlice(p.methodTypes),
	}
	params.Context = ctx
	params.AddMetadata("attempt_id", attempt.ID)
	params.AddMetadata("payer_id", attempt.PayerID)
	params.AddMetadata("provider_id", attempt.ProviderID)

	pi, err := p.client.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return pi.ID, nil
}

// Settle polls the PaymentIntent until it succeeds, is abandoned, or ctx ends.
func (p *StripeProcessor) Settle(ctx context.Context, attempt *models.PaymentAttempt) error {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		pi, err := p.client.Get(attempt.Reference, params)
		if err != nil {
			return fmt.Errorf("stripe: fetch payment intent: %w", err)
		}

		switch pi.Status {
		case stripe.PaymentIntentStatusSucceeded:
			return nil
		case stripe.PaymentIntentStatusCanceled:
			return fmt.Errorf("stripe: payment intent %s was canceled", pi.ID)
		case stripe.PaymentIntentStatusRequiresPaymentMethod:
			if pi.LastPaymentError != nil {
				return fmt.Errorf("stripe: payment declined: %s", pi.LastPaymentError.Msg)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
