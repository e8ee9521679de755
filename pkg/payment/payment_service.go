package payment

import (
	"context"
	"fmt"
	"math"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/refund"
)

// ServiceInterface defines the contract for a payment processing service.
type ServiceInterface interface {
	// Refund returns the money for a paid order, identified by its payment
	// intent reference. Returns the refund ID.
	Refund(ctx context.Context, paymentRef string, amount float64) (string, error)
}

// StripeService issues refunds through Stripe.
type StripeService struct{}

// NewStripeService configures the Stripe client key and returns the service.
func NewStripeService(apiKey string) *StripeService {
	stripe.Key = apiKey
	return &StripeService{}
}

// Refund refunds the given amount against a payment intent.
func (s *StripeService) Refund(ctx context.Context, paymentRef string, amount float64) (string, error) {
	if paymentRef == "" {
		return "", fmt.Errorf("payment.Refund: empty payment reference")
	}
	if amount <= 0 {
		return "", fmt.Errorf("payment.Refund: invalid amount %.2f", amount)
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentRef),
		Amount:        stripe.Int64(int64(math.Round(amount * 100))),
	}
	params.Context = ctx

	r, err := refund.New(params)
	if err != nil {
		return "", fmt.Errorf("payment.Refund: %w", err)
	}
	return r.ID, nil
}
