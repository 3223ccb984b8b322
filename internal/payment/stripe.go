package payment

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeGateway implements Gateway on Stripe Checkout. The Stripe
// checkout-session id doubles as our session identifier.
type StripeGateway struct {
	api *client.API
}

// NewStripeGateway creates a gateway using the given secret key.
func NewStripeGateway(apiKey string) *StripeGateway {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeGateway{api: api}
}

// CreateCheckout implements Gateway.
func (g *StripeGateway) CreateCheckout(ctx context.Context, params CheckoutParams) (*Checkout, error) {
	p := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(params.SuccessURL),
		CancelURL:  stripe.String(params.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(params.Currency),
					UnitAmount: stripe.Int64(params.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(params.ProductName),
					},
				},
			},
		},
	}
	p.Context = ctx
	if params.CustomerEmail != "" {
		p.CustomerEmail = stripe.String(params.CustomerEmail)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}

	sess, err := g.api.CheckoutSessions.New(p)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &Checkout{ID: sess.ID, RedirectURL: sess.URL}, nil
}

// Info implements Gateway.
func (g *StripeGateway) Info(ctx context.Context, sessionID string) (*Info, error) {
	p := &stripe.CheckoutSessionParams{}
	p.Context = ctx

	sess, err := g.api.CheckoutSessions.Get(sessionID, p)
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}

	info := &Info{
		Status:      StatusUnpaid,
		AmountCents: sess.AmountTotal,
		Metadata:    sess.Metadata,
	}
	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		info.Status = StatusPaid
	}
	if sess.CustomerDetails != nil {
		info.CustomerEmail = sess.CustomerDetails.Email
	}
	return info, nil
}

// Refund implements Gateway. The refund targets the session's payment
// intent and always refunds the full amount.
func (g *StripeGateway) Refund(ctx context.Context, sessionID string) (*RefundResult, error) {
	p := &stripe.CheckoutSessionParams{}
	p.Context = ctx
	p.AddExpand("payment_intent")

	sess, err := g.api.CheckoutSessions.Get(sessionID, p)
	if err != nil {
		return nil, fmt.Errorf("get checkout session for refund: %w", err)
	}
	if sess.PaymentIntent == nil {
		return nil, fmt.Errorf("checkout session %s has no payment intent", sessionID)
	}

	rp := &stripe.RefundParams{PaymentIntent: stripe.String(sess.PaymentIntent.ID)}
	rp.Context = ctx

	refund, err := g.api.Refunds.New(rp)
	if err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("refundId", refund.ID).
		Int64("amount", refund.Amount).
		Msg("Refund issued")

	return &RefundResult{
		Succeeded:   refund.Status == stripe.RefundStatusSucceeded || refund.Status == stripe.RefundStatusPending,
		AmountCents: refund.Amount,
	}, nil
}
