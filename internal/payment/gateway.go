// Package payment wraps the payment provider behind the narrow
// contract the job orchestrator needs: create a checkout, read its
// payment status, issue a refund. "Paid" is the sole gate for starting
// an analysis.
package payment

import "context"

// Status of a checkout session's payment.
type Status string

const (
	StatusPaid   Status = "paid"
	StatusUnpaid Status = "unpaid"
)

// CheckoutParams describes one checkout to create.
type CheckoutParams struct {
	AmountCents   int64
	Currency      string
	ProductName   string
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	Metadata      map[string]string
}

// Checkout is a created checkout session.
type Checkout struct {
	// ID is the opaque session identifier; it keys all job state.
	ID string
	// RedirectURL is where the client completes payment.
	RedirectURL string
}

// Info is the current payment state of a checkout session.
type Info struct {
	Status        Status
	CustomerEmail string
	AmountCents   int64
	Metadata      map[string]string
}

// RefundResult reports one refund attempt.
type RefundResult struct {
	Succeeded   bool
	AmountCents int64
}

// Gateway is the payment collaborator contract.
type Gateway interface {
	CreateCheckout(ctx context.Context, params CheckoutParams) (*Checkout, error)
	Info(ctx context.Context, sessionID string) (*Info, error)
	Refund(ctx context.Context, sessionID string) (*RefundResult, error)
}
