package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// FakeGateway is an in-memory Gateway for tests and local development.
type FakeGateway struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
	// RefundErr, when set, fails every refund attempt.
	RefundErr error

	refundCalls int
}

type fakeSession struct {
	info     Info
	refunded bool
}

// NewFakeGateway creates an empty fake gateway.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{sessions: make(map[string]*fakeSession)}
}

// CreateCheckout implements Gateway.
func (g *FakeGateway) CreateCheckout(ctx context.Context, params CheckoutParams) (*Checkout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := "cs_test_" + uuid.NewString()
	g.sessions[id] = &fakeSession{info: Info{
		Status:        StatusUnpaid,
		CustomerEmail: params.CustomerEmail,
		AmountCents:   params.AmountCents,
		Metadata:      params.Metadata,
	}}
	return &Checkout{ID: id, RedirectURL: "https://pay.example.com/" + id}, nil
}

// Info implements Gateway.
func (g *FakeGateway) Info(ctx context.Context, sessionID string) (*Info, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("unknown checkout session %s", sessionID)
	}
	info := sess.info
	return &info, nil
}

// Refund implements Gateway.
func (g *FakeGateway) Refund(ctx context.Context, sessionID string) (*RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.refundCalls++
	if g.RefundErr != nil {
		return nil, g.RefundErr
	}

	sess, ok := g.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("unknown checkout session %s", sessionID)
	}
	sess.refunded = true
	return &RefundResult{Succeeded: true, AmountCents: sess.info.AmountCents}, nil
}

// MarkPaid flips a session to paid, as the real provider would after
// the customer completes checkout.
func (g *FakeGateway) MarkPaid(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if sess, ok := g.sessions[sessionID]; ok {
		sess.info.Status = StatusPaid
	}
}

// Refunded reports whether the session was refunded.
func (g *FakeGateway) Refunded(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	sess, ok := g.sessions[sessionID]
	return ok && sess.refunded
}

// RefundCalls reports how many refund attempts were made in total.
func (g *FakeGateway) RefundCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.refundCalls
}
