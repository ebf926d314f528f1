package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"rigshare/internal/app/policies"
	"rigshare/internal/domain/checkout"
	"rigshare/internal/domain/shared/money"
)

var ErrSessionNotFound = errors.New("memory: checkout session not found")

// PaymentProcessor simulates the hosted checkout provider. Mutating calls
// are deduplicated by idempotency key the way the real provider does.
type PaymentProcessor struct {
	mu        sync.Mutex
	seq       int
	sessions  map[string]*fakeSession
	byKey     map[string]string
	refunds   map[string]policies.RefundReceipt
	transfers map[string]policies.TransferReceipt
	accounts  map[string]string

	// RefundErr and TransferErr, when set, fail every call of that kind.
	RefundErr   error
	TransferErr error
	BaseURL     string
}

type fakeSession struct {
	req    checkout.SessionRequest
	paid   bool
	intent string
}

func NewPaymentProcessor() *PaymentProcessor {
	return &PaymentProcessor{
		sessions:  make(map[string]*fakeSession),
		byKey:     make(map[string]string),
		refunds:   make(map[string]policies.RefundReceipt),
		transfers: make(map[string]policies.TransferReceipt),
		accounts:  make(map[string]string),
		BaseURL:   "https://checkout.local/pay/",
	}
}

func (p *PaymentProcessor) CreateSession(ctx context.Context, req checkout.SessionRequest) (checkout.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.byKey[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return checkout.Session{ID: id, URL: p.BaseURL + id}, nil
	}
	id := p.next("cs")
	p.sessions[id] = &fakeSession{req: req}
	if req.IdempotencyKey != "" {
		p.byKey[req.IdempotencyKey] = id
	}
	return checkout.Session{ID: id, URL: p.BaseURL + id}, nil
}

// Complete marks a session paid, as if the buyer finished the hosted page.
func (p *PaymentProcessor) Complete(sessionID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}
	if !s.paid {
		s.paid = true
		s.intent = p.next("pi")
	}
	return s.intent, nil
}

// LastRequest returns the request that created a session.
func (p *PaymentProcessor) LastRequest(sessionID string) (checkout.SessionRequest, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[sessionID]
	if !ok {
		return checkout.SessionRequest{}, false
	}
	return s.req, true
}

func (p *PaymentProcessor) RetrieveSession(ctx context.Context, sessionID string) (checkout.Confirmation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[sessionID]
	if !ok {
		return checkout.Confirmation{}, ErrSessionNotFound
	}
	md := make(map[string]string, len(s.req.Metadata))
	for k, v := range s.req.Metadata {
		md[k] = v
	}
	return checkout.Confirmation{
		SessionID:       sessionID,
		Paid:            s.paid,
		PaymentIntentID: s.intent,
		Metadata:        md,
		AmountTotal:     s.req.Amount,
	}, nil
}

func (p *PaymentProcessor) Refund(ctx context.Context, paymentIntentID, idempotencyKey string) (policies.RefundReceipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RefundErr != nil {
		return policies.RefundReceipt{}, p.RefundErr
	}
	if r, ok := p.refunds[idempotencyKey]; ok {
		return r, nil
	}
	var amount money.Money
	for _, s := range p.sessions {
		if s.intent == paymentIntentID {
			amount = s.req.Amount
		}
	}
	r := policies.RefundReceipt{ID: p.next("re"), Amount: amount}
	p.refunds[idempotencyKey] = r
	return r, nil
}

func (p *PaymentProcessor) Transfer(ctx context.Context, amount money.Money, destination, idempotencyKey string) (policies.TransferReceipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.TransferErr != nil {
		return policies.TransferReceipt{}, p.TransferErr
	}
	if t, ok := p.transfers[idempotencyKey]; ok {
		return t, nil
	}
	t := policies.TransferReceipt{ID: p.next("tr")}
	p.transfers[idempotencyKey] = t
	return t, nil
}

// Refunds and Transfers count distinct money movements.
func (p *PaymentProcessor) Refunds() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.refunds)
}

func (p *PaymentProcessor) Transfers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transfers)
}

func (p *PaymentProcessor) CreatePayoutAccount(ctx context.Context, email string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next("acct")
	p.accounts[id] = email
	return id, nil
}

func (p *PaymentProcessor) OnboardingLink(ctx context.Context, accountID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[accountID]; !ok {
		return "", fmt.Errorf("memory: unknown account %s", accountID)
	}
	return "https://connect.local/onboard/" + accountID, nil
}

func (p *PaymentProcessor) next(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s_%04d", prefix, p.seq)
}

var _ policies.PaymentProcessor = (*PaymentProcessor)(nil)
