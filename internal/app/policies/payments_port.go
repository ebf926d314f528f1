package policies

import (
	"context"

	"rigshare/internal/domain/checkout"
	"rigshare/internal/domain/shared/money"
)

// PaymentProcessor is the external payment service. Every mutating call
// carries an idempotency key so retries never move money twice.
type PaymentProcessor interface {
	CreateSession(ctx context.Context, req checkout.SessionRequest) (checkout.Session, error)
	// RetrieveSession is the authoritative view of a session and its payment.
	RetrieveSession(ctx context.Context, sessionID string) (checkout.Confirmation, error)
	Refund(ctx context.Context, paymentIntentID, idempotencyKey string) (RefundReceipt, error)
	Transfer(ctx context.Context, amount money.Money, destination, idempotencyKey string) (TransferReceipt, error)
	CreatePayoutAccount(ctx context.Context, email string) (string, error)
	OnboardingLink(ctx context.Context, accountID string) (string, error)
}

type RefundReceipt struct {
	ID     string
	Amount money.Money
}

type TransferReceipt struct {
	ID string
}

// WebhookEvent is a verified processor callback. AccountID and
// PayoutsEnabled are set for account updates.
type WebhookEvent struct {
	ID             string
	Type           string
	SessionID      string
	AccountID      string
	PayoutsEnabled bool
}

// WebhookVerifier checks a processor signature and decodes the event.
type WebhookVerifier interface {
	Verify(payload []byte, signature string) (WebhookEvent, error)
}

const (
	WebhookCheckoutCompleted = "checkout.session.completed"
	WebhookAccountUpdated    = "account.updated"
)
