package stripepay

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"rigshare/internal/app/policies"
)

var ErrWebhookSecretMissing = errors.New("stripepay: webhook secret not configured")

// WebhookVerifier checks the Stripe-Signature header and projects the events
// the engine reacts to. Other event types decode with only ID and Type set.
type WebhookVerifier struct {
	Secret string
}

func (v WebhookVerifier) Verify(payload []byte, signature string) (policies.WebhookEvent, error) {
	if v.Secret == "" {
		return policies.WebhookEvent{}, ErrWebhookSecretMissing
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.Secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return policies.WebhookEvent{}, fmt.Errorf("stripepay: verify webhook: %w", err)
	}
	out := policies.WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case policies.WebhookCheckoutCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return policies.WebhookEvent{}, fmt.Errorf("stripepay: decode session: %w", err)
		}
		out.SessionID = s.ID
	case policies.WebhookAccountUpdated:
		var a stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &a); err != nil {
			return policies.WebhookEvent{}, fmt.Errorf("stripepay: decode account: %w", err)
		}
		out.AccountID = a.ID
		out.PayoutsEnabled = a.PayoutsEnabled
	}
	return out, nil
}

var _ policies.WebhookVerifier = WebhookVerifier{}
