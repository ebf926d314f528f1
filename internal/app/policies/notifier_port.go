package policies

import "context"

// Notification templates.
const (
	TemplateBookingRequested = "booking_requested"
	TemplateBookingApproved  = "booking_approved"
	TemplateBookingCancelled = "booking_cancelled"
	TemplatePaymentReceived  = "payment_received"
	TemplateDisputeOpened    = "dispute_opened"
	TemplateDisputeResolved  = "dispute_resolved"
	TemplateFundsReleased    = "funds_released"
	TemplateOfferUpdated     = "offer_updated"
)

// Notification is a templated message to one user. DedupeKey identifies
// the logical notification across redeliveries.
type Notification struct {
	Template    string            `json:"template"`
	RecipientID string            `json:"recipient_id"`
	Subject     string            `json:"subject"`
	Data        map[string]string `json:"data,omitempty"`
	DedupeKey   string            `json:"dedupe_key"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
