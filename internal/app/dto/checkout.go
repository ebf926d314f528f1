package dto

import "rigshare/internal/domain/checkout"

type CheckoutSession struct {
	RedirectURL   string `json:"redirect_url"`
	SessionID     string `json:"session_id"`
	CustomerTotal string `json:"customer_total"`
	PlatformFee   string `json:"platform_fee"`
	HostReceives  string `json:"host_receives"`
	Currency      string `json:"currency"`
}

func MapCheckoutSession(s checkout.Session, sum checkout.Summary) CheckoutSession {
	return CheckoutSession{
		RedirectURL:   s.URL,
		SessionID:     s.ID,
		CustomerTotal: sum.CustomerTotal.String(),
		PlatformFee:   sum.PlatformFee.String(),
		HostReceives:  sum.PayeeReceives.String(),
		Currency:      sum.CustomerTotal.Currency,
	}
}

// PaymentConfirmation is returned by the confirmation endpoint for either
// transaction mode.
type PaymentConfirmation struct {
	Success       bool   `json:"success"`
	Mode          string `json:"mode"`
	TransactionID string `json:"transaction_id,omitempty"`
	BookingID     string `json:"booking_id,omitempty"`
	Message       string `json:"message"`
}
