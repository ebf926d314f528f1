package ginserver

import (
	"io"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rigshare/internal/app/commands"
	"rigshare/internal/app/dto"
	checkoutapp "rigshare/internal/app/handlers/checkout"
	payoutsapp "rigshare/internal/app/handlers/payouts"
	"rigshare/internal/app/policies"
)

const (
	webhookSignatureHeader = "Stripe-Signature"
	maxWebhookBody         = 64 << 10
)

// WebhookHandler accepts processor callbacks. Only 5xx responses make the
// processor redeliver, so business rejections are acknowledged and logged.
type WebhookHandler struct {
	Commands commands.Bus
	Verifier policies.WebhookVerifier
	Logger   *slog.Logger
}

func (h WebhookHandler) Payments(c *gin.Context) {
	if h.Verifier == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "webhooks not configured"})
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "unreadable body")
		return
	}
	event, err := h.Verifier.Verify(payload, c.GetHeader(webhookSignatureHeader))
	if err != nil {
		h.logger().Warn("webhook rejected", "error", err)
		badRequest(c, "invalid signature")
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case policies.WebhookCheckoutCompleted:
		_, err = commands.Dispatch[checkoutapp.ConfirmPaymentCommand, *dto.PaymentConfirmation](ctx, h.Commands, checkoutapp.ConfirmPaymentCommand{
			SessionID: event.SessionID,
		})
	case policies.WebhookAccountUpdated:
		_, err = commands.Dispatch[payoutsapp.SyncAccountCommand, *dto.PayoutOnboarding](ctx, h.Commands, payoutsapp.SyncAccountCommand{
			AccountID:      event.AccountID,
			PayoutsEnabled: event.PayoutsEnabled,
		})
	default:
		c.JSON(http.StatusOK, gin.H{"received": true, "handled": false})
		return
	}
	if err != nil {
		if statusFor(c, err) >= http.StatusInternalServerError {
			respondError(c, h.Logger, err)
			return
		}
		h.logger().Warn("webhook not applied", "event_id", event.ID, "type", event.Type, "error", err)
		c.JSON(http.StatusOK, gin.H{"received": true, "handled": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "handled": true})
}

func (h WebhookHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.New(slog.DiscardHandler)
}
