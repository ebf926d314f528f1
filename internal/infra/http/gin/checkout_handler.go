package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rigshare/internal/app/commands"
	"rigshare/internal/app/dto"
	checkoutapp "rigshare/internal/app/handlers/checkout"
)

type CheckoutHandler struct {
	Commands commands.Bus
	Logger   *slog.Logger
}

type buildCheckoutRequest struct {
	BookingID       string `json:"booking_id"`
	ListingID       string `json:"listing_id"`
	Mode            string `json:"mode"`
	Amount          string `json:"amount"`
	FulfillmentType string `json:"fulfillment_type"`
	DeliveryAddress string `json:"delivery_address"`
	BuyerName       string `json:"buyer_name"`
	BuyerEmail      string `json:"buyer_email"`
	BuyerPhone      string `json:"buyer_phone"`
}

type confirmCheckoutRequest struct {
	SessionID string `json:"session_id"`
}

func (h CheckoutHandler) Build(c *gin.Context) {
	var req buildCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	result, err := commands.Dispatch[checkoutapp.BuildCheckoutCommand, *dto.CheckoutSession](c.Request.Context(), h.Commands, checkoutapp.BuildCheckoutCommand{
		Actor:           currentActor(c),
		Mode:            req.Mode,
		ListingID:       req.ListingID,
		BookingID:       req.BookingID,
		Amount:          req.Amount,
		FulfillmentType: req.FulfillmentType,
		DeliveryAddress: req.DeliveryAddress,
		BuyerName:       req.BuyerName,
		BuyerEmail:      req.BuyerEmail,
		BuyerPhone:      req.BuyerPhone,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Confirm is called by the client after the processor redirect. The
// session is re-read from the processor, so the body only names it.
func (h CheckoutHandler) Confirm(c *gin.Context) {
	var req confirmCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	result, err := commands.Dispatch[checkoutapp.ConfirmPaymentCommand, *dto.PaymentConfirmation](c.Request.Context(), h.Commands, checkoutapp.ConfirmPaymentCommand{
		SessionID: req.SessionID,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
