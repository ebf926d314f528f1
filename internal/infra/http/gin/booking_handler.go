package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rigshare/internal/app/commands"
	"rigshare/internal/app/dto"
	bookingapp "rigshare/internal/app/handlers/booking"
	"rigshare/internal/app/queries"
)

type BookingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type createBookingRequest struct {
	ListingID   string `json:"listing_id"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	Hourly      bool   `json:"is_hourly_booking"`
	DeliveryFee string `json:"delivery_fee"`
}

type cancelBookingRequest struct {
	Reason        string `json:"reason"`
	ProcessRefund *bool  `json:"process_refund"`
}

func (h BookingHandler) Create(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	result, err := commands.Dispatch[bookingapp.RequestBookingCommand, *dto.Booking](c.Request.Context(), h.Commands, bookingapp.RequestBookingCommand{
		Actor:           currentActor(c),
		ListingID:       req.ListingID,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Hourly:          req.Hourly,
		DeliveryFee:     req.DeliveryFee,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// List returns the caller's bookings as renter, or as host with ?as=host.
func (h BookingHandler) List(c *gin.Context) {
	result, err := queries.Ask[bookingapp.ListBookingsQuery, dto.BookingCollection](c.Request.Context(), h.Queries, bookingapp.ListBookingsQuery{
		Actor:  currentActor(c),
		AsHost: c.Query("as") == "host",
		Status: c.Query("status"),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) Approve(c *gin.Context) {
	result, err := commands.Dispatch[bookingapp.ApproveBookingCommand, *dto.BookingActionResult](c.Request.Context(), h.Commands, bookingapp.ApproveBookingCommand{
		Actor:     currentActor(c),
		BookingID: c.Param("id"),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) Complete(c *gin.Context) {
	result, err := commands.Dispatch[bookingapp.CompleteBookingCommand, *dto.BookingActionResult](c.Request.Context(), h.Commands, bookingapp.CompleteBookingCommand{
		Actor:     currentActor(c),
		BookingID: c.Param("id"),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h BookingHandler) Cancel(c *gin.Context) {
	var req cancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request")
			return
		}
	}
	result, err := commands.Dispatch[bookingapp.CancelBookingCommand, *dto.CancelBookingResult](c.Request.Context(), h.Commands, bookingapp.CancelBookingCommand{
		Actor:         currentActor(c),
		BookingID:     c.Param("id"),
		Reason:        req.Reason,
		ProcessRefund: req.ProcessRefund,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
