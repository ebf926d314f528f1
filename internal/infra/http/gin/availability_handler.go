package ginserver

import (
	"log/slog"
	"net/http"
	"strconv"

	gin "github.com/gin-gonic/gin"

	"rigshare/internal/app/dto"
	availabilityapp "rigshare/internal/app/handlers/availability"
	pricingapp "rigshare/internal/app/handlers/pricing"
	"rigshare/internal/app/queries"
)

type AvailabilityHandler struct {
	Queries queries.Bus
	Logger  *slog.Logger
}

func (h AvailabilityHandler) Day(c *gin.Context) {
	result, err := queries.Ask[availabilityapp.GetDayQuery, dto.DayAvailability](c.Request.Context(), h.Queries, availabilityapp.GetDayQuery{
		ListingID: c.Param("id"),
		Date:      c.Query("date"),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h AvailabilityHandler) Calendar(c *gin.Context) {
	result, err := queries.Ask[availabilityapp.GetCalendarQuery, dto.Calendar](c.Request.Context(), h.Queries, availabilityapp.GetCalendarQuery{
		ListingID: c.Param("id"),
		From:      c.Query("from"),
		To:        c.Query("to"),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h AvailabilityHandler) Quote(c *gin.Context) {
	hourly, _ := strconv.ParseBool(c.DefaultQuery("is_hourly_booking", "false"))
	result, err := queries.Ask[pricingapp.QuoteQuery, dto.RentalQuote](c.Request.Context(), h.Queries, pricingapp.QuoteQuery{
		ListingID:   c.Param("id"),
		StartDate:   c.Query("start_date"),
		EndDate:     c.Query("end_date"),
		StartTime:   c.Query("start_time"),
		EndTime:     c.Query("end_time"),
		Hourly:      hourly,
		DeliveryFee: c.Query("delivery_fee"),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
