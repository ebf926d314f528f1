package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rigshare/internal/app/commands"
	"rigshare/internal/app/dto"
	listingsapp "rigshare/internal/app/handlers/listings"
	"rigshare/internal/app/queries"
)

// ListingHandler serves the public listing view and the host's listing
// management routes.
type ListingHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type listingRequest struct {
	Title             string             `json:"title"`
	Kind              string             `json:"kind"`
	Currency          string             `json:"currency"`
	Schedule          dto.ScheduleConfig `json:"schedule"`
	SalePrice         string             `json:"price_sale"`
	FreightCost       string             `json:"freight_cost"`
	FreightSellerPaid bool               `json:"freight_seller_paid"`
}

func (r listingRequest) sale() listingsapp.SalePayload {
	return listingsapp.SalePayload{
		Price:             r.SalePrice,
		FreightCost:       r.FreightCost,
		FreightSellerPaid: r.FreightSellerPaid,
	}
}

type blackoutRequest struct {
	Date      string `json:"blocked_date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h ListingHandler) Get(c *gin.Context) {
	result, err := queries.Ask[listingsapp.GetListingQuery, dto.Listing](c.Request.Context(), h.Queries, listingsapp.GetListingQuery{
		ListingID: c.Param("id"),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ListingHandler) HostList(c *gin.Context) {
	result, err := queries.Ask[listingsapp.ListHostListingsQuery, dto.ListingCollection](c.Request.Context(), h.Queries, listingsapp.ListHostListingsQuery{
		Actor:      currentActor(c),
		ActiveOnly: c.Query("active") == "true",
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ListingHandler) Create(c *gin.Context) {
	var req listingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	result, err := commands.Dispatch[listingsapp.CreateListingCommand, *dto.Listing](c.Request.Context(), h.Commands, listingsapp.CreateListingCommand{
		Actor:    currentActor(c),
		Title:    req.Title,
		Kind:     req.Kind,
		Currency: req.Currency,
		Schedule: req.Schedule,
		Sale:     req.sale(),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h ListingHandler) UpdateSchedule(c *gin.Context) {
	var schedule dto.ScheduleConfig
	if err := c.ShouldBindJSON(&schedule); err != nil {
		badRequest(c, "invalid request")
		return
	}
	result, err := commands.Dispatch[listingsapp.UpdateScheduleCommand, *dto.Listing](c.Request.Context(), h.Commands, listingsapp.UpdateScheduleCommand{
		Actor:     currentActor(c),
		ListingID: c.Param("id"),
		Schedule:  schedule,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ListingHandler) UpdateSale(c *gin.Context) {
	var req listingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	result, err := commands.Dispatch[listingsapp.UpdateSaleTermsCommand, *dto.Listing](c.Request.Context(), h.Commands, listingsapp.UpdateSaleTermsCommand{
		Actor:     currentActor(c),
		ListingID: c.Param("id"),
		Sale:      req.sale(),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ListingHandler) Archive(c *gin.Context)  { h.changeState(c, true) }
func (h ListingHandler) Activate(c *gin.Context) { h.changeState(c, false) }

func (h ListingHandler) changeState(c *gin.Context, archive bool) {
	result, err := commands.Dispatch[listingsapp.ChangeListingStateCommand, *dto.Listing](c.Request.Context(), h.Commands, listingsapp.ChangeListingStateCommand{
		Actor:     currentActor(c),
		ListingID: c.Param("id"),
		Archive:   archive,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Block adds a blackout. A request with start_time and end_time blocks a
// slot, otherwise the whole day.
func (h ListingHandler) Block(c *gin.Context) {
	var req blackoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	var (
		result *dto.BlackoutResult
		err    error
	)
	if req.StartTime != "" || req.EndTime != "" {
		result, err = commands.Dispatch[listingsapp.BlockSlotCommand, *dto.BlackoutResult](c.Request.Context(), h.Commands, listingsapp.BlockSlotCommand{
			Actor:     currentActor(c),
			ListingID: c.Param("id"),
			Date:      req.Date,
			Start:     req.StartTime,
			End:       req.EndTime,
		})
	} else {
		result, err = h.blockDate(c, req.Date, false)
	}
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h ListingHandler) Unblock(c *gin.Context) {
	result, err := h.blockDate(c, c.Param("date"), true)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ListingHandler) blockDate(c *gin.Context, date string, remove bool) (*dto.BlackoutResult, error) {
	return commands.Dispatch[listingsapp.BlockDateCommand, *dto.BlackoutResult](c.Request.Context(), h.Commands, listingsapp.BlockDateCommand{
		Actor:     currentActor(c),
		ListingID: c.Param("id"),
		Date:      date,
		Remove:    remove,
	})
}
