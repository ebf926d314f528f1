package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rigshare/internal/app/commands"
	"rigshare/internal/app/dto"
	offersapp "rigshare/internal/app/handlers/offers"
	"rigshare/internal/app/queries"
)

type OfferHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type makeOfferRequest struct {
	ListingID string `json:"listing_id"`
	Amount    string `json:"amount"`
	Message   string `json:"message"`
}

type respondOfferRequest struct {
	Action string `json:"action"`
	Amount string `json:"amount"`
}

func (h OfferHandler) Make(c *gin.Context) {
	var req makeOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	result, err := commands.Dispatch[offersapp.MakeOfferCommand, *dto.Offer](c.Request.Context(), h.Commands, offersapp.MakeOfferCommand{
		Actor:     currentActor(c),
		ListingID: req.ListingID,
		Amount:    req.Amount,
		Message:   req.Message,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h OfferHandler) Respond(c *gin.Context) {
	var req respondOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	result, err := commands.Dispatch[offersapp.RespondOfferCommand, *dto.Offer](c.Request.Context(), h.Commands, offersapp.RespondOfferCommand{
		Actor:   currentActor(c),
		OfferID: c.Param("id"),
		Action:  req.Action,
		Amount:  req.Amount,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h OfferHandler) List(c *gin.Context) {
	result, err := queries.Ask[offersapp.ListOffersQuery, []dto.Offer](c.Request.Context(), h.Queries, offersapp.ListOffersQuery{
		Actor: currentActor(c),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": result})
}

func (h OfferHandler) Get(c *gin.Context) {
	result, err := queries.Ask[offersapp.GetOfferQuery, dto.Offer](c.Request.Context(), h.Queries, offersapp.GetOfferQuery{
		Actor:   currentActor(c),
		OfferID: c.Param("id"),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
