package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rigshare/internal/app/commands"
	"rigshare/internal/app/dto"
	settlementapp "rigshare/internal/app/handlers/settlement"
	"rigshare/internal/app/queries"
)

type SettlementHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type disputeRequest struct {
	Reason string `json:"reason"`
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
	AdminNotes string `json:"admin_notes"`
}

func (h SettlementHandler) Get(c *gin.Context) {
	result, err := queries.Ask[settlementapp.GetSettlementQuery, dto.Settlement](c.Request.Context(), h.Queries, settlementapp.GetSettlementQuery{
		Actor:        currentActor(c),
		SettlementID: c.Param("id"),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h SettlementHandler) Dispute(c *gin.Context) {
	var req disputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	result, err := commands.Dispatch[settlementapp.OpenDisputeCommand, *dto.SettlementActionResult](c.Request.Context(), h.Commands, settlementapp.OpenDisputeCommand{
		Actor:        currentActor(c),
		SettlementID: c.Param("id"),
		Reason:       req.Reason,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h SettlementHandler) ConfirmReceipt(c *gin.Context) {
	result, err := commands.Dispatch[settlementapp.ConfirmReceiptCommand, *dto.SettlementActionResult](c.Request.Context(), h.Commands, settlementapp.ConfirmReceiptCommand{
		Actor:        currentActor(c),
		SettlementID: c.Param("id"),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Resolve settles a disputed sale. The admin role is enforced on the bus.
func (h SettlementHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	result, err := commands.Dispatch[settlementapp.ResolveDisputeCommand, *dto.SettlementActionResult](c.Request.Context(), h.Commands, settlementapp.ResolveDisputeCommand{
		Actor:        currentActor(c),
		SettlementID: c.Param("id"),
		Resolution:   req.Resolution,
		AdminNotes:   req.AdminNotes,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
