package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rigshare/internal/app/commands"
	"rigshare/internal/app/dto"
	payoutsapp "rigshare/internal/app/handlers/payouts"
)

type PayoutHandler struct {
	Commands commands.Bus
	Logger   *slog.Logger
}

// StartOnboarding creates the caller's payout account on first use and
// returns a fresh onboarding link.
func (h PayoutHandler) StartOnboarding(c *gin.Context) {
	result, err := commands.Dispatch[payoutsapp.StartOnboardingCommand, *dto.PayoutOnboarding](c.Request.Context(), h.Commands, payoutsapp.StartOnboardingCommand{
		Actor: currentActor(c),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
