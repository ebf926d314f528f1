package checkout

import (
	"context"
	"fmt"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/commands"
	"rigshare/internal/app/dto"
	bookingapp "rigshare/internal/app/handlers/booking"
	settlementapp "rigshare/internal/app/handlers/settlement"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/policies"
	domaincheckout "rigshare/internal/domain/checkout"
)

const confirmPaymentKey = "checkout.confirm"

// ConfirmPaymentCommand is the single entry for a finished checkout. The
// session mode picks the rental or the sale path. Both the client redirect
// and the processor webhook dispatch it.
type ConfirmPaymentCommand struct {
	SessionID string `validate:"required"`
}

func (c ConfirmPaymentCommand) Key() string      { return confirmPaymentKey }
func (c ConfirmPaymentCommand) Autocommit() bool { return true }

type ConfirmPaymentHandler struct {
	Processor policies.PaymentProcessor
	Bus       commands.Bus
}

func (h *ConfirmPaymentHandler) Handle(ctx context.Context, cmd ConfirmPaymentCommand) (*dto.PaymentConfirmation, error) {
	const op = "checkout.confirm"
	conf, err := handlersupport.RetrieveSession(ctx, h.Processor, op, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	mode, err := domaincheckout.ModeOf(conf.Metadata)
	if err != nil {
		return nil, apperr.Validation(op, err)
	}
	switch mode {
	case domaincheckout.ModeRent:
		return commands.Dispatch[bookingapp.ConfirmRentalPaymentCommand, *dto.PaymentConfirmation](ctx, h.Bus,
			bookingapp.ConfirmRentalPaymentCommand{SessionID: conf.SessionID, Confirmation: &conf})
	case domaincheckout.ModeSale:
		res, err := commands.Dispatch[settlementapp.RecordSettlementCommand, *dto.RecordSettlementResult](ctx, h.Bus,
			settlementapp.RecordSettlementCommand{SessionID: conf.SessionID, Confirmation: &conf})
		if err != nil {
			return nil, err
		}
		return &dto.PaymentConfirmation{
			Success:       res.Success,
			Mode:          string(domaincheckout.ModeSale),
			TransactionID: res.TransactionID,
			Message:       res.Message,
		}, nil
	}
	return nil, apperr.Validation(op, fmt.Errorf("%w: mode %q", domaincheckout.ErrMetadataInvalid, mode))
}

var _ commands.Handler[ConfirmPaymentCommand, *dto.PaymentConfirmation] = (*ConfirmPaymentHandler)(nil)
