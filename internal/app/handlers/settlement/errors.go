package settlement

import (
	"errors"

	"rigshare/internal/app/apperr"
	domaincheckout "rigshare/internal/domain/checkout"
	domainsettlement "rigshare/internal/domain/settlement"
	domainuser "rigshare/internal/domain/user"
)

func classify(op string, err error) error {
	if err == nil || apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	switch {
	case errors.Is(err, domainsettlement.ErrNotFound):
		return apperr.NotFound(op, err)
	case errors.Is(err, domainsettlement.ErrNotParticipant),
		errors.Is(err, domainsettlement.ErrOnlyBuyerConfirms):
		return apperr.Authorization(op, err)
	case errors.Is(err, domainsettlement.ErrNotDisputed),
		errors.Is(err, domainsettlement.ErrNotPaid),
		errors.Is(err, domainsettlement.ErrNoPaymentIntent),
		errors.Is(err, domainsettlement.ErrResolutionPending),
		errors.Is(err, domainsettlement.ErrConcurrentUpdate):
		return apperr.Conflict(op, err)
	case errors.Is(err, domainsettlement.ErrReasonRequired),
		errors.Is(err, domainsettlement.ErrInvalidResolution),
		errors.Is(err, domaincheckout.ErrMetadataInvalid),
		errors.Is(err, domaincheckout.ErrNotEscrow),
		errors.Is(err, domaincheckout.ErrUnknownMode):
		return apperr.Validation(op, err)
	case errors.Is(err, domainuser.ErrPayoutsNotReady):
		return apperr.NotOnboarded(op, err)
	}
	return err
}
