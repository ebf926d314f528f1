package booking

import (
	"errors"

	"rigshare/internal/app/apperr"
	handlersupport "rigshare/internal/app/handlers/support"
	domainavailability "rigshare/internal/domain/availability"
	domainbooking "rigshare/internal/domain/booking"
	"rigshare/internal/domain/shared/daterange"
)

// classify maps booking and calendar errors onto the application taxonomy.
func classify(op string, err error) error {
	if err == nil || apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	switch {
	case errors.Is(err, domainbooking.ErrBookingNotFound):
		return apperr.NotFound(op, err)
	case errors.Is(err, domainbooking.ErrNotParticipant):
		return apperr.Authorization(op, err)
	case errors.Is(err, domainbooking.ErrAlreadyCancelled),
		errors.Is(err, domainbooking.ErrCannotCancelCompleted),
		errors.Is(err, domainbooking.ErrBuyerCannotCancel),
		errors.Is(err, domainbooking.ErrInvalidState),
		errors.Is(err, domainbooking.ErrConcurrentUpdate),
		errors.Is(err, domainavailability.ErrSlotTaken),
		errors.Is(err, domainavailability.ErrSlotUnavailable),
		errors.Is(err, domainavailability.ErrDateBlocked),
		errors.Is(err, handlersupport.ErrPaymentIncomplete):
		return apperr.Conflict(op, err)
	case errors.Is(err, domainbooking.ErrSelfBooking),
		errors.Is(err, domainbooking.ErrBuyerRequired),
		errors.Is(err, domainbooking.ErrTimesRequired),
		errors.Is(err, domainavailability.ErrPastDate),
		errors.Is(err, domainavailability.ErrInvalidRequest),
		errors.Is(err, domainavailability.ErrHourlyDisabled),
		errors.Is(err, domainavailability.ErrDailyDisabled),
		errors.Is(err, domainavailability.ErrDurationOutOfBounds),
		errors.Is(err, domainavailability.ErrRangeTooLong),
		errors.Is(err, daterange.ErrInvalidDay),
		errors.Is(err, daterange.ErrInvalidRange),
		errors.Is(err, daterange.ErrInvalidTime):
		return apperr.Validation(op, err)
	}
	return err
}

// RefundKey is the processor idempotency key of a booking refund. Retries
// by the reconciler reuse it.
func RefundKey(id domainbooking.BookingID) string {
	return "booking:" + string(id) + ":refund"
}
