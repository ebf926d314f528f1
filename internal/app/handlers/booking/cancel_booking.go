package booking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/commands"
	"rigshare/internal/app/dto"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/notify"
	"rigshare/internal/app/outbox"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/uow"
	domainbooking "rigshare/internal/domain/booking"
	domainuser "rigshare/internal/domain/user"
)

const cancelBookingKey = "booking.cancel"

var errNoPaymentIntent = errors.New("booking: paid without a payment intent")

type CancelBookingCommand struct {
	Actor         policies.Actor
	BookingID     string `validate:"required"`
	Reason        string `validate:"max=500"`
	ProcessRefund *bool
}

func (c CancelBookingCommand) Key() string                   { return cancelBookingKey }
func (c CancelBookingCommand) Caller() policies.Actor        { return c.Actor }
func (c CancelBookingCommand) RequiredRole() domainuser.Role { return "" }

// Autocommit persists the cancellation before the refund call.
func (c CancelBookingCommand) Autocommit() bool { return true }

func (c CancelBookingCommand) refundRequested() bool {
	return c.ProcessRefund == nil || *c.ProcessRefund
}

type CancelBookingHandler struct {
	Processor policies.PaymentProcessor
	Outbox    outbox.Outbox
	Encoder   outbox.EventEncoder
	Notify    *notify.BestEffort
	Metrics   policies.Metrics
	Logger    *slog.Logger
	Clock     func() time.Time
}

func (h *CancelBookingHandler) Handle(ctx context.Context, cmd CancelBookingCommand) (*dto.CancelBookingResult, error) {
	const op = "booking.cancel"
	logger := handlersupport.Logger(h.Logger)
	unit, err := uow.MustFromContext(ctx)
	if err != nil {
		return nil, err
	}
	bookings := unit.Bookings()
	booking, err := bookings.ByID(ctx, domainbooking.BookingID(strings.TrimSpace(cmd.BookingID)))
	if err != nil {
		return nil, classify(op, err)
	}
	actor, err := booking.ActorFor(cmd.Actor.ID, cmd.Actor.IsAdmin())
	if err != nil {
		return nil, classify(op, err)
	}
	now := h.now()
	if err := booking.Cancel(actor, cmd.Reason, now); err != nil {
		return nil, classify(op, err)
	}
	if err := bookings.Save(ctx, booking); err != nil {
		return nil, classify(op, err)
	}
	if err := unit.Claims().Release(ctx, booking.ListingID, string(booking.ID)); err != nil {
		logger.Error("release calendar claims", "booking_id", booking.ID, "error", err)
	}

	outcome := dto.RefundOutcome{}
	if cmd.refundRequested() && booking.RefundDue() {
		outcome = h.refund(ctx, booking, now)
		if err := saveRefundOutcome(ctx, bookings, booking, now); err != nil {
			// Replays reuse RefundKey so a stale row cannot refund twice.
			logger.Error("persist refund outcome", "booking_id", booking.ID, "error", err)
		}
	} else {
		h.metrics().RefundAttempted(policies.RefundOutcomeSkipped)
	}

	if err := handlersupport.FlushEvents(ctx, h.Outbox, h.Encoder, booking); err != nil {
		logger.Error("flush cancellation events", "booking_id", booking.ID, "error", err)
	}
	h.Notify.Send(ctx, notify.Pair(
		policies.TemplateBookingCancelled,
		"Booking cancelled",
		string(booking.ID)+":cancelled",
		map[string]string{"booking_id": string(booking.ID), "reason": booking.CancellationReason, "refund_succeeded": boolString(outcome.Succeeded)},
		booking.BuyerID, booking.HostID,
	)...)

	logger.Info("booking cancelled",
		"booking_id", booking.ID,
		"actor", actor,
		"refund_attempted", outcome.Attempted,
		"refund_succeeded", outcome.Succeeded,
	)
	return &dto.CancelBookingResult{
		Success:       true,
		BookingID:     string(booking.ID),
		Status:        string(booking.Status),
		PaymentStatus: string(booking.PaymentStatus),
		Refund:        outcome,
		InitiatedBy:   string(actor),
	}, nil
}

func (h *CancelBookingHandler) refund(ctx context.Context, booking *domainbooking.Booking, now time.Time) dto.RefundOutcome {
	out := dto.RefundOutcome{Attempted: true}
	if err := refundBooking(ctx, h.Processor, booking, now); err != nil {
		h.metrics().RefundAttempted(policies.RefundOutcomeFailed)
		handlersupport.Logger(h.Logger).Warn("refund failed, queued for reconciliation",
			"booking_id", booking.ID, "error", err)
		out.Error = booking.Refund.Error
		return out
	}
	h.metrics().RefundAttempted(policies.RefundOutcomeSucceeded)
	out.Succeeded = true
	out.RefundID = booking.Refund.RefundID
	out.Amount = booking.Refund.Amount.String()
	return out
}

// refundBooking returns the payment of a cancelled booking and records the
// outcome on the aggregate. The caller persists it.
func refundBooking(ctx context.Context, processor policies.PaymentProcessor, booking *domainbooking.Booking, now time.Time) error {
	if booking.PaymentIntentID == "" {
		booking.RecordRefundFailed(errNoPaymentIntent.Error(), now)
		return errNoPaymentIntent
	}
	if processor == nil {
		err := apperr.External("booking.refund", errors.New("payment processor not configured"), false)
		booking.RecordRefundFailed(err.Error(), now)
		return err
	}
	receipt, err := processor.Refund(ctx, booking.PaymentIntentID, RefundKey(booking.ID))
	if err != nil {
		booking.RecordRefundFailed(err.Error(), now)
		return err
	}
	amount := receipt.Amount
	if amount.IsZero() {
		amount = booking.Total
	}
	booking.RecordRefundSucceeded(receipt.ID, amount, now)
	return nil
}

const refundSaveAttempts = 3

// saveRefundOutcome persists the refund recorded on booking. When another
// writer bumped the version in between, the latest row is re-read and the
// same outcome is applied to it, so a refund that went out is never lost
// and a failed one stays visible to reconciliation.
func saveRefundOutcome(ctx context.Context, bookings domainbooking.Repository, booking *domainbooking.Booking, now time.Time) error {
	err := bookings.Save(ctx, booking)
	for attempt := 1; attempt < refundSaveAttempts && errors.Is(err, domainbooking.ErrConcurrentUpdate); attempt++ {
		var latest *domainbooking.Booking
		if latest, err = bookings.ByID(ctx, booking.ID); err != nil {
			return err
		}
		if latest.Refund.State == domainbooking.RefundSucceeded {
			return nil
		}
		if booking.Refund.State == domainbooking.RefundSucceeded {
			latest.RecordRefundSucceeded(booking.Refund.RefundID, booking.Refund.Amount, now)
		} else {
			latest.RecordRefundFailed(booking.Refund.Error, now)
		}
		latest.ClearEvents()
		err = bookings.Save(ctx, latest)
	}
	return err
}

func (h *CancelBookingHandler) metrics() policies.Metrics {
	if h.Metrics == nil {
		return policies.NopMetrics{}
	}
	return h.Metrics
}

func (h *CancelBookingHandler) now() time.Time {
	if h.Clock != nil {
		return h.Clock().UTC()
	}
	return time.Now().UTC()
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

var _ commands.Handler[CancelBookingCommand, *dto.CancelBookingResult] = (*CancelBookingHandler)(nil)
