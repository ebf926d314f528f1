package booking

import (
	"context"
	"errors"
	"log/slog"
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
	"rigshare/internal/domain/checkout"
)

const confirmRentalPaymentKey = "booking.confirm_payment"

// ConfirmRentalPaymentCommand records a completed rent-mode checkout. When
// Confirmation is nil the session is fetched from the processor.
type ConfirmRentalPaymentCommand struct {
	SessionID    string `validate:"required"`
	Confirmation *checkout.Confirmation
}

func (c ConfirmRentalPaymentCommand) Key() string      { return confirmRentalPaymentKey }
func (c ConfirmRentalPaymentCommand) Autocommit() bool { return true }

type ConfirmRentalPaymentHandler struct {
	Processor policies.PaymentProcessor
	Outbox    outbox.Outbox
	Encoder   outbox.EventEncoder
	Notify    *notify.BestEffort
	Logger    *slog.Logger
	Clock     func() time.Time
}

func (h *ConfirmRentalPaymentHandler) Handle(ctx context.Context, cmd ConfirmRentalPaymentCommand) (*dto.PaymentConfirmation, error) {
	const op = "booking.confirm_payment"
	conf, err := handlersupport.Confirmation(ctx, h.Processor, op, cmd.SessionID, cmd.Confirmation)
	if err != nil {
		return nil, err
	}
	if !conf.Paid {
		return nil, apperr.Conflict(op, handlersupport.ErrPaymentIncomplete)
	}
	md, err := checkout.DecodeRental(conf.Metadata)
	if err != nil {
		return nil, apperr.Validation(op, err)
	}

	unit, err := uow.MustFromContext(ctx)
	if err != nil {
		return nil, err
	}
	bookings := unit.Bookings()
	id := domainbooking.BookingID(md.BookingID)
	booking, err := bookings.ByID(ctx, id)
	if err != nil {
		return nil, classify(op, err)
	}

	if booking.MarkPaid(conf.PaymentIntentID, h.now()) {
		if err := bookings.Save(ctx, booking); err != nil {
			if !errors.Is(err, domainbooking.ErrConcurrentUpdate) {
				return nil, classify(op, err)
			}
			// A concurrent confirmation won; report its result.
			if booking, err = bookings.ByID(ctx, id); err != nil {
				return nil, classify(op, err)
			}
		} else {
			if err := handlersupport.FlushEvents(ctx, h.Outbox, h.Encoder, booking); err != nil {
				handlersupport.Logger(h.Logger).Error("flush payment events", "booking_id", booking.ID, "error", err)
			}
			h.Notify.Send(ctx, policies.Notification{
				Template:    policies.TemplatePaymentReceived,
				RecipientID: booking.HostID,
				Subject:     "Payment received for a booking",
				Data:        map[string]string{"booking_id": string(booking.ID), "amount": booking.Total.String()},
				DedupeKey:   string(booking.ID) + ":paid",
			})
			handlersupport.Logger(h.Logger).Info("rental payment confirmed",
				"booking_id", booking.ID, "session_id", conf.SessionID, "status", booking.Status)
		}
	}

	return &dto.PaymentConfirmation{
		Success:       true,
		Mode:          string(checkout.ModeRent),
		TransactionID: conf.PaymentIntentID,
		BookingID:     string(booking.ID),
		Message:       "payment confirmed",
	}, nil
}

func (h *ConfirmRentalPaymentHandler) now() time.Time {
	if h.Clock != nil {
		return h.Clock().UTC()
	}
	return time.Now().UTC()
}

var _ commands.Handler[ConfirmRentalPaymentCommand, *dto.PaymentConfirmation] = (*ConfirmRentalPaymentHandler)(nil)
