package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/commands"
	"rigshare/internal/app/dto"
	availabilityapp "rigshare/internal/app/handlers/availability"
	pricingapp "rigshare/internal/app/handlers/pricing"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/middleware"
	"rigshare/internal/app/notify"
	"rigshare/internal/app/outbox"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/uow"
	domainavailability "rigshare/internal/domain/availability"
	domainbooking "rigshare/internal/domain/booking"
	domainlistings "rigshare/internal/domain/listings"
	domainuser "rigshare/internal/domain/user"
)

const requestBookingKey = "booking.request"

type RequestBookingCommand struct {
	Actor           policies.Actor
	ListingID       string `validate:"required"`
	StartDate       string `validate:"required"`
	EndDate         string
	StartTime       string
	EndTime         string
	Hourly          bool
	DeliveryFee     string
	IdempotencyKeyV string
}

func (c RequestBookingCommand) Key() string                   { return requestBookingKey }
func (c RequestBookingCommand) Caller() policies.Actor        { return c.Actor }
func (c RequestBookingCommand) RequiredRole() domainuser.Role { return "" }
func (c RequestBookingCommand) IdempotencyKey() string        { return c.IdempotencyKeyV }
func (c RequestBookingCommand) ResultPrototype() any          { return &dto.Booking{} }

// Autocommit applies each claim immediately, so a clash surfaces as
// ErrSlotTaken instead of aborting a surrounding transaction.
func (c RequestBookingCommand) Autocommit() bool { return true }

type RequestBookingHandler struct {
	Resolver domainavailability.Resolver
	Outbox   outbox.Outbox
	Encoder  outbox.EventEncoder
	Notify   *notify.BestEffort
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Handle re-checks availability against a fresh snapshot, then claims the
// calendar hours under the store's uniqueness constraint so two requests
// that both passed the check cannot both be saved.
func (h *RequestBookingHandler) Handle(ctx context.Context, cmd RequestBookingCommand) (*dto.Booking, error) {
	const op = "booking.request"
	req, err := domainbooking.ParseRequest(cmd.StartDate, cmd.EndDate, cmd.StartTime, cmd.EndTime, cmd.Hourly)
	if err != nil {
		return nil, classify(op, err)
	}
	unit, err := uow.MustFromContext(ctx)
	if err != nil {
		return nil, err
	}
	listing, err := availabilityapp.LoadListing(ctx, unit, cmd.ListingID)
	if err != nil {
		return nil, err
	}
	if listing.State != domainlistings.ListingActive {
		return nil, apperr.Conflict(op, domainlistings.ErrInvalidState)
	}

	snap, err := availabilityapp.LoadSnapshot(ctx, unit, listing, req.Dates)
	if err != nil {
		return nil, err
	}
	if err := h.Resolver.CheckRequest(snap, req); err != nil {
		return nil, classify(op, err)
	}

	delivery, err := pricingapp.ParseOptionalAmount(cmd.DeliveryFee, listing.Currency)
	if err != nil {
		return nil, apperr.Validation(op, err)
	}
	quote, _, err := pricingapp.PriceRequest(listing, req, delivery)
	if err != nil {
		return nil, err
	}

	booking, err := domainbooking.NewBooking(domainbooking.CreateParams{
		ID:          domainbooking.BookingID(uuid.NewString()),
		ListingID:   listing.ID,
		BuyerID:     cmd.Actor.ID,
		HostID:      string(listing.Host),
		Request:     req,
		Total:       quote.Base,
		DeliveryFee: delivery,
		CreatedAt:   h.now(),
	})
	if err != nil {
		return nil, classify(op, err)
	}

	claims := unit.Claims()
	keys := domainavailability.ClaimKeys(booking.Occupancy(), listing.Schedule.BufferHours())
	if err := claims.Claim(ctx, listing.ID, string(booking.ID), keys); err != nil {
		return nil, classify(op, err)
	}
	if err := unit.Bookings().Save(ctx, booking); err != nil {
		if relErr := claims.Release(ctx, listing.ID, string(booking.ID)); relErr != nil {
			handlersupport.Logger(h.Logger).Error("release claims after failed save", "booking_id", booking.ID, "error", relErr)
		}
		return nil, classify(op, err)
	}
	if err := handlersupport.FlushEvents(ctx, h.Outbox, h.Encoder, booking); err != nil {
		return nil, err
	}

	h.Notify.Send(ctx, policies.Notification{
		Template:    policies.TemplateBookingRequested,
		RecipientID: booking.HostID,
		Subject:     "New booking request for " + listing.Title,
		Data:        map[string]string{"booking_id": string(booking.ID), "start_date": booking.Dates.Start.String()},
		DedupeKey:   string(booking.ID) + ":requested",
	})
	handlersupport.Logger(h.Logger).Info("booking requested",
		"booking_id", booking.ID, "listing_id", listing.ID, "actor_id", cmd.Actor.ID, "hourly", booking.IsHourly)

	out := dto.MapBooking(booking)
	return &out, nil
}

func (h *RequestBookingHandler) now() time.Time {
	if h.Clock != nil {
		return h.Clock().UTC()
	}
	return time.Now().UTC()
}

var _ commands.Handler[RequestBookingCommand, *dto.Booking] = (*RequestBookingHandler)(nil)
var _ middleware.IdempotentCommand = RequestBookingCommand{}
var _ policies.Guarded = RequestBookingCommand{}
