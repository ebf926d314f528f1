package booking

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/dto"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/notify"
	"rigshare/internal/app/outbox"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/queries"
	"rigshare/internal/app/uow"
	domainbooking "rigshare/internal/domain/booking"
	domainuser "rigshare/internal/domain/user"
)

const (
	listBookingsKey    = "bookings.list"
	approveBookingKey  = "bookings.approve"
	completeBookingKey = "bookings.complete"
)

// ListBookingsQuery lists the caller's bookings as buyer or as host.
type ListBookingsQuery struct {
	Actor  policies.Actor
	AsHost bool
	Status string
}

func (q ListBookingsQuery) Key() string                   { return listBookingsKey }
func (q ListBookingsQuery) Caller() policies.Actor        { return q.Actor }
func (q ListBookingsQuery) RequiredRole() domainuser.Role { return "" }

type ListBookingsHandler struct {
	UoWFactory uow.UoWFactory
	Logger     *slog.Logger
}

func (h *ListBookingsHandler) Handle(ctx context.Context, q ListBookingsQuery) (dto.BookingCollection, error) {
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.BookingCollection{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	var bookings []*domainbooking.Booking
	if q.AsHost {
		bookings, err = unit.Bookings().ListByHost(execCtx, q.Actor.ID)
	} else {
		bookings, err = unit.Bookings().ListByBuyer(execCtx, q.Actor.ID)
	}
	if err != nil {
		return dto.BookingCollection{}, err
	}

	status := strings.ToLower(strings.TrimSpace(q.Status))
	items := make([]dto.Booking, 0, len(bookings))
	for _, b := range bookings {
		if status != "" && string(b.Status) != status {
			continue
		}
		items = append(items, dto.MapBooking(b))
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	handlersupport.Logger(h.Logger).Debug("bookings listed", "actor_id", q.Actor.ID, "as_host", q.AsHost, "count", len(items))
	return dto.BookingCollection{Items: items}, nil
}

type ApproveBookingCommand struct {
	Actor     policies.Actor
	BookingID string `validate:"required"`
}

func (c ApproveBookingCommand) Key() string                   { return approveBookingKey }
func (c ApproveBookingCommand) Caller() policies.Actor        { return c.Actor }
func (c ApproveBookingCommand) RequiredRole() domainuser.Role { return domainuser.RoleHost }

type CompleteBookingCommand struct {
	Actor     policies.Actor
	BookingID string `validate:"required"`
}

func (c CompleteBookingCommand) Key() string                   { return completeBookingKey }
func (c CompleteBookingCommand) Caller() policies.Actor        { return c.Actor }
func (c CompleteBookingCommand) RequiredRole() domainuser.Role { return domainuser.RoleHost }

// HostTransitionHandler applies host-side status changes.
type HostTransitionHandler struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Notify  *notify.BestEffort
	Logger  *slog.Logger
}

func (h *HostTransitionHandler) Approve(ctx context.Context, cmd ApproveBookingCommand) (*dto.BookingActionResult, error) {
	return h.transition(ctx, "booking.approve", cmd.Actor, cmd.BookingID, func(b *domainbooking.Booking, now time.Time) error {
		return b.Approve(now)
	})
}

func (h *HostTransitionHandler) Complete(ctx context.Context, cmd CompleteBookingCommand) (*dto.BookingActionResult, error) {
	return h.transition(ctx, "booking.complete", cmd.Actor, cmd.BookingID, func(b *domainbooking.Booking, now time.Time) error {
		return b.Complete(now)
	})
}

func (h *HostTransitionHandler) transition(
	ctx context.Context,
	op string,
	actor policies.Actor,
	bookingID string,
	apply func(*domainbooking.Booking, time.Time) error,
) (*dto.BookingActionResult, error) {
	unit, err := uow.MustFromContext(ctx)
	if err != nil {
		return nil, err
	}
	booking, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(strings.TrimSpace(bookingID)))
	if err != nil {
		return nil, classify(op, err)
	}
	role, err := booking.ActorFor(actor.ID, actor.IsAdmin())
	if err != nil {
		return nil, classify(op, err)
	}
	if role == domainbooking.ActorBuyer {
		return nil, apperr.Forbidden(op, "only the host can change this booking")
	}
	if err := apply(booking, time.Now().UTC()); err != nil {
		return nil, classify(op, err)
	}
	if err := unit.Bookings().Save(ctx, booking); err != nil {
		return nil, classify(op, err)
	}
	if err := handlersupport.FlushEvents(ctx, h.Outbox, h.Encoder, booking); err != nil {
		return nil, err
	}
	if booking.Status == domainbooking.StatusApproved {
		h.Notify.Send(ctx, policies.Notification{
			Template:    policies.TemplateBookingApproved,
			RecipientID: booking.BuyerID,
			Subject:     "Your booking was approved",
			Data:        map[string]string{"booking_id": string(booking.ID)},
			DedupeKey:   string(booking.ID) + ":approved",
		})
	}
	handlersupport.Logger(h.Logger).Info("booking status changed",
		"booking_id", booking.ID, "status", booking.Status, "actor_id", actor.ID)
	return &dto.BookingActionResult{
		BookingID:     string(booking.ID),
		Status:        string(booking.Status),
		PaymentStatus: string(booking.PaymentStatus),
	}, nil
}

var _ queries.Handler[ListBookingsQuery, dto.BookingCollection] = (*ListBookingsHandler)(nil)
