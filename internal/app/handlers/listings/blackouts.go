package listings

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/dto"
	availabilityapp "rigshare/internal/app/handlers/availability"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/outbox"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/uow"
	domainavailability "rigshare/internal/domain/availability"
	domainlistings "rigshare/internal/domain/listings"
	"rigshare/internal/domain/shared/daterange"
	"rigshare/internal/domain/shared/events"
	domainuser "rigshare/internal/domain/user"
)

const (
	blockDateKey = "listings.block_date"
	blockSlotKey = "listings.block_slot"
)

// BlockDateCommand blocks a whole day, or unblocks it when Remove is set.
type BlockDateCommand struct {
	Actor     policies.Actor
	ListingID string `validate:"required"`
	Date      string `validate:"required"`
	Remove    bool
}

func (c BlockDateCommand) Key() string                   { return blockDateKey }
func (c BlockDateCommand) Caller() policies.Actor        { return c.Actor }
func (c BlockDateCommand) RequiredRole() domainuser.Role { return domainuser.RoleHost }

type BlockSlotCommand struct {
	Actor     policies.Actor
	ListingID string `validate:"required"`
	Date      string `validate:"required"`
	Start     string `validate:"required"`
	End       string `validate:"required"`
}

func (c BlockSlotCommand) Key() string                   { return blockSlotKey }
func (c BlockSlotCommand) Caller() policies.Actor        { return c.Actor }
func (c BlockSlotCommand) RequiredRole() domainuser.Role { return domainuser.RoleHost }

type BlackoutHandler struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Logger  *slog.Logger
	Clock   func() time.Time
}

func (h *BlackoutHandler) BlockDate(ctx context.Context, cmd BlockDateCommand) (*dto.BlackoutResult, error) {
	const op = "listings.block_date"
	unit, listing, err := h.owned(ctx, op, cmd.Actor, cmd.ListingID)
	if err != nil {
		return nil, err
	}
	date, err := daterange.ParseDay(strings.TrimSpace(cmd.Date))
	if err != nil {
		return nil, apperr.Validation(op, err)
	}
	repo := unit.Availability()
	if cmd.Remove {
		err = repo.RemoveBlockedDate(ctx, listing.ID, date)
	} else {
		err = repo.AddBlockedDate(ctx, listing.ID, date)
	}
	if err != nil {
		return nil, err
	}
	ev := domainavailability.BlackoutChanged{
		ListingID: listing.ID,
		Date:      date.String(),
		Removed:   cmd.Remove,
		At:        h.now(),
	}
	if err := h.record(ctx, ev); err != nil {
		return nil, err
	}
	return &dto.BlackoutResult{ListingID: string(listing.ID), Date: ev.Date, Blocked: !cmd.Remove}, nil
}

func (h *BlackoutHandler) BlockSlot(ctx context.Context, cmd BlockSlotCommand) (*dto.BlackoutResult, error) {
	const op = "listings.block_slot"
	unit, listing, err := h.owned(ctx, op, cmd.Actor, cmd.ListingID)
	if err != nil {
		return nil, err
	}
	date, err := daterange.ParseDay(strings.TrimSpace(cmd.Date))
	if err != nil {
		return nil, apperr.Validation(op, err)
	}
	start, err := daterange.ParseTimeOfDay(strings.TrimSpace(cmd.Start))
	if err != nil {
		return nil, apperr.Validation(op, err)
	}
	end, err := daterange.ParseTimeOfDay(strings.TrimSpace(cmd.End))
	if err != nil {
		return nil, apperr.Validation(op, err)
	}
	slot, err := domainavailability.NewBlockedSlot(date, start, end)
	if err != nil {
		return nil, apperr.Validation(op, err)
	}
	if err := unit.Availability().AddBlockedSlot(ctx, listing.ID, slot); err != nil {
		return nil, err
	}
	ev := domainavailability.BlackoutChanged{
		ListingID: listing.ID,
		Date:      date.String(),
		Start:     start.String(),
		End:       end.String(),
		At:        h.now(),
	}
	if err := h.record(ctx, ev); err != nil {
		return nil, err
	}
	return &dto.BlackoutResult{ListingID: string(listing.ID), Date: ev.Date, Start: ev.Start, End: ev.End, Blocked: true}, nil
}

func (h *BlackoutHandler) owned(ctx context.Context, op string, actor policies.Actor, id string) (uow.UnitOfWork, *domainlistings.Listing, error) {
	unit, err := uow.MustFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}
	listing, err := availabilityapp.LoadListing(ctx, unit, strings.TrimSpace(id))
	if err != nil {
		return nil, nil, err
	}
	if !listing.OwnedBy(domainlistings.HostID(actor.ID)) && !actor.IsAdmin() {
		return nil, nil, apperr.Authorization(op, domainlistings.ErrNotOwned)
	}
	if listing.State == domainlistings.ListingSold {
		return nil, nil, apperr.Conflict(op, domainlistings.ErrInvalidState)
	}
	return unit, listing, nil
}

func (h *BlackoutHandler) record(ctx context.Context, ev domainavailability.BlackoutChanged) error {
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, []events.DomainEvent{ev}); err != nil {
		return err
	}
	handlersupport.Logger(h.Logger).Info("blackout changed",
		"listing_id", ev.ListingID, "date", ev.Date, "start", ev.Start, "end", ev.End, "removed", ev.Removed)
	return nil
}

func (h *BlackoutHandler) now() time.Time {
	if h.Clock != nil {
		return h.Clock().UTC()
	}
	return time.Now().UTC()
}
