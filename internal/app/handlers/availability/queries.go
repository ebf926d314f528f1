package availability

import (
	"context"
	"errors"
	"strings"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/dto"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/queries"
	"rigshare/internal/app/uow"
	domainavailability "rigshare/internal/domain/availability"
	"rigshare/internal/domain/shared/daterange"
)

const (
	getDayKey      = "availability.day"
	getCalendarKey = "availability.calendar"
)

type GetDayQuery struct {
	ListingID string `validate:"required"`
	Date      string `validate:"required"`
}

func (q GetDayQuery) Key() string { return getDayKey }

type GetCalendarQuery struct {
	ListingID string `validate:"required"`
	From      string `validate:"required"`
	To        string `validate:"required"`
}

func (q GetCalendarQuery) Key() string { return getCalendarKey }

type GetDayHandler struct {
	UoWFactory uow.UoWFactory
	Resolver   domainavailability.Resolver
}

func (h *GetDayHandler) Handle(ctx context.Context, q GetDayQuery) (dto.DayAvailability, error) {
	date, err := daterange.ParseDay(strings.TrimSpace(q.Date))
	if err != nil {
		return dto.DayAvailability{}, apperr.Validation("availability.day", err)
	}
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.DayAvailability{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	listing, err := LoadListing(execCtx, unit, q.ListingID)
	if err != nil {
		return dto.DayAvailability{}, err
	}
	snap, err := LoadSnapshot(execCtx, unit, listing, daterange.Single(date))
	if err != nil {
		return dto.DayAvailability{}, err
	}
	return dto.MapDayAvailability(h.Resolver.ResolveDay(snap, date)), nil
}

type GetCalendarHandler struct {
	UoWFactory uow.UoWFactory
	Resolver   domainavailability.Resolver
}

func (h *GetCalendarHandler) Handle(ctx context.Context, q GetCalendarQuery) (dto.Calendar, error) {
	from, err := daterange.ParseDay(strings.TrimSpace(q.From))
	if err != nil {
		return dto.Calendar{}, apperr.Validation("availability.calendar", err)
	}
	to, err := daterange.ParseDay(strings.TrimSpace(q.To))
	if err != nil {
		return dto.Calendar{}, apperr.Validation("availability.calendar", err)
	}
	r, err := daterange.New(from, to)
	if err != nil {
		return dto.Calendar{}, apperr.Validation("availability.calendar", err)
	}
	if r.Days() > domainavailability.MaxCalendarDays {
		return dto.Calendar{}, apperr.Validation("availability.calendar", domainavailability.ErrRangeTooLong)
	}
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Calendar{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	listing, err := LoadListing(execCtx, unit, q.ListingID)
	if err != nil {
		return dto.Calendar{}, err
	}
	snap, err := LoadSnapshot(execCtx, unit, listing, r)
	if err != nil {
		return dto.Calendar{}, err
	}
	days, err := h.Resolver.ResolveRange(snap, r)
	if err != nil {
		if errors.Is(err, domainavailability.ErrRangeTooLong) {
			return dto.Calendar{}, apperr.Validation("availability.calendar", err)
		}
		return dto.Calendar{}, err
	}
	return dto.MapCalendar(string(listing.ID), days), nil
}

var _ queries.Handler[GetDayQuery, dto.DayAvailability] = (*GetDayHandler)(nil)
var _ queries.Handler[GetCalendarQuery, dto.Calendar] = (*GetCalendarHandler)(nil)
