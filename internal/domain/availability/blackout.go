package availability

import (
	"context"
	"errors"

	"rigshare/internal/domain/listings"
	"rigshare/internal/domain/shared/daterange"
)

var ErrInvalidSlot = errors.New("availability: blocked slot must end after it starts")

// BlockedSlot removes a sub-range of one day from hourly booking. Its
// presence also removes full-day bookability for that date.
type BlockedSlot struct {
	Date  daterange.Day
	Start daterange.TimeOfDay
	End   daterange.TimeOfDay
}

func NewBlockedSlot(date daterange.Day, start, end daterange.TimeOfDay) (BlockedSlot, error) {
	if date.IsZero() || end <= start {
		return BlockedSlot{}, ErrInvalidSlot
	}
	return BlockedSlot{Date: date, Start: start, End: end}, nil
}

// Blackouts are the host-entered exclusions of a listing within a range.
type Blackouts struct {
	Dates []daterange.Day
	Slots []BlockedSlot
}

type Repository interface {
	Blackouts(ctx context.Context, id listings.ListingID, r daterange.Range) (Blackouts, error)
	AddBlockedDate(ctx context.Context, id listings.ListingID, date daterange.Day) error
	RemoveBlockedDate(ctx context.Context, id listings.ListingID, date daterange.Day) error
	AddBlockedSlot(ctx context.Context, id listings.ListingID, slot BlockedSlot) error
}
