package availability

import (
	"context"
	"errors"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/uow"
	domainavailability "rigshare/internal/domain/availability"
	domainlistings "rigshare/internal/domain/listings"
	"rigshare/internal/domain/shared/daterange"
)

// LoadListing fetches a listing and maps a miss to NotFound.
func LoadListing(ctx context.Context, unit uow.UnitOfWork, id string) (*domainlistings.Listing, error) {
	listing, err := unit.Listings().ByID(ctx, domainlistings.ListingID(id))
	if err != nil {
		if errors.Is(err, domainlistings.ErrNotFound) {
			return nil, apperr.NotFound("listing", err)
		}
		return nil, err
	}
	return listing, nil
}

// LoadSnapshot reads the bookings and blackouts that can affect dates in r.
// Only bookings that occupy the calendar are kept.
func LoadSnapshot(ctx context.Context, unit uow.UnitOfWork, listing *domainlistings.Listing, r daterange.Range) (domainavailability.Snapshot, error) {
	bookings, err := unit.Bookings().ListByListing(ctx, listing.ID, r)
	if err != nil {
		return domainavailability.Snapshot{}, err
	}
	blackouts, err := unit.Availability().Blackouts(ctx, listing.ID, r)
	if err != nil {
		return domainavailability.Snapshot{}, err
	}
	snap := domainavailability.Snapshot{Schedule: listing.Schedule, Blackouts: blackouts}
	for _, b := range bookings {
		if b.OccupiesCalendar() {
			snap.Occupancies = append(snap.Occupancies, b.Occupancy())
		}
	}
	return snap, nil
}
