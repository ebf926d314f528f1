package memory

import (
	"context"
	"errors"

	"rigshare/internal/app/uow"
	domainavailability "rigshare/internal/domain/availability"
	domainbooking "rigshare/internal/domain/booking"
	domainlistings "rigshare/internal/domain/listings"
	domainoffers "rigshare/internal/domain/offers"
	domainsettlement "rigshare/internal/domain/settlement"
	domainuser "rigshare/internal/domain/user"
)

// Factory wires in-memory repositories into a unit-of-work boundary.
type Factory struct {
	ListingsRepo    domainlistings.ListingRepository
	BlackoutsRepo   domainavailability.Repository
	ClaimStore      domainavailability.ClaimStore
	BookingRepo     domainbooking.Repository
	SettlementsRepo domainsettlement.Repository
	OffersRepo      domainoffers.Repository
	UsersRepo       domainuser.Repository
}

var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

// NewFactory builds a factory over fresh empty stores.
func NewFactory() Factory {
	return Factory{
		ListingsRepo:    NewListingRepository(),
		BlackoutsRepo:   NewBlackoutRepository(),
		ClaimStore:      NewClaimStore(),
		BookingRepo:     NewBookingRepository(),
		SettlementsRepo: NewSettlementRepository(),
		OffersRepo:      NewOfferRepository(),
		UsersRepo:       NewUserRepository(),
	}
}

// Begin starts a unit without isolation. Every write applies immediately,
// which is the autocommit behaviour regardless of opts.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.ListingsRepo == nil || f.BlackoutsRepo == nil || f.ClaimStore == nil || f.BookingRepo == nil ||
		f.SettlementsRepo == nil || f.OffersRepo == nil || f.UsersRepo == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{factory: f}, nil
}

type Unit struct {
	factory Factory
}

func (u *Unit) Listings() domainlistings.ListingRepository  { return u.factory.ListingsRepo }
func (u *Unit) Availability() domainavailability.Repository { return u.factory.BlackoutsRepo }
func (u *Unit) Claims() domainavailability.ClaimStore       { return u.factory.ClaimStore }
func (u *Unit) Bookings() domainbooking.Repository          { return u.factory.BookingRepo }
func (u *Unit) Settlements() domainsettlement.Repository    { return u.factory.SettlementsRepo }
func (u *Unit) Offers() domainoffers.Repository             { return u.factory.OffersRepo }
func (u *Unit) Users() domainuser.Repository                { return u.factory.UsersRepo }

func (u *Unit) Commit(ctx context.Context) error   { return nil }
func (u *Unit) Rollback(ctx context.Context) error { return nil }

var _ uow.UoWFactory = Factory{}
