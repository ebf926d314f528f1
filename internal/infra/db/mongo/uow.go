package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"rigshare/internal/app/uow"
	domainavailability "rigshare/internal/domain/availability"
	domainbooking "rigshare/internal/domain/booking"
	domainlistings "rigshare/internal/domain/listings"
	domainoffers "rigshare/internal/domain/offers"
	domainsettlement "rigshare/internal/domain/settlement"
	domainuser "rigshare/internal/domain/user"
)

// Factory wires Mongo transactions into the generic UnitOfWork interface.
type Factory struct {
	DB *mongo.Database

	listings    *ListingRepository
	blackouts   *BlackoutRepository
	claims      *ClaimStore
	bookings    *BookingRepository
	settlements *SettlementRepository
	offers      *OfferRepository
	users       *UserRepository
}

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

func NewFactory(db *mongo.Database) *Factory {
	return &Factory{
		DB:          db,
		listings:    NewListingRepository(db),
		blackouts:   NewBlackoutRepository(db),
		claims:      NewClaimStore(db),
		bookings:    NewBookingRepository(db),
		settlements: NewSettlementRepository(db),
		offers:      NewOfferRepository(db),
		users:       NewUserRepository(db),
	}
}

// Begin starts a session-backed transaction. Read-only and autocommit units
// run without one, so each write is applied as it happens.
func (f *Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f == nil || f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	unit := &Unit{factory: f}
	if opts.ReadOnly || opts.Autocommit {
		return unit, nil
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	unit.session = session
	return unit, nil
}

type Unit struct {
	factory *Factory
	session mongo.Session
}

func (u *Unit) Listings() domainlistings.ListingRepository  { return u.factory.listings }
func (u *Unit) Availability() domainavailability.Repository { return u.factory.blackouts }
func (u *Unit) Claims() domainavailability.ClaimStore       { return u.factory.claims }
func (u *Unit) Bookings() domainbooking.Repository          { return u.factory.bookings }
func (u *Unit) Settlements() domainsettlement.Repository    { return u.factory.settlements }
func (u *Unit) Offers() domainoffers.Repository             { return u.factory.offers }
func (u *Unit) Users() domainuser.Repository                { return u.factory.users }

func (u *Unit) Commit(ctx context.Context) error {
	if u.session == nil {
		return nil
	}
	defer u.session.EndSession(ctx)
	return u.session.CommitTransaction(ctx)
}

func (u *Unit) Rollback(ctx context.Context) error {
	if u.session == nil {
		return nil
	}
	defer u.session.EndSession(ctx)
	return u.session.AbortTransaction(ctx)
}

// InjectContext puts the session into ctx so repository calls made with it
// join the transaction.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	if u.session == nil {
		return ctx
	}
	return mongo.NewSessionContext(ctx, u.session)
}

var (
	_ uow.UoWFactory      = (*Factory)(nil)
	_ uow.ContextInjector = (*Unit)(nil)
)
