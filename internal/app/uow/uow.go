package uow

import (
	"context"

	domainavailability "rigshare/internal/domain/availability"
	domainbooking "rigshare/internal/domain/booking"
	domainlistings "rigshare/internal/domain/listings"
	domainoffers "rigshare/internal/domain/offers"
	domainsettlement "rigshare/internal/domain/settlement"
	domainuser "rigshare/internal/domain/user"
)

// UnitOfWork coordinates repositories inside a transaction boundary.
type UnitOfWork interface {
	Listings() domainlistings.ListingRepository
	Availability() domainavailability.Repository
	Claims() domainavailability.ClaimStore
	Bookings() domainbooking.Repository
	Settlements() domainsettlement.Repository
	Offers() domainoffers.Repository
	Users() domainuser.Repository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TxOptions configure transaction boundaries. Autocommit units apply each
// write immediately; they are used by commands that call the payment
// processor between writes or that must observe a storage constraint
// violation without aborting the surrounding transaction.
type TxOptions struct {
	ReadOnly   bool
	Autocommit bool
}

// Autocommitter is implemented by commands that need an autocommit unit.
type Autocommitter interface {
	Autocommit() bool
}

// OptionsFor derives transaction options from a message.
func OptionsFor(msg any) TxOptions {
	if a, ok := msg.(Autocommitter); ok && a.Autocommit() {
		return TxOptions{Autocommit: true}
	}
	return TxOptions{}
}
