package listings

import (
	"context"
	"sort"
	"strings"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/dto"
	availabilityapp "rigshare/internal/app/handlers/availability"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/queries"
	"rigshare/internal/app/uow"
	domainlistings "rigshare/internal/domain/listings"
)

const (
	getListingKey       = "listings.get"
	listHostListingsKey = "listings.host_list"
)

type GetListingQuery struct {
	ListingID string `validate:"required"`
}

func (q GetListingQuery) Key() string { return getListingKey }

type GetListingHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetListingHandler) Handle(ctx context.Context, q GetListingQuery) (dto.Listing, error) {
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Listing{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	listing, err := availabilityapp.LoadListing(execCtx, unit, strings.TrimSpace(q.ListingID))
	if err != nil {
		return dto.Listing{}, err
	}
	return dto.MapListing(listing), nil
}

// ListHostListingsQuery returns the caller's own listings. Archived ones
// are included unless ActiveOnly is set.
type ListHostListingsQuery struct {
	Actor      policies.Actor
	ActiveOnly bool
}

func (q ListHostListingsQuery) Key() string { return listHostListingsKey }

type ListHostListingsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListHostListingsHandler) Handle(ctx context.Context, q ListHostListingsQuery) (dto.ListingCollection, error) {
	if q.Actor.ID == "" {
		return dto.ListingCollection{}, apperr.Unauthenticated("listings.host_list")
	}
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.ListingCollection{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	items, err := unit.Listings().ListByHost(execCtx, domainlistings.HostID(q.Actor.ID))
	if err != nil {
		return dto.ListingCollection{}, err
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	out := dto.ListingCollection{Items: make([]dto.Listing, 0, len(items))}
	for _, l := range items {
		if q.ActiveOnly && l.State != domainlistings.ListingActive {
			continue
		}
		out.Items = append(out.Items, dto.MapListing(l))
	}
	return out, nil
}

var (
	_ queries.Handler[GetListingQuery, dto.Listing]                 = (*GetListingHandler)(nil)
	_ queries.Handler[ListHostListingsQuery, dto.ListingCollection] = (*ListHostListingsHandler)(nil)
)
