package offers

import (
	"context"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/dto"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/uow"
	domainoffers "rigshare/internal/domain/offers"
)

const (
	listOffersKey = "offers.list"
	getOfferKey   = "offers.get"
)

type ListOffersQuery struct {
	Actor policies.Actor
}

func (q ListOffersQuery) Key() string { return listOffersKey }

type GetOfferQuery struct {
	Actor   policies.Actor
	OfferID string `validate:"required"`
}

func (q GetOfferQuery) Key() string { return getOfferKey }

type QueryHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *QueryHandler) List(ctx context.Context, q ListOffersQuery) ([]dto.Offer, error) {
	if q.Actor.ID == "" {
		return nil, apperr.Unauthenticated("offers.list")
	}
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	items, err := unit.Offers().ListByParty(execCtx, q.Actor.ID)
	if err != nil {
		return nil, err
	}
	out := make([]dto.Offer, 0, len(items))
	for _, o := range items {
		out = append(out, dto.MapOffer(o))
	}
	return out, nil
}

// Get returns an offer to one of its parties or an admin.
func (h *QueryHandler) Get(ctx context.Context, q GetOfferQuery) (dto.Offer, error) {
	const op = "offers.get"
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Offer{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	offer, err := unit.Offers().ByID(execCtx, domainoffers.ID(q.OfferID))
	if err != nil {
		return dto.Offer{}, classify(op, err)
	}
	if q.Actor.ID != offer.BuyerID && q.Actor.ID != offer.SellerID && !q.Actor.IsAdmin() {
		return dto.Offer{}, apperr.Authorization(op, domainoffers.ErrWrongParty)
	}
	return dto.MapOffer(offer), nil
}

