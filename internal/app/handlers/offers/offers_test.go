package offers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/notify"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/uow"
	domainlistings "rigshare/internal/domain/listings"
	domainoffers "rigshare/internal/domain/offers"
	"rigshare/internal/domain/shared/money"
	domainuser "rigshare/internal/domain/user"
	"rigshare/internal/infra/storage/memory"
)

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []policies.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n policies.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func actor(id string) policies.Actor {
	return policies.Actor{ID: id, Roles: []domainuser.Role{domainuser.RoleRenter}}
}

func setup(t *testing.T, forSale bool) (context.Context, memory.Factory, *Handler, *recordingNotifier) {
	t.Helper()
	factory := memory.NewFactory()
	unit, err := factory.Begin(context.Background(), uow.TxOptions{})
	require.NoError(t, err)
	params := domainlistings.CreateListingParams{
		ID: "lst-1", Host: "seller-1", Title: "Trailer", Kind: domainlistings.KindTrailer,
		Currency: "USD", Now: fixedNow,
	}
	if forSale {
		price := money.Must(1000000, "USD")
		params.Sale = domainlistings.SaleTerms{Price: &price}
	}
	listing, err := domainlistings.NewListing(params)
	require.NoError(t, err)
	require.NoError(t, unit.Listings().Save(context.Background(), listing))

	notes := &recordingNotifier{}
	h := &Handler{
		Outbox: memory.NewOutbox(nil),
		Notify: &notify.BestEffort{Notifier: notes},
		Clock:  func() time.Time { return fixedNow },
	}
	return uow.ContextWithUnitOfWork(context.Background(), unit), factory, h, notes
}

func TestNegotiationFlow(t *testing.T) {
	ctx, factory, h, notes := setup(t, true)

	made, err := h.Make(ctx, MakeOfferCommand{Actor: actor("buyer-1"), ListingID: "lst-1", Amount: "8000"})
	require.NoError(t, err)
	require.Equal(t, "pending", made.Status)
	require.Equal(t, "seller-1", made.SellerID)

	// Buyer cannot respond to their own pending offer.
	_, err = h.Respond(ctx, RespondOfferCommand{Actor: actor("buyer-1"), OfferID: made.ID, Action: ActionAccept})
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	countered, err := h.Respond(ctx, RespondOfferCommand{Actor: actor("seller-1"), OfferID: made.ID, Action: ActionCounter, Amount: "9000"})
	require.NoError(t, err)
	require.Equal(t, "countered", countered.Status)
	require.Equal(t, "9000.00", countered.Amount)

	accepted, err := h.Respond(ctx, RespondOfferCommand{Actor: actor("buyer-1"), OfferID: made.ID, Action: ActionAccept})
	require.NoError(t, err)
	require.Equal(t, "accepted", accepted.Status)

	_, err = h.Respond(ctx, RespondOfferCommand{Actor: actor("seller-1"), OfferID: made.ID, Action: ActionDecline})
	require.True(t, apperr.Is(err, apperr.KindStateConflict))

	unit, _ := uow.FromContext(ctx)
	held, err := unit.Offers().AcceptedFor(ctx, "lst-1", "buyer-1")
	require.NoError(t, err)
	require.Equal(t, domainoffers.ID(made.ID), held.ID)

	recipients := make([]string, 0, len(notes.notes))
	for _, n := range notes.notes {
		recipients = append(recipients, n.RecipientID)
	}
	require.Equal(t, []string{"seller-1", "buyer-1", "seller-1"}, recipients)

	q := &QueryHandler{UoWFactory: factory}
	list, err := q.List(context.Background(), ListOffersQuery{Actor: actor("seller-1")})
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = q.Get(context.Background(), GetOfferQuery{Actor: actor("stranger"), OfferID: made.ID})
	require.True(t, apperr.Is(err, apperr.KindAuthorization))
}

func TestMakeOfferRules(t *testing.T) {
	ctx, _, h, _ := setup(t, true)
	_, err := h.Make(ctx, MakeOfferCommand{Actor: actor("seller-1"), ListingID: "lst-1", Amount: "100"})
	require.True(t, apperr.Is(err, apperr.KindValidation))
	require.ErrorIs(t, err, domainoffers.ErrSelfOffer)

	_, err = h.Make(ctx, MakeOfferCommand{Actor: actor("buyer-1"), ListingID: "lst-1", Amount: "0"})
	require.True(t, apperr.Is(err, apperr.KindValidation))

	ctx, _, h, _ = setup(t, false)
	_, err = h.Make(ctx, MakeOfferCommand{Actor: actor("buyer-1"), ListingID: "lst-1", Amount: "100"})
	require.True(t, apperr.Is(err, apperr.KindStateConflict))
}

func TestBuyerCancelsAcceptedOffer(t *testing.T) {
	ctx, _, h, _ := setup(t, true)
	made, err := h.Make(ctx, MakeOfferCommand{Actor: actor("buyer-1"), ListingID: "lst-1", Amount: "9500"})
	require.NoError(t, err)
	_, err = h.Respond(ctx, RespondOfferCommand{Actor: actor("seller-1"), OfferID: made.ID, Action: ActionAccept})
	require.NoError(t, err)

	_, err = h.Respond(ctx, RespondOfferCommand{Actor: actor("seller-1"), OfferID: made.ID, Action: ActionCancel})
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	out, err := h.Respond(ctx, RespondOfferCommand{Actor: actor("buyer-1"), OfferID: made.ID, Action: ActionCancel})
	require.NoError(t, err)
	require.Equal(t, "cancelled", out.Status)
}
