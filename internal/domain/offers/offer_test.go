package offers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rigshare/internal/domain/shared/money"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newOffer(t *testing.T) *Offer {
	t.Helper()
	o, err := NewOffer(CreateParams{ID: "of-1", ListingID: "lst", BuyerID: "buyer", SellerID: "seller", Amount: money.Must(90000, "USD"), Now: now})
	require.NoError(t, err)
	return o
}

func TestNewOfferValidation(t *testing.T) {
	_, err := NewOffer(CreateParams{BuyerID: "a", SellerID: "a", Amount: money.Must(100, "USD")})
	require.ErrorIs(t, err, ErrSelfOffer)
	_, err = NewOffer(CreateParams{BuyerID: "a", SellerID: "b", Amount: money.Zero("USD")})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCounterThenBuyerAccepts(t *testing.T) {
	o := newOffer(t)
	require.ErrorIs(t, o.Accept("buyer", now), ErrWrongParty)
	require.NoError(t, o.Counter("seller", money.Must(95000, "USD"), now))
	require.ErrorIs(t, o.Accept("seller", now), ErrWrongParty)
	require.NoError(t, o.Accept("buyer", now))
	require.Equal(t, StatusAccepted, o.Status)
	require.Equal(t, int64(95000), o.Amount.Amount)

	require.NoError(t, o.MarkPurchased(now))
	require.NoError(t, o.MarkPurchased(now))
	require.Equal(t, StatusPurchased, o.Status)
}

func TestDeclineClosesOffer(t *testing.T) {
	o := newOffer(t)
	require.NoError(t, o.Decline("seller", now))
	require.ErrorIs(t, o.Accept("seller", now), ErrNotOpen)
	require.ErrorIs(t, o.MarkPurchased(now), ErrNotAccepted)
}

func TestOnlyBuyerCancels(t *testing.T) {
	o := newOffer(t)
	require.ErrorIs(t, o.Cancel("seller", now), ErrWrongParty)
	require.NoError(t, o.Cancel("buyer", now))
	require.Equal(t, StatusCancelled, o.Status)
}
