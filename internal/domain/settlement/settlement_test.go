package settlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rigshare/internal/domain/shared/money"
)

var testNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newPaid(t *testing.T) *Settlement {
	t.Helper()
	s, err := Record(RecordParams{
		ID:                "st-1",
		ListingID:         "lst-1",
		BuyerID:           "buyer",
		SellerID:          "seller",
		CheckoutSessionID: "cs_1",
		PaymentIntentID:   "pi_1",
		Gross:             money.Must(100000, "USD"),
		PlatformFee:       money.Must(15000, "USD"),
		SellerPayout:      money.Must(85000, "USD"),
		Now:               testNow,
	})
	require.NoError(t, err)
	s.ClearEvents()
	return s
}

func TestRecordStartsPaid(t *testing.T) {
	_, err := Record(RecordParams{BuyerID: "b", SellerID: "s"})
	require.Error(t, err)

	s := newPaid(t)
	require.Equal(t, StatusPaid, s.Status)
	require.False(t, s.Status.Terminal())
}

func TestPartyOf(t *testing.T) {
	s := newPaid(t)
	p, err := s.PartyOf("buyer")
	require.NoError(t, err)
	require.Equal(t, PartyBuyer, p)
	p, err = s.PartyOf("seller")
	require.NoError(t, err)
	require.Equal(t, PartySeller, p)
	_, err = s.PartyOf("stranger")
	require.ErrorIs(t, err, ErrNotParticipant)
	_, err = s.PartyOf("")
	require.ErrorIs(t, err, ErrNotParticipant)
}

func TestOpenDispute(t *testing.T) {
	s := newPaid(t)
	require.ErrorIs(t, s.OpenDispute("stranger", "broken", testNow), ErrNotParticipant)
	require.ErrorIs(t, s.OpenDispute("seller", "  ", testNow), ErrReasonRequired)

	require.NoError(t, s.OpenDispute("seller", "buyer never picked up", testNow))
	require.Equal(t, StatusDisputed, s.Status)
	require.Equal(t, PartySeller, s.Dispute.OpenedBy)
	require.Len(t, s.PendingEvents(), 1)

	require.ErrorIs(t, s.OpenDispute("buyer", "again", testNow), ErrNotPaid)
}

func TestResolveRefund(t *testing.T) {
	s := newPaid(t)
	require.ErrorIs(t, s.BeginResolution(ResolutionRefundBuyer, testNow), ErrNotDisputed)
	require.ErrorIs(t, s.ResolveRefunded("re_1", "admin", "", testNow), ErrNotDisputed)

	require.NoError(t, s.OpenDispute("buyer", "not as described", testNow))
	require.ErrorIs(t, s.ResolveRefunded("re_1", "admin", "", testNow), ErrNotDisputed)
	require.NoError(t, s.BeginResolution(ResolutionRefundBuyer, testNow))
	require.Equal(t, StatusResolving, s.Status)
	require.NoError(t, s.ResolveRefunded("re_1", "admin", " verified ", testNow))
	require.Equal(t, StatusRefunded, s.Status)
	require.Equal(t, "re_1", s.RefundID)
	require.Equal(t, ResolutionRefundBuyer, s.Resolution.Choice)
	require.Equal(t, "verified", s.Resolution.Notes)
	require.Empty(t, s.Pending)
	require.True(t, s.Status.Terminal())

	require.ErrorIs(t, s.ResolveReleased("tr_1", "admin", "", testNow), ErrNotDisputed)
	require.ErrorIs(t, s.BeginResolution(ResolutionReleaseToSeller, testNow), ErrNotDisputed)
}

func TestResolveRelease(t *testing.T) {
	s := newPaid(t)
	require.NoError(t, s.OpenDispute("buyer", "late", testNow))
	require.NoError(t, s.BeginResolution(ResolutionReleaseToSeller, testNow))
	require.ErrorIs(t, s.ResolveRefunded("re_1", "admin", "", testNow), ErrNotDisputed)
	require.NoError(t, s.ResolveReleased("tr_1", "admin", "", testNow))
	require.Equal(t, StatusCompleted, s.Status)
	require.Equal(t, "tr_1", s.TransferID)
	require.NotNil(t, s.PaidOutAt)
}

func TestResolutionClaim(t *testing.T) {
	s := newPaid(t)
	require.NoError(t, s.OpenDispute("seller", "no show", testNow))
	require.NoError(t, s.BeginResolution(ResolutionRefundBuyer, testNow))

	require.NoError(t, s.BeginResolution(ResolutionRefundBuyer, testNow))
	require.ErrorIs(t, s.BeginResolution(ResolutionReleaseToSeller, testNow), ErrResolutionPending)
	require.ErrorIs(t, s.OpenDispute("buyer", "again", testNow), ErrNotPaid)

	s.AbandonResolution(testNow)
	require.Equal(t, StatusDisputed, s.Status)
	require.Empty(t, s.Pending)
	require.Nil(t, s.Resolution)
	require.NoError(t, s.BeginResolution(ResolutionReleaseToSeller, testNow))
}

func TestBeginResolutionNeedsPaymentIntent(t *testing.T) {
	s := newPaid(t)
	s.PaymentIntentID = ""
	require.NoError(t, s.OpenDispute("buyer", "late", testNow))
	require.ErrorIs(t, s.BeginResolution(ResolutionRefundBuyer, testNow), ErrNoPaymentIntent)
	require.Equal(t, StatusDisputed, s.Status)
}

func TestConfirmReceipt(t *testing.T) {
	s := newPaid(t)
	require.ErrorIs(t, s.BeginRelease("seller", testNow), ErrOnlyBuyerConfirms)
	require.ErrorIs(t, s.BeginRelease("stranger", testNow), ErrNotParticipant)
	require.ErrorIs(t, s.ConfirmReceipt("buyer", "tr_1", testNow), ErrNotPaid)

	require.NoError(t, s.BeginRelease("buyer", testNow))
	require.Equal(t, StatusReleasing, s.Status)
	require.ErrorIs(t, s.OpenDispute("seller", "changed my mind", testNow), ErrNotPaid)
	require.NoError(t, s.BeginRelease("buyer", testNow))

	require.NoError(t, s.ConfirmReceipt("buyer", "tr_1", testNow))
	require.Equal(t, StatusCompleted, s.Status)
	require.Len(t, s.PendingEvents(), 1)
	require.ErrorIs(t, s.BeginRelease("buyer", testNow), ErrNotPaid)

	abandoned := newPaid(t)
	require.NoError(t, abandoned.BeginRelease("buyer", testNow))
	abandoned.AbandonRelease(testNow)
	require.Equal(t, StatusPaid, abandoned.Status)
	require.NoError(t, abandoned.OpenDispute("seller", "no", testNow))
	require.ErrorIs(t, abandoned.BeginRelease("buyer", testNow), ErrNotPaid)
}

func TestParseResolution(t *testing.T) {
	r, err := ParseResolution(" REFUND_BUYER ")
	require.NoError(t, err)
	require.Equal(t, ResolutionRefundBuyer, r)
	_, err = ParseResolution("split")
	require.ErrorIs(t, err, ErrInvalidResolution)

	require.Equal(t, "settlement:st-1:refund_buyer", ResolutionKey("st-1", ResolutionRefundBuyer))
	require.NotEqual(t, ResolutionKey("st-1", ResolutionRefundBuyer), ResolutionKey("st-1", ResolutionReleaseToSeller))
}
