package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/uow"
	domaincheckout "rigshare/internal/domain/checkout"
	domainlistings "rigshare/internal/domain/listings"
	domainoffers "rigshare/internal/domain/offers"
	domainpricing "rigshare/internal/domain/pricing"
	domainsettlement "rigshare/internal/domain/settlement"
	"rigshare/internal/domain/shared/money"
	domainuser "rigshare/internal/domain/user"
	"rigshare/internal/infra/storage/memory"
)

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type countingMetrics struct {
	policies.NopMetrics
	mu         sync.Mutex
	recorded   int
	duplicates int
}

func (m *countingMetrics) SettlementRecorded(dup bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dup {
		m.duplicates++
		return
	}
	m.recorded++
}

type archiveFunc func(ctx context.Context, key string, body []byte) error

func (f archiveFunc) Archive(ctx context.Context, key string, body []byte) error { return f(ctx, key, body) }

type fixture struct {
	ctx       context.Context
	unit      uow.UnitOfWork
	processor *memory.PaymentProcessor
	metrics   *countingMetrics
	archived  []string
	record    *RecordSettlementHandler
	actions   *ActionHandler
}

// lockstepSettlements holds armed loads until all of them have read, so
// concurrent handlers act on the same snapshot.
type lockstepSettlements struct {
	domainsettlement.Repository
	mu        sync.Mutex
	gate      *sync.WaitGroup
	remaining int
}

func (r *lockstepSettlements) arm(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = &sync.WaitGroup{}
	r.gate.Add(n)
	r.remaining = n
}

func (r *lockstepSettlements) ByID(ctx context.Context, id domainsettlement.ID) (*domainsettlement.Settlement, error) {
	s, err := r.Repository.ByID(ctx, id)
	r.mu.Lock()
	gate := r.gate
	if gate != nil {
		r.remaining--
		if r.remaining == 0 {
			r.gate = nil
		}
	}
	r.mu.Unlock()
	if gate != nil {
		gate.Done()
		gate.Wait()
	}
	return s, err
}

func newFixture(t *testing.T, opts ...func(*memory.Factory)) *fixture {
	t.Helper()
	ctx := context.Background()
	factory := memory.NewFactory()
	for _, opt := range opts {
		opt(&factory)
	}
	unit, err := factory.Begin(ctx, uow.TxOptions{Autocommit: true})
	require.NoError(t, err)

	price := money.Must(1000000, "USD")
	listing, err := domainlistings.NewListing(domainlistings.CreateListingParams{
		ID:       "lst-1",
		Host:     "seller-1",
		Title:    "2019 kitchen trailer",
		Kind:     domainlistings.KindTrailer,
		Currency: "USD",
		Sale:     domainlistings.SaleTerms{Price: &price, FreightCost: money.Must(50000, "USD")},
		Now:      fixedNow,
	})
	require.NoError(t, err)
	require.NoError(t, unit.Listings().Save(ctx, listing))

	seller, err := domainuser.NewUser(domainuser.CreateParams{
		ID: "seller-1", Email: "seller@example.com", Name: "Sam Seller", PasswordHash: "x",
		Roles: []domainuser.Role{domainuser.RoleHost},
	})
	require.NoError(t, err)
	seller.AttachPayoutAccount("acct_seller", fixedNow)
	seller.SetPayoutOnboarded(true, fixedNow)
	require.NoError(t, unit.Users().Save(ctx, seller))

	clock := func() time.Time { return fixedNow }
	f := &fixture{
		ctx:       uow.ContextWithUnitOfWork(ctx, unit),
		unit:      unit,
		processor: memory.NewPaymentProcessor(),
		metrics:   &countingMetrics{},
	}
	f.record = &RecordSettlementHandler{Processor: f.processor, Metrics: f.metrics, Clock: clock, Currency: "USD"}
	f.actions = &ActionHandler{
		Processor: f.processor,
		Clock:     clock,
		Archive: archiveFunc(func(_ context.Context, key string, _ []byte) error {
			f.archived = append(f.archived, key)
			return nil
		}),
	}
	return f
}

func (f *fixture) paidSale(t *testing.T, md domaincheckout.SaleMetadata) string {
	t.Helper()
	split, err := domainpricing.SplitSale(money.Must(1000000, "USD"), money.Must(50000, "USD"), false)
	require.NoError(t, err)
	req, _ := domaincheckout.SaleSession("trailer", split, md)
	sess, err := f.processor.CreateSession(f.ctx, req)
	require.NoError(t, err)
	_, err = f.processor.Complete(sess.ID)
	require.NoError(t, err)
	return sess.ID
}

func saleMetadata() domaincheckout.SaleMetadata {
	return domaincheckout.SaleMetadata{ListingID: "lst-1", BuyerID: "buyer-1", SellerID: "seller-1", FulfillmentType: "pickup"}
}

func (f *fixture) recordSale(t *testing.T) domainsettlement.ID {
	t.Helper()
	res, err := f.record.Handle(f.ctx, RecordSettlementCommand{SessionID: f.paidSale(t, saleMetadata())})
	require.NoError(t, err)
	return domainsettlement.ID(res.TransactionID)
}

func buyer() policies.Actor {
	return policies.Actor{ID: "buyer-1", Roles: []domainuser.Role{domainuser.RoleRenter}}
}

func seller() policies.Actor {
	return policies.Actor{ID: "seller-1", Roles: []domainuser.Role{domainuser.RoleHost}}
}

func admin() policies.Actor {
	return policies.Actor{ID: "admin-1", Roles: []domainuser.Role{domainuser.RoleAdmin}}
}

func TestRecordSettlementConcurrentConfirmationsConverge(t *testing.T) {
	f := newFixture(t)
	session := f.paidSale(t, saleMetadata())

	const callers = 8
	ids := make([]string, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.record.Handle(f.ctx, RecordSettlementCommand{SessionID: session})
			errs[i] = err
			if err == nil {
				ids[i] = res.TransactionID
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i])
	}
	require.Equal(t, 1, f.metrics.recorded)
	require.Equal(t, callers-1, f.metrics.duplicates)

	s, err := f.unit.Settlements().BySessionID(f.ctx, session)
	require.NoError(t, err)
	require.Equal(t, domainsettlement.StatusPaid, s.Status)
	require.Equal(t, "1500.00", s.PlatformFee.String())
	require.Equal(t, "8500.00", s.SellerPayout.String())
	require.Equal(t, "10500.00", s.Gross.String())

	listing, err := f.unit.Listings().ByID(f.ctx, "lst-1")
	require.NoError(t, err)
	require.Equal(t, domainlistings.ListingSold, listing.State)
}

func TestRecordSettlementFailsClosed(t *testing.T) {
	f := newFixture(t)
	md := saleMetadata()
	md.BuyerID = ""
	session := f.paidSale(t, md)

	_, err := f.record.Handle(f.ctx, RecordSettlementCommand{SessionID: session})
	require.ErrorIs(t, err, domaincheckout.ErrMetadataInvalid)
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.unit.Settlements().BySessionID(f.ctx, session)
	require.ErrorIs(t, err, domainsettlement.ErrNotFound)
}

func TestRecordSettlementRequiresPayment(t *testing.T) {
	f := newFixture(t)
	split, err := domainpricing.SplitSale(money.Must(1000000, "USD"), money.Zero("USD"), false)
	require.NoError(t, err)
	req, _ := domaincheckout.SaleSession("trailer", split, saleMetadata())
	sess, err := f.processor.CreateSession(f.ctx, req)
	require.NoError(t, err)

	_, err = f.record.Handle(f.ctx, RecordSettlementCommand{SessionID: sess.ID})
	require.True(t, apperr.Is(err, apperr.KindStateConflict))
}

func TestRecordSettlementRecomputesMissingFees(t *testing.T) {
	f := newFixture(t)
	md := saleMetadata()
	md.SalePrice = money.Must(200000, "USD")
	md.FreightCost = money.Zero("USD")
	conf := domaincheckout.Confirmation{
		SessionID:       "cs_manual",
		Paid:            true,
		PaymentIntentID: "pi_manual",
		Metadata:        md.Encode(),
		AmountTotal:     money.Must(200000, "USD"),
	}

	res, err := f.record.Handle(f.ctx, RecordSettlementCommand{SessionID: conf.SessionID, Confirmation: &conf})
	require.NoError(t, err)
	s, err := f.unit.Settlements().ByID(f.ctx, domainsettlement.ID(res.TransactionID))
	require.NoError(t, err)
	require.Equal(t, "300.00", s.PlatformFee.String())
	require.Equal(t, "1700.00", s.SellerPayout.String())
}

func TestRecordSettlementAdvancesAcceptedOffer(t *testing.T) {
	f := newFixture(t)
	offer, err := domainoffers.NewOffer(domainoffers.CreateParams{
		ID: "off-1", ListingID: "lst-1", BuyerID: "buyer-1", SellerID: "seller-1",
		Amount: money.Must(900000, "USD"), Now: fixedNow,
	})
	require.NoError(t, err)
	require.NoError(t, offer.Accept("seller-1", fixedNow))
	require.NoError(t, f.unit.Offers().Save(f.ctx, offer))

	md := saleMetadata()
	md.OfferID = "off-1"
	_, err = f.record.Handle(f.ctx, RecordSettlementCommand{SessionID: f.paidSale(t, md)})
	require.NoError(t, err)

	got, err := f.unit.Offers().ByID(f.ctx, "off-1")
	require.NoError(t, err)
	require.Equal(t, domainoffers.StatusPurchased, got.Status)
}

func TestConfirmReceiptReleasesEscrow(t *testing.T) {
	f := newFixture(t)
	id := f.recordSale(t)

	_, err := f.actions.ConfirmReceipt(f.ctx, ConfirmReceiptCommand{Actor: seller(), SettlementID: string(id)})
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	out, err := f.actions.ConfirmReceipt(f.ctx, ConfirmReceiptCommand{Actor: buyer(), SettlementID: string(id)})
	require.NoError(t, err)
	require.Equal(t, "completed", out.Status)
	require.Equal(t, 1, f.processor.Transfers())

	_, err = f.actions.ConfirmReceipt(f.ctx, ConfirmReceiptCommand{Actor: buyer(), SettlementID: string(id)})
	require.ErrorIs(t, err, domainsettlement.ErrNotPaid)
}

func TestDisputeResolvedByRefund(t *testing.T) {
	f := newFixture(t)
	id := f.recordSale(t)

	for _, resolution := range []string{"refund_buyer", "release_to_seller"} {
		_, err := f.actions.ResolveDispute(f.ctx, ResolveDisputeCommand{Actor: admin(), SettlementID: string(id), Resolution: resolution})
		require.ErrorIs(t, err, domainsettlement.ErrNotDisputed, resolution)
		require.True(t, apperr.Is(err, apperr.KindStateConflict), resolution)
	}
	require.Zero(t, f.processor.Refunds())
	require.Zero(t, f.processor.Transfers())
	paid, err := f.unit.Settlements().ByID(f.ctx, id)
	require.NoError(t, err)
	require.Equal(t, domainsettlement.StatusPaid, paid.Status)

	_, err = f.actions.OpenDispute(f.ctx, OpenDisputeCommand{Actor: buyer(), SettlementID: string(id), Reason: "Trailer not as described"})
	require.NoError(t, err)

	_, err = f.actions.ResolveDispute(f.ctx, ResolveDisputeCommand{Actor: seller(), SettlementID: string(id), Resolution: "refund_buyer"})
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	out, err := f.actions.ResolveDispute(f.ctx, ResolveDisputeCommand{Actor: admin(), SettlementID: string(id), Resolution: "refund_buyer", AdminNotes: "photos confirm damage"})
	require.NoError(t, err)
	require.Equal(t, "refunded", out.Status)
	require.Equal(t, 1, f.processor.Refunds())
	require.Len(t, f.archived, 1)

	_, err = f.actions.ResolveDispute(f.ctx, ResolveDisputeCommand{Actor: admin(), SettlementID: string(id), Resolution: "release_to_seller"})
	require.ErrorIs(t, err, domainsettlement.ErrNotDisputed)
}

func TestDisputeProcessorFailureLeavesStatus(t *testing.T) {
	f := newFixture(t)
	id := f.recordSale(t)
	_, err := f.actions.OpenDispute(f.ctx, OpenDisputeCommand{Actor: seller(), SettlementID: string(id), Reason: "Buyer never collected"})
	require.NoError(t, err)

	f.processor.TransferErr = errors.New("processor timeout")
	_, err = f.actions.ResolveDispute(f.ctx, ResolveDisputeCommand{Actor: admin(), SettlementID: string(id), Resolution: "release_to_seller"})
	require.True(t, apperr.Is(err, apperr.KindExternal))

	s, err := f.unit.Settlements().ByID(f.ctx, id)
	require.NoError(t, err)
	require.Equal(t, domainsettlement.StatusDisputed, s.Status)
	require.Nil(t, s.Resolution)
	require.Empty(t, f.archived)

	f.processor.TransferErr = nil
	out, err := f.actions.ResolveDispute(f.ctx, ResolveDisputeCommand{Actor: admin(), SettlementID: string(id), Resolution: "release_to_seller"})
	require.NoError(t, err)
	require.Equal(t, "completed", out.Status)
	require.Equal(t, 1, f.processor.Transfers())
}

func TestDisputeRefundFailureReleasesClaim(t *testing.T) {
	f := newFixture(t)
	id := f.recordSale(t)
	_, err := f.actions.OpenDispute(f.ctx, OpenDisputeCommand{Actor: buyer(), SettlementID: string(id), Reason: "Never delivered"})
	require.NoError(t, err)

	f.processor.RefundErr = errors.New("card network down")
	_, err = f.actions.ResolveDispute(f.ctx, ResolveDisputeCommand{Actor: admin(), SettlementID: string(id), Resolution: "refund_buyer"})
	require.True(t, apperr.Is(err, apperr.KindExternal))

	s, err := f.unit.Settlements().ByID(f.ctx, id)
	require.NoError(t, err)
	require.Equal(t, domainsettlement.StatusDisputed, s.Status)
	require.Empty(t, s.Pending)

	f.processor.RefundErr = nil
	out, err := f.actions.ResolveDispute(f.ctx, ResolveDisputeCommand{Actor: admin(), SettlementID: string(id), Resolution: "release_to_seller"})
	require.NoError(t, err)
	require.Equal(t, "completed", out.Status)
	require.Zero(t, f.processor.Refunds())
}

func TestDisputeResumesInterruptedResolution(t *testing.T) {
	f := newFixture(t)
	id := f.recordSale(t)
	_, err := f.actions.OpenDispute(f.ctx, OpenDisputeCommand{Actor: buyer(), SettlementID: string(id), Reason: "Broken axle"})
	require.NoError(t, err)

	s, err := f.unit.Settlements().ByID(f.ctx, id)
	require.NoError(t, err)
	require.NoError(t, s.BeginResolution(domainsettlement.ResolutionRefundBuyer, fixedNow))
	require.NoError(t, f.unit.Settlements().Save(f.ctx, s))

	_, err = f.actions.ResolveDispute(f.ctx, ResolveDisputeCommand{Actor: admin(), SettlementID: string(id), Resolution: "release_to_seller"})
	require.ErrorIs(t, err, domainsettlement.ErrResolutionPending)
	require.True(t, apperr.Is(err, apperr.KindStateConflict))

	out, err := f.actions.ResolveDispute(f.ctx, ResolveDisputeCommand{Actor: admin(), SettlementID: string(id), Resolution: "refund_buyer"})
	require.NoError(t, err)
	require.Equal(t, "refunded", out.Status)
	require.Equal(t, 1, f.processor.Refunds())
	require.Zero(t, f.processor.Transfers())
}

func TestConcurrentOppositeResolutionsMoveMoneyOnce(t *testing.T) {
	repo := &lockstepSettlements{Repository: memory.NewSettlementRepository()}
	f := newFixture(t, func(factory *memory.Factory) { factory.SettlementsRepo = repo })
	id := f.recordSale(t)
	_, err := f.actions.OpenDispute(f.ctx, OpenDisputeCommand{Actor: buyer(), SettlementID: string(id), Reason: "Not as described"})
	require.NoError(t, err)

	resolutions := []string{"refund_buyer", "release_to_seller"}
	errs := make([]error, len(resolutions))
	repo.arm(len(resolutions))
	var wg sync.WaitGroup
	for i, resolution := range resolutions {
		wg.Add(1)
		go func(i int, resolution string) {
			defer wg.Done()
			_, errs[i] = f.actions.ResolveDispute(f.ctx, ResolveDisputeCommand{Actor: admin(), SettlementID: string(id), Resolution: resolution})
		}(i, resolution)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, domainsettlement.ErrConcurrentUpdate)
		require.True(t, apperr.Is(err, apperr.KindStateConflict))
	}
	require.Equal(t, 1, succeeded)
	require.Equal(t, 1, f.processor.Refunds()+f.processor.Transfers())

	s, err := f.unit.Settlements().ByID(f.ctx, id)
	require.NoError(t, err)
	if f.processor.Refunds() == 1 {
		require.Equal(t, domainsettlement.StatusRefunded, s.Status)
	} else {
		require.Equal(t, domainsettlement.StatusCompleted, s.Status)
	}
	require.Len(t, f.archived, 1)
}

func TestConfirmReceiptRacingDisputeMovesMoneyOnce(t *testing.T) {
	repo := &lockstepSettlements{Repository: memory.NewSettlementRepository()}
	f := newFixture(t, func(factory *memory.Factory) { factory.SettlementsRepo = repo })
	id := f.recordSale(t)

	var confirmErr, disputeErr error
	repo.arm(2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, confirmErr = f.actions.ConfirmReceipt(f.ctx, ConfirmReceiptCommand{Actor: buyer(), SettlementID: string(id)})
	}()
	go func() {
		defer wg.Done()
		_, disputeErr = f.actions.OpenDispute(f.ctx, OpenDisputeCommand{Actor: seller(), SettlementID: string(id), Reason: "Buyer kept the spare tire"})
	}()
	wg.Wait()

	require.True(t, (confirmErr == nil) != (disputeErr == nil), "exactly one action must win")
	s, err := f.unit.Settlements().ByID(f.ctx, id)
	require.NoError(t, err)
	if confirmErr == nil {
		require.True(t, apperr.Is(disputeErr, apperr.KindStateConflict))
		require.Equal(t, domainsettlement.StatusCompleted, s.Status)
		require.Equal(t, 1, f.processor.Transfers())
		return
	}
	require.True(t, apperr.Is(confirmErr, apperr.KindStateConflict))
	require.Equal(t, domainsettlement.StatusDisputed, s.Status)
	require.Zero(t, f.processor.Transfers())

	_, err = f.actions.ResolveDispute(f.ctx, ResolveDisputeCommand{Actor: admin(), SettlementID: string(id), Resolution: "refund_buyer"})
	require.NoError(t, err)
	require.Equal(t, 1, f.processor.Refunds())
	require.Zero(t, f.processor.Transfers())
}

func TestGetSettlementRestrictsToParties(t *testing.T) {
	f := newFixture(t)
	id := f.recordSale(t)
	h := &GetSettlementHandler{}

	_, err := h.Handle(f.ctx, GetSettlementQuery{Actor: policies.Actor{ID: "stranger"}, SettlementID: string(id)})
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	got, err := h.Handle(f.ctx, GetSettlementQuery{Actor: seller(), SettlementID: string(id)})
	require.NoError(t, err)
	require.Equal(t, "paid", got.Status)
}
