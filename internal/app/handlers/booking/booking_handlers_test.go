package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rigshare/internal/app/apperr"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/notify"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/uow"
	domainavailability "rigshare/internal/domain/availability"
	domainbooking "rigshare/internal/domain/booking"
	"rigshare/internal/domain/checkout"
	domainlistings "rigshare/internal/domain/listings"
	"rigshare/internal/domain/shared/daterange"
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

func (r *recordingNotifier) templates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n.Template+"->"+n.RecipientID)
	}
	return out
}

type fixture struct {
	ctx       context.Context
	unit      uow.UnitOfWork
	processor *memory.PaymentProcessor
	box       *memory.Outbox
	notes     *recordingNotifier
	request   *RequestBookingHandler
	cancel    *CancelBookingHandler
	host      *HostTransitionHandler
	confirm   *ConfirmRentalPaymentHandler
	reconcile *ReconcileRefundsHandler
}

// racingBookings bumps the stored row right before a refund outcome is
// saved, the way a concurrent webhook write would.
type racingBookings struct {
	domainbooking.Repository
	raced bool
}

func (r *racingBookings) Save(ctx context.Context, b *domainbooking.Booking) error {
	if !r.raced && b.Refund.State != domainbooking.RefundNone {
		r.raced = true
		latest, err := r.Repository.ByID(ctx, b.ID)
		if err != nil {
			return err
		}
		latest.UpdatedAt = latest.UpdatedAt.Add(time.Second)
		if err := r.Repository.Save(ctx, latest); err != nil {
			return err
		}
	}
	return r.Repository.Save(ctx, b)
}

func newFixture(t *testing.T, opts ...func(*memory.Factory)) *fixture {
	t.Helper()
	factory := memory.NewFactory()
	for _, opt := range opts {
		opt(&factory)
	}
	unit, err := factory.Begin(context.Background(), uow.TxOptions{})
	require.NoError(t, err)

	rate := money.Must(5000, "USD")
	daily := money.Must(30000, "USD")
	listing, err := domainlistings.NewListing(domainlistings.CreateListingParams{
		ID:       "lst-1",
		Host:     "host-1",
		Title:    "Taco truck",
		Kind:     domainlistings.KindFoodTruck,
		Currency: "USD",
		Schedule: domainlistings.ScheduleConfig{
			HourlyRate:     &rate,
			DailyRate:      &daily,
			HourlyEnabled:  true,
			DailyEnabled:   true,
			MinHours:       1,
			OperatingStart: "08:00",
			OperatingEnd:   "20:00",
		},
		Now: fixedNow,
	})
	require.NoError(t, err)
	require.NoError(t, unit.Listings().Save(context.Background(), listing))

	clock := func() time.Time { return fixedNow }
	f := &fixture{
		ctx:       uow.ContextWithUnitOfWork(context.Background(), unit),
		unit:      unit,
		processor: memory.NewPaymentProcessor(),
		box:       memory.NewOutbox(nil),
		notes:     &recordingNotifier{},
	}
	best := &notify.BestEffort{Notifier: f.notes}
	f.request = &RequestBookingHandler{
		Resolver: domainavailability.Resolver{Now: clock},
		Outbox:   f.box,
		Notify:   best,
		Clock:    clock,
	}
	f.cancel = &CancelBookingHandler{Processor: f.processor, Outbox: f.box, Notify: best, Clock: clock}
	f.host = &HostTransitionHandler{Outbox: f.box, Notify: best}
	f.confirm = &ConfirmRentalPaymentHandler{Processor: f.processor, Outbox: f.box, Notify: best, Clock: clock}
	f.reconcile = &ReconcileRefundsHandler{Processor: f.processor, Outbox: f.box, Clock: clock}
	return f
}

func renter(id string) policies.Actor {
	return policies.Actor{ID: id, Roles: []domainuser.Role{domainuser.RoleRenter}}
}

func hostActor() policies.Actor {
	return policies.Actor{ID: "host-1", Roles: []domainuser.Role{domainuser.RoleHost}}
}

func (f *fixture) requestHourly(t *testing.T, buyer, start, end string) string {
	t.Helper()
	out, err := f.request.Handle(f.ctx, RequestBookingCommand{
		Actor:     renter(buyer),
		ListingID: "lst-1",
		StartDate: "2026-05-10",
		StartTime: start,
		EndTime:   end,
		Hourly:    true,
	})
	require.NoError(t, err)
	return out.ID
}

func (f *fixture) markPaid(t *testing.T, id string) {
	t.Helper()
	b, err := f.unit.Bookings().ByID(f.ctx, domainbooking.BookingID(id))
	require.NoError(t, err)
	require.True(t, b.MarkPaid("pi_test", fixedNow))
	require.NoError(t, f.unit.Bookings().Save(f.ctx, b))
}

func TestRequestBookingPricesAndNotifiesHost(t *testing.T) {
	f := newFixture(t)
	out, err := f.request.Handle(f.ctx, RequestBookingCommand{
		Actor:     renter("buyer-1"),
		ListingID: "lst-1",
		StartDate: "2026-05-10",
		StartTime: "10:00",
		EndTime:   "12:00",
		Hourly:    true,
	})
	require.NoError(t, err)
	require.Equal(t, "pending", out.Status)
	require.Equal(t, "100.00", out.Total)
	require.Equal(t, []string{"booking_requested->host-1"}, f.notes.templates())
	require.Len(t, f.box.Pending(), 1)
	require.Equal(t, "booking.requested", f.box.Pending()[0].Name)
}

func TestRequestBookingRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	f.requestHourly(t, "buyer-1", "10:00", "12:00")

	_, err := f.request.Handle(f.ctx, RequestBookingCommand{
		Actor: renter("buyer-2"), ListingID: "lst-1", StartDate: "2026-05-10", StartTime: "11:00", EndTime: "13:00", Hourly: true,
	})
	require.True(t, apperr.Is(err, apperr.KindStateConflict))

	_, err = f.request.Handle(f.ctx, RequestBookingCommand{
		Actor: renter("buyer-2"), ListingID: "lst-1", StartDate: "2026-05-10",
	})
	require.True(t, apperr.Is(err, apperr.KindStateConflict))
}

func TestRequestBookingLosesClaimRace(t *testing.T) {
	f := newFixture(t)
	// Another request passed the availability check and claimed first.
	require.NoError(t, f.unit.Claims().Claim(f.ctx, "lst-1", "other", []string{"2026-05-10#h11"}))

	_, err := f.request.Handle(f.ctx, RequestBookingCommand{
		Actor: renter("buyer-1"), ListingID: "lst-1", StartDate: "2026-05-10", StartTime: "10:00", EndTime: "12:00", Hourly: true,
	})
	require.ErrorIs(t, err, domainavailability.ErrSlotTaken)
	require.True(t, apperr.Is(err, apperr.KindStateConflict))

	list, err := f.unit.Bookings().ListByBuyer(f.ctx, "buyer-1")
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestRequestBookingClaimsBufferHours(t *testing.T) {
	f := newFixture(t)
	listing, err := f.unit.Listings().ByID(f.ctx, "lst-1")
	require.NoError(t, err)
	cfg := listing.Schedule
	cfg.BufferMinutes = 60
	require.NoError(t, listing.UpdateSchedule(cfg, fixedNow))
	require.NoError(t, f.unit.Listings().Save(f.ctx, listing))

	// A 10:00-12:00 request claimed first but is not saved yet, so the
	// availability check of the next request cannot see it.
	day, err := daterange.ParseDay("2026-05-10")
	require.NoError(t, err)
	first := domainavailability.Occupancy{
		Reference: "other",
		Dates:     daterange.Single(day),
		IsHourly:  true,
		Start:     daterange.MustTime("10:00"),
		End:       daterange.MustTime("12:00"),
	}
	require.NoError(t, f.unit.Claims().Claim(f.ctx, "lst-1", "other", domainavailability.ClaimKeys(first, cfg.BufferHours())))

	_, err = f.request.Handle(f.ctx, RequestBookingCommand{
		Actor: renter("buyer-1"), ListingID: "lst-1", StartDate: "2026-05-10", StartTime: "12:00", EndTime: "14:00", Hourly: true,
	})
	require.ErrorIs(t, err, domainavailability.ErrSlotTaken)

	f.requestHourly(t, "buyer-1", "13:00", "15:00")
}

func TestRequestBookingValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		cmd  RequestBookingCommand
		kind apperr.Kind
	}{
		{"missing times", RequestBookingCommand{StartDate: "2026-05-10", Hourly: true}, apperr.KindValidation},
		{"past date", RequestBookingCommand{StartDate: "2026-05-01"}, apperr.KindValidation},
		{"self booking", RequestBookingCommand{StartDate: "2026-05-11"}, apperr.KindValidation},
		{"unknown listing", RequestBookingCommand{ListingID: "nope", StartDate: "2026-05-11"}, apperr.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := tc.cmd
			if cmd.ListingID == "" {
				cmd.ListingID = "lst-1"
			}
			cmd.Actor = renter("buyer-1")
			if tc.name == "self booking" {
				cmd.Actor = hostActor()
			}
			_, err := f.request.Handle(f.ctx, cmd)
			require.True(t, apperr.Is(err, tc.kind), "got %v", err)
		})
	}
}

func TestHostCancelsPaidBookingWithRefund(t *testing.T) {
	f := newFixture(t)
	id := f.requestHourly(t, "buyer-1", "10:00", "12:00")
	f.markPaid(t, id)

	out, err := f.cancel.Handle(f.ctx, CancelBookingCommand{Actor: hostActor(), BookingID: id, Reason: "truck broke down"})
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, "cancelled", out.Status)
	require.Equal(t, "refunded", out.PaymentStatus)
	require.Equal(t, "host", out.InitiatedBy)
	require.True(t, out.Refund.Succeeded)
	require.Equal(t, 1, f.processor.Refunds())
	require.ElementsMatch(t, []string{
		"booking_requested->host-1",
		"booking_cancelled->buyer-1",
		"booking_cancelled->host-1",
	}, f.notes.templates())

	// Released hours are bookable again.
	f.requestHourly(t, "buyer-2", "10:00", "12:00")
}

func TestCancelRefundFailureStillCancelsAndReconciles(t *testing.T) {
	f := newFixture(t)
	id := f.requestHourly(t, "buyer-1", "10:00", "12:00")
	f.markPaid(t, id)
	f.processor.RefundErr = errors.New("processor unavailable")

	out, err := f.cancel.Handle(f.ctx, CancelBookingCommand{Actor: hostActor(), BookingID: id})
	require.NoError(t, err)
	require.True(t, out.Success)
	require.Equal(t, "cancelled", out.Status)
	require.Equal(t, "paid", out.PaymentStatus)
	require.True(t, out.Refund.Attempted)
	require.False(t, out.Refund.Succeeded)
	require.Contains(t, out.Refund.Error, "processor unavailable")

	pending, err := f.unit.Bookings().PendingRefunds(f.ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	f.processor.RefundErr = nil
	res, err := f.reconcile.Handle(f.ctx, ReconcileRefundsCommand{})
	require.NoError(t, err)
	require.Equal(t, ReconcileResult{Attempted: 1, Succeeded: 1}, res)

	b, err := f.unit.Bookings().ByID(f.ctx, domainbooking.BookingID(id))
	require.NoError(t, err)
	require.Equal(t, domainbooking.PaymentRefunded, b.PaymentStatus)
	require.Equal(t, 2, b.Refund.Attempts)
	require.Equal(t, 1, f.processor.Refunds())
}

func TestCancelWithoutRefundRequest(t *testing.T) {
	f := newFixture(t)
	id := f.requestHourly(t, "buyer-1", "10:00", "12:00")
	f.markPaid(t, id)
	skip := false

	out, err := f.cancel.Handle(f.ctx, CancelBookingCommand{Actor: hostActor(), BookingID: id, ProcessRefund: &skip})
	require.NoError(t, err)
	require.False(t, out.Refund.Attempted)
	require.Zero(t, f.processor.Refunds())
}

func TestCancelPermissions(t *testing.T) {
	f := newFixture(t)
	id := f.requestHourly(t, "buyer-1", "10:00", "12:00")

	_, err := f.cancel.Handle(f.ctx, CancelBookingCommand{Actor: renter("stranger"), BookingID: id})
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = f.host.Approve(f.ctx, ApproveBookingCommand{Actor: hostActor(), BookingID: id})
	require.NoError(t, err)

	_, err = f.cancel.Handle(f.ctx, CancelBookingCommand{Actor: renter("buyer-1"), BookingID: id})
	require.ErrorIs(t, err, domainbooking.ErrBuyerCannotCancel)
	require.True(t, apperr.Is(err, apperr.KindStateConflict))

	admin := policies.Actor{ID: "admin-1", Roles: []domainuser.Role{domainuser.RoleAdmin}}
	out, err := f.cancel.Handle(f.ctx, CancelBookingCommand{Actor: admin, BookingID: id})
	require.NoError(t, err)
	require.Equal(t, "admin", out.InitiatedBy)
	require.False(t, out.Refund.Attempted)

	_, err = f.cancel.Handle(f.ctx, CancelBookingCommand{Actor: admin, BookingID: id})
	require.ErrorIs(t, err, domainbooking.ErrAlreadyCancelled)
}

func TestHostTransitions(t *testing.T) {
	f := newFixture(t)
	id := f.requestHourly(t, "buyer-1", "10:00", "12:00")

	_, err := f.host.Approve(f.ctx, ApproveBookingCommand{Actor: policies.Actor{ID: "buyer-1", Roles: []domainuser.Role{domainuser.RoleHost}}, BookingID: id})
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = f.host.Complete(f.ctx, CompleteBookingCommand{Actor: hostActor(), BookingID: id})
	require.True(t, apperr.Is(err, apperr.KindStateConflict))

	out, err := f.host.Approve(f.ctx, ApproveBookingCommand{Actor: hostActor(), BookingID: id})
	require.NoError(t, err)
	require.Equal(t, "approved", out.Status)

	out, err = f.host.Complete(f.ctx, CompleteBookingCommand{Actor: hostActor(), BookingID: id})
	require.NoError(t, err)
	require.Equal(t, "completed", out.Status)
}

func TestConfirmRentalPaymentIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := f.requestHourly(t, "buyer-1", "10:00", "12:00")
	md := checkout.RentalMetadata{BookingID: id, ListingID: "lst-1", BuyerID: "buyer-1", HostID: "host-1"}
	sess, err := f.processor.CreateSession(f.ctx, checkout.SessionRequest{Mode: checkout.ModeRent, Amount: money.Must(11290, "USD"), Metadata: md.Encode()})
	require.NoError(t, err)

	_, err = f.confirm.Handle(f.ctx, ConfirmRentalPaymentCommand{SessionID: sess.ID})
	require.ErrorIs(t, err, handlersupport.ErrPaymentIncomplete)

	_, err = f.processor.Complete(sess.ID)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		out, err := f.confirm.Handle(f.ctx, ConfirmRentalPaymentCommand{SessionID: sess.ID})
		require.NoError(t, err)
		require.Equal(t, id, out.BookingID)
	}

	b, err := f.unit.Bookings().ByID(f.ctx, domainbooking.BookingID(id))
	require.NoError(t, err)
	require.Equal(t, domainbooking.PaymentPaid, b.PaymentStatus)
	paid := 0
	for _, rec := range f.box.Pending() {
		if rec.Name == "booking.paid" {
			paid++
		}
	}
	require.Equal(t, 1, paid)
}

func TestListBookingsByRole(t *testing.T) {
	f := newFixture(t)
	f.requestHourly(t, "buyer-1", "10:00", "12:00")
	f.requestHourly(t, "buyer-2", "14:00", "16:00")
	h := &ListBookingsHandler{}

	mine, err := h.Handle(f.ctx, ListBookingsQuery{Actor: renter("buyer-1")})
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)

	hosted, err := h.Handle(f.ctx, ListBookingsQuery{Actor: hostActor(), AsHost: true, Status: "pending"})
	require.NoError(t, err)
	require.Len(t, hosted.Items, 2)
}

func TestCancelKeepsRefundOutcomeAfterConcurrentWrite(t *testing.T) {
	repo := &racingBookings{Repository: memory.NewBookingRepository()}
	f := newFixture(t, func(factory *memory.Factory) { factory.BookingRepo = repo })

	refunded := f.requestHourly(t, "buyer-1", "10:00", "12:00")
	f.markPaid(t, refunded)
	out, err := f.cancel.Handle(f.ctx, CancelBookingCommand{Actor: hostActor(), BookingID: refunded, Reason: "generator failed"})
	require.NoError(t, err)
	require.True(t, repo.raced)
	require.True(t, out.Refund.Succeeded)
	require.Equal(t, 1, f.processor.Refunds())

	b, err := f.unit.Bookings().ByID(f.ctx, domainbooking.BookingID(refunded))
	require.NoError(t, err)
	require.Equal(t, domainbooking.StatusCancelled, b.Status)
	require.Equal(t, domainbooking.PaymentRefunded, b.PaymentStatus)
	require.Equal(t, domainbooking.RefundSucceeded, b.Refund.State)

	failed := f.requestHourly(t, "buyer-2", "14:00", "16:00")
	f.markPaid(t, failed)
	repo.raced = false
	f.processor.RefundErr = errors.New("processor unavailable")
	out, err = f.cancel.Handle(f.ctx, CancelBookingCommand{Actor: hostActor(), BookingID: failed})
	require.NoError(t, err)
	require.True(t, repo.raced)
	require.False(t, out.Refund.Succeeded)

	pending, err := f.unit.Bookings().PendingRefunds(f.ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, domainbooking.BookingID(failed), pending[0].ID)
}
