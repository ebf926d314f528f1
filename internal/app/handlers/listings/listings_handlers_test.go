package listings

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/dto"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/uow"
	domainlistings "rigshare/internal/domain/listings"
	"rigshare/internal/domain/shared/daterange"
	domainuser "rigshare/internal/domain/user"
	"rigshare/internal/infra/storage/memory"
)

var fixedNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func host(id string) policies.Actor {
	return policies.Actor{ID: id, Roles: []domainuser.Role{domainuser.RoleHost}}
}

func strptr(s string) *string { return &s }

type fixture struct {
	ctx      context.Context
	unit     uow.UnitOfWork
	factory  memory.Factory
	box      *memory.Outbox
	handler  *HostListingHandler
	blackout *BlackoutHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	factory := memory.NewFactory()
	unit, err := factory.Begin(context.Background(), uow.TxOptions{})
	require.NoError(t, err)
	clock := func() time.Time { return fixedNow }
	box := memory.NewOutbox(nil)
	return &fixture{
		ctx:      uow.ContextWithUnitOfWork(context.Background(), unit),
		unit:     unit,
		factory:  factory,
		box:      box,
		handler:  &HostListingHandler{Outbox: box, DefaultCurrency: "USD", Clock: clock},
		blackout: &BlackoutHandler{Outbox: box, Clock: clock},
	}
}

func (f *fixture) create(t *testing.T, owner string) *dto.Listing {
	t.Helper()
	out, err := f.handler.Create(f.ctx, CreateListingCommand{
		Actor: host(owner),
		Title: "  Taco truck ",
		Kind:  "Food_Truck",
		Schedule: dto.ScheduleConfig{
			HourlyRate:     strptr("50"),
			HourlyEnabled:  true,
			MinHours:       2,
			OperatingStart: "08:00",
			OperatingEnd:   "20:00",
		},
		Sale: SalePayload{Price: "45000", FreightCost: "750"},
	})
	require.NoError(t, err)
	return out
}

func TestCreateListing(t *testing.T) {
	f := newFixture(t)
	out := f.create(t, "host-1")

	require.Equal(t, "Taco truck", out.Title)
	require.Equal(t, "food_truck", out.Kind)
	require.Equal(t, "USD", out.Currency)
	require.Equal(t, "ACTIVE", out.State)
	require.Equal(t, "50.00", *out.Schedule.HourlyRate)
	require.Nil(t, out.Schedule.DailyRate)
	require.Equal(t, "45000.00", *out.SalePrice)
	require.Equal(t, "750.00", out.FreightCost)

	stored, err := f.unit.Listings().ByID(f.ctx, domainlistings.ListingID(out.ID))
	require.NoError(t, err)
	require.Equal(t, domainlistings.HostID("host-1"), stored.Host)

	pending := f.box.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, "listing.created", pending[0].Name)
}

func TestCreateListingRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		cmd  CreateListingCommand
	}{
		{"kind", CreateListingCommand{Actor: host("h"), Title: "x", Kind: "boat"}},
		{"title", CreateListingCommand{Actor: host("h"), Title: "  ", Kind: "trailer"}},
		{"negative rate", CreateListingCommand{Actor: host("h"), Title: "x", Kind: "trailer",
			Schedule: dto.ScheduleConfig{HourlyRate: strptr("-5")}}},
		{"hours", CreateListingCommand{Actor: host("h"), Title: "x", Kind: "trailer",
			Schedule: dto.ScheduleConfig{MinHours: 6, MaxHours: 2}}},
		{"sale price", CreateListingCommand{Actor: host("h"), Title: "x", Kind: "trailer",
			Sale: SalePayload{Price: "abc"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.handler.Create(f.ctx, tc.cmd)
			require.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}
}

func TestUpdateScheduleRequiresOwner(t *testing.T) {
	f := newFixture(t)
	out := f.create(t, "host-1")
	cfg := dto.ScheduleConfig{DailyRate: strptr("300"), DailyEnabled: true}

	_, err := f.handler.UpdateSchedule(f.ctx, UpdateScheduleCommand{Actor: host("host-2"), ListingID: out.ID, Schedule: cfg})
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	updated, err := f.handler.UpdateSchedule(f.ctx, UpdateScheduleCommand{Actor: host("host-1"), ListingID: out.ID, Schedule: cfg})
	require.NoError(t, err)
	require.True(t, updated.Schedule.DailyEnabled)
	require.Equal(t, "300.00", *updated.Schedule.DailyRate)
	require.Nil(t, updated.Schedule.HourlyRate)
}

func TestSaleTermsAndState(t *testing.T) {
	f := newFixture(t)
	out := f.create(t, "host-1")

	updated, err := f.handler.UpdateSaleTerms(f.ctx, UpdateSaleTermsCommand{
		Actor: host("host-1"), ListingID: out.ID, Sale: SalePayload{},
	})
	require.NoError(t, err)
	require.Nil(t, updated.SalePrice)

	archived, err := f.handler.ChangeState(f.ctx, ChangeListingStateCommand{Actor: host("host-1"), ListingID: out.ID, Archive: true})
	require.NoError(t, err)
	require.Equal(t, "ARCHIVED", archived.State)

	_, err = f.handler.UpdateSchedule(f.ctx, UpdateScheduleCommand{Actor: host("host-1"), ListingID: out.ID})
	require.True(t, apperr.Is(err, apperr.KindStateConflict))

	active, err := f.handler.ChangeState(f.ctx, ChangeListingStateCommand{Actor: host("host-1"), ListingID: out.ID})
	require.NoError(t, err)
	require.Equal(t, "ACTIVE", active.State)
}

func TestBlackoutsRecordEvents(t *testing.T) {
	f := newFixture(t)
	out := f.create(t, "host-1")

	res, err := f.blackout.BlockDate(f.ctx, BlockDateCommand{Actor: host("host-1"), ListingID: out.ID, Date: "2026-05-12"})
	require.NoError(t, err)
	require.True(t, res.Blocked)

	slot, err := f.blackout.BlockSlot(f.ctx, BlockSlotCommand{
		Actor: host("host-1"), ListingID: out.ID, Date: "2026-05-13", Start: "10:00", End: "12:30",
	})
	require.NoError(t, err)
	require.Equal(t, "10:00", slot.Start)

	rng, err := daterange.New(daterange.NewDay(2026, time.May, 12), daterange.NewDay(2026, time.May, 13))
	require.NoError(t, err)
	got, err := f.unit.Availability().Blackouts(f.ctx, domainlistings.ListingID(out.ID), rng)
	require.NoError(t, err)
	require.Len(t, got.Dates, 1)
	require.Len(t, got.Slots, 1)

	_, err = f.blackout.BlockDate(f.ctx, BlockDateCommand{Actor: host("host-1"), ListingID: out.ID, Date: "2026-05-12", Remove: true})
	require.NoError(t, err)
	got, err = f.unit.Availability().Blackouts(f.ctx, domainlistings.ListingID(out.ID), rng)
	require.NoError(t, err)
	require.Empty(t, got.Dates)

	var names []string
	for _, rec := range f.box.Pending() {
		names = append(names, rec.Name)
	}
	require.Equal(t, []string{
		"listing.created",
		"availability.blackout_changed",
		"availability.blackout_changed",
		"availability.blackout_changed",
	}, names)
}

func TestBlackoutValidation(t *testing.T) {
	f := newFixture(t)
	out := f.create(t, "host-1")

	_, err := f.blackout.BlockSlot(f.ctx, BlockSlotCommand{
		Actor: host("host-1"), ListingID: out.ID, Date: "2026-05-13", Start: "12:00", End: "10:00",
	})
	require.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.blackout.BlockDate(f.ctx, BlockDateCommand{Actor: host("host-9"), ListingID: out.ID, Date: "2026-05-13"})
	require.True(t, apperr.Is(err, apperr.KindAuthorization))

	_, err = f.blackout.BlockDate(f.ctx, BlockDateCommand{Actor: host("host-1"), ListingID: "missing", Date: "2026-05-13"})
	require.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestQueries(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, "host-1")
	f.create(t, "host-2")
	_, err := f.handler.ChangeState(f.ctx, ChangeListingStateCommand{Actor: host("host-1"), ListingID: first.ID, Archive: true})
	require.NoError(t, err)
	f.create(t, "host-1")

	list := &ListHostListingsHandler{UoWFactory: f.factory}
	all, err := list.Handle(context.Background(), ListHostListingsQuery{Actor: host("host-1")})
	require.NoError(t, err)
	require.Len(t, all.Items, 2)

	active, err := list.Handle(context.Background(), ListHostListingsQuery{Actor: host("host-1"), ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active.Items, 1)

	get := &GetListingHandler{UoWFactory: f.factory}
	got, err := get.Handle(context.Background(), GetListingQuery{ListingID: first.ID})
	require.NoError(t, err)
	require.Equal(t, "ARCHIVED", got.State)

	_, err = get.Handle(context.Background(), GetListingQuery{ListingID: "nope"})
	require.True(t, apperr.Is(err, apperr.KindNotFound))
}
