package listings

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/commands"
	"rigshare/internal/app/dto"
	availabilityapp "rigshare/internal/app/handlers/availability"
	pricingapp "rigshare/internal/app/handlers/pricing"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/outbox"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/uow"
	domainlistings "rigshare/internal/domain/listings"
	"rigshare/internal/domain/shared/money"
	domainuser "rigshare/internal/domain/user"
)

const (
	createListingKey    = "listings.create"
	updateScheduleKey   = "listings.update_schedule"
	updateSaleTermsKey  = "listings.update_sale"
	changeListingStatus = "listings.change_state"
)

type SalePayload struct {
	Price             string `validate:"omitempty,numeric"`
	FreightCost       string `validate:"omitempty,numeric"`
	FreightSellerPaid bool
}

type CreateListingCommand struct {
	Actor    policies.Actor
	Title    string `validate:"required,max=200"`
	Kind     string `validate:"required"`
	Currency string `validate:"omitempty,len=3"`
	Schedule dto.ScheduleConfig
	Sale     SalePayload
}

func (c CreateListingCommand) Key() string                   { return createListingKey }
func (c CreateListingCommand) Caller() policies.Actor        { return c.Actor }
func (c CreateListingCommand) RequiredRole() domainuser.Role { return domainuser.RoleHost }

type UpdateScheduleCommand struct {
	Actor     policies.Actor
	ListingID string `validate:"required"`
	Schedule  dto.ScheduleConfig
}

func (c UpdateScheduleCommand) Key() string                   { return updateScheduleKey }
func (c UpdateScheduleCommand) Caller() policies.Actor        { return c.Actor }
func (c UpdateScheduleCommand) RequiredRole() domainuser.Role { return domainuser.RoleHost }

type UpdateSaleTermsCommand struct {
	Actor     policies.Actor
	ListingID string `validate:"required"`
	Sale      SalePayload
}

func (c UpdateSaleTermsCommand) Key() string                   { return updateSaleTermsKey }
func (c UpdateSaleTermsCommand) Caller() policies.Actor        { return c.Actor }
func (c UpdateSaleTermsCommand) RequiredRole() domainuser.Role { return domainuser.RoleHost }

type ChangeListingStateCommand struct {
	Actor     policies.Actor
	ListingID string `validate:"required"`
	Archive   bool
}

func (c ChangeListingStateCommand) Key() string                   { return changeListingStatus }
func (c ChangeListingStateCommand) Caller() policies.Actor        { return c.Actor }
func (c ChangeListingStateCommand) RequiredRole() domainuser.Role { return domainuser.RoleHost }

// HostListingHandler serves the host-side listing commands.
type HostListingHandler struct {
	Outbox          outbox.Outbox
	Encoder         outbox.EventEncoder
	DefaultCurrency string
	Logger          *slog.Logger
	Clock           func() time.Time
}

func (h *HostListingHandler) Create(ctx context.Context, cmd CreateListingCommand) (*dto.Listing, error) {
	const op = "listings.create"
	unit, err := uow.MustFromContext(ctx)
	if err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = h.DefaultCurrency
	}
	schedule, err := ScheduleFromDTO(cmd.Schedule, currency)
	if err != nil {
		return nil, apperr.Validation(op, err)
	}
	sale, err := saleFromPayload(cmd.Sale, currency)
	if err != nil {
		return nil, apperr.Validation(op, err)
	}
	kind, err := domainlistings.ParseKind(cmd.Kind)
	if err != nil {
		return nil, apperr.Validation(op, err)
	}
	listing, err := domainlistings.NewListing(domainlistings.CreateListingParams{
		ID:       domainlistings.ListingID(uuid.NewString()),
		Host:     domainlistings.HostID(cmd.Actor.ID),
		Title:    cmd.Title,
		Kind:     kind,
		Currency: currency,
		Schedule: schedule,
		Sale:     sale,
		Now:      h.now(),
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return h.save(ctx, op, unit, listing, "listing created")
}

func (h *HostListingHandler) UpdateSchedule(ctx context.Context, cmd UpdateScheduleCommand) (*dto.Listing, error) {
	const op = "listings.update_schedule"
	unit, listing, err := h.owned(ctx, op, cmd.Actor, cmd.ListingID)
	if err != nil {
		return nil, err
	}
	schedule, err := ScheduleFromDTO(cmd.Schedule, listing.Currency)
	if err != nil {
		return nil, apperr.Validation(op, err)
	}
	if err := listing.UpdateSchedule(schedule, h.now()); err != nil {
		return nil, classify(op, err)
	}
	return h.save(ctx, op, unit, listing, "listing schedule updated")
}

func (h *HostListingHandler) UpdateSaleTerms(ctx context.Context, cmd UpdateSaleTermsCommand) (*dto.Listing, error) {
	const op = "listings.update_sale"
	unit, listing, err := h.owned(ctx, op, cmd.Actor, cmd.ListingID)
	if err != nil {
		return nil, err
	}
	sale, err := saleFromPayload(cmd.Sale, listing.Currency)
	if err != nil {
		return nil, apperr.Validation(op, err)
	}
	if err := listing.UpdateSaleTerms(sale, h.now()); err != nil {
		return nil, classify(op, err)
	}
	return h.save(ctx, op, unit, listing, "listing sale terms updated")
}

func (h *HostListingHandler) ChangeState(ctx context.Context, cmd ChangeListingStateCommand) (*dto.Listing, error) {
	const op = "listings.change_state"
	unit, listing, err := h.owned(ctx, op, cmd.Actor, cmd.ListingID)
	if err != nil {
		return nil, err
	}
	if cmd.Archive {
		err = listing.Archive(h.now())
	} else {
		err = listing.Activate(h.now())
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return h.save(ctx, op, unit, listing, "listing state changed")
}

func (h *HostListingHandler) owned(ctx context.Context, op string, actor policies.Actor, id string) (uow.UnitOfWork, *domainlistings.Listing, error) {
	unit, err := uow.MustFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}
	listing, err := availabilityapp.LoadListing(ctx, unit, strings.TrimSpace(id))
	if err != nil {
		return nil, nil, err
	}
	if !listing.OwnedBy(domainlistings.HostID(actor.ID)) && !actor.IsAdmin() {
		return nil, nil, apperr.Authorization(op, domainlistings.ErrNotOwned)
	}
	return unit, listing, nil
}

func (h *HostListingHandler) save(ctx context.Context, op string, unit uow.UnitOfWork, listing *domainlistings.Listing, msg string) (*dto.Listing, error) {
	if err := unit.Listings().Save(ctx, listing); err != nil {
		return nil, classify(op, err)
	}
	if err := handlersupport.FlushEvents(ctx, h.Outbox, h.Encoder, listing); err != nil {
		return nil, err
	}
	handlersupport.Logger(h.Logger).Info(msg, "listing_id", listing.ID, "host_id", listing.Host, "state", listing.State)
	out := dto.MapListing(listing)
	return &out, nil
}

func (h *HostListingHandler) now() time.Time {
	if h.Clock != nil {
		return h.Clock().UTC()
	}
	return time.Now().UTC()
}

// ScheduleFromDTO converts the wire schedule into the domain config. Blank
// rates mean the shape is not priced.
func ScheduleFromDTO(in dto.ScheduleConfig, currency string) (domainlistings.ScheduleConfig, error) {
	cfg := domainlistings.ScheduleConfig{
		HourlyEnabled:  in.HourlyEnabled,
		DailyEnabled:   in.DailyEnabled,
		MinHours:       in.MinHours,
		MaxHours:       in.MaxHours,
		BufferMinutes:  in.BufferMinutes,
		MinNoticeHours: in.MinNoticeHours,
		OperatingStart: strings.TrimSpace(in.OperatingStart),
		OperatingEnd:   strings.TrimSpace(in.OperatingEnd),
	}
	var err error
	if cfg.HourlyRate, err = optionalRate(in.HourlyRate, currency); err != nil {
		return cfg, err
	}
	if cfg.DailyRate, err = optionalRate(in.DailyRate, currency); err != nil {
		return cfg, err
	}
	if cfg.WeeklyRate, err = optionalRate(in.WeeklyRate, currency); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func optionalRate(raw *string, currency string) (*money.Money, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	m, err := pricingapp.ParseOptionalAmount(*raw, currency)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func saleFromPayload(p SalePayload, currency string) (domainlistings.SaleTerms, error) {
	terms := domainlistings.SaleTerms{FreightSellerPaid: p.FreightSellerPaid}
	price, err := optionalRate(&p.Price, currency)
	if err != nil {
		return terms, err
	}
	terms.Price = price
	if terms.FreightCost, err = pricingapp.ParseOptionalAmount(p.FreightCost, currency); err != nil {
		return terms, err
	}
	return terms, nil
}

func classify(op string, err error) error {
	if err == nil || apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	switch {
	case errors.Is(err, domainlistings.ErrNotFound):
		return apperr.NotFound(op, err)
	case errors.Is(err, domainlistings.ErrNotOwned):
		return apperr.Authorization(op, err)
	case errors.Is(err, domainlistings.ErrInvalidState),
		errors.Is(err, domainlistings.ErrConcurrentEdit):
		return apperr.Conflict(op, err)
	case errors.Is(err, domainlistings.ErrTitleRequired),
		errors.Is(err, domainlistings.ErrHostRequired),
		errors.Is(err, domainlistings.ErrInvalidKind),
		errors.Is(err, domainlistings.ErrNegativeRate),
		errors.Is(err, domainlistings.ErrHoursRange),
		errors.Is(err, money.ErrInvalidCurrency):
		return apperr.Validation(op, err)
	}
	return err
}

var _ commands.Command = CreateListingCommand{}
