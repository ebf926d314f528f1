package pricing

import (
	"context"
	"strings"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/dto"
	availabilityapp "rigshare/internal/app/handlers/availability"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/queries"
	"rigshare/internal/app/uow"
	domainavailability "rigshare/internal/domain/availability"
	domainbooking "rigshare/internal/domain/booking"
	domainlistings "rigshare/internal/domain/listings"
	domainpricing "rigshare/internal/domain/pricing"
	"rigshare/internal/domain/shared/money"
)

const quoteKey = "pricing.quote"

type QuoteQuery struct {
	ListingID   string `validate:"required"`
	StartDate   string `validate:"required"`
	EndDate     string
	StartTime   string
	EndTime     string
	Hourly      bool
	DeliveryFee string
}

func (q QuoteQuery) Key() string { return quoteKey }

type QuoteHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *QuoteHandler) Handle(ctx context.Context, q QuoteQuery) (dto.RentalQuote, error) {
	req, err := domainbooking.ParseRequest(q.StartDate, q.EndDate, q.StartTime, q.EndTime, q.Hourly)
	if err != nil {
		return dto.RentalQuote{}, apperr.Validation("pricing.quote", err)
	}
	unit, execCtx, cleanup, err := handlersupport.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.RentalQuote{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	listing, err := availabilityapp.LoadListing(execCtx, unit, q.ListingID)
	if err != nil {
		return dto.RentalQuote{}, err
	}
	delivery, err := ParseOptionalAmount(q.DeliveryFee, listing.Currency)
	if err != nil {
		return dto.RentalQuote{}, apperr.Validation("pricing.quote", err)
	}
	quote, split, err := PriceRequest(listing, req, delivery)
	if err != nil {
		return dto.RentalQuote{}, err
	}
	return dto.MapRentalQuote(string(listing.ID), quote, split), nil
}

// PriceRequest prices a rental request and splits it into fees.
func PriceRequest(listing *domainlistings.Listing, req domainavailability.Request, delivery money.Money) (domainpricing.Quote, domainpricing.RentalSplit, error) {
	shape, units := domainpricing.ShapeDaily, req.Dates.Days()
	if req.IsHourly {
		shape, units = domainpricing.ShapeHourly, req.Hours()
	}
	quote, err := domainpricing.QuoteRental(listing.RateCard(), shape, units)
	if err != nil {
		return domainpricing.Quote{}, domainpricing.RentalSplit{}, apperr.Validation("pricing.quote", err)
	}
	split, err := domainpricing.SplitRental(quote.Base, delivery)
	if err != nil {
		return domainpricing.Quote{}, domainpricing.RentalSplit{}, apperr.Validation("pricing.quote", err)
	}
	return quote, split, nil
}

// ParseOptionalAmount parses a major-unit amount, treating blank as zero.
func ParseOptionalAmount(raw, currency string) (money.Money, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return money.Zero(currency), nil
	}
	m, err := money.Parse(raw, currency)
	if err != nil {
		return money.Money{}, err
	}
	if m.IsNegative() {
		return money.Money{}, domainpricing.ErrNegativeAmount
	}
	return m, nil
}

var _ queries.Handler[QuoteQuery, dto.RentalQuote] = (*QuoteHandler)(nil)
