package checkout

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/commands"
	"rigshare/internal/app/dto"
	availabilityapp "rigshare/internal/app/handlers/availability"
	pricingapp "rigshare/internal/app/handlers/pricing"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/uow"
	domainbooking "rigshare/internal/domain/booking"
	domaincheckout "rigshare/internal/domain/checkout"
	domainlistings "rigshare/internal/domain/listings"
	domainoffers "rigshare/internal/domain/offers"
	domainpricing "rigshare/internal/domain/pricing"
	"rigshare/internal/domain/shared/money"
	domainuser "rigshare/internal/domain/user"
)

const buildCheckoutKey = "checkout.build"

var (
	ErrAmountMismatch = errors.New("checkout: amount does not match the price")
	ErrWrongListing   = errors.New("checkout: booking belongs to another listing")
	ErrSelfPurchase   = errors.New("checkout: sellers cannot buy their own listing")
)

type BuildCheckoutCommand struct {
	Actor           policies.Actor
	Mode            string `validate:"required,oneof=rent sale"`
	ListingID       string `validate:"required"`
	BookingID       string `validate:"required_if=Mode rent"`
	Amount          string `validate:"omitempty,numeric"`
	FulfillmentType string `validate:"omitempty,oneof=pickup delivery"`
	DeliveryAddress string `validate:"required_if=FulfillmentType delivery,max=500"`
	BuyerName       string `validate:"max=200"`
	BuyerEmail      string `validate:"omitempty,email"`
	BuyerPhone      string `validate:"max=40"`
}

func (c BuildCheckoutCommand) Key() string                   { return buildCheckoutKey }
func (c BuildCheckoutCommand) Caller() policies.Actor        { return c.Actor }
func (c BuildCheckoutCommand) RequiredRole() domainuser.Role { return "" }
func (c BuildCheckoutCommand) Autocommit() bool              { return true }

type BuildCheckoutHandler struct {
	Processor policies.PaymentProcessor
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Handle prices the purchase server-side, checks that the payee can receive
// funds and only then asks the processor for a hosted payment page.
func (h *BuildCheckoutHandler) Handle(ctx context.Context, cmd BuildCheckoutCommand) (*dto.CheckoutSession, error) {
	const op = "checkout.build"
	mode, err := domaincheckout.ParseMode(cmd.Mode)
	if err != nil {
		return nil, apperr.Validation(op, err)
	}
	unit, err := uow.MustFromContext(ctx)
	if err != nil {
		return nil, err
	}
	listing, err := availabilityapp.LoadListing(ctx, unit, cmd.ListingID)
	if err != nil {
		return nil, err
	}
	payee, err := unit.Users().ByID(ctx, domainuser.ID(listing.Host))
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			return nil, apperr.NotOnboarded(op, domainuser.ErrPayoutsNotReady)
		}
		return nil, err
	}
	destination, err := payee.PayoutDestination()
	if err != nil {
		return nil, apperr.NotOnboarded(op, err)
	}

	var (
		req     domaincheckout.SessionRequest
		summary domaincheckout.Summary
		booking *domainbooking.Booking
	)
	switch mode {
	case domaincheckout.ModeRent:
		booking, req, summary, err = h.rental(ctx, unit, cmd, listing, destination)
	default:
		req, summary, err = h.sale(ctx, unit, cmd, listing)
	}
	if err != nil {
		return nil, err
	}
	if req.CustomerEmail == "" {
		req.CustomerEmail = strings.TrimSpace(cmd.BuyerEmail)
	}
	req.IdempotencyKey = domaincheckout.IdempotencyKey("checkout",
		cmd.Actor.ID, string(listing.ID), string(mode), cmd.BookingID, summary.CustomerTotal.String())

	if h.Processor == nil {
		return nil, apperr.External(op, errors.New("payment processor not configured"), false)
	}
	session, err := h.Processor.CreateSession(ctx, req)
	if err != nil {
		return nil, handlersupport.ExternalError(op, err)
	}

	if booking != nil {
		if err := booking.AttachCheckout(session.ID, h.now()); err != nil {
			return nil, apperr.Conflict(op, err)
		}
		if err := unit.Bookings().Save(ctx, booking); err != nil {
			if errors.Is(err, domainbooking.ErrConcurrentUpdate) {
				return nil, apperr.Conflict(op, err)
			}
			return nil, err
		}
	}

	handlersupport.Logger(h.Logger).Info("checkout session created",
		"session_id", session.ID,
		"listing_id", listing.ID,
		"actor_id", cmd.Actor.ID,
		"mode", mode,
		"customer_total", summary.CustomerTotal.String(),
	)
	out := dto.MapCheckoutSession(session, summary)
	return &out, nil
}

func (h *BuildCheckoutHandler) rental(
	ctx context.Context,
	unit uow.UnitOfWork,
	cmd BuildCheckoutCommand,
	listing *domainlistings.Listing,
	destination string,
) (*domainbooking.Booking, domaincheckout.SessionRequest, domaincheckout.Summary, error) {
	const op = "checkout.rent"
	booking, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(strings.TrimSpace(cmd.BookingID)))
	if err != nil {
		if errors.Is(err, domainbooking.ErrBookingNotFound) {
			err = apperr.NotFound(op, err)
		}
		return nil, domaincheckout.SessionRequest{}, domaincheckout.Summary{}, err
	}
	if booking.BuyerID != cmd.Actor.ID {
		return nil, domaincheckout.SessionRequest{}, domaincheckout.Summary{}, apperr.Authorization(op, domainbooking.ErrNotParticipant)
	}
	if booking.ListingID != listing.ID {
		return nil, domaincheckout.SessionRequest{}, domaincheckout.Summary{}, apperr.Validation(op, ErrWrongListing)
	}
	if booking.Status == domainbooking.StatusCancelled || booking.PaymentStatus != domainbooking.PaymentPending {
		return nil, domaincheckout.SessionRequest{}, domaincheckout.Summary{}, apperr.Conflict(op, domainbooking.ErrInvalidState)
	}
	split, err := domainpricing.SplitRental(booking.Total, booking.DeliveryFee)
	if err != nil {
		return nil, domaincheckout.SessionRequest{}, domaincheckout.Summary{}, apperr.Validation(op, err)
	}
	if err := matchAmount(op, cmd.Amount, split.CustomerTotal); err != nil {
		return nil, domaincheckout.SessionRequest{}, domaincheckout.Summary{}, err
	}
	md := domaincheckout.RentalMetadata{
		BookingID: string(booking.ID),
		ListingID: string(listing.ID),
		BuyerID:   booking.BuyerID,
		HostID:    booking.HostID,
	}
	req, summary := domaincheckout.RentalSession(listing.Title, destination, split, md)
	return booking, req, summary, nil
}

func (h *BuildCheckoutHandler) sale(
	ctx context.Context,
	unit uow.UnitOfWork,
	cmd BuildCheckoutCommand,
	listing *domainlistings.Listing,
) (domaincheckout.SessionRequest, domaincheckout.Summary, error) {
	const op = "checkout.sale"
	if !listing.ForSale() {
		return domaincheckout.SessionRequest{}, domaincheckout.Summary{}, apperr.Conflict(op, domainlistings.ErrNotForSale)
	}
	if string(listing.Host) == cmd.Actor.ID {
		return domaincheckout.SessionRequest{}, domaincheckout.Summary{}, apperr.Validation(op, ErrSelfPurchase)
	}
	price := *listing.Sale.Price
	var offerID string
	offer, err := unit.Offers().AcceptedFor(ctx, string(listing.ID), cmd.Actor.ID)
	switch {
	case err == nil:
		price, offerID = offer.Amount, string(offer.ID)
	case !errors.Is(err, domainoffers.ErrNotFound):
		return domaincheckout.SessionRequest{}, domaincheckout.Summary{}, err
	}
	if err := matchAmount(op, cmd.Amount, price); err != nil {
		return domaincheckout.SessionRequest{}, domaincheckout.Summary{}, err
	}
	split, err := domainpricing.SplitSale(price, listing.Sale.FreightCost, listing.Sale.FreightSellerPaid)
	if err != nil {
		return domaincheckout.SessionRequest{}, domaincheckout.Summary{}, apperr.Validation(op, err)
	}
	fulfillment := strings.TrimSpace(cmd.FulfillmentType)
	if fulfillment == "" {
		fulfillment = "pickup"
	}
	md := domaincheckout.SaleMetadata{
		ListingID:       string(listing.ID),
		BuyerID:         cmd.Actor.ID,
		SellerID:        string(listing.Host),
		OfferID:         offerID,
		FulfillmentType: fulfillment,
		DeliveryAddress: strings.TrimSpace(cmd.DeliveryAddress),
		BuyerName:       strings.TrimSpace(cmd.BuyerName),
		BuyerEmail:      strings.TrimSpace(cmd.BuyerEmail),
		BuyerPhone:      strings.TrimSpace(cmd.BuyerPhone),
	}
	req, summary := domaincheckout.SaleSession(listing.Title, split, md)
	return req, summary, nil
}

// matchAmount checks a client-supplied amount against the server price. A
// blank amount is accepted.
func matchAmount(op, raw string, want money.Money) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	got, err := pricingapp.ParseOptionalAmount(raw, want.Currency)
	if err != nil {
		return apperr.Validation(op, err)
	}
	if got.Amount != want.Amount {
		return apperr.Validation(op, ErrAmountMismatch)
	}
	return nil
}

func (h *BuildCheckoutHandler) now() time.Time {
	if h.Clock != nil {
		return h.Clock().UTC()
	}
	return time.Now().UTC()
}

var _ commands.Handler[BuildCheckoutCommand, *dto.CheckoutSession] = (*BuildCheckoutHandler)(nil)
