package offers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/dto"
	availabilityapp "rigshare/internal/app/handlers/availability"
	pricingapp "rigshare/internal/app/handlers/pricing"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/notify"
	"rigshare/internal/app/outbox"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/uow"
	domainlistings "rigshare/internal/domain/listings"
	domainoffers "rigshare/internal/domain/offers"
	"rigshare/internal/domain/shared/money"
	domainuser "rigshare/internal/domain/user"
)

const (
	makeOfferKey    = "offers.make"
	respondOfferKey = "offers.respond"
)

type MakeOfferCommand struct {
	Actor     policies.Actor
	ListingID string `validate:"required"`
	Amount    string `validate:"required,numeric"`
	Message   string `validate:"max=1000"`
}

func (c MakeOfferCommand) Key() string                   { return makeOfferKey }
func (c MakeOfferCommand) Caller() policies.Actor        { return c.Actor }
func (c MakeOfferCommand) RequiredRole() domainuser.Role { return "" }

// Offer responses.
const (
	ActionCounter = "counter"
	ActionAccept  = "accept"
	ActionDecline = "decline"
	ActionCancel  = "cancel"
)

type RespondOfferCommand struct {
	Actor   policies.Actor
	OfferID string `validate:"required"`
	Action  string `validate:"required,oneof=counter accept decline cancel"`
	Amount  string `validate:"required_if=Action counter,omitempty,numeric"`
}

func (c RespondOfferCommand) Key() string                   { return respondOfferKey }
func (c RespondOfferCommand) Caller() policies.Actor        { return c.Actor }
func (c RespondOfferCommand) RequiredRole() domainuser.Role { return "" }

type Handler struct {
	Outbox  outbox.Outbox
	Encoder outbox.EventEncoder
	Notify  *notify.BestEffort
	Logger  *slog.Logger
	Clock   func() time.Time
}

func (h *Handler) Make(ctx context.Context, cmd MakeOfferCommand) (*dto.Offer, error) {
	const op = "offers.make"
	unit, err := uow.MustFromContext(ctx)
	if err != nil {
		return nil, err
	}
	listing, err := availabilityapp.LoadListing(ctx, unit, strings.TrimSpace(cmd.ListingID))
	if err != nil {
		return nil, err
	}
	if !listing.ForSale() {
		return nil, apperr.Conflict(op, domainlistings.ErrNotForSale)
	}
	amount, err := pricingapp.ParseOptionalAmount(cmd.Amount, listing.Currency)
	if err != nil {
		return nil, apperr.Validation(op, err)
	}
	offer, err := domainoffers.NewOffer(domainoffers.CreateParams{
		ID:        domainoffers.ID(uuid.NewString()),
		ListingID: string(listing.ID),
		BuyerID:   cmd.Actor.ID,
		SellerID:  string(listing.Host),
		Amount:    amount,
		Message:   strings.TrimSpace(cmd.Message),
		Now:       h.now(),
	})
	if err != nil {
		return nil, classify(op, err)
	}
	if err := unit.Offers().Save(ctx, offer); err != nil {
		return nil, classify(op, err)
	}
	return h.finish(ctx, offer, offer.SellerID)
}

func (h *Handler) Respond(ctx context.Context, cmd RespondOfferCommand) (*dto.Offer, error) {
	const op = "offers.respond"
	unit, err := uow.MustFromContext(ctx)
	if err != nil {
		return nil, err
	}
	offer, err := unit.Offers().ByID(ctx, domainoffers.ID(strings.TrimSpace(cmd.OfferID)))
	if err != nil {
		return nil, classify(op, err)
	}
	actor := cmd.Actor.ID
	if actor != offer.BuyerID && actor != offer.SellerID {
		return nil, apperr.Authorization(op, domainoffers.ErrWrongParty)
	}
	now := h.now()
	switch cmd.Action {
	case ActionCounter:
		var amount money.Money
		amount, err = pricingapp.ParseOptionalAmount(cmd.Amount, offer.Amount.Currency)
		if err != nil {
			return nil, apperr.Validation(op, err)
		}
		err = offer.Counter(actor, amount, now)
	case ActionAccept:
		err = offer.Accept(actor, now)
	case ActionDecline:
		err = offer.Decline(actor, now)
	case ActionCancel:
		err = offer.Cancel(actor, now)
	default:
		return nil, apperr.Invalid(op, "unknown offer action "+cmd.Action)
	}
	if err != nil {
		return nil, classify(op, err)
	}
	if err := unit.Offers().Save(ctx, offer); err != nil {
		return nil, classify(op, err)
	}
	other := offer.SellerID
	if actor == offer.SellerID {
		other = offer.BuyerID
	}
	return h.finish(ctx, offer, other)
}

func (h *Handler) finish(ctx context.Context, offer *domainoffers.Offer, recipient string) (*dto.Offer, error) {
	if err := handlersupport.FlushEvents(ctx, h.Outbox, h.Encoder, offer); err != nil {
		return nil, err
	}
	h.Notify.Send(ctx, policies.Notification{
		Template:    policies.TemplateOfferUpdated,
		RecipientID: recipient,
		Subject:     "Offer " + string(offer.Status),
		Data:        map[string]string{"offer_id": string(offer.ID), "listing_id": offer.ListingID, "amount": offer.Amount.String(), "status": string(offer.Status)},
		DedupeKey:   "offer:" + string(offer.ID) + ":" + string(offer.Status) + ":" + offer.Amount.String(),
	})
	handlersupport.Logger(h.Logger).Info("offer updated", "offer_id", offer.ID, "listing_id", offer.ListingID, "status", offer.Status)
	out := dto.MapOffer(offer)
	return &out, nil
}

func (h *Handler) now() time.Time {
	if h.Clock != nil {
		return h.Clock().UTC()
	}
	return time.Now().UTC()
}

func classify(op string, err error) error {
	if err == nil || apperr.KindOf(err) != apperr.KindUnknown {
		return err
	}
	switch {
	case errors.Is(err, domainoffers.ErrNotFound):
		return apperr.NotFound(op, err)
	case errors.Is(err, domainoffers.ErrWrongParty):
		return apperr.Authorization(op, err)
	case errors.Is(err, domainoffers.ErrNotOpen),
		errors.Is(err, domainoffers.ErrNotAccepted),
		errors.Is(err, domainoffers.ErrConcurrentUpdate):
		return apperr.Conflict(op, err)
	case errors.Is(err, domainoffers.ErrInvalidAmount),
		errors.Is(err, domainoffers.ErrSelfOffer):
		return apperr.Validation(op, err)
	}
	return err
}
