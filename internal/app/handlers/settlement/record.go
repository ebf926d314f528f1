package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rigshare/internal/app/apperr"
	"rigshare/internal/app/commands"
	"rigshare/internal/app/dto"
	handlersupport "rigshare/internal/app/handlers/support"
	"rigshare/internal/app/notify"
	"rigshare/internal/app/outbox"
	"rigshare/internal/app/policies"
	"rigshare/internal/app/uow"
	domaincheckout "rigshare/internal/domain/checkout"
	domainlistings "rigshare/internal/domain/listings"
	domainoffers "rigshare/internal/domain/offers"
	domainpricing "rigshare/internal/domain/pricing"
	domainsettlement "rigshare/internal/domain/settlement"
	"rigshare/internal/domain/shared/money"
)

const recordSettlementKey = "settlement.record"

// RecordSettlementCommand turns a paid escrow session into exactly one
// settlement. Confirmation may carry an already fetched session.
type RecordSettlementCommand struct {
	SessionID    string `validate:"required"`
	Confirmation *domaincheckout.Confirmation
}

func (c RecordSettlementCommand) Key() string { return recordSettlementKey }

// Autocommit lets a duplicate-key failure be observed and recovered.
func (c RecordSettlementCommand) Autocommit() bool { return true }

type RecordSettlementHandler struct {
	Processor policies.PaymentProcessor
	Outbox    outbox.Outbox
	Encoder   outbox.EventEncoder
	Notify    *notify.BestEffort
	Metrics   policies.Metrics
	Logger    *slog.Logger
	Clock     func() time.Time
	// Currency is assumed when the processor reports none.
	Currency string
}

func (h *RecordSettlementHandler) Handle(ctx context.Context, cmd RecordSettlementCommand) (*dto.RecordSettlementResult, error) {
	const op = "settlement.record"
	logger := handlersupport.Logger(h.Logger)
	conf, err := handlersupport.Confirmation(ctx, h.Processor, op, cmd.SessionID, cmd.Confirmation)
	if err != nil {
		return nil, err
	}
	if !conf.Paid {
		return nil, apperr.Conflict(op, handlersupport.ErrPaymentIncomplete)
	}
	unit, err := uow.MustFromContext(ctx)
	if err != nil {
		return nil, err
	}
	repo := unit.Settlements()

	if existing, err := repo.BySessionID(ctx, conf.SessionID); err == nil {
		h.metrics().SettlementRecorded(true)
		return recorded(existing), nil
	} else if !errors.Is(err, domainsettlement.ErrNotFound) {
		return nil, err
	}

	currency := conf.AmountTotal.Currency
	if currency == "" {
		currency = h.Currency
	}
	md, err := domaincheckout.DecodeSale(conf.Metadata, currency)
	if err != nil {
		return nil, classify(op, err)
	}
	fee, payout, err := fees(md)
	if err != nil {
		return nil, apperr.Validation(op, err)
	}
	gross := conf.AmountTotal
	if gross.IsZero() {
		gross = md.SalePrice
	}

	s, err := domainsettlement.Record(domainsettlement.RecordParams{
		ID:                domainsettlement.ID(uuid.NewString()),
		ListingID:         md.ListingID,
		OfferID:           md.OfferID,
		BuyerID:           md.BuyerID,
		SellerID:          md.SellerID,
		CheckoutSessionID: conf.SessionID,
		PaymentIntentID:   conf.PaymentIntentID,
		Gross:             gross,
		PlatformFee:       fee,
		SellerPayout:      payout,
		FreightCost:       md.FreightCost,
		FreightSellerPaid: md.FreightSellerPaid,
		Fulfillment:       domainsettlement.Fulfillment{Type: md.FulfillmentType, Address: md.DeliveryAddress},
		Buyer:             domainsettlement.Contact{Name: md.BuyerName, Email: md.BuyerEmail, Phone: md.BuyerPhone},
		Now:               h.now(),
	})
	if err != nil {
		return nil, apperr.Validation(op, err)
	}
	if err := repo.Insert(ctx, s); err != nil {
		if !errors.Is(err, domainsettlement.ErrDuplicateSession) {
			return nil, err
		}
		// A concurrent confirmation inserted first.
		existing, ferr := repo.BySessionID(ctx, conf.SessionID)
		if ferr != nil {
			return nil, ferr
		}
		h.metrics().SettlementRecorded(true)
		logger.Info("settlement already recorded", "session_id", conf.SessionID, "settlement_id", existing.ID)
		return recorded(existing), nil
	}
	h.metrics().SettlementRecorded(false)

	h.closeListing(ctx, unit, s, md.OfferID)
	if err := handlersupport.FlushEvents(ctx, h.Outbox, h.Encoder, s); err != nil {
		logger.Error("flush settlement events", "settlement_id", s.ID, "error", err)
	}
	h.Notify.Send(ctx, notify.Pair(
		policies.TemplatePaymentReceived,
		"Payment received and held in escrow",
		string(s.ID)+":paid",
		map[string]string{"settlement_id": string(s.ID), "listing_id": s.ListingID, "amount": s.Gross.String()},
		s.SellerID, s.BuyerID,
	)...)
	logger.Info("settlement recorded",
		"settlement_id", s.ID,
		"session_id", conf.SessionID,
		"listing_id", s.ListingID,
		"gross", s.Gross.String(),
	)
	return recorded(s), nil
}

// closeListing advances the accepted offer and takes the listing off the
// market. Failures are logged; the payment is already recorded.
func (h *RecordSettlementHandler) closeListing(ctx context.Context, unit uow.UnitOfWork, s *domainsettlement.Settlement, offerID string) {
	logger := handlersupport.Logger(h.Logger)
	var (
		offer *domainoffers.Offer
		err   error
	)
	if offerID != "" {
		offer, err = unit.Offers().ByID(ctx, domainoffers.ID(offerID))
	} else {
		offer, err = unit.Offers().AcceptedFor(ctx, s.ListingID, s.BuyerID)
	}
	switch {
	case err == nil:
		if err := offer.MarkPurchased(h.now()); err != nil {
			logger.Warn("offer not advanced", "offer_id", offer.ID, "error", err)
		} else if err := unit.Offers().Save(ctx, offer); err != nil {
			logger.Error("save purchased offer", "offer_id", offer.ID, "error", err)
		} else if err := handlersupport.FlushEvents(ctx, h.Outbox, h.Encoder, offer); err != nil {
			logger.Error("flush offer events", "offer_id", offer.ID, "error", err)
		}
	case !errors.Is(err, domainoffers.ErrNotFound):
		logger.Error("load offer", "settlement_id", s.ID, "error", err)
	}

	listing, err := unit.Listings().ByID(ctx, domainlistings.ListingID(s.ListingID))
	if err != nil {
		logger.Error("load sold listing", "listing_id", s.ListingID, "error", err)
		return
	}
	if err := listing.MarkSold(h.now()); err != nil {
		logger.Warn("listing not marked sold", "listing_id", s.ListingID, "error", err)
		return
	}
	if err := unit.Listings().Save(ctx, listing); err != nil {
		logger.Error("save sold listing", "listing_id", s.ListingID, "error", err)
		return
	}
	if err := handlersupport.FlushEvents(ctx, h.Outbox, h.Encoder, listing); err != nil {
		logger.Error("flush listing events", "listing_id", s.ListingID, "error", err)
	}
}

// fees prefers the split carried in the metadata and recomputes it only when
// absent.
func fees(md domaincheckout.SaleMetadata) (money.Money, money.Money, error) {
	if md.PlatformFee != nil && md.SellerReceives != nil {
		return *md.PlatformFee, *md.SellerReceives, nil
	}
	split, err := domainpricing.SplitSale(md.SalePrice, md.FreightCost, md.FreightSellerPaid)
	if err != nil {
		return money.Money{}, money.Money{}, err
	}
	return split.PlatformFee(), split.SellerReceives, nil
}

func recorded(s *domainsettlement.Settlement) *dto.RecordSettlementResult {
	return &dto.RecordSettlementResult{
		Success:       true,
		TransactionID: string(s.ID),
		Message:       "payment held in escrow until the buyer confirms receipt",
	}
}

func (h *RecordSettlementHandler) metrics() policies.Metrics {
	if h.Metrics == nil {
		return policies.NopMetrics{}
	}
	return h.Metrics
}

func (h *RecordSettlementHandler) now() time.Time {
	if h.Clock != nil {
		return h.Clock().UTC()
	}
	return time.Now().UTC()
}

var _ commands.Handler[RecordSettlementCommand, *dto.RecordSettlementResult] = (*RecordSettlementHandler)(nil)
