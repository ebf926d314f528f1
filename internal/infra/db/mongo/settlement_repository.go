package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainoffers "rigshare/internal/domain/offers"
	domainsettlement "rigshare/internal/domain/settlement"
	"rigshare/internal/domain/shared/money"
)

// SettlementRepository relies on the unique checkout_session_id index so a
// payment confirmed twice is recorded once.
type SettlementRepository struct {
	col *mongo.Collection
}

func NewSettlementRepository(db *mongo.Database) *SettlementRepository {
	return &SettlementRepository{col: db.Collection(colSettlements)}
}

func (r *SettlementRepository) ByID(ctx context.Context, id domainsettlement.ID) (*domainsettlement.Settlement, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

func (r *SettlementRepository) BySessionID(ctx context.Context, sessionID string) (*domainsettlement.Settlement, error) {
	return r.findOne(ctx, bson.M{"checkout_session_id": sessionID})
}

func (r *SettlementRepository) Insert(ctx context.Context, s *domainsettlement.Settlement) error {
	doc := newSettlementDocument(s)
	doc.Version = 1
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainsettlement.ErrDuplicateSession
		}
		return err
	}
	s.Version = doc.Version
	return nil
}

func (r *SettlementRepository) Save(ctx context.Context, s *domainsettlement.Settlement) error {
	doc := newSettlementDocument(s)
	doc.Version = s.Version + 1
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID, "version": s.Version}, doc)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		n, err := r.col.CountDocuments(ctx, bson.M{"_id": doc.ID})
		if err != nil {
			return err
		}
		if n == 0 {
			return domainsettlement.ErrNotFound
		}
		return domainsettlement.ErrConcurrentUpdate
	}
	s.Version = doc.Version
	return nil
}

func (r *SettlementRepository) findOne(ctx context.Context, filter bson.M) (*domainsettlement.Settlement, error) {
	var doc settlementDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, notFound(err, domainsettlement.ErrNotFound)
	}
	return doc.toAggregate(), nil
}

type settlementDocument struct {
	ID                string                             `bson:"_id"`
	ListingID         string                             `bson:"listing_id"`
	OfferID           string                             `bson:"offer_id,omitempty"`
	BuyerID           string                             `bson:"buyer_id"`
	SellerID          string                             `bson:"seller_id"`
	CheckoutSessionID string                             `bson:"checkout_session_id"`
	PaymentIntentID   string                             `bson:"payment_intent_id"`
	Gross             money.Money                        `bson:"gross"`
	PlatformFee       money.Money                        `bson:"platform_fee"`
	SellerPayout      money.Money                        `bson:"seller_payout"`
	FreightCost       money.Money                        `bson:"freight_cost"`
	FreightSellerPaid bool                               `bson:"freight_seller_paid"`
	Fulfillment       domainsettlement.Fulfillment       `bson:"fulfillment"`
	Buyer             domainsettlement.Contact           `bson:"buyer"`
	Status            string                             `bson:"status"`
	Dispute           *domainsettlement.Dispute          `bson:"dispute,omitempty"`
	Resolution        *domainsettlement.ResolutionRecord `bson:"resolution,omitempty"`
	Pending           string                             `bson:"pending_resolution,omitempty"`
	TransferID        string                             `bson:"transfer_id,omitempty"`
	RefundID          string                             `bson:"refund_id,omitempty"`
	PaidOutAt         *time.Time                         `bson:"paid_out_at,omitempty"`
	CreatedAt         time.Time                          `bson:"created_at"`
	UpdatedAt         time.Time                          `bson:"updated_at"`
	Version           int64                              `bson:"version"`
}

func newSettlementDocument(s *domainsettlement.Settlement) settlementDocument {
	return settlementDocument{
		ID:                string(s.ID),
		ListingID:         s.ListingID,
		OfferID:           s.OfferID,
		BuyerID:           s.BuyerID,
		SellerID:          s.SellerID,
		CheckoutSessionID: s.CheckoutSessionID,
		PaymentIntentID:   s.PaymentIntentID,
		Gross:             s.Gross,
		PlatformFee:       s.PlatformFee,
		SellerPayout:      s.SellerPayout,
		FreightCost:       s.FreightCost,
		FreightSellerPaid: s.FreightSellerPaid,
		Fulfillment:       s.Fulfillment,
		Buyer:             s.Buyer,
		Status:            string(s.Status),
		Dispute:           s.Dispute,
		Resolution:        s.Resolution,
		Pending:           string(s.Pending),
		TransferID:        s.TransferID,
		RefundID:          s.RefundID,
		PaidOutAt:         s.PaidOutAt,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		Version:           s.Version,
	}
}

func (d settlementDocument) toAggregate() *domainsettlement.Settlement {
	return &domainsettlement.Settlement{
		ID:                domainsettlement.ID(d.ID),
		ListingID:         d.ListingID,
		OfferID:           d.OfferID,
		BuyerID:           d.BuyerID,
		SellerID:          d.SellerID,
		CheckoutSessionID: d.CheckoutSessionID,
		PaymentIntentID:   d.PaymentIntentID,
		Gross:             d.Gross,
		PlatformFee:       d.PlatformFee,
		SellerPayout:      d.SellerPayout,
		FreightCost:       d.FreightCost,
		FreightSellerPaid: d.FreightSellerPaid,
		Fulfillment:       d.Fulfillment,
		Buyer:             d.Buyer,
		Status:            domainsettlement.Status(d.Status),
		Dispute:           d.Dispute,
		Resolution:        d.Resolution,
		Pending:           domainsettlement.Resolution(d.Pending),
		TransferID:        d.TransferID,
		RefundID:          d.RefundID,
		PaidOutAt:         d.PaidOutAt,
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
		Version:           d.Version,
	}
}

type OfferRepository struct {
	col *mongo.Collection
}

func NewOfferRepository(db *mongo.Database) *OfferRepository {
	return &OfferRepository{col: db.Collection(colOffers)}
}

func (r *OfferRepository) ByID(ctx context.Context, id domainoffers.ID) (*domainoffers.Offer, error) {
	var doc offerDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		return nil, notFound(err, domainoffers.ErrNotFound)
	}
	return doc.toAggregate(), nil
}

func (r *OfferRepository) AcceptedFor(ctx context.Context, listingID, buyerID string) (*domainoffers.Offer, error) {
	var doc offerDocument
	filter := bson.M{"listing_id": listingID, "buyer_id": buyerID, "status": string(domainoffers.StatusAccepted)}
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, notFound(err, domainoffers.ErrNotFound)
	}
	return doc.toAggregate(), nil
}

func (r *OfferRepository) ListByParty(ctx context.Context, userID string) ([]*domainoffers.Offer, error) {
	filter := bson.M{"$or": bson.A{bson.M{"buyer_id": userID}, bson.M{"seller_id": userID}}}
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []offerDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainoffers.Offer, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

func (r *OfferRepository) Save(ctx context.Context, o *domainoffers.Offer) error {
	doc := newOfferDocument(o)
	doc.Version = o.Version + 1
	if err := casUpsert(ctx, r.col, doc.ID, o.Version, doc); err != nil {
		if err == errVersionConflict {
			return domainoffers.ErrConcurrentUpdate
		}
		return err
	}
	o.Version = doc.Version
	return nil
}

type offerDocument struct {
	ID        string      `bson:"_id"`
	ListingID string      `bson:"listing_id"`
	BuyerID   string      `bson:"buyer_id"`
	SellerID  string      `bson:"seller_id"`
	Amount    money.Money `bson:"amount"`
	Message   string      `bson:"message,omitempty"`
	Status    string      `bson:"status"`
	CreatedAt time.Time   `bson:"created_at"`
	UpdatedAt time.Time   `bson:"updated_at"`
	Version   int64       `bson:"version"`
}

func newOfferDocument(o *domainoffers.Offer) offerDocument {
	return offerDocument{
		ID:        string(o.ID),
		ListingID: o.ListingID,
		BuyerID:   o.BuyerID,
		SellerID:  o.SellerID,
		Amount:    o.Amount,
		Message:   o.Message,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
		Version:   o.Version,
	}
}

func (d offerDocument) toAggregate() *domainoffers.Offer {
	return &domainoffers.Offer{
		ID:        domainoffers.ID(d.ID),
		ListingID: d.ListingID,
		BuyerID:   d.BuyerID,
		SellerID:  d.SellerID,
		Amount:    d.Amount,
		Message:   d.Message,
		Status:    domainoffers.Status(d.Status),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
		Version:   d.Version,
	}
}

var (
	_ domainsettlement.Repository = (*SettlementRepository)(nil)
	_ domainoffers.Repository     = (*OfferRepository)(nil)
)
