package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainbooking "rigshare/internal/domain/booking"
	domainlistings "rigshare/internal/domain/listings"
	"rigshare/internal/domain/shared/daterange"
	"rigshare/internal/domain/shared/money"
)

type BookingRepository struct {
	col *mongo.Collection
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	return &BookingRepository{col: db.Collection(colBookings)}
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	var doc bookingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		return nil, notFound(err, domainbooking.ErrBookingNotFound)
	}
	return doc.toAggregate()
}

func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	doc := newBookingDocument(b)
	doc.Version = b.Version + 1
	if err := casUpsert(ctx, r.col, doc.ID, b.Version, doc); err != nil {
		if err == errVersionConflict {
			return domainbooking.ErrConcurrentUpdate
		}
		return err
	}
	b.Version = doc.Version
	return nil
}

func (r *BookingRepository) ListByListing(ctx context.Context, id domainlistings.ListingID, rng daterange.Range) ([]*domainbooking.Booking, error) {
	return r.find(ctx, bson.M{
		"listing_id": string(id),
		"start_date": bson.M{"$lte": dayString(rng.End)},
		"end_date":   bson.M{"$gte": dayString(rng.Start)},
	}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func (r *BookingRepository) ListByHost(ctx context.Context, hostID string) ([]*domainbooking.Booking, error) {
	return r.find(ctx, bson.M{"host_id": hostID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func (r *BookingRepository) ListByBuyer(ctx context.Context, buyerID string) ([]*domainbooking.Booking, error) {
	return r.find(ctx, bson.M{"buyer_id": buyerID}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func (r *BookingRepository) PendingRefunds(ctx context.Context, limit int) ([]*domainbooking.Booking, error) {
	opts := options.Find().SetSort(bson.D{{Key: "refund.last_attempt_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, bson.M{
		"payment_status": string(domainbooking.PaymentPaid),
		"refund.state":   string(domainbooking.RefundFailed),
	}, opts)
}

func (r *BookingRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domainbooking.Booking, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []bookingDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainbooking.Booking, 0, len(docs))
	for _, d := range docs {
		b, err := d.toAggregate()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

type bookingDocument struct {
	ID                 string         `bson:"_id"`
	ListingID          string         `bson:"listing_id"`
	BuyerID            string         `bson:"buyer_id"`
	HostID             string         `bson:"host_id"`
	StartDate          string         `bson:"start_date"`
	EndDate            string         `bson:"end_date"`
	IsHourly           bool           `bson:"is_hourly"`
	StartMin           int            `bson:"start_min"`
	EndMin             int            `bson:"end_min"`
	Total              money.Money    `bson:"total"`
	DeliveryFee        money.Money    `bson:"delivery_fee"`
	Status             string         `bson:"status"`
	PaymentStatus      string         `bson:"payment_status"`
	PaymentIntentID    string         `bson:"payment_intent_id,omitempty"`
	CheckoutSessionID  string         `bson:"checkout_session_id,omitempty"`
	CancellationReason string         `bson:"cancellation_reason,omitempty"`
	CancelledBy        string         `bson:"cancelled_by,omitempty"`
	Refund             refundDocument `bson:"refund"`
	CreatedAt          time.Time      `bson:"created_at"`
	UpdatedAt          time.Time      `bson:"updated_at"`
	Version            int64          `bson:"version"`
}

type refundDocument struct {
	State         string      `bson:"state"`
	RefundID      string      `bson:"refund_id,omitempty"`
	Amount        money.Money `bson:"amount"`
	Error         string      `bson:"error,omitempty"`
	Attempts      int         `bson:"attempts"`
	LastAttemptAt time.Time   `bson:"last_attempt_at"`
}

func newBookingDocument(b *domainbooking.Booking) bookingDocument {
	return bookingDocument{
		ID:                 string(b.ID),
		ListingID:          string(b.ListingID),
		BuyerID:            b.BuyerID,
		HostID:             b.HostID,
		StartDate:          dayString(b.Dates.Start),
		EndDate:            dayString(b.Dates.End),
		IsHourly:           b.IsHourly,
		StartMin:           b.StartTime.Minutes(),
		EndMin:             b.EndTime.Minutes(),
		Total:              b.Total,
		DeliveryFee:        b.DeliveryFee,
		Status:             string(b.Status),
		PaymentStatus:      string(b.PaymentStatus),
		PaymentIntentID:    b.PaymentIntentID,
		CheckoutSessionID:  b.CheckoutSessionID,
		CancellationReason: b.CancellationReason,
		CancelledBy:        string(b.CancelledBy),
		Refund: refundDocument{
			State:         string(b.Refund.State),
			RefundID:      b.Refund.RefundID,
			Amount:        b.Refund.Amount,
			Error:         b.Refund.Error,
			Attempts:      b.Refund.Attempts,
			LastAttemptAt: b.Refund.LastAttemptAt,
		},
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
		Version:   b.Version,
	}
}

func (d bookingDocument) toAggregate() (*domainbooking.Booking, error) {
	start, err := parseStoredDay(d.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseStoredDay(d.EndDate)
	if err != nil {
		return nil, err
	}
	return &domainbooking.Booking{
		ID:                 domainbooking.BookingID(d.ID),
		ListingID:          domainlistings.ListingID(d.ListingID),
		BuyerID:            d.BuyerID,
		HostID:             d.HostID,
		Dates:              daterange.Range{Start: start, End: end},
		IsHourly:           d.IsHourly,
		StartTime:          daterange.TimeOfDay(d.StartMin),
		EndTime:            daterange.TimeOfDay(d.EndMin),
		Total:              d.Total,
		DeliveryFee:        d.DeliveryFee,
		Status:             domainbooking.Status(d.Status),
		PaymentStatus:      domainbooking.PaymentStatus(d.PaymentStatus),
		PaymentIntentID:    d.PaymentIntentID,
		CheckoutSessionID:  d.CheckoutSessionID,
		CancellationReason: d.CancellationReason,
		CancelledBy:        domainbooking.Actor(d.CancelledBy),
		Refund: domainbooking.Refund{
			State:         domainbooking.RefundState(d.Refund.State),
			RefundID:      d.Refund.RefundID,
			Amount:        d.Refund.Amount,
			Error:         d.Refund.Error,
			Attempts:      d.Refund.Attempts,
			LastAttemptAt: d.Refund.LastAttemptAt.UTC(),
		},
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
		Version:   d.Version,
	}, nil
}

var _ domainbooking.Repository = (*BookingRepository)(nil)
