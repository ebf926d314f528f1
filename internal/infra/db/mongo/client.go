package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colListings     = "listings"
	colBlackouts    = "listing_blackouts"
	colClaims       = "availability_claims"
	colBookings     = "bookings"
	colSettlements  = "settlements"
	colOffers       = "offers"
	colUsers        = "users"
	colIdempotency  = "app_idempotency"
	connectTimeout  = 10 * time.Second
	indexesDeadline = 30 * time.Second
)

type Client struct {
	DB *mongo.Database
}

func New(ctx context.Context, uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	opts := options.Client().ApplyURI(uri).SetRetryWrites(true)
	m, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := m.Ping(ctx, nil); err != nil {
		_ = m.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return &Client{DB: m.Database(database)}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.Client().Ping(ctx, nil)
}

func (c *Client) Close(ctx context.Context) error {
	return c.DB.Client().Disconnect(ctx)
}

// EnsureIndexes creates the indexes the repositories rely on for
// uniqueness. It is safe to call on every start.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexesDeadline)
	defer cancel()
	specs := map[string][]mongo.IndexModel{
		colListings: {
			{Keys: bson.D{{Key: "host_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colBlackouts: {
			{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "date", Value: 1}}},
		},
		colClaims: {
			{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "reference", Value: 1}}},
		},
		colBookings: {
			{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "start_date", Value: 1}}},
			{Keys: bson.D{{Key: "host_id", Value: 1}}},
			{Keys: bson.D{{Key: "buyer_id", Value: 1}}},
			{Keys: bson.D{{Key: "payment_status", Value: 1}, {Key: "refund.state", Value: 1}}},
		},
		colSettlements: {
			{Keys: bson.D{{Key: "checkout_session_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colOffers: {
			{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "buyer_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "seller_id", Value: 1}}},
		},
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "payout.account_id", Value: 1}}, Options: options.Index().SetSparse(true)},
		},
	}
	for name, models := range specs {
		if _, err := c.DB.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: indexes on %s: %w", name, err)
		}
	}
	return nil
}
