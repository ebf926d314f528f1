package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainlistings "rigshare/internal/domain/listings"
)

type ListingRepository struct {
	col *mongo.Collection
}

func NewListingRepository(db *mongo.Database) *ListingRepository {
	return &ListingRepository{col: db.Collection(colListings)}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	var doc listingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		return nil, notFound(err, domainlistings.ErrNotFound)
	}
	return doc.toAggregate(), nil
}

func (r *ListingRepository) Save(ctx context.Context, l *domainlistings.Listing) error {
	doc := newListingDocument(l)
	doc.Version = l.Version + 1
	if err := casUpsert(ctx, r.col, doc.ID, l.Version, doc); err != nil {
		if err == errVersionConflict {
			return domainlistings.ErrConcurrentEdit
		}
		return err
	}
	l.Version = doc.Version
	return nil
}

func (r *ListingRepository) ListByHost(ctx context.Context, host domainlistings.HostID) ([]*domainlistings.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := r.col.Find(ctx, bson.M{"host_id": string(host)}, opts)
	if err != nil {
		return nil, err
	}
	var docs []listingDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainlistings.Listing, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

type listingDocument struct {
	ID        string                        `bson:"_id"`
	HostID    string                        `bson:"host_id"`
	Title     string                        `bson:"title"`
	Kind      string                        `bson:"kind"`
	Currency  string                        `bson:"currency"`
	Schedule  domainlistings.ScheduleConfig `bson:"schedule"`
	Sale      domainlistings.SaleTerms      `bson:"sale"`
	State     string                        `bson:"state"`
	CreatedAt time.Time                     `bson:"created_at"`
	UpdatedAt time.Time                     `bson:"updated_at"`
	Version   int64                         `bson:"version"`
}

func newListingDocument(l *domainlistings.Listing) listingDocument {
	return listingDocument{
		ID:        string(l.ID),
		HostID:    string(l.Host),
		Title:     l.Title,
		Kind:      string(l.Kind),
		Currency:  l.Currency,
		Schedule:  l.Schedule,
		Sale:      l.Sale,
		State:     string(l.State),
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
		Version:   l.Version,
	}
}

func (d listingDocument) toAggregate() *domainlistings.Listing {
	return &domainlistings.Listing{
		ID:        domainlistings.ListingID(d.ID),
		Host:      domainlistings.HostID(d.HostID),
		Title:     d.Title,
		Kind:      domainlistings.Kind(d.Kind),
		Currency:  d.Currency,
		Schedule:  d.Schedule,
		Sale:      d.Sale,
		State:     domainlistings.ListingState(d.State),
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
		Version:   d.Version,
	}
}

var _ domainlistings.ListingRepository = (*ListingRepository)(nil)
