package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainavailability "rigshare/internal/domain/availability"
	domainlistings "rigshare/internal/domain/listings"
	"rigshare/internal/domain/shared/daterange"
)

const (
	blackoutDate = "date"
	blackoutSlot = "slot"
)

// BlackoutRepository stores blocked dates and slots as one document each.
type BlackoutRepository struct {
	col *mongo.Collection
}

func NewBlackoutRepository(db *mongo.Database) *BlackoutRepository {
	return &BlackoutRepository{col: db.Collection(colBlackouts)}
}

func (r *BlackoutRepository) Blackouts(ctx context.Context, id domainlistings.ListingID, rng daterange.Range) (domainavailability.Blackouts, error) {
	filter := bson.M{
		"listing_id": string(id),
		"date":       bson.M{"$gte": dayString(rng.Start), "$lte": dayString(rng.End)},
	}
	cur, err := r.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "start_min", Value: 1}}))
	if err != nil {
		return domainavailability.Blackouts{}, err
	}
	var docs []blackoutDocument
	if err := cur.All(ctx, &docs); err != nil {
		return domainavailability.Blackouts{}, err
	}
	return blackoutsFromDocuments(docs)
}

func (r *BlackoutRepository) AddBlockedDate(ctx context.Context, id domainlistings.ListingID, date daterange.Day) error {
	doc := blackoutDocument{
		ID:        dateBlackoutID(id, date),
		ListingID: string(id),
		Kind:      blackoutDate,
		Date:      dayString(date),
	}
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (r *BlackoutRepository) RemoveBlockedDate(ctx context.Context, id domainlistings.ListingID, date daterange.Day) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"_id": dateBlackoutID(id, date)})
	return err
}

func (r *BlackoutRepository) AddBlockedSlot(ctx context.Context, id domainlistings.ListingID, slot domainavailability.BlockedSlot) error {
	doc := blackoutDocument{
		ID:        fmt.Sprintf("%s#%s#%04d-%04d", id, dayString(slot.Date), slot.Start.Minutes(), slot.End.Minutes()),
		ListingID: string(id),
		Kind:      blackoutSlot,
		Date:      dayString(slot.Date),
		StartMin:  slot.Start.Minutes(),
		EndMin:    slot.End.Minutes(),
	}
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func dateBlackoutID(id domainlistings.ListingID, date daterange.Day) string {
	return string(id) + "#" + dayString(date)
}

type blackoutDocument struct {
	ID        string `bson:"_id"`
	ListingID string `bson:"listing_id"`
	Kind      string `bson:"kind"`
	Date      string `bson:"date"`
	StartMin  int    `bson:"start_min,omitempty"`
	EndMin    int    `bson:"end_min,omitempty"`
}

func blackoutsFromDocuments(docs []blackoutDocument) (domainavailability.Blackouts, error) {
	var out domainavailability.Blackouts
	for _, d := range docs {
		day, err := parseStoredDay(d.Date)
		if err != nil {
			return domainavailability.Blackouts{}, err
		}
		switch d.Kind {
		case blackoutDate:
			out.Dates = append(out.Dates, day)
		case blackoutSlot:
			out.Slots = append(out.Slots, domainavailability.BlockedSlot{
				Date:  day,
				Start: daterange.TimeOfDay(d.StartMin),
				End:   daterange.TimeOfDay(d.EndMin),
			})
		}
	}
	return out, nil
}

// ClaimStore holds one document per claimed (listing, hour key). The unique
// index on those two fields is what rejects double bookings.
type ClaimStore struct {
	col *mongo.Collection
}

func NewClaimStore(db *mongo.Database) *ClaimStore {
	return &ClaimStore{col: db.Collection(colClaims)}
}

// Claim upserts every key for reference. A key held by another reference
// fails the upsert on the unique index; the keys written so far are then
// removed and ErrSlotTaken is returned. Claims must run outside a
// multi-document transaction, since a duplicate key aborts the transaction.
func (s *ClaimStore) Claim(ctx context.Context, id domainlistings.ListingID, reference string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	now := time.Now().UTC()
	models := make([]mongo.WriteModel, 0, len(keys))
	for _, k := range keys {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"listing_id": string(id), "key": k, "reference": reference}).
			SetUpdate(bson.M{"$setOnInsert": bson.M{"claimed_at": now}}).
			SetUpsert(true))
	}
	_, err := s.col.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return err
	}
	cleanup := bson.M{"listing_id": string(id), "reference": reference, "key": bson.M{"$in": keys}}
	if _, delErr := s.col.DeleteMany(ctx, cleanup); delErr != nil {
		return fmt.Errorf("mongo: release partial claim: %w", delErr)
	}
	return domainavailability.ErrSlotTaken
}

func (s *ClaimStore) Release(ctx context.Context, id domainlistings.ListingID, reference string) error {
	_, err := s.col.DeleteMany(ctx, bson.M{"listing_id": string(id), "reference": reference})
	return err
}

var (
	_ domainavailability.Repository = (*BlackoutRepository)(nil)
	_ domainavailability.ClaimStore = (*ClaimStore)(nil)
)
