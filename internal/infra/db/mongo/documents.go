package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rigshare/internal/domain/shared/daterange"
)

// Days are stored as YYYY-MM-DD strings so range filters compare lexically.
func dayString(d daterange.Day) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func parseStoredDay(raw string) (daterange.Day, error) {
	if raw == "" {
		return daterange.Day{}, nil
	}
	return daterange.ParseDay(raw)
}

// notFound maps the driver's empty result to the domain sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return sentinel
	}
	return err
}

var errVersionConflict = errors.New("mongo: version conflict")

// casUpsert replaces the document with the given id only while its stored
// version still equals expected. A first save (expected zero) inserts. Any
// other mismatch surfaces as a duplicate _id on the upsert and is reported
// as errVersionConflict.
func casUpsert(ctx context.Context, col *mongo.Collection, id string, expected int64, doc any) error {
	filter := bson.M{"_id": id, "version": expected}
	res, err := col.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return errVersionConflict
		}
		return err
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return errVersionConflict
	}
	return nil
}
