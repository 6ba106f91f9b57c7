package db

import (
	"context"
	"fmt"

	"github.com/ukydev/maintenance-tracker/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// codeFormats maps a sequence name to its printf code format.
var codeFormats = map[string]string{
	SeqPlan:    "MP%05d",
	SeqRequest: "MR%05d",
}

// MongoSequenceAllocator implements SequenceAllocator on a counters
// collection, one document per sequence name.
type MongoSequenceAllocator struct {
	Collection *mongo.Collection
}

type counterDoc struct {
	Name string `bson:"_id"`
	Seq  int64  `bson:"seq"`
}

// NextCode atomically increments the named counter and returns the
// formatted code. On any failure it returns the "/" sentinel alongside
// the error so callers can keep the record unnumbered.
func (a *MongoSequenceAllocator) NextCode(ctx context.Context, name string) (string, error) {
	if a.Collection == nil {
		return models.CodeUnassigned, fmt.Errorf("mongo collection is nil")
	}
	format, ok := codeFormats[name]
	if !ok {
		return models.CodeUnassigned, fmt.Errorf("unknown sequence %q", name)
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc counterDoc
	err := a.Collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&doc)
	if err != nil {
		return models.CodeUnassigned, fmt.Errorf("sequence %q: %w", name, err)
	}
	return fmt.Sprintf(format, doc.Seq), nil
}
