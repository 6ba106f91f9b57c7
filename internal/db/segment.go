package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ukydev/maintenance-tracker/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoSegmentCollection implements SegmentCollection for MongoDB.
type MongoSegmentCollection struct {
	Collection *mongo.Collection
}

// InsertSegment inserts a time segment into the collection.
func (c *MongoSegmentCollection) InsertSegment(ctx context.Context, segment models.TimeSegment) (*models.TimeSegment, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	if err := segment.Validate(); err != nil {
		return nil, err
	}
	segment.CreatedAt = time.Now()
	segment.UpdatedAt = time.Now()
	res, err := c.Collection.InsertOne(ctx, segment)
	if err != nil {
		return nil, err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		segment.ID = oid
	}
	return &segment, nil
}

// FindSegmentsByRequest returns a request's segments, newest first.
func (c *MongoSegmentCollection) FindSegmentsByRequest(ctx context.Context, requestID string) ([]models.TimeSegment, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	cursor, err := c.Collection.Find(
		ctx,
		bson.M{"request_id": requestID},
		options.Find().SetSort(bson.D{{Key: "start", Value: -1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var segments []models.TimeSegment
	if err := cursor.All(ctx, &segments); err != nil {
		return nil, err
	}
	return segments, nil
}

// FindOpenSegment returns the request's segment without an end timestamp,
// or (nil, nil) when all segments are closed.
func (c *MongoSegmentCollection) FindOpenSegment(ctx context.Context, requestID string) (*models.TimeSegment, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	var segment models.TimeSegment
	err := c.Collection.FindOne(ctx, bson.M{"request_id": requestID, "end": nil}).Decode(&segment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &segment, nil
}

// CloseOpenSegments stamps the end timestamp on every open segment of the
// request and recomputes the derived durations.
func (c *MongoSegmentCollection) CloseOpenSegments(ctx context.Context, requestID string, end time.Time) (int, error) {
	if c.Collection == nil {
		return 0, fmt.Errorf("mongo collection is nil")
	}
	cursor, err := c.Collection.Find(ctx, bson.M{"request_id": requestID, "end": nil})
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)
	var open []models.TimeSegment
	if err := cursor.All(ctx, &open); err != nil {
		return 0, err
	}
	closed := 0
	for i := range open {
		seg := &open[i]
		segEnd := end
		if segEnd.Before(seg.Start) {
			segEnd = seg.Start
		}
		seg.End = &segEnd
		seg.Recompute(segEnd)
		_, err := c.Collection.UpdateOne(ctx, bson.M{"_id": seg.ID}, bson.M{"$set": bson.M{
			"end":              seg.End,
			"duration_hours":   seg.DurationHours,
			"duration_display": seg.DurationDisplay,
			"unit_amount":      seg.UnitAmount,
			"updated_at":       time.Now(),
		}})
		if err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}

// DeleteSegmentsByRequest removes every segment of a request. Cascade
// used when the owning request is deleted.
func (c *MongoSegmentCollection) DeleteSegmentsByRequest(ctx context.Context, requestID string) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	_, err := c.Collection.DeleteMany(ctx, bson.M{"request_id": requestID})
	return err
}
