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

// MongoRequestCollection implements RequestCollection for MongoDB.
type MongoRequestCollection struct {
	Collection *mongo.Collection
}

// InsertRequest inserts a maintenance request into the collection.
func (c *MongoRequestCollection) InsertRequest(ctx context.Context, request models.Request) (*models.Request, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	request.CreatedAt = time.Now()
	request.UpdatedAt = time.Now()
	if request.Code == "" {
		request.Code = models.CodeUnassigned
	}
	if request.TimerState == "" {
		request.TimerState = models.TimerIdle
	}
	res, err := c.Collection.InsertOne(ctx, request)
	if err != nil {
		return nil, err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		request.ID = oid
	}
	return &request, nil
}

// FindRequestByID finds a maintenance request by its ID.
func (c *MongoRequestCollection) FindRequestByID(ctx context.Context, id string) (*models.Request, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid request ID: %w", err)
	}
	var request models.Request
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&request)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("maintenance request %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &request, nil
}

// FindRequestsByPlan queries requests belonging to a plan, newest first.
func (c *MongoRequestCollection) FindRequestsByPlan(ctx context.Context, planID string) ([]models.Request, error) {
	return c.findRequests(ctx, bson.M{"plan_id": planID})
}

// FindRequestsByAsset queries requests for an asset, newest first.
func (c *MongoRequestCollection) FindRequestsByAsset(ctx context.Context, assetID string) ([]models.Request, error) {
	return c.findRequests(ctx, bson.M{"asset_id": assetID})
}

func (c *MongoRequestCollection) findRequests(ctx context.Context, filter bson.M) ([]models.Request, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	cursor, err := c.Collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "scheduled_date", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var requests []models.Request
	if err := cursor.All(ctx, &requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// FindLatestScheduled returns the furthest-scheduled request of a plan on
// or after the given date, or (nil, nil) when there is none.
func (c *MongoRequestCollection) FindLatestScheduled(ctx context.Context, planID string, onOrAfter time.Time) (*models.Request, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	filter := bson.M{
		"plan_id":        planID,
		"scheduled_date": bson.M{"$gte": onOrAfter},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "scheduled_date", Value: -1}})
	var request models.Request
	err := c.Collection.FindOne(ctx, filter, opts).Decode(&request)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

// UpdateRequest updates a maintenance request by its ID.
func (c *MongoRequestCollection) UpdateRequest(ctx context.Context, id string, request models.Request) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid request ID: %w", err)
	}
	request.UpdatedAt = time.Now()
	result, err := c.Collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": request})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("maintenance request %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteRequest deletes a maintenance request by its ID. The caller is
// responsible for cascading to the request's time segments.
func (c *MongoRequestCollection) DeleteRequest(ctx context.Context, id string) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid request ID: %w", err)
	}
	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("maintenance request %s: %w", id, ErrNotFound)
	}
	return nil
}
