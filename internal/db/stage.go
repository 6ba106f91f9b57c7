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

// MongoStageCollection implements StageCollection for MongoDB.
type MongoStageCollection struct {
	Collection *mongo.Collection
}

// InsertStage inserts a workflow stage into the collection.
func (c *MongoStageCollection) InsertStage(ctx context.Context, stage models.Stage) (*models.Stage, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	stage.CreatedAt = time.Now()
	res, err := c.Collection.InsertOne(ctx, stage)
	if err != nil {
		return nil, err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		stage.ID = oid
	}
	return &stage, nil
}

// FindStageByID finds a stage by its ID.
func (c *MongoStageCollection) FindStageByID(ctx context.Context, id string) (*models.Stage, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid stage ID: %w", err)
	}
	var stage models.Stage
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&stage)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("stage %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &stage, nil
}

// FindStageByKey resolves a stage by deployment-stable key, (nil, nil)
// when absent so callers can fall back to name matching.
func (c *MongoStageCollection) FindStageByKey(ctx context.Context, key string) (*models.Stage, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	var stage models.Stage
	err := c.Collection.FindOne(ctx, bson.M{"key": key}).Decode(&stage)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &stage, nil
}

// FindStageByName finds a stage by display name, (nil, nil) when absent.
func (c *MongoStageCollection) FindStageByName(ctx context.Context, name string) (*models.Stage, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	var stage models.Stage
	err := c.Collection.FindOne(ctx, bson.M{"name": name}).Decode(&stage)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &stage, nil
}

// FindStages returns every stage ordered by sequence.
func (c *MongoStageCollection) FindStages(ctx context.Context) ([]models.Stage, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	cursor, err := c.Collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "sequence", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var stages []models.Stage
	if err := cursor.All(ctx, &stages); err != nil {
		return nil, err
	}
	return stages, nil
}
