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

// MongoPauseCauseCollection implements PauseCauseCollection for MongoDB.
type MongoPauseCauseCollection struct {
	Collection *mongo.Collection
}

// InsertPauseCause inserts a pause cause into the collection.
func (c *MongoPauseCauseCollection) InsertPauseCause(ctx context.Context, cause models.PauseCause) (*models.PauseCause, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	cause.CreatedAt = time.Now()
	cause.UpdatedAt = time.Now()
	res, err := c.Collection.InsertOne(ctx, cause)
	if err != nil {
		return nil, err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		cause.ID = oid
	}
	return &cause, nil
}

// FindPauseCauseByID finds a pause cause by its ID.
func (c *MongoPauseCauseCollection) FindPauseCauseByID(ctx context.Context, id string) (*models.PauseCause, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid pause cause ID: %w", err)
	}
	var cause models.PauseCause
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&cause)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("pause cause %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &cause, nil
}

// FindActivePauseCauses returns the active pause causes, ordered by name.
func (c *MongoPauseCauseCollection) FindActivePauseCauses(ctx context.Context) ([]models.PauseCause, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	cursor, err := c.Collection.Find(ctx, bson.M{"active": true}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var causes []models.PauseCause
	if err := cursor.All(ctx, &causes); err != nil {
		return nil, err
	}
	return causes, nil
}

// SetPauseCauseActive toggles a pause cause's active flag.
func (c *MongoPauseCauseCollection) SetPauseCauseActive(ctx context.Context, id string, active bool) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid pause cause ID: %w", err)
	}
	result, err := c.Collection.UpdateOne(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"active": active, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("pause cause %s: %w", id, ErrNotFound)
	}
	return nil
}
