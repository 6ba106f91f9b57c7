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

// MongoPlanCollection implements PlanCollection for MongoDB.
type MongoPlanCollection struct {
	Collection *mongo.Collection
}

// InsertPlan inserts a plan record into the collection.
func (c *MongoPlanCollection) InsertPlan(ctx context.Context, plan models.Plan) (*models.Plan, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	plan.CreatedAt = time.Now()
	plan.UpdatedAt = time.Now()
	if plan.Code == "" {
		plan.Code = models.CodeUnassigned
	}
	res, err := c.Collection.InsertOne(ctx, plan)
	if err != nil {
		return nil, err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		plan.ID = oid
	}
	return &plan, nil
}

// FindPlanByID finds a plan by its ID.
func (c *MongoPlanCollection) FindPlanByID(ctx context.Context, id string) (*models.Plan, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid plan ID: %w", err)
	}
	var plan models.Plan
	err = c.Collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&plan)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &plan, nil
}

// FindActivePlans returns every active plan, for the periodic sweep.
func (c *MongoPlanCollection) FindActivePlans(ctx context.Context) ([]models.Plan, error) {
	if c.Collection == nil {
		return nil, fmt.Errorf("mongo collection is nil")
	}
	cursor, err := c.Collection.Find(ctx, bson.M{"active": true}, options.Find().SetSort(bson.D{{Key: "code", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var plans []models.Plan
	if err := cursor.All(ctx, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// UpdatePlan updates a plan by its ID.
func (c *MongoPlanCollection) UpdatePlan(ctx context.Context, id string, plan models.Plan) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid plan ID: %w", err)
	}
	plan.UpdatedAt = time.Now()
	result, err := c.Collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": plan})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdatePlanDates advances the plan's next-occurrence and anchor dates.
func (c *MongoPlanCollection) UpdatePlanDates(ctx context.Context, id string, next, anchor time.Time) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid plan ID: %w", err)
	}
	result, err := c.Collection.UpdateOne(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{"next_date": next, "anchor_date": anchor, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeletePlan deletes a plan by its ID. Requests referencing the plan
// survive; they keep their plan_id for history.
func (c *MongoPlanCollection) DeletePlan(ctx context.Context, id string) error {
	if c.Collection == nil {
		return fmt.Errorf("mongo collection is nil")
	}
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid plan ID: %w", err)
	}
	result, err := c.Collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	return nil
}
