// Command seeder provisions a fresh deployment: the well-known workflow
// stages, the default pause causes and an initial admin user. With
// SEED_DEMO=1 it also creates a sample asset and plan. Safe to re-run;
// existing records are left alone.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ukydev/maintenance-tracker/internal/auth"
	"github.com/ukydev/maintenance-tracker/internal/db"
	"github.com/ukydev/maintenance-tracker/internal/models"
)

var defaultStages = []models.Stage{
	{Key: models.StageKeyNew, Name: "New Request", Sequence: 1},
	{Key: models.StageKeyInProgress, Name: "In Progress", Sequence: 2},
	{Key: models.StageKeyReview, Name: "Review", Sequence: 3},
	{Key: models.StageKeyDone, Name: "Done", Sequence: 4, Terminal: true, Folded: true},
	{Key: models.StageKeyCancelled, Name: "Cancelled", Sequence: 5, Terminal: true, Folded: true},
}

var defaultCauses = []models.PauseCause{
	{Name: "Lunch break", Description: "Scheduled meal break", Active: true},
	{Name: "Waiting for parts", Description: "Spare part not on site", Active: true},
	{Name: "Shift end", Description: "Work resumes next shift", Active: true},
	{Name: "Machine in use", Description: "Production cannot release the asset", Active: true},
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using environment")
	}

	client, err := db.ConnectMongo()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MongoDB")
	}
	defer client.Disconnect(context.Background())

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "maintenance"
	}
	database := client.Database(dbName)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.EnsureIndexes(ctx, database); err != nil {
		log.WithError(err).Fatal("failed to create indexes")
	}

	stages := &db.MongoStageCollection{Collection: database.Collection("stages")}
	for _, s := range defaultStages {
		existing, err := stages.FindStageByKey(ctx, s.Key)
		if err != nil {
			log.WithError(err).Fatal("stage lookup failed")
		}
		if existing != nil {
			continue
		}
		if _, err := stages.InsertStage(ctx, s); err != nil {
			log.WithError(err).WithField("stage", s.Name).Fatal("stage insert failed")
		}
		log.WithField("stage", s.Name).Info("stage seeded")
	}

	causes := &db.MongoPauseCauseCollection{Collection: database.Collection("pause_causes")}
	existingCauses, err := causes.FindActivePauseCauses(ctx)
	if err != nil {
		log.WithError(err).Fatal("pause cause lookup failed")
	}
	known := make(map[string]bool, len(existingCauses))
	for _, c := range existingCauses {
		known[c.Name] = true
	}
	for _, c := range defaultCauses {
		if known[c.Name] {
			continue
		}
		if _, err := causes.InsertPauseCause(ctx, c); err != nil {
			log.WithError(err).WithField("cause", c.Name).Fatal("pause cause insert failed")
		}
		log.WithField("cause", c.Name).Info("pause cause seeded")
	}

	users := &db.MongoUserCollection{Collection: database.Collection("users")}
	adminUser := os.Getenv("ADMIN_USERNAME")
	if adminUser == "" {
		adminUser = "admin"
	}
	existing, err := users.FindUserByUsername(ctx, adminUser)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		log.WithError(err).Fatal("admin lookup failed")
	}
	if existing == nil {
		adminPassword := os.Getenv("ADMIN_PASSWORD")
		if adminPassword == "" {
			log.Fatal("ADMIN_PASSWORD must be set to seed the admin user")
		}
		authService, err := auth.NewService()
		if err != nil {
			log.WithError(err).Fatal("failed to create auth service")
		}
		hash, err := authService.HashPassword(adminPassword)
		if err != nil {
			log.WithError(err).Fatal("failed to hash admin password")
		}
		admin := models.User{
			Username:       adminUser,
			Email:          adminUser + "@localhost",
			PasswordHash:   hash,
			Role:           models.RoleAdmin,
			TechnicalAdmin: true,
			FirstName:      "Admin",
			IsActive:       true,
		}
		if err := users.InsertUser(ctx, admin); err != nil {
			log.WithError(err).Fatal("admin insert failed")
		}
		log.WithField("username", adminUser).Info("admin user seeded")
	}

	if os.Getenv("SEED_DEMO") == "1" {
		seedDemo(ctx, database)
	}

	log.Info("seeding complete")
}

// seedDemo provisions a sample asset with a monthly plan, for trying the
// API against an empty database.
func seedDemo(ctx context.Context, database *mongo.Database) {
	assets := &db.MongoAssetCollection{Collection: database.Collection("assets")}
	plans := &db.MongoPlanCollection{Collection: database.Collection("plans")}
	sequences := &db.MongoSequenceAllocator{Collection: database.Collection("sequences")}

	existing, err := assets.FindAssets(ctx)
	if err != nil {
		log.WithError(err).Fatal("asset lookup failed")
	}
	if len(existing) > 0 {
		return
	}

	asset, err := assets.InsertAsset(ctx, models.Asset{
		Name:           "Demo compressor",
		SerialNo:       "DEMO-0001",
		Category:       "Compressors",
		ApprovalStatus: models.AssetApproved,
		Active:         true,
		CreatedAt:      time.Now(),
	})
	if err != nil {
		log.WithError(err).Fatal("demo asset insert failed")
	}
	log.WithField("asset", asset.Name).Info("demo asset seeded")

	code, err := sequences.NextCode(ctx, db.SeqPlan)
	if err != nil {
		log.WithError(err).Warn("plan code allocation failed, using sentinel")
	}
	nextDate := time.Now().AddDate(0, 0, 7).Truncate(24 * time.Hour)
	plan, err := plans.InsertPlan(ctx, models.Plan{
		Code:          code,
		AssetID:       asset.ID.Hex(),
		Interval:      1,
		IntervalUnit:  models.UnitMonth,
		HorizonLength: 3,
		HorizonUnit:   models.UnitMonth,
		AnchorDate:    nextDate,
		NextDate:      nextDate,
		Active:        true,
	})
	if err != nil {
		log.WithError(err).Fatal("demo plan insert failed")
	}
	log.WithField("plan", plan.Code).Info("demo plan seeded")
}
