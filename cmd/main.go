package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/ukydev/maintenance-tracker/internal/auth"
	"github.com/ukydev/maintenance-tracker/internal/clock"
	"github.com/ukydev/maintenance-tracker/internal/db"
	"github.com/ukydev/maintenance-tracker/internal/handlers"
	"github.com/ukydev/maintenance-tracker/internal/middleware"
	"github.com/ukydev/maintenance-tracker/internal/notify"
	"github.com/ukydev/maintenance-tracker/internal/recurrence"
	"github.com/ukydev/maintenance-tracker/internal/stage"
	"github.com/ukydev/maintenance-tracker/internal/sweep"
	"github.com/ukydev/maintenance-tracker/internal/timer"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found, using environment")
	}
	log.SetFormatter(&log.JSONFormatter{})
	if level, err := log.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	}

	client, err := db.ConnectMongo()
	if err != nil {
		log.WithError(err).Fatal("failed to connect to MongoDB")
	}
	defer client.Disconnect(context.Background())
	log.Info("connected to MongoDB")

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "maintenance"
	}
	database := client.Database(dbName)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		cancel()
		log.WithError(err).Fatal("failed to create indexes")
	}
	cancel()

	plans := &db.MongoPlanCollection{Collection: database.Collection("plans")}
	requests := &db.MongoRequestCollection{Collection: database.Collection("requests")}
	segments := &db.MongoSegmentCollection{Collection: database.Collection("segments")}
	stages := &db.MongoStageCollection{Collection: database.Collection("stages")}
	causes := &db.MongoPauseCauseCollection{Collection: database.Collection("pause_causes")}
	assets := &db.MongoAssetCollection{Collection: database.Collection("assets")}
	users := &db.MongoUserCollection{Collection: database.Collection("users")}
	sequences := &db.MongoSequenceAllocator{Collection: database.Collection("sequences")}

	clk := clock.Real{}

	var notifier notify.Notifier = notify.Noop{}
	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		topic := os.Getenv("MQTT_TOPIC")
		if topic == "" {
			topic = "maintenance/stage-events"
		}
		mqttNotifier, err := notify.NewMQTTNotifier(
			broker,
			"maintenance-tracker",
			os.Getenv("MQTT_USERNAME"),
			os.Getenv("MQTT_PASSWORD"),
			topic,
		)
		if err != nil {
			log.WithError(err).Fatal("failed to connect to MQTT broker")
		}
		defer mqttNotifier.Close()
		notifier = mqttNotifier
	}

	generator := &recurrence.Generator{
		Plans:    plans,
		Requests: requests,
		Stages:   stages,
		Assets:   assets,
		Seq:      sequences,
		Clock:    clk,
	}
	timerService := &timer.Service{
		Requests: requests,
		Segments: segments,
		Stages:   stages,
		Causes:   causes,
		Clock:    clk,
	}
	guard := &stage.Guard{
		Requests: requests,
		Stages:   stages,
		Plans:    plans,
		Assets:   assets,
		Gen:      generator,
		Notifier: notifier,
		Clock:    clk,
	}

	sweeper := &sweep.Runner{Plans: plans, Assets: assets, Gen: generator}
	sweepSpec := os.Getenv("SWEEP_SCHEDULE")
	if sweepSpec == "" {
		sweepSpec = "@daily"
	}
	if err := sweeper.Start(sweepSpec); err != nil {
		log.WithError(err).Fatal("failed to schedule plan sweep")
	}
	defer sweeper.Stop()

	authService, err := auth.NewService()
	if err != nil {
		log.WithError(err).Fatal("failed to create auth service")
	}
	authHandler := handlers.NewAuthHandler(authService, users)
	maintenanceHandler := &handlers.MaintenanceHandler{
		Plans:    plans,
		Requests: requests,
		Segments: segments,
		Causes:   causes,
		Assets:   assets,
		Stages:   stages,
		Seq:      sequences,
		Gen:      generator,
		Timer:    timerService,
		Guard:    guard,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("GET /api/auth/profile", authHandler.GetProfile)
	mux.HandleFunc("PUT /api/auth/profile", authHandler.UpdateProfile)
	mux.HandleFunc("POST /api/auth/change-password", authHandler.ChangePassword)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	maintenanceHandler.Register(mux)

	authMiddleware := middleware.NewAuthMiddleware(authService)
	rateLimiter := middleware.NewRateLimitMiddleware()
	handler := rateLimiter.RateLimit(300, 60)(authMiddleware.Authenticate(mux))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.WithField("port", port).Info("HTTP server listening")
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.WithError(err).Fatal("HTTP server stopped")
	}
}
