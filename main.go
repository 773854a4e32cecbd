package main

import (
	"github.com/gin-gonic/gin"

	"github.com/ledionnezirii/germanmaster-sub002/config"
	"github.com/ledionnezirii/germanmaster-sub002/handlers"
	"github.com/ledionnezirii/germanmaster-sub002/middleware"
	"github.com/ledionnezirii/germanmaster-sub002/models"
	"github.com/ledionnezirii/germanmaster-sub002/routes"
	"github.com/ledionnezirii/germanmaster-sub002/services"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger := config.NewLogger(cfg)

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Auto-migrate database models
	err = db.AutoMigrate(
		&models.BankQuestion{},
		&models.BankOption{},
		&models.RaceResult{},
		&models.PlayerStats{},
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	// Initialize Redis
	redisClient := config.InitRedis(cfg)
	liveBoard := services.NewLiveBoard(redisClient, logger)

	// Initialize services
	bank := services.NewGormQuestionBank(db)
	sink := services.NewGormResultSink(db, liveBoard, logger)

	// Initialize WebSocket hub
	hub := services.NewHub(logger)
	go hub.Run()

	registry := services.NewRegistry(bank, hub, sink, liveBoard, services.RoomOptions{
		RoundDuration:  cfg.RoundDuration,
		EmptyRoomGrace: cfg.EmptyRoomGrace,
		FinishedGrace:  cfg.FinishedGrace,
		StartCountdown: cfg.VsComputerDelay,
	}, &services.BotConfig{Accuracy: cfg.BotAccuracy}, logger)

	// Initialize handlers
	roomHandler := handlers.NewRoomHandler(registry)

	// Setup Gin router
	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(middleware.CORS())

	routes.SetupRoutes(router, roomHandler, hub, registry, cfg.JWTSecret, logger)

	// Start server
	logger.Info().Str("port", cfg.Port).Msg("server starting")
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}
}
