package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"chamapesa/internal/adapters/http/middleware"
	"chamapesa/internal/adapters/http/routes"
	"chamapesa/internal/adapters/persistence/models"
	"chamapesa/internal/config"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// @title ChamaPesa API
// @version 1.0
// @description Savings group administration with M-Pesa integration
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Connect to database
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer config.CloseDatabase()

	// Auto migrate (creates tables if not exist)
	if err := models.AutoMigrate(db); err != nil {
		logger.Fatal("failed to auto migrate", zap.Error(err))
	}
	logger.Info("database migration completed")

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "ChamaPesa API v1.0",
		ErrorHandler: middleware.CustomErrorHandler,
	})

	// Setup middlewares
	middleware.Setup(app, cfg)

	// Setup routes (pass db and cfg for dependency injection)
	scheduler := routes.Setup(app, db, cfg, logger)

	// Background jobs: daily overdue scan, hourly stale gateway sweep
	if err := scheduler.Start(); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer scheduler.Stop()

	// Graceful shutdown
	go gracefulShutdown(app, logger)

	logger.Info("server starting",
		zap.String("port", cfg.Port),
		zap.String("mode", cfg.AppMode),
	)
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDev() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// gracefulShutdown handles graceful shutdown
func gracefulShutdown(app *fiber.App, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	if err := app.Shutdown(); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}
	logger.Info("server stopped gracefully")
}
