package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/kristishqau/billaroo-sub001/internal/config"
	"github.com/kristishqau/billaroo-sub001/internal/database"
	"github.com/kristishqau/billaroo-sub001/internal/logger"
	"github.com/kristishqau/billaroo-sub001/internal/routes"
	"go.uber.org/zap"
)

const (
	bodyLimit       = 12 * 1024 * 1024
	shutdownTimeout = 10 * time.Second
)

func main() {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(logger.Config{Development: cfg.IsDevelopment(), Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Connect to Database
	if cfg.DBUrl == "" {
		zl.Fatal("DB_URL is required")
	}
	if err := database.ConnectDB(ctx, cfg.DBUrl, zl); err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.CloseDB()

	// 3. Setup Fiber
	app := fiber.New(fiber.Config{BodyLimit: bodyLimit})

	app.Use(cors.New())
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	closeRoutes, err := routes.RegisterRoutes(ctx, app, cfg, database.DB, zl)
	if err != nil {
		zl.Fatal("failed to register routes", zap.Error(err))
	}
	defer closeRoutes()

	// 4. Start Server
	go func() {
		<-ctx.Done()
		zl.Info("shutting down")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			zl.Warn("shutdown", zap.Error(err))
		}
	}()

	zl.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
	if err := app.Listen(":" + cfg.Port); err != nil {
		zl.Error("server stopped", zap.Error(err))
	}
}
