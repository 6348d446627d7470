package routes

import (
	"context"
	"fmt"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kristishqau/billaroo-sub001/internal/config"
	"github.com/kristishqau/billaroo-sub001/internal/events"
	"github.com/kristishqau/billaroo-sub001/internal/handlers"
	"github.com/kristishqau/billaroo-sub001/internal/metrics"
	"github.com/kristishqau/billaroo-sub001/internal/middleware"
	"github.com/kristishqau/billaroo-sub001/internal/presence"
	"github.com/kristishqau/billaroo-sub001/internal/repository"
	"github.com/kristishqau/billaroo-sub001/internal/services"
	chatws "github.com/kristishqau/billaroo-sub001/internal/websocket"
	"go.uber.org/zap"
)

const messageBurst = 10

// RegisterRoutes wires the messaging stack onto app. The returned function
// releases the Kafka writer and Redis client.
func RegisterRoutes(ctx context.Context, app *fiber.App, cfg *config.Config, db *pgxpool.Pool, log *zap.Logger) (func(), error) {
	userRepo := repository.NewUserRepository(db)
	projectRepo := repository.NewProjectRepository(db)

	storageService, err := newStorageService(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var attachments *services.AttachmentResolver
	if storageService != nil {
		attachments = services.NewAttachmentResolver(storageService)
	} else {
		log.Warn("attachment storage not configured, uploads disabled")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		log.Info("publishing messaging events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	opts := []services.ChatOption{services.WithPublisher(publisher)}
	var chatHub *chatws.Hub
	closeRedis := func() {}
	if cfg.RedisURL != "" {
		client, err := presence.Connect(ctx, cfg.RedisURL)
		if err != nil {
			_ = publisher.Close()
			return nil, err
		}
		closeRedis = func() { _ = client.Close() }
		store := presence.NewStore(client, "messaging", cfg.PresenceTTL)
		opts = append(opts, services.WithPresence(store))
		chatHub = chatws.NewHub(log, store)
	} else {
		chatHub = chatws.NewHub(log, nil)
	}
	go chatHub.Run(ctx)
	opts = append(opts, services.WithNotifier(chatHub))

	chatService := services.NewChatService(
		services.NewPostgresChatStore(db),
		userRepo,
		projectRepo,
		attachments,
		log.Named("chat"),
		opts...,
	)
	chatHandler := handlers.NewChatHandler(chatService, chatHub, cfg.JWTSecret)
	authHandler := handlers.NewAuthHandler(userRepo)
	messageLimiter := middleware.NewUserRateLimiter(cfg.MessageRatePerMinute, messageBurst, log)

	app.Use(metrics.Middleware())
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Get("/me", middleware.AuthRequired(cfg.JWTSecret), authHandler.Me)

	api.Use("/v1/ws", chatHandler.WebSocketAuth)
	api.Get("/v1/ws", websocket.New(chatHandler.HandleWebSocket))

	authProtected := api.Group("/v1", middleware.AuthRequired(cfg.JWTSecret))

	conversations := authProtected.Group("/conversations")
	conversations.Get("", chatHandler.ListConversations)
	conversations.Post("", chatHandler.CreateConversation)
	conversations.Get("/:id", chatHandler.GetConversation)
	conversations.Get("/:id/messages", chatHandler.GetMessages)
	conversations.Get("/:id/unread-count", chatHandler.GetUnreadCount)
	conversations.Post("/:id/mark-read", chatHandler.MarkAsRead)
	conversations.Put("/:id/settings", chatHandler.UpdateSettings)

	messages := authProtected.Group("/messages")
	messages.Post("", messageLimiter.Handler(), chatHandler.SendMessage)
	messages.Put("/:id", chatHandler.EditMessage)
	messages.Delete("/:id", chatHandler.DeleteMessage)
	messages.Get("/:id/attachment", chatHandler.GetAttachment)
	messages.Post("/:id/reactions", chatHandler.AddReaction)
	messages.Delete("/:id/reactions", chatHandler.RemoveReaction)

	return func() {
		if err := publisher.Close(); err != nil {
			log.Warn("close event publisher", zap.Error(err))
		}
		closeRedis()
	}, nil
}

func newStorageService(ctx context.Context, cfg *config.Config) (services.StorageService, error) {
	if !cfg.StorageConfigured() {
		return nil, nil
	}
	switch cfg.StorageDriver {
	case config.StorageDriverSupabase:
		return services.NewSupabaseStorageService(cfg.SupabaseURL, cfg.SupabaseBucket, cfg.SupabaseServiceKey), nil
	case config.StorageDriverS3:
		storage, err := services.NewS3StorageService(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3Endpoint, cfg.S3PublicRead)
		if err != nil {
			return nil, fmt.Errorf("s3 storage: %w", err)
		}
		return storage, nil
	default:
		return nil, nil
	}
}
