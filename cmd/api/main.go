package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/supportiq/backend/internal/a2a"
	"github.com/supportiq/backend/internal/api/handlers"
	"github.com/supportiq/backend/internal/cache/redis"
	"github.com/supportiq/backend/internal/metrics"
	"github.com/supportiq/backend/internal/middleware/ratelimit"
	"github.com/supportiq/backend/internal/pipeline"
	"github.com/supportiq/backend/internal/storage/sqlite"
	"github.com/supportiq/backend/internal/workflows"
	"github.com/supportiq/backend/pkg/config"
	appLogger "github.com/supportiq/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting SupportIQ pipeline server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, continuing without dedup", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	a2aClient := a2a.NewClient(
		cfg.Kibana.URL,
		cfg.Kibana.APIKey,
		time.Duration(cfg.Pipeline.AgentTimeoutSec)*time.Second,
	)

	dispatcher := workflows.NewDispatcher(
		cfg.Kibana.URL,
		cfg.Kibana.APIKey,
		cfg.Slack.WebhookURL,
		time.Duration(cfg.Pipeline.SideEffectTimeoutSec)*time.Second,
	)

	streamHandler := handlers.NewStreamHandler()

	opts := pipeline.Options{
		Policy: pipeline.Policy{
			AutoResolveThreshold: cfg.Pipeline.AutoResolveThreshold,
			EscalateThreshold:    cfg.Pipeline.EscalateThreshold,
		},
		CriticQualityThreshold: cfg.Pipeline.CriticQualityThreshold,
		MaxSolverAttempts:      cfg.Pipeline.MaxSolverAttempts,
		GhostAlertDedup:        time.Duration(cfg.Pipeline.GhostAlertDedupSec) * time.Second,
		SideEffectTimeout:      time.Duration(cfg.Pipeline.SideEffectTimeoutSec) * time.Second,
		Sink:                   streamHandler,
	}
	if redisClient != nil {
		opts.Gate = redisClient
	}

	orchestrator := pipeline.NewOrchestrator(a2aClient, sqliteClient, dispatcher, opts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	for provider, status := range a2aClient.PingAll(pingCtx) {
		if status.Status == "online" {
			appLogger.Info("Provider online", zap.String("provider", string(provider)))
		} else {
			appLogger.Warn("Provider unreachable",
				zap.String("provider", string(provider)),
				zap.String("error", status.Error),
			)
		}
	}
	cancel()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.Server.RateLimit,
		Logger:            appLogger.GetLogger(),
	})
	defer limiter.Stop()

	ticketHandler := handlers.NewTicketHandler(orchestrator, sqliteClient, redisClient)
	providerHandler := handlers.NewProviderHandler(a2aClient)

	api := app.Group("/api/v1")

	api.Post("/tickets", limiter.Middleware(), ticketHandler.HandleCreate)
	api.Get("/tickets/:id", ticketHandler.HandleGet)
	api.Get("/tickets/:id/trace", ticketHandler.HandleGetTrace)
	api.Get("/providers", providerHandler.HandleList)

	app.Get("/ws", websocket.New(streamHandler.HandleConnection))
	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
