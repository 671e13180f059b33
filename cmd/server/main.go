package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/brightclass/api/internal/client"
	"github.com/brightclass/api/internal/config"
	"github.com/brightclass/api/internal/handler"
	"github.com/brightclass/api/internal/middleware"
	"github.com/brightclass/api/internal/service"
	"github.com/brightclass/api/internal/store"
	"github.com/brightclass/api/internal/worker"
	ws "github.com/brightclass/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client for dispatch redelivery
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Job store and workflow engine client
	jobStore := store.New(redisClient, time.Duration(cfg.Jobs.TTLHours)*time.Hour)
	engineClient := client.NewEngineClient(&cfg.Engine)
	if !engineClient.IsConfigured() {
		log.Printf("Warning: workflow engine base URL not configured; dispatches will fail")
	}

	// Initialize services
	dispatchService := service.NewDispatchService(jobStore, engineClient, asynqClient, hub, cfg.Redelivery.MaxRetry)
	jobService := service.NewJobService(jobStore, dispatchService, hub, cfg.Redelivery.Enabled)
	callbackService := service.NewCallbackService(jobStore, hub)
	adminService := service.NewAdminService(jobStore, time.Duration(cfg.Jobs.StuckAfterMinutes)*time.Minute)

	// Initialize handlers
	jobHandler := handler.NewJobHandler(jobService, validate)
	callbackHandler := handler.NewCallbackHandler(callbackService, validate)
	adminHandler := handler.NewAdminHandler(adminService, validate)

	// Initialize middleware
	adminAuth := middleware.NewAdminAuthMiddleware(cfg.Admin.JWTSecret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    5 * 1024 * 1024, // 5MB
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Tenant-Id,X-User-Id,X-Callback-Secret",
	}))

	// Health check and metrics
	app.Get("/health", func(c *fiber.Ctx) error {
		if err := jobStore.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API routes
	api := app.Group("/api", middleware.GatewayAuthMiddleware())

	jobs := api.Group("/jobs")
	jobs.Post("/", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerMin), jobHandler.Create)
	jobs.Get("/", jobHandler.List)
	jobs.Get("/:id", jobHandler.Get)
	jobs.Post("/:id/cancel", jobHandler.Cancel)

	// Worker result callback surface
	app.Post("/callbacks/worker", middleware.CallbackAuthMiddleware(cfg.Callback.Secret), callbackHandler.Receive)

	// Administrative routes
	admin := app.Group("/admin", adminAuth.Authenticate())
	admin.Post("/jobs/:id/force-status", adminHandler.ForceStatus)
	admin.Get("/jobs/stuck", adminHandler.ListStuck)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/threads/:groupKey", websocket.New(func(c *websocket.Conn) {
		groupKey := c.Params("groupKey")
		hub.HandleConnection(c, groupKey)
	}))

	// Start Asynq worker server for dispatch redelivery
	go startWorkerServer(cfg, jobStore, dispatchService)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, jobStore *store.RedisJobStore, dispatchService *service.DispatchService) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"dispatch": 10,
			},
		},
	)

	dispatchWorker := worker.NewDispatchWorker(jobStore, dispatchService)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeDispatch, dispatchWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
